package main

import (
	"context"
	"encoding/json"
	"os"
	"os/signal"
	"syscall"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"

	"github.com/defistate/defistate-amm/logging"
	"github.com/defistate/defistate-amm/streams/client"
)

const defaultStateBufferSize = 100

type watchLine struct {
	Sequence  uint64      `json:"sequence"`
	Timestamp uint64      `json:"timestamp"`
	Hash      common.Hash `json:"hash"`
	Pools     int         `json:"pools"`
}

func newWatchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Follow a running ammd's pool stream and print each snapshot",
		RunE:  runWatch,
	}
	cmd.Flags().String("url", "ws://127.0.0.1:8645", "websocket endpoint of ammd serve")
	cmd.Flags().Bool("pools", false, "print full pool lists instead of summaries")
	cmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")
	return cmd
}

func runWatch(cmd *cobra.Command, _ []string) error {
	url, _ := cmd.Flags().GetString("url")
	full, _ := cmd.Flags().GetBool("pools")
	level, _ := cmd.Flags().GetString("log-level")

	zapLogger, err := logging.New(level, "text")
	if err != nil {
		return err
	}
	logger := logging.NewZap(zapLogger)
	defer logger.Sync() //nolint:errcheck

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	c, err := client.NewClient(ctx, client.Config{
		URL:        url,
		Logger:     logger.With("component", "stream-client"),
		BufferSize: defaultStateBufferSize,
	})
	if err != nil {
		return err
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	for {
		select {
		case s := <-c.State():
			var line any = watchLine{Sequence: s.Sequence, Timestamp: s.Timestamp, Hash: s.Hash, Pools: len(s.Pools)}
			if full {
				line = s
			}
			if err := enc.Encode(line); err != nil {
				return err
			}
		case <-c.Err():
			return nil
		}
	}
}
