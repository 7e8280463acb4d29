package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/defistate/defistate-amm/config"
	"github.com/defistate/defistate-amm/engine"
	"github.com/defistate/defistate-amm/strategies"
)

type quoteOutput struct {
	Strategy   engine.StrategyKind `json:"strategy"`
	AmountIn   uint64              `json:"amountIn"`
	ReserveIn  uint64              `json:"reserveIn"`
	ReserveOut uint64              `json:"reserveOut"`
	FeeBps     uint64              `json:"feeBps"`
	AmountOut  uint64              `json:"amountOut"`
}

func newQuoteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "quote",
		Short: "Price a swap against given reserves without a ledger",
		Example: "  ammd quote --strategy stable-swap --amount-in 10000000 " +
			"--reserve-in 100000000 --reserve-out 100000000 --fee-bps 30",
		RunE: runQuote,
	}
	cmd.Flags().String("strategy", engine.ConstantProduct.String(), "pricing curve")
	cmd.Flags().Uint64("amount-in", 0, "input amount")
	cmd.Flags().Uint64("reserve-in", 0, "reserve of the input token")
	cmd.Flags().Uint64("reserve-out", 0, "reserve of the output token")
	cmd.Flags().Uint64("fee-bps", 30, "fee in basis points")
	return cmd
}

func runQuote(cmd *cobra.Command, _ []string) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	// curve parameters come from the config file and environment
	cfg, err := config.Load(cfgFile, nil)
	if err != nil {
		return err
	}

	flags := cmd.Flags()
	name, _ := flags.GetString("strategy")
	kind, err := engine.ParseStrategyKind(name)
	if err != nil {
		return err
	}
	out := quoteOutput{Strategy: kind}
	out.AmountIn, _ = flags.GetUint64("amount-in")
	out.ReserveIn, _ = flags.GetUint64("reserve-in")
	out.ReserveOut, _ = flags.GetUint64("reserve-out")
	out.FeeBps, _ = flags.GetUint64("fee-bps")

	strategy, err := strategies.New(kind, cfg.Strategies)
	if err != nil {
		return err
	}
	out.AmountOut, err = strategy.QuoteAmountOut(out.AmountIn, out.ReserveIn, out.ReserveOut, out.FeeBps)
	if err != nil {
		return fmt.Errorf("quote: %w", err)
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}
