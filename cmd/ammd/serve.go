package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/defistate/defistate-amm/config"
	"github.com/defistate/defistate-amm/differ"
	"github.com/defistate/defistate-amm/ledger"
	"github.com/defistate/defistate-amm/logging"
	"github.com/defistate/defistate-amm/rpcapi"
	"github.com/defistate/defistate-amm/store"
	"github.com/defistate/defistate-amm/strategies"
)

const shutdownTimeout = 5 * time.Second

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the ledger and its JSON-RPC endpoint",
		RunE:  runServe,
	}
	config.RegisterFlags(cmd.Flags())
	return cmd
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(cfgFile, cmd.Flags())
	if err != nil {
		return err
	}

	zapLogger, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return err
	}
	logger := logging.NewZap(zapLogger)
	defer logger.Sync() //nolint:errcheck

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	programID, err := cfg.Program()
	if err != nil {
		return err
	}
	set, err := strategies.NewSet(cfg.Strategies)
	if err != nil {
		return err
	}

	backend, err := store.Open(ctx, cfg.Store, logger.With("component", "store"))
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	ledgerCfg := &ledger.Config{
		ProgramID:  programID,
		Strategies: set,
		Registry:   registry,
		Logger:     logger.With("component", "ledger"),
	}
	if backend != nil {
		defer backend.Close()
		ledgerCfg.Store = backend
	}

	l, err := ledger.New(ledgerCfg)
	if err != nil {
		return err
	}
	if _, err := l.Load(ctx); err != nil {
		return err
	}
	if err := bootstrapPools(ctx, l, cfg, logger); err != nil {
		return err
	}

	d, err := differ.NewSnapshotDiffer(&differ.SnapshotDifferConfig{
		Registry: registry,
		Logger:   logger.With("component", "differ"),
	})
	if err != nil {
		return err
	}
	api, err := rpcapi.New(&rpcapi.Config{Ledger: l, Differ: d, Logger: logger.With("component", "rpcapi")})
	if err != nil {
		return err
	}
	rpcServer, err := rpcapi.NewServer(api)
	if err != nil {
		return err
	}
	defer rpcServer.Stop()

	servers := []*http.Server{{Addr: cfg.RPCAddr, Handler: rpcapi.Handler(rpcServer, []string{"*"})}}
	if cfg.MetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{Registry: registry}))
		servers = append(servers, &http.Server{Addr: cfg.MetricsAddr, Handler: mux})
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, srv := range servers {
		g.Go(func() error {
			logger.Info("listening", "addr", srv.Addr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("serve %s: %w", srv.Addr, err)
			}
			return nil
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		for _, srv := range servers {
			_ = srv.Shutdown(shutdownCtx)
		}
		return nil
	})

	logger.Info("ammd started",
		"program", programID,
		"pools", len(l.Pools()),
		"store", cfg.Store.Driver,
		"rpc", cfg.RPCAddr,
		"metrics", cfg.MetricsAddr,
	)
	return g.Wait()
}

// bootstrapPools creates the configured pools that do not exist yet.
func bootstrapPools(ctx context.Context, l *ledger.Ledger, cfg config.Config, logger logging.Logger) error {
	pools, err := cfg.BootstrapPools()
	if err != nil {
		return err
	}
	for _, p := range pools {
		_, err := l.CreatePool(ctx, p.TokenA, p.TokenB, p.FeeBps, p.Strategy)
		switch {
		case errors.Is(err, ledger.ErrPoolExists):
			logger.Debug("configured pool already exists", "tokenA", p.TokenA, "tokenB", p.TokenB)
		case err != nil:
			return fmt.Errorf("bootstrap pool %s/%s: %w", p.TokenA, p.TokenB, err)
		}
	}
	return nil
}
