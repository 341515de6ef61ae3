package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"marketScope/internal/api"
	"marketScope/internal/chain"
	"marketScope/internal/config"
	"marketScope/internal/market"
	"marketScope/internal/storage"
	"marketScope/internal/storage/postgres"
)

func runServer(cmd *cobra.Command, _ []string) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(cfgFile, cmd.Flags())
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	if cfg.WSURL == "" {
		return fmt.Errorf("ws url is required for live sync")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	chainClient, err := chain.NewClient(ctx, cfg.RPCURL, cfg.WSURL, cfg.Program)
	if err != nil {
		return fmt.Errorf("connect rpc: %w", err)
	}
	defer chainClient.Close()

	var journal storage.Storage
	if cfg.Journal != "" {
		journal = storage.NewJsonlStorage(cfg.Journal)
	}

	var eventStore market.EventStore
	var tradeStore market.TradeStore
	var tradeReader api.TradeReader
	if cfg.PostgresDSN != "" {
		store, err := postgres.NewStore(ctx, cfg.PostgresDSN)
		if err != nil {
			return fmt.Errorf("connect postgres: %w", err)
		}
		defer store.Close()
		eventStore = store
		tradeStore = store
		tradeReader = store
	}

	metrics := market.NewMetrics(prometheus.DefaultRegisterer)
	engine := market.New(market.Config{
		BaseMint:     cfg.BaseMint,
		QuoteMint:    cfg.QuoteMint,
		MaxRetries:   cfg.MaxRetries,
		RetryBackoff: cfg.RetryBackoff,
	}, chainClient, journal, eventStore, tradeStore, metrics, logger)

	logger.Info("marketd start",
		zap.String("rpc", cfg.RPCURL),
		zap.String("ws", cfg.WSURL),
		zap.Stringer("program", cfg.Program),
		zap.Stringer("base_mint", cfg.BaseMint),
		zap.Stringer("quote_mint", cfg.QuoteMint),
		zap.String("listen", cfg.Listen),
		zap.String("journal", cfg.Journal),
		zap.Bool("trade_store", tradeStore != nil),
	)

	if err := engine.Load(ctx); err != nil {
		return fmt.Errorf("load market: %w", err)
	}

	server := api.New(engine, tradeReader, logger)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return engine.Run(gctx)
	})
	g.Go(func() error {
		return server.Start(cfg.Listen)
	})
	g.Go(func() error {
		<-gctx.Done()
		engine.Close()
		return server.Close()
	})

	err = g.Wait()
	if ctx.Err() != nil {
		logger.Info("marketd stopped")
		return nil
	}
	return err
}
