package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"marketScope/internal/book"
	"marketScope/internal/chain"
	"marketScope/internal/config"
	"marketScope/internal/market"
	"marketScope/internal/model"
)

func runDepth(cmd *cobra.Command, _ []string) error {
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

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	chainClient, err := chain.NewClient(ctx, cfg.RPCURL, "", cfg.Program)
	if err != nil {
		return fmt.Errorf("connect rpc: %w", err)
	}
	defer chainClient.Close()

	engine := market.New(market.Config{
		BaseMint:     cfg.BaseMint,
		QuoteMint:    cfg.QuoteMint,
		MaxRetries:   cfg.MaxRetries,
		RetryBackoff: cfg.RetryBackoff,
	}, chainClient, nil, nil, nil, nil, logger)

	if err := engine.Load(ctx); err != nil {
		return fmt.Errorf("load market: %w", err)
	}

	bids, err := engine.DepthBids()
	if err != nil {
		return err
	}
	asks, err := engine.DepthAsks()
	if err != nil {
		return err
	}

	encoder := json.NewEncoder(os.Stdout)
	if err := printSide(encoder, model.SideBid, bids); err != nil {
		return err
	}
	return printSide(encoder, model.SideAsk, asks)
}

type depthLine struct {
	Side  model.Side `json:"side"`
	Level book.Level `json:"level"`
}

func printSide(encoder *json.Encoder, side model.Side, levels []book.Level) error {
	for _, level := range levels {
		if err := encoder.Encode(depthLine{Side: side, Level: level}); err != nil {
			return err
		}
	}
	return nil
}
