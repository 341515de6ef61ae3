package main

import (
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func main() {
	root := &cobra.Command{
		Use:          "marketd",
		Short:        "Off-chain order book for one on-ledger dex market",
		SilenceUsage: true,
	}

	root.PersistentFlags().String("config", "", "config file path")

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Sync the book live and serve the HTTP API",
		RunE:  runServer,
	}

	runCmd.Flags().String("rpc", "", "ledger RPC URL")
	runCmd.Flags().String("ws", "", "ledger websocket URL")
	runCmd.Flags().String("program", "", "dex program address")
	runCmd.Flags().String("base-mint", "", "base mint address")
	runCmd.Flags().String("quote-mint", "", "quote mint address")
	runCmd.Flags().String("listen", ":8080", "HTTP listen address")
	runCmd.Flags().String("journal", "./data/events.jsonl", "event journal JSONL path")
	runCmd.Flags().String("pg-dsn", "", "Postgres DSN for trade storage (optional)")
	runCmd.Flags().Int("max-retries", 5, "maximum retry attempts")
	runCmd.Flags().Duration("retry-backoff", 500*time.Millisecond, "initial retry backoff")
	runCmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")

	root.AddCommand(runCmd)

	depthCmd := &cobra.Command{
		Use:   "depth",
		Short: "Bulk-load the book once and print both sides' L2 depth",
		RunE:  runDepth,
	}

	depthCmd.Flags().String("rpc", "", "ledger RPC URL")
	depthCmd.Flags().String("program", "", "dex program address")
	depthCmd.Flags().String("base-mint", "", "base mint address")
	depthCmd.Flags().String("quote-mint", "", "quote mint address")
	depthCmd.Flags().Int("max-retries", 5, "maximum retry attempts")
	depthCmd.Flags().Duration("retry-backoff", 500*time.Millisecond, "initial retry backoff")
	depthCmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")

	root.AddCommand(depthCmd)

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func newLogger(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevel()
	if err := cfg.Level.UnmarshalText([]byte(level)); err != nil {
		return nil, err
	}

	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	return cfg.Build()
}
