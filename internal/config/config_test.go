package config

import (
	"strings"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/spf13/pflag"
)

func testKey(n byte) solana.PublicKey {
	var b [32]byte
	b[0] = n
	b[31] = n
	return solana.PublicKeyFromBytes(b[:])
}

func testFlags(t *testing.T, values map[string]string) *pflag.FlagSet {
	t.Helper()
	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.String("rpc", "", "")
	flags.String("ws", "", "")
	flags.String("program", "", "")
	flags.String("base-mint", "", "")
	flags.String("quote-mint", "", "")
	flags.String("listen", ":8080", "")
	flags.String("journal", "./data/events.jsonl", "")
	flags.String("pg-dsn", "", "")
	flags.Int("max-retries", 5, "")
	flags.Duration("retry-backoff", 500*time.Millisecond, "")
	flags.String("log-level", "info", "")

	for name, value := range values {
		if err := flags.Set(name, value); err != nil {
			t.Fatalf("set flag %s: %v", name, err)
		}
	}
	return flags
}

func validFlags(t *testing.T, overrides map[string]string) *pflag.FlagSet {
	t.Helper()
	values := map[string]string{
		"rpc":        "http://localhost:8899",
		"program":    testKey(1).String(),
		"base-mint":  testKey(2).String(),
		"quote-mint": testKey(3).String(),
	}
	for name, value := range overrides {
		values[name] = value
	}
	return testFlags(t, values)
}

func TestLoadFromFlags(t *testing.T) {
	cfg, err := Load("", validFlags(t, map[string]string{
		"ws":        "ws://localhost:8900",
		"log-level": "debug",
	}))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.RPCURL != "http://localhost:8899" {
		t.Fatalf("RPCURL = %q", cfg.RPCURL)
	}
	if cfg.WSURL != "ws://localhost:8900" {
		t.Fatalf("WSURL = %q", cfg.WSURL)
	}
	if !cfg.Program.Equals(testKey(1)) {
		t.Fatalf("Program = %s", cfg.Program)
	}
	if !cfg.BaseMint.Equals(testKey(2)) || !cfg.QuoteMint.Equals(testKey(3)) {
		t.Fatalf("mints = %s / %s", cfg.BaseMint, cfg.QuoteMint)
	}
	if cfg.Listen != ":8080" {
		t.Fatalf("Listen = %q, want default", cfg.Listen)
	}
	if cfg.MaxRetries != 5 || cfg.RetryBackoff != 500*time.Millisecond {
		t.Fatalf("retry settings = %d / %s", cfg.MaxRetries, cfg.RetryBackoff)
	}
	if cfg.LogLevel != "debug" {
		t.Fatalf("LogLevel = %q", cfg.LogLevel)
	}
}

func TestLoadRejectsMissingOrInvalidKeys(t *testing.T) {
	cases := []struct {
		name      string
		overrides map[string]string
		wantIn    string
	}{
		{name: "missing program", overrides: map[string]string{"program": " "}, wantIn: "program is required"},
		{name: "bad base mint", overrides: map[string]string{"base-mint": "not-base58"}, wantIn: "invalid base-mint"},
		{name: "same mints", overrides: map[string]string{"quote-mint": testKey(2).String()}, wantIn: "must differ"},
		{name: "missing rpc", overrides: map[string]string{"rpc": ""}, wantIn: "rpc endpoint is required"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Load("", validFlags(t, tc.overrides))
			if err == nil {
				t.Fatal("Load accepted invalid config")
			}
			if !strings.Contains(err.Error(), tc.wantIn) {
				t.Fatalf("error = %q, want substring %q", err, tc.wantIn)
			}
		})
	}
}

func TestLoadEnvOverridesDefaults(t *testing.T) {
	t.Setenv("MARKETSCOPE_LISTEN", ":9090")

	cfg, err := Load("", validFlags(t, nil))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Listen != ":9090" {
		t.Fatalf("Listen = %q, want :9090 from env", cfg.Listen)
	}
}
