package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Config holds configuration values loaded from flags, env, or config file.
type Config struct {
	RPCURL       string
	WSURL        string
	Program      solana.PublicKey
	BaseMint     solana.PublicKey
	QuoteMint    solana.PublicKey
	Listen       string
	Journal      string
	PostgresDSN  string
	MaxRetries   int
	RetryBackoff time.Duration
	LogLevel     string
}

// Load merges config file, environment variables, and flags into Config.
func Load(cfgFile string, flags *pflag.FlagSet) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("MARKETSCOPE")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetDefault("listen", ":8080")
	v.SetDefault("journal", "./data/events.jsonl")
	v.SetDefault("max-retries", 5)
	v.SetDefault("retry-backoff", 500*time.Millisecond)
	v.SetDefault("log-level", "info")

	if flags != nil {
		if err := v.BindPFlags(flags); err != nil {
			return Config{}, fmt.Errorf("bind flags: %w", err)
		}
	}

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return Config{}, fmt.Errorf("read config: %w", err)
			}
		}
	}

	program, err := requiredKey(v, "program")
	if err != nil {
		return Config{}, err
	}
	baseMint, err := requiredKey(v, "base-mint")
	if err != nil {
		return Config{}, err
	}
	quoteMint, err := requiredKey(v, "quote-mint")
	if err != nil {
		return Config{}, err
	}
	if baseMint.Equals(quoteMint) {
		return Config{}, fmt.Errorf("base-mint and quote-mint must differ")
	}

	cfg := Config{
		RPCURL:       v.GetString("rpc"),
		WSURL:        v.GetString("ws"),
		Program:      program,
		BaseMint:     baseMint,
		QuoteMint:    quoteMint,
		Listen:       v.GetString("listen"),
		Journal:      v.GetString("journal"),
		PostgresDSN:  v.GetString("pg-dsn"),
		MaxRetries:   v.GetInt("max-retries"),
		RetryBackoff: v.GetDuration("retry-backoff"),
		LogLevel:     v.GetString("log-level"),
	}
	if cfg.RPCURL == "" {
		return Config{}, fmt.Errorf("rpc endpoint is required")
	}

	return cfg, nil
}

func requiredKey(v *viper.Viper, name string) (solana.PublicKey, error) {
	raw := strings.TrimSpace(v.GetString(name))
	if raw == "" {
		return solana.PublicKey{}, fmt.Errorf("%s is required", name)
	}
	key, err := solana.PublicKeyFromBase58(raw)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("invalid %s %q: %w", name, raw, err)
	}
	return key, nil
}
