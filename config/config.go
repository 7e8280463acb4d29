// Package config loads the daemon configuration from a file, AMM_* environment
// variables and command-line flags, in increasing order of precedence.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/defistate/defistate-amm/engine"
	"github.com/defistate/defistate-amm/fixedpoint"
	"github.com/defistate/defistate-amm/store"
	"github.com/defistate/defistate-amm/strategies"
)

// EnvPrefix prefixes every environment override, e.g. AMM_STORE_DRIVER.
const EnvPrefix = "AMM"

// DefaultProgramID is the address pool PDAs are derived under when none is configured.
const DefaultProgramID = "AMMpr1cing111111111111111111111111111111111"

// PoolSpec describes a pool created at startup if it does not exist yet.
type PoolSpec struct {
	TokenA   string `mapstructure:"token-a"`
	TokenB   string `mapstructure:"token-b"`
	FeeBps   uint64 `mapstructure:"fee-bps"`
	Strategy string `mapstructure:"strategy"`
}

// Pool is a validated PoolSpec.
type Pool struct {
	TokenA   solana.PublicKey
	TokenB   solana.PublicKey
	FeeBps   uint64
	Strategy engine.StrategyKind
}

// Config holds configuration values loaded from flags, env, or config file.
type Config struct {
	LogLevel    string            `mapstructure:"log-level"`
	LogFormat   string            `mapstructure:"log-format"`
	ProgramID   string            `mapstructure:"program-id"`
	RPCAddr     string            `mapstructure:"rpc-addr"`
	MetricsAddr string            `mapstructure:"metrics-addr"`
	Store       store.Config      `mapstructure:"store"`
	Strategies  strategies.Config `mapstructure:"strategies"`
	Pools       []PoolSpec        `mapstructure:"pools"`
}

// flagKeys maps flat flag names onto nested config keys.
var flagKeys = map[string]string{
	"log-level":           "log-level",
	"log-format":          "log-format",
	"program-id":          "program-id",
	"rpc-addr":            "rpc-addr",
	"metrics-addr":        "metrics-addr",
	"store-driver":        "store.driver",
	"store-path":          "store.path",
	"store-dsn":           "store.dsn",
	"store-max-retries":   "store.max-retries",
	"store-retry-backoff": "store.retry-backoff",
}

// RegisterFlags adds the flags Load understands to flags.
func RegisterFlags(flags *pflag.FlagSet) {
	flags.String("log-level", "info", "log level (debug, info, warn, error)")
	flags.String("log-format", "json", "log format (json, text)")
	flags.String("program-id", DefaultProgramID, "program address pool addresses are derived under")
	flags.String("rpc-addr", "127.0.0.1:8645", "JSON-RPC listen address (http and websocket)")
	flags.String("metrics-addr", "127.0.0.1:9645", "prometheus listen address, empty to disable")
	flags.String("store-driver", store.DriverNone, "pool store (none, jsonl, postgres)")
	flags.String("store-path", "./data/pools.jsonl", "jsonl journal path")
	flags.String("store-dsn", "", "postgres DSN")
	flags.Int("store-max-retries", 5, "maximum store connection attempts after the first")
	flags.Duration("store-retry-backoff", 500*time.Millisecond, "initial store retry backoff")
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("log-level", "info")
	v.SetDefault("log-format", "json")
	v.SetDefault("program-id", DefaultProgramID)
	v.SetDefault("rpc-addr", "127.0.0.1:8645")
	v.SetDefault("metrics-addr", "127.0.0.1:9645")
	v.SetDefault("store.driver", store.DriverNone)
	v.SetDefault("store.path", "./data/pools.jsonl")
	v.SetDefault("store.dsn", "")
	v.SetDefault("store.max-retries", 5)
	v.SetDefault("store.retry-backoff", 500*time.Millisecond)

	s := strategies.DefaultConfig()
	v.SetDefault("strategies.constant-mean.weight-a", s.ConstantMean.A)
	v.SetDefault("strategies.constant-mean.weight-b", s.ConstantMean.B)
	v.SetDefault("strategies.concentrated.band-bps", s.Concentrated.BandBps)
	v.SetDefault("strategies.hybrid.gamma", s.Hybrid.Gamma)
	v.SetDefault("strategies.hybrid.mid-fee", s.Hybrid.MidFee)
	v.SetDefault("strategies.hybrid.out-fee", s.Hybrid.OutFee)
	v.SetDefault("strategies.hybrid.allowed-extra-profit", s.Hybrid.AllowedExtraProfit)
	v.SetDefault("strategies.hybrid.fee-gamma", s.Hybrid.FeeGamma)
	v.SetDefault("strategies.hybrid.adjustment-step", s.Hybrid.AdjustmentStep)
	v.SetDefault("strategies.hybrid.ma-half-time", s.Hybrid.MAHalfTime)
}

// Load merges config file, environment variables, and flags into Config.
// flags may be nil; flags that were not set on the command line do not
// override the file or environment.
func Load(cfgFile string, flags *pflag.FlagSet) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if flags != nil {
		for name, key := range flagKeys {
			if f := flags.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return Config{}, fmt.Errorf("bind flag %s: %w", name, err)
				}
			}
		}
	}

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	} else {
		v.SetConfigName("ammd")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return Config{}, fmt.Errorf("read config: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks every value that can be checked without side effects.
func (c Config) Validate() error {
	if _, err := c.Program(); err != nil {
		return err
	}
	switch c.LogFormat {
	case "json", "text", "console":
	default:
		return fmt.Errorf("config: unknown log-format %q", c.LogFormat)
	}
	switch c.Store.Driver {
	case store.DriverNone, store.DriverJSONL, store.DriverPostgres:
	default:
		return fmt.Errorf("config: unknown store.driver %q", c.Store.Driver)
	}
	if c.Store.Driver == store.DriverJSONL && c.Store.Path == "" {
		return errors.New("config: store.path is required for the jsonl driver")
	}
	if c.Store.Driver == store.DriverPostgres && c.Store.DSN == "" {
		return errors.New("config: store.dsn is required for the postgres driver")
	}
	if c.Store.MaxRetries < 0 {
		return errors.New("config: store.max-retries cannot be negative")
	}
	if err := c.Strategies.Validate(); err != nil {
		return fmt.Errorf("config: strategies: %w", err)
	}
	_, err := c.BootstrapPools()
	return err
}

// Program returns the parsed program-id.
func (c Config) Program() (solana.PublicKey, error) {
	id, err := solana.PublicKeyFromBase58(c.ProgramID)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("config: program-id %q: %w", c.ProgramID, err)
	}
	return id, nil
}

// BootstrapPools parses the pools list.
func (c Config) BootstrapPools() ([]Pool, error) {
	pools := make([]Pool, 0, len(c.Pools))
	for i, spec := range c.Pools {
		tokenA, err := solana.PublicKeyFromBase58(spec.TokenA)
		if err != nil {
			return nil, fmt.Errorf("config: pools[%d].token-a: %w", i, err)
		}
		tokenB, err := solana.PublicKeyFromBase58(spec.TokenB)
		if err != nil {
			return nil, fmt.Errorf("config: pools[%d].token-b: %w", i, err)
		}
		if spec.FeeBps >= fixedpoint.BasisPoints {
			return nil, fmt.Errorf("config: pools[%d].fee-bps %d must be below %d", i, spec.FeeBps, fixedpoint.BasisPoints)
		}
		kind, err := engine.ParseStrategyKind(spec.Strategy)
		if err != nil {
			return nil, fmt.Errorf("config: pools[%d].strategy: %w", i, err)
		}
		pools = append(pools, Pool{TokenA: tokenA, TokenB: tokenB, FeeBps: spec.FeeBps, Strategy: kind})
	}
	return pools, nil
}
