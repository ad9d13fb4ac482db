package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Config holds configuration values loaded from flags, env, or config file.
type Config struct {
	RPCURL       string
	RPCTimeout   time.Duration
	RPCRateLimit float64
	DatabaseURL  string

	FromSlot  uint64
	ToSlot    uint64
	ChunkSize uint64

	Workers      int
	MaxRetries   int
	RetryBackoff time.Duration
	PollInterval time.Duration

	ListenAddr string
	ErrorSpill string
	LogLevel   string
}

// Load merges config file, environment variables, and flags into Config.
func Load(cfgFile string, flags *pflag.FlagSet) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("ETL")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetDefault("rpc", "https://api.mainnet-beta.solana.com")
	v.SetDefault("rpc-timeout", 30*time.Second)
	v.SetDefault("rpc-rate-limit", 10.0)
	v.SetDefault("chunk-size", uint64(100))
	v.SetDefault("workers", 4)
	v.SetDefault("max-retries", 5)
	v.SetDefault("retry-backoff", 500*time.Millisecond)
	v.SetDefault("poll-interval", 2*time.Second)
	v.SetDefault("listen", ":8080")
	v.SetDefault("error-spill", "./data/errors.jsonl")
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

	cfg := Config{
		RPCURL:       v.GetString("rpc"),
		RPCTimeout:   v.GetDuration("rpc-timeout"),
		RPCRateLimit: v.GetFloat64("rpc-rate-limit"),
		DatabaseURL:  v.GetString("database"),
		FromSlot:     v.GetUint64("from"),
		ToSlot:       v.GetUint64("to"),
		ChunkSize:    v.GetUint64("chunk-size"),
		Workers:      v.GetInt("workers"),
		MaxRetries:   v.GetInt("max-retries"),
		RetryBackoff: v.GetDuration("retry-backoff"),
		PollInterval: v.GetDuration("poll-interval"),
		ListenAddr:   v.GetString("listen"),
		ErrorSpill:   v.GetString("error-spill"),
		LogLevel:     v.GetString("log-level"),
	}

	return cfg, nil
}

// Validate checks the settings every command needs.
func (c Config) Validate() error {
	if c.RPCURL == "" {
		return fmt.Errorf("rpc url is required")
	}
	if c.DatabaseURL == "" {
		return fmt.Errorf("database url is required")
	}
	if c.ChunkSize == 0 {
		return fmt.Errorf("chunk size must be greater than zero")
	}
	return nil
}
