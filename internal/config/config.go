// Package config loads command settings from flags, DEXSIM_* environment
// variables and an optional config file.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const envPrefix = "DEXSIM"

// Config holds settings for the quoting commands (quote, route).
type Config struct {
	// Snapshots is a JSONL snapshot file; when empty the pools are read
	// from Postgres or, failing that, from the RPC endpoint.
	Snapshots     string
	PGDSN         string
	RPCURL        string
	Block         uint64
	Pools         []string
	Out           string
	Format        string
	HasReferrer   bool
	MaxIterations int
	MaxRetries    int
	RetryBackoff  time.Duration
	LogLevel      string
}

// Load merges config file, environment variables, and flags into Config.
func Load(cfgFile string, flags *pflag.FlagSet) (Config, error) {
	v, err := newViper(cfgFile, flags, map[string]interface{}{
		"format":         "table",
		"max-iterations": 255,
		"max-retries":    5,
		"retry-backoff":  500 * time.Millisecond,
		"log-level":      "info",
	})
	if err != nil {
		return Config{}, err
	}

	cfg := Config{
		Snapshots:     v.GetString("snapshots"),
		PGDSN:         v.GetString("pg-dsn"),
		RPCURL:        v.GetString("rpc"),
		Block:         v.GetUint64("block"),
		Pools:         getStringSlice(v, "pool"),
		Out:           v.GetString("out"),
		Format:        strings.ToLower(v.GetString("format")),
		HasReferrer:   v.GetBool("referrer"),
		MaxIterations: v.GetInt("max-iterations"),
		MaxRetries:    v.GetInt("max-retries"),
		RetryBackoff:  v.GetDuration("retry-backoff"),
		LogLevel:      v.GetString("log-level"),
	}
	if cfg.Format != "table" && cfg.Format != "json" {
		return Config{}, fmt.Errorf("unsupported format %q", cfg.Format)
	}
	return cfg, nil
}

func newViper(cfgFile string, flags *pflag.FlagSet, defaults map[string]interface{}) (*viper.Viper, error) {
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	if flags != nil {
		if err := v.BindPFlags(flags); err != nil {
			return nil, fmt.Errorf("bind flags: %w", err)
		}
	}

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
	} else {
		v.SetConfigName("dexsim")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return nil, fmt.Errorf("read config: %w", err)
			}
		}
	}
	return v, nil
}

func getStringSlice(v *viper.Viper, key string) []string {
	if !v.IsSet(key) {
		return nil
	}

	val := v.Get(key)
	switch typed := val.(type) {
	case []string:
		return cleanStrings(typed)
	case string:
		return splitAndClean(typed)
	case []interface{}:
		items := make([]string, 0, len(typed))
		for _, item := range typed {
			items = append(items, fmt.Sprintf("%v", item))
		}
		return cleanStrings(items)
	default:
		return nil
	}
}

func splitAndClean(input string) []string {
	if input == "" {
		return nil
	}
	return cleanStrings(strings.Split(input, ","))
}

func cleanStrings(items []string) []string {
	out := make([]string, 0, len(items))
	for _, item := range items {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		out = append(out, item)
	}
	return out
}
