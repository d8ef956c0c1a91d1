package config

import (
	"fmt"
	"time"

	"github.com/spf13/pflag"
)

// LedgerConfig holds settings for the commands that read the ledger
// directly (snapshot, verify).
type LedgerConfig struct {
	RPCURL       string
	Pools        []string
	Block        uint64
	Out          string
	PGDSN        string
	InitSchema   bool
	MaxRetries   int
	RetryBackoff time.Duration
	LogLevel     string
}

// LoadLedger merges config file, environment variables, and flags into
// LedgerConfig.
func LoadLedger(cfgFile string, flags *pflag.FlagSet) (LedgerConfig, error) {
	v, err := newViper(cfgFile, flags, map[string]interface{}{
		"max-retries":   5,
		"retry-backoff": 500 * time.Millisecond,
		"log-level":     "info",
	})
	if err != nil {
		return LedgerConfig{}, err
	}

	cfg := LedgerConfig{
		RPCURL:       v.GetString("rpc"),
		Pools:        getStringSlice(v, "pool"),
		Block:        v.GetUint64("block"),
		Out:          v.GetString("out"),
		PGDSN:        v.GetString("pg-dsn"),
		InitSchema:   v.GetBool("init-schema"),
		MaxRetries:   v.GetInt("max-retries"),
		RetryBackoff: v.GetDuration("retry-backoff"),
		LogLevel:     v.GetString("log-level"),
	}
	if cfg.RPCURL == "" {
		return LedgerConfig{}, fmt.Errorf("rpc url is required")
	}
	if len(cfg.Pools) == 0 {
		return LedgerConfig{}, fmt.Errorf("at least one pool is required")
	}
	return cfg, nil
}
