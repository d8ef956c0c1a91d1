package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"dexsim/internal/chain"
	"dexsim/internal/config"
	"dexsim/internal/ledger"
	"dexsim/internal/storage/postgres"
)

func main() {
	root := &cobra.Command{
		Use:          "dexsim",
		Short:        "Deterministic DEX quoting and route simulation",
		SilenceUsage: true,
	}

	root.PersistentFlags().String("config", "", "config file path")

	root.AddCommand(newQuoteCmd())
	root.AddCommand(newRouteCmd())
	root.AddCommand(newSnapshotCmd())
	root.AddCommand(newVerifyCmd())

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

// addSourceFlags registers the flags selecting where pool states come from.
func addSourceFlags(flags *pflag.FlagSet) {
	flags.String("snapshots", "", "pool snapshot JSONL file")
	flags.String("pg-dsn", "", "Postgres DSN holding pool snapshots")
	flags.String("rpc", "", "RPC URL to read pool contracts from")
	flags.Uint64("block", 0, "block height to read at, 0 means latest")
	flags.Int("max-retries", 5, "maximum retry attempts for RPC reads")
	flags.Duration("retry-backoff", 500*time.Millisecond, "initial retry backoff")
	flags.String("log-level", "info", "log level (debug, info, warn, error)")
}

// openReader picks the pool state source: a snapshot file, then Postgres,
// then the RPC endpoint.
func openReader(ctx context.Context, cfg config.Config, logger *zap.Logger) (ledger.Reader, func(), error) {
	switch {
	case cfg.Snapshots != "":
		reader, err := ledger.NewFileReader(cfg.Snapshots)
		if err != nil {
			return nil, nil, err
		}
		logger.Info("reading snapshots", zap.String("path", cfg.Snapshots), zap.Int("pools", len(reader.PoolIDs())))
		return reader, func() {}, nil
	case cfg.PGDSN != "":
		store, err := postgres.NewStore(ctx, cfg.PGDSN)
		if err != nil {
			return nil, nil, fmt.Errorf("connect postgres: %w", err)
		}
		if cfg.Block > 0 {
			return store.AtBlock(cfg.Block), store.Close, nil
		}
		return store, store.Close, nil
	case cfg.RPCURL != "":
		client, err := chain.NewClient(ctx, cfg.RPCURL)
		if err != nil {
			return nil, nil, fmt.Errorf("connect rpc: %w", err)
		}
		reader := ledger.NewChainReader(client, ledger.ChainReaderConfig{
			MaxRetries:   cfg.MaxRetries,
			RetryBackoff: cfg.RetryBackoff,
		}, logger)
		if cfg.Block > 0 {
			reader = reader.AtBlock(cfg.Block)
		}
		return reader, client.Close, nil
	default:
		return nil, nil, fmt.Errorf("one of --snapshots, --pg-dsn or --rpc is required")
	}
}

func newChainReader(ctx context.Context, cfg config.LedgerConfig, logger *zap.Logger) (*chain.Client, *ledger.ChainReader, error) {
	client, err := chain.NewClient(ctx, cfg.RPCURL)
	if err != nil {
		return nil, nil, fmt.Errorf("connect rpc: %w", err)
	}
	reader := ledger.NewChainReader(client, ledger.ChainReaderConfig{
		MaxRetries:   cfg.MaxRetries,
		RetryBackoff: cfg.RetryBackoff,
	}, logger)
	return client, reader, nil
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
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
