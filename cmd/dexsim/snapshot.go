package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"dexsim/internal/config"
	"dexsim/internal/ledger"
	"dexsim/internal/model"
	"dexsim/internal/storage"
	"dexsim/internal/storage/postgres"
)

func newSnapshotCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "snapshot",
		Short: "Read pool states from the chain and store them",
		RunE:  runSnapshot,
	}

	cmd.Flags().String("rpc", "", "RPC URL")
	cmd.Flags().StringSlice("pool", nil, "pool contract addresses (comma-separated)")
	cmd.Flags().Uint64("block", 0, "block height, 0 means latest")
	cmd.Flags().String("out", "", "append snapshots to this JSONL file")
	cmd.Flags().String("pg-dsn", "", "Postgres DSN")
	cmd.Flags().Bool("init-schema", false, "create the Postgres tables if missing")
	cmd.Flags().Int("max-retries", 5, "maximum retry attempts")
	cmd.Flags().Duration("retry-backoff", 500*time.Millisecond, "initial retry backoff")
	cmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")
	return cmd
}

func runSnapshot(cmd *cobra.Command, _ []string) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.LoadLedger(cfgFile, cmd.Flags())
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	addresses, err := ledger.ParseAddresses(cfg.Pools)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client, reader, err := newChainReader(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer client.Close()

	chainID, err := client.ChainID(ctx)
	if err != nil {
		return fmt.Errorf("chain id: %w", err)
	}
	block := cfg.Block
	if block == 0 {
		if block, err = client.LatestBlockNumber(ctx); err != nil {
			return fmt.Errorf("latest block: %w", err)
		}
	}
	ts, err := client.BlockTimestamp(ctx, block)
	if err != nil {
		return fmt.Errorf("block %d timestamp: %w", block, err)
	}
	reader = reader.AtBlock(block)

	var sinks []storage.Storage
	if cfg.Out != "" {
		sinks = append(sinks, storage.NewJsonlStorage(cfg.Out))
	}
	if cfg.PGDSN != "" {
		store, err := postgres.NewStore(ctx, cfg.PGDSN)
		if err != nil {
			return fmt.Errorf("connect postgres: %w", err)
		}
		defer store.Close()
		if cfg.InitSchema {
			if err := store.EnsureSchema(ctx); err != nil {
				return fmt.Errorf("init schema: %w", err)
			}
		}
		sinks = append(sinks, store)
	}

	logger.Info("snapshot start",
		zap.String("rpc", cfg.RPCURL),
		zap.Uint64("chain_id", chainID.Uint64()),
		zap.Uint64("block", block),
		zap.Int("pools", len(addresses)),
		zap.String("out", cfg.Out),
		zap.Bool("postgres", cfg.PGDSN != ""),
	)

	takenAt := time.Now().UTC().Format(time.RFC3339)
	snapshots := make([]model.Snapshot, 0, len(addresses))
	for _, addr := range addresses {
		st, err := reader.ReadPoolState(ctx, addr.Hex())
		if err != nil {
			return fmt.Errorf("read pool %s: %w", addr.Hex(), err)
		}
		snapshots = append(snapshots, model.Snapshot{
			ChainID:     chainID.Uint64(),
			BlockNumber: block,
			Timestamp:   ts,
			State:       st,
			TakenAt:     takenAt,
		})
	}

	if len(sinks) == 0 {
		w := cmd.OutOrStdout()
		for _, snap := range snapshots {
			if err := writeJSON(w, snap); err != nil {
				return err
			}
		}
		return nil
	}
	for _, sink := range sinks {
		if err := sink.PutSnapshots(ctx, snapshots); err != nil {
			return fmt.Errorf("store snapshots: %w", err)
		}
	}
	logger.Info("snapshot done", zap.Int("pools", len(snapshots)), zap.Uint64("block", block))
	return nil
}
