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
	"dexsim/internal/dex"
	"dexsim/internal/ledger"
	"dexsim/internal/model"
	"dexsim/internal/pool"
	"dexsim/internal/report"
	"dexsim/internal/verify"
)

func newVerifyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Replay a block's exchanges and compare the model against the chain",
		Long: "verify reads each pool at block-1, replays the Exchange events of block " +
			"through the model and compares the result with the pool read at block. " +
			"Blocks with deposits or withdrawals on the pool will report state mismatches.",
		RunE: runVerify,
	}

	cmd.Flags().String("rpc", "", "RPC URL (archive node for historical blocks)")
	cmd.Flags().StringSlice("pool", nil, "pool contract addresses (comma-separated)")
	cmd.Flags().Uint64("block", 0, "block to verify")
	cmd.Flags().String("format", "table", "output format (table, json)")
	cmd.Flags().Int("max-retries", 5, "maximum retry attempts")
	cmd.Flags().Duration("retry-backoff", 500*time.Millisecond, "initial retry backoff")
	cmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")
	return cmd
}

type verifyOutput struct {
	Pool       string              `json:"pool"`
	Block      uint64              `json:"block"`
	Events     []dex.ExchangeEvent `json:"events"`
	Checks     []verify.EventCheck `json:"checks"`
	Mismatches []verify.Mismatch   `json:"mismatches"`
	State      model.State         `json:"state"`
}

func runVerify(cmd *cobra.Command, _ []string) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.LoadLedger(cfgFile, cmd.Flags())
	if err != nil {
		return err
	}
	format, _ := cmd.Flags().GetString("format")
	if format != "table" && format != "json" {
		return fmt.Errorf("unsupported format %q", format)
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	if cfg.Block == 0 {
		return fmt.Errorf("block is required")
	}
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

	logger.Info("verify start",
		zap.String("rpc", cfg.RPCURL),
		zap.Uint64("block", cfg.Block),
		zap.Int("pools", len(addresses)),
	)

	failed := 0
	for _, addr := range addresses {
		out, err := verifyPool(ctx, reader, dex.AddressID(addr), cfg.Block)
		if err != nil {
			return err
		}
		ok := len(out.Mismatches) == 0
		for _, c := range out.Checks {
			ok = ok && c.OK()
		}
		if !ok {
			failed++
		}
		logger.Info("pool verified",
			zap.String("pool", out.Pool),
			zap.Int("events", len(out.Events)),
			zap.Int("mismatches", len(out.Mismatches)),
			zap.Bool("ok", ok),
		)

		w := cmd.OutOrStdout()
		if format == "json" {
			if err := writeJSON(w, out); err != nil {
				return err
			}
			continue
		}
		report.Verification(w, out.Pool, out.Mismatches, out.Checks)
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d pools did not match at block %d", failed, len(addresses), cfg.Block)
	}
	return nil
}

func verifyPool(ctx context.Context, reader *ledger.ChainReader, poolID string, block uint64) (verifyOutput, error) {
	before, err := reader.AtBlock(block-1).ReadPoolState(ctx, poolID)
	if err != nil {
		return verifyOutput{}, fmt.Errorf("read pool %s at %d: %w", poolID, block-1, err)
	}
	after, err := reader.AtBlock(block).ReadPoolState(ctx, poolID)
	if err != nil {
		return verifyOutput{}, fmt.Errorf("read pool %s at %d: %w", poolID, block, err)
	}
	events, err := reader.ExchangeEvents(ctx, poolID, block)
	if err != nil {
		return verifyOutput{}, err
	}

	p, err := pool.New(before)
	if err != nil {
		return verifyOutput{}, err
	}
	checks := verify.ReplayExchanges(p, events)
	modelled := p.State()
	return verifyOutput{
		Pool:       poolID,
		Block:      block,
		Events:     events,
		Checks:     checks,
		Mismatches: verify.Compare(after, modelled),
		State:      modelled,
	}, nil
}
