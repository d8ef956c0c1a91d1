package main

import (
	"context"
	"encoding/json"
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
	"dexsim/internal/report"
	"dexsim/internal/route"
	"dexsim/internal/stableswap"
	"dexsim/internal/storage"
	"dexsim/internal/storage/postgres"
)

func newRouteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "route",
		Short: "Simulate a route request through a tree of pools",
		RunE:  runRoute,
	}

	addSourceFlags(cmd.Flags())
	cmd.Flags().String("file", "", "route request JSON file")
	cmd.Flags().StringSlice("pool", nil, "extra pools to load besides the ones the route visits")
	cmd.Flags().Bool("referrer", false, "the caller has a referrer (overrides the request when set)")
	cmd.Flags().String("out", "", "append the run record to this JSONL file")
	cmd.Flags().Bool("save-runs", false, "store the run record in Postgres (requires --pg-dsn)")
	cmd.Flags().String("format", "table", "output format (table, json)")
	cmd.Flags().Int("max-iterations", stableswap.DefaultMaxIterations, "stable invariant solver iteration cap")
	return cmd
}

func runRoute(cmd *cobra.Command, _ []string) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(cfgFile, cmd.Flags())
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	file, _ := cmd.Flags().GetString("file")
	if file == "" {
		return fmt.Errorf("route file is required")
	}
	req, err := route.LoadRequest(file)
	if err != nil {
		return err
	}
	tree, err := req.Route.Build()
	if err != nil {
		return err
	}
	amountIn, err := req.Amount()
	if err != nil {
		return err
	}
	hasReferrer := req.HasReferrer || cfg.HasReferrer

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	reader, closeReader, err := openReader(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeReader()

	ids := req.Route.Pools()
	seen := make(map[string]bool, len(ids))
	for _, id := range ids {
		seen[id] = true
	}
	for _, id := range cfg.Pools {
		if !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}
	reg, err := ledger.LoadRegistry(ctx, reader, ids)
	if err != nil {
		return err
	}
	reg.SetSolver(stableswap.Solver{MaxIterations: cfg.MaxIterations})

	logger.Info("route start",
		zap.String("root_pool", req.RootPool),
		zap.String("token_in", string(req.TokenIn)),
		zap.String("amount_in", amountIn.String()),
		zap.Int("nodes", tree.Len()),
		zap.Int("pools", reg.Len()),
		zap.Bool("referrer", hasReferrer),
	)

	res, simErr := route.Simulate(reg, req.RootPool, req.TokenIn, amountIn, tree, hasReferrer, logger)
	if simErr == nil {
		if err := res.CheckConservation(); err != nil {
			return err
		}
	}

	run, err := newRouteRun(req, amountIn.String(), hasReferrer, res, simErr)
	if err != nil {
		return err
	}
	if err := saveRouteRun(ctx, cmd, cfg, run); err != nil {
		return err
	}

	w := cmd.OutOrStdout()
	if cfg.Format == "json" {
		if err := writeJSON(w, run); err != nil {
			return err
		}
	} else {
		report.Route(w, res, report.TokensOf(reg.States()...))
	}
	if simErr != nil {
		return fmt.Errorf("simulate route: %w", simErr)
	}
	return nil
}

func newRouteRun(req route.Request, amountIn string, hasReferrer bool, res route.Result, simErr error) (model.RouteRun, error) {
	raw, err := json.Marshal(res)
	if err != nil {
		return model.RouteRun{}, fmt.Errorf("marshal route result: %w", err)
	}
	totals := make(map[string]string, len(res.Totals))
	for token, v := range res.Totals {
		totals[string(token)] = v.String()
	}
	run := model.RouteRun{
		RootPool:    req.RootPool,
		TokenIn:     req.TokenIn,
		AmountIn:    amountIn,
		HasReferrer: hasReferrer,
		StepCount:   len(res.Steps),
		FailedCount: len(res.Failed()),
		Totals:      totals,
		Result:      raw,
		CreatedAt:   time.Now().UTC(),
	}
	if simErr != nil {
		run.Error = simErr.Error()
	}
	return run, nil
}

func saveRouteRun(ctx context.Context, cmd *cobra.Command, cfg config.Config, run model.RouteRun) error {
	var sinks []storage.Storage
	if cfg.Out != "" {
		sinks = append(sinks, storage.NewJsonlStorage(cfg.Out))
	}
	saveRuns, _ := cmd.Flags().GetBool("save-runs")
	if saveRuns {
		if cfg.PGDSN == "" {
			return fmt.Errorf("--save-runs requires --pg-dsn")
		}
		store, err := postgres.NewStore(ctx, cfg.PGDSN)
		if err != nil {
			return fmt.Errorf("connect postgres: %w", err)
		}
		defer store.Close()
		sinks = append(sinks, store)
	}
	for _, sink := range sinks {
		if err := sink.PutRouteRuns(ctx, []model.RouteRun{run}); err != nil {
			return fmt.Errorf("store route run: %w", err)
		}
	}
	return nil
}
