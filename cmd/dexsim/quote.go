package main

import (
	"context"
	"fmt"
	"math/big"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"dexsim/internal/amount"
	"dexsim/internal/config"
	"dexsim/internal/model"
	"dexsim/internal/pool"
	"dexsim/internal/report"
	"dexsim/internal/stableswap"
)

func newQuoteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "quote",
		Short: "Quote a single pool operation",
		RunE:  runQuote,
	}

	addSourceFlags(cmd.Flags())
	cmd.Flags().StringSlice("pool", nil, "pool id to quote against")
	cmd.Flags().String("op", "exchange", "operation (exchange, spend, deposit, deposit-one, withdraw, withdraw-one)")
	cmd.Flags().String("token-in", "", "token paid in (exchange, spend)")
	cmd.Flags().String("token-out", "", "token received (exchange, spend)")
	cmd.Flags().String("token", "", "token of a one-coin deposit or withdrawal")
	cmd.Flags().String("amount", "", "amount in, LP amount for withdrawals, or amount out for spend")
	cmd.Flags().StringSlice("amounts", nil, "per-token deposit amounts in pool token order")
	cmd.Flags().Bool("human", false, "amounts are decimal token units instead of raw integers")
	cmd.Flags().Bool("auto-change", false, "swap the unbalanced part of a constant product deposit")
	cmd.Flags().Bool("referrer", false, "the caller has a referrer")
	cmd.Flags().String("format", "table", "output format (table, json)")
	cmd.Flags().Int("max-iterations", stableswap.DefaultMaxIterations, "stable invariant solver iteration cap")
	return cmd
}

type quoteOutput struct {
	Pool      string      `json:"pool"`
	Operation string      `json:"operation"`
	Result    interface{} `json:"result"`
	State     model.State `json:"state_after"`
}

func runQuote(cmd *cobra.Command, _ []string) error {
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

	if len(cfg.Pools) != 1 {
		return fmt.Errorf("exactly one pool is required, got %d", len(cfg.Pools))
	}
	poolID := cfg.Pools[0]

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	reader, closeReader, err := openReader(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeReader()

	st, err := reader.ReadPoolState(ctx, poolID)
	if err != nil {
		return fmt.Errorf("read pool %s: %w", poolID, err)
	}
	p, err := pool.New(st)
	if err != nil {
		return err
	}
	if s, ok := p.(*pool.Stable); ok {
		s.WithSolver(stableswap.Solver{MaxIterations: cfg.MaxIterations})
	}

	op, _ := cmd.Flags().GetString("op")
	human, _ := cmd.Flags().GetBool("human")
	autoChange, _ := cmd.Flags().GetBool("auto-change")
	tokenIn, _ := cmd.Flags().GetString("token-in")
	tokenOut, _ := cmd.Flags().GetString("token-out")
	token, _ := cmd.Flags().GetString("token")
	rawAmount, _ := cmd.Flags().GetString("amount")
	rawAmounts, _ := cmd.Flags().GetStringSlice("amounts")

	tokens := report.TokensOf(st)
	parse := func(id model.TokenID, value string) (*big.Int, error) {
		if value == "" {
			return nil, fmt.Errorf("amount is required")
		}
		if human {
			return report.ParseAmount(value, tokens[id].Decimals)
		}
		return amount.Parse(value)
	}

	logger.Info("quote start",
		zap.String("pool", poolID),
		zap.String("kind", string(st.Kind)),
		zap.String("op", op),
		zap.Bool("referrer", cfg.HasReferrer),
	)

	var (
		result interface{}
		quote  report.Quote
	)
	switch op {
	case "exchange":
		in, err := parse(model.TokenID(tokenIn), rawAmount)
		if err != nil {
			return err
		}
		res, err := p.Exchange(model.TokenID(tokenIn), model.TokenID(tokenOut), in, cfg.HasReferrer)
		if err != nil {
			return err
		}
		result, quote = res, report.ExchangeQuote(res)
	case "spend":
		cp, ok := p.(*pool.ConstantProduct)
		if !ok {
			return fmt.Errorf("spend quotes need a constant product pool, %s is %s", poolID, st.Kind)
		}
		out, err := parse(model.TokenID(tokenOut), rawAmount)
		if err != nil {
			return err
		}
		spend, err := cp.ExpectedSpend(model.TokenID(tokenIn), model.TokenID(tokenOut), out)
		if err != nil {
			return err
		}
		result = map[string]string{"token_in": tokenIn, "amount_in": spend.String(), "token_out": tokenOut, "amount_out": out.String()}
		quote = report.Quote{
			Operation: op,
			Spent:     []report.Leg{{Token: model.TokenID(tokenIn), Amount: spend}},
			Received:  []report.Leg{{Token: model.TokenID(tokenOut), Amount: out}},
		}
	case "deposit":
		if len(rawAmounts) != len(st.Tokens) {
			return fmt.Errorf("deposit needs %d amounts, got %d", len(st.Tokens), len(rawAmounts))
		}
		amounts := make([]*big.Int, len(rawAmounts))
		for i, raw := range rawAmounts {
			if amounts[i], err = parse(st.Tokens[i].ID, raw); err != nil {
				return fmt.Errorf("amount %d: %w", i, err)
			}
		}
		res, err := p.Deposit(amounts, autoChange, cfg.HasReferrer)
		if err != nil {
			return err
		}
		result, quote = res, report.DepositQuote(op, st, res)
	case "deposit-one":
		in, err := parse(model.TokenID(token), rawAmount)
		if err != nil {
			return err
		}
		res, err := p.DepositOneCoin(model.TokenID(token), in, cfg.HasReferrer)
		if err != nil {
			return err
		}
		result, quote = res, report.DepositQuote(op, st, res)
	case "withdraw":
		lp, err := parse(st.LPToken, rawAmount)
		if err != nil {
			return err
		}
		res, err := p.Withdraw(lp)
		if err != nil {
			return err
		}
		result, quote = res, report.WithdrawQuote(op, st, res)
	case "withdraw-one":
		lp, err := parse(st.LPToken, rawAmount)
		if err != nil {
			return err
		}
		res, err := p.WithdrawOneCoin(lp, model.TokenID(token), cfg.HasReferrer)
		if err != nil {
			return err
		}
		result, quote = res, report.WithdrawQuote(op, st, res)
	default:
		return fmt.Errorf("unsupported operation %q", op)
	}

	after := p.State()
	w := cmd.OutOrStdout()
	if cfg.Format == "json" {
		return writeJSON(w, quoteOutput{Pool: poolID, Operation: op, Result: result, State: after})
	}
	report.RenderQuote(w, st, quote)
	report.Pool(w, after)
	return nil
}
