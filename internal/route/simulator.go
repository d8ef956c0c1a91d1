package route

import (
	"fmt"
	"math/big"

	"go.uber.org/zap"

	"dexsim/internal/amount"
	"dexsim/internal/dexerr"
	"dexsim/internal/model"
	"dexsim/internal/pool"
)

// Operation is the pool call a hop maps to.
type Operation string

const (
	OpExchange        Operation = "exchange"
	OpDepositOneCoin  Operation = "deposit_one_coin"
	OpWithdrawOneCoin Operation = "withdraw_one_coin"
)

// Classify picks the operation for spending token in p towards outcoming.
func Classify(p pool.Pool, token, outcoming model.TokenID) Operation {
	lp := p.LPToken()
	switch {
	case lp != "" && token.Normalize() == lp.Normalize():
		return OpWithdrawOneCoin
	case lp != "" && outcoming.Normalize() == lp.Normalize():
		return OpDepositOneCoin
	default:
		return OpExchange
	}
}

// Simulator walks route trees over a registry, applying every hop to the
// registry's pools as it goes.
type Simulator struct {
	registry    *pool.Registry
	logger      *zap.Logger
	HasReferrer bool
}

func NewSimulator(registry *pool.Registry, logger *zap.Logger) *Simulator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Simulator{registry: registry, logger: logger}
}

// Simulate quotes a route against a copy of registry; registry itself is
// left untouched.
func Simulate(registry *pool.Registry, rootPool string, tokenIn model.TokenID, amountIn *big.Int, tree *Tree, hasReferrer bool, logger *zap.Logger) (Result, error) {
	sim := NewSimulator(registry.Clone(), logger)
	sim.HasReferrer = hasReferrer
	return sim.Run(rootPool, tokenIn, amountIn, tree)
}

// Run settles tokenIn/amountIn through tree depth first. Pool changes are
// applied immediately, so a pool visited twice sees its first visit. A
// failed hop refunds its share without touching any pool and skips its
// subtree. Any pool error aborts the run; hops already applied stay applied.
func (s *Simulator) Run(rootPool string, tokenIn model.TokenID, amountIn *big.Int, tree *Tree) (Result, error) {
	if err := tree.Validate(); err != nil {
		return Result{}, err
	}
	if err := amount.Validate(amountIn); err != nil {
		return Result{}, err
	}
	root := tree.Node(tree.Root())
	if root.Pool != rootPool {
		return Result{}, fmt.Errorf("root hop uses pool %s, expected %s: %w", root.Pool, rootPool, dexerr.ErrInvalidRoute)
	}

	w := &walk{
		sim:    s,
		tree:   tree,
		deltas: make(map[string]int),
		result: Result{
			TokenIn:  tokenIn,
			AmountIn: amount.Clone(amountIn),
		},
	}
	err := w.visit(tree.Root(), tokenIn, amount.Clone(amountIn))
	w.finish()
	if err != nil {
		return w.result, err
	}

	s.logger.Debug("route simulated",
		zap.String("root_pool", rootPool),
		zap.String("token_in", string(tokenIn)),
		zap.String("amount_in", amountIn.String()),
		zap.Int("steps", len(w.result.Steps)),
		zap.Int("leaves", len(w.result.Leaves)),
	)
	return w.result, nil
}

type walk struct {
	sim    *Simulator
	tree   *Tree
	deltas map[string]int
	result Result
}

func (w *walk) visit(id NodeID, token model.TokenID, share *big.Int) error {
	node := w.tree.Node(id)
	p, err := w.sim.registry.Get(node.Pool)
	if err != nil {
		return fmt.Errorf("node %d: %w", id, err)
	}
	w.track(p)

	step := Step{
		Node:      id,
		Pool:      node.Pool,
		Operation: Classify(p, token, node.Outcoming),
		TokenIn:   token,
		AmountIn:  amount.Clone(share),
		TokenOut:  node.Outcoming,
		AmountOut: amount.Zero(),
		Fee:       amount.Zero(),
	}

	if node.Failed {
		return w.refund(step, "reverted")
	}

	if share.Sign() > 0 {
		next := p.Clone()
		if err := w.apply(next, &step); err != nil {
			return fmt.Errorf("node %d (%s in pool %s): %w", id, step.Operation, node.Pool, err)
		}
		if node.MinAmountOut != nil && step.AmountOut.Cmp(node.MinAmountOut) < 0 {
			return w.refund(step, dexerr.ErrSlippage.Error())
		}
		w.sim.registry.Put(next)
	}

	w.sim.logger.Debug("route step",
		zap.Int("node", int(id)),
		zap.String("pool", node.Pool),
		zap.String("op", string(step.Operation)),
		zap.String("token_in", string(token)),
		zap.String("amount_in", share.String()),
		zap.String("token_out", string(node.Outcoming)),
		zap.String("amount_out", step.AmountOut.String()),
	)
	w.result.Steps = append(w.result.Steps, step)
	w.result.Leaves = append(w.result.Leaves, step.Change...)

	children := w.tree.Children(id)
	if len(children) == 0 {
		w.result.Leaves = append(w.result.Leaves, Payable{
			Node:   id,
			Token:  node.Outcoming,
			Amount: amount.Clone(step.AmountOut),
			Kind:   PayableOutput,
		})
		return nil
	}

	numerators := make([]uint64, len(children))
	for i, c := range children {
		numerators[i] = w.tree.Node(c).Numerator
	}
	shares := SplitAmount(step.AmountOut, numerators)
	w.result.Allocations = append(w.result.Allocations, Allocation{
		Parent: id,
		Amount: amount.Clone(step.AmountOut),
		Shares: shares,
	})
	for i, c := range children {
		if err := w.visit(c, node.Outcoming, shares[i]); err != nil {
			return err
		}
	}
	return nil
}

// apply runs the hop on p, filling the step's output.
func (w *walk) apply(p pool.Pool, step *Step) error {
	ref := w.sim.HasReferrer
	switch step.Operation {
	case OpWithdrawOneCoin:
		res, err := p.WithdrawOneCoin(step.AmountIn, step.TokenOut, ref)
		if err != nil {
			return err
		}
		i, err := p.TokenIndex(step.TokenOut)
		if err != nil {
			return err
		}
		step.AmountOut = amount.Clone(res.AmountOf(i))
		step.Fee = amount.Add(res.Fees...)
		step.FeeToken = step.TokenOut
		if res.Swap != nil {
			step.FeeToken = res.Swap.FeeToken
		}
	case OpDepositOneCoin:
		res, err := p.DepositOneCoin(step.TokenIn, step.AmountIn, ref)
		if err != nil {
			return err
		}
		step.AmountOut = amount.Clone(res.LPReward)
		step.Fee = amount.Add(res.Fees...)
		step.FeeToken = step.TokenIn
		for i, c := range res.Change {
			if c.Sign() == 0 {
				continue
			}
			step.Change = append(step.Change, Payable{
				Node:   step.Node,
				Token:  p.Tokens()[i].ID,
				Amount: amount.Clone(c),
				Kind:   PayableChange,
			})
		}
	default:
		res, err := p.Exchange(step.TokenIn, step.TokenOut, step.AmountIn, ref)
		if err != nil {
			return err
		}
		step.AmountOut = res.AmountOut
		step.Fee = res.Fee
		step.FeeToken = res.FeeToken
	}
	return nil
}

func (w *walk) refund(step Step, reason string) error {
	step.Failed = true
	step.Reason = reason
	step.AmountOut = amount.Zero()
	step.Fee = amount.Zero()
	step.Change = nil
	w.sim.logger.Debug("route step failed",
		zap.Int("node", int(step.Node)),
		zap.String("pool", step.Pool),
		zap.String("reason", reason),
		zap.String("refund", step.AmountIn.String()),
	)
	w.result.Steps = append(w.result.Steps, step)
	w.result.Leaves = append(w.result.Leaves, Payable{
		Node:   step.Node,
		Token:  step.TokenIn,
		Amount: amount.Clone(step.AmountIn),
		Kind:   PayableRefund,
	})
	return nil
}

func (w *walk) track(p pool.Pool) {
	if _, ok := w.deltas[p.ID()]; ok {
		return
	}
	w.deltas[p.ID()] = len(w.result.Deltas)
	w.result.Deltas = append(w.result.Deltas, PoolDelta{Pool: p.ID(), Before: p.State()})
}

func (w *walk) finish() {
	for i := range w.result.Deltas {
		d := &w.result.Deltas[i]
		p, err := w.sim.registry.Get(d.Pool)
		if err != nil {
			continue
		}
		d.After = p.State()
		d.compute()
	}
	w.result.Totals = totals(w.result.Leaves)
}
