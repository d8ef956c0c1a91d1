package stableswap

import (
	"errors"
	"math/big"
	"testing"

	"dexsim/internal/amount"
	"dexsim/internal/dexerr"
	"dexsim/internal/model"
)

var testAmp = model.Amplification{Value: 10_000, Precision: 100}

func balances(values ...int64) []*big.Int {
	out := make([]*big.Int, len(values))
	for i, v := range values {
		out[i] = big.NewInt(v)
	}
	return out
}

func TestComputeDBalanced(t *testing.T) {
	d, err := NewSolver().ComputeD(balances(1_000_000, 1_000_000), testAmp)
	if err != nil {
		t.Fatalf("compute D: %v", err)
	}
	if d.Int64() != 2_000_000 {
		t.Fatalf("expected D=2000000 for balanced pool, got %s", d)
	}
}

func TestComputeDImbalancedBelowSum(t *testing.T) {
	xp := balances(1_500_000, 500_000, 1_000_000)
	d, err := NewSolver().ComputeD(xp, testAmp)
	if err != nil {
		t.Fatalf("compute D: %v", err)
	}
	sum := amount.Add(xp...)
	if d.Cmp(sum) > 0 {
		t.Fatalf("D %s should not exceed sum %s", d, sum)
	}
	if d.Cmp(big.NewInt(2_900_000)) < 0 {
		t.Fatalf("D %s unexpectedly far below sum for high amplification", d)
	}
}

func TestComputeDEmpty(t *testing.T) {
	d, err := NewSolver().ComputeD(balances(0, 0), testAmp)
	if err != nil || d.Sign() != 0 {
		t.Fatalf("expected zero D, got %v %v", d, err)
	}
	if _, err := NewSolver().ComputeD(balances(0, 5), testAmp); !errors.Is(err, dexerr.ErrInsufficientLiquidity) {
		t.Fatalf("expected ErrInsufficientLiquidity, got %v", err)
	}
}

func TestComputeDIterationCap(t *testing.T) {
	solver := Solver{MaxIterations: 1}
	_, err := solver.ComputeD(balances(1_000_000_000, 1_000), testAmp)
	if !errors.Is(err, dexerr.ErrConvergenceFailed) {
		t.Fatalf("expected ErrConvergenceFailed, got %v", err)
	}
}

func TestSolveYKeepsInvariant(t *testing.T) {
	solver := NewSolver()
	xp := balances(1_000_000, 1_000_000)
	d, err := solver.ComputeD(xp, testAmp)
	if err != nil {
		t.Fatalf("compute D: %v", err)
	}

	y, err := solver.SolveY(xp, testAmp, 0, 1, big.NewInt(1_000_000), d)
	if err != nil {
		t.Fatalf("solve y: %v", err)
	}
	if amount.AbsDiff(y, big.NewInt(1_000_000)).Cmp(big.NewInt(2)) > 0 {
		t.Fatalf("unchanged input should keep output balance, got %s", y)
	}

	y, err = solver.SolveY(xp, testAmp, 0, 1, big.NewInt(1_001_000), d)
	if err != nil {
		t.Fatalf("solve y: %v", err)
	}
	out := new(big.Int).Sub(big.NewInt(1_000_000), y)
	if out.Sign() <= 0 || out.Cmp(big.NewInt(1_000)) > 0 {
		t.Fatalf("expected output in (0, 1000], got %s", out)
	}
	if out.Cmp(big.NewInt(990)) < 0 {
		t.Fatalf("balanced stable pool should trade near 1:1, got %s", out)
	}
}

func TestSolveYDMatchesBalance(t *testing.T) {
	solver := NewSolver()
	xp := balances(2_000_000, 1_000_000, 1_500_000)
	d, err := solver.ComputeD(xp, testAmp)
	if err != nil {
		t.Fatalf("compute D: %v", err)
	}
	y, err := solver.SolveYD(xp, testAmp, 1, d)
	if err != nil {
		t.Fatalf("solve yd: %v", err)
	}
	if amount.AbsDiff(y, xp[1]).Cmp(big.NewInt(2)) > 0 {
		t.Fatalf("expected %s, got %s", xp[1], y)
	}

	lower := new(big.Int).Sub(d, big.NewInt(100_000))
	y2, err := solver.SolveYD(xp, testAmp, 1, lower)
	if err != nil {
		t.Fatalf("solve yd: %v", err)
	}
	if y2.Cmp(y) >= 0 {
		t.Fatalf("lower invariant should need a smaller balance: %s >= %s", y2, y)
	}
}

func TestSolveYBadIndex(t *testing.T) {
	xp := balances(1, 1)
	if _, err := NewSolver().SolveY(xp, testAmp, 0, 0, big.NewInt(1), big.NewInt(2)); !errors.Is(err, dexerr.ErrUnknownToken) {
		t.Fatalf("expected ErrUnknownToken, got %v", err)
	}
}
