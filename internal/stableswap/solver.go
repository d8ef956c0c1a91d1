// Package stableswap solves the stableswap invariant with bounded Newton
// iteration.
package stableswap

import (
	"fmt"
	"math/big"

	"dexsim/internal/amount"
	"dexsim/internal/dexerr"
	"dexsim/internal/model"
)

const DefaultMaxIterations = 255

var one = big.NewInt(1)

// Solver computes D and solves single balances against a target D. Every
// loop stops once two consecutive iterates differ by at most one, or fails
// with dexerr.ErrConvergenceFailed after MaxIterations rounds.
type Solver struct {
	MaxIterations int
}

func NewSolver() Solver {
	return Solver{MaxIterations: DefaultMaxIterations}
}

func (s Solver) iterations() int {
	if s.MaxIterations <= 0 {
		return DefaultMaxIterations
	}
	return s.MaxIterations
}

func ann(amp model.Amplification, n int) *big.Int {
	return new(big.Int).Mul(amount.New(amp.Value), big.NewInt(int64(n)))
}

func checkAmp(amp model.Amplification, n int) error {
	if n < 2 {
		return fmt.Errorf("need at least 2 balances, got %d: %w", n, dexerr.ErrInvalidPool)
	}
	if amp.Precision == 0 || amp.Value*uint64(n) <= amp.Precision {
		return fmt.Errorf("amplification %d/%d: %w", amp.Value, amp.Precision, dexerr.ErrInvalidPool)
	}
	return nil
}

func converged(a, b *big.Int) bool {
	return amount.AbsDiff(a, b).Cmp(one) <= 0
}

// ComputeD returns the invariant for normalized balances xp. Empty
// balances give zero; a zero balance among non-zero ones is an error.
func (s Solver) ComputeD(xp []*big.Int, amp model.Amplification) (*big.Int, error) {
	n := len(xp)
	if err := checkAmp(amp, n); err != nil {
		return nil, err
	}
	sum := amount.Add(xp...)
	if sum.Sign() == 0 {
		return amount.Zero(), nil
	}
	for i, x := range xp {
		if x.Sign() <= 0 {
			return nil, fmt.Errorf("balance %d is empty: %w", i, dexerr.ErrInsufficientLiquidity)
		}
	}

	N := big.NewInt(int64(n))
	prec := amount.New(amp.Precision)
	annN := ann(amp, n)
	annMinusPrec := new(big.Int).Sub(annN, prec)

	d := new(big.Int).Set(sum)
	for k := 0; k < s.iterations(); k++ {
		dp := new(big.Int).Set(d)
		for _, x := range xp {
			dp = amount.MulDiv(dp, d, new(big.Int).Mul(x, N), amount.Floor)
		}
		prev := d
		// D = (Ann*S/P + Dp*N) * D / ((Ann-P)*D/P + (N+1)*Dp)
		num := amount.MulDiv(annN, sum, prec, amount.Floor)
		num.Add(num, new(big.Int).Mul(dp, N))
		den := amount.MulDiv(annMinusPrec, d, prec, amount.Floor)
		den.Add(den, new(big.Int).Mul(dp, big.NewInt(int64(n+1))))
		if den.Sign() <= 0 {
			return nil, fmt.Errorf("compute D: degenerate denominator: %w", dexerr.ErrConvergenceFailed)
		}
		d = amount.MulDiv(num, prev, den, amount.Floor)
		if converged(d, prev) {
			return d, nil
		}
	}
	return nil, fmt.Errorf("compute D after %d iterations: %w", s.iterations(), dexerr.ErrConvergenceFailed)
}

// SolveY returns the balance of token j that keeps D constant once the
// balance of token i is set to x.
func (s Solver) SolveY(xp []*big.Int, amp model.Amplification, i, j int, x, d *big.Int) (*big.Int, error) {
	n := len(xp)
	if err := checkAmp(amp, n); err != nil {
		return nil, err
	}
	if i == j || i < 0 || j < 0 || i >= n || j >= n {
		return nil, fmt.Errorf("solve y: bad indexes %d->%d: %w", i, j, dexerr.ErrUnknownToken)
	}
	balances := make([]*big.Int, 0, n-1)
	for k := 0; k < n; k++ {
		switch k {
		case i:
			balances = append(balances, x)
		case j:
		default:
			balances = append(balances, xp[k])
		}
	}
	return s.solve(balances, amp, n, d)
}

// SolveYD returns the balance of token i that yields invariant d with all
// other balances fixed.
func (s Solver) SolveYD(xp []*big.Int, amp model.Amplification, i int, d *big.Int) (*big.Int, error) {
	n := len(xp)
	if err := checkAmp(amp, n); err != nil {
		return nil, err
	}
	if i < 0 || i >= n {
		return nil, fmt.Errorf("solve y: bad index %d: %w", i, dexerr.ErrUnknownToken)
	}
	balances := make([]*big.Int, 0, n-1)
	for k := 0; k < n; k++ {
		if k != i {
			balances = append(balances, xp[k])
		}
	}
	return s.solve(balances, amp, n, d)
}

// solve runs y = (y^2 + c) / (2y + b - D) over the fixed balances.
func (s Solver) solve(fixed []*big.Int, amp model.Amplification, n int, d *big.Int) (*big.Int, error) {
	if d == nil || d.Sign() <= 0 {
		return nil, fmt.Errorf("solve y: empty invariant: %w", dexerr.ErrInsufficientLiquidity)
	}
	N := big.NewInt(int64(n))
	prec := amount.New(amp.Precision)
	annN := ann(amp, n)

	c := new(big.Int).Set(d)
	sum := amount.Zero()
	for _, x := range fixed {
		if x.Sign() <= 0 {
			return nil, fmt.Errorf("solve y: empty balance: %w", dexerr.ErrInsufficientLiquidity)
		}
		sum.Add(sum, x)
		c = amount.MulDiv(c, d, new(big.Int).Mul(x, N), amount.Floor)
	}
	c = amount.MulDiv(c, new(big.Int).Mul(d, prec), new(big.Int).Mul(annN, N), amount.Floor)
	b := new(big.Int).Add(sum, amount.MulDiv(d, prec, annN, amount.Floor))

	y := new(big.Int).Set(d)
	for k := 0; k < s.iterations(); k++ {
		prev := y
		num := new(big.Int).Mul(y, y)
		num.Add(num, c)
		den := new(big.Int).Lsh(y, 1)
		den.Add(den, b)
		den.Sub(den, d)
		if den.Sign() <= 0 {
			return nil, fmt.Errorf("solve y: degenerate denominator: %w", dexerr.ErrConvergenceFailed)
		}
		y = amount.Div(num, den, amount.Floor)
		if converged(y, prev) {
			return y, nil
		}
	}
	return nil, fmt.Errorf("solve y after %d iterations: %w", s.iterations(), dexerr.ErrConvergenceFailed)
}
