// Package amount implements exact non-negative integer arithmetic with
// explicit rounding on every division.
package amount

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/holiman/uint256"

	"dexsim/internal/dexerr"
)

// Rounding selects the direction of an integer division.
type Rounding int

const (
	Floor Rounding = iota
	Ceil
)

func (r Rounding) String() string {
	if r == Ceil {
		return "ceil"
	}
	return "floor"
}

func Zero() *big.Int {
	return new(big.Int)
}

func New(v uint64) *big.Int {
	return new(big.Int).SetUint64(v)
}

// Parse reads a base-10 non-negative integer. An empty string is zero.
func Parse(value string) (*big.Int, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return Zero(), nil
	}
	parsed, ok := new(big.Int).SetString(value, 10)
	if !ok {
		return nil, fmt.Errorf("parse %q: %w", value, dexerr.ErrInvalidAmount)
	}
	if parsed.Sign() < 0 {
		return nil, fmt.Errorf("negative amount %s: %w", value, dexerr.ErrInvalidAmount)
	}
	return parsed, nil
}

func MustParse(value string) *big.Int {
	v, err := Parse(value)
	if err != nil {
		panic(err)
	}
	return v
}

// Validate fails when any value is nil or negative.
func Validate(values ...*big.Int) error {
	for i, v := range values {
		if v == nil {
			return fmt.Errorf("amount %d is nil: %w", i, dexerr.ErrInvalidAmount)
		}
		if v.Sign() < 0 {
			return fmt.Errorf("amount %d is negative (%s): %w", i, v, dexerr.ErrInvalidAmount)
		}
	}
	return nil
}

// Div divides x by y with the given rounding. It panics if y is zero.
func Div(x, y *big.Int, r Rounding) *big.Int {
	q, m := new(big.Int).QuoRem(x, y, new(big.Int))
	if r == Ceil && m.Sign() != 0 {
		q.Add(q, big.NewInt(1))
	}
	return q
}

// MulDiv computes x*y/d with the given rounding. It panics if d is zero.
func MulDiv(x, y, d *big.Int, r Rounding) *big.Int {
	return Div(new(big.Int).Mul(x, y), d, r)
}

// Sub returns x-y, or false when the result would be negative.
func Sub(x, y *big.Int) (*big.Int, bool) {
	if x.Cmp(y) < 0 {
		return nil, false
	}
	return new(big.Int).Sub(x, y), true
}

func Add(values ...*big.Int) *big.Int {
	out := Zero()
	for _, v := range values {
		if v != nil {
			out.Add(out, v)
		}
	}
	return out
}

func Min(x, y *big.Int) *big.Int {
	if x.Cmp(y) <= 0 {
		return new(big.Int).Set(x)
	}
	return new(big.Int).Set(y)
}

func Max(x, y *big.Int) *big.Int {
	if x.Cmp(y) >= 0 {
		return new(big.Int).Set(x)
	}
	return new(big.Int).Set(y)
}

func AbsDiff(x, y *big.Int) *big.Int {
	d := new(big.Int).Sub(x, y)
	return d.Abs(d)
}

// Sqrt returns floor(sqrt(x)).
func Sqrt(x *big.Int) *big.Int {
	return new(big.Int).Sqrt(x)
}

func Pow10(n uint8) *big.Int {
	return new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(n)), nil)
}

func Clone(x *big.Int) *big.Int {
	if x == nil {
		return Zero()
	}
	return new(big.Int).Set(x)
}

func CloneAll(values []*big.Int) []*big.Int {
	if values == nil {
		return nil
	}
	out := make([]*big.Int, len(values))
	for i, v := range values {
		out[i] = Clone(v)
	}
	return out
}

func Zeros(n int) []*big.Int {
	out := make([]*big.Int, n)
	for i := range out {
		out[i] = Zero()
	}
	return out
}

func IsZero(x *big.Int) bool {
	return x == nil || x.Sign() == 0
}

// FitsWord reports whether x is representable as an unsigned 256-bit ledger word.
func FitsWord(x *big.Int) bool {
	if x == nil || x.Sign() < 0 {
		return false
	}
	_, overflow := uint256.FromBig(x)
	return !overflow
}
