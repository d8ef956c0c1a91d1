// Package report renders pool states and simulation results for people.
package report

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/shopspring/decimal"

	"dexsim/internal/dexerr"
	"dexsim/internal/model"
)

// Amount renders a raw integer amount in whole token units.
func Amount(raw *big.Int, decimals uint8) string {
	if raw == nil {
		return "0"
	}
	return decimal.NewFromBigInt(raw, -int32(decimals)).String()
}

// ParseAmount converts a whole-unit decimal string into a raw amount. It
// rejects negative values and precision finer than decimals allows.
func ParseAmount(value string, decimals uint8) (*big.Int, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(value))
	if err != nil {
		return nil, fmt.Errorf("parse %q: %w", value, dexerr.ErrInvalidAmount)
	}
	if d.IsNegative() {
		return nil, fmt.Errorf("negative amount %s: %w", value, dexerr.ErrInvalidAmount)
	}
	scaled := d.Shift(int32(decimals))
	if !scaled.Equal(scaled.Truncate(0)) {
		return nil, fmt.Errorf("%s exceeds %d decimals: %w", value, decimals, dexerr.ErrInvalidAmount)
	}
	return scaled.BigInt(), nil
}

// FeeRate renders numerator/denominator as a percentage.
func FeeRate(numerator, denominator uint64) string {
	if denominator == 0 {
		return "0%"
	}
	num := decimal.NewFromBigInt(new(big.Int).SetUint64(numerator), 2)
	pct := num.Div(decimal.NewFromBigInt(new(big.Int).SetUint64(denominator), 0))
	return pct.Round(6).String() + "%"
}

// Tokens indexes token metadata for labels and decimals.
type Tokens map[model.TokenID]model.Token

// TokensOf collects the tokens of states. LP tokens are assumed to carry
// the largest decimals of their pool.
func TokensOf(states ...model.State) Tokens {
	out := make(Tokens)
	for _, st := range states {
		var maxDec uint8
		for _, t := range st.Tokens {
			out[t.ID.Normalize()] = t
			if t.Decimals > maxDec {
				maxDec = t.Decimals
			}
		}
		if st.LPToken != "" {
			if _, ok := out[st.LPToken.Normalize()]; !ok {
				out[st.LPToken.Normalize()] = model.Token{ID: st.LPToken, Decimals: maxDec, Symbol: st.ID + "-LP"}
			}
		}
	}
	return out
}

func (t Tokens) Label(id model.TokenID) string {
	if tok, ok := t[id.Normalize()]; ok && tok.Symbol != "" {
		return tok.Symbol
	}
	return string(id)
}

func (t Tokens) Amount(id model.TokenID, raw *big.Int) string {
	tok, ok := t[id.Normalize()]
	if !ok {
		return raw.String()
	}
	return Amount(raw, tok.Decimals)
}
