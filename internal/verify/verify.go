// Package verify checks simulated results against what the ledger recorded.
package verify

import (
	"fmt"
	"math/big"

	"dexsim/internal/dex"
	"dexsim/internal/model"
	"dexsim/internal/pool"
)

// Mismatch is one field where the simulation and the ledger disagree.
type Mismatch struct {
	Field    string `json:"field"`
	Expected string `json:"expected"`
	Actual   string `json:"actual"`
}

func (m Mismatch) String() string {
	return fmt.Sprintf("%s: expected %s, got %s", m.Field, m.Expected, m.Actual)
}

// Compare lists the differences between an expected and an actual pool
// state. Identity and amounts are compared; fee configuration is not.
func Compare(expected, actual model.State) []Mismatch {
	var out []Mismatch
	add := func(field, want, got string) {
		if want != got {
			out = append(out, Mismatch{Field: field, Expected: want, Actual: got})
		}
	}

	add("id", expected.ID, actual.ID)
	add("kind", string(expected.Kind), string(actual.Kind))
	add("tokens", fmt.Sprint(len(expected.Tokens)), fmt.Sprint(len(actual.Tokens)))
	for i := 0; i < len(expected.Tokens) && i < len(actual.Tokens); i++ {
		add(fmt.Sprintf("tokens[%d]", i), string(expected.Tokens[i].ID.Normalize()), string(actual.Tokens[i].ID.Normalize()))
	}
	compareAmounts(add, "reserves", expected.Reserves, actual.Reserves)
	compareAmounts(add, "accumulated_fees", expected.AccumulatedFees, actual.AccumulatedFees)
	add("lp_supply", str(expected.LPSupply), str(actual.LPSupply))
	return out
}

func compareAmounts(add func(string, string, string), field string, expected, actual []*big.Int) {
	n := len(expected)
	if len(actual) > n {
		n = len(actual)
	}
	for i := 0; i < n; i++ {
		var want, got *big.Int
		if i < len(expected) {
			want = expected[i]
		}
		if i < len(actual) {
			got = actual[i]
		}
		add(fmt.Sprintf("%s[%d]", field, i), str(want), str(got))
	}
}

func str(v *big.Int) string {
	if v == nil {
		return "<nil>"
	}
	return v.String()
}

// EventCheck is the outcome of replaying one ledger exchange.
type EventCheck struct {
	Event      dex.ExchangeEvent `json:"event"`
	AmountOut  *big.Int          `json:"amount_out,omitempty"`
	Fee        *big.Int          `json:"fee,omitempty"`
	Error      string            `json:"error,omitempty"`
	Mismatches []Mismatch        `json:"mismatches,omitempty"`
}

func (c EventCheck) OK() bool {
	return c.Error == "" && len(c.Mismatches) == 0
}

// ReplayExchanges applies events to p in order and compares each simulated
// output and fee with the logged one. An event the engine rejects is
// recorded and skipped, leaving p as it was before that event.
func ReplayExchanges(p pool.Pool, events []dex.ExchangeEvent) []EventCheck {
	checks := make([]EventCheck, 0, len(events))
	for _, ev := range events {
		check := EventCheck{Event: ev}
		res, err := p.Exchange(ev.TokenIn, ev.TokenOut, ev.AmountIn, ev.Referred)
		if err != nil {
			check.Error = err.Error()
			checks = append(checks, check)
			continue
		}
		check.AmountOut = res.AmountOut
		check.Fee = res.Fee
		if res.AmountOut.Cmp(ev.AmountOut) != 0 {
			check.Mismatches = append(check.Mismatches, Mismatch{Field: "amount_out", Expected: ev.AmountOut.String(), Actual: res.AmountOut.String()})
		}
		if ev.Fee != nil && res.Fee.Cmp(ev.Fee) != 0 {
			check.Mismatches = append(check.Mismatches, Mismatch{Field: "fee", Expected: ev.Fee.String(), Actual: res.Fee.String()})
		}
		checks = append(checks, check)
	}
	return checks
}
