package route

import (
	"fmt"
	"math/big"
	"sort"

	"dexsim/internal/amount"
	"dexsim/internal/model"
)

type PayableKind string

const (
	PayableOutput PayableKind = "output"
	PayableRefund PayableKind = "refund"
	PayableChange PayableKind = "change"
)

// Payable is an amount the route owes the trader when it settles.
type Payable struct {
	Node   NodeID        `json:"node"`
	Token  model.TokenID `json:"token"`
	Amount *big.Int      `json:"amount"`
	Kind   PayableKind   `json:"kind"`
}

// Step records one visited hop in visiting order.
type Step struct {
	Node      NodeID        `json:"node"`
	Pool      string        `json:"pool"`
	Operation Operation     `json:"operation"`
	TokenIn   model.TokenID `json:"token_in"`
	AmountIn  *big.Int      `json:"amount_in"`
	TokenOut  model.TokenID `json:"token_out"`
	AmountOut *big.Int      `json:"amount_out"`
	Fee       *big.Int      `json:"fee"`
	FeeToken  model.TokenID `json:"fee_token,omitempty"`
	Failed    bool          `json:"failed,omitempty"`
	Reason    string        `json:"reason,omitempty"`
	Change    []Payable     `json:"change,omitempty"`
}

// Allocation is how a hop's output was divided among its children.
type Allocation struct {
	Parent NodeID     `json:"parent"`
	Amount *big.Int   `json:"amount"`
	Shares []*big.Int `json:"shares"`
}

// PoolDelta is the net effect of a route on one pool.
type PoolDelta struct {
	Pool     string      `json:"pool"`
	Before   model.State `json:"before"`
	After    model.State `json:"after"`
	Reserves []*big.Int  `json:"reserves"`
	LPSupply *big.Int    `json:"lp_supply"`
	// AccumulatedFees is the beneficiary fee accrued during the route.
	AccumulatedFees []*big.Int `json:"accumulated_fees"`
}

func (d *PoolDelta) compute() {
	d.Reserves = signedDiff(d.After.Reserves, d.Before.Reserves)
	d.AccumulatedFees = signedDiff(d.After.AccumulatedFees, d.Before.AccumulatedFees)
	d.LPSupply = new(big.Int).Sub(amount.Clone(d.After.LPSupply), amount.Clone(d.Before.LPSupply))
}

func (d PoolDelta) Changed() bool {
	if d.LPSupply != nil && d.LPSupply.Sign() != 0 {
		return true
	}
	for _, v := range d.Reserves {
		if v.Sign() != 0 {
			return true
		}
	}
	return false
}

func signedDiff(after, before []*big.Int) []*big.Int {
	out := make([]*big.Int, len(after))
	for i := range after {
		b := amount.Zero()
		if i < len(before) && before[i] != nil {
			b = before[i]
		}
		out[i] = new(big.Int).Sub(amount.Clone(after[i]), b)
	}
	return out
}

type Result struct {
	TokenIn     model.TokenID              `json:"token_in"`
	AmountIn    *big.Int                   `json:"amount_in"`
	Steps       []Step                     `json:"steps"`
	Leaves      []Payable                  `json:"leaves"`
	Totals      map[model.TokenID]*big.Int `json:"totals"`
	Allocations []Allocation               `json:"allocations"`
	Deltas      []PoolDelta                `json:"deltas"`
}

// Total returns the summed payables in token.
func (r Result) Total(token model.TokenID) *big.Int {
	if v, ok := r.Totals[token]; ok {
		return amount.Clone(v)
	}
	return amount.Zero()
}

// Failed returns the hops that were refunded.
func (r Result) Failed() []Step {
	var out []Step
	for _, s := range r.Steps {
		if s.Failed {
			out = append(out, s)
		}
	}
	return out
}

// Delta returns the recorded change of pool id.
func (r Result) Delta(id string) (PoolDelta, bool) {
	for _, d := range r.Deltas {
		if d.Pool == id {
			return d, true
		}
	}
	return PoolDelta{}, false
}

// Tokens lists the payable tokens in sorted order.
func (r Result) Tokens() []model.TokenID {
	out := make([]model.TokenID, 0, len(r.Totals))
	for t := range r.Totals {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// CheckConservation verifies that every allocation handed out exactly the
// amount its parent produced.
func (r Result) CheckConservation() error {
	for _, a := range r.Allocations {
		sum := amount.Add(a.Shares...)
		if sum.Cmp(a.Amount) != 0 {
			return fmt.Errorf("node %d split %s into shares summing to %s", a.Parent, a.Amount, sum)
		}
	}
	return nil
}

func totals(leaves []Payable) map[model.TokenID]*big.Int {
	out := make(map[model.TokenID]*big.Int)
	for _, l := range leaves {
		v, ok := out[l.Token]
		if !ok {
			v = amount.Zero()
			out[l.Token] = v
		}
		v.Add(v, l.Amount)
	}
	return out
}
