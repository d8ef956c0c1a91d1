// Package fees splits trade fees between the pool, the protocol
// beneficiary and an optional referrer.
package fees

import (
	"math/big"

	"dexsim/internal/amount"
	"dexsim/internal/model"
)

// Split is the division of one fee amount. The shares always sum to the
// total that was split.
type Split struct {
	Pool        *big.Int `json:"pool"`
	Beneficiary *big.Int `json:"beneficiary"`
	Referrer    *big.Int `json:"referrer"`
}

func (s Split) Total() *big.Int {
	return amount.Add(s.Pool, s.Beneficiary, s.Referrer)
}

// Leaving is the part of the fee that leaves the pool reserves.
func (s Split) Leaving() *big.Int {
	return amount.Add(s.Beneficiary, s.Referrer)
}

// Charge returns ceil(value * totalNumerator / denominator).
func Charge(value *big.Int, params model.FeeParams) *big.Int {
	if params.Denominator == 0 {
		return amount.Zero()
	}
	return amount.MulDiv(value, amount.New(params.TotalNumerator()), amount.New(params.Denominator), amount.Ceil)
}

// SplitFee divides total between pool, beneficiary and referrer. The pool
// share rounds up, the referrer share rounds down and the beneficiary takes
// the remainder.
func SplitFee(total *big.Int, params model.FeeParams, hasReferrer bool) Split {
	out := Split{Pool: amount.Zero(), Beneficiary: amount.Zero(), Referrer: amount.Zero()}
	if total == nil || total.Sign() <= 0 {
		return out
	}

	poolNum := amount.New(params.PoolNumerator)
	if hasReferrer {
		sum := amount.New(params.TotalNumerator())
		if sum.Sign() == 0 {
			out.Beneficiary.Set(total)
			return out
		}
		out.Referrer = amount.MulDiv(total, amount.New(params.ReferrerNumerator), sum, amount.Floor)
		out.Pool = amount.MulDiv(total, poolNum, sum, amount.Ceil)
	} else {
		sum := amount.New(params.PoolNumerator + params.BeneficiaryNumerator)
		if sum.Sign() == 0 {
			out.Beneficiary.Set(total)
			return out
		}
		out.Pool = amount.MulDiv(total, poolNum, sum, amount.Ceil)
	}
	out.Beneficiary = new(big.Int).Sub(total, out.Pool)
	out.Beneficiary.Sub(out.Beneficiary, out.Referrer)
	return out
}

// SplitFor splits a fee collected in token. When the referrer share would
// fall below the pool's referrer threshold for that token, the fee is split
// as if the trade had no referrer.
func SplitFor(total *big.Int, params model.FeeParams, token model.TokenID, hasReferrer bool) Split {
	split := SplitFee(total, params, hasReferrer)
	if !hasReferrer {
		return split
	}
	if minShare := params.ReferrerThreshold(token); minShare != nil && split.Referrer.Cmp(minShare) < 0 {
		return SplitFee(total, params, false)
	}
	return split
}
