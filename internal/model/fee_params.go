package model

import (
	"encoding/json"
	"fmt"
	"math/big"

	"dexsim/internal/dexerr"
)

// FeeParams holds a pool's fee configuration. Numerators are relative to
// Denominator; their sum is the total fee rate charged on a trade.
type FeeParams struct {
	Denominator          uint64
	PoolNumerator        uint64
	BeneficiaryNumerator uint64
	ReferrerNumerator    uint64
	Beneficiary          string
	// Thresholds is the accrued beneficiary fee per token at which a
	// withdrawal becomes due.
	Thresholds map[TokenID]*big.Int
	// ReferrerThresholds is the minimum referrer share per token; below it
	// the referrer is skipped for that trade.
	ReferrerThresholds map[TokenID]*big.Int
}

func (p FeeParams) TotalNumerator() uint64 {
	return p.PoolNumerator + p.BeneficiaryNumerator + p.ReferrerNumerator
}

func (p FeeParams) Validate() error {
	if p.Denominator == 0 {
		return fmt.Errorf("fee denominator is zero: %w", dexerr.ErrInvalidPool)
	}
	if p.TotalNumerator() >= p.Denominator {
		return fmt.Errorf("fee numerators %d exceed denominator %d: %w", p.TotalNumerator(), p.Denominator, dexerr.ErrInvalidPool)
	}
	for token, v := range p.Thresholds {
		if v == nil || v.Sign() < 0 {
			return fmt.Errorf("threshold for %s: %w", token, dexerr.ErrInvalidAmount)
		}
	}
	for token, v := range p.ReferrerThresholds {
		if v == nil || v.Sign() < 0 {
			return fmt.Errorf("referrer threshold for %s: %w", token, dexerr.ErrInvalidAmount)
		}
	}
	return nil
}

func (p FeeParams) Clone() FeeParams {
	out := p
	out.Thresholds = cloneThresholds(p.Thresholds)
	out.ReferrerThresholds = cloneThresholds(p.ReferrerThresholds)
	return out
}

// Threshold returns the beneficiary threshold for token, or nil if unset.
func (p FeeParams) Threshold(token TokenID) *big.Int {
	return lookupThreshold(p.Thresholds, token)
}

func (p FeeParams) ReferrerThreshold(token TokenID) *big.Int {
	return lookupThreshold(p.ReferrerThresholds, token)
}

func lookupThreshold(m map[TokenID]*big.Int, token TokenID) *big.Int {
	if len(m) == 0 {
		return nil
	}
	if v, ok := m[token]; ok {
		return v
	}
	return m[token.Normalize()]
}

func cloneThresholds(in map[TokenID]*big.Int) map[TokenID]*big.Int {
	if in == nil {
		return nil
	}
	out := make(map[TokenID]*big.Int, len(in))
	for k, v := range in {
		if v == nil {
			out[k] = nil
			continue
		}
		out[k] = new(big.Int).Set(v)
	}
	return out
}

type feeParamsJSON struct {
	Denominator          uint64            `json:"denominator"`
	PoolNumerator        uint64            `json:"pool_numerator"`
	BeneficiaryNumerator uint64            `json:"beneficiary_numerator"`
	ReferrerNumerator    uint64            `json:"referrer_numerator"`
	Beneficiary          string            `json:"beneficiary,omitempty"`
	Thresholds           map[string]string `json:"thresholds,omitempty"`
	ReferrerThresholds   map[string]string `json:"referrer_thresholds,omitempty"`
}

func (p FeeParams) MarshalJSON() ([]byte, error) {
	return json.Marshal(feeParamsJSON{
		Denominator:          p.Denominator,
		PoolNumerator:        p.PoolNumerator,
		BeneficiaryNumerator: p.BeneficiaryNumerator,
		ReferrerNumerator:    p.ReferrerNumerator,
		Beneficiary:          p.Beneficiary,
		Thresholds:           encodeThresholds(p.Thresholds),
		ReferrerThresholds:   encodeThresholds(p.ReferrerThresholds),
	})
}

func (p *FeeParams) UnmarshalJSON(data []byte) error {
	var raw feeParamsJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	thresholds, err := decodeThresholds(raw.Thresholds)
	if err != nil {
		return fmt.Errorf("thresholds: %w", err)
	}
	refThresholds, err := decodeThresholds(raw.ReferrerThresholds)
	if err != nil {
		return fmt.Errorf("referrer thresholds: %w", err)
	}
	*p = FeeParams{
		Denominator:          raw.Denominator,
		PoolNumerator:        raw.PoolNumerator,
		BeneficiaryNumerator: raw.BeneficiaryNumerator,
		ReferrerNumerator:    raw.ReferrerNumerator,
		Beneficiary:          raw.Beneficiary,
		Thresholds:           thresholds,
		ReferrerThresholds:   refThresholds,
	}
	return nil
}

func encodeThresholds(in map[TokenID]*big.Int) map[string]string {
	if len(in) == 0 {
		return nil
	}
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[string(k)] = bigString(v)
	}
	return out
}

func decodeThresholds(in map[string]string) (map[TokenID]*big.Int, error) {
	if len(in) == 0 {
		return nil, nil
	}
	out := make(map[TokenID]*big.Int, len(in))
	for k, v := range in {
		parsed, err := parseBig(v)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", k, err)
		}
		out[TokenID(k)] = parsed
	}
	return out, nil
}
