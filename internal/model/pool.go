package model

import (
	"encoding/json"
	"fmt"
	"math/big"
	"strings"

	"dexsim/internal/amount"
	"dexsim/internal/dexerr"
)

// Kind identifies the pricing curve of a pool.
type Kind string

const (
	KindConstantProduct Kind = "constant_product"
	KindStablePair      Kind = "stable_pair"
	KindStablePool      Kind = "stable_pool"
)

func ParseKind(value string) (Kind, error) {
	switch Kind(strings.ToLower(strings.TrimSpace(value))) {
	case KindConstantProduct, "cp", "volatile":
		return KindConstantProduct, nil
	case KindStablePair:
		return KindStablePair, nil
	case KindStablePool:
		return KindStablePool, nil
	default:
		return "", fmt.Errorf("unknown pool kind %q: %w", value, dexerr.ErrInvalidPool)
	}
}

func (k Kind) IsStable() bool {
	return k == KindStablePair || k == KindStablePool
}

// Amplification is the stableswap A coefficient scaled by Precision.
type Amplification struct {
	Value     uint64 `json:"value"`
	Precision uint64 `json:"precision"`
}

// State is a full snapshot of a pool: reserves, LP supply, fee parameters
// and beneficiary fees accrued since the last withdrawal.
type State struct {
	ID              string
	Kind            Kind
	Tokens          []Token
	LPToken         TokenID
	Reserves        []*big.Int
	LPSupply        *big.Int
	Fee             FeeParams
	AccumulatedFees []*big.Int
	Amplification   Amplification
}

// Active reports whether the pool has received its first deposit.
func (s State) Active() bool {
	return s.LPSupply != nil && s.LPSupply.Sign() > 0
}

// TokenIndex returns the position of token in the pool, or -1.
func (s State) TokenIndex(token TokenID) int {
	want := token.Normalize()
	for i, t := range s.Tokens {
		if t.ID.Normalize() == want {
			return i
		}
	}
	return -1
}

func (s State) IsLPToken(token TokenID) bool {
	return s.LPToken != "" && s.LPToken.Normalize() == token.Normalize()
}

func (s State) Clone() State {
	out := s
	out.Tokens = append([]Token(nil), s.Tokens...)
	out.Reserves = amount.CloneAll(s.Reserves)
	out.LPSupply = amount.Clone(s.LPSupply)
	out.AccumulatedFees = amount.CloneAll(s.AccumulatedFees)
	out.Fee = s.Fee.Clone()
	return out
}

// CheckWords fails when an amount of s cannot be stored in a 256-bit ledger
// word, which is the case for states built off-chain by hand.
func (s State) CheckWords() error {
	check := func(field string, values ...*big.Int) error {
		for i, v := range values {
			if v != nil && !amount.FitsWord(v) {
				return fmt.Errorf("pool %s: %s[%d] exceeds 256 bits: %w", s.ID, field, i, dexerr.ErrInvalidPool)
			}
		}
		return nil
	}
	if err := check("reserves", s.Reserves...); err != nil {
		return err
	}
	if err := check("accumulated_fees", s.AccumulatedFees...); err != nil {
		return err
	}
	return check("lp_supply", s.LPSupply)
}

// Validate checks structural consistency for the pool kind.
func (s State) Validate() error {
	n := len(s.Tokens)
	switch s.Kind {
	case KindConstantProduct, KindStablePair:
		if n != 2 {
			return fmt.Errorf("pool %s: %s needs 2 tokens, got %d: %w", s.ID, s.Kind, n, dexerr.ErrInvalidPool)
		}
	case KindStablePool:
		if n < 2 {
			return fmt.Errorf("pool %s: stable pool needs at least 2 tokens, got %d: %w", s.ID, n, dexerr.ErrInvalidPool)
		}
	default:
		return fmt.Errorf("pool %s: unknown kind %q: %w", s.ID, s.Kind, dexerr.ErrInvalidPool)
	}
	if len(s.Reserves) != n {
		return fmt.Errorf("pool %s: %d reserves for %d tokens: %w", s.ID, len(s.Reserves), n, dexerr.ErrInvalidPool)
	}
	if len(s.AccumulatedFees) != n {
		return fmt.Errorf("pool %s: %d accumulated fees for %d tokens: %w", s.ID, len(s.AccumulatedFees), n, dexerr.ErrInvalidPool)
	}
	seen := make(map[TokenID]struct{}, n)
	for _, t := range s.Tokens {
		id := t.ID.Normalize()
		if id == "" {
			return fmt.Errorf("pool %s: empty token id: %w", s.ID, dexerr.ErrInvalidPool)
		}
		if _, dup := seen[id]; dup {
			return fmt.Errorf("pool %s: duplicate token %s: %w", s.ID, t.ID, dexerr.ErrInvalidPool)
		}
		seen[id] = struct{}{}
	}
	if err := amount.Validate(s.Reserves...); err != nil {
		return fmt.Errorf("pool %s reserves: %w", s.ID, err)
	}
	if err := amount.Validate(s.AccumulatedFees...); err != nil {
		return fmt.Errorf("pool %s accumulated fees: %w", s.ID, err)
	}
	if err := amount.Validate(s.LPSupply); err != nil {
		return fmt.Errorf("pool %s lp supply: %w", s.ID, err)
	}
	if err := s.Fee.Validate(); err != nil {
		return fmt.Errorf("pool %s: %w", s.ID, err)
	}
	if s.Kind.IsStable() {
		a := s.Amplification
		if a.Precision == 0 || a.Value*uint64(n) <= a.Precision {
			return fmt.Errorf("pool %s: amplification %d/%d too small: %w", s.ID, a.Value, a.Precision, dexerr.ErrInvalidPool)
		}
	}
	return nil
}

type stateJSON struct {
	ID              string        `json:"id"`
	Kind            Kind          `json:"kind"`
	Tokens          []Token       `json:"tokens"`
	LPToken         TokenID       `json:"lp_token,omitempty"`
	Reserves        []string      `json:"reserves"`
	LPSupply        string        `json:"lp_supply"`
	Fee             FeeParams     `json:"fee"`
	AccumulatedFees []string      `json:"accumulated_fees,omitempty"`
	Amplification   Amplification `json:"amplification"`
}

// MarshalJSON encodes amounts as base-10 strings.
func (s State) MarshalJSON() ([]byte, error) {
	return json.Marshal(stateJSON{
		ID:              s.ID,
		Kind:            s.Kind,
		Tokens:          s.Tokens,
		LPToken:         s.LPToken,
		Reserves:        bigStrings(s.Reserves),
		LPSupply:        bigString(s.LPSupply),
		Fee:             s.Fee,
		AccumulatedFees: bigStrings(s.AccumulatedFees),
		Amplification:   s.Amplification,
	})
}

// UnmarshalJSON decodes a State. Missing accumulated fees default to zero.
func (s *State) UnmarshalJSON(data []byte) error {
	var raw stateJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	reserves, err := parseBigs(raw.Reserves)
	if err != nil {
		return fmt.Errorf("reserves: %w", err)
	}
	lpSupply, err := parseBig(raw.LPSupply)
	if err != nil {
		return fmt.Errorf("lp_supply: %w", err)
	}
	accumulated, err := parseBigs(raw.AccumulatedFees)
	if err != nil {
		return fmt.Errorf("accumulated_fees: %w", err)
	}
	if len(accumulated) == 0 {
		accumulated = amount.Zeros(len(raw.Tokens))
	}
	*s = State{
		ID:              raw.ID,
		Kind:            raw.Kind,
		Tokens:          raw.Tokens,
		LPToken:         raw.LPToken,
		Reserves:        reserves,
		LPSupply:        lpSupply,
		Fee:             raw.Fee,
		AccumulatedFees: accumulated,
		Amplification:   raw.Amplification,
	}
	return nil
}

func bigString(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

func bigStrings(values []*big.Int) []string {
	out := make([]string, len(values))
	for i, v := range values {
		out[i] = bigString(v)
	}
	return out
}

func parseBig(value string) (*big.Int, error) {
	return amount.Parse(value)
}

func parseBigs(values []string) ([]*big.Int, error) {
	out := make([]*big.Int, len(values))
	for i, v := range values {
		parsed, err := parseBig(v)
		if err != nil {
			return nil, err
		}
		out[i] = parsed
	}
	return out, nil
}
