// Package pool models the three pool kinds behind one operation contract.
// Every operation computes on a private copy of the state and replaces the
// pool's state only when it succeeds.
package pool

import (
	"fmt"
	"math/big"

	"dexsim/internal/amount"
	"dexsim/internal/dexerr"
	"dexsim/internal/fees"
	"dexsim/internal/model"
)

// Pool is a stateful model of one ledger pool. Implementations are not
// safe for concurrent use.
type Pool interface {
	ID() string
	Kind() model.Kind
	LPToken() model.TokenID
	Tokens() []model.Token
	TokenIndex(token model.TokenID) (int, error)
	// State returns a deep copy of the current state.
	State() model.State

	Exchange(tokenIn, tokenOut model.TokenID, amountIn *big.Int, hasReferrer bool) (ExchangeResult, error)
	Deposit(amounts []*big.Int, autoChange, hasReferrer bool) (DepositResult, error)
	DepositOneCoin(token model.TokenID, amountIn *big.Int, hasReferrer bool) (DepositResult, error)
	Withdraw(lpAmount *big.Int) (WithdrawResult, error)
	WithdrawOneCoin(lpAmount *big.Int, token model.TokenID, hasReferrer bool) (WithdrawResult, error)

	// WithdrawBeneficiaryFees pays out and zeroes the accrued beneficiary fees.
	WithdrawBeneficiaryFees() []*big.Int
	// BeneficiaryFeesDue lists tokens whose accrued fees reached their threshold.
	BeneficiaryFeesDue() []model.TokenID

	Clone() Pool
}

type ExchangeResult struct {
	TokenIn   model.TokenID `json:"token_in"`
	TokenOut  model.TokenID `json:"token_out"`
	AmountIn  *big.Int      `json:"amount_in"`
	AmountOut *big.Int      `json:"amount_out"`
	Fee       *big.Int      `json:"fee"`
	FeeToken  model.TokenID `json:"fee_token"`
	FeeSplit  fees.Split    `json:"fee_split"`
}

// DepositResult reports a deposit. Amounts echoes the input and Change is
// what the depositor gets back, possibly in a token they did not deposit.
// Steps holds the proportional and post-swap rewards of a constant product
// deposit.
type DepositResult struct {
	Amounts  []*big.Int      `json:"amounts"`
	Change   []*big.Int      `json:"change"`
	Fees     []*big.Int      `json:"fees"`
	LPReward *big.Int        `json:"lp_reward"`
	Steps    []*big.Int      `json:"steps,omitempty"`
	Swap     *ExchangeResult `json:"swap,omitempty"`
	Splits   []fees.Split    `json:"fee_splits,omitempty"`
}

type WithdrawResult struct {
	LPAmount *big.Int        `json:"lp_amount"`
	Amounts  []*big.Int      `json:"amounts"`
	Fees     []*big.Int      `json:"fees"`
	Swap     *ExchangeResult `json:"swap,omitempty"`
}

// AmountOf returns the amount paid out in token index i.
func (r WithdrawResult) AmountOf(i int) *big.Int {
	if i < 0 || i >= len(r.Amounts) {
		return amount.Zero()
	}
	return r.Amounts[i]
}

// New builds the pool model for state's kind. The state is copied.
func New(state model.State) (Pool, error) {
	if err := state.Validate(); err != nil {
		return nil, err
	}
	s := state.Clone()
	switch s.Kind {
	case model.KindConstantProduct:
		return &ConstantProduct{base: base{state: s}}, nil
	case model.KindStablePair, model.KindStablePool:
		return newStable(s), nil
	default:
		return nil, fmt.Errorf("pool %s: kind %q: %w", s.ID, s.Kind, dexerr.ErrInvalidPool)
	}
}

type base struct {
	state model.State
}

func (b *base) ID() string             { return b.state.ID }
func (b *base) Kind() model.Kind       { return b.state.Kind }
func (b *base) LPToken() model.TokenID { return b.state.LPToken }
func (b *base) State() model.State     { return b.state.Clone() }

func (b *base) Tokens() []model.Token {
	return append([]model.Token(nil), b.state.Tokens...)
}

func (b *base) TokenIndex(token model.TokenID) (int, error) {
	return tokenIndex(b.state, token)
}

func (b *base) WithdrawBeneficiaryFees() []*big.Int {
	out := amount.CloneAll(b.state.AccumulatedFees)
	b.state.AccumulatedFees = amount.Zeros(len(b.state.Tokens))
	return out
}

func (b *base) BeneficiaryFeesDue() []model.TokenID {
	var due []model.TokenID
	for i, token := range b.state.Tokens {
		threshold := b.state.Fee.Threshold(token.ID)
		if threshold == nil || b.state.AccumulatedFees[i].Sign() == 0 {
			continue
		}
		if b.state.AccumulatedFees[i].Cmp(threshold) >= 0 {
			due = append(due, token.ID)
		}
	}
	return due
}

// apply runs op on a copy of the state and keeps the copy only on success.
func (b *base) apply(op func(s *model.State) error) error {
	next := b.state.Clone()
	if err := op(&next); err != nil {
		return err
	}
	b.state = next
	return nil
}

func tokenIndex(s model.State, token model.TokenID) (int, error) {
	i := s.TokenIndex(token)
	if i < 0 {
		return -1, fmt.Errorf("pool %s: token %s: %w", s.ID, token, dexerr.ErrUnknownToken)
	}
	return i, nil
}

func tokenPair(s model.State, in, out model.TokenID) (int, int, error) {
	i, err := tokenIndex(s, in)
	if err != nil {
		return -1, -1, err
	}
	j, err := tokenIndex(s, out)
	if err != nil {
		return -1, -1, err
	}
	if i == j {
		return -1, -1, fmt.Errorf("pool %s: exchange %s for itself: %w", s.ID, in, dexerr.ErrUnknownToken)
	}
	return i, j, nil
}

func checkAmounts(s model.State, amounts []*big.Int) error {
	if len(amounts) != len(s.Tokens) {
		return fmt.Errorf("pool %s: %d amounts for %d tokens: %w", s.ID, len(amounts), len(s.Tokens), dexerr.ErrInvalidAmount)
	}
	return amount.Validate(amounts...)
}

func oneHot(s model.State, token model.TokenID, value *big.Int) ([]*big.Int, error) {
	i, err := tokenIndex(s, token)
	if err != nil {
		return nil, err
	}
	amounts := amount.Zeros(len(s.Tokens))
	amounts[i] = amount.Clone(value)
	return amounts, nil
}

func zeroExchange(in, out model.TokenID) ExchangeResult {
	return ExchangeResult{
		TokenIn:   in,
		TokenOut:  out,
		AmountIn:  amount.Zero(),
		AmountOut: amount.Zero(),
		Fee:       amount.Zero(),
		FeeToken:  in,
		FeeSplit:  fees.SplitFee(amount.Zero(), model.FeeParams{}, false),
	}
}

// settleFee moves the leaving part of a fee collected in token i out of the
// reserves and credits the beneficiary share.
func settleFee(s *model.State, i int, split fees.Split) error {
	next, ok := amount.Sub(s.Reserves[i], split.Leaving())
	if !ok {
		return fmt.Errorf("pool %s: fee exceeds reserve %d: %w", s.ID, i, dexerr.ErrInsufficientLiquidity)
	}
	s.Reserves[i] = next
	s.AccumulatedFees[i] = new(big.Int).Add(s.AccumulatedFees[i], split.Beneficiary)
	return nil
}

func proportionalWithdraw(s *model.State, lpAmount *big.Int) (WithdrawResult, error) {
	if err := amount.Validate(lpAmount); err != nil {
		return WithdrawResult{}, err
	}
	if !s.Active() || lpAmount.Cmp(s.LPSupply) > 0 {
		return WithdrawResult{}, fmt.Errorf("pool %s: withdraw %s of %s lp: %w", s.ID, lpAmount, s.LPSupply, dexerr.ErrInsufficientLiquidity)
	}
	out := WithdrawResult{
		LPAmount: amount.Clone(lpAmount),
		Amounts:  make([]*big.Int, len(s.Reserves)),
		Fees:     amount.Zeros(len(s.Reserves)),
	}
	for i, r := range s.Reserves {
		out.Amounts[i] = amount.MulDiv(r, lpAmount, s.LPSupply, amount.Floor)
		s.Reserves[i] = new(big.Int).Sub(r, out.Amounts[i])
	}
	s.LPSupply = new(big.Int).Sub(s.LPSupply, lpAmount)
	return out, nil
}
