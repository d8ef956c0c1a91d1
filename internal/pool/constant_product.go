package pool

import (
	"fmt"
	"math/big"

	"dexsim/internal/amount"
	"dexsim/internal/dexerr"
	"dexsim/internal/fees"
	"dexsim/internal/model"
)

// ConstantProduct is an x*y=k pair. The trade fee is taken from the input
// before pricing; only the pool's share of it stays in the reserves.
type ConstantProduct struct {
	base
}

func (p *ConstantProduct) Clone() Pool {
	return &ConstantProduct{base: base{state: p.state.Clone()}}
}

func (p *ConstantProduct) Exchange(tokenIn, tokenOut model.TokenID, amountIn *big.Int, hasReferrer bool) (ExchangeResult, error) {
	var res ExchangeResult
	err := p.apply(func(s *model.State) error {
		i, j, err := tokenPair(*s, tokenIn, tokenOut)
		if err != nil {
			return err
		}
		res, err = cpExchange(s, i, j, amountIn, hasReferrer)
		return err
	})
	return res, err
}

// ExpectedSpend returns the smallest input of tokenIn that buys at least
// amountOut of tokenOut at the current state.
func (p *ConstantProduct) ExpectedSpend(tokenIn, tokenOut model.TokenID, amountOut *big.Int) (*big.Int, error) {
	s := p.state
	i, j, err := tokenPair(s, tokenIn, tokenOut)
	if err != nil {
		return nil, err
	}
	if err := amount.Validate(amountOut); err != nil {
		return nil, err
	}
	if amountOut.Sign() == 0 {
		return amount.Zero(), nil
	}
	rIn, rOut := s.Reserves[i], s.Reserves[j]
	if rIn.Sign() == 0 || amountOut.Cmp(rOut) >= 0 {
		return nil, fmt.Errorf("pool %s: buy %s of %s reserve: %w", s.ID, amountOut, rOut, dexerr.ErrInsufficientLiquidity)
	}
	netIn := amount.MulDiv(rIn, amountOut, new(big.Int).Sub(rOut, amountOut), amount.Ceil)

	den := amount.New(s.Fee.Denominator)
	keep := new(big.Int).Sub(den, amount.New(s.Fee.TotalNumerator()))
	spend := amount.MulDiv(netIn, den, keep, amount.Ceil)
	// ceil on the fee can leave the net input one short
	for new(big.Int).Sub(spend, fees.Charge(spend, s.Fee)).Cmp(netIn) < 0 {
		spend.Add(spend, big.NewInt(1))
	}
	return spend, nil
}

// Deposit adds liquidity in three phases: a proportional deposit, an
// optional swap of the unmatched excess, and a proportional deposit of what
// the swap left balanced. Unmatched dust is returned as change.
func (p *ConstantProduct) Deposit(amounts []*big.Int, autoChange, hasReferrer bool) (DepositResult, error) {
	var res DepositResult
	err := p.apply(func(s *model.State) error {
		var err error
		res, err = cpDeposit(s, amounts, autoChange, hasReferrer)
		return err
	})
	return res, err
}

func (p *ConstantProduct) DepositOneCoin(token model.TokenID, amountIn *big.Int, hasReferrer bool) (DepositResult, error) {
	amounts, err := oneHot(p.state, token, amountIn)
	if err != nil {
		return DepositResult{}, err
	}
	return p.Deposit(amounts, true, hasReferrer)
}

func (p *ConstantProduct) Withdraw(lpAmount *big.Int) (WithdrawResult, error) {
	var res WithdrawResult
	err := p.apply(func(s *model.State) error {
		var err error
		res, err = proportionalWithdraw(s, lpAmount)
		return err
	})
	return res, err
}

// WithdrawOneCoin burns lpAmount and swaps the other side of the withdrawal
// into token on the post-withdrawal reserves.
func (p *ConstantProduct) WithdrawOneCoin(lpAmount *big.Int, token model.TokenID, hasReferrer bool) (WithdrawResult, error) {
	var res WithdrawResult
	err := p.apply(func(s *model.State) error {
		i, err := tokenIndex(*s, token)
		if err != nil {
			return err
		}
		j := 1 - i
		res, err = proportionalWithdraw(s, lpAmount)
		if err != nil {
			return err
		}
		if s.Reserves[0].Sign() == 0 || s.Reserves[1].Sign() == 0 {
			return fmt.Errorf("pool %s: one-coin withdrawal drains the pool: %w", s.ID, dexerr.ErrInsufficientLiquidity)
		}
		swap, err := cpExchange(s, j, i, res.Amounts[j], hasReferrer)
		if err != nil {
			return err
		}
		res.Amounts[i] = new(big.Int).Add(res.Amounts[i], swap.AmountOut)
		res.Amounts[j] = amount.Zero()
		res.Fees[j] = amount.Clone(swap.Fee)
		res.Swap = &swap
		return nil
	})
	return res, err
}

func cpExchange(s *model.State, i, j int, amountIn *big.Int, hasReferrer bool) (ExchangeResult, error) {
	tokenIn, tokenOut := s.Tokens[i].ID, s.Tokens[j].ID
	if err := amount.Validate(amountIn); err != nil {
		return ExchangeResult{}, err
	}
	if amountIn.Sign() == 0 {
		return zeroExchange(tokenIn, tokenOut), nil
	}
	rIn, rOut := s.Reserves[i], s.Reserves[j]
	if !s.Active() || rIn.Sign() == 0 || rOut.Sign() == 0 {
		return ExchangeResult{}, fmt.Errorf("pool %s: empty reserves: %w", s.ID, dexerr.ErrInsufficientLiquidity)
	}

	fee := fees.Charge(amountIn, s.Fee)
	netIn := new(big.Int).Sub(amountIn, fee)
	out := amount.MulDiv(rOut, netIn, new(big.Int).Add(rIn, netIn), amount.Floor)
	split := fees.SplitFor(fee, s.Fee, tokenIn, hasReferrer)

	s.Reserves[i] = amount.Add(rIn, netIn, split.Pool)
	s.Reserves[j] = new(big.Int).Sub(rOut, out)
	s.AccumulatedFees[i] = new(big.Int).Add(s.AccumulatedFees[i], split.Beneficiary)

	return ExchangeResult{
		TokenIn:   tokenIn,
		TokenOut:  tokenOut,
		AmountIn:  amount.Clone(amountIn),
		AmountOut: out,
		Fee:       fee,
		FeeToken:  tokenIn,
		FeeSplit:  split,
	}, nil
}

func cpDeposit(s *model.State, amounts []*big.Int, autoChange, hasReferrer bool) (DepositResult, error) {
	if err := checkAmounts(*s, amounts); err != nil {
		return DepositResult{}, err
	}
	if !s.Active() {
		return cpFirstDeposit(s, amounts)
	}
	if s.Reserves[0].Sign() == 0 || s.Reserves[1].Sign() == 0 {
		return DepositResult{}, fmt.Errorf("pool %s: empty reserves: %w", s.ID, dexerr.ErrInsufficientLiquidity)
	}
	if amounts[0].Sign() == 0 && amounts[1].Sign() == 0 {
		return DepositResult{}, fmt.Errorf("pool %s: empty deposit: %w", s.ID, dexerr.ErrInvalidAmount)
	}

	res := DepositResult{
		Amounts: amount.CloneAll(amounts),
		Change:  amount.Zeros(2),
		Fees:    amount.Zeros(2),
	}

	// phase 1
	used, lp1 := cpProportional(s, amounts)
	rest := []*big.Int{
		new(big.Int).Sub(amounts[0], used[0]),
		new(big.Int).Sub(amounts[1], used[1]),
	}

	if rest[0].Sign() == 0 && rest[1].Sign() == 0 {
		res.LPReward = lp1
		res.Steps = []*big.Int{lp1, amount.Zero()}
		return res, nil
	}
	if !autoChange {
		if lp1.Sign() == 0 && cpBalanced(s, amounts) {
			return DepositResult{}, fmt.Errorf("pool %s: deposit %s/%s mints no lp: %w",
				s.ID, amounts[0], amounts[1], dexerr.ErrInvalidAmount)
		}
		return DepositResult{}, fmt.Errorf("pool %s: deposit %s/%s off ratio %s/%s: %w",
			s.ID, amounts[0], amounts[1], s.Reserves[0], s.Reserves[1], dexerr.ErrUnbalancedDeposit)
	}

	// phase 2: swap part of whichever side exceeds the reserve ratio
	i := cpExcessSide(s, rest)
	j := 1 - i
	excess := new(big.Int).Sub(rest[i], amount.MulDiv(rest[j], s.Reserves[i], s.Reserves[j], amount.Floor))
	if excess.Sign() < 0 {
		excess = amount.Zero()
	}
	swapIn := cpSwapShare(s.Reserves[i], excess, s.Fee)
	lp3 := amount.Zero()
	if swapIn.Sign() > 0 {
		swap, err := cpExchange(s, i, j, swapIn, hasReferrer)
		if err != nil {
			return DepositResult{}, err
		}
		res.Swap = &swap
		res.Fees[i] = amount.Clone(swap.Fee)
		rest[i] = new(big.Int).Sub(rest[i], swapIn)
		rest[j] = new(big.Int).Add(rest[j], swap.AmountOut)

		// phase 3
		var matched []*big.Int
		matched, lp3 = cpProportional(s, rest)
		for k := range rest {
			rest[k] = new(big.Int).Sub(rest[k], matched[k])
		}
	}
	if lp1.Sign() == 0 && lp3.Sign() == 0 {
		return DepositResult{}, fmt.Errorf("pool %s: deposit %s/%s mints no lp: %w",
			s.ID, amounts[0], amounts[1], dexerr.ErrInvalidAmount)
	}
	res.Change = rest
	res.LPReward = new(big.Int).Add(lp1, lp3)
	res.Steps = []*big.Int{lp1, lp3}
	return res, nil
}

func cpFirstDeposit(s *model.State, amounts []*big.Int) (DepositResult, error) {
	if amounts[0].Sign() == 0 || amounts[1].Sign() == 0 {
		return DepositResult{}, fmt.Errorf("pool %s: first deposit must fund both tokens: %w", s.ID, dexerr.ErrUnbalancedDeposit)
	}
	lp := amount.Sqrt(new(big.Int).Mul(amounts[0], amounts[1]))
	s.Reserves[0] = amount.Clone(amounts[0])
	s.Reserves[1] = amount.Clone(amounts[1])
	s.LPSupply = lp
	return DepositResult{
		Amounts:  amount.CloneAll(amounts),
		Change:   amount.Zeros(2),
		Fees:     amount.Zeros(2),
		LPReward: amount.Clone(lp),
		Steps:    []*big.Int{amount.Clone(lp), amount.Zero()},
	}, nil
}

// cpBalanced reports whether amounts match the reserve ratio exactly.
func cpBalanced(s *model.State, amounts []*big.Int) bool {
	left := new(big.Int).Mul(amounts[0], s.Reserves[1])
	right := new(big.Int).Mul(amounts[1], s.Reserves[0])
	return left.Cmp(right) == 0
}

// cpExcessSide returns the index of the token amounts holds too much of
// relative to the reserves.
func cpExcessSide(s *model.State, amounts []*big.Int) int {
	left := new(big.Int).Mul(amounts[0], s.Reserves[1])
	right := new(big.Int).Mul(amounts[1], s.Reserves[0])
	if left.Cmp(right) >= 0 {
		return 0
	}
	return 1
}

// cpProportional deposits the largest part of amounts that matches the
// reserve ratio and mints the smaller of the two per-side rewards.
func cpProportional(s *model.State, amounts []*big.Int) ([]*big.Int, *big.Int) {
	r0, r1 := s.Reserves[0], s.Reserves[1]
	d0 := amount.Min(amounts[0], amount.MulDiv(r0, amounts[1], r1, amount.Floor))
	d1 := amount.Min(amounts[1], amount.MulDiv(r1, amounts[0], r0, amount.Floor))
	lp := amount.Min(
		amount.MulDiv(d0, s.LPSupply, r0, amount.Floor),
		amount.MulDiv(d1, s.LPSupply, r1, amount.Floor),
	)
	if lp.Sign() == 0 {
		return amount.Zeros(2), lp
	}
	s.Reserves[0] = new(big.Int).Add(r0, d0)
	s.Reserves[1] = new(big.Int).Add(r1, d1)
	s.LPSupply = new(big.Int).Add(s.LPSupply, lp)
	return []*big.Int{d0, d1}, lp
}

// cpSwapShare returns the part of excess to swap so that what remains and
// what the swap returns match the post-swap reserve ratio. It is the floor
// root of g^2*s^2 + R*(1+g)*s - R*x = 0 with g the fee-free fraction, scaled
// by the fee denominator.
func cpSwapShare(reserve, excess *big.Int, params model.FeeParams) *big.Int {
	if excess.Sign() == 0 {
		return amount.Zero()
	}
	den := amount.New(params.Denominator)
	keep := new(big.Int).Sub(den, amount.New(params.TotalNumerator()))

	a := new(big.Int).Mul(keep, keep)
	b := new(big.Int).Add(den, keep)
	b.Mul(b, den)
	b.Mul(b, reserve)
	c := new(big.Int).Mul(den, den)
	c.Mul(c, reserve)
	c.Mul(c, excess)

	disc := new(big.Int).Mul(b, b)
	disc.Add(disc, new(big.Int).Mul(big.NewInt(4), new(big.Int).Mul(a, c)))
	root := new(big.Int).Sub(amount.Sqrt(disc), b)
	if root.Sign() <= 0 {
		return amount.Zero()
	}
	share := amount.Div(root, new(big.Int).Lsh(a, 1), amount.Floor)
	if share.Cmp(excess) > 0 {
		return amount.Clone(excess)
	}
	return share
}
