package pool

import (
	"fmt"
	"math/big"

	"dexsim/internal/amount"
	"dexsim/internal/dexerr"
	"dexsim/internal/fees"
	"dexsim/internal/model"
	"dexsim/internal/stableswap"
)

// Stable models both stableswap kinds: a two-token pair and an N-token
// pool. Balances are lifted to the largest token precision before solving
// the invariant. The trade fee is taken from the output.
type Stable struct {
	base
	solver stableswap.Solver
}

func newStable(s model.State) *Stable {
	return &Stable{base: base{state: s}, solver: stableswap.NewSolver()}
}

// WithSolver replaces the invariant solver, mostly to tighten the
// iteration cap.
func (p *Stable) WithSolver(solver stableswap.Solver) *Stable {
	p.solver = solver
	return p
}

func (p *Stable) Clone() Pool {
	return &Stable{base: base{state: p.state.Clone()}, solver: p.solver}
}

func (p *Stable) Exchange(tokenIn, tokenOut model.TokenID, amountIn *big.Int, hasReferrer bool) (ExchangeResult, error) {
	var res ExchangeResult
	err := p.apply(func(s *model.State) error {
		i, j, err := tokenPair(*s, tokenIn, tokenOut)
		if err != nil {
			return err
		}
		res, err = p.exchange(s, i, j, amountIn, hasReferrer)
		return err
	})
	return res, err
}

func (p *Stable) exchange(s *model.State, i, j int, amountIn *big.Int, hasReferrer bool) (ExchangeResult, error) {
	tokenIn, tokenOut := s.Tokens[i].ID, s.Tokens[j].ID
	if err := amount.Validate(amountIn); err != nil {
		return ExchangeResult{}, err
	}
	if amountIn.Sign() == 0 {
		res := zeroExchange(tokenIn, tokenOut)
		res.FeeToken = tokenOut
		return res, nil
	}
	if !s.Active() {
		return ExchangeResult{}, fmt.Errorf("pool %s: no liquidity: %w", s.ID, dexerr.ErrInsufficientLiquidity)
	}

	rates := precisionRates(s.Tokens)
	xp := normalize(s.Reserves, rates)
	d, err := p.solver.ComputeD(xp, s.Amplification)
	if err != nil {
		return ExchangeResult{}, fmt.Errorf("pool %s: %w", s.ID, err)
	}
	x := new(big.Int).Add(xp[i], new(big.Int).Mul(amountIn, rates[i]))
	y, err := p.solver.SolveY(xp, s.Amplification, i, j, x, d)
	if err != nil {
		return ExchangeResult{}, fmt.Errorf("pool %s: %w", s.ID, err)
	}

	gross := amount.Zero()
	if xp[j].Cmp(y) > 0 {
		gross = amount.Div(new(big.Int).Sub(xp[j], y), rates[j], amount.Floor)
	}
	if gross.Cmp(s.Reserves[j]) >= 0 {
		return ExchangeResult{}, fmt.Errorf("pool %s: output %s drains reserve %s: %w", s.ID, gross, s.Reserves[j], dexerr.ErrInsufficientLiquidity)
	}
	fee := fees.Charge(gross, s.Fee)
	out := new(big.Int).Sub(gross, fee)
	split := fees.SplitFor(fee, s.Fee, tokenOut, hasReferrer)

	s.Reserves[i] = new(big.Int).Add(s.Reserves[i], amountIn)
	s.Reserves[j] = new(big.Int).Sub(s.Reserves[j], out)
	if err := settleFee(s, j, split); err != nil {
		return ExchangeResult{}, err
	}

	return ExchangeResult{
		TokenIn:   tokenIn,
		TokenOut:  tokenOut,
		AmountIn:  amount.Clone(amountIn),
		AmountOut: out,
		Fee:       fee,
		FeeToken:  tokenOut,
		FeeSplit:  split,
	}, nil
}

// Deposit charges an imbalance fee on the part of each amount that deviates
// from the reserve ratio and mints LP in proportion to the invariant growth.
// autoChange has no effect: stable pools accept any mix of tokens.
func (p *Stable) Deposit(amounts []*big.Int, _ bool, hasReferrer bool) (DepositResult, error) {
	var res DepositResult
	err := p.apply(func(s *model.State) error {
		var err error
		res, err = p.deposit(s, amounts, hasReferrer)
		return err
	})
	return res, err
}

func (p *Stable) DepositOneCoin(token model.TokenID, amountIn *big.Int, hasReferrer bool) (DepositResult, error) {
	amounts, err := oneHot(p.state, token, amountIn)
	if err != nil {
		return DepositResult{}, err
	}
	return p.Deposit(amounts, true, hasReferrer)
}

func (p *Stable) deposit(s *model.State, amounts []*big.Int, hasReferrer bool) (DepositResult, error) {
	if err := checkAmounts(*s, amounts); err != nil {
		return DepositResult{}, err
	}
	n := len(amounts)
	rates := precisionRates(s.Tokens)

	if !s.Active() {
		for i, a := range amounts {
			if a.Sign() == 0 {
				return DepositResult{}, fmt.Errorf("pool %s: first deposit must fund every token, %s is empty: %w", s.ID, s.Tokens[i].ID, dexerr.ErrUnbalancedDeposit)
			}
		}
		balances := make([]*big.Int, n)
		for i := range amounts {
			balances[i] = new(big.Int).Add(s.Reserves[i], amounts[i])
		}
		d, err := p.solver.ComputeD(normalize(balances, rates), s.Amplification)
		if err != nil {
			return DepositResult{}, fmt.Errorf("pool %s: %w", s.ID, err)
		}
		s.Reserves = balances
		s.LPSupply = d
		return DepositResult{
			Amounts:  amount.CloneAll(amounts),
			Change:   amount.Zeros(n),
			Fees:     amount.Zeros(n),
			LPReward: amount.Clone(d),
		}, nil
	}

	if amount.Add(amounts...).Sign() == 0 {
		return DepositResult{}, fmt.Errorf("pool %s: empty deposit: %w", s.ID, dexerr.ErrInvalidAmount)
	}
	d0, err := p.solver.ComputeD(normalize(s.Reserves, rates), s.Amplification)
	if err != nil {
		return DepositResult{}, fmt.Errorf("pool %s: %w", s.ID, err)
	}
	if d0.Sign() == 0 {
		return DepositResult{}, fmt.Errorf("pool %s: empty invariant: %w", s.ID, dexerr.ErrInsufficientLiquidity)
	}

	ideal := idealAmounts(s.Reserves, amounts)
	feeNum := imbalanceFeeNumerator(s.Fee, n)
	den := amount.New(s.Fee.Denominator)

	res := DepositResult{
		Amounts: amount.CloneAll(amounts),
		Change:  amount.Zeros(n),
		Fees:    make([]*big.Int, n),
		Splits:  make([]fees.Split, n),
	}
	charged := make([]*big.Int, n)
	for i := range amounts {
		diff := amount.AbsDiff(amounts[i], ideal[i])
		fee := amount.MulDiv(diff, feeNum, den, amount.Ceil)
		res.Fees[i] = fee
		res.Splits[i] = fees.SplitFor(fee, s.Fee, s.Tokens[i].ID, hasReferrer)
		charged[i] = new(big.Int).Sub(new(big.Int).Add(s.Reserves[i], amounts[i]), fee)
	}
	d2, err := p.solver.ComputeD(normalize(charged, rates), s.Amplification)
	if err != nil {
		return DepositResult{}, fmt.Errorf("pool %s: %w", s.ID, err)
	}
	reward := amount.Zero()
	if d2.Cmp(d0) > 0 {
		reward = amount.MulDiv(s.LPSupply, new(big.Int).Sub(d2, d0), d0, amount.Floor)
	}

	for i := range amounts {
		s.Reserves[i] = new(big.Int).Add(s.Reserves[i], amounts[i])
		if err := settleFee(s, i, res.Splits[i]); err != nil {
			return DepositResult{}, err
		}
	}
	s.LPSupply = new(big.Int).Add(s.LPSupply, reward)
	res.LPReward = reward
	return res, nil
}

func (p *Stable) Withdraw(lpAmount *big.Int) (WithdrawResult, error) {
	var res WithdrawResult
	err := p.apply(func(s *model.State) error {
		var err error
		res, err = proportionalWithdraw(s, lpAmount)
		return err
	})
	return res, err
}

// WithdrawOneCoin burns lpAmount for a single token. The invariant drops by
// the burnt share; the imbalance this creates is charged the same fee as an
// imbalanced deposit.
func (p *Stable) WithdrawOneCoin(lpAmount *big.Int, token model.TokenID, hasReferrer bool) (WithdrawResult, error) {
	var res WithdrawResult
	err := p.apply(func(s *model.State) error {
		i, err := tokenIndex(*s, token)
		if err != nil {
			return err
		}
		res, err = p.withdrawOneCoin(s, lpAmount, i, hasReferrer)
		return err
	})
	return res, err
}

func (p *Stable) withdrawOneCoin(s *model.State, lpAmount *big.Int, i int, hasReferrer bool) (WithdrawResult, error) {
	if err := amount.Validate(lpAmount); err != nil {
		return WithdrawResult{}, err
	}
	n := len(s.Tokens)
	res := WithdrawResult{
		LPAmount: amount.Clone(lpAmount),
		Amounts:  amount.Zeros(n),
		Fees:     amount.Zeros(n),
	}
	if lpAmount.Sign() == 0 {
		return res, nil
	}
	if !s.Active() || lpAmount.Cmp(s.LPSupply) >= 0 {
		return WithdrawResult{}, fmt.Errorf("pool %s: one-coin withdraw %s of %s lp: %w", s.ID, lpAmount, s.LPSupply, dexerr.ErrInsufficientLiquidity)
	}

	rates := precisionRates(s.Tokens)
	xp := normalize(s.Reserves, rates)
	d0, err := p.solver.ComputeD(xp, s.Amplification)
	if err != nil {
		return WithdrawResult{}, fmt.Errorf("pool %s: %w", s.ID, err)
	}
	d1 := new(big.Int).Sub(d0, amount.MulDiv(lpAmount, d0, s.LPSupply, amount.Floor))
	newY, err := p.solver.SolveYD(xp, s.Amplification, i, d1)
	if err != nil {
		return WithdrawResult{}, fmt.Errorf("pool %s: %w", s.ID, err)
	}

	feeNum := imbalanceFeeNumerator(s.Fee, n)
	den := amount.New(s.Fee.Denominator)
	reduced := make([]*big.Int, n)
	for k := range xp {
		scaled := amount.MulDiv(xp[k], d1, d0, amount.Floor)
		var expected *big.Int
		if k == i {
			expected = amount.AbsDiff(scaled, newY)
		} else {
			expected = amount.AbsDiff(xp[k], scaled)
		}
		reduced[k] = new(big.Int).Sub(xp[k], amount.MulDiv(expected, feeNum, den, amount.Ceil))
	}
	yd, err := p.solver.SolveYD(reduced, s.Amplification, i, d1)
	if err != nil {
		return WithdrawResult{}, fmt.Errorf("pool %s: %w", s.ID, err)
	}

	out := amount.Zero()
	if reduced[i].Cmp(yd) > 0 {
		out = amount.Div(new(big.Int).Sub(reduced[i], yd), rates[i], amount.Floor)
	}
	noFee := amount.Zero()
	if xp[i].Cmp(newY) > 0 {
		noFee = amount.Div(new(big.Int).Sub(xp[i], newY), rates[i], amount.Floor)
	}
	fee := amount.Zero()
	if noFee.Cmp(out) > 0 {
		fee = new(big.Int).Sub(noFee, out)
	}
	split := fees.SplitFor(fee, s.Fee, s.Tokens[i].ID, hasReferrer)

	left, ok := amount.Sub(s.Reserves[i], out)
	if !ok || left.Sign() == 0 {
		return WithdrawResult{}, fmt.Errorf("pool %s: one-coin withdraw drains %s: %w", s.ID, s.Tokens[i].ID, dexerr.ErrInsufficientLiquidity)
	}
	s.Reserves[i] = left
	if err := settleFee(s, i, split); err != nil {
		return WithdrawResult{}, err
	}
	s.LPSupply = new(big.Int).Sub(s.LPSupply, lpAmount)

	res.Amounts[i] = out
	res.Fees[i] = fee
	return res, nil
}

// idealAmounts scales the reserves by the least-funded deposit ratio, so
// the token with the smallest amount/reserve ratio deviates by zero.
func idealAmounts(reserves, amounts []*big.Int) []*big.Int {
	k := 0
	for i := 1; i < len(amounts); i++ {
		// amounts[i]/reserves[i] < amounts[k]/reserves[k]
		lhs := new(big.Int).Mul(amounts[i], reserves[k])
		rhs := new(big.Int).Mul(amounts[k], reserves[i])
		if lhs.Cmp(rhs) < 0 {
			k = i
		}
	}
	out := make([]*big.Int, len(amounts))
	for i := range amounts {
		if i == k {
			out[i] = amount.Clone(amounts[k])
			continue
		}
		out[i] = amount.MulDiv(reserves[i], amounts[k], reserves[k], amount.Floor)
	}
	return out
}

// imbalanceFeeNumerator is ceil(total * N / (4 * (N - 1))).
func imbalanceFeeNumerator(params model.FeeParams, n int) *big.Int {
	num := new(big.Int).Mul(amount.New(params.TotalNumerator()), big.NewInt(int64(n)))
	return amount.Div(num, big.NewInt(int64(4*(n-1))), amount.Ceil)
}

// precisionRates returns the multiplier lifting each token to the largest
// decimals in the pool.
func precisionRates(tokens []model.Token) []*big.Int {
	var maxDecimals uint8
	for _, t := range tokens {
		if t.Decimals > maxDecimals {
			maxDecimals = t.Decimals
		}
	}
	out := make([]*big.Int, len(tokens))
	for i, t := range tokens {
		out[i] = amount.Pow10(maxDecimals - t.Decimals)
	}
	return out
}

func normalize(balances, rates []*big.Int) []*big.Int {
	out := make([]*big.Int, len(balances))
	for i, b := range balances {
		out[i] = new(big.Int).Mul(b, rates[i])
	}
	return out
}
