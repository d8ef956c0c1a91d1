package pool

import (
	"math/big"

	"dexsim/internal/model"
)

// The Simulate functions quote one operation against a snapshot. The input
// state is never modified; the post-operation state is returned alongside
// the result.

func SimulateExchange(state model.State, tokenIn, tokenOut model.TokenID, amountIn *big.Int, hasReferrer bool) (ExchangeResult, model.State, error) {
	p, err := New(state)
	if err != nil {
		return ExchangeResult{}, model.State{}, err
	}
	res, err := p.Exchange(tokenIn, tokenOut, amountIn, hasReferrer)
	if err != nil {
		return ExchangeResult{}, model.State{}, err
	}
	return res, p.State(), nil
}

func SimulateDeposit(state model.State, amounts []*big.Int, autoChange, hasReferrer bool) (DepositResult, model.State, error) {
	p, err := New(state)
	if err != nil {
		return DepositResult{}, model.State{}, err
	}
	res, err := p.Deposit(amounts, autoChange, hasReferrer)
	if err != nil {
		return DepositResult{}, model.State{}, err
	}
	return res, p.State(), nil
}

func SimulateWithdraw(state model.State, lpAmount *big.Int) (WithdrawResult, model.State, error) {
	p, err := New(state)
	if err != nil {
		return WithdrawResult{}, model.State{}, err
	}
	res, err := p.Withdraw(lpAmount)
	if err != nil {
		return WithdrawResult{}, model.State{}, err
	}
	return res, p.State(), nil
}

func SimulateDepositOneCoin(state model.State, token model.TokenID, amountIn *big.Int, hasReferrer bool) (DepositResult, model.State, error) {
	p, err := New(state)
	if err != nil {
		return DepositResult{}, model.State{}, err
	}
	res, err := p.DepositOneCoin(token, amountIn, hasReferrer)
	if err != nil {
		return DepositResult{}, model.State{}, err
	}
	return res, p.State(), nil
}

func SimulateWithdrawOneCoin(state model.State, lpAmount *big.Int, token model.TokenID, hasReferrer bool) (WithdrawResult, model.State, error) {
	p, err := New(state)
	if err != nil {
		return WithdrawResult{}, model.State{}, err
	}
	res, err := p.WithdrawOneCoin(lpAmount, token, hasReferrer)
	if err != nil {
		return WithdrawResult{}, model.State{}, err
	}
	return res, p.State(), nil
}
