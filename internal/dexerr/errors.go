package dexerr

import "errors"

var (
	ErrInvalidAmount         = errors.New("invalid amount")
	ErrUnbalancedDeposit     = errors.New("unbalanced deposit")
	ErrConvergenceFailed     = errors.New("invariant did not converge")
	ErrInsufficientLiquidity = errors.New("insufficient liquidity")
	ErrSlippage              = errors.New("amount out below minimum")

	ErrUnknownToken = errors.New("unknown token")
	ErrUnknownPool  = errors.New("unknown pool")
	ErrInvalidRoute = errors.New("invalid route")
	ErrInvalidPool  = errors.New("invalid pool state")
)
