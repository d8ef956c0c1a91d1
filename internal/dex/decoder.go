package dex

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"dexsim/internal/model"
)

// ExchangeEvent is a decoded pool Exchange log.
type ExchangeEvent struct {
	Pool        string        `json:"pool"`
	BlockNumber uint64        `json:"block_number"`
	TxHash      string        `json:"tx_hash"`
	LogIndex    uint          `json:"log_index"`
	Sender      string        `json:"sender"`
	TokenIn     model.TokenID `json:"token_in"`
	TokenOut    model.TokenID `json:"token_out"`
	AmountIn    *big.Int      `json:"amount_in"`
	AmountOut   *big.Int      `json:"amount_out"`
	Fee         *big.Int      `json:"fee"`
	Referred    bool          `json:"referred"`
}

// ExchangeTopic returns topic0 of the Exchange event.
func ExchangeTopic() (common.Hash, error) {
	poolABI, err := PoolABI()
	if err != nil {
		return common.Hash{}, err
	}
	return poolABI.Events["Exchange"].ID, nil
}

// DecodeExchange decodes an Exchange log emitted by a pool.
func DecodeExchange(log types.Log) (ExchangeEvent, error) {
	poolABI, err := PoolABI()
	if err != nil {
		return ExchangeEvent{}, fmt.Errorf("parse pool abi: %w", err)
	}
	event := poolABI.Events["Exchange"]
	if len(log.Topics) < 2 {
		return ExchangeEvent{}, fmt.Errorf("missing topics")
	}
	if log.Topics[0] != event.ID {
		return ExchangeEvent{}, fmt.Errorf("unsupported topic0: %s", log.Topics[0].Hex())
	}

	values, err := event.Inputs.NonIndexed().Unpack(log.Data)
	if err != nil {
		return ExchangeEvent{}, fmt.Errorf("unpack exchange: %w", err)
	}
	if len(values) != 6 {
		return ExchangeEvent{}, fmt.Errorf("unexpected exchange data length %d", len(values))
	}
	tokenIn, err := asAddress(values[0])
	if err != nil {
		return ExchangeEvent{}, fmt.Errorf("tokenIn: %w", err)
	}
	tokenOut, err := asAddress(values[1])
	if err != nil {
		return ExchangeEvent{}, fmt.Errorf("tokenOut: %w", err)
	}
	var amounts [3]*big.Int
	for i := range amounts {
		if amounts[i], err = asBigInt(values[2+i]); err != nil {
			return ExchangeEvent{}, fmt.Errorf("exchange amount %d: %w", i, err)
		}
	}
	referred, ok := values[5].(bool)
	if !ok {
		return ExchangeEvent{}, fmt.Errorf("unsupported referred type %T", values[5])
	}

	return ExchangeEvent{
		Pool:        AddressID(log.Address),
		BlockNumber: log.BlockNumber,
		TxHash:      log.TxHash.Hex(),
		LogIndex:    log.Index,
		Sender:      AddressID(common.BytesToAddress(log.Topics[1].Bytes())),
		TokenIn:     model.TokenID(AddressID(tokenIn)),
		TokenOut:    model.TokenID(AddressID(tokenOut)),
		AmountIn:    amounts[0],
		AmountOut:   amounts[1],
		Fee:         amounts[2],
		Referred:    referred,
	}, nil
}
