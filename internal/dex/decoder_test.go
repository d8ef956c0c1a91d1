package dex

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

func TestDecodeExchange(t *testing.T) {
	poolABI, err := PoolABI()
	if err != nil {
		t.Fatalf("parse abi: %v", err)
	}
	event := poolABI.Events["Exchange"]

	poolAddr := common.HexToAddress("0x00000000000000000000000000000000000000AA")
	sender := common.HexToAddress("0x00000000000000000000000000000000000000Bb")
	tokenIn := common.HexToAddress("0x0000000000000000000000000000000000000001")
	tokenOut := common.HexToAddress("0x0000000000000000000000000000000000000002")

	data, err := event.Inputs.NonIndexed().Pack(tokenIn, tokenOut, big.NewInt(1000), big.NewInt(990), big.NewInt(3), true)
	if err != nil {
		t.Fatalf("pack: %v", err)
	}
	topic, err := ExchangeTopic()
	if err != nil {
		t.Fatalf("topic: %v", err)
	}

	log := types.Log{
		Address:     poolAddr,
		Topics:      []common.Hash{topic, common.BytesToHash(sender.Bytes())},
		Data:        data,
		BlockNumber: 12,
		TxHash:      common.HexToHash("0x01"),
		Index:       4,
	}
	got, err := DecodeExchange(log)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Pool != "0x00000000000000000000000000000000000000aa" {
		t.Fatalf("unexpected pool id %s", got.Pool)
	}
	if got.Sender != "0x00000000000000000000000000000000000000bb" {
		t.Fatalf("unexpected sender %s", got.Sender)
	}
	if got.TokenIn != "0x0000000000000000000000000000000000000001" || got.TokenOut != "0x0000000000000000000000000000000000000002" {
		t.Fatalf("unexpected tokens %s -> %s", got.TokenIn, got.TokenOut)
	}
	if got.AmountIn.Int64() != 1000 || got.AmountOut.Int64() != 990 || got.Fee.Int64() != 3 {
		t.Fatalf("unexpected amounts %s %s %s", got.AmountIn, got.AmountOut, got.Fee)
	}
	if !got.Referred || got.BlockNumber != 12 || got.LogIndex != 4 {
		t.Fatalf("unexpected meta %+v", got)
	}
}

func TestDecodeExchangeRejectsOtherTopics(t *testing.T) {
	log := types.Log{
		Topics: []common.Hash{common.HexToHash("0xdead"), {}},
	}
	if _, err := DecodeExchange(log); err == nil {
		t.Fatalf("expected unsupported topic error")
	}
	if _, err := DecodeExchange(types.Log{}); err == nil {
		t.Fatalf("expected missing topics error")
	}
}
