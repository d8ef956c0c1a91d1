package ledger

import (
	"context"
	"fmt"
	"math/big"
	"sort"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"go.uber.org/zap"

	"dexsim/internal/dex"
	"dexsim/internal/model"
)

// Backend is the RPC surface ChainReader needs. *chain.Client implements it.
type Backend interface {
	dex.Caller
	FilterLogs(ctx context.Context, fromBlock, toBlock uint64, address common.Address, topic0 ...common.Hash) ([]types.Log, error)
}

// ChainReaderConfig holds retry and block settings.
type ChainReaderConfig struct {
	// Block pins reads to a height; nil reads the latest state.
	Block        *big.Int
	MaxRetries   int
	RetryBackoff time.Duration
}

// ChainReader reads pool states with eth_call against pool contracts.
type ChainReader struct {
	backend Backend
	cfg     ChainReaderConfig
	tokens  *dex.TokenCache
	logger  *zap.Logger
}

func NewChainReader(backend Backend, cfg ChainReaderConfig, logger *zap.Logger) *ChainReader {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ChainReader{
		backend: backend,
		cfg:     cfg,
		tokens:  dex.NewTokenCache(),
		logger:  logger,
	}
}

// AtBlock returns a reader pinned to block that shares the token cache.
func (r *ChainReader) AtBlock(block uint64) *ChainReader {
	cfg := r.cfg
	cfg.Block = new(big.Int).SetUint64(block)
	return &ChainReader{backend: r.backend, cfg: cfg, tokens: r.tokens, logger: r.logger}
}

func (r *ChainReader) ReadPoolState(ctx context.Context, poolID string) (model.State, error) {
	if r.backend == nil {
		return model.State{}, fmt.Errorf("chain client is nil")
	}
	addr, err := ParseAddress(poolID)
	if err != nil {
		return model.State{}, err
	}

	var st model.State
	err = withRetry(ctx, r.cfg.MaxRetries, r.cfg.RetryBackoff, r.logger, func(ctx context.Context) error {
		var callErr error
		st, callErr = dex.FetchPoolState(ctx, r.backend, addr, r.cfg.Block, r.tokens, r.logger)
		return callErr
	})
	if err != nil {
		return model.State{}, err
	}
	return st, nil
}

// ExchangeEvents returns the decoded Exchange logs of poolID in block, in
// log order.
func (r *ChainReader) ExchangeEvents(ctx context.Context, poolID string, block uint64) ([]dex.ExchangeEvent, error) {
	addr, err := ParseAddress(poolID)
	if err != nil {
		return nil, err
	}
	topic, err := dex.ExchangeTopic()
	if err != nil {
		return nil, err
	}

	var logs []types.Log
	err = withRetry(ctx, r.cfg.MaxRetries, r.cfg.RetryBackoff, r.logger, func(ctx context.Context) error {
		var callErr error
		logs, callErr = r.backend.FilterLogs(ctx, block, block, addr, topic)
		return callErr
	})
	if err != nil {
		return nil, fmt.Errorf("filter logs: %w", err)
	}

	events := make([]dex.ExchangeEvent, 0, len(logs))
	for _, lg := range logs {
		if lg.Removed {
			continue
		}
		ev, err := dex.DecodeExchange(lg)
		if err != nil {
			return nil, fmt.Errorf("decode log %s#%d: %w", lg.TxHash.Hex(), lg.Index, err)
		}
		events = append(events, ev)
	}
	sort.SliceStable(events, func(i, j int) bool { return events[i].LogIndex < events[j].LogIndex })
	return events, nil
}
