package dex

import (
	"bytes"
	"context"
	"fmt"
	"math/big"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"dexsim/internal/model"
)

// Caller is the eth_call surface the fetchers need.
type Caller interface {
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
}

// TokenCache caches token metadata by address.
type TokenCache struct {
	mu   sync.RWMutex
	data map[common.Address]model.Token
}

func NewTokenCache() *TokenCache {
	return &TokenCache{data: make(map[common.Address]model.Token)}
}

func (c *TokenCache) Get(address common.Address) (model.Token, bool) {
	c.mu.RLock()
	meta, ok := c.data[address]
	c.mu.RUnlock()
	return meta, ok
}

func (c *TokenCache) Set(address common.Address, meta model.Token) {
	c.mu.Lock()
	c.data[address] = meta
	c.mu.Unlock()
}

// AddressID is the ledger id used for a contract address.
func AddressID(address common.Address) string {
	return strings.ToLower(address.Hex())
}

// FetchPoolState reads the full state of pool at block (nil means latest).
// Token decimals come from tokens when cached and are fetched otherwise.
func FetchPoolState(ctx context.Context, caller Caller, pool common.Address, block *big.Int, tokens *TokenCache, logger *zap.Logger) (model.State, error) {
	if caller == nil {
		return model.State{}, fmt.Errorf("chain client is nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	poolABI, err := PoolABI()
	if err != nil {
		return model.State{}, fmt.Errorf("parse pool abi: %w", err)
	}
	call := func(method string, args ...interface{}) ([]interface{}, error) {
		return callMethod(ctx, caller, pool, poolABI, method, block, args...)
	}

	values, err := call("poolType")
	if err != nil {
		return model.State{}, err
	}
	code, err := asUint8(values[0])
	if err != nil {
		return model.State{}, fmt.Errorf("pool type: %w", err)
	}
	kind, err := kindFromCode(code)
	if err != nil {
		return model.State{}, err
	}

	values, err = call("tokens")
	if err != nil {
		return model.State{}, err
	}
	addresses, err := asAddresses(values[0])
	if err != nil {
		return model.State{}, fmt.Errorf("tokens: %w", err)
	}

	state := model.State{
		ID:     AddressID(pool),
		Kind:   kind,
		Tokens: make([]model.Token, len(addresses)),
	}
	for i, addr := range addresses {
		meta, ok := model.Token{}, false
		if tokens != nil {
			meta, ok = tokens.Get(addr)
		}
		if !ok {
			meta, err = FetchToken(ctx, caller, addr, logger)
			if err != nil {
				return model.State{}, fmt.Errorf("token %s: %w", addr.Hex(), err)
			}
			if tokens != nil {
				tokens.Set(addr, meta)
			}
		}
		state.Tokens[i] = meta
	}

	if values, err = call("reserves"); err != nil {
		return model.State{}, err
	}
	if state.Reserves, err = asBigInts(values[0]); err != nil {
		return model.State{}, fmt.Errorf("reserves: %w", err)
	}

	if values, err = call("accumulatedFees"); err != nil {
		return model.State{}, err
	}
	if state.AccumulatedFees, err = asBigInts(values[0]); err != nil {
		return model.State{}, fmt.Errorf("accumulated fees: %w", err)
	}

	if values, err = call("lpToken"); err != nil {
		return model.State{}, err
	}
	lp, err := asAddress(values[0])
	if err != nil {
		return model.State{}, fmt.Errorf("lp token: %w", err)
	}
	state.LPToken = model.TokenID(AddressID(lp))

	if values, err = call("totalSupply"); err != nil {
		return model.State{}, err
	}
	if state.LPSupply, err = asBigInt(values[0]); err != nil {
		return model.State{}, fmt.Errorf("total supply: %w", err)
	}

	if state.Fee, err = fetchFees(call, addresses); err != nil {
		return model.State{}, err
	}

	if kind.IsStable() {
		if values, err = call("amplification"); err != nil {
			return model.State{}, err
		}
		if len(values) < 2 {
			return model.State{}, fmt.Errorf("amplification: expected 2 values, got %d", len(values))
		}
		value, errValue := asUint64(values[0])
		precision, errPrecision := asUint64(values[1])
		if errValue != nil || errPrecision != nil {
			return model.State{}, fmt.Errorf("amplification: unsupported types %T/%T", values[0], values[1])
		}
		state.Amplification = model.Amplification{Value: value, Precision: precision}
	}

	if err := state.Validate(); err != nil {
		return model.State{}, err
	}
	logger.Debug("pool state fetched",
		zap.String("pool", state.ID),
		zap.String("kind", string(state.Kind)),
		zap.Int("tokens", len(state.Tokens)),
	)
	return state, nil
}

func fetchFees(call func(string, ...interface{}) ([]interface{}, error), tokens []common.Address) (model.FeeParams, error) {
	values, err := call("fees")
	if err != nil {
		return model.FeeParams{}, err
	}
	if len(values) < 5 {
		return model.FeeParams{}, fmt.Errorf("fees: expected 5 values, got %d", len(values))
	}
	var nums [4]uint64
	for i := range nums {
		if nums[i], err = asUint64(values[i]); err != nil {
			return model.FeeParams{}, fmt.Errorf("fees[%d]: %w", i, err)
		}
	}
	beneficiary, err := asAddress(values[4])
	if err != nil {
		return model.FeeParams{}, fmt.Errorf("fee beneficiary: %w", err)
	}
	fee := model.FeeParams{
		Denominator:          nums[0],
		PoolNumerator:        nums[1],
		BeneficiaryNumerator: nums[2],
		ReferrerNumerator:    nums[3],
		Beneficiary:          AddressID(beneficiary),
	}

	for _, token := range tokens {
		id := model.TokenID(AddressID(token))
		for _, method := range []string{"feeThreshold", "referrerThreshold"} {
			values, err := call(method, token)
			if err != nil {
				return model.FeeParams{}, err
			}
			v, err := asBigInt(values[0])
			if err != nil {
				return model.FeeParams{}, fmt.Errorf("%s: %w", method, err)
			}
			if v.Sign() == 0 {
				continue
			}
			if method == "feeThreshold" {
				if fee.Thresholds == nil {
					fee.Thresholds = make(map[model.TokenID]*big.Int)
				}
				fee.Thresholds[id] = v
			} else {
				if fee.ReferrerThresholds == nil {
					fee.ReferrerThresholds = make(map[model.TokenID]*big.Int)
				}
				fee.ReferrerThresholds[id] = v
			}
		}
	}
	return fee, nil
}

func kindFromCode(code uint8) (model.Kind, error) {
	switch code {
	case PoolTypeConstantProduct:
		return model.KindConstantProduct, nil
	case PoolTypeStablePair:
		return model.KindStablePair, nil
	case PoolTypeStablePool:
		return model.KindStablePool, nil
	default:
		return "", fmt.Errorf("unknown pool type %d", code)
	}
}

func callMethod(ctx context.Context, caller Caller, to common.Address, parsed abi.ABI, method string, block *big.Int, args ...interface{}) ([]interface{}, error) {
	data, err := parsed.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("pack %s: %w", method, err)
	}
	msg := ethereum.CallMsg{To: &to, Data: data}
	resp, err := caller.CallContract(ctx, msg, block)
	if err != nil {
		return nil, fmt.Errorf("call %s: %w", method, err)
	}
	values, err := parsed.Unpack(method, resp)
	if err != nil {
		return nil, fmt.Errorf("unpack %s: %w", method, err)
	}
	if len(values) == 0 {
		return nil, fmt.Errorf("unpack %s: empty result", method)
	}
	return values, nil
}

// FetchToken loads token decimals and symbol via ERC20 calls. A missing
// symbol is logged and left empty.
func FetchToken(ctx context.Context, caller Caller, token common.Address, logger *zap.Logger) (model.Token, error) {
	meta := model.Token{ID: model.TokenID(AddressID(token))}
	if caller == nil {
		return meta, fmt.Errorf("chain client is nil")
	}

	stringABI, err := ERC20ABI()
	if err != nil {
		return meta, fmt.Errorf("parse erc20 abi: %w", err)
	}
	bytes32ABI, err := erc20Bytes32Instance()
	if err != nil {
		return meta, fmt.Errorf("parse erc20 bytes32 abi: %w", err)
	}

	values, err := callMethod(ctx, caller, token, stringABI, "decimals", nil)
	if err != nil {
		return meta, err
	}
	decimals, err := asUint8(values[0])
	if err != nil {
		return meta, err
	}
	meta.Decimals = decimals

	if values, err := callMethod(ctx, caller, token, stringABI, "symbol", nil); err == nil {
		if symbol, ok := values[0].(string); ok {
			meta.Symbol = symbol
		}
	} else if values, err := callMethod(ctx, caller, token, bytes32ABI, "symbol", nil); err == nil {
		if symbol, ok := bytes32ToString(values[0]); ok {
			meta.Symbol = symbol
		}
	} else if logger != nil {
		logger.Debug("symbol call failed", zap.String("token", token.Hex()), zap.Error(err))
	}

	return meta, nil
}

func bytes32ToString(value interface{}) (string, bool) {
	switch v := value.(type) {
	case [32]byte:
		return string(bytes.TrimRight(v[:], "\x00")), true
	case []byte:
		return string(bytes.TrimRight(v, "\x00")), true
	default:
		return "", false
	}
}

func asAddress(value interface{}) (common.Address, error) {
	switch v := value.(type) {
	case common.Address:
		return v, nil
	case *common.Address:
		return *v, nil
	default:
		return common.Address{}, fmt.Errorf("unsupported address type %T", value)
	}
}

func asAddresses(value interface{}) ([]common.Address, error) {
	v, ok := value.([]common.Address)
	if !ok {
		return nil, fmt.Errorf("unsupported address list type %T", value)
	}
	return append([]common.Address(nil), v...), nil
}

func asBigInt(value interface{}) (*big.Int, error) {
	switch v := value.(type) {
	case *big.Int:
		return new(big.Int).Set(v), nil
	case big.Int:
		return new(big.Int).Set(&v), nil
	case uint8:
		return new(big.Int).SetUint64(uint64(v)), nil
	case uint16:
		return new(big.Int).SetUint64(uint64(v)), nil
	case uint32:
		return new(big.Int).SetUint64(uint64(v)), nil
	case uint64:
		return new(big.Int).SetUint64(v), nil
	default:
		return nil, fmt.Errorf("unsupported int type %T", value)
	}
}

func asBigInts(value interface{}) ([]*big.Int, error) {
	v, ok := value.([]*big.Int)
	if !ok {
		return nil, fmt.Errorf("unsupported int list type %T", value)
	}
	out := make([]*big.Int, len(v))
	for i, x := range v {
		out[i] = new(big.Int).Set(x)
	}
	return out, nil
}

func asUint64(value interface{}) (uint64, error) {
	v, err := asBigInt(value)
	if err != nil {
		return 0, err
	}
	if !v.IsUint64() {
		return 0, fmt.Errorf("uint64 overflow: %s", v)
	}
	return v.Uint64(), nil
}

func asUint8(value interface{}) (uint8, error) {
	switch v := value.(type) {
	case uint8:
		return v, nil
	case uint16:
		return uint8(v), nil
	case uint32:
		return uint8(v), nil
	case uint64:
		return uint8(v), nil
	case *big.Int:
		return uint8(v.Uint64()), nil
	default:
		return 0, fmt.Errorf("unsupported uint8 type %T", value)
	}
}
