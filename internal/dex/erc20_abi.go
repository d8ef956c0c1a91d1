package dex

import (
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

const erc20ABIJSON = `[
  {"inputs": [], "name": "decimals", "outputs": [{"type": "uint8"}], "stateMutability": "view", "type": "function"},
  {"inputs": [], "name": "symbol", "outputs": [{"type": "string"}], "stateMutability": "view", "type": "function"}
]`

// Some older tokens return symbol as bytes32.
const erc20Bytes32SymbolJSON = `[
  {"inputs": [], "name": "symbol", "outputs": [{"type": "bytes32"}], "stateMutability": "view", "type": "function"}
]`

var (
	erc20ABI         abi.ABI
	erc20ABIOnce     sync.Once
	erc20ABIErr      error
	erc20Bytes32     abi.ABI
	erc20Bytes32Once sync.Once
	erc20Bytes32Err  error
)

// ERC20ABI returns the parsed decimals/symbol ABI.
func ERC20ABI() (abi.ABI, error) {
	erc20ABIOnce.Do(func() {
		erc20ABI, erc20ABIErr = abi.JSON(strings.NewReader(erc20ABIJSON))
	})
	return erc20ABI, erc20ABIErr
}

func erc20Bytes32Instance() (abi.ABI, error) {
	erc20Bytes32Once.Do(func() {
		erc20Bytes32, erc20Bytes32Err = abi.JSON(strings.NewReader(erc20Bytes32SymbolJSON))
	})
	return erc20Bytes32, erc20Bytes32Err
}
