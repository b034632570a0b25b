// Package chain reads ERC-20 balances from an EVM node.
package chain

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/DIGIX666/Arena/internal/amount"
)

const erc20ABIJSON = `[
	{
		"constant": true,
		"inputs": [{"name": "account", "type": "address"}],
		"name": "balanceOf",
		"outputs": [{"name": "", "type": "uint256"}],
		"stateMutability": "view",
		"type": "function"
	},
	{
		"constant": true,
		"inputs": [],
		"name": "decimals",
		"outputs": [{"name": "", "type": "uint8"}],
		"stateMutability": "view",
		"type": "function"
	}
]`

// ERC20ABI returns the parsed subset of the ERC-20 ABI the reader calls.
func ERC20ABI() abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(erc20ABIJSON))
	if err != nil {
		panic("failed to parse ERC20 ABI: " + err.Error())
	}
	return parsed
}

// ERC20Reader reads token balances with eth_call. It implements
// domain.BalanceReader and is used as the fan-token source.
type ERC20Reader struct {
	caller ethereum.ContractCaller
	token  common.Address
	abi    abi.ABI
}

// NewERC20Reader reads token through caller.
func NewERC20Reader(caller ethereum.ContractCaller, token common.Address) *ERC20Reader {
	return &ERC20Reader{caller: caller, token: token, abi: ERC20ABI()}
}

// Dial connects to rpcURL and returns a reader for token together with the
// client so the caller can close it.
func Dial(ctx context.Context, rpcURL string, token common.Address) (*ERC20Reader, *ethclient.Client, error) {
	client, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, nil, fmt.Errorf("chain: dial %s: %w", rpcURL, err)
	}
	return NewERC20Reader(client, token), client, nil
}

// Token returns the token contract address.
func (r *ERC20Reader) Token() common.Address { return r.token }

// BalanceOf returns the account's balance at the latest block.
func (r *ERC20Reader) BalanceOf(ctx context.Context, account common.Address) (amount.Amount, error) {
	var bal *big.Int
	if err := r.call(ctx, &bal, "balanceOf", account); err != nil {
		return amount.Zero(), err
	}
	a, err := amount.FromBig(bal)
	if err != nil {
		return amount.Zero(), fmt.Errorf("chain: balanceOf: %w", err)
	}
	return a, nil
}

// Decimals returns the token's decimals.
func (r *ERC20Reader) Decimals(ctx context.Context) (uint8, error) {
	var dec uint8
	if err := r.call(ctx, &dec, "decimals"); err != nil {
		return 0, err
	}
	return dec, nil
}

func (r *ERC20Reader) call(ctx context.Context, out any, method string, args ...any) error {
	data, err := r.abi.Pack(method, args...)
	if err != nil {
		return fmt.Errorf("chain: pack %s: %w", method, err)
	}
	result, err := r.caller.CallContract(ctx, ethereum.CallMsg{To: &r.token, Data: data}, nil)
	if err != nil {
		return fmt.Errorf("chain: call %s: %w", method, err)
	}
	if err := r.abi.UnpackIntoInterface(out, method, result); err != nil {
		return fmt.Errorf("chain: unpack %s: %w", method, err)
	}
	return nil
}
