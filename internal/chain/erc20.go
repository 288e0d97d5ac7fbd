package chain

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
)

const erc20ABI = `[
	{"name":"balanceOf","type":"function","stateMutability":"view","inputs":[{"name":"owner","type":"address"}],"outputs":[{"name":"","type":"uint256"}]}
]`

// TokenReader reads ERC-20 balances for the outcome tokens markets mint.
type TokenReader struct {
	client *Client
	parsed abi.ABI
}

// NewTokenReader creates a TokenReader on the given client.
func NewTokenReader(client *Client) (*TokenReader, error) {
	parsed, err := abi.JSON(strings.NewReader(erc20ABI))
	if err != nil {
		return nil, fmt.Errorf("chain: parse erc20 abi: %w", err)
	}
	return &TokenReader{client: client, parsed: parsed}, nil
}

// BalanceOf returns holder's balance of the given token.
func (t *TokenReader) BalanceOf(ctx context.Context, token, holder string) (*big.Int, error) {
	contract := bind.NewBoundContract(common.HexToAddress(token), t.parsed,
		t.client.Eth(), t.client.Eth(), t.client.Eth())

	var out []interface{}
	err := contract.Call(&bind.CallOpts{Context: ctx}, &out, "balanceOf", common.HexToAddress(holder))
	if err != nil {
		return nil, fmt.Errorf("chain: balanceOf %s on %s: %w", holder, token, err)
	}
	balance, ok := out[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("chain: balanceOf returned unexpected type %T", out[0])
	}
	return balance, nil
}
