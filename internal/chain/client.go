// Package chain provides the go-ethereum client, wallet, and typed bindings
// for the prediction market contract.
package chain

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
)

// ClientConfig holds RPC connection parameters.
type ClientConfig struct {
	RPCURL    string
	ChainID   int64
	TxTimeout time.Duration
}

// Client wraps an ethclient connection pinned to an expected chain ID.
type Client struct {
	eth       *ethclient.Client
	chainID   *big.Int
	txTimeout time.Duration
}

// New dials the RPC endpoint and verifies the node serves the expected chain.
func New(ctx context.Context, cfg ClientConfig) (*Client, error) {
	eth, err := ethclient.DialContext(ctx, cfg.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("chain: dial %s: %w", cfg.RPCURL, err)
	}

	chainID, err := eth.ChainID(ctx)
	if err != nil {
		eth.Close()
		return nil, fmt.Errorf("chain: query chain id: %w", err)
	}
	if cfg.ChainID != 0 && chainID.Int64() != cfg.ChainID {
		eth.Close()
		return nil, fmt.Errorf("chain: node serves chain %d, config expects %d", chainID.Int64(), cfg.ChainID)
	}

	txTimeout := cfg.TxTimeout
	if txTimeout <= 0 {
		txTimeout = 2 * time.Minute
	}

	return &Client{eth: eth, chainID: chainID, txTimeout: txTimeout}, nil
}

// Eth returns the underlying ethclient for bindings.
func (c *Client) Eth() *ethclient.Client {
	return c.eth
}

// ChainID returns the connected chain's ID.
func (c *Client) ChainID() *big.Int {
	return new(big.Int).Set(c.chainID)
}

// Close shuts down the RPC connection.
func (c *Client) Close() {
	c.eth.Close()
}

// WaitMined blocks until the transaction is mined, bounded by the configured
// transaction timeout, and fails if the receipt reports a revert.
func (c *Client) WaitMined(ctx context.Context, tx *types.Transaction) (*types.Receipt, error) {
	waitCtx, cancel := context.WithTimeout(ctx, c.txTimeout)
	defer cancel()

	receipt, err := bind.WaitMined(waitCtx, c.eth, tx)
	if err != nil {
		return nil, fmt.Errorf("chain: wait for tx %s: %w", tx.Hash().Hex(), err)
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return receipt, fmt.Errorf("chain: tx %s reverted", tx.Hash().Hex())
	}
	return receipt, nil
}
