package chain

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"

	"github.com/veritaslabs/arbiterd/internal/domain"
)

// marketABI covers the slice of the prediction market contract this service
// touches: the market view, the count, and the two resolution entry points.
const marketABI = `[
	{"name":"marketCount","type":"function","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256"}]},
	{"name":"markets","type":"function","stateMutability":"view","inputs":[{"name":"id","type":"uint256"}],"outputs":[
		{"name":"question","type":"string"},
		{"name":"endTime","type":"uint256"},
		{"name":"status","type":"uint8"},
		{"name":"outcome","type":"uint8"},
		{"name":"yesToken","type":"address"},
		{"name":"noToken","type":"address"},
		{"name":"resolutionReason","type":"string"},
		{"name":"resolutionConfidence","type":"uint8"}
	]},
	{"name":"requestResolution","type":"function","stateMutability":"nonpayable","inputs":[{"name":"id","type":"uint256"}],"outputs":[]},
	{"name":"resolveMarket","type":"function","stateMutability":"nonpayable","inputs":[
		{"name":"id","type":"uint256"},
		{"name":"outcome","type":"uint8"},
		{"name":"reason","type":"string"},
		{"name":"confidence","type":"uint8"}
	],"outputs":[]}
]`

// MarketContract is the typed binding for the prediction market contract.
// Reads work without a wallet; writes require one.
type MarketContract struct {
	client   *Client
	wallet   *Wallet
	contract *bind.BoundContract
	address  common.Address
	gasLimit uint64
}

// NewMarketContract binds the market contract at address. wallet may be nil
// for read-only use.
func NewMarketContract(client *Client, wallet *Wallet, address string, gasLimit uint64) (*MarketContract, error) {
	parsed, err := abi.JSON(strings.NewReader(marketABI))
	if err != nil {
		return nil, fmt.Errorf("chain: parse market abi: %w", err)
	}

	addr := common.HexToAddress(address)
	return &MarketContract{
		client:   client,
		wallet:   wallet,
		contract: bind.NewBoundContract(addr, parsed, client.Eth(), client.Eth(), client.Eth()),
		address:  addr,
		gasLimit: gasLimit,
	}, nil
}

// Address returns the bound contract address.
func (m *MarketContract) Address() common.Address {
	return m.address
}

// MarketCount returns the number of markets the contract has created.
func (m *MarketContract) MarketCount(ctx context.Context) (uint64, error) {
	var out []interface{}
	err := m.contract.Call(&bind.CallOpts{Context: ctx}, &out, "marketCount")
	if err != nil {
		return 0, fmt.Errorf("chain: call marketCount: %w", err)
	}
	count, ok := out[0].(*big.Int)
	if !ok {
		return 0, fmt.Errorf("chain: marketCount returned unexpected type %T", out[0])
	}
	return count.Uint64(), nil
}

// Market reads a single market record.
func (m *MarketContract) Market(ctx context.Context, id uint64) (domain.Market, error) {
	var out []interface{}
	err := m.contract.Call(&bind.CallOpts{Context: ctx}, &out, "markets", new(big.Int).SetUint64(id))
	if err != nil {
		return domain.Market{}, fmt.Errorf("chain: call markets(%d): %w", id, err)
	}
	if len(out) != 8 {
		return domain.Market{}, fmt.Errorf("chain: markets(%d) returned %d values, want 8", id, len(out))
	}

	endTime, ok := out[1].(*big.Int)
	if !ok {
		return domain.Market{}, fmt.Errorf("chain: markets(%d) endTime has type %T", id, out[1])
	}

	return domain.Market{
		ID:                   id,
		Question:             out[0].(string),
		EndTime:              time.Unix(endTime.Int64(), 0).UTC(),
		Status:               domain.MarketStatus(out[2].(uint8)),
		Outcome:              domain.MarketOutcome(out[3].(uint8)),
		YesToken:             out[4].(common.Address).Hex(),
		NoToken:              out[5].(common.Address).Hex(),
		ResolutionReason:     out[6].(string),
		ResolutionConfidence: out[7].(uint8),
	}, nil
}

// RequestResolution submits the status transition to ResolutionRequested and
// waits for the transaction to be mined.
func (m *MarketContract) RequestResolution(ctx context.Context, id uint64) error {
	opts, err := m.transactOpts(ctx)
	if err != nil {
		return err
	}

	tx, err := m.contract.Transact(opts, "requestResolution", new(big.Int).SetUint64(id))
	if err != nil {
		return fmt.Errorf("chain: requestResolution(%d): %w", id, err)
	}
	if _, err := m.client.WaitMined(ctx, tx); err != nil {
		return fmt.Errorf("chain: requestResolution(%d): %w", id, err)
	}
	return nil
}

// ResolveMarket submits the oracle-backed final resolution and waits for the
// transaction to be mined.
func (m *MarketContract) ResolveMarket(ctx context.Context, id uint64, outcome domain.MarketOutcome, reason string, confidence uint8) error {
	opts, err := m.transactOpts(ctx)
	if err != nil {
		return err
	}

	tx, err := m.contract.Transact(opts, "resolveMarket",
		new(big.Int).SetUint64(id), uint8(outcome), reason, confidence)
	if err != nil {
		return fmt.Errorf("chain: resolveMarket(%d): %w", id, err)
	}
	if _, err := m.client.WaitMined(ctx, tx); err != nil {
		return fmt.Errorf("chain: resolveMarket(%d): %w", id, err)
	}
	return nil
}

func (m *MarketContract) transactOpts(ctx context.Context) (*bind.TransactOpts, error) {
	if m.wallet == nil {
		return nil, fmt.Errorf("chain: no wallet configured for contract writes")
	}
	opts, err := m.wallet.TransactOpts()
	if err != nil {
		return nil, err
	}
	opts.Context = ctx
	opts.GasLimit = m.gasLimit
	return opts, nil
}
