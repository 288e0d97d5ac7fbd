package chain

import (
	"context"
	"fmt"
	"math/big"

	"github.com/veritaslabs/arbiterd/internal/domain"
)

// MarketReader reads market records. Satisfied by MarketContract.
type MarketReader interface {
	Market(ctx context.Context, id uint64) (domain.Market, error)
}

// BalanceReader reads outcome-token balances. Satisfied by TokenReader.
type BalanceReader interface {
	BalanceOf(ctx context.Context, token, holder string) (*big.Int, error)
}

// SettlementConsumer computes a user's claimable winnings from a resolved
// market's outcome and their winning-token balance. It only reads contract
// state; redemption itself happens on-chain.
type SettlementConsumer struct {
	markets  MarketReader
	balances BalanceReader
}

// NewSettlementConsumer creates a SettlementConsumer over the given readers.
func NewSettlementConsumer(markets MarketReader, balances BalanceReader) *SettlementConsumer {
	return &SettlementConsumer{markets: markets, balances: balances}
}

// Claimable returns the user's claimable position on a market. An unresolved
// or undecided market yields Resolved=false with a zero amount, not an error:
// "not yet resolved" is an ordinary state the UI must distinguish.
func (s *SettlementConsumer) Claimable(ctx context.Context, marketID uint64, user string) (domain.Claimable, error) {
	m, err := s.markets.Market(ctx, marketID)
	if err != nil {
		return domain.Claimable{}, fmt.Errorf("chain: read market %d: %w", marketID, err)
	}

	out := domain.Claimable{
		MarketID: marketID,
		User:     user,
		Outcome:  m.Outcome,
		Amount:   big.NewInt(0),
	}

	settled := m.Status == domain.MarketResolved || m.Status == domain.MarketDisputed
	if !settled || m.Outcome == domain.OutcomeUndecided {
		return out, nil
	}

	winningToken := m.YesToken
	if m.Outcome == domain.OutcomeNo {
		winningToken = m.NoToken
	}

	balance, err := s.balances.BalanceOf(ctx, winningToken, user)
	if err != nil {
		return domain.Claimable{}, fmt.Errorf("chain: winning balance for %s on market %d: %w", user, marketID, err)
	}

	out.Resolved = true
	out.WinningToken = winningToken
	out.Amount = balance
	return out, nil
}
