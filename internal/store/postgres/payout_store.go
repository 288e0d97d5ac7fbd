package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/veritaslabs/arbiterd/internal/domain"
)

// PayoutStore implements domain.PayoutStore using PostgreSQL.
type PayoutStore struct {
	pool *pgxpool.Pool
}

// NewPayoutStore creates a new PayoutStore backed by the given pool.
func NewPayoutStore(pool *pgxpool.Pool) *PayoutStore {
	return &PayoutStore{pool: pool}
}

const payoutCols = `id, dispute_id, voter, amount::text, forfeited, created_at`

// ListByDispute returns the settlement history for one dispute.
func (s *PayoutStore) ListByDispute(ctx context.Context, disputeID int64) ([]domain.Payout, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+payoutCols+` FROM payouts WHERE dispute_id = $1 ORDER BY created_at ASC`,
		disputeID,
	)
	if err != nil {
		return nil, fmt.Errorf("postgres: list payouts for dispute %d: %w", disputeID, err)
	}
	return collectPayouts(rows)
}

// ListRecent returns payouts across all disputes, newest first.
func (s *PayoutStore) ListRecent(ctx context.Context, opts domain.ListOpts) ([]domain.Payout, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.pool.Query(ctx,
		`SELECT `+payoutCols+` FROM payouts ORDER BY created_at DESC LIMIT $1 OFFSET $2`,
		limit, opts.Offset,
	)
	if err != nil {
		return nil, fmt.Errorf("postgres: list recent payouts: %w", err)
	}
	return collectPayouts(rows)
}

func collectPayouts(rows pgx.Rows) ([]domain.Payout, error) {
	defer rows.Close()

	var payouts []domain.Payout
	for rows.Next() {
		var (
			p      domain.Payout
			amount string
		)
		if err := rows.Scan(&p.ID, &p.DisputeID, &p.Voter, &amount, &p.Forfeited, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("postgres: scan payout: %w", err)
		}
		var err error
		if p.Amount, err = parseWei("amount", amount); err != nil {
			return nil, err
		}
		payouts = append(payouts, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list payouts rows: %w", err)
	}
	return payouts, nil
}
