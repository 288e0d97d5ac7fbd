package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/veritaslabs/arbiterd/internal/domain"
)

// DisputeStore implements domain.DisputeStore using PostgreSQL.
type DisputeStore struct {
	pool *pgxpool.Pool
}

// NewDisputeStore creates a new DisputeStore backed by the given pool.
func NewDisputeStore(pool *pgxpool.Pool) *DisputeStore {
	return &DisputeStore{pool: pool}
}

const disputeCols = `id, market_contract, market_id, disputer, reason,
	dispute_stake::text, status, outcome,
	total_accept_stake::text, total_reject_stake::text, escrow_balance::text,
	voting_end_time, created_at, resolved_at`

// uniqueViolation is the PostgreSQL error code raised when the partial unique
// index on open disputes rejects a second dispute for the same market.
const uniqueViolation = "23505"

// Create inserts a new dispute. The partial unique index on open disputes is
// the authoritative single-active-dispute guard; a violation maps to
// domain.ErrDuplicateActiveDispute.
func (s *DisputeStore) Create(ctx context.Context, d domain.Dispute) (domain.Dispute, error) {
	const query = `
		INSERT INTO disputes (
			market_contract, market_id, disputer, reason, dispute_stake,
			status, outcome,
			total_accept_stake, total_reject_stake, escrow_balance,
			voting_end_time, created_at
		) VALUES (
			$1, $2, $3, $4, $5::numeric,
			$6, $7,
			$8::numeric, $9::numeric, $10::numeric,
			$11, $12
		)
		RETURNING id`

	err := s.pool.QueryRow(ctx, query,
		d.MarketContract, int64(d.MarketID), d.Disputer, d.Reason, d.DisputeStake.String(),
		string(d.Status), string(d.Outcome),
		d.TotalAcceptStake.String(), d.TotalRejectStake.String(), d.EscrowBalance.String(),
		d.VotingEndTime, d.CreatedAt,
	).Scan(&d.ID)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return domain.Dispute{}, domain.ErrDuplicateActiveDispute
		}
		return domain.Dispute{}, fmt.Errorf("postgres: create dispute for market %s/%d: %w",
			d.MarketContract, d.MarketID, err)
	}
	return d, nil
}

// GetByID retrieves a dispute by its primary key.
func (s *DisputeStore) GetByID(ctx context.Context, id int64) (domain.Dispute, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+disputeCols+` FROM disputes WHERE id = $1`, id)
	d, err := scanDispute(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Dispute{}, domain.ErrNotFound
		}
		return domain.Dispute{}, fmt.Errorf("postgres: get dispute %d: %w", id, err)
	}
	return d, nil
}

// ActiveIDByMarket returns the ID of the open dispute for a market, or 0 when
// none exists.
func (s *DisputeStore) ActiveIDByMarket(ctx context.Context, marketContract string, marketID uint64) (int64, error) {
	var id int64
	err := s.pool.QueryRow(ctx, `
		SELECT id FROM disputes
		WHERE market_contract = $1 AND market_id = $2
		  AND status IN ('active', 'voting_in_progress')`,
		marketContract, int64(marketID),
	).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("postgres: active dispute for market %s/%d: %w", marketContract, marketID, err)
	}
	return id, nil
}

// Finalize atomically moves an open dispute to a terminal status and outcome.
// The WHERE clause doubles as the guard: updating zero rows means the dispute
// is either already final or absent.
func (s *DisputeStore) Finalize(ctx context.Context, id int64, status domain.DisputeStatus, outcome domain.DisputeOutcome, at time.Time) (domain.Dispute, error) {
	row := s.pool.QueryRow(ctx, `
		UPDATE disputes
		SET status = $2, outcome = $3, resolved_at = $4
		WHERE id = $1 AND status IN ('active', 'voting_in_progress')
		RETURNING `+disputeCols,
		id, string(status), string(outcome), at,
	)
	d, err := scanDispute(row)
	if err == nil {
		return d, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return domain.Dispute{}, fmt.Errorf("postgres: finalize dispute %d: %w", id, err)
	}

	// Distinguish already-final from missing.
	var exists bool
	if err := s.pool.QueryRow(ctx,
		"SELECT EXISTS(SELECT 1 FROM disputes WHERE id = $1)", id,
	).Scan(&exists); err != nil {
		return domain.Dispute{}, fmt.Errorf("postgres: finalize dispute %d: %w", id, err)
	}
	if !exists {
		return domain.Dispute{}, domain.ErrNotFound
	}
	return domain.Dispute{}, domain.ErrAlreadyFinalized
}

// ListExpiredOpen returns open disputes whose voting deadline has passed.
func (s *DisputeStore) ListExpiredOpen(ctx context.Context, now time.Time, limit int) ([]domain.Dispute, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+disputeCols+` FROM disputes
		WHERE status IN ('active', 'voting_in_progress') AND voting_end_time <= $1
		ORDER BY voting_end_time ASC
		LIMIT $2`,
		now, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("postgres: list expired disputes: %w", err)
	}
	return collectDisputes(rows, "list expired disputes")
}

// ListFinalizedBefore returns terminal disputes resolved before the cutoff.
func (s *DisputeStore) ListFinalizedBefore(ctx context.Context, cutoff time.Time, limit int) ([]domain.Dispute, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+disputeCols+` FROM disputes
		WHERE status IN ('resolved', 'rejected') AND resolved_at < $1
		ORDER BY resolved_at ASC
		LIMIT $2`,
		cutoff, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("postgres: list finalized disputes: %w", err)
	}
	return collectDisputes(rows, "list finalized disputes")
}

// scanDispute scans a single dispute row into a domain.Dispute.
func scanDispute(row pgx.Row) (domain.Dispute, error) {
	var (
		d                             domain.Dispute
		marketID                      int64
		status, outcome               string
		stake, accept, reject, escrow string
	)
	err := row.Scan(
		&d.ID, &d.MarketContract, &marketID, &d.Disputer, &d.Reason,
		&stake, &status, &outcome,
		&accept, &reject, &escrow,
		&d.VotingEndTime, &d.CreatedAt, &d.ResolvedAt,
	)
	if err != nil {
		return domain.Dispute{}, err
	}

	d.MarketID = uint64(marketID)
	d.Status = domain.DisputeStatus(status)
	d.Outcome = domain.DisputeOutcome(outcome)

	if d.DisputeStake, err = parseWei("dispute_stake", stake); err != nil {
		return domain.Dispute{}, err
	}
	if d.TotalAcceptStake, err = parseWei("total_accept_stake", accept); err != nil {
		return domain.Dispute{}, err
	}
	if d.TotalRejectStake, err = parseWei("total_reject_stake", reject); err != nil {
		return domain.Dispute{}, err
	}
	if d.EscrowBalance, err = parseWei("escrow_balance", escrow); err != nil {
		return domain.Dispute{}, err
	}
	return d, nil
}

func collectDisputes(rows pgx.Rows, op string) ([]domain.Dispute, error) {
	defer rows.Close()

	var disputes []domain.Dispute
	for rows.Next() {
		d, err := scanDispute(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: %s: scan: %w", op, err)
		}
		disputes = append(disputes, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: %s: rows: %w", op, err)
	}
	return disputes, nil
}
