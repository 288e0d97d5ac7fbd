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

// VoteStore implements domain.VoteStore using PostgreSQL.
type VoteStore struct {
	pool *pgxpool.Pool
}

// NewVoteStore creates a new VoteStore backed by the given pool.
func NewVoteStore(pool *pgxpool.Pool) *VoteStore {
	return &VoteStore{pool: pool}
}

const voteCols = `dispute_id, voter, side, stake::text, claimed, created_at`

// Create inserts a vote and, in the same transaction, adds its stake to the
// dispute's side total and escrow balance. The dispute row is locked for the
// duration so concurrent votes serialize on the totals.
//
// The disputer's own vote is the exception: its stake is already counted in
// the totals seeded at dispute creation, so only the vote row is written.
func (s *VoteStore) Create(ctx context.Context, v domain.Vote) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("postgres: begin vote tx: %w", err)
	}
	defer tx.Rollback(ctx)

	var (
		disputer  string
		status    string
		votingEnd time.Time
	)
	err = tx.QueryRow(ctx, `
		SELECT disputer, status, voting_end_time FROM disputes
		WHERE id = $1
		FOR UPDATE`,
		v.DisputeID,
	).Scan(&disputer, &status, &votingEnd)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("postgres: lock dispute %d: %w", v.DisputeID, err)
	}
	if !domain.DisputeStatus(status).Open() || !v.CreatedAt.Before(votingEnd) {
		return domain.ErrDisputeNotActive
	}

	seeded := false
	if v.Voter == disputer {
		var count int64
		if err := tx.QueryRow(ctx,
			"SELECT COUNT(*) FROM votes WHERE dispute_id = $1", v.DisputeID,
		).Scan(&count); err != nil {
			return fmt.Errorf("postgres: count votes for dispute %d: %w", v.DisputeID, err)
		}
		seeded = count == 0
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO votes (dispute_id, voter, side, stake, claimed, created_at)
		VALUES ($1, $2, $3, $4::numeric, FALSE, $5)`,
		v.DisputeID, v.Voter, string(v.Side), v.Stake.String(), v.CreatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return domain.ErrAlreadyVoted
		}
		return fmt.Errorf("postgres: insert vote %d/%s: %w", v.DisputeID, v.Voter, err)
	}

	if !seeded {
		column := "total_accept_stake"
		if v.Side == domain.VoteReject {
			column = "total_reject_stake"
		}
		_, err = tx.Exec(ctx, `
			UPDATE disputes
			SET `+column+` = `+column+` + $2::numeric,
			    escrow_balance = escrow_balance + $2::numeric,
			    status = 'voting_in_progress'
			WHERE id = $1`,
			v.DisputeID, v.Stake.String(),
		)
		if err != nil {
			return fmt.Errorf("postgres: add stake to dispute %d: %w", v.DisputeID, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("postgres: commit vote %d/%s: %w", v.DisputeID, v.Voter, err)
	}
	return nil
}

// Get retrieves a single vote by dispute and voter.
func (s *VoteStore) Get(ctx context.Context, disputeID int64, voter string) (domain.Vote, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+voteCols+` FROM votes WHERE dispute_id = $1 AND voter = $2`,
		disputeID, voter,
	)
	v, err := scanVote(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Vote{}, domain.ErrNotFound
		}
		return domain.Vote{}, fmt.Errorf("postgres: get vote %d/%s: %w", disputeID, voter, err)
	}
	return v, nil
}

// ListByDispute returns all votes on a dispute in voting order.
func (s *VoteStore) ListByDispute(ctx context.Context, disputeID int64) ([]domain.Vote, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+voteCols+` FROM votes WHERE dispute_id = $1 ORDER BY created_at ASC`,
		disputeID,
	)
	if err != nil {
		return nil, fmt.Errorf("postgres: list votes for dispute %d: %w", disputeID, err)
	}
	defer rows.Close()

	var votes []domain.Vote
	for rows.Next() {
		v, err := scanVote(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan vote: %w", err)
		}
		votes = append(votes, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list votes rows: %w", err)
	}
	return votes, nil
}

// SettleClaim atomically marks the vote claimed, records the payout, and
// debits the dispute's escrow balance. The conditional claimed-flag update is
// the idempotency guard: once a settlement commits, every retry observes
// claimed = TRUE and fails with ErrAlreadyClaimed.
func (s *VoteStore) SettleClaim(ctx context.Context, p domain.Payout) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("postgres: begin claim tx: %w", err)
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `
		UPDATE votes SET claimed = TRUE
		WHERE dispute_id = $1 AND voter = $2 AND claimed = FALSE`,
		p.DisputeID, p.Voter,
	)
	if err != nil {
		return fmt.Errorf("postgres: mark vote claimed %d/%s: %w", p.DisputeID, p.Voter, err)
	}
	if tag.RowsAffected() == 0 {
		var exists bool
		if err := tx.QueryRow(ctx,
			"SELECT EXISTS(SELECT 1 FROM votes WHERE dispute_id = $1 AND voter = $2)",
			p.DisputeID, p.Voter,
		).Scan(&exists); err != nil {
			return fmt.Errorf("postgres: check vote %d/%s: %w", p.DisputeID, p.Voter, err)
		}
		if !exists {
			return domain.ErrNotFound
		}
		return domain.ErrAlreadyClaimed
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO payouts (id, dispute_id, voter, amount, forfeited, created_at)
		VALUES ($1, $2, $3, $4::numeric, $5, $6)`,
		p.ID, p.DisputeID, p.Voter, p.Amount.String(), p.Forfeited, p.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: insert payout %s: %w", p.ID, err)
	}

	// A forfeit debits zero; the row exists only as settlement history.
	_, err = tx.Exec(ctx, `
		UPDATE disputes
		SET escrow_balance = escrow_balance - $2::numeric
		WHERE id = $1`,
		p.DisputeID, p.Amount.String(),
	)
	if err != nil {
		return fmt.Errorf("postgres: debit escrow for dispute %d: %w", p.DisputeID, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("postgres: commit claim %d/%s: %w", p.DisputeID, p.Voter, err)
	}
	return nil
}

func scanVote(row pgx.Row) (domain.Vote, error) {
	var (
		v     domain.Vote
		side  string
		stake string
	)
	if err := row.Scan(&v.DisputeID, &v.Voter, &side, &stake, &v.Claimed, &v.CreatedAt); err != nil {
		return domain.Vote{}, err
	}
	v.Side = domain.VoteSide(side)

	var err error
	if v.Stake, err = parseWei("stake", stake); err != nil {
		return domain.Vote{}, err
	}
	return v, nil
}
