package registry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/google/uuid"

	"github.com/veritaslabs/arbiterd/internal/domain"
)

// ClaimStake settles a voter's stake on a finalized dispute.
//
// Winning voters receive their principal plus a floored pro-rata share of
// the losing pool net of the platform fee, exactly once: the claimed flag is
// flipped in the same transaction that records the payout and debits escrow,
// so a repeated call always fails with AlreadyClaimed and can never double
// pay. Losing voters' stakes stay in the pool for the winners; their claim
// fails with LosingSideForfeits, and the vote is marked claimed to
// short-circuit repeated failing calls.
func (r *Registry) ClaimStake(ctx context.Context, disputeID int64, voter string) (*big.Int, error) {
	d, err := r.disputes.GetByID(ctx, disputeID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("registry: load dispute %d: %w", disputeID, err)
	}
	if !d.Status.Final() {
		return nil, domain.ErrDisputeNotFinalized
	}

	v, err := r.votes.Get(ctx, disputeID, voter)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, domain.ErrNoVoteRecord
		}
		return nil, fmt.Errorf("registry: load vote %d/%s: %w", disputeID, voter, err)
	}
	if v.Claimed {
		return nil, domain.ErrAlreadyClaimed
	}

	winner := winnerFromOutcome(d.Outcome)

	if v.Side != winner {
		// Forfeit: settle with a zero debit so the claimed flag blocks
		// retries, then reject the claim.
		if err := r.votes.SettleClaim(ctx, domain.Payout{
			ID:        uuid.New().String(),
			DisputeID: disputeID,
			Voter:     voter,
			Amount:    big.NewInt(0),
			Forfeited: true,
			CreatedAt: r.now().UTC(),
		}); err != nil && !errors.Is(err, domain.ErrAlreadyClaimed) {
			return nil, fmt.Errorf("registry: settle forfeit %d/%s: %w", disputeID, voter, err)
		}
		r.invalidate(ctx, disputeID)
		return nil, domain.ErrLosingSideForfeits
	}

	totalWinning, totalLosing := sideTotals(d, winner)
	payout := payoutFor(v.Stake, totalWinning, losingPoolNet(totalLosing, r.params.PlatformFeeBps))

	p := domain.Payout{
		ID:        uuid.New().String(),
		DisputeID: disputeID,
		Voter:     voter,
		Amount:    payout,
		CreatedAt: r.now().UTC(),
	}

	// The claimed flag and the escrow debit commit atomically before any
	// funds move, so the settlement is reentrancy-safe by construction.
	if err := r.votes.SettleClaim(ctx, p); err != nil {
		if errors.Is(err, domain.ErrAlreadyClaimed) {
			return nil, domain.ErrAlreadyClaimed
		}
		return nil, fmt.Errorf("registry: settle claim %d/%s: %w", disputeID, voter, err)
	}
	r.invalidate(ctx, disputeID)

	r.logger.InfoContext(ctx, "stake claimed",
		slog.Int64("dispute_id", disputeID),
		slog.String("voter", voter),
		slog.String("payout", payout.String()),
	)
	r.auditLog(ctx, eventStakeClaimed, map[string]any{
		"dispute_id": disputeID,
		"voter":      voter,
		"payout":     payout.String(),
	})
	if updated, err := r.disputes.GetByID(ctx, disputeID); err == nil {
		r.publish(ctx, chClaim, eventStakeClaimed, updated)
	}

	return payout, nil
}

// ArchivableDisputes returns finalized disputes resolved before the cutoff,
// for the cold-storage archiver.
func (r *Registry) ArchivableDisputes(ctx context.Context, cutoff time.Time, limit int) ([]domain.Dispute, error) {
	ds, err := r.disputes.ListFinalizedBefore(ctx, cutoff, limit)
	if err != nil {
		return nil, fmt.Errorf("registry: list archivable disputes: %w", err)
	}
	return ds, nil
}

// VotesForDispute exposes the vote list for archival snapshots.
func (r *Registry) VotesForDispute(ctx context.Context, disputeID int64) ([]domain.Vote, error) {
	vs, err := r.votes.ListByDispute(ctx, disputeID)
	if err != nil {
		return nil, fmt.Errorf("registry: list votes %d: %w", disputeID, err)
	}
	return vs, nil
}
