package registry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/veritaslabs/arbiterd/internal/domain"
)

// FinalizeDispute closes voting on a dispute whose deadline has passed and
// fixes the outcome by the stake-majority rule (ties reject). Calling before
// the deadline fails with VotingStillOpen; calling again after finalization
// fails with AlreadyFinalized.
func (r *Registry) FinalizeDispute(ctx context.Context, disputeID int64) (domain.Dispute, error) {
	d, err := r.disputes.GetByID(ctx, disputeID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.Dispute{}, domain.ErrNotFound
		}
		return domain.Dispute{}, fmt.Errorf("registry: load dispute %d: %w", disputeID, err)
	}
	if d.Status.Final() {
		return domain.Dispute{}, domain.ErrAlreadyFinalized
	}
	if r.now().Before(d.VotingEndTime) {
		return domain.Dispute{}, domain.ErrVotingStillOpen
	}

	status, outcome := finalFor(winningSide(d.TotalAcceptStake, d.TotalRejectStake))

	final, err := r.disputes.Finalize(ctx, disputeID, status, outcome, r.now().UTC())
	if err != nil {
		if errors.Is(err, domain.ErrAlreadyFinalized) {
			return domain.Dispute{}, domain.ErrAlreadyFinalized
		}
		return domain.Dispute{}, fmt.Errorf("registry: finalize dispute %d: %w", disputeID, err)
	}
	r.invalidate(ctx, disputeID)

	r.logger.InfoContext(ctx, "dispute finalized",
		slog.Int64("dispute_id", disputeID),
		slog.String("status", string(final.Status)),
		slog.String("outcome", string(final.Outcome)),
		slog.String("accept_stake", final.TotalAcceptStake.String()),
		slog.String("reject_stake", final.TotalRejectStake.String()),
	)
	r.auditLog(ctx, eventDisputeFinalized, map[string]any{
		"dispute_id":   disputeID,
		"status":       string(final.Status),
		"outcome":      string(final.Outcome),
		"accept_stake": final.TotalAcceptStake.String(),
		"reject_stake": final.TotalRejectStake.String(),
	})
	r.publish(ctx, chDispute, eventDisputeFinalized, final)

	return final, nil
}

// AuthorityResolveDispute lets the configured resolution authority fix a
// dispute's outcome directly, bypassing the stake tally entirely. This is
// the escape hatch for ambiguous or contested votes: the override is
// unconditional and ignores the vote totals, even a unanimous majority on
// the other side.
func (r *Registry) AuthorityResolveDispute(ctx context.Context, caller string, disputeID int64, acceptDispute bool, note string) (domain.Dispute, error) {
	if !strings.EqualFold(caller, r.params.ResolutionAuthority) {
		return domain.Dispute{}, domain.ErrUnauthorized
	}

	d, err := r.disputes.GetByID(ctx, disputeID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.Dispute{}, domain.ErrNotFound
		}
		return domain.Dispute{}, fmt.Errorf("registry: load dispute %d: %w", disputeID, err)
	}
	if d.Status.Final() {
		return domain.Dispute{}, domain.ErrAlreadyFinalized
	}

	status, outcome := domain.DisputeStatusRejected, domain.DisputeOutcomeReject
	if acceptDispute {
		status, outcome = domain.DisputeStatusResolved, domain.DisputeOutcomeAccept
	}

	final, err := r.disputes.Finalize(ctx, disputeID, status, outcome, r.now().UTC())
	if err != nil {
		if errors.Is(err, domain.ErrAlreadyFinalized) {
			return domain.Dispute{}, domain.ErrAlreadyFinalized
		}
		return domain.Dispute{}, fmt.Errorf("registry: authority resolve dispute %d: %w", disputeID, err)
	}
	r.invalidate(ctx, disputeID)

	r.logger.InfoContext(ctx, "dispute resolved by authority",
		slog.Int64("dispute_id", disputeID),
		slog.Bool("accept_dispute", acceptDispute),
		slog.String("note", note),
	)
	r.auditLog(ctx, eventAuthorityResolve, map[string]any{
		"dispute_id":     disputeID,
		"accept_dispute": acceptDispute,
		"note":           note,
		"caller":         caller,
	})
	r.publish(ctx, chDispute, eventAuthorityResolve, final)

	return final, nil
}

// SweepExpired finalizes every open dispute whose voting deadline has
// passed. The resolution poller calls this each cycle so disputes settle
// without an explicit finalize transaction. Returns the number finalized.
func (r *Registry) SweepExpired(ctx context.Context, limit int) (int, error) {
	expired, err := r.disputes.ListExpiredOpen(ctx, r.now(), limit)
	if err != nil {
		return 0, fmt.Errorf("registry: list expired disputes: %w", err)
	}

	finalized := 0
	for _, d := range expired {
		if _, err := r.FinalizeDispute(ctx, d.ID); err != nil {
			// A concurrent finalizer may have won the race; anything else is
			// logged and the sweep continues with the next dispute.
			if errors.Is(err, domain.ErrAlreadyFinalized) {
				continue
			}
			r.logger.ErrorContext(ctx, "expired dispute finalization failed",
				slog.Int64("dispute_id", d.ID),
				slog.String("error", err.Error()),
			)
			continue
		}
		finalized++
	}
	return finalized, nil
}
