package registry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"

	"github.com/veritaslabs/arbiterd/internal/domain"
)

// VoteOnDispute records a stake-weighted vote on an open dispute. Each voter
// may vote exactly once per dispute; the stake is escrowed and added to the
// chosen side's running total.
func (r *Registry) VoteOnDispute(ctx context.Context, disputeID int64, voter string, side domain.VoteSide, stake *big.Int) (domain.Vote, error) {
	if !side.Valid() {
		return domain.Vote{}, fmt.Errorf("registry: invalid vote side %q", side)
	}
	if stake == nil || stake.Cmp(r.params.MinimumVoteStake) < 0 {
		return domain.Vote{}, domain.ErrBelowMinimumVoteStake
	}

	d, err := r.disputes.GetByID(ctx, disputeID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.Vote{}, domain.ErrNotFound
		}
		return domain.Vote{}, fmt.Errorf("registry: load dispute %d: %w", disputeID, err)
	}
	if !d.Status.Open() || !r.now().Before(d.VotingEndTime) {
		return domain.Vote{}, domain.ErrDisputeNotActive
	}

	v := domain.Vote{
		DisputeID: disputeID,
		Voter:     voter,
		Side:      side,
		Stake:     new(big.Int).Set(stake),
		CreatedAt: r.now().UTC(),
	}

	// The store applies the vote row and the side-total/escrow update in one
	// transaction, re-checking the open status and deadline so a concurrent
	// finalization cannot be outraced.
	if err := r.votes.Create(ctx, v); err != nil {
		switch {
		case errors.Is(err, domain.ErrAlreadyVoted):
			return domain.Vote{}, domain.ErrAlreadyVoted
		case errors.Is(err, domain.ErrDisputeNotActive):
			return domain.Vote{}, domain.ErrDisputeNotActive
		}
		return domain.Vote{}, fmt.Errorf("registry: record vote: %w", err)
	}
	r.invalidate(ctx, disputeID)

	r.logger.InfoContext(ctx, "vote cast",
		slog.Int64("dispute_id", disputeID),
		slog.String("voter", voter),
		slog.String("side", string(side)),
		slog.String("stake", stake.String()),
	)

	if updated, err := r.disputes.GetByID(ctx, disputeID); err == nil {
		r.publish(ctx, chVote, eventVoteCast, updated)
	}

	return v, nil
}

// CalculatePotentialWinnings projects a voter's settlement. For an open
// dispute it uses the current totals and the currently leading side; for a
// finalized dispute it is the exact payout formula over the fixed totals.
// The amount is zero when the voter is on the losing (or trailing) side.
func (r *Registry) CalculatePotentialWinnings(ctx context.Context, disputeID int64, voter string) (domain.Winnings, error) {
	d, err := r.GetDisputeInfo(ctx, disputeID)
	if err != nil {
		return domain.Winnings{}, err
	}

	v, err := r.votes.Get(ctx, disputeID, voter)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.Winnings{}, domain.ErrNoVoteRecord
		}
		return domain.Winnings{}, fmt.Errorf("registry: load vote %d/%s: %w", disputeID, voter, err)
	}

	var winner domain.VoteSide
	if d.Status.Final() {
		winner = winnerFromOutcome(d.Outcome)
	} else {
		winner = winningSide(d.TotalAcceptStake, d.TotalRejectStake)
	}

	if v.Side != winner {
		return domain.Winnings{Amount: big.NewInt(0), IsWinningSide: false}, nil
	}

	totalWinning, totalLosing := sideTotals(d, winner)
	net := losingPoolNet(totalLosing, r.params.PlatformFeeBps)
	return domain.Winnings{
		Amount:        payoutFor(v.Stake, totalWinning, net),
		IsWinningSide: true,
	}, nil
}
