package registry

import (
	"math/big"

	"github.com/veritaslabs/arbiterd/internal/domain"
)

const feeDenominator = 10_000

// winningSide applies the stake-majority rule: the side with strictly
// greater total stake wins, and an exact tie resolves to Reject. Ties favor
// upholding the original market resolution; downstream integrations depend
// on this exact behavior.
func winningSide(totalAccept, totalReject *big.Int) domain.VoteSide {
	if totalAccept.Cmp(totalReject) > 0 {
		return domain.VoteAccept
	}
	return domain.VoteReject
}

// losingPoolNet returns the losing pool after the platform fee:
// losing * (10000 - feeBps) / 10000, floored. Multiplication happens before
// division so truncation bias never exceeds one unit.
func losingPoolNet(totalLosing *big.Int, feeBps int64) *big.Int {
	net := new(big.Int).Mul(totalLosing, big.NewInt(feeDenominator-feeBps))
	return net.Quo(net, big.NewInt(feeDenominator))
}

// payoutFor computes a winning voter's settlement: return of principal plus
// a pro-rata share of the net losing pool.
//
//	payout = stake + stake * losingNet / totalWinning
//
// The share is floored, never rounded up, so the escrow pool can never be
// over-distributed; the rounding-down slack is bounded by one unit per
// winning claimant and stays in escrow.
func payoutFor(stake, totalWinning, losingNet *big.Int) *big.Int {
	payout := new(big.Int).Set(stake)
	if totalWinning.Sign() == 0 {
		return payout
	}
	share := new(big.Int).Mul(stake, losingNet)
	share.Quo(share, totalWinning)
	return payout.Add(payout, share)
}

// sideTotals splits the dispute totals into (winning, losing) for the given
// winning side.
func sideTotals(d domain.Dispute, winner domain.VoteSide) (totalWinning, totalLosing *big.Int) {
	if winner == domain.VoteAccept {
		return d.TotalAcceptStake, d.TotalRejectStake
	}
	return d.TotalRejectStake, d.TotalAcceptStake
}

// finalFor maps a winning side to the terminal dispute status and outcome.
func finalFor(winner domain.VoteSide) (domain.DisputeStatus, domain.DisputeOutcome) {
	if winner == domain.VoteAccept {
		return domain.DisputeStatusResolved, domain.DisputeOutcomeAccept
	}
	return domain.DisputeStatusRejected, domain.DisputeOutcomeReject
}

// winnerFromOutcome recovers the winning vote side from a finalized
// dispute's outcome.
func winnerFromOutcome(o domain.DisputeOutcome) domain.VoteSide {
	if o == domain.DisputeOutcomeAccept {
		return domain.VoteAccept
	}
	return domain.VoteReject
}
