package domain

import (
	"math/big"
	"time"
)

// DisputeStatus is the lifecycle state of a dispute. Resolved and Rejected
// are terminal: no further votes, stake changes, or status transitions are
// accepted once either is reached.
type DisputeStatus string

const (
	DisputeStatusNone             DisputeStatus = "none"
	DisputeStatusActive           DisputeStatus = "active"
	DisputeStatusVotingInProgress DisputeStatus = "voting_in_progress"
	DisputeStatusResolved         DisputeStatus = "resolved"
	DisputeStatusRejected         DisputeStatus = "rejected"
)

// Open reports whether the dispute still accepts votes (subject to the
// voting deadline, which is checked separately).
func (s DisputeStatus) Open() bool {
	return s == DisputeStatusActive || s == DisputeStatusVotingInProgress
}

// Final reports whether the dispute has reached a terminal state.
func (s DisputeStatus) Final() bool {
	return s == DisputeStatusResolved || s == DisputeStatusRejected
}

// DisputeOutcome is the decided result of a dispute.
type DisputeOutcome string

const (
	DisputeOutcomePending DisputeOutcome = "pending"
	DisputeOutcomeAccept  DisputeOutcome = "accept_dispute"
	DisputeOutcomeReject  DisputeOutcome = "reject_dispute"
)

// VoteSide is the side a voter backs with their stake.
type VoteSide string

const (
	VoteAccept VoteSide = "accept"
	VoteReject VoteSide = "reject"
)

// Valid reports whether the side is one of the two known values.
func (s VoteSide) Valid() bool {
	return s == VoteAccept || s == VoteReject
}

// Dispute is a stake-backed challenge to a market's resolved outcome.
//
// Invariants maintained by the registry:
//   - at most one dispute with an open status exists per
//     (MarketContract, MarketID) pair;
//   - TotalAcceptStake and TotalRejectStake equal the sums of the recorded
//     votes on each side, including the disputer's implicit Accept vote;
//   - EscrowBalance equals the sum of all unclaimed stake and decreases
//     monotonically as claims are paid, reaching zero when every winning
//     voter has claimed.
type Dispute struct {
	ID               int64
	MarketContract   string
	MarketID         uint64
	Disputer         string
	Reason           string
	DisputeStake     *big.Int
	Status           DisputeStatus
	Outcome          DisputeOutcome
	TotalAcceptStake *big.Int
	TotalRejectStake *big.Int
	EscrowBalance    *big.Int
	VotingEndTime    time.Time
	CreatedAt        time.Time
	ResolvedAt       *time.Time
}

// Vote is a single voter's stake on one side of a dispute. Exactly one vote
// may exist per (DisputeID, Voter); Claimed flips to true at most once.
type Vote struct {
	DisputeID int64
	Voter     string
	Side      VoteSide
	Stake     *big.Int
	Claimed   bool
	CreatedAt time.Time
}

// Payout records the settlement of a single vote: either a winning payout
// (principal plus pro-rata share of the losing pool net of the platform fee)
// or a forfeit marker for a losing vote.
type Payout struct {
	ID        string
	DisputeID int64
	Voter     string
	Amount    *big.Int
	Forfeited bool
	CreatedAt time.Time
}

// Winnings is the projection returned by CalculatePotentialWinnings. For an
// unresolved dispute it is based on current totals; once finalized it is the
// exact payout formula over the fixed totals.
type Winnings struct {
	Amount        *big.Int `json:"amount"`
	IsWinningSide bool     `json:"is_winning_side"`
}
