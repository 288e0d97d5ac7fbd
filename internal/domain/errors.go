package domain

import "errors"

// Guard violations. These are terminal rejections of a single call and must
// be surfaced verbatim to the caller, never masked as a generic failure.
var (
	ErrInsufficientStake      = errors.New("stake below minimum dispute stake")
	ErrBelowMinimumVoteStake  = errors.New("stake below minimum vote stake")
	ErrDuplicateActiveDispute = errors.New("active dispute already exists for market")
	ErrAlreadyVoted           = errors.New("already voted")
	ErrDisputeNotActive       = errors.New("dispute not active")
	ErrVotingStillOpen        = errors.New("voting period still open")
	ErrAlreadyFinalized       = errors.New("dispute already finalized")
	ErrUnauthorized           = errors.New("unauthorized")
	ErrNotFound               = errors.New("not found")
	ErrNoVoteRecord           = errors.New("no vote record for caller")
	ErrAlreadyClaimed         = errors.New("stake already claimed")
	ErrLosingSideForfeits     = errors.New("losing side forfeits stake")
	ErrDisputeNotFinalized    = errors.New("dispute not finalized")
)

// Infrastructure errors.
var (
	ErrLockHeld    = errors.New("lock already held")
	ErrContextDone = errors.New("context cancelled")
)
