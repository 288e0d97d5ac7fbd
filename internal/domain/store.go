package domain

import (
	"context"
	"time"
)

// ListOpts provides pagination for list queries.
type ListOpts struct {
	Limit  int
	Offset int
}

// DisputeStore persists dispute records.
//
// Implementations back a single strongly-ordered ledger: every mutation must
// check its guard condition atomically against stored state (conditional
// UPDATE, unique index) so that concurrent submissions serialize correctly
// without registry-side locking.
type DisputeStore interface {
	// Create inserts a new dispute and returns it with its allocated
	// monotonic ID. Returns ErrDuplicateActiveDispute if an open dispute
	// already exists for the same (marketContract, marketID).
	Create(ctx context.Context, d Dispute) (Dispute, error)

	GetByID(ctx context.Context, id int64) (Dispute, error)

	// ActiveIDByMarket returns the ID of the open dispute for a market, or 0
	// when none exists.
	ActiveIDByMarket(ctx context.Context, marketContract string, marketID uint64) (int64, error)

	// Finalize atomically moves an open dispute to a terminal status and
	// outcome. Returns ErrAlreadyFinalized if the dispute is already final.
	Finalize(ctx context.Context, id int64, status DisputeStatus, outcome DisputeOutcome, at time.Time) (Dispute, error)

	// ListExpiredOpen returns open disputes whose voting deadline has passed,
	// for the automatic finalization sweep.
	ListExpiredOpen(ctx context.Context, now time.Time, limit int) ([]Dispute, error)

	// ListFinalizedBefore returns terminal disputes resolved before the
	// cutoff, for cold-storage archival.
	ListFinalizedBefore(ctx context.Context, cutoff time.Time, limit int) ([]Dispute, error)
}

// VoteStore persists vote records and claim settlement.
type VoteStore interface {
	// Create inserts a vote and, in the same transaction, adds its stake to
	// the dispute's side total and escrow balance, transitioning Active to
	// VotingInProgress. Returns ErrAlreadyVoted if a vote already exists for
	// (disputeID, voter) and ErrDisputeNotActive if the dispute is no longer
	// open or its voting deadline has passed.
	Create(ctx context.Context, v Vote) error

	Get(ctx context.Context, disputeID int64, voter string) (Vote, error)

	ListByDispute(ctx context.Context, disputeID int64) ([]Vote, error)

	// SettleClaim atomically marks the vote claimed, records the payout, and
	// debits the dispute's escrow balance by the paid amount. Returns
	// ErrAlreadyClaimed if the vote was already claimed. A forfeit settles
	// with a zero debit.
	SettleClaim(ctx context.Context, p Payout) error
}

// PayoutStore reads settlement history.
type PayoutStore interface {
	ListByDispute(ctx context.Context, disputeID int64) ([]Payout, error)
	ListRecent(ctx context.Context, opts ListOpts) ([]Payout, error)
}

// AuditStore persists an append-only audit log of registry and poller events.
type AuditStore interface {
	Log(ctx context.Context, event string, detail map[string]any) error
	List(ctx context.Context, opts ListOpts) ([]AuditEntry, error)
}

// AuditEntry is a single audit log row.
type AuditEntry struct {
	ID        int64
	Event     string
	Detail    map[string]any
	CreatedAt time.Time
}

// DisputeCache caches dispute records keyed by ID and by market.
type DisputeCache interface {
	Get(ctx context.Context, id int64) (Dispute, error)
	Set(ctx context.Context, d Dispute) error
	Invalidate(ctx context.Context, id int64) error
}

// LockManager provides distributed locks, used to keep poller ticks from
// overlapping across replicas.
type LockManager interface {
	// Acquire obtains the lock or returns ErrLockHeld. The returned function
	// releases the lock and is safe to call more than once.
	Acquire(ctx context.Context, key string, ttl time.Duration) (func(), error)
}

// RateLimiter paces operations against shared infrastructure, e.g. chain
// writes between consecutive markets in a poller cycle.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
	Wait(ctx context.Context, key string) error
}

// SignalBus publishes registry and poller events for live subscribers (the
// dApp UI over WebSocket) and appends them to durable streams.
type SignalBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
	StreamAppend(ctx context.Context, stream string, payload []byte) error
}

// BlobWriter writes objects to cold storage.
type BlobWriter interface {
	Put(ctx context.Context, key string, data []byte, contentType string) error
}

// BlobReader reads objects from cold storage.
type BlobReader interface {
	Get(ctx context.Context, key string) ([]byte, error)
	List(ctx context.Context, prefix string) ([]string, error)
}
