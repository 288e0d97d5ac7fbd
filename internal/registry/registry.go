// Package registry implements the dispute registry: creation of
// stake-backed disputes against resolved markets, stake-weighted voting,
// time-boxed finalization, and claim settlement of the escrowed pools.
//
// The registry performs no locking of its own. All state transitions are
// guarded by atomic store operations (conditional updates, unique indexes)
// so concurrent submissions serialize exactly like calls against a single
// ordered ledger.
package registry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/veritaslabs/arbiterd/internal/domain"
)

// Registry coordinates dispute lifecycle state across the stores and caches.
type Registry struct {
	disputes domain.DisputeStore
	votes    domain.VoteStore
	payouts  domain.PayoutStore
	audit    domain.AuditStore
	cache    domain.DisputeCache
	bus      domain.SignalBus
	params   domain.RegistryParams
	logger   *slog.Logger

	// now is swappable in tests to pin the clock.
	now func() time.Time
}

// New creates a Registry. The audit store, cache, and signal bus are
// optional; a nil value disables the corresponding side effect.
func New(
	disputes domain.DisputeStore,
	votes domain.VoteStore,
	payouts domain.PayoutStore,
	audit domain.AuditStore,
	cache domain.DisputeCache,
	bus domain.SignalBus,
	params domain.RegistryParams,
	logger *slog.Logger,
) (*Registry, error) {
	if err := params.Validate(); err != nil {
		return nil, fmt.Errorf("registry: invalid params: %w", err)
	}
	return &Registry{
		disputes: disputes,
		votes:    votes,
		payouts:  payouts,
		audit:    audit,
		cache:    cache,
		bus:      bus,
		params:   params,
		logger:   logger.With(slog.String("component", "registry")),
		now:      time.Now,
	}, nil
}

// Params returns the registry's configured parameters.
func (r *Registry) Params() domain.RegistryParams {
	return r.params
}

// CreateDispute opens a dispute against a market's resolution. The stake is
// escrowed and counted as an Accept-side vote: a genuine Vote record is
// created for the disputer so voting and claim invariants apply to them
// uniformly.
func (r *Registry) CreateDispute(ctx context.Context, marketContract string, marketID uint64, disputer, reason string, stake *big.Int) (domain.Dispute, error) {
	if stake == nil || stake.Cmp(r.params.MinimumDisputeStake) < 0 {
		return domain.Dispute{}, domain.ErrInsufficientStake
	}

	// Pre-check for a friendlier error; the store's partial unique index is
	// the authoritative guard under concurrency.
	if id, err := r.disputes.ActiveIDByMarket(ctx, marketContract, marketID); err != nil {
		return domain.Dispute{}, fmt.Errorf("registry: check active dispute: %w", err)
	} else if id != 0 {
		return domain.Dispute{}, domain.ErrDuplicateActiveDispute
	}

	now := r.now().UTC()
	d := domain.Dispute{
		MarketContract:   marketContract,
		MarketID:         marketID,
		Disputer:         disputer,
		Reason:           reason,
		DisputeStake:     new(big.Int).Set(stake),
		Status:           domain.DisputeStatusActive,
		Outcome:          domain.DisputeOutcomePending,
		TotalAcceptStake: new(big.Int).Set(stake),
		TotalRejectStake: big.NewInt(0),
		EscrowBalance:    new(big.Int).Set(stake),
		VotingEndTime:    now.Add(r.params.VotingPeriod),
		CreatedAt:        now,
	}

	created, err := r.disputes.Create(ctx, d)
	if err != nil {
		if errors.Is(err, domain.ErrDuplicateActiveDispute) {
			return domain.Dispute{}, domain.ErrDuplicateActiveDispute
		}
		return domain.Dispute{}, fmt.Errorf("registry: create dispute: %w", err)
	}

	// The disputer's implicit Accept vote. Totals were seeded at insert, so
	// this records the vote row without re-adding stake.
	if err := r.votes.Create(ctx, domain.Vote{
		DisputeID: created.ID,
		Voter:     disputer,
		Side:      domain.VoteAccept,
		Stake:     new(big.Int).Set(stake),
		CreatedAt: now,
	}); err != nil && !errors.Is(err, domain.ErrAlreadyVoted) {
		return domain.Dispute{}, fmt.Errorf("registry: record disputer vote: %w", err)
	}

	r.logger.InfoContext(ctx, "dispute created",
		slog.Int64("dispute_id", created.ID),
		slog.String("market_contract", marketContract),
		slog.Uint64("market_id", marketID),
		slog.String("disputer", disputer),
		slog.String("stake", stake.String()),
		slog.Time("voting_end", created.VotingEndTime),
	)
	r.auditLog(ctx, "dispute_created", map[string]any{
		"dispute_id":      created.ID,
		"market_contract": marketContract,
		"market_id":       marketID,
		"disputer":        disputer,
		"stake":           stake.String(),
	})
	r.publish(ctx, chDispute, eventDisputeCreated, created)

	return created, nil
}

// GetMarketDispute returns the ID of the open dispute for a market, or 0
// when none exists.
func (r *Registry) GetMarketDispute(ctx context.Context, marketContract string, marketID uint64) (int64, error) {
	id, err := r.disputes.ActiveIDByMarket(ctx, marketContract, marketID)
	if err != nil {
		return 0, fmt.Errorf("registry: market dispute lookup: %w", err)
	}
	return id, nil
}

// GetDisputeInfo returns the full dispute record, checking the cache first
// and falling back to the store on a miss.
func (r *Registry) GetDisputeInfo(ctx context.Context, id int64) (domain.Dispute, error) {
	if id <= 0 {
		return domain.Dispute{}, domain.ErrNotFound
	}

	if r.cache != nil {
		if d, err := r.cache.Get(ctx, id); err == nil {
			return d, nil
		}
	}

	d, err := r.disputes.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.Dispute{}, domain.ErrNotFound
		}
		return domain.Dispute{}, fmt.Errorf("registry: get dispute %d: %w", id, err)
	}

	if r.cache != nil {
		if cacheErr := r.cache.Set(ctx, d); cacheErr != nil {
			r.logger.WarnContext(ctx, "dispute cache set failed",
				slog.Int64("dispute_id", id),
				slog.String("error", cacheErr.Error()),
			)
		}
	}

	return d, nil
}

// GetVoteInfo returns a voter's vote record for a dispute.
func (r *Registry) GetVoteInfo(ctx context.Context, disputeID int64, voter string) (domain.Vote, error) {
	v, err := r.votes.Get(ctx, disputeID, voter)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.Vote{}, domain.ErrNotFound
		}
		return domain.Vote{}, fmt.Errorf("registry: get vote %d/%s: %w", disputeID, voter, err)
	}
	return v, nil
}

// ListPayouts returns the settlement history for a dispute.
func (r *Registry) ListPayouts(ctx context.Context, disputeID int64) ([]domain.Payout, error) {
	ps, err := r.payouts.ListByDispute(ctx, disputeID)
	if err != nil {
		return nil, fmt.Errorf("registry: list payouts %d: %w", disputeID, err)
	}
	return ps, nil
}

// auditLog writes to the audit store when one is configured. Audit failures
// are logged, never propagated: the state transition already committed.
func (r *Registry) auditLog(ctx context.Context, event string, detail map[string]any) {
	if r.audit == nil {
		return
	}
	if err := r.audit.Log(ctx, event, detail); err != nil {
		r.logger.WarnContext(ctx, "audit log failed",
			slog.String("event", event),
			slog.String("error", err.Error()),
		)
	}
}

// invalidate drops the cached copy of a dispute after a mutation.
func (r *Registry) invalidate(ctx context.Context, id int64) {
	if r.cache == nil {
		return
	}
	if err := r.cache.Invalidate(ctx, id); err != nil {
		r.logger.WarnContext(ctx, "dispute cache invalidate failed",
			slog.Int64("dispute_id", id),
			slog.String("error", err.Error()),
		)
	}
}
