package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/veritaslabs/arbiterd/internal/domain"
)

const defaultDisputeTTL = 10 * time.Minute

// cachedDispute is the JSON shape stored in Redis. Stake fields are decimal
// strings so 256-bit amounts survive the round trip without float damage.
type cachedDispute struct {
	ID               int64      `json:"id"`
	MarketContract   string     `json:"market_contract"`
	MarketID         uint64     `json:"market_id"`
	Disputer         string     `json:"disputer"`
	Reason           string     `json:"reason"`
	DisputeStake     string     `json:"dispute_stake"`
	Status           string     `json:"status"`
	Outcome          string     `json:"outcome"`
	TotalAcceptStake string     `json:"total_accept_stake"`
	TotalRejectStake string     `json:"total_reject_stake"`
	EscrowBalance    string     `json:"escrow_balance"`
	VotingEndTime    time.Time  `json:"voting_end_time"`
	CreatedAt        time.Time  `json:"created_at"`
	ResolvedAt       *time.Time `json:"resolved_at,omitempty"`
}

// DisputeCache implements domain.DisputeCache using JSON values keyed by
// dispute ID.
//
// Key schema:
//
//	dispute:{id} - JSON-serialized dispute record
type DisputeCache struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewDisputeCache creates a DisputeCache backed by the given Client. A
// non-positive ttl falls back to the default.
func NewDisputeCache(c *Client, ttl time.Duration) *DisputeCache {
	if ttl <= 0 {
		ttl = defaultDisputeTTL
	}
	return &DisputeCache{rdb: c.Underlying(), ttl: ttl}
}

func disputeKey(id int64) string {
	return "dispute:" + strconv.FormatInt(id, 10)
}

// Set stores a dispute record with the cache TTL.
func (dc *DisputeCache) Set(ctx context.Context, d domain.Dispute) error {
	data, err := json.Marshal(toCached(d))
	if err != nil {
		return fmt.Errorf("redis: marshal dispute %d: %w", d.ID, err)
	}
	if err := dc.rdb.Set(ctx, disputeKey(d.ID), data, dc.ttl).Err(); err != nil {
		return fmt.Errorf("redis: set dispute %d: %w", d.ID, err)
	}
	return nil
}

// Get retrieves a dispute by ID. It returns domain.ErrNotFound on a cache
// miss.
func (dc *DisputeCache) Get(ctx context.Context, id int64) (domain.Dispute, error) {
	data, err := dc.rdb.Get(ctx, disputeKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return domain.Dispute{}, domain.ErrNotFound
		}
		return domain.Dispute{}, fmt.Errorf("redis: get dispute %d: %w", id, err)
	}

	var c cachedDispute
	if err := json.Unmarshal(data, &c); err != nil {
		return domain.Dispute{}, fmt.Errorf("redis: unmarshal dispute %d: %w", id, err)
	}
	return fromCached(c)
}

// Invalidate removes a dispute from the cache.
func (dc *DisputeCache) Invalidate(ctx context.Context, id int64) error {
	if err := dc.rdb.Del(ctx, disputeKey(id)).Err(); err != nil {
		return fmt.Errorf("redis: invalidate dispute %d: %w", id, err)
	}
	return nil
}

func toCached(d domain.Dispute) cachedDispute {
	return cachedDispute{
		ID:               d.ID,
		MarketContract:   d.MarketContract,
		MarketID:         d.MarketID,
		Disputer:         d.Disputer,
		Reason:           d.Reason,
		DisputeStake:     d.DisputeStake.String(),
		Status:           string(d.Status),
		Outcome:          string(d.Outcome),
		TotalAcceptStake: d.TotalAcceptStake.String(),
		TotalRejectStake: d.TotalRejectStake.String(),
		EscrowBalance:    d.EscrowBalance.String(),
		VotingEndTime:    d.VotingEndTime,
		CreatedAt:        d.CreatedAt,
		ResolvedAt:       d.ResolvedAt,
	}
}

func fromCached(c cachedDispute) (domain.Dispute, error) {
	d := domain.Dispute{
		ID:             c.ID,
		MarketContract: c.MarketContract,
		MarketID:       c.MarketID,
		Disputer:       c.Disputer,
		Reason:         c.Reason,
		Status:         domain.DisputeStatus(c.Status),
		Outcome:        domain.DisputeOutcome(c.Outcome),
		VotingEndTime:  c.VotingEndTime,
		CreatedAt:      c.CreatedAt,
		ResolvedAt:     c.ResolvedAt,
	}

	var err error
	if d.DisputeStake, err = parseAmount("dispute_stake", c.DisputeStake); err != nil {
		return domain.Dispute{}, err
	}
	if d.TotalAcceptStake, err = parseAmount("total_accept_stake", c.TotalAcceptStake); err != nil {
		return domain.Dispute{}, err
	}
	if d.TotalRejectStake, err = parseAmount("total_reject_stake", c.TotalRejectStake); err != nil {
		return domain.Dispute{}, err
	}
	if d.EscrowBalance, err = parseAmount("escrow_balance", c.EscrowBalance); err != nil {
		return domain.Dispute{}, err
	}
	return d, nil
}

func parseAmount(field, s string) (*big.Int, error) {
	n, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, fmt.Errorf("redis: cached field %s holds non-integer value %q", field, s)
	}
	return n, nil
}

// Compile-time interface check.
var _ domain.DisputeCache = (*DisputeCache)(nil)
