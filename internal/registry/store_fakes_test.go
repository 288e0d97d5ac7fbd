package registry

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"os"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/veritaslabs/arbiterd/internal/domain"
)

// memStore is an in-memory DisputeStore + VoteStore + PayoutStore that
// mirrors the atomic guard semantics of the Postgres implementation.
type memStore struct {
	mu       sync.Mutex
	nextID   int64
	disputes map[int64]*domain.Dispute
	votes    map[string]*domain.Vote // key: disputeID/voter
	payouts  []domain.Payout
	now      func() time.Time
}

func newMemStore(now func() time.Time) *memStore {
	return &memStore{
		nextID:   1,
		disputes: make(map[int64]*domain.Dispute),
		votes:    make(map[string]*domain.Vote),
		now:      now,
	}
}

func voteKey(disputeID int64, voter string) string {
	return fmt.Sprintf("%d/%s", disputeID, voter)
}

func (m *memStore) Create(ctx context.Context, d domain.Dispute) (domain.Dispute, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, ex := range m.disputes {
		if ex.MarketContract == d.MarketContract && ex.MarketID == d.MarketID && ex.Status.Open() {
			return domain.Dispute{}, domain.ErrDuplicateActiveDispute
		}
	}
	d.ID = m.nextID
	m.nextID++
	cp := d
	m.disputes[d.ID] = &cp
	return d, nil
}

func (m *memStore) GetByID(ctx context.Context, id int64) (domain.Dispute, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.disputes[id]
	if !ok {
		return domain.Dispute{}, domain.ErrNotFound
	}
	return cloneDispute(*d), nil
}

func (m *memStore) ActiveIDByMarket(ctx context.Context, contract string, marketID uint64) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, d := range m.disputes {
		if d.MarketContract == contract && d.MarketID == marketID && d.Status.Open() {
			return d.ID, nil
		}
	}
	return 0, nil
}

func (m *memStore) Finalize(ctx context.Context, id int64, status domain.DisputeStatus, outcome domain.DisputeOutcome, at time.Time) (domain.Dispute, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.disputes[id]
	if !ok {
		return domain.Dispute{}, domain.ErrNotFound
	}
	if d.Status.Final() {
		return domain.Dispute{}, domain.ErrAlreadyFinalized
	}
	d.Status = status
	d.Outcome = outcome
	d.ResolvedAt = &at
	return cloneDispute(*d), nil
}

func (m *memStore) ListExpiredOpen(ctx context.Context, now time.Time, limit int) ([]domain.Dispute, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Dispute
	for _, d := range m.disputes {
		if d.Status.Open() && !now.Before(d.VotingEndTime) {
			out = append(out, cloneDispute(*d))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *memStore) ListFinalizedBefore(ctx context.Context, cutoff time.Time, limit int) ([]domain.Dispute, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Dispute
	for _, d := range m.disputes {
		if d.Status.Final() && d.ResolvedAt != nil && d.ResolvedAt.Before(cutoff) {
			out = append(out, cloneDispute(*d))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// CreateVote implements domain.VoteStore.Create semantics: unique per
// (dispute, voter), stake added to side totals and escrow while open.
func (m *memStore) CreateVote(ctx context.Context, v domain.Vote) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := voteKey(v.DisputeID, v.Voter)
	if _, ok := m.votes[key]; ok {
		return domain.ErrAlreadyVoted
	}
	d, ok := m.disputes[v.DisputeID]
	if !ok {
		return domain.ErrNotFound
	}

	// The disputer's implicit vote is recorded at creation time with its
	// stake already seeded into the totals.
	seeded := v.Voter == d.Disputer && len(m.votesFor(v.DisputeID)) == 0
	if !seeded {
		if !d.Status.Open() || !m.now().Before(d.VotingEndTime) {
			return domain.ErrDisputeNotActive
		}
		if v.Side == domain.VoteAccept {
			d.TotalAcceptStake = new(big.Int).Add(d.TotalAcceptStake, v.Stake)
		} else {
			d.TotalRejectStake = new(big.Int).Add(d.TotalRejectStake, v.Stake)
		}
		d.EscrowBalance = new(big.Int).Add(d.EscrowBalance, v.Stake)
		if d.Status == domain.DisputeStatusActive {
			d.Status = domain.DisputeStatusVotingInProgress
		}
	}

	cp := v
	cp.Stake = new(big.Int).Set(v.Stake)
	m.votes[key] = &cp
	return nil
}

func (m *memStore) votesFor(disputeID int64) []*domain.Vote {
	var out []*domain.Vote
	for _, v := range m.votes {
		if v.DisputeID == disputeID {
			out = append(out, v)
		}
	}
	return out
}

func (m *memStore) Get(ctx context.Context, disputeID int64, voter string) (domain.Vote, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.votes[voteKey(disputeID, voter)]
	if !ok {
		return domain.Vote{}, domain.ErrNotFound
	}
	return *v, nil
}

func (m *memStore) ListByDispute(ctx context.Context, disputeID int64) ([]domain.Vote, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Vote
	for _, v := range m.votesFor(disputeID) {
		out = append(out, *v)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Voter < out[j].Voter })
	return out, nil
}

func (m *memStore) SettleClaim(ctx context.Context, p domain.Payout) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.votes[voteKey(p.DisputeID, p.Voter)]
	if !ok {
		return domain.ErrNotFound
	}
	if v.Claimed {
		return domain.ErrAlreadyClaimed
	}
	d := m.disputes[p.DisputeID]
	if d.EscrowBalance.Cmp(p.Amount) < 0 {
		return fmt.Errorf("escrow underflow: have %s, need %s", d.EscrowBalance, p.Amount)
	}
	v.Claimed = true
	d.EscrowBalance = new(big.Int).Sub(d.EscrowBalance, p.Amount)
	m.payouts = append(m.payouts, p)
	return nil
}

func (m *memStore) ListByDisputePayouts(disputeID int64) []domain.Payout {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Payout
	for _, p := range m.payouts {
		if p.DisputeID == disputeID {
			out = append(out, p)
		}
	}
	return out
}

func cloneDispute(d domain.Dispute) domain.Dispute {
	d.DisputeStake = new(big.Int).Set(d.DisputeStake)
	d.TotalAcceptStake = new(big.Int).Set(d.TotalAcceptStake)
	d.TotalRejectStake = new(big.Int).Set(d.TotalRejectStake)
	d.EscrowBalance = new(big.Int).Set(d.EscrowBalance)
	return d
}

// voteStoreAdapter exposes memStore's vote methods under the VoteStore
// interface (Create collides with the dispute Create).
type voteStoreAdapter struct{ *memStore }

func (a voteStoreAdapter) Create(ctx context.Context, v domain.Vote) error {
	return a.CreateVote(ctx, v)
}

type payoutStoreAdapter struct{ *memStore }

func (a payoutStoreAdapter) ListByDispute(ctx context.Context, disputeID int64) ([]domain.Payout, error) {
	return a.ListByDisputePayouts(disputeID), nil
}

func (a payoutStoreAdapter) ListRecent(ctx context.Context, opts domain.ListOpts) ([]domain.Payout, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]domain.Payout(nil), a.payouts...), nil
}

// testEnv bundles a registry wired to in-memory stores with a movable clock.
type testEnv struct {
	reg   *Registry
	store *memStore
	clock *time.Time
	ctx   context.Context
}

func bnb(milli int64) *big.Int {
	// milli-BNB in wei: 0.001 BNB = 1e15 wei.
	return new(big.Int).Mul(big.NewInt(milli), big.NewInt(1_000_000_000_000_000))
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	start := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	clock := &start
	now := func() time.Time { return *clock }

	store := newMemStore(now)
	params := domain.RegistryParams{
		MinimumDisputeStake: bnb(10), // 0.01 BNB
		MinimumVoteStake:    bnb(5),  // 0.005 BNB
		VotingPeriod:        72 * time.Hour,
		PlatformFeeBps:      500, // 5%
		ResolutionAuthority: "0xAaAa000000000000000000000000000000000001",
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	reg, err := New(store, voteStoreAdapter{store}, payoutStoreAdapter{store}, nil, nil, nil, params, logger)
	require.NoError(t, err)
	reg.now = now

	return &testEnv{reg: reg, store: store, clock: clock, ctx: context.Background()}
}

func (e *testEnv) advance(d time.Duration) {
	*e.clock = e.clock.Add(d)
}
