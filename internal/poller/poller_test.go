package poller

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/veritaslabs/arbiterd/internal/domain"
)

type fakeMarkets struct {
	mu        sync.Mutex
	markets   map[uint64]domain.Market
	requested []uint64
	resolved  []uint64

	requestErrs map[uint64]int // remaining failures per market
	countErr    error
}

func (f *fakeMarkets) MarketCount(context.Context) (uint64, error) {
	if f.countErr != nil {
		return 0, f.countErr
	}
	var max uint64
	for id := range f.markets {
		if id > max {
			max = id
		}
	}
	return max, nil
}

func (f *fakeMarkets) Market(_ context.Context, id uint64) (domain.Market, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	m, ok := f.markets[id]
	if !ok {
		return domain.Market{}, domain.ErrNotFound
	}
	return m, nil
}

func (f *fakeMarkets) RequestResolution(_ context.Context, id uint64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if n := f.requestErrs[id]; n > 0 {
		f.requestErrs[id] = n - 1
		return errors.New("rpc timeout")
	}
	f.requested = append(f.requested, id)
	m := f.markets[id]
	m.Status = domain.MarketResolutionRequested
	f.markets[id] = m
	return nil
}

func (f *fakeMarkets) ResolveMarket(_ context.Context, id uint64, outcome domain.MarketOutcome, reason string, confidence uint8) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.resolved = append(f.resolved, id)
	m := f.markets[id]
	m.Status = domain.MarketResolved
	m.Outcome = outcome
	m.ResolutionReason = reason
	m.ResolutionConfidence = confidence
	f.markets[id] = m
	return nil
}

type fakeOracle struct {
	verdicts map[uint64]domain.OracleResolution
}

func (f *fakeOracle) Resolve(_ context.Context, _ string, _ time.Time, marketID uint64) domain.OracleResolution {
	return f.verdicts[marketID]
}

type fakeSweeper struct {
	calls int
}

func (f *fakeSweeper) SweepExpired(context.Context, int) (int, error) {
	f.calls++
	return 0, nil
}

type fakeAlerter struct {
	mu    sync.Mutex
	calls []string
}

func (f *fakeAlerter) Alert(_ context.Context, subject, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, subject)
	return nil
}

func yesVerdict(confidence uint8) domain.OracleResolution {
	outcome := domain.OutcomeYes
	return domain.OracleResolution{Outcome: &outcome, Confidence: confidence, Reason: "test verdict"}
}

var pollNow = time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)

func newTestPoller(markets *fakeMarkets, oracle *fakeOracle) (*Poller, *fakeSweeper, *fakeAlerter) {
	sweeper := &fakeSweeper{}
	alerter := &fakeAlerter{}
	p := New(Deps{
		Markets:  markets,
		Oracle:   oracle,
		Registry: sweeper,
		Alerts:   alerter,
		Logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	}, Config{
		Interval:              time.Minute,
		AutoResolveThreshold:  70,
		CallTimeout:           time.Second,
		MaxRetries:            2,
		ScanLimit:             200,
		FailureAlertThreshold: 3,
	})
	p.now = func() time.Time { return pollNow }
	return p, sweeper, alerter
}

func TestTickRequestsResolutionForExpiredMarkets(t *testing.T) {
	markets := &fakeMarkets{markets: map[uint64]domain.Market{
		1: {ID: 1, Status: domain.MarketOpen, EndTime: pollNow.Add(-time.Hour)},
		2: {ID: 2, Status: domain.MarketOpen, EndTime: pollNow.Add(time.Hour)},
		3: {ID: 3, Status: domain.MarketClosed, EndTime: pollNow.Add(-time.Minute)},
	}}
	p, sweeper, _ := newTestPoller(markets, &fakeOracle{})

	p.Tick(context.Background())

	require.ElementsMatch(t, []uint64{1, 3}, markets.requested)
	require.Equal(t, 1, sweeper.calls)
}

func TestConfidenceGateBlocksLowConfidence(t *testing.T) {
	markets := &fakeMarkets{markets: map[uint64]domain.Market{
		1: {ID: 1, Status: domain.MarketResolutionRequested, EndTime: pollNow.Add(-time.Hour)},
	}}
	oracle := &fakeOracle{verdicts: map[uint64]domain.OracleResolution{
		1: yesVerdict(55),
	}}
	p, _, _ := newTestPoller(markets, oracle)

	p.Tick(context.Background())

	require.Empty(t, markets.resolved)
	require.Equal(t, domain.MarketResolutionRequested, markets.markets[1].Status)

	// The market stays pending until a future poll clears the gate.
	oracle.verdicts[1] = yesVerdict(84)
	p.Tick(context.Background())

	require.Equal(t, []uint64{1}, markets.resolved)
	require.Equal(t, domain.MarketResolved, markets.markets[1].Status)
	require.Equal(t, domain.OutcomeYes, markets.markets[1].Outcome)
	require.Equal(t, uint8(84), markets.markets[1].ResolutionConfidence)
}

func TestThresholdIsInclusive(t *testing.T) {
	markets := &fakeMarkets{markets: map[uint64]domain.Market{
		1: {ID: 1, Status: domain.MarketResolutionRequested},
	}}
	oracle := &fakeOracle{verdicts: map[uint64]domain.OracleResolution{
		1: yesVerdict(70),
	}}
	p, _, _ := newTestPoller(markets, oracle)

	p.Tick(context.Background())
	require.Equal(t, []uint64{1}, markets.resolved)
}

func TestUndecidedAndAPIErrorDefer(t *testing.T) {
	outcome := domain.OutcomeUndecided
	markets := &fakeMarkets{markets: map[uint64]domain.Market{
		1: {ID: 1, Status: domain.MarketResolutionRequested},
		2: {ID: 2, Status: domain.MarketResolutionRequested},
		3: {ID: 3, Status: domain.MarketResolutionRequested},
	}}
	oracle := &fakeOracle{verdicts: map[uint64]domain.OracleResolution{
		1: {Outcome: nil, Confidence: 95},      // no verdict
		2: {Outcome: &outcome, Confidence: 95}, // explicit undecided
		3: {APIError: true},                    // transport failure
	}}
	p, _, _ := newTestPoller(markets, oracle)

	p.Tick(context.Background())
	require.Empty(t, markets.resolved)
}

func TestRetryBudget(t *testing.T) {
	markets := &fakeMarkets{
		markets: map[uint64]domain.Market{
			1: {ID: 1, Status: domain.MarketOpen, EndTime: pollNow.Add(-time.Hour)},
			2: {ID: 2, Status: domain.MarketOpen, EndTime: pollNow.Add(-time.Hour)},
		},
		// Market 1 fails twice then succeeds within the budget of 3 attempts;
		// market 2 fails every attempt this cycle.
		requestErrs: map[uint64]int{1: 2, 2: 10},
	}
	p, _, _ := newTestPoller(markets, &fakeOracle{})

	p.Tick(context.Background())
	require.Equal(t, []uint64{1}, markets.requested)

	// Next tick retries the failed market with a fresh budget.
	p.Tick(context.Background())
	require.Equal(t, []uint64{1, 2}, markets.requested)
}

func TestOverlappingTickIsSkipped(t *testing.T) {
	markets := &fakeMarkets{markets: map[uint64]domain.Market{
		1: {ID: 1, Status: domain.MarketOpen, EndTime: pollNow.Add(-time.Hour)},
	}}
	p, sweeper, _ := newTestPoller(markets, &fakeOracle{})

	p.busy.Store(true)
	p.Tick(context.Background())
	require.Empty(t, markets.requested)
	require.Zero(t, sweeper.calls)

	p.busy.Store(false)
	p.Tick(context.Background())
	require.Equal(t, []uint64{1}, markets.requested)
}

func TestConsecutiveFailureAlert(t *testing.T) {
	markets := &fakeMarkets{countErr: errors.New("rpc unreachable")}
	p, _, alerter := newTestPoller(markets, &fakeOracle{})

	p.Tick(context.Background())
	p.Tick(context.Background())
	require.Empty(t, alerter.calls)

	p.Tick(context.Background())
	require.Len(t, alerter.calls, 1)

	// Further failures do not re-alert until the streak resets.
	p.Tick(context.Background())
	require.Len(t, alerter.calls, 1)

	markets.countErr = nil
	p.Tick(context.Background())
	require.Zero(t, p.failStreak)

	markets.countErr = errors.New("rpc unreachable again")
	p.Tick(context.Background())
	p.Tick(context.Background())
	p.Tick(context.Background())
	require.Len(t, alerter.calls, 2)
}
