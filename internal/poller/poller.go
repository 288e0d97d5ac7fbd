// Package poller drives on-chain markets through the end-of-life resolution
// state machine: Open/Closed past end time → ResolutionRequested → Resolved,
// gated on oracle confidence.
package poller

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/veritaslabs/arbiterd/internal/domain"
	"github.com/veritaslabs/arbiterd/internal/metrics"
)

// tickLockKey is the distributed lock that keeps cycles from overlapping
// across replicas; the in-process busy flag covers the single-replica case.
const tickLockKey = "poller:tick"

// MarketClient is the slice of the market contract the poller needs.
type MarketClient interface {
	MarketCount(ctx context.Context) (uint64, error)
	Market(ctx context.Context, id uint64) (domain.Market, error)
	RequestResolution(ctx context.Context, id uint64) error
	ResolveMarket(ctx context.Context, id uint64, outcome domain.MarketOutcome, reason string, confidence uint8) error
}

// Oracle produces a claimed outcome for a market question.
type Oracle interface {
	Resolve(ctx context.Context, question string, endTime time.Time, marketID uint64) domain.OracleResolution
}

// DisputeSweeper finalizes expired disputes; satisfied by the registry.
type DisputeSweeper interface {
	SweepExpired(ctx context.Context, limit int) (int, error)
}

// Alerter delivers operator notifications; satisfied by notify.Notifier.
type Alerter interface {
	Alert(ctx context.Context, subject, message string) error
}

// EvidenceSink archives oracle evidence for submitted resolutions.
type EvidenceSink interface {
	ArchiveResolution(ctx context.Context, m domain.Market, res domain.OracleResolution) error
}

// Config holds the poller's tuning parameters.
type Config struct {
	Interval             time.Duration
	AutoResolveThreshold uint8
	WriteDelay           time.Duration
	CallTimeout          time.Duration
	MaxRetries           int
	ScanLimit            int
	// FailureAlertThreshold is the number of consecutive failed cycles that
	// triggers an operator alert.
	FailureAlertThreshold int
}

// Deps are the poller's collaborators. Locks, Limiter, Alerts, Evidence, and
// Metrics are optional; a nil value disables that concern.
type Deps struct {
	Markets  MarketClient
	Oracle   Oracle
	Registry DisputeSweeper
	Locks    domain.LockManager
	Limiter  domain.RateLimiter
	Alerts   Alerter
	Evidence EvidenceSink
	Metrics  *metrics.Metrics
	Logger   *slog.Logger
}

// CycleReport aggregates per-market outcomes of one scan cycle. Control flow
// is explicit result counting; a single bad market never aborts the cycle.
type CycleReport struct {
	Scanned   int
	Requested int
	Resolved  int
	Skipped   int
	Failed    int
	Swept     int
}

// Poller is the resolution poller. One Run loop per process.
type Poller struct {
	markets  MarketClient
	oracle   Oracle
	registry DisputeSweeper
	locks    domain.LockManager
	limiter  domain.RateLimiter
	alerts   Alerter
	evidence EvidenceSink
	metrics  *metrics.Metrics
	logger   *slog.Logger
	cfg      Config

	busy       atomic.Bool
	failStreak int

	now func() time.Time
}

// New creates a Poller.
func New(deps Deps, cfg Config) *Poller {
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	return &Poller{
		markets:  deps.Markets,
		oracle:   deps.Oracle,
		registry: deps.Registry,
		locks:    deps.Locks,
		limiter:  deps.Limiter,
		alerts:   deps.Alerts,
		evidence: deps.Evidence,
		metrics:  deps.Metrics,
		logger:   deps.Logger.With(slog.String("component", "poller")),
		cfg:      cfg,
		now:      time.Now,
	}
}

// Run ticks at the configured interval until the context is cancelled. The
// first tick fires immediately.
func (p *Poller) Run(ctx context.Context) error {
	ticker := time.NewTicker(p.cfg.Interval)
	defer ticker.Stop()

	p.Tick(ctx)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			p.Tick(ctx)
		}
	}
}

// Tick runs one scan cycle. A tick that is still processing blocks new ticks
// from starting: the attempt is skipped, never queued.
func (p *Poller) Tick(ctx context.Context) {
	if !p.busy.CompareAndSwap(false, true) {
		p.logger.DebugContext(ctx, "tick skipped, previous cycle still running")
		return
	}
	defer p.busy.Store(false)

	if p.locks != nil {
		unlock, err := p.locks.Acquire(ctx, tickLockKey, 2*p.cfg.Interval)
		if err != nil {
			if errors.Is(err, domain.ErrLockHeld) {
				p.logger.DebugContext(ctx, "tick skipped, another replica holds the cycle lock")
				return
			}
			p.logger.WarnContext(ctx, "cycle lock unavailable, proceeding locally",
				slog.String("error", err.Error()))
		} else {
			defer unlock()
		}
	}

	started := p.now()
	report, err := p.cycle(ctx)
	elapsed := p.now().Sub(started)

	result := "ok"
	if err != nil {
		result = "error"
		p.failStreak++
		p.logger.ErrorContext(ctx, "poller cycle failed",
			slog.Int("consecutive_failures", p.failStreak),
			slog.String("error", err.Error()),
		)
		if p.cfg.FailureAlertThreshold > 0 && p.failStreak == p.cfg.FailureAlertThreshold && p.alerts != nil {
			if alertErr := p.alerts.Alert(ctx, "resolution poller degraded",
				fmt.Sprintf("%d consecutive cycle failures, last error: %v", p.failStreak, err),
			); alertErr != nil {
				p.logger.WarnContext(ctx, "operator alert failed", slog.String("error", alertErr.Error()))
			}
		}
	} else {
		p.failStreak = 0
		p.logger.InfoContext(ctx, "poller cycle complete",
			slog.Int("scanned", report.Scanned),
			slog.Int("requested", report.Requested),
			slog.Int("resolved", report.Resolved),
			slog.Int("skipped", report.Skipped),
			slog.Int("failed", report.Failed),
			slog.Int("disputes_swept", report.Swept),
			slog.Duration("elapsed", elapsed),
		)
	}

	if p.metrics != nil {
		p.metrics.PollerCyclesTotal.WithLabelValues(result).Inc()
		p.metrics.PollerCycleDuration.WithLabelValues(result).Observe(elapsed.Seconds())
	}
}

// cycle scans the markets once and sweeps expired disputes. It returns an
// error only when the scan itself cannot run; per-market failures are counted
// in the report.
func (p *Poller) cycle(ctx context.Context) (CycleReport, error) {
	var report CycleReport

	count, err := p.countMarkets(ctx)
	if err != nil {
		return report, fmt.Errorf("poller: market scan: %w", err)
	}

	limit := count
	if p.cfg.ScanLimit > 0 && uint64(p.cfg.ScanLimit) < limit {
		limit = uint64(p.cfg.ScanLimit)
	}

	for id := uint64(1); id <= limit; id++ {
		if ctx.Err() != nil {
			return report, ctx.Err()
		}

		report.Scanned++
		switch p.processMarket(ctx, id) {
		case resultRequested:
			report.Requested++
			p.recordMarket("requested")
		case resultResolved:
			report.Resolved++
			p.recordMarket("resolved")
		case resultSkipped:
			report.Skipped++
			p.recordMarket("skipped")
		case resultFailed:
			report.Failed++
			p.recordMarket("failed")
		case resultIgnored:
			// Market not in a pollable state; not worth counting.
		}
	}

	if p.registry != nil {
		swept, err := p.registry.SweepExpired(ctx, sweepLimit)
		if err != nil {
			p.logger.WarnContext(ctx, "dispute sweep failed", slog.String("error", err.Error()))
		} else {
			report.Swept = swept
		}
	}

	return report, nil
}

const sweepLimit = 100

func (p *Poller) countMarkets(ctx context.Context) (uint64, error) {
	callCtx, cancel := context.WithTimeout(ctx, p.cfg.CallTimeout)
	defer cancel()
	return p.markets.MarketCount(callCtx)
}

func (p *Poller) recordMarket(outcome string) {
	if p.metrics != nil {
		p.metrics.MarketsProcessed.WithLabelValues(outcome).Inc()
	}
}
