package poller

import (
	"context"
	"log/slog"
	"time"

	"github.com/veritaslabs/arbiterd/internal/domain"
)

// marketResult is the explicit per-market outcome of one cycle pass.
type marketResult int

const (
	// resultIgnored: market is not in a pollable state (already resolved,
	// disputed, or still before its end time).
	resultIgnored marketResult = iota
	// resultRequested: the ResolutionRequested transition was submitted.
	resultRequested
	// resultResolved: an oracle-backed resolution was written on-chain.
	resultResolved
	// resultSkipped: the oracle declined (low confidence, undecided, or API
	// error); the market stays pending until a future tick.
	resultSkipped
	// resultFailed: a chain write failed after exhausting the retry budget.
	resultFailed
)

func (p *Poller) processMarket(ctx context.Context, id uint64) marketResult {
	m, err := p.readMarket(ctx, id)
	if err != nil {
		p.logger.WarnContext(ctx, "market read failed",
			slog.Uint64("market_id", id),
			slog.String("error", err.Error()),
		)
		return resultFailed
	}

	switch m.Status {
	case domain.MarketOpen, domain.MarketClosed:
		if p.now().Before(m.EndTime) {
			return resultIgnored
		}
		return p.requestResolution(ctx, m)
	case domain.MarketResolutionRequested:
		return p.resolveFromOracle(ctx, m)
	default:
		return resultIgnored
	}
}

// requestResolution moves an expired market into ResolutionRequested.
func (p *Poller) requestResolution(ctx context.Context, m domain.Market) marketResult {
	err := p.withRetries(ctx, func(callCtx context.Context) error {
		return p.markets.RequestResolution(callCtx, m.ID)
	})
	if err != nil {
		p.logger.WarnContext(ctx, "resolution request failed",
			slog.Uint64("market_id", m.ID),
			slog.String("error", err.Error()),
		)
		return resultFailed
	}

	p.logger.InfoContext(ctx, "resolution requested",
		slog.Uint64("market_id", m.ID),
		slog.String("question", m.Question),
	)
	p.paceWrite(ctx)
	return resultRequested
}

// resolveFromOracle consults the oracle and submits the final resolution only
// when the verdict clears the confidence gate. Anything less leaves the
// market pending: low confidence must never force a resolution.
func (p *Poller) resolveFromOracle(ctx context.Context, m domain.Market) marketResult {
	oracleCtx, cancel := context.WithTimeout(ctx, p.cfg.CallTimeout)
	res := p.oracle.Resolve(oracleCtx, m.Question, m.EndTime, m.ID)
	cancel()

	switch {
	case res.APIError:
		p.deferResolution(ctx, m, res, "api_error")
		return resultSkipped
	case !res.Decided():
		p.deferResolution(ctx, m, res, "undecided")
		return resultSkipped
	case res.Confidence < p.cfg.AutoResolveThreshold:
		p.deferResolution(ctx, m, res, "low_confidence")
		return resultSkipped
	}

	err := p.withRetries(ctx, func(callCtx context.Context) error {
		return p.markets.ResolveMarket(callCtx, m.ID, *res.Outcome, res.Reason, res.Confidence)
	})
	if err != nil {
		p.logger.WarnContext(ctx, "resolution write failed",
			slog.Uint64("market_id", m.ID),
			slog.String("error", err.Error()),
		)
		return resultFailed
	}

	p.logger.InfoContext(ctx, "market resolved",
		slog.Uint64("market_id", m.ID),
		slog.String("outcome", res.Outcome.String()),
		slog.Int("confidence", int(res.Confidence)),
	)
	if p.metrics != nil {
		p.metrics.ResolutionsSubmitted.Inc()
	}

	if p.evidence != nil {
		if err := p.evidence.ArchiveResolution(ctx, m, res); err != nil {
			p.logger.WarnContext(ctx, "evidence archive failed",
				slog.Uint64("market_id", m.ID),
				slog.String("error", err.Error()),
			)
		}
	}

	p.paceWrite(ctx)
	return resultResolved
}

func (p *Poller) deferResolution(ctx context.Context, m domain.Market, res domain.OracleResolution, reason string) {
	p.logger.InfoContext(ctx, "resolution deferred",
		slog.Uint64("market_id", m.ID),
		slog.String("reason", reason),
		slog.Int("confidence", int(res.Confidence)),
	)
	if p.metrics != nil {
		p.metrics.ResolutionsDeferred.WithLabelValues(reason).Inc()
	}
}

func (p *Poller) readMarket(ctx context.Context, id uint64) (domain.Market, error) {
	callCtx, cancel := context.WithTimeout(ctx, p.cfg.CallTimeout)
	defer cancel()
	return p.markets.Market(callCtx, id)
}

// withRetries runs op with a per-call timeout up to MaxRetries+1 times. On
// exhaustion the market is skipped until the next tick; the loop never dies.
func (p *Poller) withRetries(ctx context.Context, op func(context.Context) error) error {
	var err error
	for attempt := 0; attempt <= p.cfg.MaxRetries; attempt++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		callCtx, cancel := context.WithTimeout(ctx, p.cfg.CallTimeout)
		err = op(callCtx)
		cancel()
		if err == nil {
			return nil
		}
	}
	return err
}

// paceWrite inserts the configured delay between consecutive chain writes.
// With a shared rate limiter it also paces across replicas.
func (p *Poller) paceWrite(ctx context.Context) {
	if p.limiter != nil {
		if err := p.limiter.Wait(ctx, "chain:write"); err != nil {
			return
		}
	}
	if p.cfg.WriteDelay <= 0 {
		return
	}

	timer := time.NewTimer(p.cfg.WriteDelay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}
