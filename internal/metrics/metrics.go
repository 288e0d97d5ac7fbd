// Package metrics defines Prometheus instrumentation for the registry and
// the resolution poller.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the service's Prometheus collectors. Collectors are
// registered on the default registry at construction.
type Metrics struct {
	// Poller
	PollerCyclesTotal    prometheus.CounterVec
	PollerCycleDuration  prometheus.HistogramVec
	MarketsProcessed     prometheus.CounterVec
	ResolutionsSubmitted prometheus.Counter
	ResolutionsDeferred  prometheus.CounterVec

	// Registry
	DisputesCreatedTotal prometheus.Counter
	VotesCastTotal       prometheus.CounterVec
	DisputesFinalized    prometheus.CounterVec
	ClaimsSettledTotal   prometheus.CounterVec
}

// New creates and registers the service metrics.
func New() *Metrics {
	return &Metrics{
		PollerCyclesTotal: *promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "arbiterd_poller_cycles_total",
				Help: "Number of completed poller cycles by result.",
			},
			[]string{"result"},
		),

		PollerCycleDuration: *promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "arbiterd_poller_cycle_duration_seconds",
				Help:    "Wall time of a full poller cycle.",
				Buckets: prometheus.ExponentialBuckets(0.1, 2, 12),
			},
			[]string{"result"},
		),

		MarketsProcessed: *promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "arbiterd_markets_processed_total",
				Help: "Markets examined by the poller, by per-market outcome.",
			},
			[]string{"outcome"},
		),

		ResolutionsSubmitted: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "arbiterd_resolutions_submitted_total",
				Help: "Oracle-backed resolutions written on-chain.",
			},
		),

		ResolutionsDeferred: *promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "arbiterd_resolutions_deferred_total",
				Help: "Resolutions withheld, by reason (low_confidence, undecided, api_error).",
			},
			[]string{"reason"},
		),

		DisputesCreatedTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "arbiterd_disputes_created_total",
				Help: "Disputes opened in the registry.",
			},
		),

		VotesCastTotal: *promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "arbiterd_votes_cast_total",
				Help: "Votes recorded, by side.",
			},
			[]string{"side"},
		),

		DisputesFinalized: *promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "arbiterd_disputes_finalized_total",
				Help: "Disputes finalized, by terminal status and trigger (tally, authority, sweep).",
			},
			[]string{"status", "trigger"},
		),

		ClaimsSettledTotal: *promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "arbiterd_claims_settled_total",
				Help: "Claims settled, by kind (paid, forfeited).",
			},
			[]string{"kind"},
		),
	}
}
