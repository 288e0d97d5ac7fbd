package registry

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/veritaslabs/arbiterd/internal/domain"
)

// Pub/sub channels and durable streams for registry events. The WebSocket
// hub relays the channels to connected dApp clients.
const (
	chDispute = "ch:dispute"
	chVote    = "ch:vote"
	chClaim   = "ch:claim"

	streamDisputes = "stream:disputes"
)

const (
	eventDisputeCreated   = "dispute_created"
	eventVoteCast         = "vote_cast"
	eventDisputeFinalized = "dispute_finalized"
	eventAuthorityResolve = "authority_resolved"
	eventStakeClaimed     = "stake_claimed"
)

// disputeEvent is the JSON payload published for every dispute mutation.
type disputeEvent struct {
	Event       string    `json:"event"`
	DisputeID   int64     `json:"dispute_id"`
	MarketID    uint64    `json:"market_id"`
	Status      string    `json:"status"`
	Outcome     string    `json:"outcome"`
	AcceptStake string    `json:"accept_stake"`
	RejectStake string    `json:"reject_stake"`
	At          time.Time `json:"at"`
}

// publish emits a dispute event on the pub/sub channel and appends it to the
// durable dispute stream. Event delivery is best-effort; failures are logged
// and never roll back the state transition.
func (r *Registry) publish(ctx context.Context, channel, event string, d domain.Dispute) {
	if r.bus == nil {
		return
	}

	payload, err := json.Marshal(disputeEvent{
		Event:       event,
		DisputeID:   d.ID,
		MarketID:    d.MarketID,
		Status:      string(d.Status),
		Outcome:     string(d.Outcome),
		AcceptStake: d.TotalAcceptStake.String(),
		RejectStake: d.TotalRejectStake.String(),
		At:          r.now().UTC(),
	})
	if err != nil {
		return
	}

	if err := r.bus.Publish(ctx, channel, payload); err != nil {
		r.logger.WarnContext(ctx, "event publish failed",
			slog.String("channel", channel),
			slog.String("event", event),
			slog.String("error", err.Error()),
		)
	}
	if err := r.bus.StreamAppend(ctx, streamDisputes, payload); err != nil {
		r.logger.WarnContext(ctx, "event stream append failed",
			slog.String("event", event),
			slog.String("error", err.Error()),
		)
	}
}
