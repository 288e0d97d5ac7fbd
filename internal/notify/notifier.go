// Package notify delivers operator notifications for dispute and poller
// events over Telegram and Discord. Event notifications are filtered by a
// configured allowlist; operational alerts always go out.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
)

// Event types emitted by the registry and poller.
const (
	EventDisputeCreated    = "dispute.created"
	EventDisputeFinalized  = "dispute.finalized"
	EventAuthorityOverride = "dispute.authority_override"
	EventPollerDegraded    = "poller.degraded"
)

// Sender is one delivery channel.
type Sender interface {
	// Send delivers a notification with the given title and message body.
	Send(ctx context.Context, title, message string) error
	// Name identifies the channel in logs (e.g. "telegram").
	Name() string
}

// Notifier fans notifications out to all configured senders. Notify applies
// the event allowlist; Alert bypasses it so operational failures are never
// filtered away.
type Notifier struct {
	senders []Sender
	events  map[string]bool
	logger  *slog.Logger
}

// New creates a Notifier delivering to the given senders. Only events in the
// events slice pass the Notify filter; an empty slice allows all events.
func New(senders []Sender, events []string, logger *slog.Logger) *Notifier {
	allowed := make(map[string]bool, len(events))
	for _, e := range events {
		allowed[strings.TrimSpace(e)] = true
	}
	return &Notifier{
		senders: senders,
		events:  allowed,
		logger:  logger.With(slog.String("component", "notifier")),
	}
}

// Notify sends an event notification subject to the configured allowlist.
func (n *Notifier) Notify(ctx context.Context, event, title, message string) error {
	if len(n.events) > 0 && !n.events[event] {
		n.logger.DebugContext(ctx, "event filtered out",
			slog.String("event", event),
		)
		return nil
	}
	return n.dispatch(ctx, title, message)
}

// Alert sends an operational alert to every channel, bypassing the event
// filter. Satisfies the poller's alerter dependency.
func (n *Notifier) Alert(ctx context.Context, subject, message string) error {
	return n.dispatch(ctx, subject, message)
}

// dispatch delivers to every sender. A failed sender does not prevent
// delivery to the rest; failures are collected into one error.
func (n *Notifier) dispatch(ctx context.Context, title, message string) error {
	if len(n.senders) == 0 {
		return nil
	}

	var errs []string
	for _, s := range n.senders {
		if err := s.Send(ctx, title, message); err != nil {
			n.logger.ErrorContext(ctx, "sender failed",
				slog.String("sender", s.Name()),
				slog.String("error", err.Error()),
			)
			errs = append(errs, fmt.Sprintf("%s: %v", s.Name(), err))
			continue
		}
		n.logger.DebugContext(ctx, "notification sent",
			slog.String("sender", s.Name()),
			slog.String("title", title),
		)
	}

	if len(errs) > 0 {
		return fmt.Errorf("notify: %d sender(s) failed: %s", len(errs), strings.Join(errs, "; "))
	}
	return nil
}
