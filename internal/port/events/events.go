// Package events defines the outbound event publisher port (interface).
package events

import "context"

// Publisher emits broker state changes for external observers such as
// dashboards or overdue-message pollers. Publishing is fire-and-forget
// from the broker's point of view: a failed publish never fails the
// operation that triggered it.
type Publisher interface {
	// Publish sends an event payload to the given subject.
	Publish(ctx context.Context, subject string, data []byte) error

	// Close shuts down the publisher connection.
	Close() error
}

// Subject constants for broker events.
const (
	SubjectMessageCreated = "messages.created"
	SubjectMessageStatus  = "messages.status"
	SubjectMessageRouted  = "messages.routed"
	SubjectCardUpserted   = "cards.upserted"
)

// Noop is a Publisher that discards everything. Used when no event
// transport is configured.
type Noop struct{}

// Publish discards the event.
func (Noop) Publish(context.Context, string, []byte) error { return nil }

// Close is a no-op.
func (Noop) Close() error { return nil }
