package message

import (
	"fmt"
	"time"

	"github.com/Strob0t/Relay/internal/domain"
)

// Status represents the lifecycle state of a message.
type Status string

const (
	StatusPending      Status = "pending"
	StatusAcknowledged Status = "acknowledged"
	StatusInProgress   Status = "in_progress"
	StatusResolved     Status = "resolved"
	StatusEscalated    Status = "escalated"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusAcknowledged, StatusInProgress, StatusResolved, StatusEscalated:
		return true
	}
	return false
}

// Terminal reports whether no transition leaves s.
func (s Status) Terminal() bool {
	return s == StatusResolved || s == StatusEscalated
}

// transitions holds the legal forward edges of the status machine.
// Escalation is reachable from every non-terminal state.
var transitions = map[Status][]Status{
	StatusPending:      {StatusAcknowledged, StatusEscalated},
	StatusAcknowledged: {StatusInProgress, StatusEscalated},
	StatusInProgress:   {StatusResolved, StatusEscalated},
}

// CanTransition reports whether from → to is a legal forward edge.
// Re-asserting the current status is not a transition; callers handle
// that as an idempotent no-op before consulting this.
func CanTransition(from, to Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Transition applies a status change to m at the given time. Re-asserting
// the current status (terminal included) returns changed=false with no
// error, so client retries are safe. Paired timestamps are set exactly
// once and never reset.
func Transition(m *Message, to Status, at time.Time) (changed bool, err error) {
	if !to.Valid() {
		return false, fmt.Errorf("unknown status %q: %w", to, domain.ErrValidation)
	}
	if m.Status == to {
		return false, nil
	}
	if !CanTransition(m.Status, to) {
		return false, fmt.Errorf("%s %s -> %s: %w", m.ID, m.Status, to, domain.ErrInvalidTransition)
	}

	m.Status = to
	switch to {
	case StatusAcknowledged:
		if m.AcknowledgedAt == nil {
			t := at
			m.AcknowledgedAt = &t
		}
	case StatusResolved:
		if m.ResolvedAt == nil {
			t := at
			m.ResolvedAt = &t
		}
	}
	return true, nil
}
