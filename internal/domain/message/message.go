// Package message defines the Message domain entity and its status lifecycle.
package message

import (
	"encoding/json"
	"fmt"
	"regexp"
	"time"

	"github.com/Strob0t/Relay/internal/domain"
)

// Type classifies the intent of a message.
type Type string

const (
	TypeRequest      Type = "request"
	TypeResponse     Type = "response"
	TypeNotification Type = "notification"
	TypeEscalation   Type = "escalation"
)

// Valid reports whether t is a known message type.
func (t Type) Valid() bool {
	switch t {
	case TypeRequest, TypeResponse, TypeNotification, TypeEscalation:
		return true
	}
	return false
}

// Priority orders messages and carries an advisory SLA.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

// Valid reports whether p is a known priority.
func (p Priority) Valid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityUrgent:
		return true
	}
	return false
}

// SLA returns the advisory maximum time-to-next-transition for p.
// This is policy data surfaced to callers; nothing in the broker
// enforces it. Overdue detection is an external poller's job.
func (p Priority) SLA() time.Duration {
	switch p {
	case PriorityUrgent:
		return 15 * time.Minute
	case PriorityHigh:
		return time.Hour
	case PriorityMedium:
		return 4 * time.Hour
	default:
		return 24 * time.Hour
	}
}

// broadcastSentinel is the wire form of a broadcast recipient.
const broadcastSentinel = "all"

// Recipient is either a single agent id or the broadcast sentinel.
// The zero value is invalid; construct via To or Broadcast.
type Recipient struct {
	id string
}

// To returns a Recipient addressing a single agent.
func To(agentID string) Recipient { return Recipient{id: agentID} }

// Broadcast returns the Recipient addressing all agents.
func Broadcast() Recipient { return Recipient{id: broadcastSentinel} }

// IsBroadcast reports whether r addresses all agents.
func (r Recipient) IsBroadcast() bool { return r.id == broadcastSentinel }

// IsZero reports whether r was never set.
func (r Recipient) IsZero() bool { return r.id == "" }

// AgentID returns the addressed agent id, or "all" for broadcast.
func (r Recipient) AgentID() string { return r.id }

func (r Recipient) String() string { return r.id }

// MarshalJSON encodes the recipient as its wire string.
func (r Recipient) MarshalJSON() ([]byte, error) { return json.Marshal(r.id) }

// UnmarshalJSON decodes the recipient from its wire string.
func (r *Recipient) UnmarshalJSON(data []byte) error {
	return json.Unmarshal(data, &r.id)
}

// IDPattern matches store-assigned message ids: MSG-<UTC date>-<seq>. The
// sequence is zero-padded to three digits and widens past 999, so a day with
// more than a thousand messages keeps allocating unique ids.
var IDPattern = regexp.MustCompile(`^MSG-\d{4}-\d{2}-\d{2}-\d{3,}$`)

// FormatID builds a message id from a UTC date and a per-date sequence number.
// Sequence numbers above 999 produce ids with a wider sequence field.
func FormatID(date time.Time, seq int) string {
	return fmt.Sprintf("MSG-%s-%03d", date.UTC().Format(time.DateOnly), seq)
}

// Message is an immutable record of one agent-to-agent exchange. Only the
// status and its paired timestamps change after creation; messages are never
// physically deleted.
type Message struct {
	ID               string     `json:"id"`
	From             string     `json:"from_agent"`
	To               Recipient  `json:"to_agent"`
	Type             Type       `json:"type"`
	Priority         Priority   `json:"priority"`
	Status           Status     `json:"status"`
	Subject          string     `json:"subject"`
	Body             string     `json:"body"`
	CreatedAt        time.Time  `json:"created_at"`
	AcknowledgedAt   *time.Time `json:"acknowledged_at,omitempty"`
	ResolvedAt       *time.Time `json:"resolved_at,omitempty"`
	RelatedTaskID    string     `json:"related_task_id,omitempty"`
	RelatedMessageID string     `json:"related_message_id,omitempty"`
}

// Draft holds the caller-supplied fields of a message before the store
// assigns id, status, and created_at.
type Draft struct {
	From             string    `json:"from_agent"`
	To               Recipient `json:"to_agent"`
	Type             Type      `json:"type"`
	Priority         Priority  `json:"priority"`
	Subject          string    `json:"subject"`
	Body             string    `json:"body"`
	RelatedTaskID    string    `json:"related_task_id,omitempty"`
	RelatedMessageID string    `json:"related_message_id,omitempty"`
}

// Validate rejects a draft missing required fields or using unknown enum
// values. Validation happens at the store boundary so malformed records are
// rejected on construction, not discovered on a later read.
func (d Draft) Validate() error {
	switch {
	case d.From == "":
		return fmt.Errorf("from_agent is required: %w", domain.ErrValidation)
	case d.To.IsZero():
		return fmt.Errorf("to_agent is required: %w", domain.ErrValidation)
	case d.Subject == "":
		return fmt.Errorf("subject is required: %w", domain.ErrValidation)
	case d.Body == "":
		return fmt.Errorf("body is required: %w", domain.ErrValidation)
	case !d.Type.Valid():
		return fmt.Errorf("unknown message type %q: %w", d.Type, domain.ErrValidation)
	case !d.Priority.Valid():
		return fmt.Errorf("unknown priority %q: %w", d.Priority, domain.ErrValidation)
	}
	return nil
}

// IndexEntry is the denormalized projection of a message's routing fields.
// Queries filter against index entries so message bodies are only
// deserialized for actual matches.
type IndexEntry struct {
	ID        string    `json:"id"`
	From      string    `json:"from_agent"`
	To        Recipient `json:"to_agent"`
	Type      Type      `json:"type"`
	Priority  Priority  `json:"priority"`
	Status    Status    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
	TaskID    string    `json:"related_task_id,omitempty"`
	Locator   string    `json:"locator"`
}

// Filter selects index entries by any combination of routing fields.
// Zero-valued fields match everything.
type Filter struct {
	From     string
	To       *Recipient
	Type     Type
	Priority Priority
	Status   Status
	TaskID   string

	// IncludeBroadcast widens a single-agent To filter to also match
	// broadcast messages. Per-agent inbox fetches set this; exact-recipient
	// queries do not.
	IncludeBroadcast bool
}

// Inbox returns the filter a per-agent fetch uses: messages addressed to the
// agent directly or broadcast to all.
func Inbox(agentID string) Filter {
	to := To(agentID)
	return Filter{To: &to, IncludeBroadcast: true}
}

// Matches reports whether e satisfies every set field of f.
func (f Filter) Matches(e IndexEntry) bool {
	if f.From != "" && e.From != f.From {
		return false
	}
	if f.To != nil && !f.matchesRecipient(e.To) {
		return false
	}
	if f.Type != "" && e.Type != f.Type {
		return false
	}
	if f.Priority != "" && e.Priority != f.Priority {
		return false
	}
	if f.Status != "" && e.Status != f.Status {
		return false
	}
	if f.TaskID != "" && e.TaskID != f.TaskID {
		return false
	}
	return true
}

func (f Filter) matchesRecipient(to Recipient) bool {
	want := *f.To
	switch {
	case want.IsBroadcast():
		return to.IsBroadcast()
	case f.IncludeBroadcast:
		return to == want || to.IsBroadcast()
	default:
		return to == want
	}
}
