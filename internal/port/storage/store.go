// Package storage defines the storage port (interface) for the broker.
package storage

import (
	"context"
	"time"

	"github.com/Strob0t/Relay/internal/domain/agentcard"
	"github.com/Strob0t/Relay/internal/domain/message"
)

// Default result caps for index queries.
const (
	DefaultInboxLimit = 20 // per-agent fetch
	DefaultQueryLimit = 50 // general query
)

// Store is the port interface over message and card persistence.
//
// Implementations must allocate message ids linearizably per UTC date (two
// concurrent CreateMessage calls never share a sequence number), persist the
// message body and its index entry as one logical unit, and serialize card
// upserts per agent_id.
type Store interface {
	// Messages
	CreateMessage(ctx context.Context, draft message.Draft) (*message.Message, error)
	GetMessage(ctx context.Context, id string) (*message.Message, error)
	QueryMessages(ctx context.Context, filter message.Filter, limit int) ([]message.Message, error)
	// UpdateMessageStatus applies the state machine and reports whether the
	// message actually changed; re-asserting the current status returns the
	// message unchanged with changed == false.
	UpdateMessageStatus(ctx context.Context, id string, to message.Status, at time.Time) (m *message.Message, changed bool, err error)

	// Agent cards
	UpsertCard(ctx context.Context, req agentcard.UpsertRequest) (*agentcard.Card, error)
	GetCard(ctx context.Context, agentID string) (*agentcard.Card, error)
	ListCards(ctx context.Context, filter agentcard.Filter) ([]agentcard.Card, error)

	Close() error
}
