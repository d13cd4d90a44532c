package service

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	relayotel "github.com/Strob0t/Relay/internal/adapter/otel"
	"github.com/Strob0t/Relay/internal/domain/message"
	"github.com/Strob0t/Relay/internal/port/cache"
	"github.com/Strob0t/Relay/internal/port/events"
	"github.com/Strob0t/Relay/internal/port/storage"
)

// cacheTTL bounds staleness of cached reads. Status updates invalidate
// eagerly, so the TTL only matters across processes sharing a cache.
const cacheTTL = 30 * time.Second

// MessageService handles the message lifecycle: create, fetch, query, and
// status transitions. State changes are announced on the event publisher;
// a failed publish never fails the operation.
type MessageService struct {
	store   storage.Store
	cache   cache.Cache
	events  events.Publisher
	metrics *relayotel.Metrics
}

// NewMessageService creates a new MessageService.
func NewMessageService(store storage.Store, c cache.Cache, pub events.Publisher) *MessageService {
	return &MessageService{store: store, cache: c, events: pub}
}

// SetMetrics attaches metric instruments. Nil metrics disable recording.
func (s *MessageService) SetMetrics(m *relayotel.Metrics) { s.metrics = m }

// messageEvent is the payload published for message state changes.
type messageEvent struct {
	EventID    string           `json:"event_id"`
	OccurredAt time.Time        `json:"occurred_at"`
	Message    *message.Message `json:"message"`
}

// Create validates and persists a new message, then announces it.
func (s *MessageService) Create(ctx context.Context, draft message.Draft) (*message.Message, error) {
	ctx, span := relayotel.StartMessageSpan(ctx, "message.create", draft.From, draft.To.String())
	defer span.End()

	m, err := s.store.CreateMessage(ctx, draft)
	if err != nil {
		return nil, err
	}
	if s.metrics != nil {
		s.metrics.MessagesCreated.Add(ctx, 1, metric.WithAttributes(
			attribute.String("type", string(m.Type)),
			attribute.String("priority", string(m.Priority)),
		))
	}

	slog.Info("message created",
		"id", m.ID,
		"from", m.From,
		"to", m.To.String(),
		"type", m.Type,
		"priority", m.Priority,
	)
	s.announce(ctx, events.SubjectMessageCreated, m)
	return m, nil
}

// Get returns a message by id, reading through the cache.
func (s *MessageService) Get(ctx context.Context, id string) (*message.Message, error) {
	key := messageKey(id)
	if data, ok, err := s.cache.Get(ctx, key); err == nil && ok {
		var m message.Message
		if err := json.Unmarshal(data, &m); err == nil {
			return &m, nil
		}
		// A corrupt cache entry falls through to the store.
		_ = s.cache.Delete(ctx, key)
	}

	m, err := s.store.GetMessage(ctx, id)
	if err != nil {
		return nil, err
	}
	s.cachePut(ctx, key, m)
	return m, nil
}

// Query returns messages matching the filter, newest first, capped at limit
// (default 50).
func (s *MessageService) Query(ctx context.Context, filter message.Filter, limit int) ([]message.Message, error) {
	if limit <= 0 {
		limit = storage.DefaultQueryLimit
	}
	return s.store.QueryMessages(ctx, filter, limit)
}

// Inbox returns messages addressed to the agent directly or via broadcast,
// newest first, capped at limit (default 20).
func (s *MessageService) Inbox(ctx context.Context, agentID string, limit int) ([]message.Message, error) {
	if limit <= 0 {
		limit = storage.DefaultInboxLimit
	}
	return s.store.QueryMessages(ctx, message.Inbox(agentID), limit)
}

// UpdateStatus applies a status transition at the current time.
func (s *MessageService) UpdateStatus(ctx context.Context, id string, to message.Status) (*message.Message, error) {
	return s.UpdateStatusAt(ctx, id, to, time.Now().UTC())
}

// UpdateStatusAt applies a status transition at the given time.
// Re-asserting the current status is an idempotent no-op: the message comes
// back unchanged and no event or metric is recorded for it.
func (s *MessageService) UpdateStatusAt(ctx context.Context, id string, to message.Status, at time.Time) (*message.Message, error) {
	m, changed, err := s.store.UpdateMessageStatus(ctx, id, to, at)
	if err != nil {
		return nil, err
	}
	s.cachePut(ctx, messageKey(id), m)
	if !changed {
		return m, nil
	}

	if s.metrics != nil {
		s.metrics.StatusTransitions.Add(ctx, 1, metric.WithAttributes(
			attribute.String("status", string(m.Status)),
		))
	}
	slog.Info("message status updated", "id", id, "status", m.Status)
	s.announce(ctx, events.SubjectMessageStatus, m)
	return m, nil
}

func (s *MessageService) cachePut(ctx context.Context, key string, m *message.Message) {
	data, err := json.Marshal(m)
	if err != nil {
		return
	}
	if err := s.cache.Set(ctx, key, data, cacheTTL); err != nil {
		slog.Debug("cache set failed", "key", key, "error", err)
	}
}

func (s *MessageService) announce(ctx context.Context, subject string, m *message.Message) {
	evt := messageEvent{
		EventID:    uuid.NewString(),
		OccurredAt: time.Now().UTC(),
		Message:    m,
	}
	data, err := json.Marshal(evt)
	if err != nil {
		slog.Error("marshal message event", "id", m.ID, "error", err)
		return
	}
	if err := s.events.Publish(ctx, subject, data); err != nil {
		// The message is durable in the store; observers catch up by polling.
		slog.Error("failed to publish message event", "subject", subject, "id", m.ID, "error", err)
	}
}

func messageKey(id string) string { return "msg:" + id }
