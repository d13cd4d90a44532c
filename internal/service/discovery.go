package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	relayotel "github.com/Strob0t/Relay/internal/adapter/otel"
	"github.com/Strob0t/Relay/internal/domain"
	"github.com/Strob0t/Relay/internal/domain/message"
	"github.com/Strob0t/Relay/internal/port/events"
)

// DiscoveryService composes a registry lookup with a message-store write:
// find an agent competent for a capability, then send it a request.
type DiscoveryService struct {
	registry *RegistryService
	messages *MessageService
	events   events.Publisher
	metrics  *relayotel.Metrics
}

// NewDiscoveryService creates a new DiscoveryService.
func NewDiscoveryService(registry *RegistryService, messages *MessageService, pub events.Publisher) *DiscoveryService {
	return &DiscoveryService{registry: registry, messages: messages, events: pub}
}

// SetMetrics attaches metric instruments. Nil metrics disable recording.
func (s *DiscoveryService) SetMetrics(m *relayotel.Metrics) { s.metrics = m }

// RouteRequest describes a capability-addressed request.
type RouteRequest struct {
	Capability string           `json:"capability"`
	Subject    string           `json:"subject"`
	Body       string           `json:"body"`
	Priority   message.Priority `json:"priority"`
	From       string           `json:"from_agent"`
	TaskID     string           `json:"related_task_id,omitempty"`
}

// routedEvent is the payload published for routed requests.
type routedEvent struct {
	EventID    string           `json:"event_id"`
	OccurredAt time.Time        `json:"occurred_at"`
	Capability string           `json:"capability"`
	AgentID    string           `json:"agent_id"`
	Message    *message.Message `json:"message"`
}

// RouteRequest finds the capable agent with the lexicographically smallest
// agent_id and creates a request-type message addressed to it. Zero
// capability matches fail with ErrNoCapableAgent; a match followed by a
// failed create is reported as the create's own error, wrapped with the
// chosen agent, so the two failure modes stay distinguishable.
//
// The lookup and the write are not one transaction: the registry is
// read-only in this path, so a failed write leaves both stores unchanged.
func (s *DiscoveryService) RouteRequest(ctx context.Context, req RouteRequest) (*message.Message, string, error) {
	ctx, span := relayotel.StartRouteSpan(ctx, req.Capability, req.From)
	defer span.End()

	if req.Capability == "" {
		return nil, "", fmt.Errorf("capability is required: %w", domain.ErrValidation)
	}
	if req.Priority == "" {
		req.Priority = message.PriorityMedium
	}

	cards, err := s.registry.FindByCapability(ctx, req.Capability)
	if err != nil {
		return nil, "", fmt.Errorf("find capability %q: %w", req.Capability, err)
	}
	if len(cards) == 0 {
		return nil, "", fmt.Errorf("capability %q: %w", req.Capability, domain.ErrNoCapableAgent)
	}

	// FindByCapability returns cards sorted by agent_id, so the first match
	// is the tie-break winner.
	agentID := cards[0].AgentID

	m, err := s.messages.Create(ctx, message.Draft{
		From:          req.From,
		To:            message.To(agentID),
		Type:          message.TypeRequest,
		Priority:      req.Priority,
		Subject:       req.Subject,
		Body:          req.Body,
		RelatedTaskID: req.TaskID,
	})
	if err != nil {
		return nil, "", fmt.Errorf("route to %s: %w", agentID, err)
	}
	if s.metrics != nil {
		s.metrics.RequestsRouted.Add(ctx, 1, metric.WithAttributes(
			attribute.String("capability", req.Capability),
		))
	}

	slog.Info("request routed",
		"capability", req.Capability,
		"agent_id", agentID,
		"message_id", m.ID,
	)
	s.announceRouted(ctx, req.Capability, agentID, m)
	return m, agentID, nil
}

func (s *DiscoveryService) announceRouted(ctx context.Context, capability, agentID string, m *message.Message) {
	evt := routedEvent{
		EventID:    uuid.NewString(),
		OccurredAt: time.Now().UTC(),
		Capability: capability,
		AgentID:    agentID,
		Message:    m,
	}
	data, err := json.Marshal(evt)
	if err != nil {
		slog.Error("marshal routed event", "message_id", m.ID, "error", err)
		return
	}
	if err := s.events.Publish(ctx, events.SubjectMessageRouted, data); err != nil {
		slog.Error("failed to publish routed event", "message_id", m.ID, "error", err)
	}
}
