package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	relayotel "github.com/Strob0t/Relay/internal/adapter/otel"
	"github.com/Strob0t/Relay/internal/domain/agentcard"
	"github.com/Strob0t/Relay/internal/port/cache"
	"github.com/Strob0t/Relay/internal/port/events"
	"github.com/Strob0t/Relay/internal/port/storage"
)

// RegistryService handles agent card registration and capability search.
type RegistryService struct {
	store   storage.Store
	cache   cache.Cache
	events  events.Publisher
	metrics *relayotel.Metrics
}

// NewRegistryService creates a new RegistryService.
func NewRegistryService(store storage.Store, c cache.Cache, pub events.Publisher) *RegistryService {
	return &RegistryService{store: store, cache: c, events: pub}
}

// SetMetrics attaches metric instruments. Nil metrics disable recording.
func (s *RegistryService) SetMetrics(m *relayotel.Metrics) { s.metrics = m }

// cardEvent is the payload published for card registrations.
type cardEvent struct {
	EventID    string          `json:"event_id"`
	OccurredAt time.Time       `json:"occurred_at"`
	Card       *agentcard.Card `json:"card"`
}

// Upsert registers or replaces an agent card. When rawAPIKey is non-empty
// the card's authentication descriptor stores a bcrypt hash of it; raw key
// material never reaches the store.
func (s *RegistryService) Upsert(ctx context.Context, req agentcard.UpsertRequest, rawAPIKey string) (*agentcard.Card, error) {
	ctx, span := relayotel.StartCardSpan(ctx, req.AgentID)
	defer span.End()

	if rawAPIKey != "" {
		hash, err := bcrypt.GenerateFromPassword([]byte(rawAPIKey), bcrypt.DefaultCost)
		if err != nil {
			return nil, fmt.Errorf("hash api key: %w", err)
		}
		req.Authentication.KeyHash = string(hash)
	}

	card, err := s.store.UpsertCard(ctx, req)
	if err != nil {
		return nil, err
	}
	if s.metrics != nil {
		s.metrics.CardsUpserted.Add(ctx, 1)
	}

	s.cachePut(ctx, cardKey(card.AgentID), card)
	slog.Info("agent card upserted",
		"agent_id", card.AgentID,
		"version", card.Version,
		"capabilities", len(card.Capabilities),
	)
	s.announceCard(ctx, card)
	return card, nil
}

// Get returns a card by agent id, reading through the cache.
func (s *RegistryService) Get(ctx context.Context, agentID string) (*agentcard.Card, error) {
	key := cardKey(agentID)
	if data, ok, err := s.cache.Get(ctx, key); err == nil && ok {
		var card agentcard.Card
		if err := json.Unmarshal(data, &card); err == nil {
			return &card, nil
		}
		_ = s.cache.Delete(ctx, key)
	}

	card, err := s.store.GetCard(ctx, agentID)
	if err != nil {
		return nil, err
	}
	s.cachePut(ctx, key, card)
	return card, nil
}

// List returns cards matching the AND-combined filter, sorted by agent_id.
func (s *RegistryService) List(ctx context.Context, filter agentcard.Filter) ([]agentcard.Card, error) {
	return s.store.ListCards(ctx, filter)
}

// FindByCapability returns the cards advertising the given capability.
func (s *RegistryService) FindByCapability(ctx context.Context, capability string) ([]agentcard.Card, error) {
	return s.List(ctx, agentcard.Filter{Capability: capability})
}

func (s *RegistryService) cachePut(ctx context.Context, key string, card *agentcard.Card) {
	data, err := json.Marshal(card)
	if err != nil {
		return
	}
	if err := s.cache.Set(ctx, key, data, cacheTTL); err != nil {
		slog.Debug("cache set failed", "key", key, "error", err)
	}
}

func (s *RegistryService) announceCard(ctx context.Context, card *agentcard.Card) {
	evt := cardEvent{
		EventID:    uuid.NewString(),
		OccurredAt: time.Now().UTC(),
		Card:       card,
	}
	data, err := json.Marshal(evt)
	if err != nil {
		slog.Error("marshal card event", "agent_id", card.AgentID, "error", err)
		return
	}
	if err := s.events.Publish(ctx, events.SubjectCardUpserted, data); err != nil {
		slog.Error("failed to publish card event", "agent_id", card.AgentID, "error", err)
	}
}

func cardKey(agentID string) string { return "card:" + agentID }
