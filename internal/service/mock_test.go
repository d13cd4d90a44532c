package service

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/Strob0t/Relay/internal/domain"
	"github.com/Strob0t/Relay/internal/domain/agentcard"
	"github.com/Strob0t/Relay/internal/domain/message"
)

// mockStore is an in-memory storage.Store for service tests.
type mockStore struct {
	mu       sync.Mutex
	messages map[string]*message.Message
	cards    map[string]*agentcard.Card
	seq      int

	createErr error
}

func newMockStore() *mockStore {
	return &mockStore{
		messages: make(map[string]*message.Message),
		cards:    make(map[string]*agentcard.Card),
	}
}

func (s *mockStore) CreateMessage(_ context.Context, draft message.Draft) (*message.Message, error) {
	if err := draft.Validate(); err != nil {
		return nil, err
	}
	if s.createErr != nil {
		return nil, s.createErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	now := time.Now().UTC()
	m := &message.Message{
		ID:            message.FormatID(now, s.seq),
		From:          draft.From,
		To:            draft.To,
		Type:          draft.Type,
		Priority:      draft.Priority,
		Status:        message.StatusPending,
		Subject:       draft.Subject,
		Body:          draft.Body,
		CreatedAt:     now,
		RelatedTaskID: draft.RelatedTaskID,
	}
	s.messages[m.ID] = m
	return m, nil
}

func (s *mockStore) GetMessage(_ context.Context, id string) (*message.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.messages[id]
	if !ok {
		return nil, fmt.Errorf("get message %s: %w", id, domain.ErrNotFound)
	}
	copied := *m
	return &copied, nil
}

func (s *mockStore) QueryMessages(_ context.Context, filter message.Filter, limit int) ([]message.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []message.Message
	for _, m := range s.messages {
		e := message.IndexEntry{
			ID: m.ID, From: m.From, To: m.To, Type: m.Type,
			Priority: m.Priority, Status: m.Status, CreatedAt: m.CreatedAt, TaskID: m.RelatedTaskID,
		}
		if filter.Matches(e) {
			out = append(out, *m)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *mockStore) UpdateMessageStatus(_ context.Context, id string, to message.Status, at time.Time) (*message.Message, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.messages[id]
	if !ok {
		return nil, false, fmt.Errorf("update status %s: %w", id, domain.ErrNotFound)
	}
	changed, err := message.Transition(m, to, at)
	if err != nil {
		return nil, false, err
	}
	copied := *m
	return &copied, changed, nil
}

func (s *mockStore) UpsertCard(_ context.Context, req agentcard.UpsertRequest) (*agentcard.Card, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now().UTC()
	card := &agentcard.Card{
		AgentID:        req.AgentID,
		Name:           req.Name,
		Version:        req.Version,
		Capabilities:   req.Capabilities,
		Transports:     req.Transports,
		Authentication: req.Authentication,
		Metadata:       req.Metadata,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if existing, ok := s.cards[req.AgentID]; ok {
		card.CreatedAt = existing.CreatedAt
		card.UpdatedAt = existing.UpdatedAt.Add(time.Millisecond)
	}
	s.cards[req.AgentID] = card
	copied := *card
	return &copied, nil
}

func (s *mockStore) GetCard(_ context.Context, agentID string) (*agentcard.Card, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	card, ok := s.cards[agentID]
	if !ok {
		return nil, fmt.Errorf("get card %s: %w", agentID, domain.ErrNotFound)
	}
	copied := *card
	return &copied, nil
}

func (s *mockStore) ListCards(_ context.Context, filter agentcard.Filter) ([]agentcard.Card, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []agentcard.Card
	for _, card := range s.cards {
		if filter.Matches(card) {
			out = append(out, *card)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AgentID < out[j].AgentID })
	return out, nil
}

func (s *mockStore) Close() error { return nil }

func (s *mockStore) messageCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.messages)
}

// mockPublisher records published events.
type mockPublisher struct {
	mu        sync.Mutex
	published []struct {
		subject string
		data    []byte
	}
	publishErr error
}

func (p *mockPublisher) Publish(_ context.Context, subject string, data []byte) error {
	if p.publishErr != nil {
		return p.publishErr
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.published = append(p.published, struct {
		subject string
		data    []byte
	}{subject, data})
	return nil
}

func (p *mockPublisher) Close() error { return nil }

func (p *mockPublisher) subjects() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.published))
	for i, e := range p.published {
		out[i] = e.subject
	}
	return out
}
