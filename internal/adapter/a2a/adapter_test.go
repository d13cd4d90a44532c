package a2a

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/Strob0t/Relay/internal/domain"
	"github.com/Strob0t/Relay/internal/domain/agentcard"
	"github.com/Strob0t/Relay/internal/domain/message"
)

type mockMessages struct {
	created  []message.Draft
	updated  []string
	messages map[string]*message.Message
	queryOut []message.Message
}

func newMockMessages() *mockMessages {
	return &mockMessages{messages: make(map[string]*message.Message)}
}

func (m *mockMessages) Create(_ context.Context, draft message.Draft) (*message.Message, error) {
	if err := draft.Validate(); err != nil {
		return nil, err
	}
	m.created = append(m.created, draft)
	msg := &message.Message{
		ID:               message.FormatID(time.Now().UTC(), len(m.created)),
		From:             draft.From,
		To:               draft.To,
		Type:             draft.Type,
		Priority:         draft.Priority,
		Status:           message.StatusPending,
		Subject:          draft.Subject,
		Body:             draft.Body,
		CreatedAt:        time.Now().UTC(),
		RelatedTaskID:    draft.RelatedTaskID,
		RelatedMessageID: draft.RelatedMessageID,
	}
	m.messages[msg.ID] = msg
	return msg, nil
}

func (m *mockMessages) Query(_ context.Context, _ message.Filter, limit int) ([]message.Message, error) {
	if len(m.queryOut) > limit {
		return m.queryOut[:limit], nil
	}
	return m.queryOut, nil
}

func (m *mockMessages) UpdateStatus(_ context.Context, id string, to message.Status) (*message.Message, error) {
	msg, ok := m.messages[id]
	if !ok {
		return nil, fmt.Errorf("message %s: %w", id, domain.ErrNotFound)
	}
	if _, err := message.Transition(msg, to, time.Now().UTC()); err != nil {
		return nil, err
	}
	m.updated = append(m.updated, id)
	return msg, nil
}

type mockRegistry struct {
	cards map[string]*agentcard.Card
}

func newMockRegistry() *mockRegistry {
	return &mockRegistry{cards: make(map[string]*agentcard.Card)}
}

func (m *mockRegistry) Get(_ context.Context, agentID string) (*agentcard.Card, error) {
	card, ok := m.cards[agentID]
	if !ok {
		return nil, fmt.Errorf("agent card %s: %w", agentID, domain.ErrNotFound)
	}
	return card, nil
}

func (m *mockRegistry) List(_ context.Context, filter agentcard.Filter) ([]agentcard.Card, error) {
	var out []agentcard.Card
	for _, card := range m.cards {
		if filter.Matches(card) {
			out = append(out, *card)
		}
	}
	return out, nil
}

func rawParams(t *testing.T, v any) json.RawMessage {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatal(err)
	}
	return data
}

func TestToRequestRoundTrip(t *testing.T) {
	m := &message.Message{
		ID:               "MSG-2026-08-23-001",
		From:             "agent-001",
		To:               message.To("agent-002"),
		Type:             message.TypeRequest,
		Priority:         message.PriorityHigh,
		Status:           message.StatusPending,
		Subject:          "Review PR #42",
		Body:             "The auth refactor needs a second pair of eyes.",
		CreatedAt:        time.Now().UTC(),
		RelatedTaskID:    "TASK-077",
		RelatedMessageID: "MSG-2026-08-22-003",
	}

	req, err := ToRequest(m)
	if err != nil {
		t.Fatal(err)
	}
	if req.JSONRPC != Version || req.Method != MethodSendMessage {
		t.Fatalf("envelope %+v", req)
	}
	if req.ID == "" || req.ID == nil {
		t.Fatal("missing correlation id")
	}

	var p SendMessageParams
	if err := json.Unmarshal(req.Params, &p); err != nil {
		t.Fatal(err)
	}
	draft := DraftFromParams(p)

	want := message.Draft{
		From:             m.From,
		To:               m.To,
		Type:             m.Type,
		Priority:         m.Priority,
		Subject:          m.Subject,
		Body:             m.Body,
		RelatedTaskID:    m.RelatedTaskID,
		RelatedMessageID: m.RelatedMessageID,
	}
	if draft != want {
		t.Fatalf("round trip lost fields:\n got %+v\nwant %+v", draft, want)
	}
}

func TestToRequestBroadcastRoundTrip(t *testing.T) {
	m := &message.Message{
		ID:       "MSG-2026-08-23-002",
		From:     "agent-001",
		To:       message.Broadcast(),
		Type:     message.TypeNotification,
		Priority: message.PriorityLow,
		Subject:  "Maintenance window",
		Body:     "Registry is read-only 02:00-03:00 UTC.",
	}

	req, err := ToRequest(m)
	if err != nil {
		t.Fatal(err)
	}
	var p SendMessageParams
	if err := json.Unmarshal(req.Params, &p); err != nil {
		t.Fatal(err)
	}
	if p.To != "all" {
		t.Fatalf("broadcast wire form %q", p.To)
	}
	if !DraftFromParams(p).To.IsBroadcast() {
		t.Fatal("broadcast lost on the way back")
	}
}

func TestDispatchSendMessage(t *testing.T) {
	messages := newMockMessages()
	adapter := NewAdapter(messages, newMockRegistry())

	resp := adapter.Dispatch(context.Background(), &Request{
		JSONRPC: Version,
		ID:      7,
		Method:  MethodSendMessage,
		Params: rawParams(t, SendMessageParams{
			From:     "agent-001",
			To:       "agent-002",
			Type:     "request",
			Priority: "high",
			Subject:  "Need help",
			Content:  "Build is red on main.",
		}),
	})

	if resp.Error != nil {
		t.Fatalf("error %+v", resp.Error)
	}
	if resp.ID != 7 {
		t.Fatalf("response id %v", resp.ID)
	}
	if len(messages.created) != 1 || messages.created[0].Body != "Build is red on main." {
		t.Fatalf("created %+v", messages.created)
	}
}

func TestDispatchUnknownMethod(t *testing.T) {
	adapter := NewAdapter(newMockMessages(), newMockRegistry())

	resp := adapter.Dispatch(context.Background(), &Request{
		JSONRPC: Version,
		ID:      "req-1",
		Method:  "a2a.deleteMessage",
	})
	if resp.Error == nil || resp.Error.Code != CodeMethodNotFound {
		t.Fatalf("expected -32601, got %+v", resp.Error)
	}
}

func TestDispatchWrongVersion(t *testing.T) {
	adapter := NewAdapter(newMockMessages(), newMockRegistry())

	resp := adapter.Dispatch(context.Background(), &Request{
		JSONRPC: "1.0",
		Method:  MethodSendMessage,
	})
	if resp.Error == nil || resp.Error.Code != CodeInvalidRequest {
		t.Fatalf("expected -32600, got %+v", resp.Error)
	}
}

func TestDispatchMissingParams(t *testing.T) {
	adapter := NewAdapter(newMockMessages(), newMockRegistry())

	for _, method := range []string{
		MethodSendMessage,
		MethodGetMessages,
		MethodAcknowledgeMessage,
		MethodResolveMessage,
		MethodGetAgentCard,
	} {
		resp := adapter.Dispatch(context.Background(), &Request{
			JSONRPC: Version,
			ID:      1,
			Method:  method,
		})
		if resp.Error == nil || resp.Error.Code != CodeInvalidParams {
			t.Fatalf("%s: expected -32602, got %+v", method, resp.Error)
		}
	}
}

func TestDispatchInvalidDraft(t *testing.T) {
	adapter := NewAdapter(newMockMessages(), newMockRegistry())

	resp := adapter.Dispatch(context.Background(), &Request{
		JSONRPC: Version,
		ID:      1,
		Method:  MethodSendMessage,
		Params:  rawParams(t, SendMessageParams{From: "agent-001"}),
	})
	if resp.Error == nil || resp.Error.Code != CodeInvalidParams {
		t.Fatalf("expected -32602, got %+v", resp.Error)
	}
}

func TestDispatchAcknowledgeAndResolve(t *testing.T) {
	messages := newMockMessages()
	adapter := NewAdapter(messages, newMockRegistry())
	ctx := context.Background()

	m, err := messages.Create(ctx, message.Draft{
		From: "agent-001", To: message.To("agent-002"),
		Type: message.TypeRequest, Priority: message.PriorityHigh,
		Subject: "Need help", Body: "...",
	})
	if err != nil {
		t.Fatal(err)
	}

	resp := adapter.Dispatch(ctx, &Request{
		JSONRPC: Version, ID: 1, Method: MethodAcknowledgeMessage,
		Params: rawParams(t, StatusParams{MessageID: m.ID}),
	})
	if resp.Error != nil {
		t.Fatalf("acknowledge: %+v", resp.Error)
	}

	// pending -> resolved is not a legal edge; acknowledged -> resolved
	// is not either, the message must pass through in_progress first.
	resp = adapter.Dispatch(ctx, &Request{
		JSONRPC: Version, ID: 2, Method: MethodResolveMessage,
		Params: rawParams(t, StatusParams{MessageID: m.ID}),
	})
	if resp.Error == nil || resp.Error.Code != CodeInvalidTransition {
		t.Fatalf("expected -32002, got %+v", resp.Error)
	}
}

func TestDispatchStatusNotFound(t *testing.T) {
	adapter := NewAdapter(newMockMessages(), newMockRegistry())

	resp := adapter.Dispatch(context.Background(), &Request{
		JSONRPC: Version, ID: 1, Method: MethodAcknowledgeMessage,
		Params: rawParams(t, StatusParams{MessageID: "MSG-2026-01-01-001"}),
	})
	if resp.Error == nil || resp.Error.Code != CodeNotFound {
		t.Fatalf("expected -32001, got %+v", resp.Error)
	}
}

func TestDispatchGetMessagesRejectsBadStatus(t *testing.T) {
	adapter := NewAdapter(newMockMessages(), newMockRegistry())

	resp := adapter.Dispatch(context.Background(), &Request{
		JSONRPC: Version, ID: 1, Method: MethodGetMessages,
		Params: rawParams(t, GetMessagesParams{AgentID: "agent-002", Status: "archived"}),
	})
	if resp.Error == nil || resp.Error.Code != CodeInvalidParams {
		t.Fatalf("expected -32602, got %+v", resp.Error)
	}
}

func TestDispatchGetAgentCard(t *testing.T) {
	registry := newMockRegistry()
	registry.cards["agent-001"] = &agentcard.Card{AgentID: "agent-001", Name: "Builder", Version: "1.0.0"}
	adapter := NewAdapter(newMockMessages(), registry)

	resp := adapter.Dispatch(context.Background(), &Request{
		JSONRPC: Version, ID: 1, Method: MethodGetAgentCard,
		Params: rawParams(t, GetAgentCardParams{AgentID: "agent-001"}),
	})
	if resp.Error != nil {
		t.Fatalf("error %+v", resp.Error)
	}
	card, ok := resp.Result.(*agentcard.Card)
	if !ok || card.AgentID != "agent-001" {
		t.Fatalf("result %+v", resp.Result)
	}

	resp = adapter.Dispatch(context.Background(), &Request{
		JSONRPC: Version, ID: 2, Method: MethodGetAgentCard,
		Params: rawParams(t, GetAgentCardParams{AgentID: "agent-404"}),
	})
	if resp.Error == nil || resp.Error.Code != CodeNotFound {
		t.Fatalf("expected -32001, got %+v", resp.Error)
	}
}

func TestDispatchListAgentCards(t *testing.T) {
	registry := newMockRegistry()
	registry.cards["agent-001"] = &agentcard.Card{AgentID: "agent-001", Capabilities: []string{"docker_management"}}
	registry.cards["agent-002"] = &agentcard.Card{AgentID: "agent-002", Capabilities: []string{"code_review"}}
	adapter := NewAdapter(newMockMessages(), registry)

	resp := adapter.Dispatch(context.Background(), &Request{
		JSONRPC: Version, ID: 1, Method: MethodListAgentCards,
		Params: rawParams(t, ListAgentCardsParams{Capability: "code_review"}),
	})
	if resp.Error != nil {
		t.Fatalf("error %+v", resp.Error)
	}
	result, ok := resp.Result.(map[string]any)
	if !ok {
		t.Fatalf("result %T", resp.Result)
	}
	if result["count"] != 1 {
		t.Fatalf("count %v", result["count"])
	}
}
