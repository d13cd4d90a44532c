package postgres

import (
	"context"
	"errors"
	"os"
	"testing"

	"github.com/Strob0t/Relay/internal/config"
	"github.com/Strob0t/Relay/internal/domain"
	"github.com/Strob0t/Relay/internal/domain/agentcard"
	"github.com/Strob0t/Relay/internal/domain/message"
	"github.com/Strob0t/Relay/internal/port/storage"
)

// testStore connects to Postgres or skips if TEST_DATABASE_URL is not set.
// The schema is migrated up front; tests share one database, so they use
// distinct agent ids.
func testStore(t *testing.T) storage.Store {
	t.Helper()

	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("requires TEST_DATABASE_URL")
	}
	ctx := context.Background()

	if err := RunMigrations(ctx, dsn); err != nil {
		t.Fatalf("migrations: %v", err)
	}

	pool, err := NewPool(ctx, testPoolConfig(dsn))
	if err != nil {
		t.Fatalf("pool: %v", err)
	}
	store := NewStore(pool)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func testPoolConfig(dsn string) config.Postgres {
	cfg := config.Defaults().Postgres
	cfg.DSN = dsn
	return cfg
}

func testDraft(to string) message.Draft {
	return message.Draft{
		From:     "agent-001",
		To:       message.To(to),
		Type:     message.TypeRequest,
		Priority: message.PriorityHigh,
		Subject:  "Need help",
		Body:     "Build is red on main.",
	}
}

func TestCreateMessageAssignsSequentialIDs(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()

	first, err := store.CreateMessage(ctx, testDraft("agent-002"))
	if err != nil {
		t.Fatal(err)
	}
	second, err := store.CreateMessage(ctx, testDraft("agent-002"))
	if err != nil {
		t.Fatal(err)
	}

	if !message.IDPattern.MatchString(first.ID) || !message.IDPattern.MatchString(second.ID) {
		t.Fatalf("ids %q %q", first.ID, second.ID)
	}
	if first.ID >= second.ID {
		t.Fatalf("ids not increasing: %q then %q", first.ID, second.ID)
	}
}

func TestCreateMessageUnknownRelated(t *testing.T) {
	store := testStore(t)

	draft := testDraft("agent-002")
	draft.RelatedMessageID = "MSG-1999-01-01-001"
	_, err := store.CreateMessage(context.Background(), draft)
	if !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
}

func TestStatusLifecycle(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()

	m, err := store.CreateMessage(ctx, testDraft("agent-002"))
	if err != nil {
		t.Fatal(err)
	}

	// pending -> resolved is illegal
	if _, _, err := store.UpdateMessageStatus(ctx, m.ID, message.StatusResolved, m.CreatedAt); !errors.Is(err, domain.ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}

	for _, next := range []message.Status{message.StatusAcknowledged, message.StatusInProgress, message.StatusResolved} {
		if _, changed, err := store.UpdateMessageStatus(ctx, m.ID, next, m.CreatedAt); err != nil || !changed {
			t.Fatalf("transition to %s: changed=%v err=%v", next, changed, err)
		}
	}

	// Re-asserting the terminal status reports no change.
	if _, changed, err := store.UpdateMessageStatus(ctx, m.ID, message.StatusResolved, m.CreatedAt); err != nil || changed {
		t.Fatalf("re-assert resolved: changed=%v err=%v", changed, err)
	}

	got, err := store.GetMessage(ctx, m.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != message.StatusResolved || got.ResolvedAt == nil {
		t.Fatalf("final state %+v", got)
	}
}

func TestInboxQueryIncludesBroadcast(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()

	direct := testDraft("agent-postgres-inbox")
	if _, err := store.CreateMessage(ctx, direct); err != nil {
		t.Fatal(err)
	}
	broadcast := testDraft("agent-other")
	broadcast.To = message.Broadcast()
	broadcast.Type = message.TypeNotification
	if _, err := store.CreateMessage(ctx, broadcast); err != nil {
		t.Fatal(err)
	}

	inbox, err := store.QueryMessages(ctx, message.Inbox("agent-postgres-inbox"), 0)
	if err != nil {
		t.Fatal(err)
	}
	var gotDirect, gotBroadcast bool
	for _, m := range inbox {
		if m.To.AgentID() == "agent-postgres-inbox" {
			gotDirect = true
		}
		if m.To.IsBroadcast() {
			gotBroadcast = true
		}
	}
	if !gotDirect || !gotBroadcast {
		t.Fatalf("inbox missing direct=%v broadcast=%v", gotDirect, gotBroadcast)
	}
}

func TestUpsertCardPreservesCreatedAt(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()

	req := agentcard.UpsertRequest{
		AgentID:      "agent-postgres-card",
		Name:         "Builder",
		Version:      "1.0.0",
		Capabilities: []string{"docker_management"},
		Transports:   []agentcard.Transport{{Type: "http", Endpoint: "http://agent/a2a"}},
	}

	first, err := store.UpsertCard(ctx, req)
	if err != nil {
		t.Fatal(err)
	}
	req.Version = "1.1.0"
	second, err := store.UpsertCard(ctx, req)
	if err != nil {
		t.Fatal(err)
	}

	if !second.CreatedAt.Equal(first.CreatedAt) {
		t.Fatal("created_at changed on upsert")
	}
	if !second.UpdatedAt.After(first.UpdatedAt) {
		t.Fatal("updated_at did not advance")
	}
	if second.Version != "1.1.0" {
		t.Fatalf("version %s", second.Version)
	}

	got, err := store.GetCard(ctx, "agent-postgres-card")
	if err != nil {
		t.Fatal(err)
	}
	if got.Version != "1.1.0" || !got.HasCapability("docker_management") {
		t.Fatalf("card %+v", got)
	}
}

func TestListCardsByCapability(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()

	req := agentcard.UpsertRequest{
		AgentID:      "agent-postgres-list",
		Name:         "Reviewer",
		Version:      "1.0.0",
		Capabilities: []string{"postgres_list_capability"},
		Transports:   []agentcard.Transport{{Type: "http", Endpoint: "http://agent/a2a"}},
	}
	if _, err := store.UpsertCard(ctx, req); err != nil {
		t.Fatal(err)
	}

	cards, err := store.ListCards(ctx, agentcard.Filter{Capability: "postgres_list_capability"})
	if err != nil {
		t.Fatal(err)
	}
	if len(cards) != 1 || cards[0].AgentID != "agent-postgres-list" {
		t.Fatalf("cards %+v", cards)
	}
}
