package http

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/Strob0t/Relay/internal/adapter/fsstore"
	"github.com/Strob0t/Relay/internal/domain/message"
	"github.com/Strob0t/Relay/internal/port/cache"
	"github.com/Strob0t/Relay/internal/port/events"
	"github.com/Strob0t/Relay/internal/service"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()

	store, err := fsstore.Open(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = store.Close() })

	messages := service.NewMessageService(store, cache.Nop{}, events.Noop{})
	registry := service.NewRegistryService(store, cache.Nop{}, events.Noop{})
	discovery := service.NewDiscoveryService(registry, messages, events.Noop{})

	r := chi.NewRouter()
	MountRoutes(r, NewHandlers(messages, registry, discovery))
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv
}

func postJSON(t *testing.T, url, body string, out any) int {
	t.Helper()
	resp, err := http.Post(url, "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatal(err)
		}
	}
	return resp.StatusCode
}

func getJSON(t *testing.T, url string, out any) int {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatal(err)
		}
	}
	return resp.StatusCode
}

func putJSON(t *testing.T, url, body string, out any) int {
	t.Helper()
	req, err := http.NewRequest(http.MethodPut, url, strings.NewReader(body))
	if err != nil {
		t.Fatal(err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatal(err)
		}
	}
	return resp.StatusCode
}

const draftBody = `{
	"from_agent": "agent-001",
	"to_agent": "agent-002",
	"type": "request",
	"priority": "high",
	"subject": "Need help",
	"body": "Build is red on main."
}`

const cardBody = `{
	"agent_id": "agent-001",
	"name": "Builder",
	"version": "1.0.0",
	"capabilities": ["docker_management"],
	"transports": [{"type": "http", "endpoint": "http://agent-001/a2a"}]
}`

func TestCreateAndGetMessage(t *testing.T) {
	srv := newTestServer(t)

	var created message.Message
	if code := postJSON(t, srv.URL+"/api/v1/messages", draftBody, &created); code != http.StatusCreated {
		t.Fatalf("create status %d", code)
	}
	if !message.IDPattern.MatchString(created.ID) {
		t.Fatalf("id %q", created.ID)
	}
	if created.Status != message.StatusPending {
		t.Fatalf("status %s", created.Status)
	}

	var got message.Message
	if code := getJSON(t, srv.URL+"/api/v1/messages/"+created.ID, &got); code != http.StatusOK {
		t.Fatalf("get status %d", code)
	}
	if got.ID != created.ID || got.Subject != "Need help" {
		t.Fatalf("got %+v", got)
	}
}

func TestCreateMessageValidation(t *testing.T) {
	srv := newTestServer(t)

	var errResp errorResponse
	code := postJSON(t, srv.URL+"/api/v1/messages", `{"from_agent":"agent-001"}`, &errResp)
	if code != http.StatusBadRequest {
		t.Fatalf("status %d", code)
	}
	if errResp.Error == "" {
		t.Fatal("missing error message")
	}
}

func TestGetMessageNotFound(t *testing.T) {
	srv := newTestServer(t)

	if code := getJSON(t, srv.URL+"/api/v1/messages/MSG-2026-01-01-001", nil); code != http.StatusNotFound {
		t.Fatalf("status %d", code)
	}
}

func TestStatusUpdateFlow(t *testing.T) {
	srv := newTestServer(t)

	var created message.Message
	postJSON(t, srv.URL+"/api/v1/messages", draftBody, &created)
	statusURL := srv.URL + "/api/v1/messages/" + created.ID + "/status"

	var updated message.Message
	if code := postJSON(t, statusURL, `{"status":"acknowledged"}`, &updated); code != http.StatusOK {
		t.Fatalf("acknowledge status %d", code)
	}
	if updated.AcknowledgedAt == nil {
		t.Fatal("acknowledged_at not set")
	}

	// acknowledged -> resolved skips in_progress
	if code := postJSON(t, statusURL, `{"status":"resolved"}`, nil); code != http.StatusConflict {
		t.Fatalf("illegal transition status %d", code)
	}

	// re-asserting the current status is idempotent
	if code := postJSON(t, statusURL, `{"status":"acknowledged"}`, nil); code != http.StatusOK {
		t.Fatalf("idempotent re-assert status %d", code)
	}
}

func TestInboxIncludesBroadcast(t *testing.T) {
	srv := newTestServer(t)

	postJSON(t, srv.URL+"/api/v1/messages", draftBody, nil)
	postJSON(t, srv.URL+"/api/v1/messages", `{
		"from_agent": "agent-001",
		"to_agent": "all",
		"type": "notification",
		"priority": "low",
		"subject": "Heads up",
		"body": "Deploy at noon."
	}`, nil)

	var inbox struct {
		Messages []message.Message `json:"messages"`
		Count    int               `json:"count"`
	}
	if code := getJSON(t, srv.URL+"/api/v1/agents/agent-002/inbox", &inbox); code != http.StatusOK {
		t.Fatalf("inbox status %d", code)
	}
	if inbox.Count != 2 {
		t.Fatalf("inbox count %d", inbox.Count)
	}

	// exact recipient query excludes broadcast
	var direct struct {
		Count int `json:"count"`
	}
	if code := getJSON(t, srv.URL+"/api/v1/messages?to=agent-002", &direct); code != http.StatusOK {
		t.Fatalf("query status %d", code)
	}
	if direct.Count != 1 {
		t.Fatalf("exact query count %d", direct.Count)
	}
}

func TestCardUpsertAndList(t *testing.T) {
	srv := newTestServer(t)

	if code := putJSON(t, srv.URL+"/api/v1/cards/agent-001", cardBody, nil); code != http.StatusOK {
		t.Fatalf("upsert status %d", code)
	}

	if code := putJSON(t, srv.URL+"/api/v1/cards/agent-999", cardBody, nil); code != http.StatusBadRequest {
		t.Fatalf("mismatched agent_id status %d", code)
	}

	var list struct {
		Count int `json:"count"`
	}
	if code := getJSON(t, srv.URL+"/api/v1/cards?capability=docker_management", &list); code != http.StatusOK {
		t.Fatalf("list status %d", code)
	}
	if list.Count != 1 {
		t.Fatalf("list count %d", list.Count)
	}
}

func TestRouteRequest(t *testing.T) {
	srv := newTestServer(t)

	putJSON(t, srv.URL+"/api/v1/cards/agent-001", cardBody, nil)

	var routed routeResponse
	code := postJSON(t, srv.URL+"/api/v1/route", `{
		"capability": "docker_management",
		"subject": "Restart the runner",
		"body": "Runner 3 is wedged.",
		"from_agent": "agent-ops"
	}`, &routed)
	if code != http.StatusCreated {
		t.Fatalf("route status %d", code)
	}
	if routed.AgentID != "agent-001" || routed.Message.Type != message.TypeRequest {
		t.Fatalf("routed %+v", routed)
	}

	if code := postJSON(t, srv.URL+"/api/v1/route", `{
		"capability": "quantum_decryption",
		"subject": "Help",
		"body": "...",
		"from_agent": "agent-ops"
	}`, nil); code != http.StatusNotFound {
		t.Fatalf("no capable agent status %d", code)
	}
}

func TestHealth(t *testing.T) {
	srv := newTestServer(t)

	var health map[string]string
	if code := getJSON(t, srv.URL+"/health", &health); code != http.StatusOK {
		t.Fatalf("health status %d", code)
	}
	if health["status"] != "ok" {
		t.Fatalf("health %v", health)
	}
}
