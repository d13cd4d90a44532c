package http

import (
	"net/http"

	"github.com/Strob0t/Relay/internal/domain/agentcard"
	"github.com/Strob0t/Relay/internal/domain/message"
	"github.com/Strob0t/Relay/internal/service"
)

// Handlers holds the HTTP handler dependencies.
type Handlers struct {
	Messages  *service.MessageService
	Registry  *service.RegistryService
	Discovery *service.DiscoveryService
}

// NewHandlers creates the handler set.
func NewHandlers(messages *service.MessageService, registry *service.RegistryService, discovery *service.DiscoveryService) *Handlers {
	return &Handlers{Messages: messages, Registry: registry, Discovery: discovery}
}

// ---------------------------------------------------------------------------
// Messages
// ---------------------------------------------------------------------------

// CreateMessage handles POST /api/v1/messages.
func (h *Handlers) CreateMessage(w http.ResponseWriter, r *http.Request) {
	draft, ok := readJSON[message.Draft](w, r)
	if !ok {
		return
	}

	m, err := h.Messages.Create(r.Context(), draft)
	if err != nil {
		writeDomainError(w, err, "message not found")
		return
	}
	writeJSON(w, http.StatusCreated, m)
}

// GetMessage handles GET /api/v1/messages/{id}.
func (h *Handlers) GetMessage(w http.ResponseWriter, r *http.Request) {
	id := urlParam(r, "id")

	m, err := h.Messages.Get(r.Context(), id)
	if err != nil {
		writeDomainError(w, err, "message not found")
		return
	}
	writeJSON(w, http.StatusOK, m)
}

// QueryMessages handles GET /api/v1/messages with filter query parameters.
// An exact to= filter matches only that recipient; broadcast messages are
// fetched with to=all or through the inbox endpoint.
func (h *Handlers) QueryMessages(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := message.Filter{
		From:     q.Get("from"),
		Type:     message.Type(q.Get("type")),
		Priority: message.Priority(q.Get("priority")),
		Status:   message.Status(q.Get("status")),
		TaskID:   q.Get("task_id"),
	}
	if to := q.Get("to"); to != "" {
		recipient := message.To(to)
		filter.To = &recipient
	}

	msgs, err := h.Messages.Query(r.Context(), filter, queryLimit(r))
	if err != nil {
		writeDomainError(w, err, "messages not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"messages": msgs, "count": len(msgs)})
}

// Inbox handles GET /api/v1/agents/{agentID}/inbox: messages addressed to
// the agent directly or via broadcast.
func (h *Handlers) Inbox(w http.ResponseWriter, r *http.Request) {
	agentID := urlParam(r, "agentID")

	msgs, err := h.Messages.Inbox(r.Context(), agentID, queryLimit(r))
	if err != nil {
		writeDomainError(w, err, "messages not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"messages": msgs, "count": len(msgs)})
}

type statusUpdateRequest struct {
	Status message.Status `json:"status"`
}

// UpdateMessageStatus handles POST /api/v1/messages/{id}/status.
// Re-asserting the current status returns 200 with the unchanged message.
func (h *Handlers) UpdateMessageStatus(w http.ResponseWriter, r *http.Request) {
	id := urlParam(r, "id")
	req, ok := readJSON[statusUpdateRequest](w, r)
	if !ok {
		return
	}
	if req.Status == "" {
		writeError(w, http.StatusBadRequest, "status is required")
		return
	}

	m, err := h.Messages.UpdateStatus(r.Context(), id, req.Status)
	if err != nil {
		writeDomainError(w, err, "message not found")
		return
	}
	writeJSON(w, http.StatusOK, m)
}

// ---------------------------------------------------------------------------
// Agent cards
// ---------------------------------------------------------------------------

// UpsertCard handles PUT /api/v1/cards/{agentID}. A raw API key supplied in
// the X-API-Key header is hashed before the card is stored.
func (h *Handlers) UpsertCard(w http.ResponseWriter, r *http.Request) {
	agentID := urlParam(r, "agentID")
	req, ok := readJSON[agentcard.UpsertRequest](w, r)
	if !ok {
		return
	}
	if req.AgentID == "" {
		req.AgentID = agentID
	}
	if req.AgentID != agentID {
		writeError(w, http.StatusBadRequest, "agent_id in body does not match URL")
		return
	}

	card, err := h.Registry.Upsert(r.Context(), req, r.Header.Get("X-API-Key"))
	if err != nil {
		writeDomainError(w, err, "agent card not found")
		return
	}
	writeJSON(w, http.StatusOK, card)
}

// GetCard handles GET /api/v1/cards/{agentID}.
func (h *Handlers) GetCard(w http.ResponseWriter, r *http.Request) {
	agentID := urlParam(r, "agentID")

	card, err := h.Registry.Get(r.Context(), agentID)
	if err != nil {
		writeDomainError(w, err, "agent card not found")
		return
	}
	writeJSON(w, http.StatusOK, card)
}

// ListCards handles GET /api/v1/cards with filter query parameters.
func (h *Handlers) ListCards(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	cards, err := h.Registry.List(r.Context(), agentcard.Filter{
		Capability:     q.Get("capability"),
		Specialization: q.Get("specialization"),
		Status:         q.Get("status"),
	})
	if err != nil {
		writeDomainError(w, err, "agent cards not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"cards": cards, "count": len(cards)})
}

// ---------------------------------------------------------------------------
// Discovery
// ---------------------------------------------------------------------------

type routeResponse struct {
	AgentID string           `json:"agent_id"`
	Message *message.Message `json:"message"`
}

// RouteRequest handles POST /api/v1/route: find an agent by capability and
// send it the request in one call.
func (h *Handlers) RouteRequest(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[service.RouteRequest](w, r)
	if !ok {
		return
	}

	m, agentID, err := h.Discovery.RouteRequest(r.Context(), req)
	if err != nil {
		writeDomainError(w, err, "no capable agent found")
		return
	}
	writeJSON(w, http.StatusCreated, routeResponse{AgentID: agentID, Message: m})
}

// ---------------------------------------------------------------------------
// Health
// ---------------------------------------------------------------------------

// Health handles GET /health.
func (h *Handlers) Health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
