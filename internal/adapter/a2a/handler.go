package a2a

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
)

// Handler serves the JSON-RPC endpoint over HTTP POST.
type Handler struct {
	adapter *Adapter
}

// NewHandler creates a new Handler.
func NewHandler(adapter *Adapter) *Handler {
	return &Handler{adapter: adapter}
}

// MountRoutes registers the endpoint on the router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/a2a", h.handleRPC)
}

// handleRPC answers every well-formed POST with HTTP 200; failures travel
// in the JSON-RPC error object, as the protocol expects.
func (h *Handler) handleRPC(w http.ResponseWriter, r *http.Request) {
	var req Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeResponse(w, errorResponse(nil, &Error{
			Code:    CodeParseError,
			Message: "invalid JSON: " + err.Error(),
		}))
		return
	}

	resp := h.adapter.Dispatch(r.Context(), &req)
	if resp.Error != nil {
		slog.Debug("rpc call failed",
			"method", req.Method,
			"code", resp.Error.Code,
			"error", resp.Error.Message,
		)
	}
	h.writeResponse(w, resp)
}

func (h *Handler) writeResponse(w http.ResponseWriter, resp *Response) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		slog.Error("failed to encode rpc response", "error", err)
	}
}
