package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// MountRoutes registers all API routes on the given chi router.
func MountRoutes(r chi.Router, h *Handlers) {
	r.Get("/health", h.Health)

	r.Route("/api/v1", func(r chi.Router) {
		// Version
		r.Get("/", func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"version":"0.1.0"}`))
		})

		// Messages
		r.Post("/messages", h.CreateMessage)
		r.Get("/messages", h.QueryMessages)
		r.Get("/messages/{id}", h.GetMessage)
		r.Post("/messages/{id}/status", h.UpdateMessageStatus)

		// Per-agent inbox (direct + broadcast)
		r.Get("/agents/{agentID}/inbox", h.Inbox)

		// Agent cards
		r.Get("/cards", h.ListCards)
		r.Put("/cards/{agentID}", h.UpsertCard)
		r.Get("/cards/{agentID}", h.GetCard)

		// Capability routing
		r.Post("/route", h.RouteRequest)
	})
}
