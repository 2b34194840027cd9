package handlers

import (
	"github.com/go-chi/chi/v5"
)

// RegisterRoutes registers all ingestion routes
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/data", func(r chi.Router) {
		r.Post("/ingest", h.HandleIngest)
		r.Get("/businesses", h.HandleListBusinesses)
	})
}
