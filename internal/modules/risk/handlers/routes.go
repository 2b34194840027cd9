package handlers

import (
	"github.com/go-chi/chi/v5"
)

// RegisterRoutes registers training and scoring routes
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/train", h.HandleTrain)

	r.Route("/score", func(r chi.Router) {
		r.Post("/", h.HandleScore)
		r.Post("/batch", h.HandleScoreBatch)
	})

	r.Get("/models/latest", h.HandleLatestModel)
}
