package handlers

import (
	"github.com/go-chi/chi/v5"
)

// RegisterRoutes registers all optimization routes
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/portfolio", h.HandlePortfolio)
	r.Post("/rebalance", h.HandleRebalance)

	r.Route("/frontier", func(r chi.Router) {
		r.Get("/", h.HandleFrontier)
		r.Get("/stream", h.HandleFrontierStream)
	})
}
