package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// RegisterRoutes registers all dataset routes
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/datasets", func(r chi.Router) {
		r.Post("/", h.HandleSubmit)
		r.Get("/{id}", func(w http.ResponseWriter, r *http.Request) {
			h.HandleInfo(w, r, chi.URLParam(r, "id"))
		})
	})
}
