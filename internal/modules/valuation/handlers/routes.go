package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// RegisterRoutes registers all valuation routes
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/portfolio/value", h.HandlePortfolioValue)
	r.Post("/backtest/rebalance", h.HandleBacktest)
	r.Get("/instruments/{symbol}/series", func(w http.ResponseWriter, r *http.Request) {
		symbol := chi.URLParam(r, "symbol")
		h.HandleInstrumentSeries(w, r, symbol)
	})
}
