// Package handlers provides HTTP handlers for portfolio valuation and backtests.
package handlers

import (
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"time"

	"github.com/aristath/madfolio/internal/domain"
	"github.com/aristath/madfolio/internal/modules/valuation"
	"github.com/rs/zerolog"
)

// Handler handles valuation HTTP requests
type Handler struct {
	service *valuation.Service
	log     zerolog.Logger
}

// NewHandler creates a new valuation handler
func NewHandler(service *valuation.Service, log zerolog.Logger) *Handler {
	return &Handler{
		service: service,
		log:     log.With().Str("handler", "valuation").Logger(),
	}
}

// ValueRequest is the body of POST /api/portfolio/value.
// Holdings are dollars; an allocation is accepted instead and scaled to amount.
type ValueRequest struct {
	Dataset    string             `json:"dataset"`
	Holdings   map[string]float64 `json:"holdings"`
	Allocation *domain.Allocation `json:"allocation"`
	Amount     float64            `json:"amount"`
	From       string             `json:"from"`
	To         string             `json:"to"`
}

// BacktestRequest is the body of POST /api/backtest/rebalance
type BacktestRequest struct {
	Dataset   string             `json:"dataset"`
	Frequency string             `json:"frequency"`
	Weights   map[string]float64 `json:"weights"`
	From      string             `json:"from"`
	To        string             `json:"to"`
}

// HandlePortfolioValue handles POST /api/portfolio/value
func (h *Handler) HandlePortfolioValue(w http.ResponseWriter, r *http.Request) {
	var req ValueRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.log.Error().Err(err).Msg("Failed to decode request body")
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	from, to, err := parseRange(req.From, req.To)
	if err != nil {
		h.writeError(w, err)
		return
	}

	holdings := req.Holdings
	if len(holdings) == 0 && req.Allocation != nil {
		holdings = req.Allocation.Holdings
		if len(holdings) == 0 {
			holdings = make(map[string]float64)
			for sym, weight := range req.Allocation.Weights() {
				holdings[sym] = weight * req.Amount
			}
		}
	}
	if len(holdings) == 0 {
		h.writeError(w, domain.NewDataError("holdings", "holdings or allocation required"))
		return
	}

	value, err := h.service.PortfolioValue(r.Context(), req.Dataset, holdings, from, to)
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"value":   value,
		"rounded": int64(math.Floor(value)),
	})
}

// HandleBacktest handles POST /api/backtest/rebalance
func (h *Handler) HandleBacktest(w http.ResponseWriter, r *http.Request) {
	var req BacktestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.log.Error().Err(err).Msg("Failed to decode request body")
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	freq, err := valuation.ParseFrequency(req.Frequency)
	if err != nil {
		h.writeError(w, err)
		return
	}
	from, to, err := parseRange(req.From, req.To)
	if err != nil {
		h.writeError(w, err)
		return
	}

	result, err := h.service.Backtest(r.Context(), req.Dataset, freq, req.Weights, from, to)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, result)
}

// HandleInstrumentSeries handles GET /api/instruments/{symbol}/series
func (h *Handler) HandleInstrumentSeries(w http.ResponseWriter, r *http.Request, symbol string) {
	q := r.URL.Query()
	from, to, err := parseRange(q.Get("from"), q.Get("to"))
	if err != nil {
		h.writeError(w, err)
		return
	}

	result, err := h.service.InstrumentSeries(r.Context(), q.Get("dataset"), symbol, from, to)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, result)
}

func parseRange(from, to string) (time.Time, time.Time, error) {
	var start, end time.Time
	var err error
	if from != "" {
		if start, err = time.Parse(domain.DateLayout, from); err != nil {
			return start, end, domain.NewDataError("from", "invalid date %q", from)
		}
	}
	if to != "" {
		if end, err = time.Parse(domain.DateLayout, to); err != nil {
			return start, end, domain.NewDataError("to", "invalid date %q", to)
		}
	}
	return start, end, nil
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	var de *domain.DataError
	if errors.As(err, &de) {
		h.writeJSON(w, http.StatusBadRequest, map[string]interface{}{"error": de.Error()})
		return
	}
	h.log.Error().Err(err).Msg("Valuation failed")
	h.writeJSON(w, http.StatusInternalServerError, map[string]interface{}{"error": "valuation failed"})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}
