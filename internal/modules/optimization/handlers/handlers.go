// Package handlers provides HTTP handlers for portfolio optimization.
package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/aristath/madfolio/internal/domain"
	"github.com/aristath/madfolio/internal/modules/optimization"
	"github.com/rs/zerolog"
)

// Handler handles optimization HTTP requests
type Handler struct {
	service *optimization.Service
	log     zerolog.Logger
}

// NewHandler creates a new optimization handler
func NewHandler(service *optimization.Service, log zerolog.Logger) *Handler {
	return &Handler{
		service: service,
		log:     log.With().Str("handler", "optimization").Logger(),
	}
}

// selectionRequest is the part of every request that picks the price data.
type selectionRequest struct {
	Dataset string   `json:"dataset"`
	Symbols []string `json:"symbols"`
	From    string   `json:"from"`
	To      string   `json:"to"`
}

func (s selectionRequest) toSelection() (optimization.Selection, error) {
	from, err := parseDate("from", s.From)
	if err != nil {
		return optimization.Selection{}, err
	}
	to, err := parseDate("to", s.To)
	if err != nil {
		return optimization.Selection{}, err
	}
	return optimization.Selection{Dataset: s.Dataset, Symbols: s.Symbols, From: from, To: to}, nil
}

// PortfolioRequest is the body of POST /api/portfolio
type PortfolioRequest struct {
	selectionRequest
	Unused             []string `json:"unused"`
	Amount             *float64 `json:"amount"`
	RiskPercent        *float64 `json:"risk"`
	MaxPositionPercent *float64 `json:"max_position"`
}

// RebalanceRequest is the body of POST /api/rebalance
type RebalanceRequest struct {
	selectionRequest
	Old                *domain.Allocation `json:"old"`
	Amount             float64            `json:"amount"`
	RiskPercent        *float64           `json:"risk"`
	ExpectedReturn     float64            `json:"expected_return"`
	MaxPositionPercent *float64           `json:"max_position"`
}

// HandlePortfolio handles POST /api/portfolio
func (h *Handler) HandlePortfolio(w http.ResponseWriter, r *http.Request) {
	var req PortfolioRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.log.Error().Err(err).Msg("Failed to decode request body")
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	sel, err := req.toSelection()
	if err != nil {
		h.writeError(w, err)
		return
	}

	params := optimization.DefaultAllocationParams()
	params.Unused = req.Unused
	setIfPresent(&params.Amount, req.Amount)
	setIfPresent(&params.RiskPercent, req.RiskPercent)
	setIfPresent(&params.MaxPositionPercent, req.MaxPositionPercent)

	alloc, err := h.service.Portfolio(r.Context(), sel, params)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeAllocation(w, alloc)
}

// HandleFrontier handles GET /api/frontier
func (h *Handler) HandleFrontier(w http.ResponseWriter, r *http.Request) {
	sel, allowShort, err := frontierQuery(r)
	if err != nil {
		h.writeError(w, err)
		return
	}

	points, err := h.service.Frontier(r.Context(), sel, allowShort)
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"frontier": points,
		"count":    len(points),
	})
}

// HandleRebalance handles POST /api/rebalance
func (h *Handler) HandleRebalance(w http.ResponseWriter, r *http.Request) {
	var req RebalanceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.log.Error().Err(err).Msg("Failed to decode request body")
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	sel, err := req.toSelection()
	if err != nil {
		h.writeError(w, err)
		return
	}

	params := optimization.DefaultRebalanceParams(req.Amount)
	params.ExpectedReturn = req.ExpectedReturn
	setIfPresent(&params.RiskPercent, req.RiskPercent)
	setIfPresent(&params.MaxPositionPercent, req.MaxPositionPercent)

	alloc, err := h.service.Rebalance(r.Context(), sel, req.Old, params)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeAllocation(w, alloc)
}

func frontierQuery(r *http.Request) (optimization.Selection, bool, error) {
	q := r.URL.Query()
	req := selectionRequest{
		Dataset: q.Get("dataset"),
		From:    q.Get("from"),
		To:      q.Get("to"),
	}
	if symbols := q.Get("symbols"); symbols != "" {
		for _, s := range strings.Split(symbols, ",") {
			if s = strings.TrimSpace(s); s != "" {
				req.Symbols = append(req.Symbols, s)
			}
		}
	}
	sel, err := req.toSelection()
	allowShort := q.Get("short") == "true" || q.Get("short") == "1"
	return sel, allowShort, err
}

func parseDate(field, value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(domain.DateLayout, value)
	if err != nil {
		return time.Time{}, domain.NewDataError(field, "invalid date %q", value)
	}
	return t, nil
}

func setIfPresent(dst *float64, v *float64) {
	if v != nil {
		*dst = *v
	}
}

// writeAllocation answers 200 for optimal allocations and 422 with the status otherwise.
func (h *Handler) writeAllocation(w http.ResponseWriter, alloc *domain.Allocation) {
	if !alloc.Optimal() {
		h.writeJSON(w, http.StatusUnprocessableEntity, map[string]interface{}{
			"status": alloc.Status,
		})
		return
	}
	h.writeJSON(w, http.StatusOK, alloc)
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	var de *domain.DataError
	if errors.As(err, &de) {
		h.writeJSON(w, http.StatusBadRequest, map[string]interface{}{"error": de.Error()})
		return
	}
	h.log.Error().Err(err).Msg("Optimization failed")
	h.writeJSON(w, http.StatusInternalServerError, map[string]interface{}{"error": "optimization failed"})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}
