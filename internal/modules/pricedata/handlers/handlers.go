// Package handlers provides HTTP handlers for price datasets.
package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/aristath/madfolio/internal/domain"
	"github.com/aristath/madfolio/internal/modules/pricedata"
	"github.com/rs/zerolog"
)

// maxSubmissionBytes bounds a submitted dataset.
const maxSubmissionBytes = 32 << 20

// Handler handles dataset HTTP requests
type Handler struct {
	store *pricedata.Store
	log   zerolog.Logger
}

// NewHandler creates a new dataset handler
func NewHandler(store *pricedata.Store, log zerolog.Logger) *Handler {
	return &Handler{
		store: store,
		log:   log.With().Str("handler", "pricedata").Logger(),
	}
}

// HandleSubmit handles POST /api/datasets.
// The dataset is the JSON body, or the "data" field of a form post.
func (h *Handler) HandleSubmit(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxSubmissionBytes)

	var data []byte
	var err error
	if strings.HasPrefix(r.Header.Get("Content-Type"), "application/x-www-form-urlencoded") ||
		strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		data = []byte(r.FormValue("data"))
	} else {
		data, err = io.ReadAll(r.Body)
	}
	if err != nil || len(data) == 0 {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	info, err := h.store.Submit(r.Context(), data)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, info)
}

// HandleInfo handles GET /api/datasets/{id}
func (h *Handler) HandleInfo(w http.ResponseWriter, r *http.Request, id string) {
	info, err := h.store.Info(r.Context(), id)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, info)
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	var de *domain.DataError
	if errors.As(err, &de) {
		h.writeJSON(w, http.StatusBadRequest, map[string]interface{}{"error": de.Error()})
		return
	}
	h.log.Error().Err(err).Msg("Dataset request failed")
	h.writeJSON(w, http.StatusInternalServerError, map[string]interface{}{"error": "dataset request failed"})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}
