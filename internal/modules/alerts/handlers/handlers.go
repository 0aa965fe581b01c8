// Package handlers provides HTTP handlers for alert operations.
package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/rs/zerolog"

	"github.com/argusml/argus/internal/modules/alerts"
)

// Handler handles alert HTTP requests
type Handler struct {
	evaluator *alerts.Evaluator
	log       zerolog.Logger
}

// NewHandler creates a new alerts handler
func NewHandler(evaluator *alerts.Evaluator, log zerolog.Logger) *Handler {
	return &Handler{
		evaluator: evaluator,
		log:       log.With().Str("handler", "alerts").Logger(),
	}
}

// HandleGetRecent handles GET /api/alerts?hours=N
func (h *Handler) HandleGetRecent(w http.ResponseWriter, r *http.Request) {
	hours, ok := h.hoursParam(w, r, 24)
	if !ok {
		return
	}

	events, err := h.evaluator.GetRecent(r.Context(), hours)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to get recent alerts")
		http.Error(w, "Failed to get alerts", http.StatusInternalServerError)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"data": events,
		"metadata": map[string]interface{}{
			"count": len(events),
			"hours": hours,
		},
	})
}

// HandleGetSummary handles GET /api/alerts/summary?hours=N
func (h *Handler) HandleGetSummary(w http.ResponseWriter, r *http.Request) {
	hours, ok := h.hoursParam(w, r, 24)
	if !ok {
		return
	}

	summary, err := h.evaluator.GetSummary(r.Context(), hours)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to build alert summary")
		http.Error(w, "Failed to build alert summary", http.StatusInternalServerError)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{"data": summary})
}

func (h *Handler) hoursParam(w http.ResponseWriter, r *http.Request, fallback int) (int, bool) {
	raw := r.URL.Query().Get("hours")
	if raw == "" {
		return fallback, true
	}
	parsed, err := strconv.Atoi(raw)
	if err != nil || parsed < 1 {
		http.Error(w, "hours must be a positive integer", http.StatusBadRequest)
		return 0, false
	}
	return parsed, true
}

// writeJSON writes a JSON response with the given status code
func (h *Handler) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}
