// Package handlers provides HTTP handlers for drift detection operations.
package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/argusml/argus/internal/modules/drift"
)

// Handler handles drift HTTP requests
type Handler struct {
	repo     *drift.Repository
	detector *drift.Detector
	log      zerolog.Logger
}

// NewHandler creates a new drift handler
func NewHandler(repo *drift.Repository, detector *drift.Detector, log zerolog.Logger) *Handler {
	return &Handler{
		repo:     repo,
		detector: detector,
		log:      log.With().Str("handler", "drift").Logger(),
	}
}

// HandleGetLatestReport handles GET /api/drift/reports/latest?ticker=X
func (h *Handler) HandleGetLatestReport(w http.ResponseWriter, r *http.Request) {
	ticker := r.URL.Query().Get("ticker")
	if ticker == "" {
		http.Error(w, "ticker query parameter is required", http.StatusBadRequest)
		return
	}

	report, err := h.repo.GetLatestReport(r.Context(), ticker)
	if err != nil {
		h.log.Error().Err(err).Str("ticker", ticker).Msg("Failed to get latest drift report")
		http.Error(w, "Failed to get drift report", http.StatusInternalServerError)
		return
	}
	if report == nil {
		http.Error(w, "No drift reports yet", http.StatusNotFound)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{"data": report})
}

// HandleGetReports handles GET /api/drift/reports?ticker=X&days=N
func (h *Handler) HandleGetReports(w http.ResponseWriter, r *http.Request) {
	ticker := r.URL.Query().Get("ticker")
	if ticker == "" {
		http.Error(w, "ticker query parameter is required", http.StatusBadRequest)
		return
	}

	days := 30
	if raw := r.URL.Query().Get("days"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			http.Error(w, "days must be a positive integer", http.StatusBadRequest)
			return
		}
		days = parsed
	}

	reports, err := h.repo.GetReportsSince(r.Context(), ticker, time.Now().AddDate(0, 0, -days))
	if err != nil {
		h.log.Error().Err(err).Str("ticker", ticker).Msg("Failed to get drift reports")
		http.Error(w, "Failed to get drift reports", http.StatusInternalServerError)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"data": reports,
		"metadata": map[string]interface{}{
			"count":  len(reports),
			"ticker": ticker,
			"days":   days,
		},
	})
}

// HandleGetSummary handles GET /api/drift/summary?days=N
func (h *Handler) HandleGetSummary(w http.ResponseWriter, r *http.Request) {
	days := 7
	if raw := r.URL.Query().Get("days"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			http.Error(w, "days must be a positive integer", http.StatusBadRequest)
			return
		}
		days = parsed
	}

	summary, err := h.detector.GetSummary(r.Context(), days)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to build drift summary")
		http.Error(w, "Failed to build drift summary", http.StatusInternalServerError)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{"data": summary})
}

// HandleGetProfile handles GET /api/drift/profile?ticker=X
func (h *Handler) HandleGetProfile(w http.ResponseWriter, r *http.Request) {
	ticker := r.URL.Query().Get("ticker")
	if ticker == "" {
		http.Error(w, "ticker query parameter is required", http.StatusBadRequest)
		return
	}

	profile, err := h.repo.GetProfile(r.Context(), ticker)
	if errors.Is(err, drift.ErrNoProfile) {
		http.Error(w, "No reference profile for ticker", http.StatusNotFound)
		return
	}
	if err != nil {
		h.log.Error().Err(err).Str("ticker", ticker).Msg("Failed to get reference profile")
		http.Error(w, "Failed to get reference profile", http.StatusInternalServerError)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{"data": profile})
}

type setProfileRequest struct {
	Ticker  string         `json:"ticker"`
	Samples []drift.Sample `json:"samples"`
}

// HandleSetProfile handles POST /api/drift/profile
func (h *Handler) HandleSetProfile(w http.ResponseWriter, r *http.Request) {
	var req setProfileRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.Ticker == "" {
		http.Error(w, "ticker is required", http.StatusBadRequest)
		return
	}

	profile, err := h.detector.SetReferenceProfile(r.Context(), req.Ticker, req.Samples)
	if errors.Is(err, drift.ErrInsufficientData) {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err != nil {
		h.log.Error().Err(err).Str("ticker", req.Ticker).Msg("Failed to set reference profile")
		http.Error(w, "Failed to set reference profile", http.StatusInternalServerError)
		return
	}

	h.writeJSON(w, http.StatusCreated, map[string]interface{}{"data": profile})
}

// writeJSON writes a JSON response with the given status code
func (h *Handler) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}
