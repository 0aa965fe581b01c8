// Package handlers provides HTTP handlers for prediction operations.
package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/argusml/argus/internal/modules/predictions"
)

// Handler handles prediction HTTP requests
type Handler struct {
	repo    *predictions.Repository
	monitor *predictions.Monitor
	log     zerolog.Logger
}

// NewHandler creates a new predictions handler
func NewHandler(repo *predictions.Repository, monitor *predictions.Monitor, log zerolog.Logger) *Handler {
	return &Handler{
		repo:    repo,
		monitor: monitor,
		log:     log.With().Str("handler", "predictions").Logger(),
	}
}

type registerRequest struct {
	Ticker         string  `json:"ticker"`
	TargetDate     string  `json:"target_date"`
	PredictedValue float64 `json:"predicted_value"`
}

// HandleRegister handles POST /api/predictions
func (h *Handler) HandleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.Ticker == "" {
		http.Error(w, "ticker is required", http.StatusBadRequest)
		return
	}
	if req.PredictedValue <= 0 {
		http.Error(w, "predicted_value must be positive", http.StatusBadRequest)
		return
	}

	p, err := h.repo.Register(r.Context(), req.Ticker, time.Now(), req.TargetDate, req.PredictedValue)
	if errors.Is(err, predictions.ErrInvalidTargetDate) {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to register prediction")
		http.Error(w, "Failed to register prediction", http.StatusInternalServerError)
		return
	}

	h.writeJSON(w, http.StatusCreated, map[string]interface{}{
		"data": p,
		"metadata": map[string]interface{}{
			"timestamp": time.Now().Format(time.RFC3339),
		},
	})
}

// HandleGetPrediction handles GET /api/predictions/{id}
func (h *Handler) HandleGetPrediction(w http.ResponseWriter, r *http.Request, id string) {
	p, err := h.repo.GetByID(r.Context(), id)
	if errors.Is(err, predictions.ErrNotFound) {
		http.Error(w, "Prediction not found", http.StatusNotFound)
		return
	}
	if err != nil {
		h.log.Error().Err(err).Str("id", id).Msg("Failed to get prediction")
		http.Error(w, "Failed to get prediction", http.StatusInternalServerError)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{"data": p})
}

// HandleGetRecent handles GET /api/predictions?ticker=X&limit=N
func (h *Handler) HandleGetRecent(w http.ResponseWriter, r *http.Request) {
	ticker := r.URL.Query().Get("ticker")
	if ticker == "" {
		http.Error(w, "ticker query parameter is required", http.StatusBadRequest)
		return
	}

	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			http.Error(w, "limit must be a positive integer", http.StatusBadRequest)
			return
		}
		limit = parsed
	}

	rows, err := h.repo.GetRecent(r.Context(), ticker, limit)
	if err != nil {
		h.log.Error().Err(err).Str("ticker", ticker).Msg("Failed to get recent predictions")
		http.Error(w, "Failed to get predictions", http.StatusInternalServerError)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"data": rows,
		"metadata": map[string]interface{}{
			"count":  len(rows),
			"ticker": ticker,
		},
	})
}

// HandleValidate handles POST /api/predictions/validate?ticker=X
func (h *Handler) HandleValidate(w http.ResponseWriter, r *http.Request) {
	ticker := r.URL.Query().Get("ticker")
	if ticker == "" {
		http.Error(w, "ticker query parameter is required", http.StatusBadRequest)
		return
	}

	daysBack := 0
	if raw := r.URL.Query().Get("days_back"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			http.Error(w, "days_back must be a non-negative integer", http.StatusBadRequest)
			return
		}
		daysBack = parsed
	}

	validated, pending, err := h.monitor.ValidatePending(r.Context(), ticker, daysBack)
	if err != nil {
		h.log.Error().Err(err).Str("ticker", ticker).Msg("Validation run failed")
		http.Error(w, "Validation run failed", http.StatusInternalServerError)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"data": map[string]interface{}{
			"validated": validated,
			"pending":   pending,
		},
		"metadata": map[string]interface{}{
			"ticker":    ticker,
			"timestamp": time.Now().Format(time.RFC3339),
		},
	})
}

// HandleGetMetrics handles GET /api/predictions/metrics?ticker=X
func (h *Handler) HandleGetMetrics(w http.ResponseWriter, r *http.Request) {
	ticker := r.URL.Query().Get("ticker")
	if ticker == "" {
		http.Error(w, "ticker query parameter is required", http.StatusBadRequest)
		return
	}

	latest, err := h.repo.GetLatestMetrics(r.Context(), ticker)
	if err != nil {
		h.log.Error().Err(err).Str("ticker", ticker).Msg("Failed to get metrics")
		http.Error(w, "Failed to get metrics", http.StatusInternalServerError)
		return
	}
	if latest == nil {
		http.Error(w, "No metrics computed yet", http.StatusNotFound)
		return
	}

	trend, err := h.monitor.Trend(r.Context(), ticker, 30)
	if err != nil {
		h.log.Error().Err(err).Str("ticker", ticker).Msg("Failed to compute trend")
		http.Error(w, "Failed to compute trend", http.StatusInternalServerError)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"data": map[string]interface{}{
			"metrics": latest,
			"trend":   trend,
		},
	})
}

// HandleGetDegradation handles GET /api/predictions/degradation?ticker=X&threshold=5.0
func (h *Handler) HandleGetDegradation(w http.ResponseWriter, r *http.Request) {
	ticker := r.URL.Query().Get("ticker")
	if ticker == "" {
		http.Error(w, "ticker query parameter is required", http.StatusBadRequest)
		return
	}

	threshold := 5.0
	if raw := r.URL.Query().Get("threshold"); raw != "" {
		parsed, err := strconv.ParseFloat(raw, 64)
		if err != nil || parsed <= 0 {
			http.Error(w, "threshold must be a positive number", http.StatusBadRequest)
			return
		}
		threshold = parsed
	}

	degradation, err := h.monitor.DetectDegradation(r.Context(), ticker, 30, threshold)
	if err != nil {
		if errors.Is(err, predictions.ErrInsufficientData) {
			http.Error(w, "No metrics computed yet", http.StatusNotFound)
			return
		}
		h.log.Error().Err(err).Str("ticker", ticker).Msg("Failed to check degradation")
		http.Error(w, "Failed to check degradation", http.StatusInternalServerError)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{"data": degradation})
}

// writeJSON writes a JSON response with the given status code
func (h *Handler) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}
