package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// RegisterRoutes registers all prediction routes
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/predictions", func(r chi.Router) {
		r.Post("/", h.HandleRegister)
		r.Get("/", h.HandleGetRecent)
		r.Post("/validate", h.HandleValidate)
		r.Get("/metrics", h.HandleGetMetrics)
		r.Get("/degradation", h.HandleGetDegradation)
		r.Get("/{id}", func(w http.ResponseWriter, r *http.Request) {
			h.HandleGetPrediction(w, r, chi.URLParam(r, "id"))
		})
	})
}
