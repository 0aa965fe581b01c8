package handlers

import (
	"github.com/go-chi/chi/v5"
)

// RegisterRoutes registers all drift detection routes
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/drift", func(r chi.Router) {
		r.Get("/reports", h.HandleGetReports)
		r.Get("/reports/latest", h.HandleGetLatestReport)
		r.Get("/summary", h.HandleGetSummary)
		r.Get("/profile", h.HandleGetProfile)
		r.Post("/profile", h.HandleSetProfile)
	})
}
