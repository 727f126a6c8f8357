package handlers

import (
	"github.com/go-chi/chi/v5"
)

// RegisterRoutes registers all risk routes
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/risk", func(r chi.Router) {
		r.Post("/var", h.HandleCalculateVaR)
		r.Get("/assets", h.HandleListAssets)

		r.Get("/returns/{asset}", h.HandleGetReturns)
		r.Post("/returns/{asset}", h.HandleAppendReturns)
	})
}
