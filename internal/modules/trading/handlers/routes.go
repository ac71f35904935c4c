package handlers

import (
	"github.com/go-chi/chi/v5"
)

// RegisterRoutes registers all trading routes
func (h *TradingHandlers) RegisterRoutes(r chi.Router) {
	r.Get("/trades", h.HandleGetTrades)

	r.Route("/orders", func(r chi.Router) {
		r.Get("/pending", h.HandleGetPending)
		r.Post("/flush", h.HandleFlushPending)
	})
}
