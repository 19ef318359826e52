package handlers

import (
	"github.com/go-chi/chi/v5"
)

// RegisterRoutes registers all historical data routes
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/historical", func(r chi.Router) {
		// Price endpoints
		r.Route("/prices", func(r chi.Router) {
			r.Get("/daily/{ticker}", h.HandleGetDailyPrices)
			r.Get("/latest/{ticker}", h.HandleGetLatestPrice)
			r.Post("/import", h.HandleImportPrices)
		})

		// Returns endpoints
		r.Route("/returns", func(r chi.Router) {
			r.Get("/correlation-matrix", h.HandleGetCorrelationMatrix)
		})
	})
}
