package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// NewRouter mounts the appointment API under /api/v1. Every route requires a
// gateway-forwarded identity.
func NewRouter(h *AppointmentHandler) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Route("/api/v1/appointments", func(r chi.Router) {
		r.Use(WithIdentity)
		r.Post("/", h.Create)
		r.Get("/", h.List)

		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", h.Get)
			r.Patch("/", h.Update)
			r.Put("/", h.Update)
			r.Post("/cancel", h.Cancel)
			r.Get("/ics", h.ICS)
		})
	})
	return r
}
