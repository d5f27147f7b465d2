package orders

import (
	"github.com/go-chi/chi/v5"
)

func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/orders", h.List)
	r.Post("/orders", h.Create)
	r.Get("/orders/{id}", h.Show)
	r.Post("/orders/{id}/confirm", h.Confirm)
	r.Post("/orders/{id}/status", h.UpdateStatus)
}
