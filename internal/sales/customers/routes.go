package customers

import (
	"github.com/go-chi/chi/v5"
)

func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/customers", h.List)
	r.Get("/customers/{id}", h.Show)
	r.Post("/customers", h.Create)
	r.Post("/customers/{id}", h.Update)
}
