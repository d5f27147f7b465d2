package ledger

import (
	"github.com/go-chi/chi/v5"
)

func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/", h.Apply)
	r.Get("/", h.List)
}
