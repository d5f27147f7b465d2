package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/comercia-app/comercia/internal/auth"
	"github.com/comercia-app/comercia/internal/catalog/products"
	"github.com/comercia-app/comercia/internal/ledger"
	"github.com/comercia-app/comercia/internal/sales/customers"
	"github.com/comercia-app/comercia/internal/sales/orders"
	"github.com/comercia-app/comercia/internal/shared"
	"github.com/comercia-app/comercia/jobs"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger           *slog.Logger
	Config           *Config
	SessionManager   *shared.SessionManager
	CSRFManager      *shared.CSRFManager
	AuthHandler      *auth.Handler
	ProductsHandler  *products.Handler
	CustomersHandler *customers.Handler
	OrdersHandler    *orders.Handler
	PaymentsHandler  *ledger.Handler
	JobsHandler      *jobs.Handler
}

// NewRouter constructs the chi.Router with Comercia defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:         params.Logger,
		Config:         params.Config,
		SessionManager: params.SessionManager,
		CSRFManager:    params.CSRFManager,
	}) {
		r.Use(mw)
	}

	r.Use(chimw.Logger)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	r.Route("/auth", params.AuthHandler.MountRoutes)
	r.Route("/catalog", params.ProductsHandler.MountRoutes)
	r.Route("/sales", func(r chi.Router) {
		params.CustomersHandler.MountRoutes(r)
		params.OrdersHandler.MountRoutes(r)
	})
	r.Route("/payments", params.PaymentsHandler.MountRoutes)
	if params.JobsHandler != nil {
		r.Route("/jobs", params.JobsHandler.MountRoutes)
	}

	return r
}
