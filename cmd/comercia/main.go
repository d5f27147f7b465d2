package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/comercia-app/comercia/internal/app"
	"github.com/comercia-app/comercia/internal/auth"
	"github.com/comercia-app/comercia/internal/catalog/products"
	"github.com/comercia-app/comercia/internal/ledger"
	"github.com/comercia-app/comercia/internal/platform/cache"
	"github.com/comercia-app/comercia/internal/platform/db"
	"github.com/comercia-app/comercia/internal/sales/customers"
	"github.com/comercia-app/comercia/internal/sales/orders"
	"github.com/comercia-app/comercia/internal/shared"
	"github.com/comercia-app/comercia/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	sessionManager := shared.NewSessionManager(redisClient, "comercia_session", cfg.SessionSecret, cfg.SessionTTL, cfg.IsProduction())
	csrfManager := shared.NewCSRFManager(cfg.CSRFSecret)
	auditLogger := shared.NewAuditLogger(pool)

	authRepo := auth.NewRepository(pool)
	authService := auth.NewService(authRepo)
	authHandler := auth.NewHandler(logger, authService, sessionManager, csrfManager)

	productRepo := products.NewRepository(pool)
	productService := products.NewService(productRepo)
	productHandler := products.NewHandler(logger, productService)

	customerRepo := customers.NewRepository(pool)
	customerService := customers.NewService(customerRepo)
	customerHandler := customers.NewHandler(logger, customerService)

	orderRepo := orders.NewRepository(pool)
	orderService := orders.NewService(orderRepo, productRepo, customerRepo, auditLogger, productRepo, logger)
	orderHandler := orders.NewHandler(logger, orderService)

	ledgerRepo := ledger.NewRepository(pool)
	ledgerService := ledger.NewService(ledgerRepo, auditLogger, logger)
	paymentsHandler := ledger.NewHandler(logger, ledgerService)

	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()
	jobsHandler := jobs.NewHandler(inspector, logger)

	router := app.NewRouter(app.RouterParams{
		Logger:           logger,
		Config:           cfg,
		SessionManager:   sessionManager,
		CSRFManager:      csrfManager,
		AuthHandler:      authHandler,
		ProductsHandler:  productHandler,
		CustomersHandler: customerHandler,
		OrdersHandler:    orderHandler,
		PaymentsHandler:  paymentsHandler,
		JobsHandler:      jobsHandler,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
}
