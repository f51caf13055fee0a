// Package main is the entrypoint for the Tenderflow API server.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/mlopezfr/tenderflow/internal/api"
	"github.com/mlopezfr/tenderflow/internal/api/handler"
	mw "github.com/mlopezfr/tenderflow/internal/api/middleware"
	"github.com/mlopezfr/tenderflow/internal/audit"
	"github.com/mlopezfr/tenderflow/internal/automation"
	"github.com/mlopezfr/tenderflow/internal/cache"
	"github.com/mlopezfr/tenderflow/internal/config"
	"github.com/mlopezfr/tenderflow/internal/jobs"
	"github.com/mlopezfr/tenderflow/internal/notify"
	"github.com/mlopezfr/tenderflow/internal/store"
)

const shutdownTimeout = 30 * time.Second

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if err := run(); err != nil {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	// .env is a local-development convenience; absence is fine
	_ = godotenv.Load()

	// 1. Load config — fail fast on invalid config
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	slog.Info("config loaded", "env", cfg.Server.Env,
		"max_concurrent_dispatches", cfg.Automation.MaxConcurrent)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 2. Connect to database
	pool, err := store.Connect(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer pool.Close()
	slog.Info("database connected")

	// 3. Run migrations
	if err := store.RunMigrations(cfg.Database.URL, "migrations"); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	slog.Info("database migrations applied")

	// 4. Create Redis cache
	redisCache, err := cache.NewRedisCache(cfg.Redis.URL)
	if err != nil {
		return fmt.Errorf("create redis cache: %w", err)
	}
	defer redisCache.Close()

	if err := redisCache.Ping(ctx); err != nil {
		return fmt.Errorf("ping redis: %w", err)
	}
	slog.Info("redis connected")

	// 5. Create store and job orchestration
	pgStore := store.NewPostgresStore(pool)
	registry := notify.NewRegistry()
	recorder := audit.NewRecorder(pgStore)
	runner := jobs.NewRunner(cfg.Automation.MaxConcurrent)
	client := automation.NewHTTPClient(cfg.Automation.CallTimeout)
	jobService := jobs.NewService(pgStore, redisCache, registry, recorder, runner, client, cfg.Automation)

	// 6. Build router with dependencies
	auth := mw.NewAuth(pgStore)
	rateLimit := mw.NewRateLimit(redisCache, 60)

	deps := api.Dependencies{
		Auth:      auth,
		RateLimit: rateLimit,

		HealthHandler: handler.NewHealthHandler(pgStore, redisCache),

		CreateTenderHandler: handler.NewCreateTenderHandler(pgStore),
		GetTenderHandler:    handler.NewGetTenderHandler(pgStore),
		ListTendersHandler:  handler.NewListTendersHandler(pgStore),
		DeleteTenderHandler: handler.NewDeleteTenderHandler(pgStore, recorder),

		SubmitAnalysisHandler: handler.NewSubmitAnalysisHandler(jobService),
		GetAnalysisHandler:    handler.NewGetAnalysisHandler(jobService),
		ListAnalysesHandler:   handler.NewListAnalysesHandler(jobService),
		CancelAnalysisHandler: handler.NewCancelAnalysisHandler(jobService),
		RenameAnalysisHandler: handler.NewRenameAnalysisHandler(jobService),
		ResultWebhookHandler:  handler.NewAnalysisResultWebhookHandler(jobService),
		NotificationsHandler:  handler.NewNotificationsHandler(registry),

		ListAutomationsHandler:      handler.NewListAutomationsHandler(pgStore),
		GetAutomationHandler:        handler.NewGetAutomationHandler(pgStore),
		CreateAutomationHandler:     handler.NewCreateAutomationHandler(pgStore),
		DeactivateAutomationHandler: handler.NewDeactivateAutomationHandler(pgStore),

		CreateKeyHandler: handler.NewCreateKeyHandler(pgStore),
		ListKeysHandler:  handler.NewListKeysHandler(pgStore),
		RevokeKeyHandler: handler.NewRevokeKeyHandler(pgStore),
	}

	router := api.NewRouter(deps)

	// 7. Start HTTP server
	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in background
	errCh := make(chan error, 1)
	go func() {
		slog.Info("server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	// Wait for shutdown signal or server error
	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
		slog.Info("shutdown signal received, draining connections...")
	}

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	// Let in-flight dispatches reach a terminal state, then drop the
	// WebSocket subscribers.
	slog.Info("waiting for in-flight analyses...")
	runner.Wait()
	registry.Shutdown()

	slog.Info("server stopped gracefully")
	return nil
}
