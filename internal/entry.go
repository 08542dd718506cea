// Package internal provides the main application initialization and runtime logic.
package internal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	"github.com/veslund/canon/internal/api"
	"github.com/veslund/canon/internal/category"
	"github.com/veslund/canon/internal/pageservice"
	"github.com/veslund/canon/internal/sse"
	"github.com/veslund/canon/internal/storage"
	"github.com/veslund/canon/internal/store"
	canonsync "github.com/veslund/canon/internal/sync"
)

// Run starts the application with the given options.
func Run(ctx context.Context, opts ...Option) error {
	app := &application{}

	for _, opt := range opts {
		opt(app)
	}

	if app.config == nil {
		return fmt.Errorf("config is required")
	}

	cfg := app.config

	// Initialize structured JSON logger.
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.App.LogLevel,
	}))
	slog.SetDefault(logger)

	logger.Info("Configuration loaded",
		slog.String("http_address", cfg.App.HTTP.Address()),
		slog.String("canon_path", cfg.Canon.Path),
		slog.String("sqlite_path", cfg.SQLite.Path),
		slog.String("log_level", cfg.App.LogLevel.String()))

	// Ensure the canon root and its category directories exist.
	if err := os.MkdirAll(cfg.Canon.Path, 0o755); err != nil {
		return fmt.Errorf("create canon dir: %w", err)
	}
	for _, sch := range category.All() {
		if err := os.MkdirAll(filepath.Join(cfg.Canon.Path, sch.Dir), 0o755); err != nil {
			return fmt.Errorf("create %s dir: %w", sch.Dir, err)
		}
	}

	// Initialize page storage.
	files, err := storage.NewFS(cfg.Canon.Path)
	if err != nil {
		return fmt.Errorf("init storage: %w", err)
	}

	// Initialize SQLite datastore.
	st, err := store.Open(cfg.SQLite.Path)
	if err != nil {
		return fmt.Errorf("init store: %w", err)
	}
	defer st.Close()

	engine := canonsync.New(st, files, logger, canonsync.Options{
		Workers: cfg.Sync.Workers,
		Actor:   cfg.Sync.Actor,
	})

	// Run initial full sync so the datastore and pages agree before serving.
	if batch, err := engine.Full(ctx, nil); err != nil {
		logger.Warn("initial sync failed", slog.String("error", err.Error()))
	} else if batch.Rejected() {
		logger.Warn("initial sync rejected pages",
			slog.Int("rejected", batch.Count(canonsync.OutcomeRejected)))
	}

	// SSE broker.
	broker := sse.NewBroker(2 * time.Second)
	defer broker.Close()

	// Build page service and API router.
	svc := pageservice.NewService(files, st, engine)
	apiRouter := api.NewRouter(svc, engine, cfg.Auth.AuthEnabled(), cfg.Auth.Token, broker, cfg.Canon.Path)

	// Build chi router.
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	// Health check endpoints (unauthenticated).
	r.Get("/health/live", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Get("/health/ready", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	// Mount API routes under /api.
	r.Mount("/api", apiRouter)

	httpServer := &http.Server{
		Addr:    cfg.App.HTTP.Address(),
		Handler: r,
	}

	logger.Info("Server starting...", slog.String("http_address", cfg.App.HTTP.Address()))

	g, gCtx := errgroup.WithContext(ctx)

	// Start page watcher with SSE callback.
	g.Go(func() error {
		err := engine.Watch(gCtx, cfg.Canon.Path, func(kind, path string) {
			broker.PublishPageEvent(kind, path)
		})
		if err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("watcher error: %w", err)
		}
		return nil
	})

	// Start HTTP server.
	g.Go(func() error {
		logger.Info("Starting HTTP server", slog.String("address", cfg.App.HTTP.Address()))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	})

	// Handle shutdown signals.
	g.Go(func() error {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

		select {
		case sig := <-quit:
			logger.Info("Received shutdown signal", slog.String("signal", sig.String()))
		case <-gCtx.Done():
			logger.Info("Context cancelled, initiating shutdown")
		}

		logger.Info("Shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown error", slog.String("error", err.Error()))
		}

		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Error("Application error", slog.String("error", err.Error()))
		return err
	}

	logger.Info("Server stopped successfully")
	return nil
}
