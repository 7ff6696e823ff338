package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"
	"github.com/joho/godotenv"

	"github.com/shareport/shareport/pkg/shareport/api"
	"github.com/shareport/shareport/pkg/shareport/archive"
	"github.com/shareport/shareport/pkg/shareport/config"
	"github.com/shareport/shareport/pkg/shareport/lifecycle"
	"github.com/shareport/shareport/pkg/shareport/ratelimit"
	"github.com/shareport/shareport/pkg/shareport/usage"
)

func main() {
	// .env is optional; real deployments set the environment directly
	_ = godotenv.Load()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	cfg, err := config.Load(config.WithEnv())
	if err != nil {
		logger.Error("failed to load configuration", "err", err)
		os.Exit(1)
	}

	if cfg.DatabaseType == "postgres" {
		if err := config.PingPostgres(cfg.DatabaseURL); err != nil {
			logger.Error("database not reachable", "err", err)
			os.Exit(1)
		}
	}

	svc, err := cfg.BuildService(logger)
	if err != nil {
		logger.Error("failed to build service", "err", err)
		os.Exit(1)
	}

	builder := archive.NewBuilder(svc.Blob(), archive.WithLogger(logger))

	var limiter *ratelimit.Limiter
	if cfg.DownloadsPerMinute > 0 {
		limiter = ratelimit.New(cfg.DownloadsPerMinute)
	}

	tracker := usage.New()

	manager := lifecycle.NewManager(svc.Repository(), svc.Blob(),
		lifecycle.WithLogger(logger),
		lifecycle.WithOrphanGrace(cfg.OrphanGrace))

	handler := api.NewHandler(api.HandlerConfig{
		Service:     svc,
		Archive:     builder,
		Lifecycle:   manager,
		Limiter:     limiter,
		Usage:       tracker,
		AdminSecret: []byte(cfg.AdminSecret),
		Logger:      logger,
	})

	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Logger)
	r.Use(chimiddleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		render.PlainText(w, r, http.StatusText(http.StatusOK))
	})
	r.Mount("/api/v1", handler.Routes())

	httpServer := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.Port),
		Handler: r,
	}

	sweepCtx, stopSweeps := context.WithCancel(context.Background())
	defer stopSweeps()
	go manager.Run(sweepCtx, cfg.SweepInterval)

	go func() {
		logger.Info("server starting",
			"port", cfg.Port,
			"environment", cfg.Environment,
			"storage", cfg.StorageBackend,
			"database", cfg.DatabaseType)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "err", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("shutting down")

	stopSweeps()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Error("forced shutdown", "err", err)
		os.Exit(1)
	}

	logger.Info("server stopped")
}
