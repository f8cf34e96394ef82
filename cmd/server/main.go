package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"chat-risk-analysis/backend/api"
	"chat-risk-analysis/backend/pkg/config"
	"chat-risk-analysis/backend/pkg/di"
	"chat-risk-analysis/backend/pkg/logger"
	"chat-risk-analysis/backend/pkg/router"
	"chat-risk-analysis/backend/pkg/secrets"
	"chat-risk-analysis/backend/shared/grpchealth"
	"chat-risk-analysis/backend/shared/observability"
)

func main() {
	// Loads .env when present
	cfg := config.New()

	// Initialize structured logger
	logConfig := logger.DefaultConfig()
	logConfig.Level = cfg.Logging.Level
	logConfig.JSON = cfg.Logging.Format != "text"

	log := logger.New(logConfig)
	logger.SetGlobal(log)

	log.Info("Starting application", "version", os.Getenv("APP_VERSION"), "env", cfg.Server.Env)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := secrets.Init(log); err != nil {
		log.LogError(err, "Failed to initialize secrets manager, using environment only")
	} else {
		secrets.ApplyToConfig(ctx, secrets.Default(), cfg)
	}

	telemetry, err := observability.Setup(observability.Options{
		ServiceName:    "chat-risk-analysis",
		MetricsEnabled: cfg.Observability.MetricsEnabled,
		TracingEnabled: cfg.Observability.TracingEnabled,
	})
	if err != nil {
		log.LogError(err, "Failed to initialize telemetry")
		os.Exit(1)
	}

	// Initialize database
	db, err := config.OpenDB(cfg)
	if err != nil {
		log.LogError(err, "Failed to initialize database")
		os.Exit(1)
	}

	container, err := di.New(ctx, cfg, db, log)
	if err != nil {
		log.LogError(err, "Failed to initialize dependency container")
		os.Exit(1)
	}

	// Auto-migrate the schema
	if err := container.Store.Migrate(); err != nil {
		log.LogError(err, "Failed to migrate database")
		os.Exit(1)
	}

	deps := router.Dependencies{
		Ingest:      container.IngestService,
		Reader:      container.Store,
		Health:      container.Health,
		Metrics:     telemetry.MetricsHandler(),
		OpenAPISpec: api.OpenAPISpec,
	}
	if container.DeadLetterList != nil {
		deps.DeadLetters = container.DeadLetterList
	}
	r := router.New(cfg, log, deps)
	r.SetupRoutes()

	var grpcServer *grpchealth.Server
	if cfg.Server.GRPCPort != "" {
		grpcServer, err = grpchealth.New(cfg.Server.GRPCPort, log)
		if err != nil {
			log.LogError(err, "Failed to start gRPC health server")
			os.Exit(1)
		}
		container.Health.OnUpdate(grpcServer.SetServing)
		go func() {
			if err := grpcServer.Serve(); err != nil {
				log.LogError(err, "gRPC health server stopped")
			}
		}()
	}

	container.Health.Start(ctx)

	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           r.Engine,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       cfg.Server.Timeout,
		WriteTimeout:      cfg.Server.Timeout,
	}

	go func() {
		log.Info("Server starting", "port", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.LogError(err, "Server failed to start")
			stop()
		}
	}()

	<-ctx.Done()
	log.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// Stop taking uploads first, then let accepted analyses finish.
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.LogError(err, "Server forced to shutdown")
	}
	if grpcServer != nil {
		grpcServer.Stop()
	}
	r.Stop()

	if err := container.Close(); err != nil {
		log.LogError(err, "Background analyses were cut short")
	}

	// Draining the pool may have used up shutdownCtx.
	flushCtx, cancelFlush := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelFlush()
	if err := telemetry.Shutdown(flushCtx); err != nil {
		log.LogError(err, "Failed to flush telemetry")
	}

	if sqlDB, err := db.DB(); err == nil {
		_ = sqlDB.Close()
	}

	log.Info("Server exited gracefully")
}
