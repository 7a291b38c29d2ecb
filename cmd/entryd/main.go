// cmd/entryd/main.go
// Package main implements the entry point for the entry service.
// It initializes all components and starts the HTTP server.
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

	"github.com/tripdocs/tripdocs-entry-go/internal/config"
	"github.com/tripdocs/tripdocs-entry-go/internal/entry"
	"github.com/tripdocs/tripdocs-entry-go/internal/event"
	"github.com/tripdocs/tripdocs-entry-go/internal/jwks"
	"github.com/tripdocs/tripdocs-entry-go/internal/media"
	"github.com/tripdocs/tripdocs-entry-go/internal/schema"
	"github.com/tripdocs/tripdocs-entry-go/internal/server"
	"github.com/tripdocs/tripdocs-entry-go/internal/storage"
	"github.com/tripdocs/tripdocs-entry-go/internal/submission"
	"github.com/tripdocs/tripdocs-entry-go/internal/telemetry"
)

// main initializes all components, starts the HTTP server and the expiry
// sweep, and handles graceful shutdown.
func main() {
	// Load configuration from environment variables
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config load failed: %v\n", err)
		os.Exit(1)
	}

	// Configure structured logging for the application
	logLevel := slog.LevelInfo
	if cfg.Env == "dev" {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)

	// Initialize OpenTelemetry
	_, err = telemetry.InitTracer("entry-service")
	if err != nil {
		logger.Error("failed to initialize OpenTelemetry tracer", "error", err)
		os.Exit(1)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		telemetry.ShutdownTracer(ctx)
	}()

	// Initialize storage backend (PostgreSQL or in-memory)
	var backend storage.Store
	if cfg.DatabaseDSN != "" {
		backend, err = storage.NewPostgres(cfg.DatabaseDSN)
		if err != nil {
			logger.Error("failed to initialize postgres storage", "error", err)
			os.Exit(1)
		}
	} else {
		// In-memory storage for development/testing
		backend = storage.NewMemory()
	}
	store := storage.NewInstrumented(backend)

	// Initialize event publisher (NATS JetStream or no-op)
	pub := event.NewPublisherFromEnv()
	defer pub.Close()

	// Section payload validator
	validator, err := schema.NewValidator()
	if err != nil {
		logger.Error("failed to compile section schemas", "error", err)
		os.Exit(1)
	}

	// Arrival-card API client, when an upstream is configured
	var submitter entry.Submitter
	if cfg.SubmissionURL != "" {
		submitter = submission.New(cfg.SubmissionURL)
	}

	// Artifact storage for fund photos and card files
	var mediaClient *media.S3Client
	if cfg.S3Endpoint != "" {
		mediaClient, err = media.NewS3Client(cfg.S3Endpoint, cfg.S3Region, cfg.S3Bucket, cfg.S3AccessKey, cfg.S3SecretKey)
		if err != nil {
			logger.Error("failed to initialize S3 client", "error", err)
			os.Exit(1)
		}
	}

	svc := entry.NewService(store, pub, validator, submitter, cfg.ArrivalGrace)

	var jwksClient *jwks.Client
	if cfg.JWKSURL != "" {
		jwksClient = jwks.NewClient(cfg.JWKSURL)
	}

	// Create HTTP mux with all handlers and middleware
	mux, autosave := server.NewMux(store, svc, cfg.JWTIssuer, cfg.JWTAudience, server.Options{
		JWKSClient:         jwksClient,
		MediaClient:        mediaClient,
		CORSAllowedOrigins: cfg.CORSAllowedOrigins,
		AutosaveDebounce:   cfg.AutosaveDebounce,
	})

	// Create HTTP server with timeout configuration
	addr := fmt.Sprintf(":%s", cfg.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 30 * time.Second, // Submission calls an upstream API
	}

	// Background expiry sweep: entries past their arrival date plus grace are
	// expired and frozen into snapshots.
	sweepCtx, stopSweep := context.WithCancel(context.Background())
	go func() {
		ticker := time.NewTicker(cfg.SweepInterval)
		defer ticker.Stop()
		for {
			select {
			case <-sweepCtx.Done():
				return
			case <-ticker.C:
				n, err := svc.ExpireSweep(sweepCtx)
				if err != nil {
					logger.Error("expiry sweep failed", "error", err)
					continue
				}
				if n > 0 {
					logger.Info("expiry sweep completed", "expired", n)
				}
			}
		}
	}()

	// Start server in a separate goroutine
	go func() {
		logger.Info("server starting", "addr", addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server failed to start", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	// Handle graceful shutdown
	logger.Info("shutting down server")
	stopSweep()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// Shutdown HTTP server first so no new autosaves arrive, then flush
	// whatever is still buffered.
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown failed", "error", err)
		os.Exit(1)
	}
	autosave.Close(shutdownCtx)

	// Close PostgreSQL storage if used
	if postgresStore, ok := backend.(interface{ Close() }); ok {
		postgresStore.Close()
	}

	logger.Info("server exited")
}
