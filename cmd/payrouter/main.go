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
	"github.com/kelseyhightower/envconfig"

	"payrouter/internal/audit"
	"payrouter/internal/common/api"
	"payrouter/internal/common/database"
	"payrouter/internal/common/middleware"
	natsclient "payrouter/internal/common/nats"
	stripeprovider "payrouter/internal/providers/stripe"
	"payrouter/internal/routing"
	"payrouter/internal/sweeper"
	"payrouter/internal/transfer"
	"payrouter/internal/webhook"
)

// Config holds service configuration
type Config struct {
	Port        int    `envconfig:"PORT" default:"8080"`
	Environment string `envconfig:"ENVIRONMENT" default:"development"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`
	LogFormat   string `envconfig:"LOG_FORMAT" default:"json"`

	Stripe stripeprovider.Config

	// RoutingConfig points at a JSON destination table; empty uses the
	// built-in table.
	RoutingConfig string `envconfig:"ROUTING_CONFIG"`

	RetryInterval    time.Duration `envconfig:"RETRY_INTERVAL" default:"10m"`
	RetrySearchLimit int           `envconfig:"RETRY_SEARCH_LIMIT" default:"25"`
	RetryListLimit   int           `envconfig:"RETRY_LIST_LIMIT" default:"100"`

	AuditNATS natsclient.Config
	AuditDB   database.Config
}

func main() {
	// Load configuration
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		fmt.Fprintf(os.Stderr, "failed to process config: %v\n", err)
		os.Exit(1)
	}

	// Setup logger
	logger := setupLogger(cfg.LogLevel, cfg.LogFormat)

	// Create context that listens for shutdown signals
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Setup signal handling
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		logger.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	// Destination table
	table := routing.DefaultTable()
	if cfg.RoutingConfig != "" {
		var err error
		table, err = routing.LoadTable(cfg.RoutingConfig)
		if err != nil {
			logger.Error("failed to load routing config", "path", cfg.RoutingConfig, "error", err)
			os.Exit(1)
		}
	}
	logger.Info("destination table loaded", "rules", len(table.Rules()))

	// Optional transition audit side-channels
	var recorders []transfer.Recorder
	var db *database.DB

	if cfg.AuditDB.URL != "" {
		if err := audit.Migrate(cfg.AuditDB.URL); err != nil {
			logger.Error("audit schema migration failed", "error", err)
			os.Exit(1)
		}
		var err error
		db, err = database.New(ctx, cfg.AuditDB, logger)
		if err != nil {
			logger.Error("failed to connect to audit database", "error", err)
			os.Exit(1)
		}
		defer db.Close()
		recorders = append(recorders, audit.NewPostgresRecorder(db))
	}

	var nc *natsclient.Client
	if cfg.AuditNATS.URL != "" {
		var err error
		nc, err = natsclient.New(ctx, cfg.AuditNATS, logger)
		if err != nil {
			logger.Error("failed to connect to NATS", "error", err)
			os.Exit(1)
		}
		defer nc.Close()

		if _, err := nc.EnsureStream(ctx, natsclient.DefaultStreamConfig(audit.StreamName, audit.StreamSubjects)); err != nil {
			logger.Error("failed to ensure transition stream", "error", err)
			os.Exit(1)
		}
		recorders = append(recorders, audit.NewNATSRecorder(natsclient.NewPublisher(nc, logger)))
	}

	var recorder transfer.Recorder
	switch len(recorders) {
	case 0:
	case 1:
		recorder = recorders[0]
	default:
		recorder = audit.Multi(recorders...)
	}

	// Provider and services
	provider := stripeprovider.NewAdapter(cfg.Stripe, logger)
	transfers := transfer.NewService(provider, recorder, logger)

	sweepService := sweeper.NewService(provider, transfers, table, sweeper.Config{
		Disabled:    retryDisabled,
		SearchLimit: cfg.RetrySearchLimit,
		ListLimit:   cfg.RetryListLimit,
	}, logger)

	webhookHandler := webhook.NewHandler(provider, provider, transfers, table, logger)
	sweepHandler := sweeper.NewHandler(sweepService, logger)

	// Setup router
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.CorrelationID)
	r.Use(middleware.Recoverer(logger))
	r.Use(middleware.Logger(logger))

	// Health check covers the optional audit side-channels when configured
	r.Get("/health", func(w http.ResponseWriter, req *http.Request) {
		if db != nil {
			if err := db.HealthCheck(req.Context()); err != nil {
				w.WriteHeader(http.StatusServiceUnavailable)
				w.Write([]byte(`{"status":"unhealthy"}`))
				return
			}
		}
		if nc != nil {
			if err := nc.HealthCheck(); err != nil {
				w.WriteHeader(http.StatusServiceUnavailable)
				w.Write([]byte(`{"status":"unhealthy"}`))
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"healthy"}`))
	})

	// Webhook receiver; does its own method handling (GET is a liveness
	// probe for the provider's endpoint checks)
	r.Handle("/webhooks/stripe", webhookHandler)

	// Manual sweep trigger
	r.Handle("/jobs/transfer-retry", sweepHandler)

	// Read-only view of the destination table
	r.Get("/routing/destinations", func(w http.ResponseWriter, req *http.Request) {
		api.WriteData(w, http.StatusOK, table.Rules())
	})

	// Background sweep loop
	runner := sweeper.NewRunner(sweepService, cfg.RetryInterval, logger)
	go runner.Start(ctx)

	// Create server
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		logger.Info("starting payrouter service",
			"port", cfg.Port,
			"environment", cfg.Environment,
			"retry_interval", cfg.RetryInterval,
		)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			cancel()
		}
	}()

	// Wait for shutdown
	<-ctx.Done()

	// Graceful shutdown
	logger.Info("shutting down server")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", "error", err)
	}

	logger.Info("server stopped")
}

// retryDisabled reads the sweep kill switch. Checked on every sweep so the
// flag takes effect without a code change.
func retryDisabled() bool {
	switch os.Getenv("DISABLE_RETRY") {
	case "true", "TRUE", "1", "yes":
		return true
	}
	return false
}

func setupLogger(level, format string) *slog.Logger {
	var logLevel slog.Level
	switch level {
	case "debug":
		logLevel = slog.LevelDebug
	case "info":
		logLevel = slog.LevelInfo
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level: logLevel,
	}

	var handler slog.Handler
	if format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	return slog.New(handler)
}
