package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"go.uber.org/zap"

	"github.com/fleetforge/telemetry-agent/pkg/agent"
	"github.com/fleetforge/telemetry-agent/pkg/api"
	"github.com/fleetforge/telemetry-agent/pkg/api/handlers"
	"github.com/fleetforge/telemetry-agent/pkg/config"
	"github.com/fleetforge/telemetry-agent/pkg/logger"
	"github.com/fleetforge/telemetry-agent/pkg/metrics"
	"github.com/fleetforge/telemetry-agent/pkg/spool"
)

// Populated at build time via -ldflags.
var (
	version   = "dev"
	buildDate = "unknown"
)

func main() {
	// Parse command-line flags
	configPath := flag.String("config", "config/config.toml", "Path to configuration file")
	flag.Parse()

	// Load configuration
	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger with config
	log, err := logger.NewLogger(logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	log.Info("Starting Telemetry Agent",
		zap.String("version", version),
		zap.String("config_file", *configPath),
		zap.String("stream_address", cfg.Stream.Address),
		zap.String("spool_type", cfg.Spool.Type),
		zap.Bool("history_backfill_enabled", cfg.History.Enabled),
		zap.Bool("api_auth_configured", cfg.Server.AuthToken != ""),
	)

	metrics.SetEnabled(cfg.Metrics.Enabled)
	metrics.Init()
	metrics.Up.Set(1)
	metrics.Info.WithLabelValues(version, cfg.Spool.Type, buildDate).Set(1)

	// Initialize the spool based on type
	var store spool.Store
	switch cfg.Spool.Type {
	case "memory":
		log.Info("Using in-memory spool (queued samples do not survive restarts)")
		store = spool.NewMemoryStore()
	case "sqlite":
		log.Info("Initializing SQLite spool", zap.String("path", cfg.Spool.SQLite.Path))
		store, err = spool.NewSQLiteStore(cfg.Spool.SQLite.Path, log)
		if err != nil {
			// Check for database locked error and provide clear guidance
			if strings.Contains(err.Error(), "database is locked") {
				log.Fatal("Spool database is locked by another process",
					zap.String("database_path", cfg.Spool.SQLite.Path),
					zap.String("troubleshooting", "Check if another agent instance is running or remove stale WAL files"))
			}
			log.Fatal("Failed to initialize SQLite spool", zap.Error(err))
		}
	case "postgres":
		log.Info("Initializing PostgreSQL spool")
		store, err = spool.NewPostgresStore(cfg.Spool.Postgres.DSN, log)
		if err != nil {
			log.Fatal("Failed to initialize PostgreSQL spool", zap.Error(err))
		}
	default:
		log.Fatal("Unknown spool type", zap.String("type", cfg.Spool.Type))
	}
	defer store.Close()

	// Start the metrics server if enabled
	var metricsServer *metrics.Server
	if cfg.Metrics.Enabled {
		metricsServer = metrics.NewServer(&cfg.Metrics, log)
		if err := metricsServer.Start(); err != nil {
			log.Fatal("Failed to start metrics server", zap.Error(err))
		}
	}

	// Initialize the agent (stream client, spool journal, fleet tracker)
	a := agent.New(cfg, store, log)

	// Initialize ingest API server
	apiServer, err := handlers.NewServer(a, a.Tracker(), log)
	if err != nil {
		log.Fatal("Failed to initialize API server", zap.Error(err))
	}
	router := api.NewRouter(apiServer, cfg.Server.AuthToken, log)

	// Start ingest API server
	log.Info("Starting ingest API server", zap.Int("port", cfg.Server.Port))

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: router,
	}

	// Start server in a goroutine
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("Failed to start ingest API server", zap.Error(err))
		}
	}()

	// Connect upstream; dial failures are retried by the stream client
	if err := a.Start(context.Background()); err != nil {
		log.Fatal("Failed to start telemetry agent", zap.Error(err))
	}

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down Telemetry Agent")
	metrics.Up.Set(0)

	// Graceful shutdown with timeout
	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	// Stop the stream first so in-flight samples settle into the spool
	a.Stop()

	if err := srv.Shutdown(ctx); err != nil {
		log.Error("Server forced to shutdown", zap.Error(err))
	}

	if metricsServer != nil {
		if err := metricsServer.Stop(ctx); err != nil {
			log.Error("Metrics server forced to shutdown", zap.Error(err))
		}
	}

	log.Info("Telemetry Agent stopped")
}
