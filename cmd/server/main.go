// Package main is the entry point for the hybrid trader service.
// The service runs a scheduled live decision pipeline against a paper account,
// exposes runs and backtests over HTTP, and keeps its databases healthy.
//
// The application follows the same layering throughout:
// - Domain layer is pure (no infrastructure dependencies)
// - Dependency injection via DI container
// - Repository pattern for data access
// - HTTP handlers for API endpoints
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aristath/hybrid-trader/internal/config"
	"github.com/aristath/hybrid-trader/internal/di"
	"github.com/aristath/hybrid-trader/internal/server"
	"github.com/aristath/hybrid-trader/pkg/logger"
)

// main is the application entry point. It orchestrates the startup sequence:
// 1. Loads configuration from environment variables
// 2. Initializes logging system
// 3. Wires all dependencies via DI container (databases, services, jobs)
// 4. Starts HTTP server for API endpoints
// 5. Starts the job scheduler (scheduled live run, pending orders, maintenance)
// 6. Waits for shutdown signal and performs graceful shutdown
//
// The application uses a 3-database architecture:
// - results.db: Run records and per-instrument results
// - ledger.db: Append-only trade log
// - cache.db: Snapshot parts fetched from the market data service
func main() {
	// Load configuration first to get log level
	cfg, err := config.Load()
	if err != nil {
		// Use fallback logger if config fails
		fallbackLog := logger.New(logger.Config{
			Level:  "info",
			Pretty: true,
		})
		fallbackLog.Fatal().Err(err).Msg("Failed to load configuration")
	}

	// Initialize logger with config level
	// Pretty mode enables human-readable output for development
	log := logger.New(logger.Config{
		Level:  cfg.LogLevel,
		Pretty: cfg.DevMode,
	})
	logger.SetGlobalLogger(log)

	log.Info().Msg("Starting hybrid trader")

	// Wire all dependencies using DI container
	// Databases are opened and migrated first, then services, then jobs.
	container, err := di.Wire(cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to wire dependencies")
	}

	// Close databases on exit so WAL checkpoints are written
	defer func() {
		if err := container.Close(); err != nil {
			log.Error().Err(err).Msg("Failed to close container")
		}
	}()

	// Initialize HTTP server
	// The HTTP server provides endpoints for:
	// - Runs and backtests (start, cancel, results, live progress)
	// - Trades and pending orders
	// - System status, database stats and manual job triggers
	// - Prometheus metrics
	srv := server.New(server.Config{
		Log:       log,
		Config:    cfg,
		Port:      cfg.Port,
		DevMode:   cfg.DevMode,
		Container: container,
	})

	// Start server in goroutine
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	log.Info().Int("port", cfg.Port).Msg("Server started successfully")

	// Start scheduler
	// The scheduled live run fires on HYBRID_SCHEDULE; pending orders are
	// flushed every minute and database maintenance runs overnight.
	container.Scheduler.Start()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	// Graceful shutdown
	// In-flight requests get up to 10 seconds; runs started over HTTP are cancelled.
	// The scheduler is stopped by container.Close, which waits for running jobs.
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Server stopped")
}
