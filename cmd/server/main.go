// Package main is the entry point for the madfolio portfolio construction service.
// It serves MAD allocations, efficient frontiers, transaction-cost rebalancing and
// backtests over a price history loaded once at startup.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aristath/madfolio/internal/config"
	"github.com/aristath/madfolio/internal/di"
	"github.com/aristath/madfolio/internal/server"
	"github.com/aristath/madfolio/pkg/logger"
)

// main loads configuration, wires dependencies, starts the scheduler and the
// HTTP server, and shuts both down on SIGINT or SIGTERM.
func main() {
	cfg, err := config.Load()
	if err != nil {
		// Fallback logger so the configuration error is still visible
		fallbackLog := logger.New(logger.Config{
			Level:  "info",
			Pretty: true,
		})
		fallbackLog.Fatal().Err(err).Msg("Failed to load configuration")
	}

	log := logger.New(logger.Config{
		Level:  cfg.LogLevel,
		Pretty: cfg.DevMode,
	})
	logger.SetGlobalLogger(log)

	log.Info().Msg("Starting madfolio")

	// Price files are read before the server accepts requests.
	loadCtx, loadCancel := context.WithTimeout(context.Background(), 2*time.Minute)
	container, _, err := di.Wire(loadCtx, cfg, log)
	loadCancel()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to wire dependencies")
	}

	container.Scheduler.Start()

	srv := server.New(server.Config{
		Log:          log,
		Port:         cfg.Port,
		DevMode:      cfg.DevMode,
		Databases:    container.Databases(),
		Scheduler:    container.Scheduler,
		Prices:       container.Prices,
		Optimization: container.Optimization,
		Valuation:    container.Valuation,
	})

	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	// In-flight requests get up to 10 seconds to finish
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	if err := container.Close(); err != nil {
		log.Error().Err(err).Msg("Failed to close resources")
	}

	log.Info().Msg("Server stopped")
}
