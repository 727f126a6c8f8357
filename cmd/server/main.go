// Package main is the entry point for the Monte Carlo portfolio VaR service.
//
// The service keeps a bounded history of daily returns per asset, fed over
// HTTP, from a read-only price history database and from a live price feed,
// and answers VaR / expected shortfall requests by simulation.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aristath/varisk/internal/config"
	"github.com/aristath/varisk/internal/di"
	"github.com/aristath/varisk/internal/server"
	"github.com/aristath/varisk/pkg/logger"
)

// main orchestrates startup:
// 1. Loads configuration from environment variables (.env supported)
// 2. Initializes logging
// 3. Wires the engine and its collaborators via the DI container
// 4. Seeds history once, then starts the scheduler and the price feed
// 5. Starts the HTTP server
// 6. Waits for a shutdown signal and shuts down gracefully
func main() {
	cfg, err := config.Load()
	if err != nil {
		// Use fallback logger if config fails
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

	log.Info().Str("version", cfg.Version).Msg("Starting VaR service")

	container, err := di.Wire(cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to wire dependencies")
	}
	defer container.Close()

	// Seed history before serving so the first requests are not all static fallback.
	// A failure here is not fatal: the scheduler retries on its next tick.
	if container.Ingestor != nil {
		if err := container.Scheduler.RunNow(container.Ingestor); err != nil {
			log.Warn().Err(err).Msg("Initial return ingestion incomplete")
		}
	}
	container.Scheduler.Start()

	// Start() retries in the background on failure
	if container.PriceFeed != nil {
		if err := container.PriceFeed.Start(); err != nil {
			log.Warn().Err(err).Msg("Price feed not connected yet")
		}
	}

	srv := server.New(server.Config{
		Log:         log,
		Port:        cfg.Port,
		DevMode:     cfg.DevMode,
		Version:     cfg.Version,
		RiskHandler: container.RiskHandler,
		Registry:    container.Registry,
		HistoryDB:   container.HistoryDB,
		Feed:        feedStatus(container),
	})

	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("HTTP server failed")
		}
	}()

	log.Info().Int("port", cfg.Port).Msg("VaR service started")

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	// Stop accepting new ingestion runs; waits for a running one
	container.Scheduler.Stop()

	if container.PriceFeed != nil {
		if err := container.PriceFeed.Stop(); err != nil {
			log.Error().Err(err).Msg("Error stopping price feed")
		} else {
			log.Info().Msg("Price feed stopped")
		}
	}

	// In-flight VaR requests get up to 10 seconds to finish
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Server stopped")
}

// feedStatus avoids handing the server a typed nil inside an interface
func feedStatus(c *di.Container) server.FeedStatus {
	if c.PriceFeed == nil {
		return nil
	}
	return c.PriceFeed
}
