package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"

	"trackgate/internal/infrastructure/config"
	"trackgate/internal/infrastructure/logger"
	_ "trackgate/internal/infrastructure/metrics" // Register Prometheus metrics
)

func init() {
	// Initialize logger with default settings
	logger.Init("info", "json")
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load config")
	}

	// Re-initialize logger with config settings
	logger.Init(cfg.LogLevel, cfg.LogFormat)
	log.Info().
		Str("http_port", cfg.HTTPPort).
		Str("log_level", cfg.LogLevel).
		Msg("Starting trackgate service")

	application, err := newApplication(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create application")
	}

	if err := application.Start(ctx); err != nil {
		log.Fatal().Err(err).Msg("Failed to start server")
	}
}
