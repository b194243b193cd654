package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"comms_server/config"
	"comms_server/internal/bootstrap"
	"comms_server/pkg/logger"
)

func main() {
	// Load .env file if exists (for local development)
	_ = godotenv.Load()

	log := logger.Init(logger.Config{
		Level:   os.Getenv("LOG_LEVEL"),
		Service: "comms",
		Pretty:  os.Getenv("ENV") != "production",
	})

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	deps, cleanup, err := bootstrap.NewDependencies(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize dependencies")
	}
	defer cleanup()

	if err := deps.WorkerPool.Start(); err != nil {
		log.Fatal().Err(err).Msg("failed to start worker pool")
	}

	log.Info().
		Str("environment", cfg.Environment).
		Str("model", cfg.LLMModel).
		Int("workers", cfg.WorkerCount).
		Msg("comms server started")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	log.Info().Msg("shutting down...")
}
