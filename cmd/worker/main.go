package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	"bookcatalog-backend/pkg/container"
	"bookcatalog-backend/pkg/logger"
)

func main() {
	_ = godotenv.Load()
	logger.Init(getEnv("APP_ENV", "development"))

	c, err := container.NewContainer()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize container")
	}
	defer c.Cleanup()

	cfg := loadConfig(c.Config)

	if err := startServices(c, cfg); err != nil {
		log.Fatal().Err(err).Msg("Startup health check failed")
	}

	handlers := initializeHandlers(c)
	srv := setupAsynqServer(cfg, handlers)
	scheduler := setupScheduler(cfg)

	waitForShutdown(srv, scheduler)
}

func waitForShutdown(srv *asynqServer, scheduler *asynqScheduler) {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Gracefully stopping")
	scheduler.Shutdown()
	srv.Shutdown()
}

func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}
