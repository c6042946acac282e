package main

import (
	"strconv"

	"github.com/rs/zerolog/log"

	"bookcatalog-backend/internal/config"
)

// Config holds worker-only settings; everything else comes from config.Load
type Config struct {
	Concurrency int
	HealthPort  string
	App         *config.Config
}

func loadConfig(app *config.Config) *Config {
	cfg := &Config{
		Concurrency: 4,
		HealthPort:  getEnv("WORKER_HEALTH_PORT", "9999"),
		App:         app,
	}
	if raw := getEnv("WORKER_CONCURRENCY", ""); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			cfg.Concurrency = n
		}
	}

	log.Info().
		Str("redis", app.Redis.Host).
		Int("concurrency", cfg.Concurrency).
		Str("retry_cron", app.Job.RetryFailedCron).
		Msg("Worker config loaded")

	return cfg
}
