package main

import (
	"github.com/rs/zerolog/log"

	"bookcatalog-backend/internal/infrastructure/queue"
	"bookcatalog-backend/pkg/container"
)

// asynqScheduler wraps queue.Scheduler with additional functionality
type asynqScheduler struct {
	*queue.Scheduler
}

func setupScheduler(cfg *Config) *asynqScheduler {
	scheduler := queue.NewScheduler(container.RedisClientOpt(cfg.App.Redis), cfg.App.Job)

	if err := scheduler.RegisterJobs(); err != nil {
		log.Fatal().Err(err).Msg("Failed to register scheduled jobs")
	}

	go func() {
		log.Info().Msg("Scheduler starting")
		if err := scheduler.Start(); err != nil {
			log.Fatal().Err(err).Msg("Scheduler failed")
		}
	}()

	return &asynqScheduler{Scheduler: scheduler}
}

func (s *asynqScheduler) Shutdown() {
	log.Info().Msg("Scheduler shutting down")
	s.Scheduler.Shutdown()
	log.Info().Msg("Scheduler stopped")
}
