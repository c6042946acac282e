package queue

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"

	"bookcatalog-backend/internal/config"
	"bookcatalog-backend/internal/domains/book/model"
	"bookcatalog-backend/internal/shared"
	"bookcatalog-backend/pkg/logger"
)

type Scheduler struct {
	scheduler *asynq.Scheduler
	jobConfig config.JobConfig
}

func NewScheduler(redisOpt asynq.RedisClientOpt, jobConfig config.JobConfig) *Scheduler {
	scheduler := asynq.NewScheduler(
		redisOpt,
		&asynq.SchedulerOpts{
			Location: time.UTC,
			LogLevel: asynq.InfoLevel,
		},
	)

	return &Scheduler{
		scheduler: scheduler,
		jobConfig: jobConfig,
	}
}

// RegisterJobs registers every periodic task
func (s *Scheduler) RegisterJobs() error {
	if s.jobConfig.RetryFailedCron == "" {
		logger.Warn("Retry of failed imports is disabled", map[string]interface{}{})
		return nil
	}
	return s.registerRetryFailedImportsJob()
}

// ================================================
// Retry failed imports
// ================================================
// Partial jobs keep their failed identifiers; each run requeues them once
// as a child job with retry_of set.
func (s *Scheduler) registerRetryFailedImportsJob() error {
	task, err := NewRetryFailedImportsTask(s.jobConfig.RetryFailedLimit)
	if err != nil {
		return err
	}

	entryID, err := s.scheduler.Register(
		s.jobConfig.RetryFailedCron,
		task,
		asynq.Queue(shared.QueueMaintenance),
		asynq.MaxRetry(2),
		asynq.Timeout(5*time.Minute),
	)
	if err != nil {
		logger.Error("Failed to register RetryFailedImports job", err)
		return fmt.Errorf("register retry failed imports: %w", err)
	}

	logger.Info("Registered RetryFailedImports", map[string]interface{}{
		"cron":     s.jobConfig.RetryFailedCron,
		"limit":    s.jobConfig.RetryFailedLimit,
		"entry_id": entryID,
	})
	return nil
}

// NewRetryFailedImportsTask builds the periodic retry task
func NewRetryFailedImportsTask(limit int) (*asynq.Task, error) {
	payload, err := json.Marshal(model.RetryFailedImportsPayload{Limit: limit})
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}
	return asynq.NewTask(shared.TypeRetryFailedImports, payload), nil
}

func (s *Scheduler) Start() error {
	return s.scheduler.Run()
}

func (s *Scheduler) Shutdown() {
	s.scheduler.Shutdown()
}
