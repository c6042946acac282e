package job

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/rs/zerolog/log"

	"bookcatalog-backend/internal/domains/book/model"
	bookService "bookcatalog-backend/internal/domains/book/service"
)

// JobRunner executes a tracked import job
type JobRunner interface {
	RunJob(ctx context.Context, jobID uuid.UUID, req bookService.RunRequest) (*model.ImportResult, error)
}

// ImportISBNsHandler runs a queued identifier-list import
type ImportISBNsHandler struct {
	runner JobRunner
}

func NewImportISBNsHandler(runner JobRunner) *ImportISBNsHandler {
	return &ImportISBNsHandler{runner: runner}
}

func (h *ImportISBNsHandler) ProcessTask(ctx context.Context, task *asynq.Task) error {
	var payload model.ImportISBNsPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		log.Error().Err(err).Msg("Failed to unmarshal ImportISBNs payload")
		return fmt.Errorf("unmarshal payload: %w: %v", asynq.SkipRetry, err)
	}

	log.Info().
		Str("job_id", payload.JobID.String()).
		Int("isbns", len(payload.ISBNs)).
		Msg("Processing ISBN import")

	return runJob(ctx, h.runner, payload.JobID, bookService.RunRequest{
		Kind:    model.ImportKindISBNs,
		ISBNs:   payload.ISBNs,
		ActorID: payload.ActorID,
	})
}

// ImportEntityHandler runs a queued author or publisher import
type ImportEntityHandler struct {
	runner JobRunner
}

func NewImportEntityHandler(runner JobRunner) *ImportEntityHandler {
	return &ImportEntityHandler{runner: runner}
}

func (h *ImportEntityHandler) ProcessTask(ctx context.Context, task *asynq.Task) error {
	var payload model.ImportEntityPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		log.Error().Err(err).Msg("Failed to unmarshal ImportEntity payload")
		return fmt.Errorf("unmarshal payload: %w: %v", asynq.SkipRetry, err)
	}

	var kind model.ImportKind
	switch payload.EntityType {
	case model.EntityAuthor:
		kind = model.ImportKindAuthor
	case model.EntityPublisher:
		kind = model.ImportKindPublisher
	default:
		return fmt.Errorf("%w: %w: %q", asynq.SkipRetry, model.ErrInvalidEntityKind, payload.EntityType)
	}

	log.Info().
		Str("job_id", payload.JobID.String()).
		Str("entity_type", string(payload.EntityType)).
		Str("entity_name", payload.EntityName).
		Msg("Processing entity import")

	return runJob(ctx, h.runner, payload.JobID, bookService.RunRequest{
		Kind:       kind,
		EntityName: payload.EntityName,
		ISBNs:      payload.ISBNs,
		ActorID:    payload.ActorID,
	})
}

// runJob treats a run-level failure as final: the job row already records it
// and RetryFailedImports picks up per-item failures
func runJob(ctx context.Context, runner JobRunner, jobID uuid.UUID, req bookService.RunRequest) error {
	result, err := runner.RunJob(ctx, jobID, req)
	if err != nil {
		log.Error().Err(err).Str("job_id", jobID.String()).Msg("Import job failed")
		if result != nil {
			return fmt.Errorf("run import %s: %w: %v", jobID, asynq.SkipRetry, err)
		}
		return fmt.Errorf("run import %s: %w", jobID, err)
	}

	log.Info().
		Str("job_id", jobID.String()).
		Str("status", string(result.Status())).
		Int("added", result.Added).
		Int("duplicates", result.Duplicates).
		Int("errors", result.Errors).
		Msg("Import job finished")
	return nil
}

// ObjectDeleter removes a stored object by key
type ObjectDeleter interface {
	Delete(ctx context.Context, key string) error
}

// DeleteCoverHandler removes a cover whose inline delete failed
type DeleteCoverHandler struct {
	store ObjectDeleter
}

func NewDeleteCoverHandler(store ObjectDeleter) *DeleteCoverHandler {
	return &DeleteCoverHandler{store: store}
}

func (h *DeleteCoverHandler) ProcessTask(ctx context.Context, task *asynq.Task) error {
	var payload model.DeleteCoverPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		log.Error().Err(err).Msg("Failed to unmarshal DeleteCover payload")
		return fmt.Errorf("unmarshal payload: %w: %v", asynq.SkipRetry, err)
	}
	if payload.ProviderID == "" {
		return fmt.Errorf("empty provider id: %w", asynq.SkipRetry)
	}

	if err := h.store.Delete(ctx, payload.ProviderID); err != nil {
		log.Error().
			Err(err).
			Str("provider_id", payload.ProviderID).
			Msg("Failed to delete cover")
		return fmt.Errorf("delete cover: %w", err)
	}

	log.Info().
		Str("provider_id", payload.ProviderID).
		Str("reason", payload.Reason).
		Msg("Cover deleted")
	return nil
}

// FailedImportRetrier requeues failed identifiers of finished jobs
type FailedImportRetrier interface {
	RetryFailed(ctx context.Context, limit int) (int, error)
}

// RetryFailedImportsHandler is triggered by the scheduler
type RetryFailedImportsHandler struct {
	retrier      FailedImportRetrier
	defaultLimit int
}

func NewRetryFailedImportsHandler(retrier FailedImportRetrier, defaultLimit int) *RetryFailedImportsHandler {
	return &RetryFailedImportsHandler{retrier: retrier, defaultLimit: defaultLimit}
}

func (h *RetryFailedImportsHandler) ProcessTask(ctx context.Context, task *asynq.Task) error {
	var payload model.RetryFailedImportsPayload
	if len(task.Payload()) > 0 {
		if err := json.Unmarshal(task.Payload(), &payload); err != nil {
			return fmt.Errorf("unmarshal payload: %w: %v", asynq.SkipRetry, err)
		}
	}

	limit := payload.Limit
	if limit <= 0 {
		limit = h.defaultLimit
	}

	queued, err := h.retrier.RetryFailed(ctx, limit)
	if err != nil {
		return fmt.Errorf("retry failed imports: %w", err)
	}

	log.Info().Int("queued", queued).Int("limit", limit).Msg("Failed imports requeued")
	return nil
}
