package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"bookcatalog-backend/internal/config"
	"bookcatalog-backend/internal/domains/activity/model"
	"bookcatalog-backend/internal/domains/activity/repository"
	"bookcatalog-backend/internal/infrastructure/metrics"
)

// ActivityService writes timeline activities, suppressing any whose
// (actor, type, entity type, entity id) was already recorded inside the window.
type ActivityService struct {
	repo      repository.Repository
	window    time.Duration
	batchSize int
	now       func() time.Time
}

type Option func(*ActivityService)

// WithClock replaces time.Now
func WithClock(now func() time.Time) Option {
	return func(s *ActivityService) { s.now = now }
}

func NewActivityService(repo repository.Repository, cfg config.ActivityConfig, opts ...Option) *ActivityService {
	s := &ActivityService{
		repo:      repo,
		window:    cfg.Window,
		batchSize: cfg.BatchSize,
		now:       time.Now,
	}
	if s.window <= 0 {
		s.window = 24 * time.Hour
	}
	if s.batchSize <= 0 {
		s.batchSize = 100
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// NewBatchID formats batch_<unix ms>_<8 hex>
func NewBatchID(now time.Time) string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	return fmt.Sprintf("batch_%d_%s", now.UnixMilli(), suffix)
}

// Emit validates, deduplicates and inserts candidates. A failed insert batch is
// reported in Errors and the remaining batches still run. The returned error is
// set only when the duplicate lookup itself fails, in which case nothing is written.
func (s *ActivityService) Emit(ctx context.Context, candidates []model.ActivityData) (*model.EmitResult, error) {
	now := s.now()
	result := &model.EmitResult{
		Errors:  []string{},
		BatchID: NewBatchID(now),
	}

	// Step 1: validate and drop repeats inside this call
	seen := make(map[model.ActivityKey]bool, len(candidates))
	survivors := make([]model.ActivityData, 0, len(candidates))
	for i, c := range candidates {
		if err := c.Validate(); err != nil {
			result.Invalid++
			result.Errors = append(result.Errors, fmt.Sprintf("activity %d: %v", i, err))
			continue
		}
		key := c.Key()
		if seen[key] {
			result.Duplicates++
			continue
		}
		seen[key] = true
		survivors = append(survivors, c)
	}

	if len(survivors) == 0 {
		s.record(result)
		return result, nil
	}

	// Step 2: one lookup against the trailing window
	keys := make([]model.ActivityKey, len(survivors))
	for i, c := range survivors {
		keys[i] = c.Key()
	}

	recent, err := s.repo.FindRecentKeys(ctx, now.Add(-s.window), keys)
	if err != nil {
		log.Error().Err(err).Str("batch_id", result.BatchID).Msg("Activity duplicate lookup failed")
		result.Errors = append(result.Errors, err.Error())
		metrics.AddActivities("failed", len(survivors))
		return result, fmt.Errorf("%w: %v", model.ErrActivityLookup, err)
	}

	rows := make([]model.Activity, 0, len(survivors))
	for _, c := range survivors {
		if recent[c.Key()] {
			result.Duplicates++
			continue
		}
		rows = append(rows, model.Activity{
			ID:           uuid.New(),
			UserID:       c.UserID,
			ActivityType: c.ActivityType,
			EntityType:   c.EntityType,
			EntityID:     c.EntityID,
			Data:         c.Data,
			Metadata:     c.Metadata,
			BatchID:      result.BatchID,
			CreatedAt:    now,
		})
	}

	// Step 3: insert in fixed-size batches
	for start := 0; start < len(rows); start += s.batchSize {
		end := start + s.batchSize
		if end > len(rows) {
			end = len(rows)
		}
		batch := rows[start:end]

		if err := s.repo.InsertBatch(ctx, batch); err != nil {
			log.Warn().Err(err).
				Str("batch_id", result.BatchID).
				Int("batch", start/s.batchSize).
				Int("size", len(batch)).
				Msg("Activity batch insert failed")
			result.Errors = append(result.Errors, fmt.Sprintf("batch %d: %v", start/s.batchSize, err))
			metrics.AddActivities("failed", len(batch))
			continue
		}
		result.Inserted += len(batch)
	}

	s.record(result)

	log.Info().
		Str("batch_id", result.BatchID).
		Int("inserted", result.Inserted).
		Int("duplicates", result.Duplicates).
		Int("invalid", result.Invalid).
		Msg("Activities emitted")

	return result, nil
}

func (s *ActivityService) record(result *model.EmitResult) {
	metrics.AddActivities("inserted", result.Inserted)
	metrics.AddActivities("duplicate", result.Duplicates)
	metrics.AddActivities("invalid", result.Invalid)
}
