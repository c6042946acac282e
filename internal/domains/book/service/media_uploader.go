package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/rs/zerolog/log"

	"bookcatalog-backend/internal/domains/book/model"
	"bookcatalog-backend/internal/infrastructure/metrics"
	"bookcatalog-backend/internal/infrastructure/storage"
	"bookcatalog-backend/internal/shared"
)

const (
	coverContentType    = "image/jpeg"
	deleteCoverMaxRetry = 5
)

// MediaUploader validates, normalizes and stores cover images
type MediaUploader struct {
	store      ObjectStore
	processor  CoverProcessor
	httpClient *http.Client
	enqueuer   TaskEnqueuer
	maxBytes   int64
}

// NewMediaUploader builds an uploader. enqueuer may be nil, in which case a
// failed delete is only logged.
func NewMediaUploader(store ObjectStore, processor CoverProcessor, httpClient *http.Client, enqueuer TaskEnqueuer) *MediaUploader {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &MediaUploader{
		store:      store,
		processor:  processor,
		httpClient: httpClient,
		enqueuer:   enqueuer,
		maxBytes:   5 * 1024 * 1024,
	}
}

// Upload stores src under <folder>/<uuid>.jpg. The object key is the provider id.
func (u *MediaUploader) Upload(ctx context.Context, src model.MediaSource, folder string) (*model.UploadedMedia, error) {
	if src.IsEmpty() {
		return nil, fmt.Errorf("%w: empty source", model.ErrUpload)
	}

	data := src.Data
	if len(data) == 0 {
		fetched, err := u.fetch(ctx, src.URL)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", model.ErrUpload, err)
		}
		data = fetched
	}

	if err := u.processor.ValidateImage(data); err != nil {
		switch {
		case errors.Is(err, storage.ErrTooLarge):
			return nil, fmt.Errorf("%w: %w", model.ErrUpload, model.ErrImageTooLarge)
		case errors.Is(err, storage.ErrFormat):
			return nil, fmt.Errorf("%w: %w", model.ErrUpload, model.ErrInvalidImageFormat)
		default:
			return nil, fmt.Errorf("%w: %v", model.ErrUpload, err)
		}
	}

	normalized, err := u.processor.NormalizeCover(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrUpload, err)
	}

	key := path.Join(folder, uuid.NewString()+".jpg")
	url, err := u.store.Upload(ctx, key, normalized, coverContentType)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrUpload, err)
	}

	return &model.UploadedMedia{
		URL:        url,
		ProviderID: key,
		Folder:     folder,
		SizeBytes:  len(normalized),
	}, nil
}

// fetch downloads at most maxBytes+1 so oversize images fail validation
func (u *MediaUploader) fetch(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("invalid image url: %w", err)
	}

	resp, err := u.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to download image: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("image download returned %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, u.maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read image: %w", err)
	}
	return data, nil
}

// Delete removes an uploaded asset. When the image host refuses, the delete is
// handed to the worker as a book:delete_cover task; an error is returned only
// when that also fails.
func (u *MediaUploader) Delete(ctx context.Context, providerID string) error {
	err := u.store.Delete(ctx, providerID)
	if err == nil {
		metrics.IncCoverRollback("deleted")
		return nil
	}

	log.Warn().Err(err).Str("provider_id", providerID).Msg("Cover delete failed, deferring to worker")

	if u.enqueuer == nil {
		metrics.IncCoverRollback("failed")
		return fmt.Errorf("failed to delete cover %s: %w", providerID, err)
	}

	payload, mErr := json.Marshal(model.DeleteCoverPayload{ProviderID: providerID, Reason: err.Error()})
	if mErr != nil {
		metrics.IncCoverRollback("failed")
		return fmt.Errorf("failed to marshal delete payload: %w", mErr)
	}

	task := asynq.NewTask(shared.TypeDeleteCover, payload)
	if _, qErr := u.enqueuer.EnqueueContext(ctx, task,
		asynq.Queue(shared.QueueLow),
		asynq.MaxRetry(deleteCoverMaxRetry),
	); qErr != nil {
		metrics.IncCoverRollback("failed")
		log.Error().Err(qErr).Str("provider_id", providerID).Msg("Failed to enqueue cover delete")
		return fmt.Errorf("failed to delete cover %s: %w", providerID, err)
	}

	metrics.IncCoverRollback("deferred")
	return nil
}
