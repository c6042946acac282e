package service

import (
	"context"
	"time"

	"github.com/hibiken/asynq"

	activityModel "bookcatalog-backend/internal/domains/activity/model"
	"bookcatalog-backend/internal/domains/book/model"
)

// MetadataProvider is the catalog provider as the import pipeline sees it.
// Implemented by *isbndb.Client.
type MetadataProvider interface {
	FetchBulk(ctx context.Context, isbns []string) []*model.RawRecord
	FetchOne(ctx context.Context, isbn string, maxRetries int, initialDelay time.Duration) *model.RawRecord
	DiscoverISBNs(ctx context.Context, kind model.EntityKind, name string, limit int) ([]string, error)
	SearchNames(ctx context.Context, kind model.EntityKind, query string, page, pageSize int) ([]string, error)
}

// ObjectStore is the image host. Implemented by *storage.MinIOStorage.
type ObjectStore interface {
	Upload(ctx context.Context, key string, data []byte, contentType string) (string, error)
	Delete(ctx context.Context, key string) error
}

// CoverProcessor validates and normalizes cover bytes. Implemented by *storage.ImageProcessor.
type CoverProcessor interface {
	ValidateImage(data []byte) error
	NormalizeCover(data []byte) ([]byte, error)
}

// TaskEnqueuer is satisfied by *asynq.Client
type TaskEnqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// ActivityEmitter is satisfied by the activity service
type ActivityEmitter interface {
	Emit(ctx context.Context, candidates []activityModel.ActivityData) (*activityModel.EmitResult, error)
}

// Uploader is the media side of an import item
type Uploader interface {
	Upload(ctx context.Context, src model.MediaSource, folder string) (*model.UploadedMedia, error)
	Delete(ctx context.Context, providerID string) error
}
