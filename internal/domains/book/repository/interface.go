package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"bookcatalog-backend/internal/domains/book/model"
)

// Querier is the subset of pgx shared by *pgxpool.Pool and pgx.Tx
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// DuplicateRepository answers which identifiers are already catalogued
type DuplicateRepository interface {
	// FindExistingISBNs returns every isbn10 and isbn13 value of books matching any input
	FindExistingISBNs(ctx context.Context, isbns []string) ([]string, error)
}

// EntityRepository reads and bulk-inserts name-keyed entities
type EntityRepository interface {
	FindByNames(ctx context.Context, kind model.EntityKind, names []string) ([]model.Entity, error)
	// InsertNames skips names that already exist and returns only the rows it created
	InsertNames(ctx context.Context, kind model.EntityKind, names []string) ([]model.Entity, error)
}

// BookWriter persists one imported item. All methods of the writer passed to
// WithTx run in the same transaction.
type BookWriter interface {
	UpsertBook(ctx context.Context, book *model.Book) (*model.Book, bool, error)
	LinkAuthor(ctx context.Context, bookID, authorID uuid.UUID) error
	LinkSubject(ctx context.Context, bookID, subjectID uuid.UUID) error
	CreateImage(ctx context.Context, img *model.Image) error
	WithTx(ctx context.Context, fn func(w BookWriter) error) error
}

// ImportJobRepository tracks import runs
type ImportJobRepository interface {
	Create(ctx context.Context, job *model.ImportJob) error
	MarkProcessing(ctx context.Context, id uuid.UUID) error
	Complete(ctx context.Context, id uuid.UUID, result *model.ImportResult) error
	GetByID(ctx context.Context, id uuid.UUID) (*model.ImportJob, error)
	// ListRetryable returns partial jobs with failed identifiers that were not retried yet
	ListRetryable(ctx context.Context, limit int) ([]*model.ImportJob, error)
	MarkRetried(ctx context.Context, id uuid.UUID) error
}
