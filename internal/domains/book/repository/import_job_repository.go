package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"bookcatalog-backend/internal/domains/book/model"
)

type importJobRepository struct {
	pool *pgxpool.Pool
}

func NewImportJobRepository(pool *pgxpool.Pool) ImportJobRepository {
	return &importJobRepository{pool: pool}
}

const importJobColumns = `
	id, actor_id, kind, entity_name, isbns, status,
	added, duplicates, errors, error_details, failed_isbns,
	retry_of, retried, started_at, completed_at, created_at, updated_at
`

// Create inserts a pending job and fills timestamps
func (r *importJobRepository) Create(ctx context.Context, job *model.ImportJob) error {
	if job.ID == uuid.Nil {
		job.ID = uuid.New()
	}
	if job.Status == "" {
		job.Status = model.JobStatusPending
	}

	query := `
		INSERT INTO import_jobs (id, actor_id, kind, entity_name, isbns, status, retry_of)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at, updated_at
	`

	err := r.pool.QueryRow(ctx, query,
		job.ID,
		job.ActorID,
		job.Kind,
		job.EntityName,
		[]string(job.ISBNs),
		job.Status,
		job.RetryOf,
	).Scan(&job.CreatedAt, &job.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create import job: %w", err)
	}

	return nil
}

func (r *importJobRepository) MarkProcessing(ctx context.Context, id uuid.UUID) error {
	query := `
		UPDATE import_jobs
		SET status = $2,
		    started_at = COALESCE(started_at, NOW()),
		    updated_at = NOW()
		WHERE id = $1
	`

	tag, err := r.pool.Exec(ctx, query, id, model.JobStatusProcessing)
	if err != nil {
		return fmt.Errorf("failed to mark job processing: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return model.ErrImportJobNotFound
	}
	return nil
}

// Complete stores the final counters and derives the status from the result
func (r *importJobRepository) Complete(ctx context.Context, id uuid.UUID, result *model.ImportResult) error {
	details, err := json.Marshal(result.ErrorDetails)
	if err != nil {
		return fmt.Errorf("failed to encode error details: %w", err)
	}

	query := `
		UPDATE import_jobs
		SET status = $2,
		    added = $3,
		    duplicates = $4,
		    errors = $5,
		    error_details = $6,
		    failed_isbns = $7,
		    completed_at = NOW(),
		    updated_at = NOW()
		WHERE id = $1
	`

	failed := result.FailedISBNs
	if failed == nil {
		failed = []string{}
	}

	tag, err := r.pool.Exec(ctx, query,
		id,
		result.Status(),
		result.Added,
		result.Duplicates,
		result.Errors,
		details,
		failed,
	)
	if err != nil {
		return fmt.Errorf("failed to complete import job: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return model.ErrImportJobNotFound
	}
	return nil
}

func (r *importJobRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.ImportJob, error) {
	query := `SELECT ` + importJobColumns + ` FROM import_jobs WHERE id = $1`

	job, err := scanImportJob(r.pool.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, model.ErrImportJobNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get import job: %w", err)
	}
	return job, nil
}

func (r *importJobRepository) ListRetryable(ctx context.Context, limit int) ([]*model.ImportJob, error) {
	query := `SELECT ` + importJobColumns + `
		FROM import_jobs
		WHERE status = $1
		  AND retried = false
		  AND cardinality(failed_isbns) > 0
		ORDER BY completed_at ASC
		LIMIT $2
	`

	rows, err := r.pool.Query(ctx, query, model.JobStatusPartial, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list retryable jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*model.ImportJob
	for rows.Next() {
		job, err := scanImportJob(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan import job: %w", err)
		}
		jobs = append(jobs, job)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return jobs, nil
}

func (r *importJobRepository) MarkRetried(ctx context.Context, id uuid.UUID) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE import_jobs SET retried = true, updated_at = NOW() WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to mark job retried: %w", err)
	}
	return nil
}

func scanImportJob(row pgx.Row) (*model.ImportJob, error) {
	var (
		job     model.ImportJob
		isbns   []string
		failed  []string
		details []byte
	)

	err := row.Scan(
		&job.ID,
		&job.ActorID,
		&job.Kind,
		&job.EntityName,
		&isbns,
		&job.Status,
		&job.Added,
		&job.Duplicates,
		&job.Errors,
		&details,
		&failed,
		&job.RetryOf,
		&job.Retried,
		&job.StartedAt,
		&job.CompletedAt,
		&job.CreatedAt,
		&job.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	job.ISBNs = isbns
	job.FailedISBNs = failed
	if len(details) > 0 {
		if err := json.Unmarshal(details, &job.ErrorDetails); err != nil {
			return nil, fmt.Errorf("failed to decode error details: %w", err)
		}
	}
	return &job, nil
}
