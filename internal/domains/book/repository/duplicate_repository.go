package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

type duplicateRepository struct {
	pool *pgxpool.Pool
}

func NewDuplicateRepository(pool *pgxpool.Pool) DuplicateRepository {
	return &duplicateRepository{pool: pool}
}

// FindExistingISBNs runs a single query over both natural key columns
func (r *duplicateRepository) FindExistingISBNs(ctx context.Context, isbns []string) ([]string, error) {
	if len(isbns) == 0 {
		return nil, nil
	}

	query := `
		SELECT isbn10, isbn13
		FROM books
		WHERE isbn10 = ANY($1) OR isbn13 = ANY($1)
	`

	rows, err := r.pool.Query(ctx, query, isbns)
	if err != nil {
		return nil, fmt.Errorf("failed to query existing isbns: %w", err)
	}
	defer rows.Close()

	existing := make([]string, 0, len(isbns))
	for rows.Next() {
		var isbn10, isbn13 *string
		if err := rows.Scan(&isbn10, &isbn13); err != nil {
			return nil, fmt.Errorf("failed to scan isbn row: %w", err)
		}
		if isbn10 != nil && *isbn10 != "" {
			existing = append(existing, *isbn10)
		}
		if isbn13 != nil && *isbn13 != "" {
			existing = append(existing, *isbn13)
		}
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return existing, nil
}
