package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"bookcatalog-backend/internal/domains/book/model"
)

// entityTables whitelists the tables a kind may address
var entityTables = map[model.EntityKind]string{
	model.EntityAuthor:    "authors",
	model.EntityPublisher: "publishers",
	model.EntitySubject:   "subjects",
}

func tableFor(kind model.EntityKind) (string, error) {
	table, ok := entityTables[kind]
	if !ok {
		return "", fmt.Errorf("%w: %q", model.ErrInvalidEntityKind, kind)
	}
	return table, nil
}

type entityRepository struct {
	pool *pgxpool.Pool
}

func NewEntityRepository(pool *pgxpool.Pool) EntityRepository {
	return &entityRepository{pool: pool}
}

// FindByNames matches names exactly, in one query
func (r *entityRepository) FindByNames(ctx context.Context, kind model.EntityKind, names []string) ([]model.Entity, error) {
	table, err := tableFor(kind)
	if err != nil {
		return nil, err
	}
	if len(names) == 0 {
		return nil, nil
	}

	query := fmt.Sprintf(`
		SELECT id, name, created_at
		FROM %s
		WHERE name = ANY($1)
	`, table)

	return r.queryEntities(ctx, query, names)
}

// InsertNames inserts all names in one statement. Names that a concurrent
// writer got to first are not returned.
func (r *entityRepository) InsertNames(ctx context.Context, kind model.EntityKind, names []string) ([]model.Entity, error) {
	table, err := tableFor(kind)
	if err != nil {
		return nil, err
	}
	if len(names) == 0 {
		return nil, nil
	}

	query := fmt.Sprintf(`
		INSERT INTO %s (name)
		SELECT unnest($1::text[])
		ON CONFLICT (name) DO NOTHING
		RETURNING id, name, created_at
	`, table)

	return r.queryEntities(ctx, query, names)
}

func (r *entityRepository) queryEntities(ctx context.Context, query string, names []string) ([]model.Entity, error) {
	rows, err := r.pool.Query(ctx, query, names)
	if err != nil {
		return nil, fmt.Errorf("failed to query entities: %w", err)
	}
	defer rows.Close()

	entities := make([]model.Entity, 0, len(names))
	for rows.Next() {
		var e model.Entity
		if err := rows.Scan(&e.ID, &e.Name, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan entity: %w", err)
		}
		entities = append(entities, e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return entities, nil
}
