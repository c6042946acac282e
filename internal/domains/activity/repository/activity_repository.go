package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"bookcatalog-backend/internal/domains/activity/model"
)

// Repository reads and writes timeline activities
type Repository interface {
	// FindRecentKeys returns the candidate keys that already have a row created at or after since
	FindRecentKeys(ctx context.Context, since time.Time, keys []model.ActivityKey) (map[model.ActivityKey]bool, error)
	InsertBatch(ctx context.Context, activities []model.Activity) error
}

type postgresRepository struct {
	pool *pgxpool.Pool
}

func NewPostgresRepository(pool *pgxpool.Pool) Repository {
	return &postgresRepository{pool: pool}
}

func (r *postgresRepository) FindRecentKeys(ctx context.Context, since time.Time, keys []model.ActivityKey) (map[model.ActivityKey]bool, error) {
	found := make(map[model.ActivityKey]bool)
	if len(keys) == 0 {
		return found, nil
	}

	users := make([]uuid.UUID, len(keys))
	types := make([]string, len(keys))
	entityTypes := make([]string, len(keys))
	entities := make([]uuid.UUID, len(keys))
	for i, k := range keys {
		users[i] = k.UserID
		types[i] = string(k.ActivityType)
		entityTypes[i] = k.EntityType
		entities[i] = k.EntityID
	}

	query := `
		SELECT DISTINCT a.user_id, a.activity_type, a.entity_type, a.entity_id
		FROM activities a
		JOIN unnest($2::uuid[], $3::text[], $4::text[], $5::uuid[])
		     AS c(user_id, activity_type, entity_type, entity_id)
		  ON a.user_id = c.user_id
		 AND a.activity_type = c.activity_type
		 AND a.entity_type = c.entity_type
		 AND a.entity_id = c.entity_id
		WHERE a.created_at >= $1
	`

	rows, err := r.pool.Query(ctx, query, since, users, types, entityTypes, entities)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrActivityLookup, err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			k            model.ActivityKey
			activityType string
		)
		if err := rows.Scan(&k.UserID, &activityType, &k.EntityType, &k.EntityID); err != nil {
			return nil, fmt.Errorf("failed to scan activity key: %w", err)
		}
		k.ActivityType = model.ActivityType(activityType)
		found[k] = true
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return found, nil
}

// InsertBatch copies all rows in one statement; the batch lands or fails as a whole
func (r *postgresRepository) InsertBatch(ctx context.Context, activities []model.Activity) error {
	if len(activities) == 0 {
		return nil
	}

	copyCount, err := r.pool.CopyFrom(
		ctx,
		pgx.Identifier{"activities"},
		[]string{"id", "user_id", "activity_type", "entity_type", "entity_id", "data", "metadata", "batch_id", "created_at"},
		pgx.CopyFromSlice(len(activities), func(i int) ([]interface{}, error) {
			a := activities[i]
			data, err := json.Marshal(orEmpty(a.Data))
			if err != nil {
				return nil, fmt.Errorf("failed to encode data: %w", err)
			}
			metadata, err := json.Marshal(orEmpty(a.Metadata))
			if err != nil {
				return nil, fmt.Errorf("failed to encode metadata: %w", err)
			}
			return []interface{}{
				a.ID,
				a.UserID,
				string(a.ActivityType),
				a.EntityType,
				a.EntityID,
				data,
				metadata,
				a.BatchID,
				a.CreatedAt,
			}, nil
		}),
	)
	if err != nil {
		return fmt.Errorf("failed to insert activities: %w", err)
	}

	if copyCount != int64(len(activities)) {
		return fmt.Errorf("expected to insert %d activities, but inserted %d", len(activities), copyCount)
	}
	return nil
}

func orEmpty(m map[string]interface{}) map[string]interface{} {
	if m == nil {
		return map[string]interface{}{}
	}
	return m
}
