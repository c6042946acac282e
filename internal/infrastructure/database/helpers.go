package database

import (
	"context"
	"fmt"
	"log"
	"time"
)

// Ping checks that the pool is initialized and the server answers within 5s
func (db *PostgresDB) Ping(ctx context.Context) error {
	if db.Pool == nil {
		return fmt.Errorf("database pool is not initialized")
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := db.Pool.Ping(pingCtx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}
	return nil
}

// Close releases the pool. Safe to call more than once.
func (db *PostgresDB) Close() error {
	if db.Pool == nil {
		log.Println("[DATABASE] Pool is already closed or was never initialized")
		return nil
	}

	log.Println("[DATABASE] Closing database connection pool...")
	db.Pool.Close()
	db.Pool = nil
	log.Println("[DATABASE] Connection pool closed successfully")

	return nil
}

// PoolStats is a snapshot of pool usage exposed on the health endpoint
type PoolStats struct {
	AcquiredConns      int32         `json:"acquired_conns"`
	IdleConns          int32         `json:"idle_conns"`
	TotalConns         int32         `json:"total_conns"`
	MaxConns           int32         `json:"max_conns"`
	AcquireCount       int64         `json:"acquire_count"`
	EmptyAcquireCount  int64         `json:"empty_acquire_count"`
	AvgAcquireDuration time.Duration `json:"avg_acquire_duration"`
}

func (db *PostgresDB) Stats() (*PoolStats, error) {
	if db.Pool == nil {
		return nil, fmt.Errorf("database pool is not initialized")
	}

	raw := db.Pool.Stat()
	return &PoolStats{
		AcquiredConns:      raw.AcquiredConns(),
		IdleConns:          raw.IdleConns(),
		TotalConns:         raw.TotalConns(),
		MaxConns:           raw.MaxConns(),
		AcquireCount:       raw.AcquireCount(),
		EmptyAcquireCount:  raw.EmptyAcquireCount(),
		AvgAcquireDuration: calculateAvgDuration(raw.AcquireDuration(), raw.AcquireCount()),
	}, nil
}

func calculateAvgDuration(totalDuration time.Duration, count int64) time.Duration {
	if count == 0 {
		return 0
	}
	return totalDuration / time.Duration(count)
}
