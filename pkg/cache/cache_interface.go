package cache

import (
	"context"
	"time"
)

// Cache is the contract for the cache layer. Values are stored as JSON.
type Cache interface {
	// Get unmarshals the cached value into dest.
	// found is false on a miss and dest is left untouched.
	Get(ctx context.Context, key string, dest interface{}) (bool, error)

	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error

	Ping(ctx context.Context) error
}
