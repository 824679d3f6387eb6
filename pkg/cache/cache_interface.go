package cache

import (
	"context"
	"time"
)

// Cache is the key/value contract used for session-scoped state
// (encrypted gateway tokens, checkout idempotency scopes).
// Implementations: Redis (production) and in-memory (tests, single node).
type Cache interface {
	// Get loads the JSON value at key into dest.
	// found=false on miss; dest is left untouched.
	Get(ctx context.Context, key string, dest interface{}) (bool, error)

	// Set stores value as JSON with ttl (0 = no expiry).
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error

	// Delete removes keys; missing keys are ignored.
	Delete(ctx context.Context, keys ...string) error

	Exists(ctx context.Context, key string) (bool, error)

	// Increment atomically adds one to an integer counter and returns the new value.
	Increment(ctx context.Context, key string) (int64, error)

	Ping(ctx context.Context) error
}
