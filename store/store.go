package store

import (
	"context"
	"time"
)

// Store is the set of key-value operations the client facade dispatches.
//
// Missing keys are reported via the boolean return, never as an error. A
// ttl of zero (or negative) means the key does not expire. Implementations
// must treat all operations as total: deleting an absent key, expiring an
// absent key, or popping from an empty list are not errors.
type Store interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	Del(ctx context.Context, key string) error
	Exists(ctx context.Context, key string) (bool, error)
	// Expire resets the key's TTL, reporting whether the key existed.
	Expire(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Incr(ctx context.Context, key string) (int64, error)
	HSet(ctx context.Context, key, field, value string) error
	HGet(ctx context.Context, key, field string) (string, bool, error)
	// LPush prepends to the list at key, returning the new list length.
	LPush(ctx context.Context, key, value string) (int64, error)
	RPop(ctx context.Context, key string) (string, bool, error)
}
