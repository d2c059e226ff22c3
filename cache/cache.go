// Package cache provides read-through caching on top of the client facade.
// Values live under a "cache:" key prefix with a default TTL chosen at
// construction, and an optional in-process TinyLFU layer can absorb hot
// reads before they reach the facade at all.
package cache

import (
	"context"
	"time"

	rediscache "github.com/go-redis/cache/v9"

	"github.com/overcast-systems/flywheel/client"
	"github.com/overcast-systems/flywheel/store"
)

const keyPrefix = "cache:"

// LocalCache is the in-process layer consulted before the facade. The
// TinyLFU implementation from go-redis/cache satisfies it.
type LocalCache interface {
	Set(key string, data []byte)
	Get(key string) ([]byte, bool)
	Del(key string)
}

// Cache wraps a client with namespaced, TTL'd read-through caching. A nil
// computed value is effectively not cached: it reads back as a miss.
type Cache struct {
	client *client.Client
	ttl    time.Duration
	local  LocalCache
}

// Option configures optional Cache behavior.
type Option func(*Cache)

// WithLocalCache adds a TinyLFU in-process layer holding up to size entries
// for at most ttl. Local entries are not invalidated by writes from other
// processes; size the ttl accordingly.
func WithLocalCache(size int, ttl time.Duration) Option {
	return func(c *Cache) {
		c.local = rediscache.NewTinyLFU(size, ttl)
	}
}

// New builds a Cache whose Set and Wrap default to the given ttl. A
// non-positive ttl means entries do not expire.
func New(cl *client.Client, ttl time.Duration, opts ...Option) *Cache {
	c := &Cache{client: cl, ttl: ttl}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Get returns the cached value at key, or nil on a miss.
func (c *Cache) Get(ctx context.Context, key string) (any, error) {
	full := keyPrefix + key

	if c.local != nil {
		if raw, ok := c.local.Get(full); ok {
			cacheHits.WithLabelValues("local").Inc()
			return store.Decode(string(raw)), nil
		}
	}

	v, err := c.client.Get(ctx, full)
	if err != nil {
		return nil, err
	}
	if v == nil {
		cacheMisses.Inc()
		return nil, nil
	}
	cacheHits.WithLabelValues("store").Inc()
	c.fillLocal(full, v)
	return v, nil
}

// Set stores value at key with the cache's default TTL.
func (c *Cache) Set(ctx context.Context, key string, value any) error {
	return c.SetTTL(ctx, key, value, c.ttl)
}

// SetTTL stores value at key with an explicit TTL.
func (c *Cache) SetTTL(ctx context.Context, key string, value any, ttl time.Duration) error {
	full := keyPrefix + key
	if err := c.client.Set(ctx, full, value, ttl); err != nil {
		return err
	}
	c.fillLocal(full, value)
	return nil
}

// Del removes key from both layers.
func (c *Cache) Del(ctx context.Context, key string) error {
	full := keyPrefix + key
	if c.local != nil {
		c.local.Del(full)
	}
	return c.client.Del(ctx, full)
}

// Wrap returns the cached value at key, computing and storing it on a miss.
// Concurrent callers missing the same key may compute more than once; the
// last write wins. Compute failures are surfaced and nothing is stored.
func (c *Cache) Wrap(ctx context.Context, key string, compute func(context.Context) (any, error)) (any, error) {
	return c.WrapTTL(ctx, key, c.ttl, compute)
}

// WrapTTL is Wrap with an explicit TTL for the computed value.
func (c *Cache) WrapTTL(ctx context.Context, key string, ttl time.Duration, compute func(context.Context) (any, error)) (any, error) {
	v, err := c.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	if v != nil {
		return v, nil
	}

	computed, err := compute(ctx)
	if err != nil {
		return nil, err
	}
	if err := c.SetTTL(ctx, key, computed, ttl); err != nil {
		return nil, err
	}
	return computed, nil
}

func (c *Cache) fillLocal(fullKey string, value any) {
	if c.local == nil {
		return
	}
	raw, err := store.Encode(value)
	if err != nil {
		return
	}
	c.local.Set(fullKey, []byte(raw))
}
