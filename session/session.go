// Package session stores per-user session state under a "session:" key
// prefix with a sliding TTL. Writes refresh the TTL; Extend refreshes it
// without rewriting the data.
package session

import (
	"context"
	"time"

	"github.com/overcast-systems/flywheel/client"
)

const keyPrefix = "session:"

// DefaultTTL is how long a session lives without being written or
// extended.
const DefaultTTL = 24 * time.Hour

// Store reads and writes sessions through the client facade, so sessions
// keep working in fallback mode (scoped to the process, like everything
// else in the fallback store).
type Store struct {
	client *client.Client
	ttl    time.Duration
}

// New builds a session store. A non-positive ttl selects DefaultTTL.
func New(cl *client.Client, ttl time.Duration) *Store {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Store{client: cl, ttl: ttl}
}

// TTL returns the store's session lifetime.
func (s *Store) TTL() time.Duration { return s.ttl }

// Get returns the session data for id, or nil when the session is absent
// or expired.
func (s *Store) Get(ctx context.Context, id string) (any, error) {
	return s.client.Get(ctx, keyPrefix+id)
}

// Set stores data for id and restarts the session TTL.
func (s *Store) Set(ctx context.Context, id string, data any) error {
	return s.SetTTL(ctx, id, data, s.ttl)
}

// SetTTL stores data for id with an explicit lifetime.
func (s *Store) SetTTL(ctx context.Context, id string, data any, ttl time.Duration) error {
	return s.client.Set(ctx, keyPrefix+id, data, ttl)
}

// Delete removes the session for id. Deleting an absent session is not an
// error.
func (s *Store) Delete(ctx context.Context, id string) error {
	return s.client.Del(ctx, keyPrefix+id)
}

// Extend restarts the session TTL without touching the data, reporting
// whether the session existed.
func (s *Store) Extend(ctx context.Context, id string) (bool, error) {
	return s.ExtendTTL(ctx, id, s.ttl)
}

// ExtendTTL is Extend with an explicit lifetime.
func (s *Store) ExtendTTL(ctx context.Context, id string, ttl time.Duration) (bool, error) {
	return s.client.Expire(ctx, keyPrefix+id, ttl)
}
