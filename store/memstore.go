package store

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/puzpuzpuz/xsync/v3"

	"github.com/overcast-systems/flywheel/internal/ticker"
)

// entry is a single stored value. A zero expiresAt means no expiry.
type entry struct {
	value     string
	expiresAt time.Time
}

func (e entry) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && now.After(e.expiresAt)
}

// MemStore is the in-process substitute for the remote store, used while
// degraded. Values live in a concurrent map; TTLs are emulated by lazy
// expiry on read plus an optional background sweep. Contents do not survive
// process restart.
//
// Every operation is total: MemStore methods never return a non-nil error.
// The error returns exist only to satisfy the Store interface, which keeps
// the facade's dispatch code identical for both backends.
type MemStore struct {
	data *xsync.MapOf[string, entry]
}

var _ Store = (*MemStore)(nil)

func NewMemStore() *MemStore {
	return &MemStore{
		data: xsync.NewMapOf[string, entry](),
	}
}

// StartJanitor launches a background sweep that deletes expired entries
// every interval, so tombstones from short-lived keys (rate-limit counters
// especially) do not accumulate between reads. Stops when ctx is done.
func (s *MemStore) StartJanitor(ctx context.Context, interval time.Duration) {
	go ticker.Periodically(ctx, interval, "fallback-store-sweep", s.sweep)
}

func (s *MemStore) sweep(ctx context.Context) error {
	now := time.Now()
	var swept int
	s.data.Range(func(key string, e entry) bool {
		if e.expired(now) {
			// Re-check under Compute: the key may have been re-set since
			// Range observed it.
			s.data.Compute(key, func(cur entry, loaded bool) (entry, bool) {
				if loaded && cur.expired(now) {
					swept++
				}
				return cur, !loaded || cur.expired(now)
			})
		}
		return true
	})
	if swept > 0 {
		sweptEntries.Add(float64(swept))
	}
	return nil
}

func (s *MemStore) Get(ctx context.Context, key string) (string, bool, error) {
	var (
		val string
		ok  bool
	)
	s.data.Compute(key, func(e entry, loaded bool) (entry, bool) {
		if !loaded || e.expired(time.Now()) {
			// Deleting an absent key is a no-op; an expired one is reaped.
			return e, true
		}
		val, ok = e.value, true
		return e, false
	})
	return val, ok, nil
}

func (s *MemStore) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	var exp time.Time
	if ttl > 0 {
		exp = time.Now().Add(ttl)
	}
	s.data.Store(key, entry{value: value, expiresAt: exp})
	return nil
}

func (s *MemStore) Del(ctx context.Context, key string) error {
	s.data.Delete(key)
	return nil
}

func (s *MemStore) Exists(ctx context.Context, key string) (bool, error) {
	var ok bool
	s.data.Compute(key, func(e entry, loaded bool) (entry, bool) {
		if !loaded || e.expired(time.Now()) {
			return e, true
		}
		ok = true
		return e, false
	})
	return ok, nil
}

func (s *MemStore) Expire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	var ok bool
	s.data.Compute(key, func(e entry, loaded bool) (entry, bool) {
		if !loaded || e.expired(time.Now()) {
			return e, true
		}
		ok = true
		if ttl <= 0 {
			// Matches the remote store: a non-positive TTL deletes the key.
			return e, true
		}
		e.expiresAt = time.Now().Add(ttl)
		return e, false
	})
	return ok, nil
}

func (s *MemStore) Incr(ctx context.Context, key string) (int64, error) {
	var n int64
	s.data.Compute(key, func(e entry, loaded bool) (entry, bool) {
		if !loaded || e.expired(time.Now()) {
			e = entry{}
		}
		// Absent, expired, or non-numeric values count from zero.
		n, _ = strconv.ParseInt(e.value, 10, 64)
		n++
		e.value = strconv.FormatInt(n, 10)
		return e, false
	})
	return n, nil
}

func (s *MemStore) HSet(ctx context.Context, key, field, value string) error {
	s.data.Compute(key, func(e entry, loaded bool) (entry, bool) {
		if !loaded || e.expired(time.Now()) {
			e = entry{}
		}
		fields := map[string]string{}
		// Unparseable existing values are treated as an empty hash.
		_ = json.Unmarshal([]byte(e.value), &fields)
		fields[field] = value
		b, err := json.Marshal(fields)
		if err != nil {
			return e, !loaded
		}
		e.value = string(b)
		return e, false
	})
	return nil
}

func (s *MemStore) HGet(ctx context.Context, key, field string) (string, bool, error) {
	raw, ok, _ := s.Get(ctx, key)
	if !ok {
		return "", false, nil
	}
	fields := map[string]string{}
	if err := json.Unmarshal([]byte(raw), &fields); err != nil {
		return "", false, nil
	}
	val, ok := fields[field]
	return val, ok, nil
}

func (s *MemStore) LPush(ctx context.Context, key, value string) (int64, error) {
	var n int64
	s.data.Compute(key, func(e entry, loaded bool) (entry, bool) {
		if !loaded || e.expired(time.Now()) {
			e = entry{}
		}
		var list []string
		// Unparseable existing values are treated as an empty list.
		_ = json.Unmarshal([]byte(e.value), &list)
		list = append([]string{value}, list...)
		n = int64(len(list))
		b, err := json.Marshal(list)
		if err != nil {
			return e, !loaded
		}
		e.value = string(b)
		return e, false
	})
	return n, nil
}

func (s *MemStore) RPop(ctx context.Context, key string) (string, bool, error) {
	var (
		val string
		ok  bool
	)
	s.data.Compute(key, func(e entry, loaded bool) (entry, bool) {
		if !loaded || e.expired(time.Now()) {
			return e, true
		}
		var list []string
		if err := json.Unmarshal([]byte(e.value), &list); err != nil || len(list) == 0 {
			return e, false
		}
		val, ok = list[len(list)-1], true
		list = list[:len(list)-1]
		if len(list) == 0 {
			// The remote store removes a list key once it empties.
			return e, true
		}
		b, err := json.Marshal(list)
		if err != nil {
			return e, false
		}
		e.value = string(b)
		return e, false
	})
	return val, ok, nil
}

// Len reports the number of stored entries, including any expired entries
// the janitor has not reaped yet.
func (s *MemStore) Len() int {
	return s.data.Size()
}

// Flush drops all entries.
func (s *MemStore) Flush() {
	s.data.Clear()
}
