package store

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestMemStoreBasics(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	s := NewMemStore()

	_, ok, err := s.Get(ctx, "missing")
	assert.NoError(err)
	assert.False(ok)

	assert.NoError(s.Set(ctx, "k1", "v1", 0))
	v, ok, err := s.Get(ctx, "k1")
	assert.NoError(err)
	assert.True(ok)
	assert.Equal("v1", v)

	ok, err = s.Exists(ctx, "k1")
	assert.NoError(err)
	assert.True(ok)

	assert.NoError(s.Set(ctx, "k1", "v2", 0))
	v, _, _ = s.Get(ctx, "k1")
	assert.Equal("v2", v)

	assert.NoError(s.Del(ctx, "k1"))
	_, ok, _ = s.Get(ctx, "k1")
	assert.False(ok)

	// deleting an absent key is not an error
	assert.NoError(s.Del(ctx, "k1"))
}

func TestMemStoreTTL(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	s := NewMemStore()

	assert.NoError(s.Set(ctx, "ephemeral", "x", 50*time.Millisecond))

	v, ok, _ := s.Get(ctx, "ephemeral")
	assert.True(ok)
	assert.Equal("x", v)

	time.Sleep(80 * time.Millisecond)

	_, ok, _ = s.Get(ctx, "ephemeral")
	assert.False(ok)
	ok, _ = s.Exists(ctx, "ephemeral")
	assert.False(ok)

	// expired entry was dropped on read, not just hidden
	assert.Equal(0, s.Len())
}

func TestMemStoreExpire(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	s := NewMemStore()

	ok, err := s.Expire(ctx, "missing", time.Minute)
	assert.NoError(err)
	assert.False(ok)

	assert.NoError(s.Set(ctx, "k", "v", 0))
	ok, err = s.Expire(ctx, "k", 50*time.Millisecond)
	assert.NoError(err)
	assert.True(ok)

	time.Sleep(80 * time.Millisecond)
	_, ok, _ = s.Get(ctx, "k")
	assert.False(ok)

	// a non-positive ttl removes the key outright
	assert.NoError(s.Set(ctx, "k2", "v", 0))
	ok, err = s.Expire(ctx, "k2", 0)
	assert.NoError(err)
	assert.True(ok)
	ok, _ = s.Exists(ctx, "k2")
	assert.False(ok)
}

func TestMemStoreIncr(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	s := NewMemStore()

	for want := int64(1); want <= 3; want++ {
		n, err := s.Incr(ctx, "counter")
		assert.NoError(err)
		assert.Equal(want, n)
	}

	// non-numeric contents restart the count from zero
	assert.NoError(s.Set(ctx, "counter", "not a number", 0))
	n, err := s.Incr(ctx, "counter")
	assert.NoError(err)
	assert.Equal(int64(1), n)
}

func TestMemStoreIncrKeepsTTL(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	s := NewMemStore()

	assert.NoError(s.Set(ctx, "windowed", "5", 60*time.Millisecond))
	n, err := s.Incr(ctx, "windowed")
	assert.NoError(err)
	assert.Equal(int64(6), n)

	time.Sleep(90 * time.Millisecond)
	_, ok, _ := s.Get(ctx, "windowed")
	assert.False(ok)
}

func TestMemStoreHash(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	s := NewMemStore()

	_, ok, err := s.HGet(ctx, "h", "f")
	assert.NoError(err)
	assert.False(ok)

	assert.NoError(s.HSet(ctx, "h", "f1", "v1"))
	assert.NoError(s.HSet(ctx, "h", "f2", "v2"))

	v, ok, err := s.HGet(ctx, "h", "f1")
	assert.NoError(err)
	assert.True(ok)
	assert.Equal("v1", v)

	_, ok, _ = s.HGet(ctx, "h", "f3")
	assert.False(ok)

	// field overwrite
	assert.NoError(s.HSet(ctx, "h", "f1", "v1b"))
	v, _, _ = s.HGet(ctx, "h", "f1")
	assert.Equal("v1b", v)
}

func TestMemStoreList(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	s := NewMemStore()

	_, ok, err := s.RPop(ctx, "q")
	assert.NoError(err)
	assert.False(ok)

	n, err := s.LPush(ctx, "q", "first")
	assert.NoError(err)
	assert.Equal(int64(1), n)
	n, err = s.LPush(ctx, "q", "second")
	assert.NoError(err)
	assert.Equal(int64(2), n)

	// LPush + RPop behaves as a FIFO queue
	v, ok, err := s.RPop(ctx, "q")
	assert.NoError(err)
	assert.True(ok)
	assert.Equal("first", v)
	v, ok, _ = s.RPop(ctx, "q")
	assert.True(ok)
	assert.Equal("second", v)

	// popping the last element removes the key entirely
	ok, _ = s.Exists(ctx, "q")
	assert.False(ok)
	assert.Equal(0, s.Len())
}

func TestMemStoreSweep(t *testing.T) {
	assert := assert.New(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s := NewMemStore()

	for i := 0; i < 5; i++ {
		assert.NoError(s.Set(ctx, fmt.Sprintf("gone-%d", i), "x", 30*time.Millisecond))
	}
	assert.NoError(s.Set(ctx, "keeper", "x", 0))
	assert.Equal(6, s.Len())

	s.StartJanitor(ctx, 20*time.Millisecond)
	time.Sleep(150 * time.Millisecond)

	// expired entries are gone without any reads touching them
	assert.Equal(1, s.Len())
	v, ok, _ := s.Get(ctx, "keeper")
	assert.True(ok)
	assert.Equal("x", v)
}

func TestMemStoreConcurrentIncr(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	s := NewMemStore()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				_, err := s.Incr(ctx, "shared")
				assert.NoError(err)
			}
		}()
	}
	wg.Wait()

	v, ok, _ := s.Get(ctx, "shared")
	assert.True(ok)
	assert.Equal("1000", v)
}

func TestMemStoreFlush(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	s := NewMemStore()

	assert.NoError(s.Set(ctx, "a", "1", 0))
	assert.NoError(s.Set(ctx, "b", "2", 0))
	assert.Equal(2, s.Len())

	s.Flush()
	assert.Equal(0, s.Len())
	_, ok, _ := s.Get(ctx, "a")
	assert.False(ok)
}
