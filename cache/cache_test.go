package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/overcast-systems/flywheel/client"
)

// testClient returns a fallback-mode client so tests run without a server.
func testClient(t *testing.T) *client.Client {
	t.Helper()
	cfg := client.DefaultConfig()
	cfg.Host = "127.0.0.1"
	cfg.Port = 16379
	cfg.ConnectTimeout = 300 * time.Millisecond
	cfg.SweepInterval = 0
	cl := client.New(cfg)
	require.NoError(t, cl.ConnectWithFallback(context.Background()))
	t.Cleanup(func() { _ = cl.Disconnect() })
	return cl
}

func TestCacheSetGet(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	cl := testClient(t)
	c := New(cl, time.Minute)

	assert.NoError(c.Set(ctx, "user:1", map[string]any{"name": "ada"}))

	v, err := c.Get(ctx, "user:1")
	assert.NoError(err)
	assert.Equal(map[string]any{"name": "ada"}, v)

	// entries are namespaced under the cache prefix
	raw, err := cl.Get(ctx, "cache:user:1")
	assert.NoError(err)
	assert.NotNil(raw)
	bare, _ := cl.Get(ctx, "user:1")
	assert.Nil(bare)

	assert.NoError(c.Del(ctx, "user:1"))
	v, err = c.Get(ctx, "user:1")
	assert.NoError(err)
	assert.Nil(v)
}

func TestCacheTTL(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	c := New(testClient(t), time.Minute)

	assert.NoError(c.SetTTL(ctx, "short", "lived", 60*time.Millisecond))
	v, _ := c.Get(ctx, "short")
	assert.Equal("lived", v)

	time.Sleep(100 * time.Millisecond)
	v, err := c.Get(ctx, "short")
	assert.NoError(err)
	assert.Nil(v)
}

func TestWrapComputesOnlyOnMiss(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	c := New(testClient(t), time.Minute)

	computed := 0
	compute := func(ctx context.Context) (any, error) {
		computed++
		return map[string]any{"expensive": true}, nil
	}

	v, err := c.Wrap(ctx, "report", compute)
	assert.NoError(err)
	assert.Equal(map[string]any{"expensive": true}, v)
	assert.Equal(1, computed)

	// a hit returns the stored value without invoking compute again
	v, err = c.Wrap(ctx, "report", compute)
	assert.NoError(err)
	assert.Equal(map[string]any{"expensive": true}, v)
	assert.Equal(1, computed)

	// after eviction the next Wrap recomputes
	assert.NoError(c.Del(ctx, "report"))
	_, err = c.Wrap(ctx, "report", compute)
	assert.NoError(err)
	assert.Equal(2, computed)
}

func TestWrapTTLExpiryRecomputes(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	c := New(testClient(t), time.Minute)

	computed := 0
	compute := func(ctx context.Context) (any, error) {
		computed++
		return "v", nil
	}

	_, err := c.WrapTTL(ctx, "flash", 60*time.Millisecond, compute)
	assert.NoError(err)
	assert.Equal(1, computed)

	time.Sleep(100 * time.Millisecond)
	_, err = c.WrapTTL(ctx, "flash", 60*time.Millisecond, compute)
	assert.NoError(err)
	assert.Equal(2, computed)
}

func TestWrapComputeError(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	c := New(testClient(t), time.Minute)

	boom := errors.New("upstream down")
	_, err := c.Wrap(ctx, "failing", func(ctx context.Context) (any, error) {
		return nil, boom
	})
	assert.ErrorIs(err, boom)

	// nothing was stored, so a working compute runs next time
	v, err := c.Wrap(ctx, "failing", func(ctx context.Context) (any, error) {
		return "recovered", nil
	})
	assert.NoError(err)
	assert.Equal("recovered", v)
}

func TestLocalCacheLayer(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	cl := testClient(t)
	c := New(cl, time.Minute, WithLocalCache(128, time.Minute))

	assert.NoError(c.Set(ctx, "hot", map[string]any{"n": float64(1)}))

	// remove the backing entry out from under the cache: the local layer
	// still answers
	assert.NoError(cl.Del(ctx, "cache:hot"))
	v, err := c.Get(ctx, "hot")
	assert.NoError(err)
	assert.Equal(map[string]any{"n": float64(1)}, v)

	// Del clears both layers
	assert.NoError(c.Del(ctx, "hot"))
	v, err = c.Get(ctx, "hot")
	assert.NoError(err)
	assert.Nil(v)
}

func TestLocalCacheFilledOnReadThrough(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	cl := testClient(t)
	c := New(cl, time.Minute, WithLocalCache(128, time.Minute))

	// write behind the cache's back, then read through it once
	assert.NoError(cl.Set(ctx, "cache:warm", "toasty", 0))
	v, err := c.Get(ctx, "warm")
	assert.NoError(err)
	assert.Equal("toasty", v)

	// the read filled the local layer
	assert.NoError(cl.Del(ctx, "cache:warm"))
	v, _ = c.Get(ctx, "warm")
	assert.Equal("toasty", v)
}
