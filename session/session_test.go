package session

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/overcast-systems/flywheel/client"
)

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

func TestSessionRoundTrip(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	cl := testClient(t)
	s := New(cl, 0)
	assert.Equal(DefaultTTL, s.TTL())

	data := map[string]any{"userId": float64(42), "role": "admin"}
	assert.NoError(s.Set(ctx, "sess-1", data))

	got, err := s.Get(ctx, "sess-1")
	assert.NoError(err)
	assert.Equal(data, got)

	// sessions are namespaced away from plain keys
	bare, _ := cl.Get(ctx, "sess-1")
	assert.Nil(bare)

	assert.NoError(s.Delete(ctx, "sess-1"))
	got, err = s.Get(ctx, "sess-1")
	assert.NoError(err)
	assert.Nil(got)

	assert.NoError(s.Delete(ctx, "sess-1"))
}

func TestSessionExpiry(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	s := New(testClient(t), time.Minute)

	assert.NoError(s.SetTTL(ctx, "blink", "here", 60*time.Millisecond))
	got, _ := s.Get(ctx, "blink")
	assert.Equal("here", got)

	time.Sleep(100 * time.Millisecond)
	got, err := s.Get(ctx, "blink")
	assert.NoError(err)
	assert.Nil(got)
}

func TestSessionExtend(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	s := New(testClient(t), time.Minute)

	ok, err := s.Extend(ctx, "nobody")
	assert.NoError(err)
	assert.False(ok)

	// a session about to lapse stays alive after an extend
	assert.NoError(s.SetTTL(ctx, "sess-2", "data", 80*time.Millisecond))
	ok, err = s.ExtendTTL(ctx, "sess-2", time.Minute)
	assert.NoError(err)
	assert.True(ok)

	time.Sleep(120 * time.Millisecond)
	got, err := s.Get(ctx, "sess-2")
	assert.NoError(err)
	assert.Equal("data", got)
}
