package client

import (
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	assert := assert.New(t)
	cfg := DefaultConfig()

	assert.Equal("localhost", cfg.Host)
	assert.Equal(6379, cfg.Port)
	assert.Equal(5, cfg.MaxConnAttempts)
	assert.Equal(5*time.Second, cfg.ConnectTimeout)
	assert.Equal(3*time.Second, cfg.CommandTimeout)
}

func TestLoadConfigFromEnv(t *testing.T) {
	assert := assert.New(t)

	t.Setenv("FLYWHEEL_REDIS_HOST", "cache.internal")
	t.Setenv("FLYWHEEL_REDIS_PORT", "6380")
	t.Setenv("FLYWHEEL_REDIS_PASSWORD", "hunter2")
	t.Setenv("FLYWHEEL_REDIS_DB", "3")
	t.Setenv("FLYWHEEL_CONNECT_TIMEOUT_MS", "1500")
	t.Setenv("FLYWHEEL_COMMAND_TIMEOUT_MS", "250")
	t.Setenv("FLYWHEEL_MAX_CONN_ATTEMPTS", "7")

	cfg := LoadConfigFromEnv()
	assert.Equal("cache.internal", cfg.Host)
	assert.Equal(6380, cfg.Port)
	assert.Equal("hunter2", cfg.Password)
	assert.Equal(3, cfg.DB)
	assert.Equal(1500*time.Millisecond, cfg.ConnectTimeout)
	assert.Equal(250*time.Millisecond, cfg.CommandTimeout)
	assert.Equal(7, cfg.MaxConnAttempts)
}

func TestLoadConfigFromEnvIgnoresGarbage(t *testing.T) {
	assert := assert.New(t)

	t.Setenv("FLYWHEEL_REDIS_PORT", "not-a-port")
	t.Setenv("FLYWHEEL_CONNECT_TIMEOUT_MS", "-100")

	cfg := LoadConfigFromEnv()
	assert.Equal(DefaultConfig().Port, cfg.Port)
	assert.Equal(DefaultConfig().ConnectTimeout, cfg.ConnectTimeout)
}

func TestRedisOptionsFromURL(t *testing.T) {
	assert := assert.New(t)

	cfg := DefaultConfig()
	cfg.RedisURL = "redis://:secret@cache.internal:6380/2"
	opt := cfg.redisOptions(slog.Default())
	require.NotNil(t, opt)
	assert.Equal("cache.internal:6380", opt.Addr)
	assert.Equal("secret", opt.Password)
	assert.Equal(2, opt.DB)
	assert.Equal(cfg.ConnectTimeout, opt.DialTimeout)
	assert.Equal(cfg.CommandTimeout, opt.ReadTimeout)
}

func TestRedisOptionsMalformedURL(t *testing.T) {
	assert := assert.New(t)

	// a bad URL falls back to the field-based settings instead of failing
	cfg := DefaultConfig()
	cfg.RedisURL = "http://not-a-redis-url"
	cfg.Host = "fallback.internal"
	cfg.Port = 7000
	opt := cfg.redisOptions(slog.Default())
	require.NotNil(t, opt)
	assert.Equal("fallback.internal:7000", opt.Addr)
}
