package client

import (
	"log/slog"
	"net"
	"os"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// Config carries the connection settings for a Client. The zero value is
// not useful; start from DefaultConfig or LoadConfigFromEnv.
type Config struct {
	// RedisURL, when set, overrides the individual connection fields
	// (redis://<user>:<pass>@<host>:<port>/<db>). A malformed URL is logged
	// and the field-based settings are used instead; a bad connection
	// string must never prevent startup.
	RedisURL string
	Host     string
	Port     int
	Password string
	DB       int

	// ConnectTimeout bounds the Connect handshake. CommandTimeout bounds
	// individual commands at the transport level; a command that exceeds it
	// fails like any other remote error and triggers fallback.
	ConnectTimeout time.Duration
	CommandTimeout time.Duration

	// MaxConnAttempts is the number of failed Connect calls after which the
	// client forces fallback mode instead of retrying indefinitely.
	MaxConnAttempts int

	// Transport-level command retries. The backoff delay grows per attempt
	// and is capped at MaxRetryBackoff.
	MaxRetries      int
	MinRetryBackoff time.Duration
	MaxRetryBackoff time.Duration

	// SweepInterval paces the fallback store's expired-entry janitor. Zero
	// disables the sweep; expiry still happens lazily on read.
	SweepInterval time.Duration

	Logger *slog.Logger
}

func DefaultConfig() Config {
	return Config{
		Host:            "localhost",
		Port:            6379,
		DB:              0,
		ConnectTimeout:  5 * time.Second,
		CommandTimeout:  3 * time.Second,
		MaxConnAttempts: 5,
		MaxRetries:      3,
		MinRetryBackoff: 100 * time.Millisecond,
		MaxRetryBackoff: 2 * time.Second,
		SweepInterval:   time.Minute,
	}
}

// LoadConfigFromEnv builds a Config from FLYWHEEL_* environment variables,
// starting from DefaultConfig. Timeout variables are integer milliseconds.
// Unset or unparseable variables keep their defaults.
func LoadConfigFromEnv() Config {
	cfg := DefaultConfig()

	if v := os.Getenv("FLYWHEEL_REDIS_URL"); v != "" {
		cfg.RedisURL = v
	} else if v := os.Getenv("REDIS_URL"); v != "" {
		cfg.RedisURL = v
	}
	if v := os.Getenv("FLYWHEEL_REDIS_HOST"); v != "" {
		cfg.Host = v
	}
	if v, err := strconv.Atoi(os.Getenv("FLYWHEEL_REDIS_PORT")); err == nil {
		cfg.Port = v
	}
	if v := os.Getenv("FLYWHEEL_REDIS_PASSWORD"); v != "" {
		cfg.Password = v
	}
	if v, err := strconv.Atoi(os.Getenv("FLYWHEEL_REDIS_DB")); err == nil {
		cfg.DB = v
	}
	if v, err := strconv.Atoi(os.Getenv("FLYWHEEL_CONNECT_TIMEOUT_MS")); err == nil && v > 0 {
		cfg.ConnectTimeout = time.Duration(v) * time.Millisecond
	}
	if v, err := strconv.Atoi(os.Getenv("FLYWHEEL_COMMAND_TIMEOUT_MS")); err == nil && v > 0 {
		cfg.CommandTimeout = time.Duration(v) * time.Millisecond
	}
	if v, err := strconv.Atoi(os.Getenv("FLYWHEEL_MAX_CONN_ATTEMPTS")); err == nil && v > 0 {
		cfg.MaxConnAttempts = v
	}
	return cfg
}

// redisOptions builds a fresh option set for one logical connection. Each
// of the three clients gets its own copy; go-redis fills defaults into the
// struct it is handed, so options are never shared.
func (cfg Config) redisOptions(logger *slog.Logger) *redis.Options {
	var opt *redis.Options
	if cfg.RedisURL != "" {
		parsed, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			logger.Warn("malformed redis URL, using host/port config instead", "err", err)
		} else {
			opt = parsed
		}
	}
	if opt == nil {
		opt = &redis.Options{
			Addr:     net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port)),
			Password: cfg.Password,
			DB:       cfg.DB,
		}
	}
	opt.DialTimeout = cfg.ConnectTimeout
	opt.ReadTimeout = cfg.CommandTimeout
	opt.WriteTimeout = cfg.CommandTimeout
	opt.MaxRetries = cfg.MaxRetries
	opt.MinRetryBackoff = cfg.MinRetryBackoff
	opt.MaxRetryBackoff = cfg.MaxRetryBackoff
	return opt
}
