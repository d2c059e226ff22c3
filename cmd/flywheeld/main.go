package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/carlmjohnson/versioninfo"
	_ "github.com/joho/godotenv/autoload"
	cli "github.com/urfave/cli/v2"
	_ "go.uber.org/automaxprocs"
)

func main() {
	if err := run(os.Args); err != nil {
		slog.Error("exiting", "err", err)
		os.Exit(-1)
	}
}

func run(args []string) error {

	app := cli.App{
		Name:    "flywheeld",
		Usage:   "resilient cache and coordination daemon",
		Version: versioninfo.Short(),
	}

	app.Commands = []*cli.Command{
		serveCmd,
	}

	return app.Run(args)
}

var serveCmd = &cli.Command{
	Name:  "serve",
	Usage: "run the HTTP API",
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:    "redis-url",
			Usage:   "connection string for the remote store (redis://<user>:<pass>@<host>:<port>/<db>)",
			Value:   "redis://localhost:6379/0",
			EnvVars: []string{"FLYWHEEL_REDIS_URL", "REDIS_URL"},
		},
		&cli.StringFlag{
			Name:    "bind",
			Usage:   "IP or address, and port, to listen on for the HTTP API",
			Value:   ":8210",
			EnvVars: []string{"FLYWHEEL_BIND"},
		},
		&cli.StringFlag{
			Name:    "metrics-listen",
			Usage:   "IP or address, and port, to listen on for metrics",
			Value:   ":8211",
			EnvVars: []string{"FLYWHEEL_METRICS_LISTEN"},
		},
		&cli.IntFlag{
			Name:    "connect-timeout-ms",
			Usage:   "remote store handshake timeout, in milliseconds",
			Value:   5000,
			EnvVars: []string{"FLYWHEEL_CONNECT_TIMEOUT_MS"},
		},
		&cli.IntFlag{
			Name:    "command-timeout-ms",
			Usage:   "remote store per-command timeout, in milliseconds",
			Value:   3000,
			EnvVars: []string{"FLYWHEEL_COMMAND_TIMEOUT_MS"},
		},
		&cli.IntFlag{
			Name:    "max-conn-attempts",
			Usage:   "failed connects before the client stops waiting on the remote store",
			Value:   5,
			EnvVars: []string{"FLYWHEEL_MAX_CONN_ATTEMPTS"},
		},
		&cli.DurationFlag{
			Name:    "reconnect-interval",
			Usage:   "how often to retry the remote store while degraded (0 disables)",
			Value:   15 * time.Second,
			EnvVars: []string{"FLYWHEEL_RECONNECT_INTERVAL"},
		},
		&cli.DurationFlag{
			Name:    "cache-ttl",
			Usage:   "default TTL for entries written through the cache endpoints",
			Value:   5 * time.Minute,
			EnvVars: []string{"FLYWHEEL_CACHE_TTL"},
		},
		&cli.IntFlag{
			Name:    "local-cache-size",
			Usage:   "entries held by the in-process cache layer (0 disables)",
			Value:   0,
			EnvVars: []string{"FLYWHEEL_LOCAL_CACHE_SIZE"},
		},
		&cli.DurationFlag{
			Name:    "session-ttl",
			Usage:   "session lifetime",
			Value:   24 * time.Hour,
			EnvVars: []string{"FLYWHEEL_SESSION_TTL"},
		},
		&cli.DurationFlag{
			Name:    "ratelimit-window",
			Usage:   "default window for rate limit checks",
			Value:   time.Minute,
			EnvVars: []string{"FLYWHEEL_RATELIMIT_WINDOW"},
		},
		&cli.Int64Flag{
			Name:    "ratelimit-max",
			Usage:   "default allowance per rate limit window",
			Value:   120,
			EnvVars: []string{"FLYWHEEL_RATELIMIT_MAX"},
		},
		&cli.IntFlag{
			Name:    "ingress-limit-per-sec",
			Usage:   "per-IP request allowance per second on the API (0 disables)",
			Value:   50,
			EnvVars: []string{"FLYWHEEL_INGRESS_LIMIT_PER_SEC"},
		},
		&cli.StringFlag{
			Name:    "log-level",
			Usage:   "log verbosity (debug, info, warn, error)",
			Value:   "info",
			EnvVars: []string{"FLYWHEEL_LOG_LEVEL", "LOG_LEVEL"},
		},
	},
	Action: func(cctx *cli.Context) error {
		logger := configLogger(cctx, os.Stdout)
		configOTEL("flywheeld")

		srv, err := NewServer(ServerConfig{
			RedisURL:           cctx.String("redis-url"),
			Bind:               cctx.String("bind"),
			ConnectTimeout:     time.Duration(cctx.Int("connect-timeout-ms")) * time.Millisecond,
			CommandTimeout:     time.Duration(cctx.Int("command-timeout-ms")) * time.Millisecond,
			MaxConnAttempts:    cctx.Int("max-conn-attempts"),
			ReconnectInterval:  cctx.Duration("reconnect-interval"),
			CacheTTL:           cctx.Duration("cache-ttl"),
			LocalCacheSize:     cctx.Int("local-cache-size"),
			SessionTTL:         cctx.Duration("session-ttl"),
			RateLimitWindow:    cctx.Duration("ratelimit-window"),
			RateLimitMax:       cctx.Int64("ratelimit-max"),
			IngressLimitPerSec: cctx.Int("ingress-limit-per-sec"),
			Logger:             logger,
		})
		if err != nil {
			return err
		}

		go func() {
			if err := srv.RunMetrics(cctx.String("metrics-listen")); err != nil {
				slog.Error("failed to start metrics endpoint", "error", err)
				panic(fmt.Errorf("failed to start metrics endpoint: %w", err))
			}
		}()

		if err := srv.RunAPI(); err != nil {
			return fmt.Errorf("failed to run flywheel daemon: %w", err)
		}
		return nil
	},
}

func configLogger(cctx *cli.Context, writer io.Writer) *slog.Logger {
	var level slog.Level
	switch strings.ToLower(cctx.String("log-level")) {
	case "error":
		level = slog.LevelError
	case "warn":
		level = slog.LevelWarn
	case "info":
		level = slog.LevelInfo
	case "debug":
		level = slog.LevelDebug
	default:
		level = slog.LevelInfo
	}
	logger := slog.New(slog.NewJSONHandler(writer, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)
	return logger
}
