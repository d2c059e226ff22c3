package main

import (
	"context"
	"fmt"
	"os"
	"sync/atomic"
	"time"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/carlmjohnson/versioninfo"
	_ "github.com/joho/godotenv/autoload"
	cli "github.com/urfave/cli/v2"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/overcast-systems/flywheel/client"
	"github.com/overcast-systems/flywheel/ratelimit"
)

func main() {
	run(os.Args)
}

func run(args []string) {
	app := cli.App{
		Name:    "flywheel-bench",
		Usage:   "load generation tool for the cache and coordination layer",
		Version: versioninfo.Short(),
	}

	app.Flags = []cli.Flag{
		&cli.StringFlag{
			Name:    "redis-url",
			Usage:   "connection string for the remote store",
			Value:   "redis://localhost:6379/0",
			EnvVars: []string{"FLYWHEEL_REDIS_URL", "REDIS_URL"},
		},
		&cli.BoolFlag{
			Name: "quiet",
		},
	}

	app.Commands = []*cli.Command{
		kvCmd,
		publishCmd,
		ratelimitCmd,
	}

	app.RunAndExitOnError()
}

func newBenchClient(cctx *cli.Context) (*client.Client, error) {
	cfg := client.DefaultConfig()
	cfg.RedisURL = cctx.String("redis-url")
	cl := client.New(cfg)
	if err := cl.ConnectWithFallback(context.Background()); err != nil {
		return nil, err
	}
	fmt.Println("mode:", cl.Mode())
	return cl, nil
}

// fakeRecord builds a plausible payload so serialization cost is realistic.
func fakeRecord() map[string]any {
	return map[string]any{
		"id":    gofakeit.UUID(),
		"name":  gofakeit.Name(),
		"email": gofakeit.Email(),
		"score": gofakeit.Number(1, 100_000),
		"bio":   gofakeit.Sentence(12),
	}
}

var kvCmd = &cli.Command{
	Name:  "kv",
	Usage: "set/get round trips against the key-value surface",
	Flags: []cli.Flag{
		&cli.IntFlag{
			Name:  "count",
			Usage: "operations per worker",
			Value: 1000,
		},
		&cli.IntFlag{
			Name:  "concurrent",
			Value: 4,
		},
		&cli.Float64Flag{
			Name:  "rate",
			Usage: "max round trips per second across all workers (0 for unlimited)",
		},
		&cli.DurationFlag{
			Name:  "ttl",
			Usage: "TTL applied to written keys",
			Value: time.Minute,
		},
	},
	Action: func(cctx *cli.Context) error {
		cl, err := newBenchClient(cctx)
		if err != nil {
			return err
		}
		defer cl.Disconnect()

		count := cctx.Int("count")
		concurrent := cctx.Int("concurrent")
		ttl := cctx.Duration("ttl")
		quiet := cctx.Bool("quiet")

		var limiter *rate.Limiter
		if r := cctx.Float64("rate"); r > 0 {
			limiter = rate.NewLimiter(rate.Limit(r), 1)
		}

		var ok, misses atomic.Int64
		start := time.Now()

		eg, ctx := errgroup.WithContext(context.Background())
		for con := 0; con < concurrent; con++ {
			worker := con
			eg.Go(func() error {
				for i := 0; i < count; i++ {
					if limiter != nil {
						if err := limiter.Wait(ctx); err != nil {
							return err
						}
					}

					key := fmt.Sprintf("bench:kv:%d:%d", worker, i)
					if err := cl.Set(ctx, key, fakeRecord(), ttl); err != nil {
						return fmt.Errorf("worker %d op %d: %w", worker, i, err)
					}
					got, err := cl.Get(ctx, key)
					if err != nil {
						return fmt.Errorf("worker %d op %d: %w", worker, i, err)
					}
					if got == nil {
						misses.Add(1)
					} else {
						ok.Add(1)
					}
					if !quiet && i > 0 && i%1000 == 0 {
						fmt.Printf("worker %d: %d ops\n", worker, i)
					}
				}
				return nil
			})
		}
		if err := eg.Wait(); err != nil {
			return err
		}

		elapsed := time.Since(start)
		total := int64(count * concurrent)
		fmt.Printf("kv: %d round trips in %s (%.1f ops/sec), hits=%d misses=%d mode=%s\n",
			total, elapsed.Round(time.Millisecond), float64(total)/elapsed.Seconds(),
			ok.Load(), misses.Load(), cl.Mode())
		return nil
	},
}

var publishCmd = &cli.Command{
	Name:  "publish",
	Usage: "fan messages through a channel and count deliveries",
	Flags: []cli.Flag{
		&cli.IntFlag{
			Name:  "count",
			Usage: "messages per worker",
			Value: 1000,
		},
		&cli.IntFlag{
			Name:  "concurrent",
			Value: 2,
		},
		&cli.Float64Flag{
			Name:  "rate",
			Usage: "max publishes per second across all workers (0 for unlimited)",
		},
		&cli.StringFlag{
			Name:  "channel",
			Value: "bench:events",
		},
	},
	Action: func(cctx *cli.Context) error {
		cl, err := newBenchClient(cctx)
		if err != nil {
			return err
		}
		defer cl.Disconnect()

		count := cctx.Int("count")
		concurrent := cctx.Int("concurrent")
		channel := cctx.String("channel")

		var received atomic.Int64
		unsubscribe, err := cl.Subscribe(context.Background(), channel, func(_ string, _ any) {
			received.Add(1)
		})
		if err != nil {
			return err
		}
		defer unsubscribe()

		var limiter *rate.Limiter
		if r := cctx.Float64("rate"); r > 0 {
			limiter = rate.NewLimiter(rate.Limit(r), 1)
		}

		var delivered, dropped atomic.Int64
		start := time.Now()

		eg, ctx := errgroup.WithContext(context.Background())
		for con := 0; con < concurrent; con++ {
			eg.Go(func() error {
				for i := 0; i < count; i++ {
					if limiter != nil {
						if err := limiter.Wait(ctx); err != nil {
							return err
						}
					}
					n, err := cl.Publish(ctx, channel, fakeRecord())
					if err != nil {
						return err
					}
					if n > 0 {
						delivered.Add(1)
					} else {
						dropped.Add(1)
					}
				}
				return nil
			})
		}
		if err := eg.Wait(); err != nil {
			return err
		}

		// let in-flight deliveries land before reading the counter
		time.Sleep(250 * time.Millisecond)

		elapsed := time.Since(start)
		total := int64(count * concurrent)
		fmt.Printf("publish: %d messages in %s (%.1f msg/sec), delivered=%d dropped=%d received=%d mode=%s\n",
			total, elapsed.Round(time.Millisecond), float64(total)/elapsed.Seconds(),
			delivered.Load(), dropped.Load(), received.Load(), cl.Mode())
		return nil
	},
}

var ratelimitCmd = &cli.Command{
	Name:  "ratelimit",
	Usage: "hammer one rate limit key and report outcomes",
	Flags: []cli.Flag{
		&cli.IntFlag{
			Name:  "count",
			Usage: "checks per worker",
			Value: 1000,
		},
		&cli.IntFlag{
			Name:  "concurrent",
			Value: 4,
		},
		&cli.DurationFlag{
			Name:  "window",
			Value: time.Second,
		},
		&cli.Int64Flag{
			Name:  "max",
			Usage: "allowance per window",
			Value: 100,
		},
	},
	Action: func(cctx *cli.Context) error {
		cl, err := newBenchClient(cctx)
		if err != nil {
			return err
		}
		defer cl.Disconnect()

		count := cctx.Int("count")
		concurrent := cctx.Int("concurrent")
		lim := ratelimit.New(cl, cctx.Duration("window"), cctx.Int64("max"))

		var allowed, exceeded atomic.Int64
		start := time.Now()

		eg, ctx := errgroup.WithContext(context.Background())
		for con := 0; con < concurrent; con++ {
			eg.Go(func() error {
				for i := 0; i < count; i++ {
					res, err := lim.Check(ctx, "bench")
					if err != nil {
						return err
					}
					if res.Exceeded {
						exceeded.Add(1)
					} else {
						allowed.Add(1)
					}
				}
				return nil
			})
		}
		if err := eg.Wait(); err != nil {
			return err
		}

		elapsed := time.Since(start)
		total := int64(count * concurrent)
		fmt.Printf("ratelimit: %d checks in %s (%.1f checks/sec), allowed=%d exceeded=%d mode=%s\n",
			total, elapsed.Round(time.Millisecond), float64(total)/elapsed.Seconds(),
			allowed.Load(), exceeded.Load(), cl.Mode())
		return nil
	},
}
