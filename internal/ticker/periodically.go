package ticker

import (
	"context"
	"log/slog"
	"time"
)

// Periodically runs task at the given interval until ctx is done. Task
// failures are logged and the loop keeps going: the callers here are
// housekeeping loops (expiry sweeps, reconnect probes) that must outlive
// transient errors.
func Periodically(ctx context.Context, interval time.Duration, name string, task func(context.Context) error) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := task(ctx); err != nil {
				slog.Warn("periodic task failed", "task", name, "err", err)
			}
		}
	}
}
