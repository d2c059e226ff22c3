// Package ratelimit implements fixed-window rate limiting over the client
// facade's atomic counters. Each (key, window) pair gets its own counter
// under a "rate_limit:" prefix; counters expire shortly after their window
// closes, so idle keys leave nothing behind.
//
// Counting follows the facade's degradation rules: when the remote store is
// unreachable, limits are enforced against the in-process store and are
// therefore per-process rather than global.
package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/overcast-systems/flywheel/client"
)

const keyPrefix = "rate_limit:"

// Result describes one Check against a limiter.
type Result struct {
	// Count is how many checks this key has made in the current window,
	// including this one.
	Count     int64     `json:"count"`
	Limit     int64     `json:"limit"`
	Remaining int64     `json:"remaining"`
	Exceeded  bool      `json:"exceeded"`
	ResetAt   time.Time `json:"resetAt"`
}

// Limiter counts checks per key in fixed windows of the configured length
// and flags everything past max within one window.
type Limiter struct {
	client *client.Client
	window time.Duration
	max    int64

	now func() time.Time
}

// New builds a Limiter allowing max checks per key per window. Degenerate
// arguments are clamped: a non-positive window becomes one second, a
// non-positive max becomes one.
func New(cl *client.Client, window time.Duration, max int64) *Limiter {
	if window <= 0 {
		window = time.Second
	}
	if max <= 0 {
		max = 1
	}
	return &Limiter{client: cl, window: window, max: max, now: time.Now}
}

// Window returns the limiter's window length.
func (l *Limiter) Window() time.Duration { return l.window }

// Max returns the limiter's per-window allowance.
func (l *Limiter) Max() int64 { return l.max }

// Check counts one request for key and reports whether the key is over its
// allowance for the current window. The count itself always happens; an
// exceeded result is advice for the caller, not an error.
func (l *Limiter) Check(ctx context.Context, key string) (Result, error) {
	windowMs := l.window.Milliseconds()
	idx := l.now().UnixMilli() / windowMs
	counterKey := fmt.Sprintf("%s%s:%d", keyPrefix, key, idx)

	count, err := l.client.Incr(ctx, counterKey)
	if err != nil {
		return Result{}, err
	}
	if count == 1 {
		// first hit in the window: expire the counter once the window is
		// over, rounded up to whole seconds
		secs := (windowMs + 999) / 1000
		if _, err := l.client.Expire(ctx, counterKey, time.Duration(secs)*time.Second); err != nil {
			return Result{}, err
		}
	}

	res := Result{
		Count:    count,
		Limit:    l.max,
		Exceeded: count > l.max,
		ResetAt:  time.UnixMilli((idx + 1) * windowMs),
	}
	if remaining := l.max - count; remaining > 0 {
		res.Remaining = remaining
	}
	if res.Exceeded {
		checksTotal.WithLabelValues("exceeded").Inc()
	} else {
		checksTotal.WithLabelValues("allowed").Inc()
	}
	return res, nil
}
