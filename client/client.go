// Package client provides the resilient access point for the cache and
// coordination layer. A Client fronts a remote Redis store and an
// in-process fallback store; when the remote store is unreachable or an
// operation against it fails, the client degrades to the fallback store
// and keeps serving. Callers never see a remote failure from the key-value
// surface.
//
// The degradation is sticky: once in fallback mode the client stays there
// until an explicit Connect succeeds, so a flapping server cannot bounce
// traffic between backends.
package client

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/overcast-systems/flywheel/store"
)

// Mode is the client's connection state. The zero value is
// ModeDisconnected; ModeConnected is only entered after a successful
// handshake, and ModeFallback persists until an explicit Connect succeeds.
type Mode int32

const (
	ModeDisconnected Mode = iota
	ModeConnected
	ModeFallback
)

func (m Mode) String() string {
	switch m {
	case ModeConnected:
		return "connected"
	case ModeFallback:
		return "fallback"
	default:
		return "disconnected"
	}
}

// Health status values reported by HealthCheck.
const (
	StatusHealthy   = "healthy"
	StatusUnhealthy = "unhealthy"
	StatusFallback  = "fallback"
)

// Health is a point-in-time liveness report.
type Health struct {
	Status       string        `json:"status"`
	Mode         string        `json:"mode"`
	IsConnected  bool          `json:"isConnected"`
	ResponseTime time.Duration `json:"responseTime"`
	Timestamp    time.Time     `json:"timestamp"`
}

// Stats is a side-effect-free snapshot of connection and storage state.
type Stats struct {
	Status              string `json:"status"`
	IsConnected         bool   `json:"isConnected"`
	FallbackMode        bool   `json:"fallbackMode"`
	ConnectionAttempts  int    `json:"connectionAttempts"`
	FallbackStorageSize int    `json:"fallbackStorageSize"`
}

// Client is the facade over the remote and fallback stores. It is safe for
// concurrent use; the mode word is read lock-free on every operation.
type Client struct {
	cfg    Config
	logger *slog.Logger

	mode     atomic.Int32
	attempts atomic.Int32

	mem *store.MemStore

	// mu guards Connect/Disconnect transitions and the connection fields
	// below. Operations read rdb/remote without the lock: the pointers are
	// published before the mode word flips to connected and are never
	// nil'd afterwards, only replaced.
	mu     sync.Mutex
	rdb    *redis.Client
	pub    *redis.Client
	sub    *redis.Client
	remote *store.RedisStore

	janitorCancel context.CancelFunc

	// subscriber dispatch state, see pubsub.go
	subMu     sync.Mutex
	nextSubID uint64
	handlers  map[string][]*subscription
	pubsub    *redis.PubSub
}

// New builds a Client in disconnected mode. No network activity happens
// until Connect or ConnectWithFallback; key-value operations issued before
// that are served by the fallback store.
func New(cfg Config) *Client {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.MaxConnAttempts <= 0 {
		cfg.MaxConnAttempts = DefaultConfig().MaxConnAttempts
	}

	c := &Client{
		cfg:      cfg,
		logger:   logger.With("component", "flywheel"),
		mem:      store.NewMemStore(),
		handlers: make(map[string][]*subscription),
	}
	c.startJanitor()
	return c
}

func (c *Client) startJanitor() {
	if c.cfg.SweepInterval <= 0 || c.janitorCancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	c.janitorCancel = cancel
	c.mem.StartJanitor(ctx, c.cfg.SweepInterval)
}

// Mode returns the current connection mode.
func (c *Client) Mode() Mode {
	return Mode(c.mode.Load())
}

func (c *Client) setMode(m Mode) {
	old := Mode(c.mode.Swap(int32(m)))
	if old == m {
		return
	}
	if m == ModeFallback {
		fallbackTransitions.Inc()
		fallbackModeGauge.Set(1)
	} else {
		fallbackModeGauge.Set(0)
	}
	c.logger.Info("mode transition", "from", old.String(), "to", m.String())
}

// degrade flips a connected client into fallback mode after a remote
// operation failure. In-flight remote operations are unaffected; everything
// issued after the flip dispatches to the fallback store. The swap is a
// compare-and-swap so stragglers finishing after an explicit Disconnect or
// reconnect cannot clobber the newer state.
func (c *Client) degrade(op string, err error) {
	remoteOpFailures.WithLabelValues(op).Inc()
	if !c.mode.CompareAndSwap(int32(ModeConnected), int32(ModeFallback)) {
		return
	}
	fallbackTransitions.Inc()
	fallbackModeGauge.Set(1)
	c.logger.Warn("remote store operation failed, degrading to fallback", "op", op, "err", err)
}

// Connect establishes the three logical connections to the remote store
// (general commands, publisher, subscriber) and verifies liveness with a
// ping. It is idempotent while connected, and it is the only path back to
// connected mode once the client has degraded.
//
// On failure the attempt counter is incremented and a *ConnectionError is
// returned. Reaching MaxConnAttempts, or an immediate connection-refused or
// unknown-host error, forces fallback mode so later operations stop waiting
// on a store that is not there.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.Mode() == ModeConnected {
		return nil
	}

	connectAttempts.Inc()

	newClient := func() *redis.Client {
		opt := c.cfg.redisOptions(c.logger)
		opt.OnConnect = func(ctx context.Context, cn *redis.Conn) error {
			c.logger.Debug("redis connection established", "addr", opt.Addr)
			return nil
		}
		return redis.NewClient(opt)
	}
	rdb := newClient()
	pub := newClient()
	sub := newClient()

	pingCtx := ctx
	if c.cfg.ConnectTimeout > 0 {
		var cancel context.CancelFunc
		pingCtx, cancel = context.WithTimeout(ctx, c.cfg.ConnectTimeout)
		defer cancel()
	}

	if err := rdb.Ping(pingCtx).Err(); err != nil {
		rdb.Close()
		pub.Close()
		sub.Close()
		attempts := int(c.attempts.Add(1))
		switch {
		case attempts >= c.cfg.MaxConnAttempts:
			c.logger.Warn("connection attempt limit reached, forcing fallback mode",
				"attempts", attempts, "err", err)
			c.setMode(ModeFallback)
		case isDialError(err):
			c.logger.Warn("remote store unreachable, forcing fallback mode",
				"attempts", attempts, "err", err)
			c.setMode(ModeFallback)
		default:
			c.logger.Warn("remote store connection failed", "attempts", attempts, "err", err)
		}
		return &ConnectionError{Attempts: attempts, Err: err}
	}

	// Replace any previous connections (reconnect after degrade).
	c.closeConnsLocked()
	c.rdb, c.pub, c.sub = rdb, pub, sub
	c.remote = store.NewRedisStore(rdb)
	c.attempts.Store(0)
	c.startJanitor()
	c.setMode(ModeConnected)
	c.logger.Info("connected to remote store", "addr", rdb.Options().Addr)
	c.resubscribe(ctx)
	return nil
}

// ConnectWithFallback calls Connect and absorbs any failure by switching to
// fallback mode. It never returns an error: cache unavailability must not
// block application startup.
func (c *Client) ConnectWithFallback(ctx context.Context) error {
	if err := c.Connect(ctx); err != nil {
		c.logger.Warn("remote store unavailable, continuing in fallback mode", "err", err)
		c.setMode(ModeFallback)
	}
	return nil
}

// Disconnect stops the subscriber dispatch loop and the fallback sweep and
// closes the remote connections. Fallback store contents are retained, and
// a later Connect may bring the same client back online.
func (c *Client) Disconnect() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.janitorCancel != nil {
		c.janitorCancel()
		c.janitorCancel = nil
	}
	err := c.closeConnsLocked()
	c.setMode(ModeDisconnected)
	return err
}

// closeConnsLocked closes the pub/sub dispatch loop and the three redis
// clients. The struct fields keep their stale pointers on purpose: a racing
// operation that saw connected mode before the flip gets a client-is-closed
// error and lands in the normal degrade path instead of on a nil pointer.
func (c *Client) closeConnsLocked() error {
	c.stopSubscriber()
	var errs []error
	for _, rc := range []*redis.Client{c.rdb, c.pub, c.sub} {
		if rc == nil {
			continue
		}
		if err := rc.Close(); err != nil && !errors.Is(err, redis.ErrClosed) {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// HealthCheck reports liveness. In fallback or disconnected mode it answers
// immediately without probing the remote store; when connected it pings and
// measures the round trip. A failed probe degrades the client like any
// other remote operation failure.
func (c *Client) HealthCheck(ctx context.Context) Health {
	h := Health{Timestamp: time.Now().UTC()}

	switch c.Mode() {
	case ModeConnected:
		start := time.Now()
		err := c.rdb.Ping(ctx).Err()
		h.ResponseTime = time.Since(start)
		if err != nil {
			c.degrade("ping", err)
			h.Status = StatusUnhealthy
		} else {
			h.Status = StatusHealthy
		}
	case ModeFallback:
		h.Status = StatusFallback
	default:
		h.Status = StatusUnhealthy
	}

	m := c.Mode()
	h.Mode = m.String()
	h.IsConnected = m == ModeConnected
	return h
}

// Stats returns a snapshot of connection and fallback-store state without
// touching the remote store.
func (c *Client) Stats() Stats {
	m := c.Mode()
	return Stats{
		Status:              m.String(),
		IsConnected:         m == ModeConnected,
		FallbackMode:        m == ModeFallback,
		ConnectionAttempts:  int(c.attempts.Load()),
		FallbackStorageSize: c.mem.Len(),
	}
}

// FallbackSize reports how many entries the in-process store currently
// holds, expired entries not yet swept included.
func (c *Client) FallbackSize() int {
	return c.mem.Len()
}

// isDialError reports whether err is a connection-refused or unknown-host
// failure. Nothing is listening at the configured address, so further
// handshake attempts are pointless and fallback starts immediately.
func isDialError(err error) bool {
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return true
	}
	return errors.Is(err, syscall.ECONNREFUSED)
}

// isReadOnlyErr matches the READONLY error a replica returns while a
// failover is still promoting it. The command gets one immediate retry
// before the client gives up on the remote store.
func isReadOnlyErr(err error) bool {
	return err != nil && strings.HasPrefix(err.Error(), "READONLY")
}
