package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/RussellLuo/slidingwindow"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/puzpuzpuz/xsync/v3"
	slogecho "github.com/samber/slog-echo"

	"github.com/overcast-systems/flywheel/cache"
	"github.com/overcast-systems/flywheel/client"
	"github.com/overcast-systems/flywheel/internal/ticker"
	"github.com/overcast-systems/flywheel/ratelimit"
	"github.com/overcast-systems/flywheel/session"
)

type Server struct {
	cfg      ServerConfig
	logger   *slog.Logger
	client   *client.Client
	cache    *cache.Cache
	sessions *session.Store
	limiter  *ratelimit.Limiter
	echo     *echo.Echo
	httpd    *http.Server

	// per-IP ingress limiters, created on first sight of an address
	ingress *xsync.MapOf[string, *slidingwindow.Limiter]

	// closed by Shutdown so long-lived subscriber connections drain
	shutdown chan struct{}
}

type ServerConfig struct {
	RedisURL           string
	Bind               string
	ConnectTimeout     time.Duration
	CommandTimeout     time.Duration
	MaxConnAttempts    int
	ReconnectInterval  time.Duration
	CacheTTL           time.Duration
	LocalCacheSize     int
	SessionTTL         time.Duration
	RateLimitWindow    time.Duration
	RateLimitMax       int64
	IngressLimitPerSec int
	Logger             *slog.Logger
}

func NewServer(config ServerConfig) (*Server, error) {
	logger := config.Logger
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: slog.LevelInfo,
		}))
	}

	ccfg := client.DefaultConfig()
	ccfg.RedisURL = config.RedisURL
	ccfg.ConnectTimeout = config.ConnectTimeout
	ccfg.CommandTimeout = config.CommandTimeout
	ccfg.MaxConnAttempts = config.MaxConnAttempts
	ccfg.Logger = logger
	cl := client.New(ccfg)

	// never fail startup on an unreachable store; the watchdog keeps trying
	if err := cl.ConnectWithFallback(context.Background()); err != nil {
		return nil, err
	}

	cacheOpts := []cache.Option{}
	if config.LocalCacheSize > 0 {
		cacheOpts = append(cacheOpts, cache.WithLocalCache(config.LocalCacheSize, config.CacheTTL))
	}

	srv := &Server{
		cfg:      config,
		logger:   logger,
		client:   cl,
		cache:    cache.New(cl, config.CacheTTL, cacheOpts...),
		sessions: session.New(cl, config.SessionTTL),
		limiter:  ratelimit.New(cl, config.RateLimitWindow, config.RateLimitMax),
		ingress:  xsync.NewMapOf[string, *slidingwindow.Limiter](),
		shutdown: make(chan struct{}),
	}

	e := echo.New()
	e.HideBanner = true
	e.Use(slogecho.New(logger))
	e.Use(middleware.Recover())
	e.Use(middleware.BodyLimit("1M"))
	e.HTTPErrorHandler = srv.errorHandler
	if config.IngressLimitPerSec > 0 {
		e.Use(srv.ingressLimitMiddleware)
	}

	e.GET("/_health", srv.HandleHealthCheck)
	e.GET("/stats", srv.HandleStats)

	e.GET("/kv/:key", srv.HandleGetKey)
	e.PUT("/kv/:key", srv.HandleSetKey)
	e.DELETE("/kv/:key", srv.HandleDeleteKey)
	e.POST("/kv/:key/incr", srv.HandleIncrKey)
	e.GET("/hashes/:key/fields/:field", srv.HandleHashGet)
	e.PUT("/hashes/:key/fields/:field", srv.HandleHashSet)
	e.POST("/queues/:key", srv.HandleQueuePush)
	e.POST("/queues/:key/pop", srv.HandleQueuePop)

	e.GET("/cache/:key", srv.HandleCacheGet)
	e.PUT("/cache/:key", srv.HandleCacheSet)
	e.DELETE("/cache/:key", srv.HandleCacheDelete)

	e.GET("/sessions/:id", srv.HandleSessionGet)
	e.PUT("/sessions/:id", srv.HandleSessionSet)
	e.DELETE("/sessions/:id", srv.HandleSessionDelete)
	e.POST("/sessions/:id/extend", srv.HandleSessionExtend)

	e.POST("/ratelimit/:key/check", srv.HandleRateLimitCheck)

	e.POST("/channels/:channel/publish", srv.HandlePublish)
	e.GET("/channels/:channel/subscribe", srv.handleSubscribe)

	srv.echo = e
	srv.httpd = &http.Server{
		Handler:        srv,
		Addr:           config.Bind,
		WriteTimeout:   time.Minute,
		ReadTimeout:    time.Minute,
		MaxHeaderBytes: 1 << 20,
	}

	return srv, nil
}

func (srv *Server) ServeHTTP(rw http.ResponseWriter, req *http.Request) {
	srv.echo.ServeHTTP(rw, req)
}

func (srv *Server) RunAPI() error {
	slog.Info("starting server", "bind", srv.httpd.Addr)
	go func() {
		if err := srv.httpd.ListenAndServe(); err != nil {
			if !errors.Is(err, http.ErrServerClosed) {
				slog.Error("HTTP server shutting down unexpectedly", "err", err)
			}
		}
	}()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if srv.cfg.ReconnectInterval > 0 {
		go ticker.Periodically(ctx, srv.cfg.ReconnectInterval, "remote-reconnect", srv.tryReconnect)
	}

	// Wait for a signal to exit.
	slog.Info("registering OS exit signal handler")
	quit := make(chan struct{})
	exitSignals := make(chan os.Signal, 1)
	signal.Notify(exitSignals, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-exitSignals
		slog.Info("received OS exit signal", "signal", sig)

		cancel()
		if err := srv.Shutdown(); err != nil {
			slog.Error("HTTP server shutdown error", "err", err)
		}

		close(quit)
	}()
	<-quit
	slog.Info("graceful shutdown complete")
	return nil
}

// tryReconnect runs on the watchdog interval and attempts an explicit
// reconnect while the client is degraded. Failures are logged by the
// periodic runner and retried on the next tick.
func (srv *Server) tryReconnect(ctx context.Context) error {
	if srv.client.Mode() != client.ModeFallback {
		return nil
	}
	srv.logger.Info("remote store degraded, attempting reconnect")
	return srv.client.Connect(ctx)
}

func (srv *Server) RunMetrics(listen string) error {
	http.Handle("/metrics", promhttp.Handler())
	return http.ListenAndServe(listen, nil)
}

func (srv *Server) Shutdown() error {
	slog.Info("shutting down")

	close(srv.shutdown)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	err := srv.httpd.Shutdown(ctx)
	if derr := srv.client.Disconnect(); derr != nil && err == nil {
		err = derr
	}
	return err
}

func (srv *Server) ingressLimitMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		lim, _ := srv.ingress.LoadOrCompute(c.RealIP(), func() *slidingwindow.Limiter {
			lim, _ := slidingwindow.NewLimiter(time.Second, int64(srv.cfg.IngressLimitPerSec), windowFunc)
			return lim
		})
		if !lim.Allow() {
			ingressThrottled.Inc()
			return c.JSON(http.StatusTooManyRequests, GenericError{
				Error:   "RateLimitExceeded",
				Message: "request allowance exhausted, slow down",
			})
		}
		return next(c)
	}
}

func windowFunc() (slidingwindow.Window, slidingwindow.StopFunc) {
	return slidingwindow.NewLocalWindow()
}
