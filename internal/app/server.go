// Package app assembles the gateway from configuration: registry, health
// monitor, limiters, auth boundary and proxy.
package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"ecotrack/api-gateway/internal/apperr"
	"ecotrack/api-gateway/internal/auth"
	"ecotrack/api-gateway/internal/config"
	"ecotrack/api-gateway/internal/health"
	"ecotrack/api-gateway/internal/metrics"
	"ecotrack/api-gateway/internal/migrate"
	"ecotrack/api-gateway/internal/proxy"
	"ecotrack/api-gateway/internal/ratelimit"
	"ecotrack/api-gateway/internal/registry"
	"ecotrack/api-gateway/internal/telemetry"
)

const serviceName = "api-gateway"

// Option customises New.
type Option func(*options)

type options struct {
	sources        []registry.Source
	db             *sql.DB
	redis          redis.UniversalClient
	outbound       *http.Client
	proxyTransport http.RoundTripper
}

// WithSources registers extra descriptor sources after the built-in ones.
func WithSources(src ...registry.Source) Option {
	return func(o *options) { o.sources = append(o.sources, src...) }
}

// WithDB uses db as the service catalogue instead of opening
// catalog.database_url.
func WithDB(db *sql.DB) Option {
	return func(o *options) { o.db = db }
}

// WithRedis shares rate-limit windows through rdb instead of dialing
// ratelimit.redis_addr.
func WithRedis(rdb redis.UniversalClient) Option {
	return func(o *options) { o.redis = rdb }
}

// WithOutboundClient sets the client used for health probes and upstream
// documentation fetches.
func WithOutboundClient(c *http.Client) Option {
	return func(o *options) { o.outbound = c }
}

// WithProxyTransport sets the round tripper used to forward requests.
func WithProxyTransport(rt http.RoundTripper) Option {
	return func(o *options) { o.proxyTransport = rt }
}

// Server is a fully wired gateway.
type Server struct {
	cfg     *config.Config
	logger  *zap.Logger
	reg     *registry.Registry
	monitor *health.Monitor
	metrics *metrics.Metrics
	handler http.Handler
	http    *http.Server
	started time.Time

	// closers run in reverse order on shutdown.
	closers []func(context.Context) error
}

// New builds the gateway. Any configuration problem (duplicate mount, bad
// upstream URL, unreachable catalogue) is returned and the server must not
// start.
func New(ctx context.Context, cfg *config.Config, logger *zap.Logger, opts ...Option) (*Server, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &Server{cfg: cfg, logger: logger, started: time.Now(), metrics: metrics.New(nil)}
	ok := false
	defer func() {
		if !ok {
			_ = s.close(context.Background())
		}
	}()

	shutdownTracing, err := telemetry.Setup(ctx, cfg.Telemetry.OTLPEndpoint, serviceName, cfg.Server.Version)
	if err != nil {
		return nil, apperr.Configuration("tracing setup failed", err)
	}
	s.closers = append(s.closers, shutdownTracing)

	sources, err := s.sources(ctx, o)
	if err != nil {
		return nil, err
	}
	s.reg = registry.New()
	if err := registry.LoadInto(ctx, s.reg, sources...); err != nil {
		return nil, err
	}
	if err := checkReserved(s.reg); err != nil {
		return nil, err
	}

	s.monitor = health.NewMonitor(s.reg, health.Options{
		Timeout:      cfg.Health.Timeout(),
		Interval:     cfg.Health.Interval(),
		MaxFailures:  cfg.Health.MaxFailures,
		AllowedHosts: cfg.Health.AllowedHostSet(),
		Client:       o.outbound,
		Logger:       logger.Named("health"),
		Metrics:      s.metrics,
	})

	store := s.rateStore(ctx, o)
	global := ratelimit.New("global", cfg.RateLimit.Window(), cfg.RateLimit.Max, store)
	public := ratelimit.New("public", cfg.RateLimit.PublicWindow(), cfg.RateLimit.PublicMax, store)

	boundary := auth.NewBoundary(cfg.Auth.JWTSecret, auth.DefaultPublicRoutes(), logger.Named("auth"))
	fwd := proxy.New(s.reg, proxy.Options{
		Timeout:   cfg.Proxy.Timeout(),
		Transport: o.proxyTransport,
		Logger:    logger.Named("proxy"),
		Metrics:   s.metrics,
	})

	trusted, err := cfg.Server.TrustedProxyPrefixes()
	if err != nil {
		return nil, apperr.Configuration("invalid trusted proxy list", err)
	}

	s.handler, err = s.router(routerDeps{
		trusted:  trusted,
		boundary: boundary,
		global:   global,
		public:   public,
		proxy:    fwd,
		outbound: o.outbound,
	})
	if err != nil {
		return nil, err
	}

	s.http = &http.Server{
		Addr:              net.JoinHostPort("", strconv.Itoa(cfg.Server.Port)),
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
		ErrorLog:          zap.NewStdLog(logger.Named("http")),
	}

	for _, d := range s.reg.List() {
		logger.Info("service registered",
			zap.String("service", d.Key),
			zap.String("base_url", d.BaseURL),
			zap.Strings("mounts", d.MountPaths()),
		)
	}
	ok = true
	return s, nil
}

func (s *Server) sources(ctx context.Context, o options) ([]registry.Source, error) {
	out := []registry.Source{
		registry.StaticSource(registry.Builtin(s.cfg.Upstreams)),
		registry.StaticSource(registry.FromConfig(s.cfg.Services)),
	}

	db := o.db
	if db == nil && s.cfg.Catalog.DatabaseURL != "" {
		var err error
		db, err = sql.Open("postgres", s.cfg.Catalog.DatabaseURL)
		if err != nil {
			return nil, apperr.Configuration("service catalogue unavailable", err)
		}
		s.closers = append(s.closers, func(context.Context) error { return db.Close() })
	}
	if db != nil {
		schema := s.cfg.Catalog.Schema
		if schema == "" {
			schema = "gateway"
		}
		if err := migrate.Run(ctx, db, schema); err != nil {
			return nil, apperr.Configuration("service catalogue migration failed", err)
		}
		out = append(out, registry.NewSQLRepository(db, schema))
	}
	return append(out, o.sources...), nil
}

// rateStore picks Redis when configured. An unreachable Redis is logged and
// kept: the limiter fails open until it comes back.
func (s *Server) rateStore(ctx context.Context, o options) ratelimit.Store {
	rdb := o.redis
	if rdb == nil && s.cfg.RateLimit.RedisAddr != "" {
		client := redis.NewClient(&redis.Options{Addr: s.cfg.RateLimit.RedisAddr})
		s.closers = append(s.closers, func(context.Context) error { return client.Close() })
		rdb = client
	}
	if rdb == nil {
		return ratelimit.NewMemoryStore()
	}
	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		s.logger.Warn("rate limit redis unreachable", zap.Error(err))
	}
	return ratelimit.NewRedisStore(rdb, "gateway:ratelimit")
}

// reservedPrefixes are served by the gateway itself and cannot be mounted.
var reservedPrefixes = []string{"/health", "/api-docs", "/metrics", "/admin"}

var ErrReservedMount = errors.New("mount path reserved by the gateway")

func checkReserved(reg *registry.Registry) error {
	for _, d := range reg.List() {
		for _, m := range d.MountPaths() {
			for _, p := range reservedPrefixes {
				if underSegment(m, p) || underSegment(p, m) {
					return apperr.Configuration("invalid service registration",
						fmt.Errorf("%w: service %q mount %q overlaps %q", ErrReservedMount, d.Key, m, p))
				}
			}
		}
	}
	return nil
}

func underSegment(path, prefix string) bool {
	return path == prefix || strings.HasPrefix(path, prefix+"/")
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler { return s.handler }

func (s *Server) Registry() *registry.Registry { return s.reg }

func (s *Server) Monitor() *health.Monitor { return s.monitor }

// Run starts periodic health checks and serves until ctx is done, then shuts
// down within the configured timeout.
func (s *Server) Run(ctx context.Context) error {
	s.monitor.Start()

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("api-gateway listening",
			zap.String("addr", s.http.Addr),
			zap.String("version", s.cfg.Server.Version),
		)
		if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	var serveErr error
	select {
	case <-ctx.Done():
	case serveErr = <-errCh:
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.Server.ShutdownTimeoutDuration())
	defer cancel()
	return errors.Join(serveErr, s.Shutdown(shutdownCtx))
}

// Shutdown stops scheduled probes, drains in-flight requests and releases
// the catalogue, Redis and tracing resources.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down")
	stopped := s.monitor.StopPeriodicChecks()
	var errs []error
	if err := s.http.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("http shutdown: %w", err))
	}
	select {
	case <-stopped.Done():
	case <-ctx.Done():
		errs = append(errs, fmt.Errorf("health checks still running: %w", ctx.Err()))
	}
	if err := s.close(ctx); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func (s *Server) close(ctx context.Context) error {
	var errs []error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	s.closers = nil
	return errors.Join(errs...)
}
