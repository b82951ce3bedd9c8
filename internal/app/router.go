package app

import (
	"fmt"
	"net/http"
	"net/netip"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"ecotrack/api-gateway/internal/admin"
	"ecotrack/api-gateway/internal/apperr"
	"ecotrack/api-gateway/internal/auth"
	"ecotrack/api-gateway/internal/health"
	"ecotrack/api-gateway/internal/proxy"
	"ecotrack/api-gateway/internal/ratelimit"
	"ecotrack/api-gateway/internal/swagger"
	"ecotrack/api-gateway/internal/telemetry"
	"ecotrack/api-gateway/internal/util"
)

// publicLimited are the unauthenticated or polled endpoints that get the
// stricter public limiter on top of the global one.
var publicLimited = []string{
	"/auth/login",
	"/api/gamification/classement",
	"/api/gamification/notifications",
}

type routerDeps struct {
	trusted  []netip.Prefix
	boundary *auth.Boundary
	global   *ratelimit.Limiter
	public   *ratelimit.Limiter
	proxy    *proxy.Router
	outbound *http.Client
}

// router builds the request pipeline: rate limits, then authentication,
// then either a gateway endpoint or the proxy.
func (s *Server) router(deps routerDeps) (h http.Handler, err error) {
	// chi panics on conflicting mounts; surface that as a configuration error.
	defer func() {
		if rec := recover(); rec != nil {
			err = apperr.Configuration("invalid route table", fmt.Errorf("%v", rec))
		}
	}()

	logger := s.logger
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(util.RealIP(deps.trusted))
	r.Use(middleware.Recoverer)
	r.Use(telemetry.Middleware)
	r.Use(util.AccessLog(logger.Named("access"), s.metrics))
	r.Use(util.CORS(s.cfg.Server.FrontendURL))
	r.Use(util.StripIdentityHeaders())
	limits := logger.Named("ratelimit")
	r.Use(util.Chain(
		deps.global.Middleware(limits, s.metrics, nil),
		deps.public.Middleware(limits, s.metrics, ratelimit.PathPrefixes(publicLimited...)),
	))
	r.Use(deps.boundary.Middleware())

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		util.WriteError(w, apperr.NotFound("Route non trouvée"))
	})

	health.NewHandler(s.monitor, s.cfg.Server.Version, s.started).Routes(r)
	swagger.NewHandler(s.reg, s.monitor.Guard(), swagger.Options{
		Version: s.cfg.Server.Version,
		Timeout: s.cfg.Health.Timeout(),
		Client:  deps.outbound,
		Logger:  logger.Named("swagger"),
	}).Routes(r)
	r.Method(http.MethodGet, "/metrics", s.metrics.Handler())
	admin.NewHandler(s.reg, s.monitor).Routes(r)

	if err := deps.proxy.Mount(r); err != nil {
		return nil, err
	}
	return r, nil
}
