package proxy

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httputil"
	"net/url"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"ecotrack/api-gateway/internal/apperr"
	"ecotrack/api-gateway/internal/auth"
	"ecotrack/api-gateway/internal/metrics"
	"ecotrack/api-gateway/internal/registry"
	"ecotrack/api-gateway/internal/telemetry"
	"ecotrack/api-gateway/internal/util"
)

const (
	DefaultTimeout = 10 * time.Second

	msgUnavailable = "Service temporairement indisponible"
)

type Options struct {
	Timeout   time.Duration
	Transport http.RoundTripper
	Logger    *zap.Logger
	Metrics   *metrics.Metrics
}

// Router forwards requests under each registered mount path to the owning
// service's BaseURL.
type Router struct {
	reg       *registry.Registry
	timeout   time.Duration
	transport http.RoundTripper
	logger    *zap.Logger
	metrics   *metrics.Metrics
	tracer    trace.Tracer
}

func New(reg *registry.Registry, opts Options) *Router {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.Transport == nil {
		opts.Transport = telemetry.Transport(http.DefaultTransport)
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Router{
		reg:       reg,
		timeout:   opts.Timeout,
		transport: opts.Transport,
		logger:    opts.Logger,
		metrics:   opts.Metrics,
		tracer:    telemetry.Tracer(),
	}
}

// Mount registers one handler per mount path on r. Mount paths are unique
// because the registry rejects duplicates.
func (p *Router) Mount(r chi.Router) error {
	for _, d := range p.reg.List() {
		for _, rt := range d.Routes {
			h, err := p.Handler(d, rt)
			if err != nil {
				return err
			}
			r.Mount(rt.MountPath, h)
			p.logger.Debug("mounted route",
				zap.String("service", d.Key),
				zap.String("mount", rt.MountPath),
				zap.String("rewrite", rt.Rewrite.String()),
			)
		}
	}
	return nil
}

type upstreamPathKey struct{}

// Handler builds the forwarding handler for one route of d.
func (p *Router) Handler(d registry.ServiceDescriptor, rt registry.Route) (http.Handler, error) {
	target, err := url.Parse(d.BaseURL)
	if err != nil {
		return nil, apperr.Configuration("invalid upstream", fmt.Errorf("service %q: %w", d.Key, err))
	}

	rp := &httputil.ReverseProxy{
		Transport: p.transport,
		Rewrite: func(pr *httputil.ProxyRequest) {
			path, _ := pr.In.Context().Value(upstreamPathKey{}).(string)
			setPath(pr.Out.URL, path)
			pr.SetURL(target)
			pr.SetXForwarded()
			setIdentityHeaders(pr.In.Context(), pr.Out.Header)
			if id := middleware.GetReqID(pr.In.Context()); id != "" {
				pr.Out.Header.Set(middleware.RequestIDHeader, id)
			}
		},
		ErrorHandler: func(w http.ResponseWriter, r *http.Request, err error) {
			p.fail(w, r, d.Key, err)
		},
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		upstreamPath := UpstreamPath(rt.MountPath, remainingPath(r, rt.MountPath), rt.Rewrite, r)

		ctx, cancel := context.WithTimeout(r.Context(), p.timeout)
		defer cancel()
		ctx, span := p.tracer.Start(ctx, "proxy "+d.Key,
			trace.WithSpanKind(trace.SpanKindInternal),
			trace.WithAttributes(
				attribute.String("gateway.service", d.Key),
				attribute.String("gateway.mount", rt.MountPath),
				attribute.String("gateway.upstream_path", upstreamPath),
			),
		)
		defer span.End()

		ctx = context.WithValue(ctx, upstreamPathKey{}, upstreamPath)
		rp.ServeHTTP(w, r.WithContext(ctx))
	}), nil
}

func setIdentityHeaders(ctx context.Context, h http.Header) {
	for name := range h {
		if strings.HasPrefix(http.CanonicalHeaderKey(name), util.IdentityHeaderPrefix) {
			h.Del(name)
		}
	}
	id, ok := auth.FromContext(ctx)
	if !ok {
		return
	}
	h.Set("X-User-Id", id.ID)
	h.Set("X-User-Role", id.Role)
	if id.Email != "" {
		h.Set("X-User-Email", id.Email)
	}
}

// fail turns a transport error into a generic 502. Nothing about the upstream
// reaches the client; a client that went away gets no response at all.
func (p *Router) fail(w http.ResponseWriter, r *http.Request, service string, err error) {
	perr := classify(service, err, r.Context().Err())
	p.metrics.UpstreamError(service, string(perr.Kind))

	span := trace.SpanFromContext(r.Context())
	span.RecordError(perr)
	span.SetStatus(codes.Error, string(perr.Kind))

	if perr.Kind == KindCanceled {
		p.logger.Debug("client canceled proxied request",
			zap.String("service", service),
			zap.String("path", r.URL.Path),
		)
		return
	}
	p.logger.Warn("upstream request failed",
		zap.String("service", service),
		zap.String("kind", string(perr.Kind)),
		zap.String("path", r.URL.Path),
		zap.String("request_id", middleware.GetReqID(r.Context())),
		zap.Error(err),
	)
	util.WriteError(w, apperr.BadGateway(msgUnavailable, perr))
}
