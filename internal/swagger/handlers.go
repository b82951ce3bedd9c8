// Package swagger serves the gateway documentation UI and the upstream
// OpenAPI documents of registered services.
package swagger

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/go-chi/chi/v5"
	httpSwagger "github.com/swaggo/http-swagger"
	"go.uber.org/zap"

	"ecotrack/api-gateway/internal/apperr"
	"ecotrack/api-gateway/internal/docs"
	"ecotrack/api-gateway/internal/health"
	"ecotrack/api-gateway/internal/registry"
	"ecotrack/api-gateway/internal/telemetry"
	"ecotrack/api-gateway/internal/util"
)

const (
	maxDocBytes    = 5 << 20
	defaultTimeout = 5 * time.Second

	msgDocUnavailable = "Documentation indisponible"
	msgDocInvalid     = "Documentation invalide"
)

type Options struct {
	Version string
	Timeout time.Duration
	Client  *http.Client
	Logger  *zap.Logger
}

// Handler serves /api-docs.
type Handler struct {
	reg     *registry.Registry
	guard   health.Guard
	client  *http.Client
	timeout time.Duration
	logger  *zap.Logger
}

// NewHandler also stamps version on the gateway's own document.
func NewHandler(reg *registry.Registry, guard health.Guard, opts Options) *Handler {
	if opts.Version != "" {
		docs.SwaggerInfo.Version = opts.Version
	}
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	h := &Handler{reg: reg, guard: guard, timeout: opts.Timeout, logger: opts.Logger, client: opts.Client}
	if h.client == nil {
		h.client = &http.Client{
			Transport: telemetry.Transport(http.DefaultTransport),
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= 5 {
					return errors.New("too many redirects")
				}
				_, err := guard.Check(req.URL.String())
				return err
			},
		}
	}
	return h
}

func (h *Handler) Routes(r chi.Router) {
	r.Get("/api-docs", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/api-docs/index.html", http.StatusMovedPermanently)
	})
	r.Get("/api-docs/services", h.ListDocs)
	r.Get("/api-docs/services/{key}", h.ServiceDoc)
	r.Get("/api-docs/*", httpSwagger.Handler(httpSwagger.URL("/api-docs/doc.json")))
}

type docLink struct {
	Key         string `json:"key"`
	DisplayName string `json:"displayName"`
	URL         string `json:"url"`
}

// ListDocs lists the upstream documents the gateway can serve.
func (h *Handler) ListDocs(w http.ResponseWriter, r *http.Request) {
	descs := h.reg.List()
	out := make([]docLink, 0, len(descs))
	for _, d := range descs {
		out = append(out, docLink{Key: d.Key, DisplayName: d.DisplayName, URL: "/api-docs/services/" + d.Key})
	}
	util.JSON(w, out)
}

// ServiceDoc fetches, validates and re-bases the OpenAPI document of one
// service.
func (h *Handler) ServiceDoc(w http.ResponseWriter, r *http.Request) {
	doc, err := h.Fetch(r.Context(), chi.URLParam(r, "key"))
	if err != nil {
		util.WriteError(w, err)
		return
	}
	util.JSON(w, doc)
}

// Fetch loads the upstream document of key. The target must pass the
// outbound allow-list before any request is made.
func (h *Handler) Fetch(ctx context.Context, key string) (*openapi3.T, error) {
	d, ok := h.reg.Get(key)
	if !ok {
		return nil, apperr.NotFound("Service inconnu")
	}
	target, err := h.guard.Check(d.SwaggerURL())
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target.String(), nil)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	req.Header.Set("Accept", "application/json")
	resp, err := h.client.Do(req)
	if err != nil {
		h.logger.Warn("upstream doc fetch failed", zap.String("service", key), zap.Error(err))
		return nil, apperr.BadGateway(msgDocUnavailable, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		h.logger.Warn("upstream doc fetch failed", zap.String("service", key), zap.Int("status", resp.StatusCode))
		return nil, apperr.BadGateway(msgDocUnavailable, fmt.Errorf("status %d", resp.StatusCode))
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxDocBytes))
	if err != nil {
		return nil, apperr.BadGateway(msgDocUnavailable, err)
	}

	loader := openapi3.NewLoader()
	loader.IsExternalRefsAllowed = false
	doc, err := loader.LoadFromData(body)
	if err != nil {
		h.logger.Warn("upstream doc unreadable", zap.String("service", key), zap.Error(err))
		return nil, apperr.BadGateway(msgDocInvalid, err)
	}
	if err := doc.Validate(ctx, openapi3.DisableExamplesValidation()); err != nil {
		h.logger.Warn("upstream doc invalid", zap.String("service", key), zap.Error(err))
		return nil, apperr.BadGateway(msgDocInvalid, err)
	}

	doc.Servers = openapi3.Servers{{
		URL:         GatewayBase(d),
		Description: d.DisplayName + " via gateway",
	}}
	return doc, nil
}

// GatewayBase is the public path under which the upstream's own paths are
// reachable. It is the shared strip prefix when every route strips the same
// prefix, and "/" otherwise.
func GatewayBase(d registry.ServiceDescriptor) string {
	base := ""
	for i, rt := range d.Routes {
		if rt.Rewrite.Kind() != registry.RewritePrefixStrip {
			return "/"
		}
		if i == 0 {
			base = rt.Rewrite.Prefix()
		} else if rt.Rewrite.Prefix() != base {
			return "/"
		}
	}
	if base == "" {
		return "/"
	}
	return base
}
