// Package admin exposes read-only introspection of the service registry and
// health records. Descriptors are immutable after startup, so there is no
// write API.
package admin

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"ecotrack/api-gateway/internal/apperr"
	"ecotrack/api-gateway/internal/auth"
	"ecotrack/api-gateway/internal/health"
	"ecotrack/api-gateway/internal/registry"
	"ecotrack/api-gateway/internal/util"
)

// AdminRole is the role required for every admin endpoint.
const AdminRole = "ADMIN"

type Handler struct {
	reg     *registry.Registry
	monitor *health.Monitor
}

func NewHandler(reg *registry.Registry, monitor *health.Monitor) *Handler {
	return &Handler{reg: reg, monitor: monitor}
}

// Routes mounts the admin API under /admin behind RequireRole(ADMIN).
func (h *Handler) Routes(r chi.Router) {
	r.Route("/admin", func(r chi.Router) {
		r.Use(auth.RequireRole(AdminRole))
		r.Get("/services", h.ListServices)
		r.Get("/services/{key}", h.GetService)
		r.Post("/services/{key}/check", h.CheckService)
		r.Get("/routes/resolve", h.ResolveRoute)
	})
}

// ListServices returns all registered services.
// @Summary List services
// @Tags admin
// @Produce json
// @Success 200 {object} admin.ServiceList
// @Failure 401 {object} map[string]string
// @Failure 403 {object} map[string]any
// @Security BearerAuth
// @Router /admin/services [get]
func (h *Handler) ListServices(w http.ResponseWriter, r *http.Request) {
	descs := h.reg.List()
	out := ServiceList{Count: len(descs), Services: make([]ServiceView, 0, len(descs))}
	for _, d := range descs {
		out.Services = append(out.Services, h.view(d))
	}
	util.JSON(w, out)
}

// GetService retrieves a service by key.
// @Summary Get service by key
// @Tags admin
// @Produce json
// @Param key path string true "Service key"
// @Success 200 {object} admin.ServiceView
// @Failure 404 {object} map[string]string
// @Security BearerAuth
// @Router /admin/services/{key} [get]
func (h *Handler) GetService(w http.ResponseWriter, r *http.Request) {
	d, ok := h.reg.Get(chi.URLParam(r, "key"))
	if !ok {
		util.WriteError(w, apperr.NotFound("Service inconnu"))
		return
	}
	util.JSON(w, h.view(d))
}

// CheckService probes a service now and returns its updated health.
// @Summary Probe service health
// @Tags admin
// @Produce json
// @Param key path string true "Service key"
// @Success 200 {object} health.ServiceHealth
// @Failure 404 {object} map[string]string
// @Failure 500 {object} map[string]string "target outside the health-check allow-list"
// @Security BearerAuth
// @Router /admin/services/{key}/check [post]
func (h *Handler) CheckService(w http.ResponseWriter, r *http.Request) {
	view, err := h.monitor.CheckService(r.Context(), chi.URLParam(r, "key"))
	if err != nil {
		util.WriteError(w, err)
		return
	}
	util.JSON(w, view)
}

// ResolveRoute reports which service a public path is forwarded to. The
// registry's longest-prefix match is the same rule the proxy mounts follow.
// @Summary Resolve a public path
// @Tags admin
// @Produce json
// @Param path query string true "Public path, e.g. /api/containers/42"
// @Success 200 {object} admin.Resolution
// @Failure 400 {object} map[string]string
// @Failure 404 {object} map[string]string
// @Security BearerAuth
// @Router /admin/routes/resolve [get]
func (h *Handler) ResolveRoute(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Query().Get("path")
	if !strings.HasPrefix(path, "/") {
		util.WriteError(w, apperr.BadRequest("Paramètre path invalide"))
		return
	}
	d, rt, ok := h.reg.Resolve(path)
	if !ok {
		util.WriteError(w, apperr.NotFound("Route non trouvée"))
		return
	}
	util.JSON(w, Resolution{
		Path:         path,
		Service:      d.Key,
		Route:        rt,
		UpstreamPath: rt.Rewrite.Apply(path, r),
	})
}

func (h *Handler) view(d registry.ServiceDescriptor) ServiceView {
	hv, ok := h.monitor.ServiceStatus(d.Key)
	if !ok {
		hv = health.ServiceHealth{Key: d.Key, DisplayName: d.DisplayName, Status: health.StatusUnknown}
	}
	return ServiceView{ServiceDescriptor: d, Health: hv}
}
