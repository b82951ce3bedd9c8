package health

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"ecotrack/api-gateway/internal/util"
)

// Handler serves the health endpoints.
type Handler struct {
	monitor *Monitor
	version string
	started time.Time
	now     func() time.Time
}

func NewHandler(m *Monitor, version string, started time.Time) *Handler {
	return &Handler{monitor: m, version: version, started: started, now: time.Now}
}

type gatewayView struct {
	Status  string `json:"status"`
	Version string `json:"version"`
}

type serviceView struct {
	Status    Status     `json:"status"`
	Latency   *int64     `json:"latency"`
	LastCheck *time.Time `json:"lastCheck"`
	Error     *string    `json:"error"`
}

type report struct {
	Status    Overall                `json:"status"`
	Timestamp time.Time              `json:"timestamp"`
	Uptime    float64                `json:"uptime"`
	Gateway   gatewayView            `json:"gateway"`
	Services  map[string]serviceView `json:"services"`
}

// Routes registers the health endpoints on r.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/health", h.Overall)
	r.Get("/health/services", h.Services)
	r.Get("/health/services/{key}", h.Service)
}

// Overall probes every service. 200 for healthy and degraded, 503 otherwise.
func (h *Handler) Overall(w http.ResponseWriter, r *http.Request) {
	overall, views := h.monitor.OverallStatus(r.Context())
	now := h.now()
	body := report{
		Status:    overall,
		Timestamp: now.UTC(),
		Uptime:    now.Sub(h.started).Seconds(),
		Gateway:   gatewayView{Status: "up", Version: h.version},
		Services:  make(map[string]serviceView, len(views)),
	}
	for _, v := range views {
		name := v.DisplayName
		if name == "" {
			name = v.Key
		}
		body.Services[name] = serviceView{
			Status:    v.Status,
			Latency:   v.LatencyMs,
			LastCheck: v.LastCheck,
			Error:     v.LastError,
		}
	}
	status := http.StatusOK
	if overall == OverallUnhealthy {
		status = http.StatusServiceUnavailable
	}
	util.JSONStatus(w, status, body)
}

func (h *Handler) Services(w http.ResponseWriter, r *http.Request) {
	util.JSON(w, h.monitor.AllServices())
}

func (h *Handler) Service(w http.ResponseWriter, r *http.Request) {
	view, err := h.monitor.CheckService(r.Context(), chi.URLParam(r, "key"))
	if err != nil {
		util.WriteError(w, err)
		return
	}
	util.JSON(w, view)
}
