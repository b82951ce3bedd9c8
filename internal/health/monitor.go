// Package health probes registered services and keeps their last-known
// status. Probing is observational: it never gates proxied traffic.
package health

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"ecotrack/api-gateway/internal/apperr"
	"ecotrack/api-gateway/internal/metrics"
	"ecotrack/api-gateway/internal/registry"
	"ecotrack/api-gateway/internal/telemetry"
)

type Status string

const (
	StatusUnknown  Status = "unknown"
	StatusUp       Status = "up"
	StatusDegraded Status = "degraded"
	StatusDown     Status = "down"
)

// Overall is the folded status of all services.
type Overall string

const (
	OverallHealthy   Overall = "healthy"
	OverallDegraded  Overall = "degraded"
	OverallUnhealthy Overall = "unhealthy"
)

const (
	DefaultMaxFailures = 3
	DefaultTimeout     = 5 * time.Second
	DefaultInterval    = 30 * time.Second
	defaultConcurrency = 8
)

// ServiceHealth is a point-in-time view of one service.
type ServiceHealth struct {
	Key                 string     `json:"key"`
	DisplayName         string     `json:"displayName"`
	Status              Status     `json:"status"`
	ConsecutiveFailures int        `json:"consecutiveFailures"`
	MaxFailures         int        `json:"maxFailures"`
	LastCheck           *time.Time `json:"lastCheck"`
	LatencyMs           *int64     `json:"latencyMs"`
	LastError           *string    `json:"lastError"`
}

// Observer is called after every recorded probe with the state before and
// after it.
type Observer func(prev, cur ServiceHealth)

type Options struct {
	Timeout      time.Duration
	Interval     time.Duration
	MaxFailures  int
	AllowedHosts map[string]struct{}
	// Concurrency bounds the number of probes CheckAll runs at once.
	Concurrency int
	// Client is used as-is when set. The default client re-checks redirects
	// against the allow-list.
	Client   *http.Client
	Logger   *zap.Logger
	Metrics  *metrics.Metrics
	Observer Observer
	Now      func() time.Time
}

type record struct {
	mu    sync.Mutex
	desc  registry.ServiceDescriptor
	state ServiceHealth
}

func (rec *record) snapshot() ServiceHealth {
	rec.mu.Lock()
	defer rec.mu.Unlock()
	return rec.state.copy()
}

// misconfigured records why the service could not be probed, leaving the
// state machine where it was.
func (rec *record) misconfigured(reason string) ServiceHealth {
	rec.mu.Lock()
	defer rec.mu.Unlock()
	rec.state.LastError = &reason
	return rec.state.copy()
}

func (h ServiceHealth) copy() ServiceHealth {
	cp := h
	if h.LastCheck != nil {
		t := *h.LastCheck
		cp.LastCheck = &t
	}
	if h.LatencyMs != nil {
		v := *h.LatencyMs
		cp.LatencyMs = &v
	}
	if h.LastError != nil {
		s := *h.LastError
		cp.LastError = &s
	}
	return cp
}

// Monitor owns one ServiceHealth record per registered service.
type Monitor struct {
	mu      sync.RWMutex
	records map[string]*record
	order   []string

	guard       Guard
	client      *http.Client
	timeout     time.Duration
	interval    time.Duration
	maxFailures int
	concurrency int
	logger      *zap.Logger
	metrics     *metrics.Metrics
	observer    Observer
	now         func() time.Time
	tracer      trace.Tracer

	runMu  sync.Mutex
	sched  *cron.Cron
	sweeps sync.WaitGroup
}

// NewMonitor creates a monitor with an unknown record for every service in
// reg.
func NewMonitor(reg *registry.Registry, opts Options) *Monitor {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}
	if opts.MaxFailures <= 0 {
		opts.MaxFailures = DefaultMaxFailures
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = defaultConcurrency
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	m := &Monitor{
		records:     make(map[string]*record),
		guard:       NewGuard(opts.AllowedHosts),
		client:      opts.Client,
		timeout:     opts.Timeout,
		interval:    opts.Interval,
		maxFailures: opts.MaxFailures,
		concurrency: opts.Concurrency,
		logger:      opts.Logger,
		metrics:     opts.Metrics,
		observer:    opts.Observer,
		now:         opts.Now,
		tracer:      telemetry.Tracer(),
	}
	if m.client == nil {
		m.client = &http.Client{
			Transport: telemetry.Transport(http.DefaultTransport),
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= 5 {
					return errors.New("too many redirects")
				}
				_, err := m.guard.Check(req.URL.String())
				return err
			},
		}
	}
	if reg != nil {
		for _, d := range reg.List() {
			m.Register(d)
		}
	}
	return m
}

// Register adds an unknown record for d. Registering a key twice keeps the
// existing record.
func (m *Monitor) Register(d registry.ServiceDescriptor) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.records[d.Key]; ok {
		return
	}
	m.records[d.Key] = &record{
		desc: d,
		state: ServiceHealth{
			Key:         d.Key,
			DisplayName: d.DisplayName,
			Status:      StatusUnknown,
			MaxFailures: m.maxFailures,
		},
	}
	m.order = append(m.order, d.Key)
}

// Guard returns the outbound allow-list used for probes.
func (m *Monitor) Guard() Guard { return m.guard }

func (m *Monitor) lookup(key string) (*record, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.records[key]
	return rec, ok
}

func (m *Monitor) all() []*record {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*record, 0, len(m.order))
	for _, k := range m.order {
		out = append(out, m.records[k])
	}
	return out
}

// CheckService probes one service and returns its updated view. Only
// configuration errors are returned: an unknown key, or a target outside the
// allow-list, in which case no request is issued and the record is left as
// it was. A failing probe is recorded, not returned.
func (m *Monitor) CheckService(ctx context.Context, key string) (ServiceHealth, error) {
	rec, ok := m.lookup(key)
	if !ok {
		return ServiceHealth{}, apperr.NotFound("Service inconnu").Wrap(fmt.Errorf("service %q not registered", key))
	}
	target, err := m.guard.Check(rec.desc.HealthURL())
	if err != nil {
		return ServiceHealth{}, err
	}

	start := m.now()
	perr := m.probe(ctx, key, target.String())
	elapsed := m.now().Sub(start)
	if perr != nil && ctx.Err() != nil {
		// The caller went away; the probe says nothing about the service.
		return rec.snapshot(), ctx.Err()
	}

	rec.mu.Lock()
	prev := rec.state.copy()
	m.apply(&rec.state, perr, elapsed)
	cur := rec.state.copy()
	rec.mu.Unlock()

	m.observe(prev, cur, perr, elapsed)
	return cur, nil
}

func (m *Monitor) probe(ctx context.Context, key, target string) error {
	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()
	ctx, span := m.tracer.Start(ctx, "health probe "+key,
		trace.WithAttributes(attribute.String("gateway.service", key)),
	)
	defer span.End()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	resp, err := m.client.Do(req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "probe failed")
		return err
	}
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
	resp.Body.Close()
	if resp.StatusCode >= http.StatusInternalServerError {
		span.SetStatus(codes.Error, resp.Status)
		return statusError(resp.StatusCode)
	}
	return nil
}

// apply runs one step of the state machine.
func (m *Monitor) apply(s *ServiceHealth, perr error, elapsed time.Duration) {
	now := m.now()
	s.LastCheck = &now
	if perr == nil {
		latency := elapsed.Milliseconds()
		s.Status = StatusUp
		s.ConsecutiveFailures = 0
		s.LatencyMs = &latency
		s.LastError = nil
		return
	}
	s.ConsecutiveFailures++
	if s.ConsecutiveFailures >= s.MaxFailures {
		s.Status = StatusDown
	} else {
		s.Status = StatusDegraded
	}
	msg := sanitize(perr)
	s.LastError = &msg
}

func (m *Monitor) observe(prev, cur ServiceHealth, perr error, elapsed time.Duration) {
	m.metrics.ObserveProbe(cur.Key, perr == nil, elapsed)
	if prev.Status != cur.Status {
		fields := []zap.Field{
			zap.String("service", cur.Key),
			zap.String("from", string(prev.Status)),
			zap.String("to", string(cur.Status)),
			zap.Int("failures", cur.ConsecutiveFailures),
		}
		if perr != nil {
			fields = append(fields, zap.Error(perr))
		}
		if cur.Status == StatusDown {
			m.logger.Warn("service status changed", fields...)
		} else {
			m.logger.Info("service status changed", fields...)
		}
	}
	if m.observer != nil {
		m.observer(prev, cur)
	}
}

// CheckAll probes every registered service concurrently and returns the
// resulting views in registration order. A service that cannot be probed
// because of its configuration keeps its status and failure count, but the
// reason shows up as its last error.
func (m *Monitor) CheckAll(ctx context.Context) []ServiceHealth {
	recs := m.all()
	out := make([]ServiceHealth, len(recs))
	g := new(errgroup.Group)
	g.SetLimit(m.concurrency)
	for i, rec := range recs {
		i, rec := i, rec
		g.Go(func() error {
			h, err := m.CheckService(ctx, rec.desc.Key)
			switch {
			case err == nil:
			case apperr.IsKind(err, apperr.KindConfiguration):
				m.logger.Error("health check not performed",
					zap.String("service", rec.desc.Key),
					zap.Error(err),
				)
				reason := "invalid health endpoint"
				if errors.Is(err, ErrHostNotAllowed) {
					reason = sanitize(err)
				}
				h = rec.misconfigured(reason)
			default:
				h = rec.snapshot()
			}
			out[i] = h
			return nil
		})
	}
	_ = g.Wait()
	return out
}

// OverallStatus probes every service, then folds their statuses.
func (m *Monitor) OverallStatus(ctx context.Context) (Overall, []ServiceHealth) {
	views := m.CheckAll(ctx)
	statuses := make([]Status, len(views))
	for i, v := range views {
		statuses[i] = v.Status
	}
	return Fold(statuses), views
}

// Fold reduces service statuses to an overall status. Unknown counts as
// healthy.
func Fold(statuses []Status) Overall {
	overall := OverallHealthy
	for _, s := range statuses {
		switch s {
		case StatusDown:
			return OverallUnhealthy
		case StatusDegraded:
			overall = OverallDegraded
		}
	}
	return overall
}

// ServiceStatus returns the last-known view of key without probing.
func (m *Monitor) ServiceStatus(key string) (ServiceHealth, bool) {
	rec, ok := m.lookup(key)
	if !ok {
		return ServiceHealth{}, false
	}
	return rec.snapshot(), true
}

// AllServices returns the last-known view of every service without probing.
func (m *Monitor) AllServices() []ServiceHealth {
	recs := m.all()
	out := make([]ServiceHealth, len(recs))
	for i, rec := range recs {
		out[i] = rec.snapshot()
	}
	return out
}
