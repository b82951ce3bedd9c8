package health

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ecotrack/api-gateway/internal/registry"
)

func newHealthRouter(m *Monitor) http.Handler {
	r := chi.NewRouter()
	h := NewHandler(m, "1.2.3", time.Now().Add(-time.Minute))
	h.Routes(r)
	return r
}

func get(h http.Handler, path string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestOverallHealthy(t *testing.T) {
	up := &fakeUpstream{status: http.StatusOK}
	d := service("users", "http://localhost:3010")
	d.DisplayName = "Users Service"
	m := newMonitor(t, up, Options{}, d)

	rec := get(newHealthRouter(m), "/health")
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Status  string  `json:"status"`
		Uptime  float64 `json:"uptime"`
		Gateway struct {
			Status  string `json:"status"`
			Version string `json:"version"`
		} `json:"gateway"`
		Services map[string]struct {
			Status    string  `json:"status"`
			Latency   *int64  `json:"latency"`
			LastCheck *string `json:"lastCheck"`
			Error     *string `json:"error"`
		} `json:"services"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "healthy", body.Status)
	assert.GreaterOrEqual(t, body.Uptime, 59.0)
	assert.Equal(t, "up", body.Gateway.Status)
	assert.Equal(t, "1.2.3", body.Gateway.Version)
	svc, ok := body.Services["Users Service"]
	require.True(t, ok)
	assert.Equal(t, "up", svc.Status)
	assert.NotNil(t, svc.Latency)
	assert.NotNil(t, svc.LastCheck)
	assert.Nil(t, svc.Error)
}

func TestOverallDegradedAndUnhealthy(t *testing.T) {
	up := &fakeUpstream{err: errRefused}
	m := newMonitor(t, up, Options{MaxFailures: 2}, service("orders", "http://localhost:4000"))
	router := newHealthRouter(m)

	rec := get(router, "/health")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"degraded"`)

	rec = get(router, "/health")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"unhealthy"`)
	assert.Contains(t, rec.Body.String(), `"error":"connection refused"`)
}

func TestOverallShowsServiceOutsideAllowList(t *testing.T) {
	up := &fakeUpstream{status: http.StatusOK}
	d := service("evil", "http://evil.example.com")
	d.DisplayName = "evil-service"
	m := newMonitor(t, up, Options{}, d)

	rec := get(newHealthRouter(m), "/health")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Zero(t, up.calls.Load())

	var body struct {
		Services map[string]struct {
			Status string  `json:"status"`
			Error  *string `json:"error"`
		} `json:"services"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	svc, ok := body.Services["evil-service"]
	require.True(t, ok)
	assert.Equal(t, "unknown", svc.Status)
	require.NotNil(t, svc.Error)
	assert.Equal(t, "host not allowed", *svc.Error)
	assert.NotContains(t, rec.Body.String(), "evil.example.com")
}

func TestServicesDoesNotProbe(t *testing.T) {
	up := &fakeUpstream{status: http.StatusOK}
	m := newMonitor(t, up, Options{}, service("users", "http://localhost:3010"), service("containers", "http://localhost:3011"))

	rec := get(newHealthRouter(m), "/health/services")
	require.Equal(t, http.StatusOK, rec.Code)
	var views []ServiceHealth
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &views))
	require.Len(t, views, 2)
	assert.Equal(t, StatusUnknown, views[0].Status)
	assert.Zero(t, up.calls.Load())
}

func TestServiceProbesOne(t *testing.T) {
	up := &fakeUpstream{status: http.StatusOK}
	m := newMonitor(t, up, Options{},
		service("users", "http://localhost:3010"),
		registry.ServiceDescriptor{Key: "evil", BaseURL: "http://evil.example.com", Routes: []registry.Route{{MountPath: "/evil"}}},
	)
	router := newHealthRouter(m)

	rec := get(router, "/health/services/users")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"up"`)
	assert.EqualValues(t, 1, up.calls.Load())

	rec = get(router, "/health/services/missing")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = get(router, "/health/services/evil")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), "Configuration Error")
	assert.NotContains(t, rec.Body.String(), "evil.example.com")
	assert.EqualValues(t, 1, up.calls.Load())
}
