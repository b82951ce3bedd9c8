package admin

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ecotrack/api-gateway/internal/auth"
	"ecotrack/api-gateway/internal/health"
	"ecotrack/api-gateway/internal/registry"
)

type okTransport struct{ calls int }

func (t *okTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	t.calls++
	return &http.Response{StatusCode: http.StatusOK, Body: io.NopCloser(strings.NewReader("ok")), Header: http.Header{}, Request: req}, nil
}

func setup(t *testing.T) (http.Handler, *okTransport) {
	t.Helper()
	reg := registry.New()
	require.NoError(t, reg.Register(registry.ServiceDescriptor{
		Key: "users", DisplayName: "users-service", BaseURL: "http://localhost:3010",
		Routes: []registry.Route{{MountPath: "/auth"}, {MountPath: "/users"}},
	}))
	require.NoError(t, reg.Register(registry.ServiceDescriptor{
		Key: "gamification", BaseURL: "http://localhost:3012",
		Routes: []registry.Route{{MountPath: "/api/gamification/actions", Rewrite: registry.PrefixStrip("/api/gamification")}},
	}))
	tr := &okTransport{}
	mon := health.NewMonitor(reg, health.Options{
		Client:       &http.Client{Transport: tr},
		AllowedHosts: map[string]struct{}{"localhost": {}},
	})

	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			if role := req.Header.Get("Test-Role"); role != "" {
				req = req.WithContext(auth.WithIdentity(req.Context(), auth.Identity{ID: "1", Role: role}))
			}
			next.ServeHTTP(w, req)
		})
	})
	NewHandler(reg, mon).Routes(r)
	return r, tr
}

func do(h http.Handler, method, path, role string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	if role != "" {
		req.Header.Set("Test-Role", role)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestAdminRequiresRole(t *testing.T) {
	h, _ := setup(t)

	rec := do(h, http.MethodGet, "/admin/services", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = do(h, http.MethodGet, "/admin/services", "CITOYEN")
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.JSONEq(t, `{"error":"Forbidden","message":"Accès refusé","requiredRoles":["ADMIN"]}`, rec.Body.String())
}

func TestListServices(t *testing.T) {
	h, tr := setup(t)

	rec := do(h, http.MethodGet, "/admin/services", AdminRole)
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Count    int `json:"count"`
		Services []struct {
			Key    string `json:"key"`
			Routes []struct {
				MountPath string `json:"mountPath"`
			} `json:"routes"`
			Health struct {
				Status string `json:"status"`
			} `json:"health"`
		} `json:"services"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, 2, body.Count)
	require.Len(t, body.Services, 2)
	assert.Equal(t, "users", body.Services[0].Key)
	assert.Len(t, body.Services[0].Routes, 2)
	assert.Equal(t, "unknown", body.Services[1].Health.Status)
	assert.Zero(t, tr.calls)
}

func TestGetAndCheckService(t *testing.T) {
	h, tr := setup(t)

	rec := do(h, http.MethodGet, "/admin/services/gamification", AdminRole)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"mountPath":"/api/gamification/actions"`)

	rec = do(h, http.MethodGet, "/admin/services/orders", AdminRole)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(h, http.MethodPost, "/admin/services/users/check", AdminRole)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"up"`)
	assert.Equal(t, 1, tr.calls)

	rec = do(h, http.MethodGet, "/admin/services/users", AdminRole)
	assert.Contains(t, rec.Body.String(), `"status":"up"`)
}

func TestResolveRoute(t *testing.T) {
	h, _ := setup(t)

	tests := []struct {
		path   string
		status int
		body   string
	}{
		{
			path:   "/api/gamification/actions/7",
			status: http.StatusOK,
			body:   `{"path":"/api/gamification/actions/7","service":"gamification","route":{"mountPath":"/api/gamification/actions","rewrite":{"kind":"prefix-strip","prefix":"/api/gamification"}},"upstreamPath":"/actions/7"}`,
		},
		{
			path:   "/users/profile",
			status: http.StatusOK,
			body:   `{"path":"/users/profile","service":"users","route":{"mountPath":"/users","rewrite":{"kind":"none"}},"upstreamPath":"/users/profile"}`,
		},
		{path: "/usersX", status: http.StatusNotFound},
		{path: "", status: http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			rec := do(h, http.MethodGet, "/admin/routes/resolve?path="+url.QueryEscape(tt.path), AdminRole)
			assert.Equal(t, tt.status, rec.Code)
			if tt.body != "" {
				assert.JSONEq(t, tt.body, rec.Body.String())
			}
		})
	}

	rec := do(h, http.MethodGet, "/admin/routes/resolve?path=/users", "CITOYEN")
	assert.Equal(t, http.StatusForbidden, rec.Code)
}
