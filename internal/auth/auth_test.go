package auth

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ecotrack/api-gateway/internal/apperr"
)

const secret = "test-secret"

func sign(t *testing.T, method jwt.SigningMethod, key any, claims jwt.MapClaims) string {
	t.Helper()
	s, err := jwt.NewWithClaims(method, claims).SignedString(key)
	require.NoError(t, err)
	return s
}

func validClaims() jwt.MapClaims {
	return jwt.MapClaims{
		"userId": "42",
		"role":   "CITOYEN",
		"email":  "alice@ecotrack.fr",
		"exp":    time.Now().Add(time.Hour).Unix(),
	}
}

func reqWith(header string) *http.Request {
	r := httptest.NewRequest(http.MethodGet, "/users/profile", nil)
	if header != "" {
		r.Header.Set("Authorization", header)
	}
	return r
}

func TestIsPublic(t *testing.T) {
	p := DefaultPublicRoutes()
	tests := []struct {
		path   string
		method string
		want   bool
	}{
		{"/auth/login", http.MethodPost, true},
		{"/auth/login", http.MethodGet, false},
		{"/auth/register", http.MethodPost, true},
		{"/auth/refresh", http.MethodPost, true},
		{"/auth/logout", http.MethodPost, false},
		{"/health", http.MethodGet, true},
		{"/health/services/users", http.MethodGet, true},
		{"/health", http.MethodPost, false},
		{"/api-docs/index.html", http.MethodGet, true},
		{"/metrics", http.MethodGet, true},
		{"/users/profile", http.MethodGet, false},
		{"/api/containers", http.MethodGet, false},
	}
	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			got := p.IsPublic(tt.path, tt.method)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, got, p.IsPublic(tt.path, tt.method), "idempotent")
		})
	}
}

func TestIsPublicAnyMethod(t *testing.T) {
	p := PublicRoutes{{Prefix: "/status"}}
	assert.True(t, p.IsPublic("/status", http.MethodDelete))
	assert.True(t, p.IsPublic("/status/deep", http.MethodPatch))
	assert.False(t, p.IsPublic("/other", http.MethodGet))
}

func TestAuthenticateValid(t *testing.T) {
	b := NewBoundary(secret, DefaultPublicRoutes(), nil)
	for _, m := range []jwt.SigningMethod{jwt.SigningMethodHS256, jwt.SigningMethodHS384, jwt.SigningMethodHS512} {
		t.Run(m.Alg(), func(t *testing.T) {
			tok := sign(t, m, []byte(secret), validClaims())
			id, err := b.Authenticate(reqWith("Bearer " + tok))
			require.NoError(t, err)
			assert.Equal(t, Identity{ID: "42", Role: "CITOYEN", Email: "alice@ecotrack.fr"}, id)
		})
	}
}

func TestAuthenticateIDClaims(t *testing.T) {
	b := NewBoundary(secret, nil, nil)
	exp := time.Now().Add(time.Hour).Unix()

	tests := []struct {
		name   string
		claims jwt.MapClaims
		want   string
	}{
		{"numeric userId", jwt.MapClaims{"userId": 7, "role": "ADMIN", "exp": exp}, "7"},
		{"id fallback", jwt.MapClaims{"id": "abc", "role": "ADMIN", "exp": exp}, "abc"},
		{"userId wins", jwt.MapClaims{"userId": 1, "id": 2, "exp": exp}, "1"},
		{"large number", jwt.MapClaims{"userId": 1234567890123, "exp": exp}, "1234567890123"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id, err := b.Authenticate(reqWith("Bearer " + sign(t, jwt.SigningMethodHS256, []byte(secret), tt.claims)))
			require.NoError(t, err)
			assert.Equal(t, tt.want, id.ID)
		})
	}
}

func TestAuthenticateFailures(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	b := NewBoundary(secret, nil, nil, WithClock(func() time.Time { return now }))

	expired := validClaims()
	expired["exp"] = now.Add(-time.Minute).Unix()
	noID := validClaims()
	delete(noID, "userId")
	fresh := validClaims()
	fresh["exp"] = now.Add(time.Hour).Unix()

	tests := []struct {
		name     string
		header   string
		sentinel error
		message  string
	}{
		{"missing", "", ErrMissingToken, "Token JWT manquant"},
		{"wrong scheme", "Basic abc", ErrInvalidFormat, "Format du token invalide"},
		{"lowercase scheme", "bearer " + sign(t, jwt.SigningMethodHS256, []byte(secret), fresh), ErrInvalidFormat, "Format du token invalide"},
		{"three parts", "Bearer a b", ErrInvalidFormat, "Format du token invalide"},
		{"token only", "abc.def.ghi", ErrInvalidFormat, "Format du token invalide"},
		{"expired", "Bearer " + sign(t, jwt.SigningMethodHS256, []byte(secret), expired), ErrTokenExpired, "Token expiré"},
		{"wrong secret", "Bearer " + sign(t, jwt.SigningMethodHS256, []byte("other"), fresh), ErrInvalidToken, "Token invalide"},
		{"garbage", "Bearer not-a-jwt", ErrInvalidToken, "Token invalide"},
		{"empty token", "Bearer ", ErrInvalidToken, "Token invalide"},
		{"no id", "Bearer " + sign(t, jwt.SigningMethodHS256, []byte(secret), noID), ErrInvalidToken, "Token invalide"},
		{"alg none", "Bearer " + sign(t, jwt.SigningMethodNone, jwt.UnsafeAllowNoneSignatureType, fresh), ErrInvalidToken, "Token invalide"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := b.Authenticate(reqWith(tt.header))
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.sentinel)
			e, ok := apperr.As(err)
			require.True(t, ok)
			assert.Equal(t, http.StatusUnauthorized, e.Status)
			assert.Equal(t, tt.message, e.Message)
		})
	}
}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, _ := FromContext(r.Context())
		_ = json.NewEncoder(w).Encode(id)
	})
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var m map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &m))
	return m
}

func TestMiddleware(t *testing.T) {
	b := NewBoundary(secret, DefaultPublicRoutes(), nil)
	h := b.Middleware()(okHandler())

	t.Run("public route skips token", func(t *testing.T) {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/auth/login", nil))
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("missing token", func(t *testing.T) {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, reqWith(""))
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		body := decodeBody(t, rec)
		assert.Equal(t, "Unauthorized", body["error"])
		assert.Equal(t, "Token JWT manquant", body["message"])
	})

	t.Run("identity in context", func(t *testing.T) {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, reqWith("Bearer "+sign(t, jwt.SigningMethodHS256, []byte(secret), validClaims())))
		assert.Equal(t, http.StatusOK, rec.Code)
		body := decodeBody(t, rec)
		assert.Equal(t, "42", body["id"])
		assert.Equal(t, "CITOYEN", body["role"])
	})
}

func TestRequireRole(t *testing.T) {
	h := RequireRole("ADMIN", "GESTIONNAIRE")(okHandler())

	t.Run("no identity", func(t *testing.T) {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/admin/services", nil))
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Equal(t, "Authentification requise", decodeBody(t, rec)["message"])
	})

	t.Run("wrong role", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodGet, "/admin/services", nil)
		r = r.WithContext(WithIdentity(r.Context(), Identity{ID: "1", Role: "CITOYEN"}))
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, r)
		assert.Equal(t, http.StatusForbidden, rec.Code)
		body := decodeBody(t, rec)
		assert.Equal(t, "Accès refusé", body["message"])
		assert.Equal(t, []any{"ADMIN", "GESTIONNAIRE"}, body["requiredRoles"])
	})

	t.Run("case sensitive", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodGet, "/admin/services", nil)
		r = r.WithContext(WithIdentity(r.Context(), Identity{ID: "1", Role: "admin"}))
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, r)
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})

	t.Run("allowed", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodGet, "/admin/services", nil)
		r = r.WithContext(WithIdentity(r.Context(), Identity{ID: "1", Role: "GESTIONNAIRE"}))
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, r)
		assert.Equal(t, http.StatusOK, rec.Code)
	})
}
