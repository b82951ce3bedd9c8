package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConstructorsStatus(t *testing.T) {
	tests := []struct {
		name   string
		err    *Error
		status int
		kind   Kind
	}{
		{"unauthorized", Unauthorized("x"), http.StatusUnauthorized, KindUnauthorized},
		{"forbidden", Forbidden("x", []string{"ADMIN"}), http.StatusForbidden, KindForbidden},
		{"rate", TooManyRequests("x", 3), http.StatusTooManyRequests, KindTooManyRequests},
		{"bad gateway", BadGateway("x", nil), http.StatusBadGateway, KindBadGateway},
		{"config", Configuration("x", nil), http.StatusInternalServerError, KindConfiguration},
		{"not found", NotFound("x"), http.StatusNotFound, KindNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.status, tt.err.Status)
			assert.Equal(t, tt.kind, tt.err.Kind)
		})
	}
}

func TestWrapKeepsChain(t *testing.T) {
	sentinel := errors.New("token expired")
	err := fmt.Errorf("authenticate: %w", Unauthorized("Token expiré").Wrap(sentinel))

	assert.ErrorIs(t, err, sentinel)
	e, ok := As(err)
	require.True(t, ok)
	assert.Equal(t, "Token expiré", e.Message)
	assert.True(t, IsKind(err, KindUnauthorized))
	assert.False(t, IsKind(err, KindForbidden))
}

func TestWithDetailDoesNotMutateOriginal(t *testing.T) {
	base := TooManyRequests("slow down", 10)
	withLimit := base.WithDetail("limit", 100)

	assert.NotContains(t, base.Details, "limit")
	assert.Equal(t, 100, withLimit.Details["limit"])
	assert.Equal(t, 10, withLimit.Details["retryAfter"])
}

func TestForbiddenCopiesRoles(t *testing.T) {
	roles := []string{"ADMIN"}
	err := Forbidden("denied", roles)
	roles[0] = "CITOYEN"

	assert.Equal(t, []string{"ADMIN"}, err.Details["requiredRoles"])
}

func TestFromUnclassified(t *testing.T) {
	e := From(errors.New("boom"))
	assert.Equal(t, KindInternal, e.Kind)
	assert.Equal(t, http.StatusInternalServerError, e.Status)
	assert.NotContains(t, e.Message, "boom")
}
