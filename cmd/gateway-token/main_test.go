package main

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunMintsVerifiableToken(t *testing.T) {
	var out bytes.Buffer
	now := time.Now()
	err := run([]string{"-user", "42", "-role", "admin", "-email", "a@ecotrack.fr", "-ttl", "30m"}, "s3cret", &out, now)
	require.NoError(t, err)

	tok, err := jwt.Parse(strings.TrimSpace(out.String()), func(*jwt.Token) (any, error) { return []byte("s3cret"), nil },
		jwt.WithValidMethods([]string{"HS256"}))
	require.NoError(t, err)
	claims := tok.Claims.(jwt.MapClaims)
	assert.Equal(t, "42", claims["userId"])
	assert.Equal(t, "ADMIN", claims["role"])
	assert.Equal(t, "a@ecotrack.fr", claims["email"])
	assert.EqualValues(t, now.Add(30*time.Minute).Unix(), claims["exp"])
	assert.NotEmpty(t, claims["jti"])
}

func TestRunRequiresSecret(t *testing.T) {
	err := run(nil, "", &bytes.Buffer{}, time.Now())
	assert.ErrorContains(t, err, "no secret")
}

func TestRunGeneratesUserID(t *testing.T) {
	var out bytes.Buffer
	require.NoError(t, run([]string{"-secret", "x"}, "", &out, time.Now()))

	tok, _, err := jwt.NewParser().ParseUnverified(strings.TrimSpace(out.String()), jwt.MapClaims{})
	require.NoError(t, err)
	assert.Len(t, tok.Claims.(jwt.MapClaims)["userId"], 36)
}
