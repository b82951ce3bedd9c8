package auth

import (
	"net/http"
	"strings"
)

// PublicRoute lets requests through without a token when the path starts
// with Prefix and the method is in Methods. Empty Methods matches any method.
type PublicRoute struct {
	Prefix  string   `json:"prefix"`
	Methods []string `json:"methods,omitempty"`
}

func (p PublicRoute) matches(path, method string) bool {
	if !strings.HasPrefix(path, p.Prefix) {
		return false
	}
	if len(p.Methods) == 0 {
		return true
	}
	for _, m := range p.Methods {
		if strings.EqualFold(m, method) {
			return true
		}
	}
	return false
}

// PublicRoutes is an ordered public route table.
type PublicRoutes []PublicRoute

func DefaultPublicRoutes() PublicRoutes {
	return PublicRoutes{
		{Prefix: "/auth/login", Methods: []string{http.MethodPost}},
		{Prefix: "/auth/register", Methods: []string{http.MethodPost}},
		{Prefix: "/auth/refresh", Methods: []string{http.MethodPost}},
		{Prefix: "/health", Methods: []string{http.MethodGet}},
		{Prefix: "/api-docs", Methods: []string{http.MethodGet}},
		{Prefix: "/metrics", Methods: []string{http.MethodGet}},
	}
}

// IsPublic reports whether path and method skip authentication.
// Matching is a literal prefix test, so "/healthz" is public too.
func (p PublicRoutes) IsPublic(path, method string) bool {
	for _, rt := range p {
		if rt.matches(path, method) {
			return true
		}
	}
	return false
}
