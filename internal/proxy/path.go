package proxy

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/go-chi/chi/v5"

	"ecotrack/api-gateway/internal/registry"
)

// UpstreamPath rebuilds the public path from the mount and the remainder
// chi left after stripping it, then applies rule. remaining is in escaped
// form and so is the result.
//
//	UpstreamPath("/api/gamification/actions", "/7", PrefixStrip("/api/gamification"), r) == "/actions/7"
func UpstreamPath(mount, remaining string, rule registry.RewriteRule, r *http.Request) string {
	if remaining != "" && !strings.HasPrefix(remaining, "/") {
		remaining = "/" + remaining
	}
	return rule.Apply(mount+remaining, r)
}

// remainingPath is the escaped part of the request path below mount. The
// escaped form keeps %2F and friends intact so they reach the upstream as
// the client sent them.
func remainingPath(r *http.Request, mount string) string {
	if rest, ok := strings.CutPrefix(r.URL.EscapedPath(), mount); ok {
		return rest
	}
	if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePath != "" {
		return rctx.RoutePath
	}
	return ""
}

// setPath writes an escaped path onto u, keeping Path and RawPath coherent.
func setPath(u *url.URL, escaped string) {
	p, err := url.PathUnescape(escaped)
	if err != nil {
		u.Path, u.RawPath = escaped, ""
		return
	}
	u.Path = p
	u.RawPath = ""
	if u.EscapedPath() != escaped {
		u.RawPath = escaped
	}
}
