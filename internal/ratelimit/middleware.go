package ratelimit

import (
	"net/http"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"ecotrack/api-gateway/internal/apperr"
	"ecotrack/api-gateway/internal/metrics"
	"ecotrack/api-gateway/internal/util"
)

const msgTooManyRequests = "Trop de requêtes, veuillez réessayer plus tard"

// Matcher selects the requests a limiter applies to.
type Matcher func(r *http.Request) bool

// PathPrefixes matches requests under any of prefixes, on segment boundaries.
func PathPrefixes(prefixes ...string) Matcher {
	return func(r *http.Request) bool {
		p := r.URL.Path
		for _, pre := range prefixes {
			if p == pre || strings.HasPrefix(p, pre+"/") {
				return true
			}
		}
		return false
	}
}

// Middleware enforces l on requests accepted by match (all when nil), keyed by
// client IP. Rejections get 429 with Retry-After; every limited request gets
// the X-RateLimit-* headers.
func (l *Limiter) Middleware(logger *zap.Logger, m *metrics.Metrics, match Matcher) func(http.Handler) http.Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.With(zap.String("limiter", l.Name))

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if match != nil && !match(r) {
				next.ServeHTTP(w, r)
				return
			}
			ip := util.ClientIP(r)
			d, err := l.Allow(r.Context(), ip)
			if err != nil {
				l.storeLog.Do(func() {
					logger.Warn("rate limit store unavailable, failing open", zap.Error(err))
				})
				next.ServeHTTP(w, r)
				return
			}

			h := w.Header()
			h.Set("X-RateLimit-Limit", strconv.Itoa(d.Limit))
			h.Set("X-RateLimit-Remaining", strconv.Itoa(d.Remaining))
			h.Set("X-RateLimit-Reset", strconv.FormatInt(d.ResetAt.Unix(), 10))

			if !d.Allowed {
				m.RateLimited(l.Name)
				retry := d.RetryAfterSeconds()
				l.rejectLog.Do(func() {
					logger.Warn("rate limit exceeded",
						zap.String("client_ip", ip),
						zap.String("path", r.URL.Path),
						zap.Int64("count", d.Count),
						zap.Int("retry_after", retry),
					)
				})
				h.Set("Retry-After", strconv.Itoa(retry))
				util.WriteError(w, apperr.TooManyRequests(msgTooManyRequests, retry).WithDetail("limit", d.Limit))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
