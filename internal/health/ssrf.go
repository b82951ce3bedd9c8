package health

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"os"
	"strconv"
	"strings"
	"syscall"

	"ecotrack/api-gateway/internal/apperr"
)

// ErrHostNotAllowed is returned when a probe or documentation fetch targets a
// host outside the allow-list. It is a configuration error: no request is
// issued.
var ErrHostNotAllowed = errors.New("host not allowed")

// Guard restricts outbound gateway-initiated requests to an allow-list of
// hostnames. Hostnames are compared lowercase and without port.
type Guard struct {
	hosts map[string]struct{}
}

func NewGuard(hosts map[string]struct{}) Guard {
	g := Guard{hosts: make(map[string]struct{}, len(hosts))}
	for h := range hosts {
		g.hosts[strings.ToLower(strings.TrimSpace(h))] = struct{}{}
	}
	return g
}

// Check parses raw and verifies its scheme and hostname.
func (g Guard) Check(raw string) (*url.URL, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, apperr.Configuration("invalid outbound target", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, apperr.Configuration("invalid outbound target", fmt.Errorf("%w: scheme %q", ErrHostNotAllowed, u.Scheme))
	}
	host := strings.ToLower(u.Hostname())
	if _, ok := g.hosts[host]; !ok || host == "" {
		return nil, apperr.Configuration("outbound target not allowed", fmt.Errorf("%w: %s", ErrHostNotAllowed, host))
	}
	return u, nil
}

// sanitize reduces a probe failure to a short description that carries no
// URL, address or port.
func sanitize(err error) string {
	var dnsErr *net.DNSError
	var nerr net.Error
	switch {
	case err == nil:
		return ""
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, os.ErrDeadlineExceeded):
		return "timeout"
	case errors.Is(err, syscall.ECONNREFUSED):
		return "connection refused"
	case errors.Is(err, syscall.ECONNRESET):
		return "connection reset"
	case errors.As(err, &dnsErr):
		return "host not found"
	case errors.As(err, &nerr) && nerr.Timeout():
		return "timeout"
	case errors.Is(err, ErrHostNotAllowed):
		return "host not allowed"
	}
	var se statusError
	if errors.As(err, &se) {
		return "HTTP " + strconv.Itoa(int(se))
	}
	return "unreachable"
}

// statusError is an upstream 5xx answer.
type statusError int

func (e statusError) Error() string { return "status " + strconv.Itoa(int(e)) }
