package registry

import (
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strings"
	"sync"

	"ecotrack/api-gateway/internal/apperr"
)

var (
	ErrDuplicateMount = errors.New("duplicate mount path")
	ErrDuplicateKey   = errors.New("duplicate service key")
	ErrInvalidService = errors.New("invalid service descriptor")
)

type mountEntry struct {
	path  string
	key   string
	route Route
}

// Registry holds registered services and resolves paths by longest mount prefix.
type Registry struct {
	mu       sync.RWMutex
	services []ServiceDescriptor
	byKey    map[string]int
	byMount  map[string]string
	order    []mountEntry // sorted by path length desc
}

func New() *Registry {
	return &Registry{byKey: map[string]int{}, byMount: map[string]string{}}
}

func invalid(err error) error {
	return apperr.Configuration("invalid service registration", err)
}

// Register validates desc, applies defaults and adds it. It fails without
// side effects on an invalid BaseURL, a reused key or a mount path that is
// already owned.
func (r *Registry) Register(desc ServiceDescriptor) error {
	d, err := normalize(desc)
	if err != nil {
		return invalid(err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byKey[d.Key]; ok {
		return invalid(fmt.Errorf("%w: %q", ErrDuplicateKey, d.Key))
	}
	for _, rt := range d.Routes {
		if owner, ok := r.byMount[rt.MountPath]; ok {
			return invalid(fmt.Errorf("%w: %q already mounted by %q", ErrDuplicateMount, rt.MountPath, owner))
		}
	}

	r.byKey[d.Key] = len(r.services)
	r.services = append(r.services, d)
	for _, rt := range d.Routes {
		r.byMount[rt.MountPath] = d.Key
		r.order = append(r.order, mountEntry{path: rt.MountPath, key: d.Key, route: rt})
	}
	sort.SliceStable(r.order, func(i, j int) bool { return len(r.order[i].path) > len(r.order[j].path) })
	return nil
}

// Resolve finds the service owning path by longest mount prefix on a segment
// boundary: "/api/containers/42" matches "/api/containers" but
// "/api/containersX" does not.
func (r *Registry) Resolve(path string) (ServiceDescriptor, Route, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, m := range r.order {
		if path == m.path || strings.HasPrefix(path, m.path+"/") {
			return r.services[r.byKey[m.key]].clone(), m.route, true
		}
	}
	return ServiceDescriptor{}, Route{}, false
}

// List returns all services in registration order.
func (r *Registry) List() []ServiceDescriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]ServiceDescriptor, len(r.services))
	for i, d := range r.services {
		out[i] = d.clone()
	}
	return out
}

func (r *Registry) Get(key string) (ServiceDescriptor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	i, ok := r.byKey[key]
	if !ok {
		return ServiceDescriptor{}, false
	}
	return r.services[i].clone(), true
}

// Len reports the number of registered services.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.services)
}

// NormalizeMount returns p with a leading "/" and no trailing "/".
func NormalizeMount(p string) (string, error) {
	p = strings.TrimSpace(p)
	p = strings.TrimRight(p, "/")
	if p == "" {
		return "", fmt.Errorf("%w: mount path must not be empty or root", ErrInvalidService)
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	if strings.ContainsAny(p, "?#*{} ") || strings.Contains(p, "//") {
		return "", fmt.Errorf("%w: mount path %q contains reserved characters", ErrInvalidService, p)
	}
	return p, nil
}

func normalize(desc ServiceDescriptor) (ServiceDescriptor, error) {
	d := desc.clone()
	d.Key = strings.TrimSpace(d.Key)
	if d.Key == "" {
		return d, fmt.Errorf("%w: key is required", ErrInvalidService)
	}
	base, err := normalizeBaseURL(d.BaseURL)
	if err != nil {
		return d, fmt.Errorf("%w: service %q: %v", ErrInvalidService, d.Key, err)
	}
	d.BaseURL = base
	if d.DisplayName == "" {
		d.DisplayName = d.Key
	}
	d.HealthEndpoint = withLeadingSlash(d.HealthEndpoint, DefaultHealthEndpoint)
	d.SwaggerPath = withLeadingSlash(d.SwaggerPath, DefaultSwaggerPath)

	if len(d.Routes) == 0 {
		return d, fmt.Errorf("%w: service %q has no routes", ErrInvalidService, d.Key)
	}
	seen := make(map[string]struct{}, len(d.Routes))
	for i, rt := range d.Routes {
		mp, err := NormalizeMount(rt.MountPath)
		if err != nil {
			return d, fmt.Errorf("service %q: %w", d.Key, err)
		}
		if _, dup := seen[mp]; dup {
			return d, fmt.Errorf("%w: %q declared twice by %q", ErrDuplicateMount, mp, d.Key)
		}
		seen[mp] = struct{}{}
		d.Routes[i].MountPath = mp
	}
	return d, nil
}

func normalizeBaseURL(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", errors.New("base URL is required")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("parse base URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("base URL scheme %q is not http or https", u.Scheme)
	}
	if u.Host == "" {
		return "", errors.New("base URL has no host")
	}
	return strings.TrimRight(raw, "/"), nil
}

func withLeadingSlash(p, def string) string {
	p = strings.TrimSpace(p)
	if p == "" {
		return def
	}
	if !strings.HasPrefix(p, "/") {
		return "/" + p
	}
	return p
}
