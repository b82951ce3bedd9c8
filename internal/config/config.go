package config

import (
	"fmt"
	"net/netip"
	"strings"
	"time"
)

// Config holds all gateway configuration.
type Config struct {
	Server    ServerConfig    `mapstructure:"server" validate:"required"`
	Log       LogConfig       `mapstructure:"log" validate:"required"`
	Auth      AuthConfig      `mapstructure:"auth" validate:"required"`
	Upstreams UpstreamsConfig `mapstructure:"upstreams" validate:"required"`
	RateLimit RateLimitConfig `mapstructure:"ratelimit" validate:"required"`
	Health    HealthConfig    `mapstructure:"health" validate:"required"`
	Proxy     ProxyConfig     `mapstructure:"proxy" validate:"required"`
	Catalog   CatalogConfig   `mapstructure:"catalog"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`

	// Services are extra upstreams declared in the optional config file.
	Services []ServiceConfig `mapstructure:"services" validate:"dive"`
}

type ServerConfig struct {
	Port            int    `mapstructure:"port" validate:"required,gt=0,lt=65536"`
	Version         string `mapstructure:"version" validate:"required"`
	FrontendURL     string `mapstructure:"frontend_url"`
	ShutdownTimeout int    `mapstructure:"shutdown_timeout_ms" validate:"gt=0"`
	// TrustedProxies lists the peers (addresses or CIDRs) whose forwarding
	// headers are believed. Empty trusts nobody.
	TrustedProxies string `mapstructure:"trusted_proxies"`
}

type LogConfig struct {
	Level  string `mapstructure:"level" validate:"required,oneof=debug info warn error"`
	Format string `mapstructure:"format" validate:"required,oneof=json console"`
}

type AuthConfig struct {
	JWTSecret string `mapstructure:"jwt_secret" validate:"required"`
}

// UpstreamConfig locates one built-in backend. URL wins over Port.
type UpstreamConfig struct {
	Port int    `mapstructure:"port" validate:"gt=0,lt=65536"`
	URL  string `mapstructure:"url" validate:"omitempty,url"`
}

type UpstreamsConfig struct {
	Users        UpstreamConfig `mapstructure:"users"`
	Containers   UpstreamConfig `mapstructure:"containers"`
	Gamification UpstreamConfig `mapstructure:"gamification"`
}

type RateLimitConfig struct {
	WindowMs       int    `mapstructure:"window_ms" validate:"gt=0"`
	Max            int    `mapstructure:"max" validate:"gt=0"`
	PublicWindowMs int    `mapstructure:"public_window_ms" validate:"gt=0"`
	PublicMax      int    `mapstructure:"public_max" validate:"gt=0"`
	RedisAddr      string `mapstructure:"redis_addr" validate:"omitempty,hostname_port"`
}

type HealthConfig struct {
	IntervalMs   int    `mapstructure:"interval_ms" validate:"gt=0"`
	TimeoutMs    int    `mapstructure:"timeout_ms" validate:"gt=0"`
	MaxFailures  int    `mapstructure:"max_failures" validate:"gt=0"`
	AllowedHosts string `mapstructure:"allowed_hosts"`
}

type ProxyConfig struct {
	TimeoutMs int `mapstructure:"timeout_ms" validate:"gt=0"`
}

// CatalogConfig enables the Postgres service catalogue when DatabaseURL is set.
type CatalogConfig struct {
	DatabaseURL string `mapstructure:"database_url"`
	Schema      string `mapstructure:"schema" validate:"omitempty,max=63"`
}

type TelemetryConfig struct {
	OTLPEndpoint string `mapstructure:"otlp_endpoint"`
}

// ServiceConfig declares an upstream in the config file.
type ServiceConfig struct {
	Key            string        `mapstructure:"key" validate:"required"`
	DisplayName    string        `mapstructure:"display_name"`
	BaseURL        string        `mapstructure:"base_url" validate:"required,url"`
	HealthEndpoint string        `mapstructure:"health_endpoint"`
	SwaggerPath    string        `mapstructure:"swagger_path"`
	Routes         []RouteConfig `mapstructure:"routes" validate:"required,min=1,dive"`
}

type RouteConfig struct {
	Mount       string `mapstructure:"mount" validate:"required,startswith=/"`
	StripPrefix string `mapstructure:"strip_prefix" validate:"omitempty,startswith=/"`
}

func ms(n int) time.Duration { return time.Duration(n) * time.Millisecond }

func (c ServerConfig) ShutdownTimeoutDuration() time.Duration { return ms(c.ShutdownTimeout) }
func (c RateLimitConfig) Window() time.Duration { return ms(c.WindowMs) }
func (c RateLimitConfig) PublicWindow() time.Duration { return ms(c.PublicWindowMs) }
func (c HealthConfig) Interval() time.Duration { return ms(c.IntervalMs) }
func (c HealthConfig) Timeout() time.Duration { return ms(c.TimeoutMs) }
func (c ProxyConfig) Timeout() time.Duration { return ms(c.TimeoutMs) }

// AllowedHostSet parses the comma-separated health-check allow-list.
func (c HealthConfig) AllowedHostSet() map[string]struct{} {
	return parseCSVSet(c.AllowedHosts)
}

// TrustedProxyPrefixes parses TrustedProxies. A bare address is a single-host prefix.
func (c ServerConfig) TrustedProxyPrefixes() ([]netip.Prefix, error) {
	var out []netip.Prefix
	for _, part := range strings.Split(c.TrustedProxies, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if strings.Contains(part, "/") {
			p, err := netip.ParsePrefix(part)
			if err != nil {
				return nil, fmt.Errorf("trusted proxy %q: %w", part, err)
			}
			out = append(out, p.Masked())
			continue
		}
		addr, err := netip.ParseAddr(part)
		if err != nil {
			return nil, fmt.Errorf("trusted proxy %q: %w", part, err)
		}
		addr = addr.Unmap()
		out = append(out, netip.PrefixFrom(addr, addr.BitLen()))
	}
	return out, nil
}
