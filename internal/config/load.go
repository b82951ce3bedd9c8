package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// ErrInvalid wraps every configuration failure.
var ErrInvalid = errors.New("invalid configuration")

// bindings maps config keys to the environment variables that set them.
var bindings = map[string]string{
	"server.port":                 "GATEWAY_PORT",
	"server.version":              "GATEWAY_VERSION",
	"server.frontend_url":         "FRONTEND_URL",
	"server.shutdown_timeout_ms":  "SHUTDOWN_TIMEOUT_MS",
	"server.trusted_proxies":      "GATEWAY_TRUSTED_PROXIES",
	"log.level":                   "LOG_LEVEL",
	"log.format":                  "LOG_FORMAT",
	"auth.jwt_secret":             "JWT_SECRET",
	"upstreams.users.port":        "USERS_PORT",
	"upstreams.users.url":         "USERS_SERVICE_URL",
	"upstreams.containers.port":   "CONTAINERS_PORT",
	"upstreams.containers.url":    "CONTAINERS_SERVICE_URL",
	"upstreams.gamification.port": "GAMIFICATION_PORT",
	"upstreams.gamification.url":  "GAMIFICATION_SERVICE_URL",
	"ratelimit.window_ms":         "GATEWAY_RATE_WINDOW_MS",
	"ratelimit.max":               "GATEWAY_RATE_MAX",
	"ratelimit.public_window_ms":  "GATEWAY_PUBLIC_RATE_WINDOW_MS",
	"ratelimit.public_max":        "GATEWAY_PUBLIC_RATE_MAX",
	"ratelimit.redis_addr":        "RATE_LIMIT_REDIS_ADDR",
	"health.interval_ms":          "HEALTH_CHECK_INTERVAL",
	"health.timeout_ms":           "HEALTH_CHECK_TIMEOUT",
	"health.max_failures":         "HEALTH_CHECK_MAX_FAILURES",
	"health.allowed_hosts":        "ALLOWED_HEALTH_CHECK_HOSTS",
	"proxy.timeout_ms":            "GATEWAY_PROXY_TIMEOUT_MS",
	"catalog.database_url":        "CATALOG_DATABASE_URL",
	"catalog.schema":              "CATALOG_DB_SCHEMA",
	"telemetry.otlp_endpoint":     "OTEL_EXPORTER_OTLP_ENDPOINT",
	"config_file":                 "GATEWAY_CONFIG_FILE",
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 3000)
	v.SetDefault("server.version", "1.0.0")
	v.SetDefault("server.frontend_url", "http://localhost:5173")
	v.SetDefault("server.shutdown_timeout_ms", 10000)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("upstreams.users.port", 3010)
	v.SetDefault("upstreams.containers.port", 3011)
	v.SetDefault("upstreams.gamification.port", 3012)
	v.SetDefault("ratelimit.window_ms", 60000)
	v.SetDefault("ratelimit.max", 100)
	v.SetDefault("ratelimit.public_window_ms", 900000)
	v.SetDefault("ratelimit.public_max", 50)
	v.SetDefault("health.interval_ms", 30000)
	v.SetDefault("health.timeout_ms", 5000)
	v.SetDefault("health.max_failures", 3)
	v.SetDefault("health.allowed_hosts", "localhost,127.0.0.1")
	v.SetDefault("proxy.timeout_ms", 10000)
	v.SetDefault("catalog.schema", "gateway")
}

// Load reads configuration from the environment and, when GATEWAY_CONFIG_FILE
// is set, from that YAML file. Environment variables take precedence.
func Load() (*Config, error) {
	v := viper.New()
	setDefaults(v)
	for key, env := range bindings {
		if err := v.BindEnv(key, env); err != nil {
			return nil, fmt.Errorf("%w: bind %s: %v", ErrInvalid, env, err)
		}
	}

	if path := v.GetString("config_file"); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("%w: read config file %s: %v", ErrInvalid, path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("%w: decode: %v", ErrInvalid, err)
	}
	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

var validate = validator.New()

// Validate checks struct constraints and returns a readable list of violations.
func Validate(cfg *Config) error {
	err := validate.Struct(cfg)
	if err == nil {
		if _, err := cfg.Server.TrustedProxyPrefixes(); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalid, err)
		}
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("%w: validation failed: %v", ErrInvalid, err)
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fmt.Sprintf("%s failed %q", fe.Namespace(), fe.Tag()))
	}
	return fmt.Errorf("%w: validation failed: %s", ErrInvalid, strings.Join(msgs, "; "))
}

func parseCSVSet(raw string) map[string]struct{} {
	out := make(map[string]struct{})
	for _, part := range strings.Split(raw, ",") {
		trimmed := strings.ToLower(strings.TrimSpace(part))
		if trimmed == "" {
			continue
		}
		out[trimmed] = struct{}{}
	}
	return out
}
