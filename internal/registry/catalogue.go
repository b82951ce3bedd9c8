package registry

import (
	"strconv"

	"ecotrack/api-gateway/internal/config"
)

const gamificationPrefix = "/api/gamification"

// Builtin returns the EcoTrack backends: users, containers and gamification.
func Builtin(cfg config.UpstreamsConfig) []ServiceDescriptor {
	return []ServiceDescriptor{
		{
			Key:         "users",
			DisplayName: "users-service",
			BaseURL:     upstreamURL(cfg.Users, 3010),
			Routes:      mounts(NoRewrite(), "/auth", "/users"),
		},
		{
			Key:         "containers",
			DisplayName: "containers-service",
			BaseURL:     upstreamURL(cfg.Containers, 3011),
			Routes:      mounts(NoRewrite(), "/api/containers", "/api/zones", "/api/typecontainers", "/api/stats"),
		},
		{
			Key:         "gamification",
			DisplayName: "gamification-service",
			BaseURL:     upstreamURL(cfg.Gamification, 3012),
			Routes: mounts(PrefixStrip(gamificationPrefix),
				gamificationPrefix+"/actions",
				gamificationPrefix+"/badges",
				gamificationPrefix+"/defis",
				gamificationPrefix+"/classement",
				gamificationPrefix+"/notifications",
			),
		},
	}
}

// FromConfig converts services declared in the config file.
func FromConfig(services []config.ServiceConfig) []ServiceDescriptor {
	out := make([]ServiceDescriptor, 0, len(services))
	for _, s := range services {
		d := ServiceDescriptor{
			Key:            s.Key,
			DisplayName:    s.DisplayName,
			BaseURL:        s.BaseURL,
			HealthEndpoint: s.HealthEndpoint,
			SwaggerPath:    s.SwaggerPath,
		}
		for _, rt := range s.Routes {
			d.Routes = append(d.Routes, Route{MountPath: rt.Mount, Rewrite: PrefixStrip(rt.StripPrefix)})
		}
		out = append(out, d)
	}
	return out
}

func upstreamURL(u config.UpstreamConfig, defPort int) string {
	if u.URL != "" {
		return u.URL
	}
	port := u.Port
	if port == 0 {
		port = defPort
	}
	return "http://localhost:" + strconv.Itoa(port)
}

func mounts(rw RewriteRule, paths ...string) []Route {
	out := make([]Route, len(paths))
	for i, p := range paths {
		out[i] = Route{MountPath: p, Rewrite: rw}
	}
	return out
}
