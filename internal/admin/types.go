package admin

import (
	"ecotrack/api-gateway/internal/health"
	"ecotrack/api-gateway/internal/registry"
)

// ServiceView is a registered service together with its last-known health.
type ServiceView struct {
	registry.ServiceDescriptor
	Health health.ServiceHealth `json:"health"`
}

// ServiceList is the /admin/services response.
type ServiceList struct {
	Count    int           `json:"count" example:"3"`
	Services []ServiceView `json:"services"`
}

// Resolution tells which service and route own a public path, and what the
// upstream would receive.
type Resolution struct {
	Path         string         `json:"path" example:"/api/gamification/actions/7"`
	Service      string         `json:"service" example:"gamification"`
	Route        registry.Route `json:"route"`
	UpstreamPath string         `json:"upstreamPath" example:"/actions/7"`
}
