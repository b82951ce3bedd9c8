package registry

const (
	DefaultHealthEndpoint = "/health"
	DefaultSwaggerPath    = "/swagger.json"
)

// ServiceDescriptor represents a backend service fronted by the gateway.
// Descriptors are immutable once registered.
type ServiceDescriptor struct {
	Key            string  `json:"key" example:"containers"`
	DisplayName    string  `json:"displayName" example:"containers-service"`
	BaseURL        string  `json:"baseUrl" example:"http://localhost:3011"`
	HealthEndpoint string  `json:"healthEndpoint" example:"/health"`
	SwaggerPath    string  `json:"swaggerPath" example:"/swagger.json"`
	Routes         []Route `json:"routes"`
}

// Route binds a public mount path to its rewrite rule.
type Route struct {
	MountPath string      `json:"mountPath" example:"/api/containers"`
	Rewrite   RewriteRule `json:"rewrite"`
}

// HealthURL is the absolute URL probed by the health monitor.
func (d ServiceDescriptor) HealthURL() string { return d.BaseURL + d.HealthEndpoint }

// SwaggerURL is the absolute URL of the upstream OpenAPI document.
func (d ServiceDescriptor) SwaggerURL() string { return d.BaseURL + d.SwaggerPath }

// MountPaths lists the descriptor's mount paths in declaration order.
func (d ServiceDescriptor) MountPaths() []string {
	out := make([]string, len(d.Routes))
	for i, rt := range d.Routes {
		out[i] = rt.MountPath
	}
	return out
}

func (d ServiceDescriptor) clone() ServiceDescriptor {
	cp := d
	cp.Routes = append([]Route(nil), d.Routes...)
	return cp
}
