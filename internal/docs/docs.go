// Package docs holds the gateway's own OpenAPI document, registered with swag
// and served at /api-docs/doc.json.
package docs

import "github.com/swaggo/swag"

const docTemplate = `{
    "schemes": {{ marshal .Schemes }},
    "swagger": "2.0",
    "info": {
        "description": "{{escape .Description}}",
        "title": "{{.Title}}",
        "contact": {
            "name": "EcoTrack Platform Team"
        },
        "version": "{{.Version}}"
    },
    "host": "{{.Host}}",
    "basePath": "{{.BasePath}}",
    "paths": {
        "/health": {
            "get": {
                "produces": ["application/json"],
                "tags": ["system"],
                "summary": "Aggregate health",
                "description": "Probes every registered service and folds their status. 503 when any service is down.",
                "responses": {
                    "200": {"description": "healthy or degraded"},
                    "503": {"description": "unhealthy"}
                }
            }
        },
        "/health/services": {
            "get": {
                "produces": ["application/json"],
                "tags": ["system"],
                "summary": "Last-known health of every service",
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {"type": "array", "items": {"$ref": "#/definitions/health.ServiceHealth"}}
                    }
                }
            }
        },
        "/health/services/{key}": {
            "get": {
                "produces": ["application/json"],
                "tags": ["system"],
                "summary": "Probe one service",
                "parameters": [{"type": "string", "description": "Service key", "name": "key", "in": "path", "required": true}],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/health.ServiceHealth"}},
                    "404": {"description": "unknown service"}
                }
            }
        },
        "/admin/services": {
            "get": {
                "security": [{"BearerAuth": []}],
                "produces": ["application/json"],
                "tags": ["admin"],
                "summary": "List services",
                "responses": {
                    "200": {"description": "OK"},
                    "401": {"description": "missing or invalid token"},
                    "403": {"description": "role is not ADMIN"}
                }
            }
        },
        "/admin/services/{key}": {
            "get": {
                "security": [{"BearerAuth": []}],
                "produces": ["application/json"],
                "tags": ["admin"],
                "summary": "Get service by key",
                "parameters": [{"type": "string", "description": "Service key", "name": "key", "in": "path", "required": true}],
                "responses": {
                    "200": {"description": "OK"},
                    "404": {"description": "unknown service"}
                }
            }
        },
        "/admin/services/{key}/check": {
            "post": {
                "security": [{"BearerAuth": []}],
                "produces": ["application/json"],
                "tags": ["admin"],
                "summary": "Probe service health",
                "parameters": [{"type": "string", "description": "Service key", "name": "key", "in": "path", "required": true}],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/health.ServiceHealth"}},
                    "404": {"description": "unknown service"}
                }
            }
        },
        "/admin/routes/resolve": {
            "get": {
                "security": [{"BearerAuth": []}],
                "produces": ["application/json"],
                "tags": ["admin"],
                "summary": "Resolve a public path",
                "parameters": [{"type": "string", "description": "Public path, e.g. /api/containers/42", "name": "path", "in": "query", "required": true}],
                "responses": {
                    "200": {"description": "OK"},
                    "400": {"description": "missing or relative path"},
                    "404": {"description": "no service owns the path"}
                }
            }
        },
        "/api-docs/services/{key}": {
            "get": {
                "produces": ["application/json"],
                "tags": ["system"],
                "summary": "Upstream OpenAPI document, re-based on the gateway",
                "parameters": [{"type": "string", "description": "Service key", "name": "key", "in": "path", "required": true}],
                "responses": {
                    "200": {"description": "OpenAPI 3 document"},
                    "404": {"description": "unknown service"},
                    "502": {"description": "document unavailable or invalid"}
                }
            }
        }
    },
    "definitions": {
        "health.ServiceHealth": {
            "type": "object",
            "properties": {
                "key": {"type": "string", "example": "containers"},
                "displayName": {"type": "string", "example": "containers-service"},
                "status": {"type": "string", "enum": ["unknown", "up", "degraded", "down"]},
                "consecutiveFailures": {"type": "integer"},
                "maxFailures": {"type": "integer", "example": 3},
                "lastCheck": {"type": "string", "format": "date-time"},
                "latencyMs": {"type": "integer"},
                "lastError": {"type": "string", "example": "connection refused"}
            }
        }
    },
    "securityDefinitions": {
        "BearerAuth": {
            "type": "apiKey",
            "name": "Authorization",
            "in": "header"
        }
    },
    "tags": [
        {"description": "Registry and health introspection, ADMIN role only", "name": "admin"},
        {"description": "Health and documentation endpoints", "name": "system"}
    ]
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "1.0.0",
	Host:             "",
	BasePath:         "/",
	Schemes:          []string{"http", "https"},
	Title:            "EcoTrack API Gateway",
	Description:      "Single entrypoint for the EcoTrack services. Authenticates requests with JWT bearer tokens, forwards them by mount path and monitors upstream health.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
