package loadersdk

// Denial reasons written as the body of a 403 response.
const (
	ReasonNotAuthorized = "not_authorized"
	ReasonExpired       = "expired"
)

// HealthResponse represents the response structure for health check endpoints.
// Used by both /livez and /readyz endpoints (readyz includes additional Checks field).
type HealthResponse struct {
	// Status indicates the overall health status ("ok" or "degraded")
	Status string `json:"status"`

	// Uptime is the service uptime duration as a string (e.g., "1h23m45s")
	Uptime string `json:"uptime,omitempty"`

	// Version is the service version string
	Version string `json:"version,omitempty"`

	// Checks contains readiness check results (only for /readyz)
	Checks *HealthChecks `json:"checks,omitempty"`
}

// HealthChecks reports the status of the gateway's dependencies.
type HealthChecks struct {
	// Registry indicates whether the authorization registry is reachable
	Registry string `json:"registry"`
}
