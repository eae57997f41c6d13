package models

// HealthResponse is the response for GET /api/health.
type HealthResponse struct {
	Status   string        `json:"status"` // "ok" or "degraded"
	Uptime   string        `json:"uptime"`
	Renderer RendererStats `json:"renderer"`
	Version  string        `json:"version"`
}

// RendererStats reports the state of the shared browser session.
type RendererStats struct {
	Running        bool `json:"running"`
	Starting       bool `json:"starting,omitempty"`
	ActiveContexts int  `json:"active_contexts"`
}

// SourceInfo describes one configured source for GET /api/v1/sources.
type SourceInfo struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	ExampleURL string `json:"example_url"`
}
