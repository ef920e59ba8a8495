package types

// HealthResponse is returned by GET /health. It reflects the exporter's own
// liveness, not the upstream server's: the exporter stays "healthy" through
// upstream outages, which are visible only as ollama_up on /metrics.
type HealthResponse struct {
	// Status is "healthy" in normal operation, "shutting_down" once a
	// termination signal has been received.
	Status string `json:"status"`
	// Timestamp is the server time in RFC 3339 format.
	Timestamp string `json:"timestamp"`
	// OllamaHost is the host:port of the monitored Ollama server.
	OllamaHost string `json:"ollama_host"`
}

// ErrorResponse is a consistent JSON error payload.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  int    `json:"code"`
}
