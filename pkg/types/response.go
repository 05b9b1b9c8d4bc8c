package types

type SuccessEnvelope struct {
	Data any `json:"data"`
}

// APIError is the public face of a typed error. RequestID echoes the
// X-Request-Id header so a failed upload can be traced to its ingestion logs.
type APIError struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Retryable bool   `json:"retryable,omitempty"`
	RequestID string `json:"requestId,omitempty"`
	Details   any    `json:"details,omitempty"`
}

type ErrorEnvelope struct {
	Error APIError `json:"error"`
}

// Dependency readiness values.
const (
	CheckOK          = "ok"
	CheckUnavailable = "unavailable"
)

// HealthStatus is the body of the liveness and readiness endpoints.
type HealthStatus struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}
