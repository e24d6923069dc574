package shopify

import "fmt"

// Error kinds surfaced by the remote API client.
const (
	KindRateLimited = "rate_limited" // 429, retried before surfacing
	KindClientError = "client_error" // other 4xx, never retried
	KindServerError = "server_error" // 5xx and transport failures, retried before surfacing
)

// APIError is a structured remote API failure.
type APIError struct {
	StatusCode int    `json:"statusCode"`
	Kind       string `json:"kind"`
	Message    string `json:"message"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("shopify: %s (HTTP %d): %s", e.Kind, e.StatusCode, e.Message)
}

// Retryable reports whether the failure may succeed on a later attempt.
func (e *APIError) Retryable() bool {
	return e.Kind == KindRateLimited || e.Kind == KindServerError
}
