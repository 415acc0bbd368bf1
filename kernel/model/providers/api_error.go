package providers

import (
	"fmt"
	"io"
	"net/http"
	"strings"
)

// APIError is a non-2xx response from a model provider endpoint.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	if e == nil {
		return "model: empty api error"
	}
	if strings.TrimSpace(e.Body) == "" {
		return fmt.Sprintf("model: http status %d", e.StatusCode)
	}
	return fmt.Sprintf("model: http status %d body=%s", e.StatusCode, e.Body)
}

// Transient reports whether the status indicates a retryable condition:
// rate limiting or temporary unavailability of the service.
func (e *APIError) Transient() bool {
	if e == nil {
		return false
	}
	switch e.StatusCode {
	case http.StatusTooManyRequests, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return true
	}
	return false
}

func statusError(resp *http.Response) error {
	if resp == nil {
		return fmt.Errorf("model: empty http response")
	}
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	return &APIError{
		StatusCode: resp.StatusCode,
		Body:       strings.TrimSpace(string(raw)),
	}
}
