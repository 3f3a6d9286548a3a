package http

import (
	"errors"
	"fmt"
	"net/http"
	"time"
)

// ErrCircuitOpen is returned without contacting a host whose breaker is open.
var ErrCircuitOpen = errors.New("http: circuit breaker is open")

// RateLimitError indicates the server throttled the request (429 or 503).
type RateLimitError struct {
	URL        string
	StatusCode int
	// RetryAfter is the server-provided pause, zero when absent.
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("rate limited (status %d): retry after %v", e.StatusCode, e.RetryAfter)
	}
	return fmt.Sprintf("rate limited (status %d)", e.StatusCode)
}

// HTTPError is a non-2xx response that is not a throttling signal.
type HTTPError struct {
	URL        string
	StatusCode int
	Body       []byte
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("http error: status %d", e.StatusCode)
}

// IsTransient reports whether err is worth retrying: throttling, 5xx, 408, and
// transport errors. Other 4xx responses are final.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	var rl *RateLimitError
	if errors.As(err, &rl) {
		return true
	}
	var he *HTTPError
	if errors.As(err, &he) {
		return he.StatusCode >= 500 || he.StatusCode == http.StatusRequestTimeout
	}
	return true
}
