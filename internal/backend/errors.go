package backend

import (
	"errors"
	"fmt"

	"github.com/emory-app/voicechat/internal/reliability"
)

var (
	// ErrTimeout is returned when the client-side deadline for a call elapses.
	ErrTimeout = errors.New("request timeout: API call took too long to respond")
	// ErrUnauthorized is returned for 401 responses.
	ErrUnauthorized = errors.New("authentication failed, please log in again")
	// ErrMissingToken is returned before any request when no app token is stored.
	ErrMissingToken = errors.New("no auth token found, please log in")
)

// StatusError is a non-2xx backend response other than 401.
type StatusError struct {
	Op         string
	StatusCode int
	Status     string
	Body       string
}

func (e *StatusError) Error() string {
	msg := fmt.Sprintf("%s failed: %s", e.Op, e.Status)
	if e.Body != "" {
		msg += ": " + e.Body
	}
	return msg
}

// Retryable reports whether a fresh attempt may succeed.
func (e *StatusError) Retryable() bool {
	return reliability.IsRetryableHTTPStatus(e.StatusCode)
}
