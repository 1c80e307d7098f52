package finance

import (
	"errors"
	"fmt"
)

var (
	// ErrUnavailable is returned when a finance or claims endpoint cannot be
	// reached or answers with a server error. The reconciler treats it as an
	// empty contribution, never as a fatal failure.
	ErrUnavailable = errors.New("finance: service unavailable")

	// ErrBaseURLRequired is returned when the client is constructed without
	// a base URL.
	ErrBaseURLRequired = errors.New("finance: base URL is required")
)

// APIError wraps a non-2xx response from the finance service.
type APIError struct {
	StatusCode int
	Endpoint   string
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("finance: %s returned %d: %s", e.Endpoint, e.StatusCode, e.Body)
}

// Unwrap maps server-side failures onto ErrUnavailable so callers can use a
// single errors.Is check for "treat as empty contribution".
func (e *APIError) Unwrap() error {
	if e.StatusCode >= 500 {
		return ErrUnavailable
	}
	return nil
}
