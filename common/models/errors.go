package models

import (
	"errors"
	"fmt"
)

var (
	// ErrMalformedPayload marks a snapshot or response body that is not
	// valid JSON or lacks the required shape.
	ErrMalformedPayload = errors.New("malformed payload")

	// ErrNotInitialized marks an operation attempted without its
	// prerequisite, such as polling without a run id.
	ErrNotInitialized = errors.New("not initialized")
)

// Malformed wraps ErrMalformedPayload with detail
func Malformed(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrMalformedPayload, fmt.Sprintf(format, args...))
}

// TransportError is a failed exchange with the worker manager. StatusCode
// is zero when no HTTP response was received.
type TransportError struct {
	Op         string
	StatusCode int
	Body       string
	Err        error
}

func (e *TransportError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s failed: status=%d, body=%s", e.Op, e.StatusCode, e.Body)
	}
	return fmt.Sprintf("%s failed: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// StatusCodeOf returns the HTTP status carried by a TransportError in err's
// chain, or 0.
func StatusCodeOf(err error) int {
	var te *TransportError
	if errors.As(err, &te) {
		return te.StatusCode
	}
	return 0
}

// GraphError represents workflow graph validation errors
type GraphError struct {
	Field   string
	Message string
}

// Error implements the error interface with formatted output.
func (e *GraphError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}
