package canvas

import (
	"errors"
	"fmt"
)

// Failure kinds surfaced by the client. Callers branch with errors.Is;
// the HTTP layer maps each kind to a response status.
var (
	ErrAuthentication = errors.New("authentication failed")
	ErrNotFound       = errors.New("resource not found")
	ErrTransport      = errors.New("upstream request failed")
	ErrTimeout        = errors.New("upstream request timed out")
	ErrParse          = errors.New("malformed upstream response")
)

// APIError describes one failed Canvas call. Path never carries the
// bearer token, and any quoted response body is redacted before it is
// stored in Err.
type APIError struct {
	Status int
	Method string
	Path   string
	Err    error
}

func (e *APIError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("canvas %s %s: status %d: %v", e.Method, e.Path, e.Status, e.Err)
	}
	return fmt.Sprintf("canvas %s %s: %v", e.Method, e.Path, e.Err)
}

func (e *APIError) Unwrap() error { return e.Err }
