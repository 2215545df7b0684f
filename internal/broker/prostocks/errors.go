package prostocks

import "errors"

// Error classes for broker calls. Callers classify with errors.Is:
// ErrSessionExpired and ErrTransport are retryable, ErrInvalidSpec and
// ErrRejected need corrected input.
var (
	ErrRejected       = errors.New("rejected by broker")
	ErrTransport      = errors.New("transport failure")
	ErrMalformed      = errors.New("malformed broker response")
	ErrSessionExpired = errors.New("session expired")
	ErrInvalidSpec    = errors.New("invalid order spec")
	ErrNotFound       = errors.New("not found")
)
