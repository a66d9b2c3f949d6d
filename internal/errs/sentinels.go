// Package errs contains sentinel errors used across layers for stable error mapping.
package errs

import "errors"

// Taxonomy sentinels. The API and sync layers never leak raw transport
// errors; every failure is classified as one of these kinds.
var (
	// ErrUnauthenticated indicates a missing, rejected, or expired session token.
	ErrUnauthenticated = errors.New("unauthenticated")

	// ErrNotFound indicates the requested item does not exist on the server.
	ErrNotFound = errors.New("not found")

	// ErrValidation indicates the server or client rejected the submitted fields.
	ErrValidation = errors.New("validation failed")

	// ErrServer indicates a 5xx response from the service.
	ErrServer = errors.New("server error")

	// ErrNetwork indicates no response was received (timeout, DNS, connection).
	ErrNetwork = errors.New("network unavailable")

	// ErrMalformedResponse indicates a 2xx response missing required fields.
	ErrMalformedResponse = errors.New("malformed response")

	// ErrBusy indicates a write was rejected because one is already in flight.
	ErrBusy = errors.New("busy")

	// ErrNoSession indicates the session store holds no token.
	ErrNoSession = errors.New("no session")
)

// Error pairs a taxonomy sentinel with a human-readable message suitable
// for display. The message is the server-provided one when available.
type Error struct {
	Kind    error
	Message string
}

// New builds an Error of the given kind. An empty msg falls back to the
// kind's generic message.
func New(kind error, msg string) *Error {
	return &Error{Kind: kind, Message: msg}
}

func (e *Error) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return e.Kind.Error()
}

// Unwrap makes errors.Is(err, sentinel) work across the wrap.
func (e *Error) Unwrap() error { return e.Kind }
