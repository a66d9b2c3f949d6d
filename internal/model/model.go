// Package model defines domain entities shared by the API client and the sync core.
package model

// Item is a single to-do entry as returned by the server. ID is opaque,
// server-assigned, and immutable; the client never generates or rewrites it.
type Item struct {
	ID          string
	Title       string
	Description string
}

// ItemFields is the client-editable subset of an Item submitted on update.
// The server's response, not these fields, is what lands in the cache.
type ItemFields struct {
	Title       string
	Description string
}

// Credentials is a login request.
type Credentials struct {
	Username string `validate:"required"`
	Password string `validate:"required"`
}

// Registration is an account-creation request. Registering does not
// authenticate; an explicit login follows.
type Registration struct {
	Username string `validate:"required"`
	Password string `validate:"required"`
	Email    string `validate:"required,email"`
}

// ItemState is the observable per-item fetch/update state.
type ItemState int

const (
	StateIdle ItemState = iota
	StateLoading
	StateSuccess
	StateFailed
)

func (s ItemState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateLoading:
		return "loading"
	case StateSuccess:
		return "success"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}
