// Package session persists the bearer token of the single active session.
package session

import "context"

// Store is the durable home of the session token. Load returns
// errs.ErrNoSession when no token is saved. Storage failures are returned
// as-is; callers treat any Load failure as "no session" and force
// re-authentication rather than crashing.
type Store interface {
	Save(ctx context.Context, token string) error
	Load(ctx context.Context) (string, error)
	Clear(ctx context.Context) error
}
