package session

import (
	"context"
	"sync"

	"todosync/internal/errs"
)

// MemStore is an in-process Store for tests and ephemeral sessions.
type MemStore struct {
	mu      sync.Mutex
	token   string
	present bool
}

var _ Store = (*MemStore)(nil)

func NewMemStore() *MemStore { return &MemStore{} }

func (s *MemStore) Save(_ context.Context, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token, s.present = token, true
	return nil
}

func (s *MemStore) Load(_ context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.present {
		return "", errs.ErrNoSession
	}
	return s.token, nil
}

func (s *MemStore) Clear(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token, s.present = "", false
	return nil
}
