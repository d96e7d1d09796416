package admission

import (
	"context"
	"sync"
)

// TokenStore persists the local trust token of a single device. It is a hint
// for fingerprint drift and never the source of truth.
type TokenStore interface {
	LoadToken(ctx context.Context) (string, bool, error)
	SaveToken(ctx context.Context, token string) error
}

// MemoryTokenStore keeps the trust token in process memory.
type MemoryTokenStore struct {
	mu    sync.Mutex
	token string
	set   bool
}

// NewMemoryTokenStore returns a store, optionally seeded with a previous token.
func NewMemoryTokenStore(initial string) *MemoryTokenStore {
	return &MemoryTokenStore{token: initial, set: initial != ""}
}

func (s *MemoryTokenStore) LoadToken(_ context.Context) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.token, s.set, nil
}

func (s *MemoryTokenStore) SaveToken(_ context.Context, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = token
	s.set = true
	return nil
}

// Token returns the stored token; used by tests and diagnostics.
func (s *MemoryTokenStore) Token() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.token
}
