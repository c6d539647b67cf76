package store

import (
	"context"
	"fmt"
	"sync"

	"codeberg.org/aliassync/aliassync/pkg/identity"
)

// MemoryStore is a process-local IdentityStore for tests and dry setups.
type MemoryStore struct {
	mu       sync.RWMutex
	accounts map[string][]identity.StoredIdentity
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{accounts: make(map[string][]identity.StoredIdentity)}
}

func (s *MemoryStore) Put(login string, ids ...identity.StoredIdentity) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.accounts[login] = append(s.accounts[login], ids...)
}

func (s *MemoryStore) ListIdentities(ctx context.Context, login string) ([]identity.StoredIdentity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]identity.StoredIdentity, len(s.accounts[login]))
	copy(out, s.accounts[login])
	return out, nil
}

func (s *MemoryStore) DeleteIdentity(ctx context.Context, login, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ids := s.accounts[login]
	for i, stored := range ids {
		if stored.ID != id {
			continue
		}
		if len(ids) <= 1 {
			return ErrLastIdentity
		}
		s.accounts[login] = append(ids[:i:i], ids[i+1:]...)
		return nil
	}
	return fmt.Errorf("identity %s: %w", id, ErrIdentityNotFound)
}

func (s *MemoryStore) Close() error {
	return nil
}
