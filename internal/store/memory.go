package store

import (
	"context"
	"sync"
)

// MemoryStore is an in-memory CredentialStore for tests and local development.
type MemoryStore struct {
	mu     sync.RWMutex
	tokens map[string]string
}

var _ CredentialStore = (*MemoryStore)(nil)

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{tokens: make(map[string]string)}
}

func (s *MemoryStore) GetToken(_ context.Context, uid string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.tokens[uid], nil
}

func (s *MemoryStore) SaveToken(_ context.Context, uid, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokens[uid] = token
	return nil
}

func (s *MemoryStore) HasToken(_ context.Context, uid string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.tokens[uid] != "", nil
}

func (s *MemoryStore) DeleteToken(_ context.Context, uid string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.tokens, uid)
	return nil
}
