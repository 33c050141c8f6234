package objectstore

import (
	"context"
	"sync"
)

// MemoryStorage is an in-memory Storage for tests. PublicURL returns a
// synthetic URL prefixed with BaseURL.
type MemoryStorage struct {
	BaseURL string

	mu      sync.Mutex
	objects map[string][]byte
}

var _ Storage = (*MemoryStorage)(nil)

// NewMemoryStorage creates an empty in-memory storage.
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		BaseURL: "https://storage.test",
		objects: make(map[string][]byte),
	}
}

func (s *MemoryStorage) Upload(_ context.Context, path string, data []byte, _ string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := make([]byte, len(data))
	copy(cp, data)
	s.objects[path] = cp
	return nil
}

func (s *MemoryStorage) PublicURL(_ context.Context, path string) (string, error) {
	return s.BaseURL + "/" + path, nil
}

func (s *MemoryStorage) Delete(_ context.Context, path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.objects, path)
	return nil
}

// Len reports the number of stored objects. Test helper.
func (s *MemoryStorage) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.objects)
}

// Get returns the bytes stored at path, or nil. Test helper.
func (s *MemoryStorage) Get(path string) []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.objects[path]
}

// Has reports whether an object exists at path. Test helper.
func (s *MemoryStorage) Has(path string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.objects[path]
	return ok
}
