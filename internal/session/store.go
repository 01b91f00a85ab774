package session

import "sync"

// RedirectKey holds the path a visitor asked for before being bounced to the
// shell entry point.
const RedirectKey = "redirect"

// Store is session-scoped key/value storage.
type Store interface {
	Get(key string) (string, bool)
	Set(key, value string)
	Delete(key string)
}

// MemoryStore is a Store kept in process memory for the lifetime of one shell.
type MemoryStore struct {
	mu     sync.Mutex
	values map[string]string
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{values: map[string]string{}}
}

// Get implements Store.
func (s *MemoryStore) Get(key string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.values[key]
	return v, ok
}

// Set implements Store.
func (s *MemoryStore) Set(key, value string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[key] = value
}

// Delete implements Store.
func (s *MemoryStore) Delete(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.values, key)
}

// ConsumeRedirect reads the pending redirect once and clears it.
func ConsumeRedirect(s Store) (string, bool) {
	if s == nil {
		return "", false
	}
	v, ok := s.Get(RedirectKey)
	if !ok {
		return "", false
	}
	s.Delete(RedirectKey)
	if v == "" {
		return "", false
	}
	return v, true
}
