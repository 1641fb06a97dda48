package auth

import (
	"context"
	"sync"
)

// NewInMemorySessionStore returns a SessionStore that forgets everything on exit.
func NewInMemorySessionStore() *InMemorySessionStore {
	return &InMemorySessionStore{}
}

// InMemorySessionStore implements SessionStore for tests and one-shot runs.
type InMemorySessionStore struct {
	mu     sync.RWMutex
	record *SessionRecord
}

// Save persists the provided session record.
func (s *InMemorySessionStore) Save(_ context.Context, record SessionRecord) error {
	s.mu.Lock()
	s.record = &record
	s.mu.Unlock()
	return nil
}

// Load returns the stored session record.
func (s *InMemorySessionStore) Load(_ context.Context) (SessionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.record == nil {
		return SessionRecord{}, ErrSessionNotFound
	}
	return *s.record, nil
}

// Delete removes the stored session.
func (s *InMemorySessionStore) Delete(_ context.Context) error {
	s.mu.Lock()
	s.record = nil
	s.mu.Unlock()
	return nil
}

// Has reports whether a session is stored. Useful for tests.
func (s *InMemorySessionStore) Has() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.record != nil
}
