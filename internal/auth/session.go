package auth

import (
	"context"
	"errors"
	"sync"
)

var (
	// ErrSessionNotFound indicates no persisted session exists.
	ErrSessionNotFound = errors.New("session not found")
	// ErrNotAuthenticated indicates an operation needs a signed-in user.
	ErrNotAuthenticated = errors.New("not authenticated")
)

// SessionStore persists the auth token so it survives process restarts.
type SessionStore interface {
	Save(ctx context.Context, record SessionRecord) error
	Load(ctx context.Context) (SessionRecord, error)
	Delete(ctx context.Context) error
}

// SessionRecord is the persisted form of a signed-in session.
type SessionRecord struct {
	Token  string `json:"token"`
	UserID string `json:"user_id"`
	Email  string `json:"email,omitempty"`
}

// Session holds the process-wide auth state. It is passed explicitly to the
// components that need a token instead of living in a global.
type Session struct {
	store SessionStore

	mu        sync.RWMutex
	record    SessionRecord
	listeners map[int]func(SessionRecord)
	nextID    int
}

// NewSession constructs a Session backed by store.
func NewSession(store SessionStore) *Session {
	if store == nil {
		panic("auth: session store must not be nil")
	}
	return &Session{store: store, listeners: make(map[int]func(SessionRecord))}
}

// Restore loads a previously persisted session, if any.
func (s *Session) Restore(ctx context.Context) error {
	record, err := s.store.Load(ctx)
	if errors.Is(err, ErrSessionNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	s.apply(record)
	return nil
}

// Token implements apiclient.TokenSource.
func (s *Session) Token() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.record.Token
}

// UserID returns the signed-in user's id, or "".
func (s *Session) UserID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.record.UserID
}

// Record returns the current session record.
func (s *Session) Record() SessionRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.record
}

// Authenticated reports whether a token is held.
func (s *Session) Authenticated() bool {
	return s.Token() != ""
}

// Set stores a new token for userID and persists it.
func (s *Session) Set(ctx context.Context, record SessionRecord) error {
	if record.Token == "" || record.UserID == "" {
		return errors.New("auth: token and user id must be provided")
	}
	if err := s.store.Save(ctx, record); err != nil {
		return err
	}
	s.apply(record)
	return nil
}

// Clear forgets the current token.
func (s *Session) Clear(ctx context.Context) error {
	err := s.store.Delete(ctx)
	if errors.Is(err, ErrSessionNotFound) {
		err = nil
	}
	s.apply(SessionRecord{})
	return err
}

// OnChange registers fn to run after every change. The returned func unregisters it.
func (s *Session) OnChange(fn func(SessionRecord)) func() {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = fn
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.listeners, id)
		s.mu.Unlock()
	}
}

func (s *Session) apply(record SessionRecord) {
	s.mu.Lock()
	s.record = record
	listeners := make([]func(SessionRecord), 0, len(s.listeners))
	for _, fn := range s.listeners {
		listeners = append(listeners, fn)
	}
	s.mu.Unlock()

	for _, fn := range listeners {
		fn(record)
	}
}
