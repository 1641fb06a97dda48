package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
)

// FileSessionStore keeps the session token in a 0600 JSON file. Concurrent
// clipqueue processes coordinate through an adjacent lock file.
type FileSessionStore struct {
	path string
	lock *flock.Flock
}

// NewFileSessionStore returns a store persisting to path.
func NewFileSessionStore(path string) *FileSessionStore {
	return &FileSessionStore{path: path, lock: flock.New(path + ".lock")}
}

// Save writes the session record atomically.
func (s *FileSessionStore) Save(ctx context.Context, record SessionRecord) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return fmt.Errorf("create session dir: %w", err)
	}
	return s.withLock(ctx, func() error {
		data, err := json.Marshal(record)
		if err != nil {
			return fmt.Errorf("encode session: %w", err)
		}
		tmp := s.path + ".tmp"
		if err := os.WriteFile(tmp, data, 0o600); err != nil {
			return fmt.Errorf("write session: %w", err)
		}
		if err := os.Rename(tmp, s.path); err != nil {
			return fmt.Errorf("replace session: %w", err)
		}
		return nil
	})
}

// Load reads the session record.
func (s *FileSessionStore) Load(ctx context.Context) (SessionRecord, error) {
	if _, err := os.Stat(filepath.Dir(s.path)); errors.Is(err, fs.ErrNotExist) {
		return SessionRecord{}, ErrSessionNotFound
	}
	var record SessionRecord
	err := s.withLock(ctx, func() error {
		data, err := os.ReadFile(s.path)
		if errors.Is(err, fs.ErrNotExist) {
			return ErrSessionNotFound
		}
		if err != nil {
			return fmt.Errorf("read session: %w", err)
		}
		if err := json.Unmarshal(data, &record); err != nil {
			return fmt.Errorf("decode session: %w", err)
		}
		return nil
	})
	return record, err
}

// Delete removes the session file.
func (s *FileSessionStore) Delete(ctx context.Context) error {
	if _, err := os.Stat(filepath.Dir(s.path)); errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return s.withLock(ctx, func() error {
		if err := os.Remove(s.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("remove session: %w", err)
		}
		return nil
	})
}

func (s *FileSessionStore) withLock(ctx context.Context, fn func() error) error {
	locked, err := s.lock.TryLockContext(ctx, 50*time.Millisecond)
	if err != nil {
		return fmt.Errorf("lock session file: %w", err)
	}
	if !locked {
		return errors.New("lock session file: not acquired")
	}
	defer func() { _ = s.lock.Unlock() }()
	return fn()
}
