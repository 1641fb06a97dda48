package blobs

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Scheme prefixes every local object reference handed out by a Registry.
const Scheme = "blob:"

// ErrNotFound indicates the reference was never created or has been revoked.
var ErrNotFound = errors.New("blob not found")

// Entry describes a registered local file.
type Entry struct {
	ID          string
	Path        string
	Name        string
	ContentType string
	Size        int64
	Created     time.Time
}

// URL returns the blob reference for the entry.
func (e Entry) URL() string {
	return Scheme + e.ID
}

// Registry hands out opaque "blob:<uuid>" references to local files so that
// previews and downloads can be addressed without exposing paths.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]Entry
	now     func() time.Time
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]Entry), now: time.Now}
}

// Create registers path and returns its blob reference.
func (r *Registry) Create(path, contentType string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("resolve %s: %w", path, err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return "", fmt.Errorf("stat %s: %w", path, err)
	}
	if info.IsDir() {
		return "", fmt.Errorf("register %s: is a directory", path)
	}

	entry := Entry{
		ID:          uuid.NewString(),
		Path:        abs,
		Name:        filepath.Base(abs),
		ContentType: contentType,
		Size:        info.Size(),
		Created:     r.now(),
	}

	r.mu.Lock()
	r.entries[entry.ID] = entry
	r.mu.Unlock()
	return entry.URL(), nil
}

// Lookup resolves a reference. Both "blob:<id>" and the bare id are accepted.
func (r *Registry) Lookup(ref string) (Entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entry, ok := r.entries[ID(ref)]
	return entry, ok
}

// Open returns the registered file for reading.
func (r *Registry) Open(ref string) (*os.File, Entry, error) {
	entry, ok := r.Lookup(ref)
	if !ok {
		return nil, Entry{}, ErrNotFound
	}
	f, err := os.Open(entry.Path)
	if err != nil {
		return nil, Entry{}, fmt.Errorf("open blob %s: %w", entry.ID, err)
	}
	return f, entry, nil
}

// Revoke forgets a reference. The underlying file is left alone.
func (r *Registry) Revoke(ref string) {
	r.mu.Lock()
	delete(r.entries, ID(ref))
	r.mu.Unlock()
}

// Len returns the number of live references.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// ID strips the blob scheme from a reference.
func ID(ref string) string {
	return strings.TrimPrefix(ref, Scheme)
}
