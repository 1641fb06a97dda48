package videos

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/clipqueue/client/internal/models"
)

var (
	// ErrExtraDataUnavailable indicates no extra data source is configured.
	ErrExtraDataUnavailable = errors.New("ai content source unavailable")
	// ErrNoAIContent indicates the video has no generated content.
	ErrNoAIContent = errors.New("no ai content for video")
)

// ExtraDataSource fetches the AI-generated record linked from a video.
type ExtraDataSource interface {
	GetExtraData(ctx context.Context, id string) (models.AIContent, error)
}

// ExtraDataFunc adapts a function into an ExtraDataSource.
type ExtraDataFunc func(ctx context.Context, id string) (models.AIContent, error)

// GetExtraData implements ExtraDataSource.
func (f ExtraDataFunc) GetExtraData(ctx context.Context, id string) (models.AIContent, error) {
	return f(ctx, id)
}

type cacheEntry struct {
	content models.AIContent
	expires time.Time
}

// CachingExtraData wraps another ExtraDataSource with a TTL-based in-memory cache.
type CachingExtraData struct {
	base ExtraDataSource
	ttl  time.Duration
	now  func() time.Time

	mu    sync.RWMutex
	items map[string]cacheEntry
}

// NewCachingExtraData returns a source that caches lookups for the provided TTL.
func NewCachingExtraData(base ExtraDataSource, ttl time.Duration) *CachingExtraData {
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &CachingExtraData{
		base:  base,
		ttl:   ttl,
		now:   time.Now,
		items: make(map[string]cacheEntry),
	}
}

// GetExtraData returns cached content when available, otherwise it delegates
// to the underlying source and stores the result.
func (c *CachingExtraData) GetExtraData(ctx context.Context, id string) (models.AIContent, error) {
	if c == nil || c.base == nil {
		return models.AIContent{}, ErrExtraDataUnavailable
	}

	now := c.now()

	c.mu.RLock()
	entry, ok := c.items[id]
	c.mu.RUnlock()
	if ok && now.Before(entry.expires) {
		return entry.content, nil
	}

	content, err := c.base.GetExtraData(ctx, id)
	if err != nil {
		return models.AIContent{}, err
	}

	c.mu.Lock()
	c.items[id] = cacheEntry{content: content, expires: now.Add(c.ttl)}
	c.mu.Unlock()

	return content, nil
}
