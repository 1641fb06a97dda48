package realtime

import (
	"context"

	"github.com/clipqueue/client/internal/models"
	"github.com/clipqueue/client/internal/pocketbase"
)

// Stream is a live push subscription.
type Stream interface {
	Done() <-chan struct{}
	Err() error
	Close()
}

// Source loads and watches a user's profile and videos.
type Source interface {
	FetchUser(ctx context.Context, userID string) (models.UserProfile, []models.VideoRecord, error)
	Watch(ctx context.Context, userID string, fn func(models.UserProfile, []models.VideoRecord)) (Stream, error)
}

type pocketBaseSource struct {
	client *pocketbase.Client
}

// FromPocketBase adapts a PocketBase client into a Source.
func FromPocketBase(client *pocketbase.Client) Source {
	return pocketBaseSource{client: client}
}

func (p pocketBaseSource) FetchUser(ctx context.Context, userID string) (models.UserProfile, []models.VideoRecord, error) {
	record, err := p.client.GetUser(ctx, userID)
	if err != nil {
		return models.UserProfile{}, nil, err
	}
	return record.UserProfile, record.Videos(), nil
}

func (p pocketBaseSource) Watch(ctx context.Context, userID string, fn func(models.UserProfile, []models.VideoRecord)) (Stream, error) {
	return p.client.SubscribeUser(ctx, userID, func(ev pocketbase.RecordEvent) {
		fn(ev.Record.UserProfile, ev.Record.Videos())
	})
}
