package notify

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/clipqueue/client/internal/logging"
)

// Level classifies a user-facing notification.
type Level string

const (
	LevelPending Level = "pending"
	LevelSuccess Level = "success"
	LevelError   Level = "error"
	LevelInfo    Level = "info"
)

// Notification is a single message surfaced to the user.
type Notification struct {
	Level   Level
	Message string
}

// Notifier surfaces notifications to the user.
type Notifier interface {
	Notify(ctx context.Context, n Notification)
}

// Messages holds the pending/success/error texts for one tracked action.
// An empty Success suppresses the success notification.
type Messages struct {
	Pending string
	Success string
	Error   string
}

// Track runs fn, emitting a pending notification first and then exactly one
// success or error notification for the outcome.
func Track(ctx context.Context, n Notifier, msgs Messages, fn func(context.Context) error) error {
	if n == nil {
		n = Discard{}
	}
	if msgs.Pending != "" {
		n.Notify(ctx, Notification{Level: LevelPending, Message: msgs.Pending})
	}
	if err := fn(ctx); err != nil {
		n.Notify(ctx, Notification{Level: LevelError, Message: msgs.Error})
		return err
	}
	if msgs.Success != "" {
		n.Notify(ctx, Notification{Level: LevelSuccess, Message: msgs.Success})
	}
	return nil
}

// Error emits a single error notification.
func Error(ctx context.Context, n Notifier, message string) {
	if n == nil {
		return
	}
	n.Notify(ctx, Notification{Level: LevelError, Message: message})
}

// Success emits a single success notification.
func Success(ctx context.Context, n Notifier, message string) {
	if n == nil {
		return
	}
	n.Notify(ctx, Notification{Level: LevelSuccess, Message: message})
}

// Console prints notifications for a terminal user and mirrors them to the log.
type Console struct {
	mu  sync.Mutex
	out io.Writer
}

// NewConsole returns a Console writing to out.
func NewConsole(out io.Writer) *Console {
	return &Console{out: out}
}

// Notify implements Notifier.
func (c *Console) Notify(ctx context.Context, n Notification) {
	logging.FromContext(ctx).Debug("notification", "level", string(n.Level), "message", n.Message)

	var prefix string
	switch n.Level {
	case LevelPending:
		prefix = "…"
	case LevelSuccess:
		prefix = "✔"
	case LevelError:
		prefix = "✖"
	default:
		prefix = "•"
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintf(c.out, "%s %s\n", prefix, n.Message)
}

// Recorder keeps every notification in memory.
type Recorder struct {
	mu    sync.Mutex
	items []Notification
}

// Notify implements Notifier.
func (r *Recorder) Notify(_ context.Context, n Notification) {
	r.mu.Lock()
	r.items = append(r.items, n)
	r.mu.Unlock()
}

// All returns a copy of the recorded notifications.
func (r *Recorder) All() []Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Notification(nil), r.items...)
}

// Count returns how many notifications of the given level were recorded.
func (r *Recorder) Count(level Level) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, item := range r.items {
		if item.Level == level {
			n++
		}
	}
	return n
}

// Discard drops every notification.
type Discard struct{}

// Notify implements Notifier.
func (Discard) Notify(context.Context, Notification) {}
