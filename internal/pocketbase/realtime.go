package pocketbase

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/clipqueue/client/internal/logging"
)

const (
	realtimePath = "/api/realtime"
	connectEvent = "PB_CONNECT"
	maxEventSize = 4 << 20
)

// ErrStreamClosed indicates the server ended the realtime stream.
var ErrStreamClosed = errors.New("pocketbase: realtime stream closed")

// RecordEvent is one realtime change to a users record.
type RecordEvent struct {
	Action string     `json:"action"`
	Record UserRecord `json:"record"`
}

// Subscription is a live realtime stream for one topic.
type Subscription struct {
	topic  string
	cancel context.CancelFunc
	done   chan struct{}

	mu  sync.Mutex
	err error
}

// Topic returns the subscribed topic.
func (s *Subscription) Topic() string { return s.topic }

// Done is closed when the stream has ended.
func (s *Subscription) Done() <-chan struct{} { return s.done }

// Err reports why the stream ended. It is nil after Close.
func (s *Subscription) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Close ends the stream and waits for the reader to exit.
func (s *Subscription) Close() {
	s.cancel()
	<-s.done
}

// UserTopic returns the realtime topic for a user record with videos expanded.
func UserTopic(userID string) string {
	options, _ := json.Marshal(map[string]any{
		"query": map[string]string{"expand": "videos"},
	})
	return usersCollection + "/" + userID + "?options=" + url.QueryEscape(string(options))
}

// SubscribeUser streams changes to a user record. fn runs on the stream's
// goroutine, one event at a time.
func (c *Client) SubscribeUser(ctx context.Context, userID string, fn func(RecordEvent)) (*Subscription, error) {
	return c.Subscribe(ctx, UserTopic(userID), func(data []byte) {
		var ev RecordEvent
		if err := json.Unmarshal(data, &ev); err != nil {
			logging.FromContext(ctx).Warn("realtime event dropped", "error", err)
			return
		}
		fn(ev)
	})
}

// Subscribe opens the realtime stream, registers topic for the connection's
// client id and delivers each matching event's data to fn.
func (c *Client) Subscribe(ctx context.Context, topic string, fn func(data []byte)) (*Subscription, error) {
	streamCtx, cancel := context.WithCancel(ctx)
	logger := logging.FromContext(ctx).With("topic", topic)

	req, err := http.NewRequestWithContext(streamCtx, http.MethodGet, c.baseURL+realtimePath, nil)
	if err != nil {
		cancel()
		return nil, err
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")

	resp, err := c.stream.Do(req)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("open realtime stream: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		cancel()
		return nil, &ResponseError{Method: http.MethodGet, Path: realtimePath, Status: resp.StatusCode}
	}

	events := newEventReader(resp.Body)
	clientID, err := awaitConnect(events)
	if err != nil {
		resp.Body.Close()
		cancel()
		return nil, err
	}

	err = c.do(ctx, http.MethodPost, realtimePath, map[string]any{
		"clientId":      clientID,
		"subscriptions": []string{topic},
	}, nil)
	if err != nil {
		resp.Body.Close()
		cancel()
		return nil, fmt.Errorf("register subscription: %w", err)
	}
	logger.Debug("realtime subscribed", "client_id", clientID)

	sub := &Subscription{topic: topic, cancel: cancel, done: make(chan struct{})}
	go func() {
		defer close(sub.done)
		defer resp.Body.Close()

		for {
			ev, err := events.Next()
			if err != nil {
				if streamCtx.Err() != nil {
					return
				}
				if errors.Is(err, io.EOF) {
					err = ErrStreamClosed
				}
				logger.Warn("realtime stream ended", "error", err)
				sub.mu.Lock()
				sub.err = err
				sub.mu.Unlock()
				return
			}
			if ev.Name == topic {
				fn(ev.Data)
			}
		}
	}()
	return sub, nil
}

func awaitConnect(events *eventReader) (string, error) {
	for {
		ev, err := events.Next()
		if err != nil {
			return "", fmt.Errorf("await realtime connect: %w", err)
		}
		if ev.Name != connectEvent {
			continue
		}
		var payload struct {
			ClientID string `json:"clientId"`
		}
		_ = json.Unmarshal(ev.Data, &payload)
		if payload.ClientID == "" {
			payload.ClientID = ev.ID
		}
		if payload.ClientID == "" {
			return "", errors.New("await realtime connect: missing client id")
		}
		return payload.ClientID, nil
	}
}

type event struct {
	ID   string
	Name string
	Data []byte
}

// eventReader parses a text/event-stream body.
type eventReader struct {
	scanner *bufio.Scanner
}

func newEventReader(r io.Reader) *eventReader {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxEventSize)
	return &eventReader{scanner: scanner}
}

func (r *eventReader) Next() (event, error) {
	var (
		ev   event
		data [][]byte
		seen bool
	)
	for r.scanner.Scan() {
		line := r.scanner.Text()
		if line == "" {
			if !seen {
				continue
			}
			if ev.Name == "" {
				ev.Name = "message"
			}
			ev.Data = bytes.Join(data, []byte("\n"))
			return ev, nil
		}
		if strings.HasPrefix(line, ":") {
			continue
		}

		field, value, _ := strings.Cut(line, ":")
		value = strings.TrimPrefix(value, " ")
		switch field {
		case "id":
			ev.ID = value
		case "event":
			ev.Name = value
		case "data":
			data = append(data, []byte(value))
		default:
			continue
		}
		seen = true
	}
	if err := r.scanner.Err(); err != nil {
		return event{}, err
	}
	return event{}, io.EOF
}
