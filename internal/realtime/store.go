package realtime

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/clipqueue/client/internal/logging"
	"github.com/clipqueue/client/internal/models"
)

var (
	// ErrSuperseded indicates a fetch was cancelled because a newer one started.
	ErrSuperseded = errors.New("fetch superseded by a newer fetch")
	// ErrClosed is returned by operations started after Close.
	ErrClosed = errors.New("realtime store closed")
)

// SubscriptionError reports that the push channel could not be opened or was lost.
type SubscriptionError struct {
	UserID string
	Err    error
}

func (e *SubscriptionError) Error() string {
	return fmt.Sprintf("realtime subscription for user %s: %v", e.UserID, e.Err)
}

func (e *SubscriptionError) Unwrap() error { return e.Err }

// Option customises a Store.
type Option func(*Store)

// WithFailureHandler runs fn after grace once a fetch or the subscription fails.
func WithFailureHandler(grace time.Duration, fn func(error)) Option {
	return func(s *Store) {
		s.grace = grace
		s.onFailure = fn
	}
}

// Store holds the latest snapshot of the user's profile and videos. Fetches
// and pushes are numbered in the order they are issued or received, and a
// snapshot only replaces a held one with a lower number.
type Store struct {
	src       Source
	grace     time.Duration
	onFailure func(error)

	seq atomic.Uint64

	mu          sync.Mutex
	snap        models.Snapshot
	listeners   map[int]func(models.Snapshot)
	nextID      int
	fetchCancel context.CancelFunc
	fetchSeq    uint64
	stream      Stream
	failTimer   *time.Timer
	closed      bool

	pubMu     sync.Mutex
	published uint64
}

// New returns an empty store reading from src.
func New(src Source, opts ...Option) *Store {
	s := &Store{
		src:       src,
		snap:      models.Snapshot{Videos: []models.VideoRecord{}},
		listeners: make(map[int]func(models.Snapshot)),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Snapshot returns a copy of the held snapshot.
func (s *Store) Snapshot() models.Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return copySnapshot(s.snap)
}

// Profile returns the held profile, or nil when none is loaded.
func (s *Store) Profile() *models.UserProfile {
	return s.Snapshot().Profile
}

// Videos returns the held videos, newest queued first.
func (s *Store) Videos() []models.VideoRecord {
	return s.Snapshot().Videos
}

// ActiveCount returns the number of held videos that are queued or processing.
func (s *Store) ActiveCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return models.CountActive(s.snap.Videos)
}

// OnChange registers fn to run after every applied snapshot. The returned func unregisters it.
func (s *Store) OnChange(fn func(models.Snapshot)) func() {
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

// Fetch loads the user's profile and videos once. Starting a fetch cancels
// the one in flight, which returns ErrSuperseded if the cancellation reached
// it. A result that had already arrived is still applied when nothing newer
// is held.
func (s *Store) Fetch(ctx context.Context, userID string) error {
	ctx = logging.WithUserID(ctx, userID)
	ctx, span := logging.StartSpan(ctx, "fetch")
	defer span.End()

	seq := s.seq.Add(1)
	fetchCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	if s.fetchCancel != nil {
		s.fetchCancel()
	}
	s.fetchCancel = cancel
	s.fetchSeq = seq
	s.mu.Unlock()

	profile, videos, err := s.src.FetchUser(fetchCtx, userID)

	s.mu.Lock()
	superseded := s.fetchSeq != seq
	if !superseded {
		s.fetchCancel = nil
	}
	s.mu.Unlock()

	if err != nil {
		switch {
		case superseded && fetchCtx.Err() != nil:
			logging.FromContext(ctx).Debug("fetch superseded", "seq", seq)
			return ErrSuperseded
		case ctx.Err() != nil:
			span.Fail(ctx.Err())
			return ctx.Err()
		}
		span.Fail(err)
		err = fmt.Errorf("fetch user %s: %w", userID, err)
		s.fail(ctx, err)
		return err
	}

	if !s.apply(ctx, seq, profile, videos) {
		logging.FromContext(ctx).Debug("stale fetch dropped", "seq", seq)
	}
	return nil
}

// Subscribe replaces any existing subscription with one for userID. Pushes
// are applied as they arrive until Unsubscribe, Clear or Close.
func (s *Store) Subscribe(ctx context.Context, userID string) error {
	s.Unsubscribe()
	ctx = logging.WithUserID(ctx, userID)

	stream, err := s.src.Watch(ctx, userID, func(profile models.UserProfile, videos []models.VideoRecord) {
		seq := s.seq.Add(1)
		if !s.apply(ctx, seq, profile, videos) {
			logging.FromContext(ctx).Debug("stale push dropped", "seq", seq)
		}
	})
	if err != nil {
		subErr := &SubscriptionError{UserID: userID, Err: err}
		s.fail(ctx, subErr)
		return subErr
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		stream.Close()
		return ErrClosed
	}
	prev := s.stream
	s.stream = stream
	s.mu.Unlock()

	if prev != nil {
		prev.Close()
	}

	go func() {
		<-stream.Done()
		s.mu.Lock()
		current := s.stream == stream
		if current {
			s.stream = nil
		}
		s.mu.Unlock()
		if current && stream.Err() != nil {
			s.fail(ctx, &SubscriptionError{UserID: userID, Err: stream.Err()})
		}
	}()
	return nil
}

// Unsubscribe closes the push subscription, if any.
func (s *Store) Unsubscribe() {
	s.mu.Lock()
	stream := s.stream
	s.stream = nil
	s.mu.Unlock()

	if stream != nil {
		stream.Close()
	}
}

// Clear drops the held snapshot. Fetches and pushes issued before the clear
// can no longer be applied.
func (s *Store) Clear() {
	s.Unsubscribe()

	s.mu.Lock()
	if s.fetchCancel != nil {
		s.fetchCancel()
		s.fetchCancel = nil
		s.fetchSeq = 0
	}
	if s.failTimer != nil {
		s.failTimer.Stop()
		s.failTimer = nil
	}
	s.snap = models.Snapshot{Seq: s.seq.Add(1), Videos: []models.VideoRecord{}}
	snap := copySnapshot(s.snap)
	listeners := s.snapshotListeners()
	s.mu.Unlock()

	s.publish(listeners, snap)
}

// Close stops all background work. The store cannot be used afterwards.
func (s *Store) Close() {
	s.Unsubscribe()

	s.mu.Lock()
	s.closed = true
	if s.fetchCancel != nil {
		s.fetchCancel()
		s.fetchCancel = nil
	}
	if s.failTimer != nil {
		s.failTimer.Stop()
		s.failTimer = nil
	}
	s.mu.Unlock()
}

func (s *Store) apply(ctx context.Context, seq uint64, profile models.UserProfile, videos []models.VideoRecord) bool {
	sorted := append([]models.VideoRecord{}, videos...)
	models.SortNewestFirst(sorted)

	s.mu.Lock()
	if s.closed || seq <= s.snap.Seq {
		s.mu.Unlock()
		return false
	}
	p := profile
	s.snap = models.Snapshot{Seq: seq, Profile: &p, Videos: sorted}
	snap := copySnapshot(s.snap)
	listeners := s.snapshotListeners()
	s.mu.Unlock()

	logging.FromContext(ctx).Debug("snapshot applied", "seq", seq, "videos", len(sorted))
	s.publish(listeners, snap)
	return true
}

func (s *Store) fail(ctx context.Context, err error) {
	logging.FromContext(ctx).Error("realtime data failure", "error", err)
	if s.onFailure == nil {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	if s.failTimer != nil {
		s.failTimer.Stop()
	}
	s.failTimer = time.AfterFunc(s.grace, func() { s.onFailure(err) })
}

func (s *Store) snapshotListeners() []func(models.Snapshot) {
	listeners := make([]func(models.Snapshot), 0, len(s.listeners))
	for _, fn := range s.listeners {
		listeners = append(listeners, fn)
	}
	return listeners
}

// publish delivers snap unless a newer snapshot has already been delivered.
func (s *Store) publish(listeners []func(models.Snapshot), snap models.Snapshot) {
	s.pubMu.Lock()
	defer s.pubMu.Unlock()
	if snap.Seq <= s.published {
		return
	}
	s.published = snap.Seq
	for _, fn := range listeners {
		fn(copySnapshot(snap))
	}
}

func copySnapshot(snap models.Snapshot) models.Snapshot {
	out := models.Snapshot{Seq: snap.Seq, Videos: append([]models.VideoRecord{}, snap.Videos...)}
	if snap.Profile != nil {
		p := *snap.Profile
		out.Profile = &p
	}
	return out
}
