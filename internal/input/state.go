package input

import (
	"errors"
	"fmt"
	"sync"

	"github.com/clipqueue/client/internal/models"
)

// MinClipLength is the shortest selectable clip, in seconds.
const MinClipLength = 61

// Range is a [Start, End] selection in seconds.
type Range struct {
	Start float64
	End   float64
}

// Basic holds the source and clip selection of the draft.
type Basic struct {
	Source          Source
	SectionLength   Range
	IntrinsicLength float64
	Resolution      models.Resolution
}

// Options holds the processing flags chosen by the user.
type Options struct {
	AutoEdit      bool
	MuteProfanity bool
	AIContent     bool
}

// States holds transient flags for whatever is rendering the draft.
type States struct {
	Loading      bool
	InvalidInput *bool
}

// PendingInput is the single in-flight submission draft.
type PendingInput struct {
	Basic   Basic
	Options Options
	States  States
}

func (p PendingInput) clone() PendingInput {
	out := p
	if p.States.InvalidInput != nil {
		v := *p.States.InvalidInput
		out.States.InvalidInput = &v
	}
	return out
}

// Defaults returns the draft a fresh session starts with.
func Defaults() PendingInput {
	return PendingInput{
		Basic: Basic{
			Source:        NoSource{},
			SectionLength: Range{Start: 0, End: -1},
			Resolution:    models.Resolution480,
		},
		Options: Options{MuteProfanity: true},
	}
}

var (
	// ErrUnknownPath indicates Set was called with a path the draft does not have.
	ErrUnknownPath = errors.New("input: unknown path")
	// ErrWrongType indicates Set was called with a value of the wrong type for the path.
	ErrWrongType = errors.New("input: wrong value type")
	// ErrNotUpload indicates a phase change was requested on a non-upload source.
	ErrNotUpload = errors.New("input: source is not an upload")
)

// ValidationError reports user input that was rejected before any request was made.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// Store owns the PendingInput of one session. It is safe for concurrent use.
type Store struct {
	mu        sync.Mutex
	value     PendingInput
	listeners map[int]func(PendingInput)
	nextID    int
}

// NewStore returns a store holding Defaults().
func NewStore() *Store {
	return &Store{value: Defaults(), listeners: make(map[int]func(PendingInput))}
}

// Get returns a copy of the current draft.
func (s *Store) Get() PendingInput {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.value.clone()
}

// Set replaces the single field addressed by a dotted path.
func (s *Store) Set(path string, value any) error {
	return s.Update(func(p *PendingInput) error {
		return setPath(p, path, value)
	})
}

// Update applies fn to the draft atomically. Nothing changes if fn returns an error.
func (s *Store) Update(fn func(*PendingInput) error) error {
	s.mu.Lock()
	next := s.value.clone()
	if err := fn(&next); err != nil {
		s.mu.Unlock()
		return err
	}
	s.value = next
	listeners := s.snapshotListeners()
	s.mu.Unlock()

	s.publish(listeners, next)
	return nil
}

// Reset returns the draft to the cleared state: no source, an empty range,
// 720p and no transient flags. Options are kept.
func (s *Store) Reset() {
	_ = s.Update(func(p *PendingInput) error {
		p.Basic = Basic{
			Source:     NoSource{},
			Resolution: models.Resolution720,
		}
		p.States = States{}
		return nil
	})
}

// Subscribe registers fn to run after every change. The returned func unregisters it.
func (s *Store) Subscribe(fn func(PendingInput)) func() {
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

// EnqueueReady reports whether the draft can be submitted.
func (s *Store) EnqueueReady() bool {
	return s.Get().EnqueueReady()
}

// EnqueueReady reports whether p has a source that can be submitted. Uploads
// must have finished their transfer.
func (p PendingInput) EnqueueReady() bool {
	switch src := p.Basic.Source.(type) {
	case YouTubeSource, TwitchSource:
		return true
	case UploadSource:
		return src.Phase == PhaseTransferComplete
	case NoSource, nil:
		return false
	default:
		panic(fmt.Sprintf("input: unhandled source %T", src))
	}
}

// SelectRange validates a clip selection against the draft's intrinsic length
// and stores it.
func (s *Store) SelectRange(start, end float64) (Range, error) {
	var selected Range
	err := s.Update(func(p *PendingInput) error {
		r, err := SelectRange(start, end, p.Basic.IntrinsicLength)
		if err != nil {
			return err
		}
		p.Basic.SectionLength = r
		selected = r
		return nil
	})
	return selected, err
}

// SelectRange enforces 0 <= start < end <= intrinsic and a clip of at least MinClipLength.
func SelectRange(start, end, intrinsic float64) (Range, error) {
	switch {
	case start < 0:
		return Range{}, &ValidationError{Field: "range", Reason: "start must not be negative"}
	case end <= start:
		return Range{}, &ValidationError{Field: "range", Reason: "end must be after start"}
	case end > intrinsic:
		return Range{}, &ValidationError{Field: "range", Reason: fmt.Sprintf("end exceeds video length of %.0fs", intrinsic)}
	case end-start < MinClipLength:
		return Range{}, &ValidationError{Field: "range", Reason: fmt.Sprintf("clips must be at least %ds long", MinClipLength)}
	}
	return Range{Start: start, End: end}, nil
}

func (s *Store) snapshotListeners() []func(PendingInput) {
	listeners := make([]func(PendingInput), 0, len(s.listeners))
	for _, fn := range s.listeners {
		listeners = append(listeners, fn)
	}
	return listeners
}

func (s *Store) publish(listeners []func(PendingInput), value PendingInput) {
	for _, fn := range listeners {
		fn(value.clone())
	}
}

func setPath(p *PendingInput, path string, value any) error {
	switch path {
	case "basic.sectionLength.start":
		return setFloat(&p.Basic.SectionLength.Start, path, value)
	case "basic.sectionLength.end":
		return setFloat(&p.Basic.SectionLength.End, path, value)
	case "basic.intrinsicLength":
		return setFloat(&p.Basic.IntrinsicLength, path, value)
	case "basic.resolution":
		switch v := value.(type) {
		case models.Resolution:
			p.Basic.Resolution = v
		case int:
			p.Basic.Resolution = models.Resolution(v)
		default:
			return wrongType(path, value)
		}
	case "basic.source":
		src, ok := value.(Source)
		if !ok && value != nil {
			return wrongType(path, value)
		}
		if src == nil {
			src = NoSource{}
		}
		p.Basic.Source = src
	case "basic.source.phase":
		phase, ok := value.(TransferPhase)
		if !ok {
			return wrongType(path, value)
		}
		upload, ok := p.Basic.Source.(UploadSource)
		if !ok {
			return ErrNotUpload
		}
		upload.Phase = phase
		p.Basic.Source = upload
	case "options.autoEdit":
		return setBool(&p.Options.AutoEdit, path, value)
	case "options.muteProfanity":
		return setBool(&p.Options.MuteProfanity, path, value)
	case "options.aiContent":
		return setBool(&p.Options.AIContent, path, value)
	case "states.loading":
		return setBool(&p.States.Loading, path, value)
	case "states.invalidInput":
		switch v := value.(type) {
		case nil:
			p.States.InvalidInput = nil
		case bool:
			p.States.InvalidInput = &v
		case *bool:
			if v == nil {
				p.States.InvalidInput = nil
				return nil
			}
			b := *v
			p.States.InvalidInput = &b
		default:
			return wrongType(path, value)
		}
	default:
		return fmt.Errorf("%w: %q", ErrUnknownPath, path)
	}
	return nil
}

func setFloat(dst *float64, path string, value any) error {
	switch v := value.(type) {
	case float64:
		*dst = v
	case float32:
		*dst = float64(v)
	case int:
		*dst = float64(v)
	case int64:
		*dst = float64(v)
	default:
		return wrongType(path, value)
	}
	return nil
}

func setBool(dst *bool, path string, value any) error {
	v, ok := value.(bool)
	if !ok {
		return wrongType(path, value)
	}
	*dst = v
	return nil
}

func wrongType(path string, value any) error {
	return fmt.Errorf("%w: %s cannot hold %T", ErrWrongType, path, value)
}
