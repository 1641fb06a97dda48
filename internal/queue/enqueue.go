package queue

import (
	"context"
	"errors"
	"fmt"

	"github.com/clipqueue/client/internal/apiclient"
	"github.com/clipqueue/client/internal/input"
	"github.com/clipqueue/client/internal/logging"
	"github.com/clipqueue/client/internal/models"
	"github.com/clipqueue/client/internal/notify"
)

const (
	// MaxActive is the number of queued or processing videos at which new
	// submissions are refused locally.
	MaxActive = 3

	ProfanityFilterStrength = "mid"
	TimestampAccuracy       = "low"
)

var (
	// ErrNoSource indicates the draft has nothing to submit.
	ErrNoSource = errors.New("no video selected")
	// ErrTransferPending indicates the draft's upload has not finished transferring.
	ErrTransferPending = errors.New("upload still in progress")
	// ErrTooManyQueued indicates the admission limit was reached.
	ErrTooManyQueued = errors.New("too many queued videos")
)

// Sender submits payloads to the enqueue endpoint.
type Sender interface {
	Enqueue(ctx context.Context, payload apiclient.EnqueuePayload) error
}

// Counter reports how many of the user's videos are not yet terminal.
type Counter interface {
	ActiveCount() int
}

// Revoker releases a local preview reference.
type Revoker interface {
	Revoke(ref string)
}

// Ack describes an accepted submission.
type Ack struct {
	Title    string
	Platform models.Platform
}

// Enqueuer submits the draft for processing.
type Enqueuer struct {
	sender   Sender
	counter  Counter
	input    *input.Store
	blobs    Revoker
	notifier notify.Notifier
}

// NewEnqueuer wires an Enqueuer. blobs may be nil.
func NewEnqueuer(sender Sender, counter Counter, store *input.Store, blobs Revoker, notifier notify.Notifier) *Enqueuer {
	if notifier == nil {
		notifier = notify.Discard{}
	}
	return &Enqueuer{sender: sender, counter: counter, input: store, blobs: blobs, notifier: notifier}
}

// Enqueue submits the current draft. Once a request is sent the draft is
// reset whatever the outcome.
func (e *Enqueuer) Enqueue(ctx context.Context) (Ack, error) {
	ctx, span := logging.StartSpan(ctx, "enqueue")
	defer span.End()

	draft := e.input.Get()
	if _, ok := draft.Basic.Source.(input.NoSource); ok || draft.Basic.Source == nil {
		span.Fail(ErrNoSource)
		return Ack{}, ErrNoSource
	}
	if !draft.EnqueueReady() {
		span.Fail(ErrTransferPending)
		return Ack{}, ErrTransferPending
	}
	if active := e.counter.ActiveCount(); active >= MaxActive {
		logging.FromContext(ctx).Warn("enqueue refused", "active", active, "limit", MaxActive)
		notify.Error(ctx, e.notifier, "Too Many Queued Items!")
		e.reset(draft)
		span.Fail(ErrTooManyQueued)
		return Ack{}, ErrTooManyQueued
	}

	payload, err := BuildPayload(draft)
	if err != nil {
		var invalid *input.ValidationError
		if errors.As(err, &invalid) {
			notify.Error(ctx, e.notifier, fmt.Sprintf("Invalid %s: %s", invalid.Field, invalid.Reason))
			e.reset(draft)
		}
		span.Fail(err)
		return Ack{}, err
	}
	defer e.reset(draft)

	title := displayName(draft.Basic.Source)
	err = notify.Track(ctx, e.notifier, notify.Messages{
		Pending: fmt.Sprintf("Enqueueing %s...", title),
		Success: "Video queued successfully",
		Error:   "Error enqueueing your video. Please, contact our support",
	}, func(ctx context.Context) error {
		return e.sender.Enqueue(ctx, payload)
	})
	if err != nil {
		span.Fail(err)
		return Ack{}, err
	}
	return Ack{Title: title, Platform: payload.Platform}, nil
}

func (e *Enqueuer) reset(draft input.PendingInput) {
	if upload, ok := draft.Basic.Source.(input.UploadSource); ok && e.blobs != nil {
		e.blobs.Revoke(upload.PreviewURL)
	}
	e.input.Reset()
}

// BuildPayload flattens a draft into the enqueue request body.
func BuildPayload(p input.PendingInput) (apiclient.EnqueuePayload, error) {
	opts := models.QueueOptions{
		StartTime:         p.Basic.SectionLength.Start,
		EndTime:           p.Basic.SectionLength.End,
		AutoEdit:          p.Options.AutoEdit,
		MuteProfanity:     p.Options.MuteProfanity,
		GenerateAIContent: p.Options.AIContent,
		Resolution:        p.Basic.Resolution,
	}
	if !opts.Resolution.Valid() {
		return apiclient.EnqueuePayload{}, &input.ValidationError{Field: "resolution", Reason: fmt.Sprintf("%d is not supported", opts.Resolution)}
	}

	switch src := p.Basic.Source.(type) {
	case input.YouTubeSource:
		opts.Platform = models.PlatformYouTube
		opts.PlatformVideoID = src.VideoID
		opts.ThumbnailURL = input.Thumbnail(src)
	case input.TwitchSource:
		opts.Platform = models.PlatformTwitch
		opts.PlatformVideoID = src.VideoID
		opts.ThumbnailURL = input.Thumbnail(src)
	case input.UploadSource:
		if src.Phase != input.PhaseTransferComplete {
			return apiclient.EnqueuePayload{}, ErrTransferPending
		}
		opts.Platform = models.PlatformUpload
		opts.UploadFilename = src.UploadFilename
		opts.OriginalFileName = src.FileName
	case input.NoSource, nil:
		return apiclient.EnqueuePayload{}, ErrNoSource
	default:
		panic(fmt.Sprintf("queue: unhandled source %T", src))
	}

	return apiclient.EnqueuePayload{
		QueueOptions:            opts,
		ProfanityFilterStrength: ProfanityFilterStrength,
		TimestampAccuracy:       TimestampAccuracy,
	}, nil
}

func displayName(src input.Source) string {
	switch s := src.(type) {
	case input.UploadSource:
		return s.FileName
	case input.YouTubeSource:
		return s.VideoID
	case input.TwitchSource:
		return s.VideoID
	default:
		return "video"
	}
}
