package upload

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"path/filepath"
	"sync"

	"github.com/gabriel-vasile/mimetype"

	"github.com/clipqueue/client/internal/apiclient"
	"github.com/clipqueue/client/internal/input"
	"github.com/clipqueue/client/internal/logging"
	"github.com/clipqueue/client/internal/notify"
)

const mp4MIME = "video/mp4"

// TargetRequester obtains upload destinations from the backend.
type TargetRequester interface {
	RequestUploadTarget(ctx context.Context, sha1Hex string) (apiclient.UploadTarget, error)
}

// BlobCreator registers local files and returns a preview reference.
type BlobCreator interface {
	Create(path, contentType string) (string, error)
}

// DurationProber measures the length of a local media file in seconds.
type DurationProber interface {
	Duration(ctx context.Context, path string) (float64, error)
}

var errSuperseded = errors.New("draft no longer holds this upload")

// Pipeline turns a local .mp4 into an upload source on the draft.
type Pipeline struct {
	Targets  TargetRequester
	Input    *input.Store
	Blobs    BlobCreator
	Prober   DurationProber
	Notifier notify.Notifier
	HTTP     *http.Client
	// Hash returns the hex SHA-1 of the file at path.
	Hash func(path string) (string, error)
}

// NewPipeline wires an upload pipeline.
func NewPipeline(targets TargetRequester, store *input.Store, blobs BlobCreator, prober DurationProber, notifier notify.Notifier) *Pipeline {
	if notifier == nil {
		notifier = notify.Discard{}
	}
	return &Pipeline{
		Targets:  targets,
		Input:    store,
		Blobs:    blobs,
		Prober:   prober,
		Notifier: notifier,
		HTTP:     http.DefaultClient,
		Hash:     hashFile,
	}
}

// Transfer tracks the background work started by Upload.
type Transfer struct {
	Source input.UploadSource

	done   chan struct{}
	probed chan struct{}

	mu       sync.Mutex
	err      error
	duration float64
}

// Done is closed once the network transfer has finished.
func (t *Transfer) Done() <-chan struct{} { return t.done }

// Probed is closed once duration probing has finished, successfully or not.
func (t *Transfer) Probed() <-chan struct{} { return t.probed }

// Err returns the transfer outcome. It is nil until Done is closed.
func (t *Transfer) Err() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.err
}

// Duration returns the probed length in seconds, or 0 when unknown.
func (t *Transfer) Duration() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.duration
}

// Wait blocks until the transfer finishes or ctx ends.
func (t *Transfer) Wait(ctx context.Context) error {
	select {
	case <-t.done:
		return t.Err()
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Upload validates the file, reserves a storage destination and places an
// upload source on the draft before returning. The transfer and duration
// probing continue in the background; the source only becomes enqueueable
// once the transfer completes.
func (p *Pipeline) Upload(ctx context.Context, path string) (*Transfer, error) {
	ctx, span := logging.StartSpan(ctx, "upload")
	logger := logging.FromContext(ctx)
	name := filepath.Base(path)

	p.Input.Reset()
	_ = p.Input.Set("states.loading", true)

	mtype, err := mimetype.DetectFile(path)
	if err != nil {
		p.Input.Reset()
		notify.Error(ctx, p.Notifier, "Error uploading file")
		err = fmt.Errorf("detect type of %s: %w", name, err)
		span.Fail(err)
		span.End()
		return nil, err
	}
	if !mtype.Is(mp4MIME) {
		p.Input.Reset()
		notify.Error(ctx, p.Notifier, "Invalid File Type: We only accept .mp4")
		err = &input.ValidationError{Field: "file", Reason: fmt.Sprintf("%s is %s, only %s is accepted", name, mtype.String(), mp4MIME)}
		span.Fail(err)
		span.End()
		return nil, err
	}

	hashFn := p.Hash
	if hashFn == nil {
		hashFn = hashFile
	}
	hash, err := hashFn(path)
	if err == nil {
		logger.Debug("content hashed", "file", name, "sha1", hash)
	}
	var target apiclient.UploadTarget
	if err == nil {
		target, err = p.Targets.RequestUploadTarget(ctx, hash)
	}
	var preview string
	if err == nil {
		preview, err = p.Blobs.Create(path, mp4MIME)
	}
	if err != nil {
		p.Input.Reset()
		notify.Error(ctx, p.Notifier, "Error uploading file")
		span.Fail(err)
		span.End()
		return nil, err
	}

	source := input.UploadSource{
		PreviewURL:     preview,
		FileName:       name,
		UploadFilename: target.UploadFilename,
		Phase:          input.PhasePendingTransfer,
	}
	if err := p.Input.Set("basic.source", source); err != nil {
		span.Fail(err)
		span.End()
		return nil, err
	}
	logger.Info("upload target reserved", "file", name, "upload_filename", target.UploadFilename)

	t := &Transfer{Source: source, done: make(chan struct{}), probed: make(chan struct{})}
	go p.probe(ctx, t, path)
	go p.transfer(ctx, span, t, target, path, hash)
	return t, nil
}

func (p *Pipeline) probe(ctx context.Context, t *Transfer, path string) {
	defer close(t.probed)
	if p.Prober == nil {
		return
	}

	seconds, err := p.Prober.Duration(ctx, path)
	if err != nil {
		logging.FromContext(ctx).Warn("duration probe failed", "error", err)
		return
	}
	length := math.Round(seconds)

	err = p.Input.Update(func(d *input.PendingInput) error {
		current, ok := d.Basic.Source.(input.UploadSource)
		if !ok || current.PreviewURL != t.Source.PreviewURL {
			return errSuperseded
		}
		d.Basic.IntrinsicLength = length
		d.Basic.SectionLength.End = length
		return nil
	})
	if err != nil {
		logging.FromContext(ctx).Debug("probe result dropped", "reason", err)
		return
	}

	t.mu.Lock()
	t.duration = length
	t.mu.Unlock()
}

func (p *Pipeline) transfer(ctx context.Context, span *logging.Span, t *Transfer, target apiclient.UploadTarget, path, hash string) {
	defer span.End()
	defer close(t.done)

	name := t.Source.FileName
	err := notify.Track(ctx, p.Notifier, notify.Messages{
		Pending: "Uploading your video...",
		Success: "Uploaded " + name,
		Error:   "Error uploading " + name,
	}, func(ctx context.Context) error {
		return TransferFile(ctx, p.HTTP, target, path, hash)
	})

	t.mu.Lock()
	t.err = err
	t.mu.Unlock()

	if err != nil {
		span.Fail(err)
		if p.ownsDraft(t) {
			p.Input.Reset()
		}
		return
	}

	updateErr := p.Input.Update(func(d *input.PendingInput) error {
		current, ok := d.Basic.Source.(input.UploadSource)
		if !ok || current.UploadFilename != t.Source.UploadFilename {
			return errSuperseded
		}
		current.Phase = input.PhaseTransferComplete
		d.Basic.Source = current
		d.States.Loading = false
		return nil
	})
	if updateErr != nil {
		logging.FromContext(ctx).Debug("transfer completion dropped", "reason", updateErr)
	}
}

func (p *Pipeline) ownsDraft(t *Transfer) bool {
	current, ok := p.Input.Get().Basic.Source.(input.UploadSource)
	return ok && current.UploadFilename == t.Source.UploadFilename
}
