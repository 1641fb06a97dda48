package videos

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"sync/atomic"

	"github.com/gabriel-vasile/mimetype"

	"github.com/clipqueue/client/internal/logging"
	"github.com/clipqueue/client/internal/models"
	"github.com/clipqueue/client/internal/notify"
)

const sniffLength = 3072

var (
	// ErrDownloadInProgress indicates another download is still running.
	ErrDownloadInProgress = errors.New("a download is already in progress")
	// ErrNotVideo indicates the download URL served an XML error document instead of video bytes.
	ErrNotVideo = errors.New("download did not return a video")
)

// API is the subset of the backend used for video actions.
type API interface {
	RequestDownloadURL(ctx context.Context, videoID string) (string, error)
	DeleteVideo(ctx context.Context, videoID string) error
}

// BlobCreator registers a local file and returns its blob reference.
type BlobCreator interface {
	Create(path, contentType string) (string, error)
}

// Reference describes a completed download.
type Reference struct {
	Location string
	Filename string
	Size     int64
	Blob     string
}

// Lifecycle implements download, delete and AI content lookups for processed videos.
type Lifecycle struct {
	api      API
	extra    ExtraDataSource
	sink     Sink
	blobs    BlobCreator
	notifier notify.Notifier
	http     *http.Client

	downloading atomic.Bool
}

// Option customises a Lifecycle.
type Option func(*Lifecycle)

// WithHTTPClient sets the client used to fetch download URLs.
func WithHTTPClient(c *http.Client) Option {
	return func(l *Lifecycle) {
		if c != nil {
			l.http = c
		}
	}
}

// WithBlobs registers local downloads as blob references.
func WithBlobs(b BlobCreator) Option {
	return func(l *Lifecycle) { l.blobs = b }
}

// WithExtraData sets the source of AI-generated content.
func WithExtraData(src ExtraDataSource) Option {
	return func(l *Lifecycle) { l.extra = src }
}

// NewLifecycle wires the video actions.
func NewLifecycle(api API, sink Sink, notifier notify.Notifier, opts ...Option) *Lifecycle {
	if notifier == nil {
		notifier = notify.Discard{}
	}
	l := &Lifecycle{api: api, sink: sink, notifier: notifier, http: http.DefaultClient}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Downloading reports whether a download is running.
func (l *Lifecycle) Downloading() bool {
	return l.downloading.Load()
}

// Download fetches a processed video and saves it through the sink. Only one
// download runs at a time.
func (l *Lifecycle) Download(ctx context.Context, videoID, title string) (Reference, error) {
	if !l.downloading.CompareAndSwap(false, true) {
		return Reference{}, ErrDownloadInProgress
	}
	defer l.downloading.Store(false)

	ctx = logging.WithVideoID(ctx, videoID)
	ctx, span := logging.StartSpan(ctx, "download")
	defer span.End()

	filename := videoID
	if title != "" {
		filename = title + ".mp4"
	}
	filename = SafeFilename(filename)

	var ref Reference
	err := notify.Track(ctx, l.notifier, notify.Messages{
		Pending: fmt.Sprintf("Downloading %s...", displayTitle(title, videoID)),
		Success: fmt.Sprintf("Downloaded %s Successfully!", displayTitle(title, videoID)),
		Error:   "Error Downloading",
	}, func(ctx context.Context) error {
		var err error
		ref, err = l.download(ctx, videoID, filename)
		return err
	})
	if err != nil {
		span.Fail(err)
		return Reference{}, err
	}
	logging.FromContext(ctx).Info("video downloaded", "location", ref.Location, "bytes", ref.Size)
	return ref, nil
}

func (l *Lifecycle) download(ctx context.Context, videoID, filename string) (Reference, error) {
	if l.sink == nil {
		return Reference{}, ErrSinkUnavailable
	}

	url, err := l.api.RequestDownloadURL(ctx, videoID)
	if err != nil {
		return Reference{}, fmt.Errorf("request download url: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return Reference{}, fmt.Errorf("build download request: %w", err)
	}
	resp, err := l.http.Do(req)
	if err != nil {
		return Reference{}, fmt.Errorf("fetch video: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Reference{}, fmt.Errorf("fetch video: unexpected status %d", resp.StatusCode)
	}

	body := bufio.NewReaderSize(resp.Body, sniffLength)
	head, _ := body.Peek(sniffLength)
	if isXML(resp.Header.Get("Content-Type"), head) {
		return Reference{}, ErrNotVideo
	}

	counter := &countingReader{r: body}
	location, err := l.sink.Save(ctx, filename, counter)
	if err != nil {
		return Reference{}, fmt.Errorf("save video: %w", err)
	}

	ref := Reference{Location: location, Filename: filename, Size: counter.n}
	if local, ok := l.sink.(interface{ Local() bool }); ok && local.Local() && l.blobs != nil {
		blob, err := l.blobs.Create(location, "video/mp4")
		if err != nil {
			logging.FromContext(ctx).Warn("register download preview failed", "error", err)
		} else {
			ref.Blob = blob
		}
	}
	return ref, nil
}

// Delete asks the backend to remove a video. The local video list is left
// alone; the removal shows up with the next snapshot.
func (l *Lifecycle) Delete(ctx context.Context, videoID, title string) bool {
	ctx = logging.WithVideoID(ctx, videoID)
	ctx, span := logging.StartSpan(ctx, "delete")
	defer span.End()

	err := notify.Track(ctx, l.notifier, notify.Messages{
		Pending: fmt.Sprintf("Deleting %s...", title),
		Success: fmt.Sprintf("Successfully deleted %s", title),
		Error:   fmt.Sprintf("Error Deleting %s", title),
	}, func(ctx context.Context) error {
		return l.api.DeleteVideo(ctx, videoID)
	})
	if err != nil {
		span.Fail(err)
		logging.FromContext(ctx).Error("delete failed", "error", err)
		return false
	}
	return true
}

// AIContent returns the generated metadata linked from a video.
func (l *Lifecycle) AIContent(ctx context.Context, extraDataID string) (models.AIContent, error) {
	if extraDataID == "" {
		return models.AIContent{}, ErrNoAIContent
	}
	if l.extra == nil {
		return models.AIContent{}, ErrExtraDataUnavailable
	}
	content, err := l.extra.GetExtraData(ctx, extraDataID)
	if err != nil {
		return models.AIContent{}, err
	}
	if content.Empty() {
		return models.AIContent{}, ErrNoAIContent
	}
	return content, nil
}

func isXML(contentType string, head []byte) bool {
	if mediaType, _, err := mime.ParseMediaType(contentType); err == nil {
		if mediaType == "application/xml" || mediaType == "text/xml" {
			return true
		}
	}
	if len(head) == 0 {
		return false
	}
	detected := mimetype.Detect(head)
	return detected.Is("text/xml") || detected.Is("application/xml")
}

func displayTitle(title, videoID string) string {
	if title != "" {
		return title
	}
	return videoID
}

type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}
