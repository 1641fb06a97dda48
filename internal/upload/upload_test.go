package upload

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/clipqueue/client/internal/apiclient"
	"github.com/clipqueue/client/internal/blobs"
	"github.com/clipqueue/client/internal/input"
	"github.com/clipqueue/client/internal/notify"
)

var (
	mp4Header = []byte("\x00\x00\x00\x18ftypisom\x00\x00\x02\x00isomiso2\x00\x00\x00\x08free")
	movHeader = []byte("\x00\x00\x00\x14ftypqt  \x00\x00\x02\x00qt  \x00\x00\x00\x08wide")
)

type targetStub struct {
	target apiclient.UploadTarget
	err    error
	calls  atomic.Int32
	hashes []string
	mu     sync.Mutex
}

func (s *targetStub) RequestUploadTarget(_ context.Context, sha1Hex string) (apiclient.UploadTarget, error) {
	s.calls.Add(1)
	s.mu.Lock()
	s.hashes = append(s.hashes, sha1Hex)
	s.mu.Unlock()
	return s.target, s.err
}

type proberStub struct {
	seconds float64
	err     error
}

func (p proberStub) Duration(context.Context, string) (float64, error) {
	return p.seconds, p.err
}

func writeFile(t *testing.T, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func waitForCondition(t *testing.T, predicate func() bool, timeout time.Duration) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if predicate() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("condition not met within %v", timeout)
}

func TestComputeContentHash(t *testing.T) {
	got, err := ComputeContentHash(strings.NewReader("abc"))
	if err != nil {
		t.Fatalf("ComputeContentHash() error = %v", err)
	}
	if got != "a9993e364706816aba3e25717850c26c9cd0d89d" {
		t.Fatalf("unexpected hash %s", got)
	}
}

func TestFFProbeDuration(t *testing.T) {
	probe := NewFFProbe("", time.Second)
	probe.Run = func(_ context.Context, binary string, args ...string) ([]byte, error) {
		if binary != "ffprobe" {
			t.Fatalf("unexpected binary %q", binary)
		}
		if args[len(args)-1] != "/tmp/clip.mp4" || args[len(args)-2] != "--" {
			t.Fatalf("unexpected args %v", args)
		}
		return []byte(`{"format":{"duration":"125.400000"}}`), nil
	}

	got, err := probe.Duration(context.Background(), "/tmp/clip.mp4")
	if err != nil {
		t.Fatalf("Duration() error = %v", err)
	}
	if got != 125.4 {
		t.Fatalf("unexpected duration %v", got)
	}

	probe.Run = func(context.Context, string, ...string) ([]byte, error) {
		return []byte(`{"format":{}}`), nil
	}
	if _, err := probe.Duration(context.Background(), "/tmp/clip.mp4"); err == nil {
		t.Fatal("expected error for missing duration")
	}

	var nilProbe *FFProbe
	if _, err := nilProbe.Duration(context.Background(), "x"); !errors.Is(err, ErrProberUnavailable) {
		t.Fatalf("expected ErrProberUnavailable, got %v", err)
	}
}

func TestUploadMP4(t *testing.T) {
	type putRequest struct {
		contentType, hash string
		length            int64
	}
	release := make(chan struct{})
	received := make(chan putRequest, 1)
	storage := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		received <- putRequest{r.Header.Get("Content-Type"), r.Header.Get("X-Bz-Content-Sha1"), r.ContentLength}
		<-release
		w.WriteHeader(http.StatusOK)
	}))
	defer storage.Close()

	path := writeFile(t, "clip.mp4", mp4Header)
	targets := &targetStub{target: apiclient.UploadTarget{UploadURL: storage.URL + "/put", UploadFilename: "user/abc.mp4"}}
	store := input.NewStore()
	rec := &notify.Recorder{}
	pipeline := NewPipeline(targets, store, blobs.NewRegistry(), proberStub{seconds: 125.6}, rec)

	transfer, err := pipeline.Upload(context.Background(), path)
	if err != nil {
		t.Fatalf("Upload() error = %v", err)
	}

	draft := store.Get()
	src, ok := draft.Basic.Source.(input.UploadSource)
	if !ok {
		t.Fatalf("expected upload source, got %T", draft.Basic.Source)
	}
	if !strings.HasPrefix(src.PreviewURL, blobs.Scheme) || src.FileName != "clip.mp4" || src.UploadFilename != "user/abc.mp4" {
		t.Fatalf("unexpected source %+v", src)
	}
	if src.Phase != input.PhasePendingTransfer || draft.EnqueueReady() {
		t.Fatalf("draft must not be enqueueable before the transfer completes: %+v", src)
	}

	close(release)
	if err := transfer.Wait(context.Background()); err != nil {
		t.Fatalf("transfer error = %v", err)
	}
	waitForCondition(t, func() bool { return store.EnqueueReady() }, time.Second)

	select {
	case <-transfer.Probed():
	case <-time.After(time.Second):
		t.Fatal("probe did not finish")
	}
	draft = store.Get()
	if draft.Basic.IntrinsicLength != 126 || draft.Basic.SectionLength.End != 126 {
		t.Fatalf("expected probed duration on draft, got %+v", draft.Basic)
	}
	if draft.States.Loading {
		t.Fatal("loading should be cleared")
	}

	put := <-received
	expectedHash, _ := ComputeContentHash(strings.NewReader(string(mp4Header)))
	if put.contentType != "video/mp4" || put.hash != expectedHash || put.length != int64(len(mp4Header)) {
		t.Fatalf("unexpected transfer request: %+v", put)
	}
	if targets.hashes[0] != expectedHash {
		t.Fatalf("target requested with hash %q", targets.hashes[0])
	}

	all := rec.All()
	if len(all) != 2 || all[0].Level != notify.LevelPending || all[1].Message != "Uploaded clip.mp4" {
		t.Fatalf("unexpected notifications: %+v", all)
	}
}

func TestUploadRejectsNonMP4(t *testing.T) {
	path := writeFile(t, "clip.mov", movHeader)
	targets := &targetStub{}
	store := input.NewStore()
	rec := &notify.Recorder{}
	pipeline := NewPipeline(targets, store, blobs.NewRegistry(), nil, rec)

	_, err := pipeline.Upload(context.Background(), path)
	var verr *input.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if targets.calls.Load() != 0 {
		t.Fatal("no network call expected")
	}

	draft := store.Get()
	if _, ok := draft.Basic.Source.(input.NoSource); !ok || draft.States.Loading {
		t.Fatalf("expected reset draft, got %+v", draft)
	}
	all := rec.All()
	if len(all) != 1 || all[0].Level != notify.LevelError || all[0].Message != "Invalid File Type: We only accept .mp4" {
		t.Fatalf("unexpected notifications: %+v", all)
	}
}

func TestUploadHashFailureResetsDraft(t *testing.T) {
	path := writeFile(t, "clip.mp4", mp4Header)
	targets := &targetStub{}
	store := input.NewStore()
	rec := &notify.Recorder{}
	pipeline := NewPipeline(targets, store, blobs.NewRegistry(), nil, rec)
	pipeline.Hash = func(path string) (string, error) {
		if err := os.Remove(path); err != nil {
			t.Fatalf("remove %s: %v", path, err)
		}
		return hashFile(path)
	}

	_, err := pipeline.Upload(context.Background(), path)
	if !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("expected missing file error, got %v", err)
	}
	if targets.calls.Load() != 0 {
		t.Fatal("no network call expected")
	}
	draft := store.Get()
	if _, ok := draft.Basic.Source.(input.NoSource); !ok || draft.States.Loading {
		t.Fatalf("expected reset draft, got %+v", draft)
	}
	all := rec.All()
	if len(all) != 1 || all[0].Level != notify.LevelError || all[0].Message != "Error uploading file" {
		t.Fatalf("unexpected notifications: %+v", all)
	}
}

func TestUploadTargetFailure(t *testing.T) {
	path := writeFile(t, "clip.mp4", mp4Header)
	targets := &targetStub{err: &apiclient.RequestError{Method: http.MethodPost, Path: "/videos/v2/upload", StatusCode: 500}}
	store := input.NewStore()
	rec := &notify.Recorder{}
	pipeline := NewPipeline(targets, store, blobs.NewRegistry(), nil, rec)

	if _, err := pipeline.Upload(context.Background(), path); apiclient.StatusCode(err) != 500 {
		t.Fatalf("expected request error, got %v", err)
	}
	if _, ok := store.Get().Basic.Source.(input.NoSource); !ok {
		t.Fatal("expected reset draft")
	}
	if rec.Count(notify.LevelError) != 1 {
		t.Fatalf("unexpected notifications: %+v", rec.All())
	}
}

func TestUploadTransferFailureResetsDraft(t *testing.T) {
	storage := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer storage.Close()

	path := writeFile(t, "clip.mp4", mp4Header)
	targets := &targetStub{target: apiclient.UploadTarget{UploadURL: storage.URL, UploadFilename: "user/abc.mp4"}}
	store := input.NewStore()
	rec := &notify.Recorder{}
	pipeline := NewPipeline(targets, store, blobs.NewRegistry(), nil, rec)

	transfer, err := pipeline.Upload(context.Background(), path)
	if err != nil {
		t.Fatalf("Upload() error = %v", err)
	}
	err = transfer.Wait(context.Background())
	var terr *TransferError
	if !errors.As(err, &terr) || terr.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("expected TransferError 503, got %v", err)
	}
	waitForCondition(t, func() bool {
		_, ok := store.Get().Basic.Source.(input.NoSource)
		return ok
	}, time.Second)

	all := rec.All()
	if len(all) != 2 || all[1].Message != "Error uploading clip.mp4" {
		t.Fatalf("unexpected notifications: %+v", all)
	}
}
