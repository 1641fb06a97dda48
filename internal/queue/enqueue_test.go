package queue

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/clipqueue/client/internal/apiclient"
	"github.com/clipqueue/client/internal/input"
	"github.com/clipqueue/client/internal/models"
	"github.com/clipqueue/client/internal/notify"
)

type senderStub struct {
	err      error
	payloads []apiclient.EnqueuePayload
}

func (s *senderStub) Enqueue(_ context.Context, payload apiclient.EnqueuePayload) error {
	s.payloads = append(s.payloads, payload)
	return s.err
}

type counterStub int

func (c counterStub) ActiveCount() int { return int(c) }

type revokerStub struct{ revoked []string }

func (r *revokerStub) Revoke(ref string) { r.revoked = append(r.revoked, ref) }

func completedUpload() input.UploadSource {
	return input.UploadSource{
		PreviewURL:     "blob:1234",
		FileName:       "clip.mp4",
		UploadFilename: "user/abc.mp4",
		Phase:          input.PhaseTransferComplete,
	}
}

func TestBuildPayloadUpload(t *testing.T) {
	draft := input.Defaults()
	draft.Basic.Source = completedUpload()
	draft.Basic.SectionLength = input.Range{Start: 5, End: 100}
	draft.Options.AIContent = true

	payload, err := BuildPayload(draft)
	if err != nil {
		t.Fatalf("BuildPayload() error = %v", err)
	}
	raw, _ := json.Marshal(payload)
	var body map[string]any
	_ = json.Unmarshal(raw, &body)

	want := map[string]any{
		"video_platform":            "upload",
		"video_start_time":          float64(5),
		"video_end_time":            float64(100),
		"generate_ai_content":       true,
		"mute_profanity":            true,
		"video_resolution":          float64(480),
		"video_title":               "clip.mp4",
		"upload_filename":           "user/abc.mp4",
		"profanity_filter_strength": "mid",
		"timestamp_accuracy":        "low",
	}
	for k, v := range want {
		if body[k] != v {
			t.Fatalf("field %s = %v, want %v (body %s)", k, body[k], v, raw)
		}
	}
	if _, ok := body["platform_video_id"]; ok {
		t.Fatalf("upload payload must not carry a platform id: %s", raw)
	}
}

func TestBuildPayloadPlatform(t *testing.T) {
	draft := input.Defaults()
	draft.Basic.Source = input.YouTubeSource{VideoID: "dQw4w9WgXcQ"}

	payload, err := BuildPayload(draft)
	if err != nil {
		t.Fatalf("BuildPayload() error = %v", err)
	}
	if payload.Platform != models.PlatformYouTube || payload.PlatformVideoID != "dQw4w9WgXcQ" {
		t.Fatalf("unexpected payload %+v", payload)
	}
	if payload.UploadFilename != "" || payload.OriginalFileName != "" {
		t.Fatalf("platform payload must not carry upload fields: %+v", payload)
	}
	if payload.ThumbnailURL != "https://img.youtube.com/vi/dQw4w9WgXcQ/maxresdefault.jpg" {
		t.Fatalf("unexpected thumbnail %q", payload.ThumbnailURL)
	}

	draft.Basic.Resolution = 360
	var verr *input.ValidationError
	if _, err := BuildPayload(draft); !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError for bad resolution, got %v", err)
	}
}

func TestEnqueueRefusesWhenTooManyActive(t *testing.T) {
	store := input.NewStore()
	_ = store.Set("basic.source", completedUpload())
	sender := &senderStub{}
	revoker := &revokerStub{}
	rec := &notify.Recorder{}

	_, err := NewEnqueuer(sender, counterStub(3), store, revoker, rec).Enqueue(context.Background())
	if !errors.Is(err, ErrTooManyQueued) {
		t.Fatalf("expected ErrTooManyQueued, got %v", err)
	}
	if len(sender.payloads) != 0 {
		t.Fatal("no request expected")
	}
	if _, ok := store.Get().Basic.Source.(input.NoSource); !ok {
		t.Fatal("expected draft reset")
	}
	if len(revoker.revoked) != 1 || revoker.revoked[0] != "blob:1234" {
		t.Fatalf("expected preview revoked, got %v", revoker.revoked)
	}
	all := rec.All()
	if len(all) != 1 || all[0].Message != "Too Many Queued Items!" {
		t.Fatalf("unexpected notifications %+v", all)
	}
}

func TestEnqueueInvalidDraftResetsAndNotifies(t *testing.T) {
	store := input.NewStore()
	_ = store.Set("basic.source", input.YouTubeSource{VideoID: "dQw4w9WgXcQ"})
	_ = store.Set("basic.resolution", 999)
	sender := &senderStub{}
	rec := &notify.Recorder{}

	_, err := NewEnqueuer(sender, counterStub(0), store, nil, rec).Enqueue(context.Background())
	var invalid *input.ValidationError
	if !errors.As(err, &invalid) || invalid.Field != "resolution" {
		t.Fatalf("expected resolution ValidationError, got %v", err)
	}
	if len(sender.payloads) != 0 {
		t.Fatal("no request expected")
	}
	if _, ok := store.Get().Basic.Source.(input.NoSource); !ok {
		t.Fatalf("expected draft reset, got %T", store.Get().Basic.Source)
	}
	if len(rec.All()) != 1 || rec.Count(notify.LevelError) != 1 {
		t.Fatalf("expected one error notification, got %+v", rec.All())
	}
}

func TestEnqueueWithoutSource(t *testing.T) {
	sender := &senderStub{}
	rec := &notify.Recorder{}
	_, err := NewEnqueuer(sender, counterStub(0), input.NewStore(), nil, rec).Enqueue(context.Background())
	if !errors.Is(err, ErrNoSource) {
		t.Fatalf("expected ErrNoSource, got %v", err)
	}
	if len(sender.payloads) != 0 || len(rec.All()) != 0 {
		t.Fatal("expected no request and no notification")
	}
}

func TestEnqueueWaitsForTransfer(t *testing.T) {
	store := input.NewStore()
	src := completedUpload()
	src.Phase = input.PhasePendingTransfer
	_ = store.Set("basic.source", src)
	sender := &senderStub{}

	_, err := NewEnqueuer(sender, counterStub(0), store, nil, nil).Enqueue(context.Background())
	if !errors.Is(err, ErrTransferPending) {
		t.Fatalf("expected ErrTransferPending, got %v", err)
	}
	if len(sender.payloads) != 0 {
		t.Fatal("no request expected")
	}
	if _, ok := store.Get().Basic.Source.(input.UploadSource); !ok {
		t.Fatal("draft must be kept while the transfer runs")
	}
}

func TestEnqueueResetsOnSuccessAndFailure(t *testing.T) {
	for _, sendErr := range []error{nil, errors.New("backend down")} {
		store := input.NewStore()
		_ = store.Set("basic.source", input.TwitchSource{VideoID: "1234567890"})
		_ = store.Set("options.autoEdit", true)
		sender := &senderStub{err: sendErr}
		rec := &notify.Recorder{}

		ack, err := NewEnqueuer(sender, counterStub(2), store, nil, rec).Enqueue(context.Background())
		if !errors.Is(err, sendErr) {
			t.Fatalf("Enqueue() error = %v, want %v", err, sendErr)
		}
		if sendErr == nil && (ack.Platform != models.PlatformTwitch || ack.Title != "1234567890") {
			t.Fatalf("unexpected ack %+v", ack)
		}
		if len(sender.payloads) != 1 {
			t.Fatalf("expected exactly one request, got %d", len(sender.payloads))
		}
		draft := store.Get()
		if _, ok := draft.Basic.Source.(input.NoSource); !ok {
			t.Fatalf("expected draft reset after send (err=%v)", sendErr)
		}
		if !draft.Options.AutoEdit {
			t.Fatal("options survive a reset")
		}
		if rec.Count(notify.LevelPending) != 1 || rec.Count(notify.LevelSuccess)+rec.Count(notify.LevelError) != 1 {
			t.Fatalf("unexpected notifications %+v", rec.All())
		}
	}
}
