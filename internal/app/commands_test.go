package app

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/clipqueue/client/internal/auth"
	"github.com/clipqueue/client/internal/input"
	"github.com/clipqueue/client/internal/models"
	"github.com/clipqueue/client/internal/queue"
)

type fakeBackend struct {
	mu       sync.Mutex
	videos   []models.VideoRecord
	enqueued []map[string]any
	deleted  []string
}

func newFakeBackend(t *testing.T) (*fakeBackend, *httptest.Server) {
	t.Helper()
	fb := &fakeBackend{}
	mux := http.NewServeMux()

	mux.HandleFunc("GET /public/account/v3/does_user_exist/{email}", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]bool{"does_user_exist": r.PathValue("email") == "ana@example.com"})
	})
	mux.HandleFunc("POST /api/collections/users/auth-with-password", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)
		if body["password"] != "s3cret!pass1" {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"message":"Failed to authenticate."}`))
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"token":  "tok-1",
			"record": map[string]any{"id": "u1", "email": "ana@example.com"},
		})
	})
	mux.HandleFunc("GET /api/collections/users/records/{id}", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "tok-1" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		fb.mu.Lock()
		list := append([]models.VideoRecord(nil), fb.videos...)
		fb.mu.Unlock()
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":      r.PathValue("id"),
			"email":   "ana@example.com",
			"credits": 12,
			"tier":    "premium",
			"expand":  map[string]any{"videos": list},
		})
	})
	mux.HandleFunc("POST /videos/v2/enqueue", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		fb.mu.Lock()
		fb.enqueued = append(fb.enqueued, body)
		fb.mu.Unlock()
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("DELETE /videos/v2/delete", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)
		fb.mu.Lock()
		fb.deleted = append(fb.deleted, body["video_id"])
		fb.mu.Unlock()
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("DELETE /videos/v2/upload", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return fb, srv
}

func setupEnv(t *testing.T, baseURL string) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("CLIPQUEUE_CONFIG", filepath.Join(dir, "missing.toml"))
	t.Setenv("CLIPQUEUE_API_URL", baseURL)
	t.Setenv("CLIPQUEUE_POCKETBASE_URL", baseURL)
	t.Setenv("CLIPQUEUE_SESSION_FILE", filepath.Join(dir, "session.json"))
	t.Setenv("CLIPQUEUE_DOWNLOAD_DIR", dir)
	t.Setenv("CLIPQUEUE_S3_BUCKET", "")
	t.Setenv("CLIPQUEUE_LOGOUT_GRACE", "1h")
	return dir
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root, cc := newRootCommand()
	defer cc.close()

	var out, errOut bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetIn(strings.NewReader(""))
	root.SetArgs(args)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := root.ExecuteContext(ctx)
	return out.String(), err
}

func login(t *testing.T) {
	t.Helper()
	if _, err := execute(t, "login", "ana@example.com", "--password", "s3cret!pass1"); err != nil {
		t.Fatalf("login error = %v", err)
	}
}

func TestCommandsRequireLogin(t *testing.T) {
	_, srv := newFakeBackend(t)
	setupEnv(t, srv.URL)

	for _, args := range [][]string{{"whoami"}, {"list"}, {"submit-url", "https://youtu.be/dQw4w9WgXcQ"}, {"clear-uploads"}} {
		if _, err := execute(t, args...); !errors.Is(err, auth.ErrNotAuthenticated) {
			t.Fatalf("%v: expected ErrNotAuthenticated, got %v", args, err)
		}
	}
}

func TestMissingConfigFails(t *testing.T) {
	setupEnv(t, "")
	if _, err := execute(t, "whoami"); err == nil {
		t.Fatal("expected configuration error")
	}
}

func TestLoginPersistsSessionAcrossRuns(t *testing.T) {
	fb, srv := newFakeBackend(t)
	setupEnv(t, srv.URL)
	fb.videos = []models.VideoRecord{
		{ID: "v1", Title: "Older", QueuedTime: 1_000, Progress: 100, Duration: 65, Resolution: 720},
		{ID: "v2", Title: "Newer", QueuedTime: 2_000, Progress: -1, ProcessingError: "bad codec", Resolution: 480},
	}

	out, err := execute(t, "login", "ana@example.com", "-p", "s3cret!pass1")
	if err != nil {
		t.Fatalf("login error = %v", err)
	}
	if !strings.Contains(out, "Signed in as ana@example.com") {
		t.Fatalf("unexpected login output: %q", out)
	}

	out, err = execute(t, "list")
	if err != nil {
		t.Fatalf("list error = %v", err)
	}
	if strings.Index(out, "Newer") > strings.Index(out, "Older") {
		t.Fatalf("expected newest first:\n%s", out)
	}
	if !strings.Contains(out, "failed: bad codec") || !strings.Contains(out, "1m:05s") {
		t.Fatalf("unexpected list output:\n%s", out)
	}

	out, err = execute(t, "whoami")
	if err != nil {
		t.Fatalf("whoami error = %v", err)
	}
	if !strings.Contains(out, "premium") || !strings.Contains(out, "12") {
		t.Fatalf("unexpected whoami output:\n%s", out)
	}

	if _, err := execute(t, "logout"); err != nil {
		t.Fatalf("logout error = %v", err)
	}
	if _, err := execute(t, "list"); !errors.Is(err, auth.ErrNotAuthenticated) {
		t.Fatalf("expected session to be gone, got %v", err)
	}
}

func TestLoginUnknownAccount(t *testing.T) {
	_, srv := newFakeBackend(t)
	setupEnv(t, srv.URL)

	_, err := execute(t, "login", "nobody@example.com", "-p", "s3cret!pass1")
	if err == nil || !strings.Contains(err.Error(), "signup") {
		t.Fatalf("expected signup hint, got %v", err)
	}
}

func TestSubmitURLEnqueues(t *testing.T) {
	fb, srv := newFakeBackend(t)
	setupEnv(t, srv.URL)
	login(t)

	out, err := execute(t, "submit-url", "https://www.youtube.com/watch?v=dQw4w9WgXcQ", "--resolution", "1080", "--ai-content", "--start", "10", "--end", "100")
	if err != nil {
		t.Fatalf("submit-url error = %v", err)
	}
	if !strings.Contains(out, "Queued dQw4w9WgXcQ") {
		t.Fatalf("unexpected output: %q", out)
	}

	fb.mu.Lock()
	defer fb.mu.Unlock()
	if len(fb.enqueued) != 1 {
		t.Fatalf("expected one enqueue request, got %d", len(fb.enqueued))
	}
	body := fb.enqueued[0]
	if body["video_platform"] != "youtube" || body["platform_video_id"] != "dQw4w9WgXcQ" {
		t.Fatalf("unexpected payload: %v", body)
	}
	if body["video_resolution"] != float64(1080) || body["generate_ai_content"] != true {
		t.Fatalf("unexpected options: %v", body)
	}
	if body["video_start_time"] != float64(10) || body["video_end_time"] != float64(100) {
		t.Fatalf("unexpected range: %v", body)
	}
	if body["profanity_filter_strength"] != queue.ProfanityFilterStrength {
		t.Fatalf("missing fixed fields: %v", body)
	}
}

func TestSubmitURLRefusedWhenTooManyQueued(t *testing.T) {
	fb, srv := newFakeBackend(t)
	setupEnv(t, srv.URL)
	fb.videos = []models.VideoRecord{
		{ID: "a", Progress: 0}, {ID: "b", Progress: 10}, {ID: "c", Progress: 99},
	}
	login(t)

	_, err := execute(t, "submit-url", "https://www.twitch.tv/videos/1234567890")
	if !errors.Is(err, queue.ErrTooManyQueued) {
		t.Fatalf("expected ErrTooManyQueued, got %v", err)
	}
	fb.mu.Lock()
	defer fb.mu.Unlock()
	if len(fb.enqueued) != 0 {
		t.Fatalf("expected no enqueue request, got %d", len(fb.enqueued))
	}
}

func TestSubmitURLRejectsUnknownLinks(t *testing.T) {
	_, srv := newFakeBackend(t)
	setupEnv(t, srv.URL)
	login(t)

	_, err := execute(t, "submit-url", "https://vimeo.com/123")
	var verr *input.ValidationError
	if !errors.As(err, &verr) || verr.Field != "url" {
		t.Fatalf("expected url validation error, got %v", err)
	}
}

func TestDeleteDelegatesAndKeepsList(t *testing.T) {
	fb, srv := newFakeBackend(t)
	setupEnv(t, srv.URL)
	fb.videos = []models.VideoRecord{{ID: "v1", Title: "Clip", Progress: 100}}
	login(t)

	out, err := execute(t, "delete", "v1")
	if err != nil {
		t.Fatalf("delete error = %v", err)
	}
	if !strings.Contains(out, "Delete requested") {
		t.Fatalf("unexpected output: %q", out)
	}
	fb.mu.Lock()
	deleted := append([]string(nil), fb.deleted...)
	fb.mu.Unlock()
	if len(deleted) != 1 || deleted[0] != "v1" {
		t.Fatalf("unexpected delete requests: %v", deleted)
	}

	if _, err := execute(t, "delete", "missing"); !errors.Is(err, errVideoNotFound) {
		t.Fatalf("expected errVideoNotFound, got %v", err)
	}
}

func TestDownloadRequiresCompleteVideo(t *testing.T) {
	fb, srv := newFakeBackend(t)
	setupEnv(t, srv.URL)
	fb.videos = []models.VideoRecord{{ID: "v1", Title: "Clip", Progress: 40}}
	login(t)

	_, err := execute(t, "download", "v1")
	if err == nil || !strings.Contains(err.Error(), "processing") {
		t.Fatalf("expected processing error, got %v", err)
	}
}

func TestDescribeState(t *testing.T) {
	now := time.UnixMilli(10 * 60 * 1000)
	cases := []struct {
		video models.VideoRecord
		want  string
	}{
		{models.VideoRecord{Progress: 0}, "queued"},
		{models.VideoRecord{Progress: 100}, "complete"},
		{models.VideoRecord{Progress: -1}, "failed"},
		{models.VideoRecord{Progress: 50}, "processing"},
		{models.VideoRecord{Progress: 50, ProcessingStartTime: 1, Duration: 10}, "processing, ~1 min left"},
	}
	for _, tc := range cases {
		if got := describeState(tc.video, now); got != tc.want {
			t.Fatalf("describeState(%+v) = %q, want %q", tc.video, got, tc.want)
		}
	}
}

func TestRenderTablePadsRows(t *testing.T) {
	out := renderTable([]string{"A", "B"}, [][]string{{"only"}}, []columnAlignment{alignLeft, alignRight})
	if !strings.Contains(out, "only") || !strings.Contains(out, "A") {
		t.Fatalf("unexpected table:\n%s", out)
	}
	if renderTable(nil, nil, nil) != "" {
		t.Fatal("expected empty table for no headers")
	}
}

func TestRenderAIContent(t *testing.T) {
	out := renderAIContent(models.AIContent{
		Title:       "Best Plays",
		Description: "A montage",
		Tags:        []string{"games", "clips"},
		Timestamps:  []models.AITimestamp{{Timestamp: "00:00", Title: "Intro"}},
	})
	for _, want := range []string{"Title: Best Plays", "A montage", "games, clips", "Intro"} {
		if !strings.Contains(out, want) {
			t.Fatalf("missing %q in:\n%s", want, out)
		}
	}
}
