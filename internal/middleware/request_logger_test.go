package middleware

import (
	"bytes"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/clipqueue/client/internal/logging"
)

func TestRequestLoggerAttachesRequestID(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	var traceID string
	handler := RequestLogger(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		traceID = logging.TraceIDFromContext(r.Context())
		w.WriteHeader(http.StatusPartialContent)
		_, _ = w.Write([]byte("abc"))
	}))

	req := httptest.NewRequest(http.MethodGet, "/blob/123", nil)
	req.Header.Set("Range", "bytes=0-2")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if traceID == "" {
		t.Fatal("expected request id on context")
	}
	out := buf.String()
	for _, want := range []string{`"request_id":"` + traceID + `"`, `"status":206`, `"bytes":3`, `"range":"bytes=0-2"`} {
		if !strings.Contains(out, want) {
			t.Fatalf("log output missing %s: %s", want, out)
		}
	}
}

func TestRequestLoggerRecoversPanics(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
	handler := RequestLogger(logger)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
}
