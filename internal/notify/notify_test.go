package notify

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
)

func TestTrackSuccess(t *testing.T) {
	rec := &Recorder{}
	err := Track(context.Background(), rec, Messages{Pending: "working", Success: "done", Error: "failed"}, func(context.Context) error {
		return nil
	})
	if err != nil {
		t.Fatalf("Track() error = %v", err)
	}
	got := rec.All()
	if len(got) != 2 || got[0].Level != LevelPending || got[1].Level != LevelSuccess {
		t.Fatalf("unexpected notifications: %+v", got)
	}
}

func TestTrackError(t *testing.T) {
	rec := &Recorder{}
	boom := errors.New("boom")
	err := Track(context.Background(), rec, Messages{Pending: "working", Success: "done", Error: "failed"}, func(context.Context) error {
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
	if rec.Count(LevelError) != 1 || rec.Count(LevelSuccess) != 0 || rec.Count(LevelPending) != 1 {
		t.Fatalf("unexpected notifications: %+v", rec.All())
	}
}

func TestConsoleWritesPrefixedLines(t *testing.T) {
	var buf bytes.Buffer
	c := NewConsole(&buf)
	c.Notify(context.Background(), Notification{Level: LevelError, Message: "Error Downloading"})
	if !strings.Contains(buf.String(), "Error Downloading") {
		t.Fatalf("unexpected output: %q", buf.String())
	}
}
