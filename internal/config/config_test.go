package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("CLIPQUEUE_CONFIG", "")
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.toml"))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.FFProbePath != "ffprobe" {
		t.Fatalf("unexpected ffprobe path: %q", cfg.FFProbePath)
	}
	if cfg.Timeout() != 60*time.Second {
		t.Fatalf("unexpected request timeout: %v", cfg.Timeout())
	}
	if err := cfg.Validate(); !errors.Is(err, ErrMissingAPIURL) || !errors.Is(err, ErrMissingPocketBaseURL) {
		t.Fatalf("expected missing url errors, got %v", err)
	}
}

func TestLoadFileAndEnvOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "clipqueue.toml")
	contents := `
api_url = "https://api.example.com/"
pocketbase_url = "https://pb.example.com"
probe_timeout = "5s"
requests_per_second = 2

[object_store]
bucket = "clips"
`
	if err := os.WriteFile(path, []byte(contents), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	t.Setenv("CLIPQUEUE_POCKETBASE_URL", "https://override.example.com/")
	t.Setenv("CLIPQUEUE_REQUEST_TIMEOUT", "2s")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.APIURL != "https://api.example.com" {
		t.Fatalf("expected trailing slash stripped, got %q", cfg.APIURL)
	}
	if cfg.PocketBaseURL != "https://override.example.com" {
		t.Fatalf("expected env override, got %q", cfg.PocketBaseURL)
	}
	if cfg.Probe() != 5*time.Second {
		t.Fatalf("unexpected probe timeout: %v", cfg.Probe())
	}
	if cfg.Timeout() != 2*time.Second {
		t.Fatalf("unexpected request timeout: %v", cfg.Timeout())
	}
	if cfg.RequestsPerSecond != 2 {
		t.Fatalf("unexpected rate: %d", cfg.RequestsPerSecond)
	}
	if !cfg.ObjectStore.Enabled() || cfg.ObjectStore.Region != "us-east-1" {
		t.Fatalf("unexpected object store: %+v", cfg.ObjectStore)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
}

func TestLoadInvalidFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broken.toml")
	if err := os.WriteFile(path, []byte("api_url = "), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestGetIntFallback(t *testing.T) {
	t.Setenv("CLIPQUEUE_TEST_INT", "nope")
	if got := getInt("CLIPQUEUE_TEST_INT", 7); got != 7 {
		t.Fatalf("expected fallback, got %d", got)
	}
}
