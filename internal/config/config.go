package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

// Config captures the runtime configuration for the clipqueue client.
type Config struct {
	APIURL            string            `toml:"api_url"`
	PocketBaseURL     string            `toml:"pocketbase_url"`
	FrontpageURL      string            `toml:"frontpage_url"`
	SessionFile       string            `toml:"session_file"`
	DownloadDir       string            `toml:"download_dir"`
	LogLevel          string            `toml:"log_level"`
	FFProbePath       string            `toml:"ffprobe_path"`
	ProbeTimeout      duration          `toml:"probe_timeout"`
	RequestTimeout    duration          `toml:"request_timeout"`
	RequestsPerSecond int               `toml:"requests_per_second"`
	RequestBurst      int               `toml:"request_burst"`
	LogoutGrace       duration          `toml:"logout_grace"`
	PreviewPort       int               `toml:"preview_port"`
	ObjectStore       ObjectStoreConfig `toml:"object_store"`
}

// ObjectStoreConfig configures the optional S3-compatible download sink.
type ObjectStoreConfig struct {
	Bucket        string `toml:"bucket"`
	Region        string `toml:"region"`
	Endpoint      string `toml:"endpoint"`
	PublicBaseURL string `toml:"public_base_url"`
}

// Enabled reports whether downloads should be mirrored to object storage.
func (o ObjectStoreConfig) Enabled() bool {
	return strings.TrimSpace(o.Bucket) != ""
}

// duration lets TOML files use Go duration strings ("30s", "1m").
type duration struct {
	time.Duration
}

func (d *duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(strings.TrimSpace(string(text)))
	if err != nil {
		return fmt.Errorf("parse duration %q: %w", string(text), err)
	}
	d.Duration = parsed
	return nil
}

func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

var (
	// ErrMissingAPIURL indicates no backend API base URL was configured.
	ErrMissingAPIURL = errors.New("config: api_url is required")
	// ErrMissingPocketBaseURL indicates no realtime store URL was configured.
	ErrMissingPocketBaseURL = errors.New("config: pocketbase_url is required")
)

// Default returns the built-in configuration used before files and env vars apply.
func Default() Config {
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		home = "."
	}
	return Config{
		SessionFile:       filepath.Join(home, ".config", "clipqueue", "session.json"),
		DownloadDir:       ".",
		LogLevel:          "info",
		FFProbePath:       "ffprobe",
		ProbeTimeout:      duration{30 * time.Second},
		RequestTimeout:    duration{60 * time.Second},
		RequestsPerSecond: 5,
		RequestBurst:      5,
		LogoutGrace:       duration{time.Millisecond},
		PreviewPort:       8765,
		ObjectStore:       ObjectStoreConfig{Region: "us-east-1"},
	}
}

// Load builds the configuration from defaults, an optional TOML file and
// CLIPQUEUE_* environment variables, in that order of precedence.
func Load(path string) (Config, error) {
	cfg := Default()

	if path == "" {
		path = os.Getenv("CLIPQUEUE_CONFIG")
	}
	if strings.TrimSpace(path) != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := toml.Unmarshal(data, &cfg); err != nil {
				return Config{}, fmt.Errorf("parse config %s: %w", path, err)
			}
		case errors.Is(err, fs.ErrNotExist):
		default:
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	cfg.APIURL = getString("CLIPQUEUE_API_URL", cfg.APIURL)
	cfg.PocketBaseURL = getString("CLIPQUEUE_POCKETBASE_URL", cfg.PocketBaseURL)
	cfg.FrontpageURL = getString("CLIPQUEUE_FRONTPAGE_URL", cfg.FrontpageURL)
	cfg.SessionFile = getString("CLIPQUEUE_SESSION_FILE", cfg.SessionFile)
	cfg.DownloadDir = getString("CLIPQUEUE_DOWNLOAD_DIR", cfg.DownloadDir)
	cfg.LogLevel = getString("CLIPQUEUE_LOG_LEVEL", cfg.LogLevel)
	cfg.FFProbePath = getString("CLIPQUEUE_FFPROBE_PATH", cfg.FFProbePath)
	cfg.ProbeTimeout.Duration = getDuration("CLIPQUEUE_PROBE_TIMEOUT", cfg.ProbeTimeout.Duration)
	cfg.RequestTimeout.Duration = getDuration("CLIPQUEUE_REQUEST_TIMEOUT", cfg.RequestTimeout.Duration)
	cfg.RequestsPerSecond = getInt("CLIPQUEUE_REQUESTS_PER_SECOND", cfg.RequestsPerSecond)
	cfg.RequestBurst = getInt("CLIPQUEUE_REQUEST_BURST", cfg.RequestBurst)
	cfg.LogoutGrace.Duration = getDuration("CLIPQUEUE_LOGOUT_GRACE", cfg.LogoutGrace.Duration)
	cfg.PreviewPort = getInt("CLIPQUEUE_PREVIEW_PORT", cfg.PreviewPort)
	cfg.ObjectStore.Bucket = getString("CLIPQUEUE_S3_BUCKET", cfg.ObjectStore.Bucket)
	cfg.ObjectStore.Region = getString("CLIPQUEUE_S3_REGION", cfg.ObjectStore.Region)
	cfg.ObjectStore.Endpoint = getString("CLIPQUEUE_S3_ENDPOINT", cfg.ObjectStore.Endpoint)
	cfg.ObjectStore.PublicBaseURL = getString("CLIPQUEUE_S3_PUBLIC_BASE_URL", cfg.ObjectStore.PublicBaseURL)

	cfg.APIURL = strings.TrimSuffix(strings.TrimSpace(cfg.APIURL), "/")
	cfg.PocketBaseURL = strings.TrimSuffix(strings.TrimSpace(cfg.PocketBaseURL), "/")
	cfg.FrontpageURL = strings.TrimSuffix(strings.TrimSpace(cfg.FrontpageURL), "/")

	return cfg, nil
}

// Validate reports configuration problems that would prevent talking to the backend.
func (c Config) Validate() error {
	var errs []error
	if c.APIURL == "" {
		errs = append(errs, ErrMissingAPIURL)
	}
	if c.PocketBaseURL == "" {
		errs = append(errs, ErrMissingPocketBaseURL)
	}
	return errors.Join(errs...)
}

// Timeout returns the configured per-request timeout.
func (c Config) Timeout() time.Duration {
	return c.RequestTimeout.Duration
}

// Probe returns the configured duration probe timeout.
func (c Config) Probe() time.Duration {
	return c.ProbeTimeout.Duration
}

// Grace returns the delay before a forced logout.
func (c Config) Grace() time.Duration {
	return c.LogoutGrace.Duration
}

func getString(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getInt(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	i, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return i
}

func getDuration(key string, fallback time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return d
}
