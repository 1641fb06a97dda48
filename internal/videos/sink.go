package videos

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// ErrSinkUnavailable indicates no download destination is configured.
var ErrSinkUnavailable = errors.New("download sink unavailable")

// Sink persists downloaded video bytes and returns where they ended up.
type Sink interface {
	Save(ctx context.Context, name string, r io.Reader) (string, error)
}

// FileSink writes downloads into a local directory.
type FileSink struct {
	Dir string
}

// NewFileSink returns a sink writing into dir.
func NewFileSink(dir string) *FileSink {
	if dir == "" {
		dir = "."
	}
	return &FileSink{Dir: dir}
}

// Local reports that locations returned by Save are local file paths.
func (s *FileSink) Local() bool { return true }

// Save streams r into Dir/name through a temporary file.
func (s *FileSink) Save(ctx context.Context, name string, r io.Reader) (string, error) {
	if s == nil {
		return "", ErrSinkUnavailable
	}
	if err := os.MkdirAll(s.Dir, 0o755); err != nil {
		return "", fmt.Errorf("create download dir: %w", err)
	}

	tmp, err := os.CreateTemp(s.Dir, ".clipqueue-*.part")
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := io.Copy(tmp, contextReader{ctx: ctx, r: r}); err != nil {
		_ = tmp.Close()
		return "", fmt.Errorf("write %s: %w", name, err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("close %s: %w", name, err)
	}

	dest := filepath.Join(s.Dir, name)
	if err := os.Rename(tmp.Name(), dest); err != nil {
		return "", fmt.Errorf("move %s into place: %w", name, err)
	}
	return dest, nil
}

type contextReader struct {
	ctx context.Context
	r   io.Reader
}

func (c contextReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}
