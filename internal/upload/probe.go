package upload

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"
)

// ErrProberUnavailable indicates no duration prober was configured.
var ErrProberUnavailable = errors.New("duration prober unavailable")

// CommandRunner executes external commands and returns stdout bytes.
type CommandRunner func(ctx context.Context, binary string, args ...string) ([]byte, error)

// FFProbe measures media duration with the ffprobe CLI tool.
type FFProbe struct {
	Binary  string
	Args    []string
	Run     CommandRunner
	Timeout time.Duration
}

// NewFFProbe constructs a prober that shells out to ffprobe.
func NewFFProbe(binary string, timeout time.Duration) *FFProbe {
	if strings.TrimSpace(binary) == "" {
		binary = "ffprobe"
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &FFProbe{
		Binary:  binary,
		Args:    []string{"-v", "error", "-hide_banner", "-show_format", "-of", "json", "--"},
		Run:     defaultCommandRunner,
		Timeout: timeout,
	}
}

// Duration returns the container duration of the file at path in seconds.
func (p *FFProbe) Duration(ctx context.Context, path string) (float64, error) {
	if p == nil {
		return 0, ErrProberUnavailable
	}
	if p.Run == nil {
		p.Run = defaultCommandRunner
	}

	execCtx, cancel := context.WithTimeout(ctx, p.Timeout)
	defer cancel()

	args := append([]string{}, p.Args...)
	args = append(args, path)

	out, err := p.Run(execCtx, p.Binary, args...)
	if err != nil {
		return 0, fmt.Errorf("ffprobe: %w", err)
	}

	var payload struct {
		Format struct {
			Duration string `json:"duration"`
		} `json:"format"`
	}
	if err := json.Unmarshal(out, &payload); err != nil {
		return 0, fmt.Errorf("parse ffprobe response: %w", err)
	}

	seconds, err := strconv.ParseFloat(strings.TrimSpace(payload.Format.Duration), 64)
	if err != nil || seconds <= 0 {
		return 0, fmt.Errorf("ffprobe reported no duration for %s", path)
	}
	return seconds, nil
}

func defaultCommandRunner(ctx context.Context, binary string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, binary, args...)
	return cmd.Output()
}
