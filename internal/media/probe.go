// Package media wraps the external ffmpeg/ffprobe tooling used to probe and
// split source videos before they are submitted for embedding extraction.
package media

import (
	"context"
	"log/slog"
	"strconv"
	"strings"
	"time"
)

// Prober reports metadata about a media file.
type Prober interface {
	// Duration returns the media duration in seconds. An error means the
	// duration is unknown; callers treat unknown as zero.
	Duration(ctx context.Context, path string) (float64, error)
}

// FFprobe is the production Prober backed by the ffprobe binary.
type FFprobe struct {
	bin     string
	timeout time.Duration
	logger  *slog.Logger
}

// NewFFprobe resolves the ffprobe binary. An empty preferred path means
// auto-detect on PATH.
func NewFFprobe(preferred string, logger *slog.Logger) (*FFprobe, error) {
	bin, err := resolveBinary(preferred, "ffprobe")
	if err != nil {
		return nil, err
	}
	return &FFprobe{bin: bin, timeout: 30 * time.Second, logger: logger}, nil
}

func (f *FFprobe) Duration(ctx context.Context, path string) (float64, error) {
	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	out, err := runTool(ctx, f.bin,
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		path,
	)
	if err != nil {
		f.logger.Warn("ffprobe failed", "path", path, "error", err)
		return 0, err
	}

	sec, err := strconv.ParseFloat(strings.TrimSpace(out), 64)
	if err != nil {
		return 0, err
	}
	return sec, nil
}
