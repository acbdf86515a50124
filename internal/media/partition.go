package media

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"time"
)

// Part is one contiguous time slice of a source video. Parts are ordered by
// Index, non-overlapping, and expressed on the source's own timeline.
// DurationSec is filled in lazily by callers that probe parts; zero means
// not yet probed or unknown.
type Part struct {
	Index       int
	Path        string
	DurationSec float64
}

// Splitter cuts a source into time-bounded parts.
type Splitter interface {
	Split(ctx context.Context, src, destDir string, segmentSec int) ([]string, error)
}

// FFmpegSplitter is the production Splitter backed by the ffmpeg segment
// muxer. Streams are copied, not re-encoded.
type FFmpegSplitter struct {
	bin     string
	timeout time.Duration
	logger  *slog.Logger
}

func NewFFmpegSplitter(preferred string, logger *slog.Logger) (*FFmpegSplitter, error) {
	bin, err := resolveBinary(preferred, "ffmpeg")
	if err != nil {
		return nil, err
	}
	return &FFmpegSplitter{bin: bin, timeout: 10 * time.Minute, logger: logger}, nil
}

func (f *FFmpegSplitter) Split(ctx context.Context, src, destDir string, segmentSec int) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	pattern := filepath.Join(destDir, "part_%03d.mp4")
	start := time.Now()

	_, err := runTool(ctx, f.bin,
		"-y",
		"-i", src,
		"-c", "copy",
		"-f", "segment",
		"-reset_timestamps", "1",
		"-segment_time", fmt.Sprintf("%d", segmentSec),
		pattern,
	)
	if err != nil {
		return nil, err
	}

	// The segment muxer numbers parts, so lexicographic order is
	// chronological order.
	matches, err := filepath.Glob(filepath.Join(destDir, "part_*.mp4"))
	if err != nil {
		return nil, err
	}
	sort.Strings(matches)

	f.logger.Info("source split into parts",
		"parts", len(matches),
		"segment_sec", segmentSec,
		"duration_ms", time.Since(start).Milliseconds(),
	)

	return matches, nil
}

// Partitioner decides whether a source fits within the embedding service's
// per-upload limits and splits it when it does not.
type Partitioner struct {
	prober         Prober
	splitter       Splitter
	maxDurationSec float64
	maxSizeBytes   int64
	segmentSec     int
	logger         *slog.Logger
}

func NewPartitioner(prober Prober, splitter Splitter, maxDurationSec float64, maxSizeBytes int64, segmentSec int, logger *slog.Logger) *Partitioner {
	return &Partitioner{
		prober:         prober,
		splitter:       splitter,
		maxDurationSec: maxDurationSec,
		maxSizeBytes:   maxSizeBytes,
		segmentSec:     segmentSec,
		logger:         logger,
	}
}

// Partition returns the parts to submit for a source. Sources within the
// limits come back as a single part equal to the whole source. Splitting is
// best effort: any splitter or probe failure falls back to the whole source
// rather than failing the ingestion.
//
// Split parts are written under scratchDir; the caller owns its cleanup.
func (p *Partitioner) Partition(ctx context.Context, src, scratchDir string) ([]Part, error) {
	info, err := os.Stat(src)
	if err != nil {
		return nil, fmt.Errorf("stat source: %w", err)
	}
	sizeBytes := info.Size()

	duration := 0.0
	if p.prober != nil {
		if d, err := p.prober.Duration(ctx, src); err == nil {
			duration = d
		}
	}

	needsSplit := (duration > 0 && duration > p.maxDurationSec) || sizeBytes > p.maxSizeBytes
	if !needsSplit {
		return []Part{{Index: 0, Path: src, DurationSec: duration}}, nil
	}

	if p.splitter == nil {
		p.logger.Warn("source exceeds limits but no splitter is available, submitting whole",
			"duration_sec", duration, "size_bytes", sizeBytes)
		return []Part{{Index: 0, Path: src, DurationSec: duration}}, nil
	}

	if err := os.MkdirAll(scratchDir, 0755); err != nil {
		return nil, fmt.Errorf("create scratch dir: %w", err)
	}

	paths, err := p.splitter.Split(ctx, src, scratchDir, p.segmentSec)
	if err != nil || len(paths) == 0 {
		p.logger.Warn("split failed, falling back to whole source", "error", err)
		return []Part{{Index: 0, Path: src, DurationSec: duration}}, nil
	}

	parts := make([]Part, len(paths))
	for i, path := range paths {
		parts[i] = Part{Index: i, Path: path}
	}
	return parts, nil
}
