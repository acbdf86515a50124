package media

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

type fakeProber struct {
	duration float64
	err      error
}

func (f *fakeProber) Duration(ctx context.Context, path string) (float64, error) {
	return f.duration, f.err
}

type fakeSplitter struct {
	parts int
	err   error
	calls int
}

func (f *fakeSplitter) Split(ctx context.Context, src, destDir string, segmentSec int) ([]string, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	paths := make([]string, f.parts)
	for i := range paths {
		path := filepath.Join(destDir, fmt.Sprintf("part_%03d.mp4", i))
		if err := os.WriteFile(path, []byte("part"), 0644); err != nil {
			return nil, err
		}
		paths[i] = path
	}
	return paths, nil
}

func writeTestSource(t *testing.T, size int) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "source.mp4")
	if err := os.WriteFile(path, make([]byte, size), 0644); err != nil {
		t.Fatalf("failed to write test source: %v", err)
	}
	return path
}

func TestPartition_WithinLimits_SinglePart(t *testing.T) {
	src := writeTestSource(t, 100)
	p := NewPartitioner(&fakeProber{duration: 120}, &fakeSplitter{parts: 3}, 7200, 1<<30, 3600, testLogger())

	parts, err := p.Partition(context.Background(), src, t.TempDir())
	if err != nil {
		t.Fatalf("Partition() error = %v", err)
	}

	if len(parts) != 1 {
		t.Fatalf("parts = %d, want 1", len(parts))
	}
	if parts[0].Path != src {
		t.Errorf("part path = %s, want source path", parts[0].Path)
	}
	if parts[0].DurationSec != 120 {
		t.Errorf("part duration = %v, want 120", parts[0].DurationSec)
	}
}

func TestPartition_OverDuration_Splits(t *testing.T) {
	src := writeTestSource(t, 100)
	splitter := &fakeSplitter{parts: 3}
	p := NewPartitioner(&fakeProber{duration: 9000}, splitter, 7200, 1<<30, 3600, testLogger())

	parts, err := p.Partition(context.Background(), src, t.TempDir())
	if err != nil {
		t.Fatalf("Partition() error = %v", err)
	}

	if splitter.calls != 1 {
		t.Errorf("splitter calls = %d, want 1", splitter.calls)
	}
	if len(parts) != 3 {
		t.Fatalf("parts = %d, want 3", len(parts))
	}
	for i, part := range parts {
		if part.Index != i {
			t.Errorf("part[%d].Index = %d", i, part.Index)
		}
	}
}

func TestPartition_OverSize_Splits(t *testing.T) {
	src := writeTestSource(t, 2048)
	p := NewPartitioner(&fakeProber{duration: 60}, &fakeSplitter{parts: 2}, 7200, 1024, 3600, testLogger())

	parts, err := p.Partition(context.Background(), src, t.TempDir())
	if err != nil {
		t.Fatalf("Partition() error = %v", err)
	}
	if len(parts) != 2 {
		t.Errorf("parts = %d, want 2", len(parts))
	}
}

func TestPartition_SplitFails_FallsBackToWhole(t *testing.T) {
	src := writeTestSource(t, 100)
	p := NewPartitioner(&fakeProber{duration: 9000}, &fakeSplitter{err: errors.New("segment muxer exploded")}, 7200, 1<<30, 3600, testLogger())

	parts, err := p.Partition(context.Background(), src, t.TempDir())
	if err != nil {
		t.Fatalf("Partition() error = %v", err)
	}
	if len(parts) != 1 || parts[0].Path != src {
		t.Errorf("expected single whole-source part fallback, got %+v", parts)
	}
}

func TestPartition_ProbeFails_UsesSizeOnly(t *testing.T) {
	src := writeTestSource(t, 100)
	p := NewPartitioner(&fakeProber{err: errors.New("ffprobe missing")}, &fakeSplitter{parts: 2}, 7200, 1<<30, 3600, testLogger())

	parts, err := p.Partition(context.Background(), src, t.TempDir())
	if err != nil {
		t.Fatalf("Partition() error = %v", err)
	}
	// Unknown duration + size within limit: whole source as one part.
	if len(parts) != 1 {
		t.Errorf("parts = %d, want 1", len(parts))
	}
}

func TestPartition_MissingSource(t *testing.T) {
	p := NewPartitioner(&fakeProber{}, nil, 7200, 1<<30, 3600, testLogger())

	if _, err := p.Partition(context.Background(), "/nonexistent/video.mp4", t.TempDir()); err == nil {
		t.Error("Partition() should fail for missing source")
	}
}
