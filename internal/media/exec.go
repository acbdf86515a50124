package media

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os/exec"
)

const (
	maxStderrBytes = 8 * 1024 // 8 KB tail of stderr kept for diagnostics
)

// runTool executes an external media tool and returns its stdout.
// Stderr is captured with a bounded buffer so a noisy ffmpeg run cannot
// exhaust memory; only the tail survives for diagnostics.
func runTool(ctx context.Context, bin string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, bin, args...)

	var stdout bytes.Buffer
	var stderrBuf bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = io.Writer(&limitedWriter{w: &stderrBuf, limit: maxStderrBytes})

	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("%s %v: %w: %s", bin, args, err, truncate(stderrBuf.String(), 512))
	}

	return stdout.String(), nil
}

// resolveBinary finds a usable tool binary on PATH.
func resolveBinary(preferred, fallback string) (string, error) {
	if preferred != "" {
		if p, err := exec.LookPath(preferred); err == nil {
			return p, nil
		}
		return "", fmt.Errorf("configured binary %q not found", preferred)
	}
	if p, err := exec.LookPath(fallback); err == nil {
		return p, nil
	}
	return "", fmt.Errorf("no %s binary found on PATH", fallback)
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return "..." + s[len(s)-maxLen:]
}

// limitedWriter is an io.Writer that keeps only the last `limit` bytes.
type limitedWriter struct {
	w     *bytes.Buffer
	limit int
}

func (lw *limitedWriter) Write(p []byte) (int, error) {
	n := len(p)
	lw.w.Write(p)
	if lw.w.Len() > lw.limit {
		// Keep only the tail
		b := lw.w.Bytes()
		lw.w.Reset()
		lw.w.Write(b[len(b)-lw.limit:])
	}
	return n, nil
}
