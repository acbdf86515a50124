package blob

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"time"
)

// Download fetches a remote video into destPath. The transfer is capped at
// maxBytes so a mislabeled URL cannot fill the disk, and progress is logged
// about once per 100 MiB.
func Download(ctx context.Context, url, destPath string, maxBytes int64, logger *slog.Logger) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("fetch video: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("fetch video: HTTP %d", resp.StatusCode)
	}
	if resp.ContentLength > 0 && resp.ContentLength > maxBytes {
		return fmt.Errorf("video is %d bytes, limit is %d", resp.ContentLength, maxBytes)
	}

	out, err := os.Create(destPath)
	if err != nil {
		return fmt.Errorf("create download target: %w", err)
	}

	pr := &progressReader{
		r:      io.LimitReader(resp.Body, maxBytes+1),
		logger: logger.With("url", url),
		start:  time.Now(),
	}
	written, err := io.Copy(out, pr)
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(destPath)
		return fmt.Errorf("download video: %w", err)
	}
	if written > maxBytes {
		os.Remove(destPath)
		return fmt.Errorf("video exceeds the %d byte limit", maxBytes)
	}

	logger.Info("video downloaded",
		"bytes", written,
		"duration_ms", time.Since(pr.start).Milliseconds(),
	)
	return nil
}

const progressLogStep = 100 << 20

type progressReader struct {
	r       io.Reader
	logger  *slog.Logger
	start   time.Time
	total   int64
	nextLog int64
}

func (p *progressReader) Read(buf []byte) (int, error) {
	n, err := p.r.Read(buf)
	p.total += int64(n)
	if p.total >= p.nextLog {
		if p.nextLog > 0 {
			p.logger.Info("download progress", "bytes", p.total)
		}
		p.nextLog += progressLogStep
	}
	return n, err
}
