package media

import (
	"log/slog"
	"os/exec"
	"time"
)

// Capabilities reports which external media tools are usable. Splitting is a
// best-effort optimization, so the service runs with either tool missing;
// ingestion then degrades to single-part submission.
type Capabilities struct {
	HasFFprobe bool
	HasFFmpeg  bool
	ProbedAt   time.Time
}

// Doctor probes the host for the ffmpeg tooling the partitioner delegates to.
func Doctor(logger *slog.Logger) Capabilities {
	caps := Capabilities{ProbedAt: time.Now()}

	if _, err := exec.LookPath("ffprobe"); err == nil {
		caps.HasFFprobe = true
	}
	if _, err := exec.LookPath("ffmpeg"); err == nil {
		caps.HasFFmpeg = true
	}

	logger.Info("media tool probe complete",
		"ffprobe", caps.HasFFprobe,
		"ffmpeg", caps.HasFFmpeg,
	)

	return caps
}
