package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"time"

	"github.com/sage-video/sage-backend/internal/embed"
	"github.com/sage-video/sage-backend/internal/media"
)

// Orchestrator runs one ingestion end to end: partition the source, create
// one remote embedding task per part, poll every open task until all are
// terminal, and stitch the per-part segments onto the whole-source timeline.
type Orchestrator struct {
	client      embed.Client
	prober      media.Prober
	partitioner *media.Partitioner
	store       *Store
	logger      *slog.Logger

	pollInterval     time.Duration
	pollTimeout      time.Duration
	clipLengthSec    int
	coverageFraction float64
	longVideoSec     float64
}

type OrchestratorConfig struct {
	Client           embed.Client
	Prober           media.Prober
	Partitioner      *media.Partitioner
	Store            *Store
	Logger           *slog.Logger
	PollInterval     time.Duration
	PollTimeout      time.Duration // zero disables the timeout
	ClipLengthSec    int
	CoverageFraction float64
	LongVideoSec     float64
}

func NewOrchestrator(cfg OrchestratorConfig) *Orchestrator {
	return &Orchestrator{
		client:           cfg.Client,
		prober:           cfg.Prober,
		partitioner:      cfg.Partitioner,
		store:            cfg.Store,
		logger:           cfg.Logger,
		pollInterval:     cfg.PollInterval,
		pollTimeout:      cfg.PollTimeout,
		clipLengthSec:    cfg.ClipLengthSec,
		coverageFraction: cfg.CoverageFraction,
		longVideoSec:     cfg.LongVideoSec,
	}
}

// task tracks one remote embedding task until its terminal state has been
// folded into the aggregate.
type task struct {
	id        string
	partIndex int
	done      bool
}

// Run executes the ingestion for one record. It never returns an error to
// the queue: every outcome is recorded as a status transition on the record.
// Scratch files are removed on every exit path.
func (o *Orchestrator) Run(ctx context.Context, id, sourcePath, scratchDir string) {
	logger := o.logger.With("embedding_id", id)

	defer func() {
		if err := os.RemoveAll(scratchDir); err != nil {
			logger.Warn("failed to remove scratch dir", "error", err)
		}
	}()

	parts, err := o.partitioner.Partition(ctx, sourcePath, scratchDir)
	if err != nil {
		o.fail(id, logger, fmt.Errorf("partition source: %w", err))
		return
	}

	o.store.SetProcessing(id, len(parts))
	logger.Info("ingestion started", "parts", len(parts))

	tasks := make([]*task, 0, len(parts))
	for _, part := range parts {
		taskID, err := o.client.CreateTask(ctx, part.Path)
		if err != nil {
			o.fail(id, logger, &SubmissionError{PartIndex: part.Index, Err: err})
			return
		}
		tasks = append(tasks, &task{id: taskID, partIndex: part.Index})
	}

	segments, totalDuration, err := o.poll(ctx, logger, id, parts, tasks)
	if err != nil {
		if ctx.Err() != nil {
			// Cancellation preempts the orchestrator; the transition is a
			// no-op when the record was already marked cancelled.
			o.store.SetCancelled(id, "ingestion cancelled")
			logger.Info("ingestion cancelled")
			return
		}
		o.fail(id, logger, err)
		return
	}

	if err := o.validate(ctx, sourcePath, segments); err != nil {
		o.fail(id, logger, err)
		return
	}

	o.store.SetCompleted(id, segments, totalDuration)
	logger.Info("ingestion completed",
		"segments", len(segments),
		"duration_sec", totalDuration,
	)
}

// poll checks every open task once per interval until all are terminal.
// A ready task's segments are re-expressed on the global timeline by adding
// the summed durations of all lower-indexed parts. Any failed task aborts
// the whole ingestion immediately.
func (o *Orchestrator) poll(ctx context.Context, logger *slog.Logger, id string, parts []media.Part, tasks []*task) ([]embed.Segment, float64, error) {
	durations := newPartDurations(parts, o.prober)

	var deadline <-chan time.Time
	if o.pollTimeout > 0 {
		timer := time.NewTimer(o.pollTimeout)
		defer timer.Stop()
		deadline = timer.C
	}

	ticker := time.NewTicker(o.pollInterval)
	defer ticker.Stop()

	var segments []embed.Segment
	var totalDuration float64

	for {
		open := 0
		for _, t := range tasks {
			if t.done {
				continue
			}

			status, err := o.client.GetTask(ctx, t.id)
			if err != nil {
				if ctx.Err() != nil {
					return nil, 0, ctx.Err()
				}
				// Transient retrieval errors leave the task open for the
				// next round.
				logger.Warn("task status check failed", "task_id", t.id, "error", err)
				open++
				continue
			}

			switch status.Status {
			case embed.StatusReady:
				t.done = true

				offset := durations.offsetBefore(ctx, t.partIndex)
				for _, seg := range status.Segments {
					segments = append(segments, embed.Segment{
						StartSec:  seg.StartSec + offset,
						EndSec:    seg.EndSec + offset,
						Embedding: seg.Embedding,
					})
				}
				if n := len(status.Segments); n > 0 {
					if end := offset + status.Segments[n-1].EndSec; end > totalDuration {
						totalDuration = end
					}
				}

				done := countDone(tasks)
				o.store.SetProgress(id, done)
				logger.Info("part ready",
					"task_id", t.id,
					"part", t.partIndex,
					"progress", fmt.Sprintf("%d/%d", done, len(tasks)),
				)

			case embed.StatusFailed:
				return nil, 0, &RemoteTaskError{TaskID: t.id, Message: status.ErrorMessage}

			default:
				open++
			}
		}

		if open == 0 {
			// Parts are submitted in index order but may complete in any
			// order; the global ordering invariant must hold regardless.
			sort.SliceStable(segments, func(i, j int) bool {
				return segments[i].StartSec < segments[j].StartSec
			})
			return segments, totalDuration, nil
		}

		select {
		case <-ctx.Done():
			return nil, 0, ctx.Err()
		case <-deadline:
			return nil, 0, fmt.Errorf("%w after %s with %d tasks open", ErrPollTimeout, o.pollTimeout, open)
		case <-ticker.C:
		}
	}
}

// validate guards against silently truncated results: a service may report
// ready with far fewer segments than the source duration demands.
func (o *Orchestrator) validate(ctx context.Context, sourcePath string, segments []embed.Segment) error {
	if len(segments) == 0 {
		return &ValidationError{Reason: "no segments returned"}
	}

	sourceDuration := 0.0
	if o.prober != nil {
		if d, err := o.prober.Duration(ctx, sourcePath); err == nil {
			sourceDuration = d
		}
	}
	if sourceDuration <= o.longVideoSec {
		// Short or unknown-duration sources: coverage cannot be judged.
		return nil
	}

	lastEnd := segments[len(segments)-1].EndSec
	if lastEnd < o.coverageFraction*sourceDuration {
		return &ValidationError{Reason: fmt.Sprintf(
			"segments cover %.1fs of %.1fs source (need %.0f%%)",
			lastEnd, sourceDuration, o.coverageFraction*100,
		)}
	}

	if o.clipLengthSec > 0 {
		expected := sourceDuration / float64(o.clipLengthSec)
		if float64(len(segments)) < o.coverageFraction*expected {
			return &ValidationError{Reason: fmt.Sprintf(
				"%d segments for %.1fs source, expected about %.0f at %ds per clip",
				len(segments), sourceDuration, expected, o.clipLengthSec,
			)}
		}
	}

	return nil
}

func (o *Orchestrator) fail(id string, logger *slog.Logger, err error) {
	o.store.SetFailed(id, err.Error())
	logger.Error("ingestion failed", "error", err)
}

func countDone(tasks []*task) int {
	n := 0
	for _, t := range tasks {
		if t.done {
			n++
		}
	}
	return n
}

// partDurations lazily probes and caches per-part durations so each part is
// probed at most once. Unknown durations default to zero.
type partDurations struct {
	parts    []media.Part
	prober   media.Prober
	resolved []bool
	seconds  []float64
}

func newPartDurations(parts []media.Part, prober media.Prober) *partDurations {
	d := &partDurations{
		parts:    parts,
		prober:   prober,
		resolved: make([]bool, len(parts)),
		seconds:  make([]float64, len(parts)),
	}
	for i, part := range parts {
		if part.DurationSec > 0 {
			d.resolved[i] = true
			d.seconds[i] = part.DurationSec
		}
	}
	return d
}

// offsetBefore returns the summed duration of all parts below index, which
// is the global time offset of that part's segments.
func (d *partDurations) offsetBefore(ctx context.Context, index int) float64 {
	offset := 0.0
	for i := 0; i < index && i < len(d.parts); i++ {
		if !d.resolved[i] {
			d.resolved[i] = true
			if d.prober != nil {
				if sec, err := d.prober.Duration(ctx, d.parts[i].Path); err == nil {
					d.seconds[i] = sec
				}
			}
		}
		offset += d.seconds[i]
	}
	return offset
}
