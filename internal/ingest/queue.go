package ingest

import (
	"context"
	"log/slog"
	"sync"
)

// Queue admits at most one ingestion at a time. Additional submissions wait
// in FIFO order and are started automatically when the active ingestion
// finishes, for any reason. The lock guards only the check-and-set of the
// active slot and the FIFO; it is never held while an ingestion runs.
type Queue struct {
	baseCtx context.Context
	logger  *slog.Logger

	mu           sync.Mutex
	activeID     string
	activeCancel context.CancelFunc
	waiting      []*waiter
}

type waiter struct {
	id  string
	run func(ctx context.Context)
}

func NewQueue(baseCtx context.Context, logger *slog.Logger) *Queue {
	return &Queue{baseCtx: baseCtx, logger: logger}
}

// Submit starts run on its own worker goroutine if no ingestion is active,
// or appends it to the FIFO otherwise. It returns true when the ingestion
// started immediately. The caller is never blocked waiting for a turn.
func (q *Queue) Submit(id string, run func(ctx context.Context)) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.activeID != "" {
		q.waiting = append(q.waiting, &waiter{id: id, run: run})
		q.logger.Info("ingestion queued", "embedding_id", id, "position", len(q.waiting))
		return false
	}

	q.startLocked(id, run)
	return true
}

// startLocked marks id active and launches its worker. Caller holds q.mu.
func (q *Queue) startLocked(id string, run func(ctx context.Context)) {
	ctx, cancel := context.WithCancel(q.baseCtx)
	q.activeID = id
	q.activeCancel = cancel

	go func() {
		defer cancel()
		run(ctx)
		q.finish(id)
	}()
}

// finish clears the active slot and unconditionally starts the next waiter,
// if any. Called exactly once per ingestion, on success and failure alike.
func (q *Queue) finish(id string) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.activeID != id {
		return
	}
	q.activeID = ""
	q.activeCancel = nil

	if len(q.waiting) == 0 {
		return
	}

	next := q.waiting[0]
	q.waiting = q.waiting[1:]
	q.logger.Info("starting next queued ingestion", "embedding_id", next.id, "remaining", len(q.waiting))
	q.startLocked(next.id, next.run)
}

// CancelQueued removes a not-yet-started submission from the FIFO. It has no
// effect on the active ingestion.
func (q *Queue) CancelQueued(id string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	for i, w := range q.waiting {
		if w.id == id {
			q.waiting = append(q.waiting[:i], q.waiting[i+1:]...)
			return true
		}
	}
	return false
}

// CancelActive cancels the running ingestion's context. The orchestrator
// observes the cancellation within one poll interval; its completion then
// pops the next waiter as usual.
func (q *Queue) CancelActive(id string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.activeID != id || q.activeCancel == nil {
		return false
	}
	q.activeCancel()
	return true
}

// ActiveID returns the id of the running ingestion, or empty.
func (q *Queue) ActiveID() string {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.activeID
}

// WaitingCount returns the number of queued submissions.
func (q *Queue) WaitingCount() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.waiting)
}
