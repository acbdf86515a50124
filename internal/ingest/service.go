package ingest

import (
	"context"
	"log/slog"
	"path/filepath"
)

// Service is the front door for ingestions: it creates the record, hands
// the work to the admission queue, and maps cancellation onto whichever
// state the ingestion is in.
type Service struct {
	store        *Store
	queue        *Queue
	orchestrator *Orchestrator
	scratchBase  string
	logger       *slog.Logger
}

func NewService(store *Store, queue *Queue, orchestrator *Orchestrator, scratchBase string, logger *slog.Logger) *Service {
	return &Service{
		store:        store,
		queue:        queue,
		orchestrator: orchestrator,
		scratchBase:  scratchBase,
		logger:       logger,
	}
}

// Start registers a new ingestion for sourcePath and submits it to the
// queue. It returns the record id and whether the ingestion had to wait
// behind an active one.
func (s *Service) Start(sourcePath, filename string) (string, bool) {
	id := NewID()
	s.store.Create(id, filename, sourcePath)

	scratchDir := filepath.Join(s.scratchBase, id)
	started := s.queue.Submit(id, func(ctx context.Context) {
		s.orchestrator.Run(ctx, id, sourcePath, scratchDir)
	})

	if started {
		s.logger.Info("ingestion admitted", "embedding_id", id, "filename", filename)
	} else {
		s.logger.Info("ingestion queued", "embedding_id", id, "filename", filename, "waiting", s.queue.WaitingCount())
	}
	return id, !started
}

func (s *Service) Get(id string) (Record, error) {
	rec, ok := s.store.Get(id)
	if !ok {
		return Record{}, ErrNotFound
	}
	return rec, nil
}

func (s *Service) List() []Record {
	return s.store.List()
}

// Cancel stops an ingestion. Queued ingestions are removed from the wait
// list; the active one has its context cancelled and winds down within one
// poll interval. Terminal records cannot be cancelled.
func (s *Service) Cancel(id string) error {
	rec, ok := s.store.Get(id)
	if !ok {
		return ErrNotFound
	}
	if rec.Terminal() {
		return ErrNotCancellable
	}

	if s.queue.CancelQueued(id) {
		s.store.SetCancelled(id, "cancelled while queued")
		s.logger.Info("queued ingestion cancelled", "embedding_id", id)
		return nil
	}

	// Mark the record first so the orchestrator's own transitions become
	// no-ops, then tear down its context.
	s.store.SetCancelled(id, "ingestion cancelled")
	s.queue.CancelActive(id)
	s.logger.Info("active ingestion cancelled", "embedding_id", id)
	return nil
}

// Remove deletes a terminal record entirely. Records still pending or
// processing must be cancelled first.
func (s *Service) Remove(id string) error {
	rec, ok := s.store.Get(id)
	if !ok {
		return ErrNotFound
	}
	if !rec.Terminal() {
		return ErrNotCancellable
	}

	s.store.Delete(id)
	s.logger.Info("embedding record removed", "embedding_id", id, "status", rec.Status)
	return nil
}
