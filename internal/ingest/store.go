package ingest

import (
	"sync"
	"time"

	"github.com/sage-video/sage-backend/internal/embed"
)

// Store is the in-memory table of embedding records. Each record carries its
// own lock so status polling never contends with an unrelated ingestion, and
// no lock is ever held across a poll interval. A record is written only by
// the orchestrator that owns it, except for cancellation, which preempts the
// owner: once a record is terminal, orchestrator transitions become no-ops.
type Store struct {
	mu      sync.RWMutex
	records map[string]*storeEntry
}

type storeEntry struct {
	mu  sync.RWMutex
	rec Record
}

func NewStore() *Store {
	return &Store{records: make(map[string]*storeEntry)}
}

// Create registers a new pending record.
func (s *Store) Create(id, filename, sourcePath string) Record {
	rec := Record{
		ID:         id,
		Filename:   filename,
		SourcePath: sourcePath,
		Status:     StatusPending,
		CreatedAt:  time.Now().UTC(),
	}

	s.mu.Lock()
	s.records[id] = &storeEntry{rec: rec}
	s.mu.Unlock()

	return rec
}

// Get returns a snapshot of a record.
func (s *Store) Get(id string) (Record, bool) {
	entry := s.entry(id)
	if entry == nil {
		return Record{}, false
	}

	entry.mu.RLock()
	defer entry.mu.RUnlock()
	return entry.rec, true
}

// List returns snapshots of all records.
func (s *Store) List() []Record {
	s.mu.RLock()
	entries := make([]*storeEntry, 0, len(s.records))
	for _, e := range s.records {
		entries = append(entries, e)
	}
	s.mu.RUnlock()

	out := make([]Record, 0, len(entries))
	for _, e := range entries {
		e.mu.RLock()
		out = append(out, e.rec)
		e.mu.RUnlock()
	}
	return out
}

// Delete removes a record entirely. Explicit removal only; nothing deletes
// records automatically.
func (s *Store) Delete(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.records[id]; !ok {
		return false
	}
	delete(s.records, id)
	return true
}

// SetProcessing transitions a record into the processing state.
func (s *Store) SetProcessing(id string, partsTotal int) bool {
	return s.transition(id, func(rec *Record) {
		rec.Status = StatusProcessing
		rec.PartsTotal = partsTotal
	})
}

// SetProgress records how many parts have completed so far.
func (s *Store) SetProgress(id string, partsDone int) bool {
	return s.transition(id, func(rec *Record) {
		rec.PartsDone = partsDone
	})
}

// SetCompleted stores the aggregated result and marks the record completed.
func (s *Store) SetCompleted(id string, segments []embed.Segment, durationSec float64) bool {
	return s.transition(id, func(rec *Record) {
		rec.Status = StatusCompleted
		rec.Segments = segments
		rec.DurationSec = durationSec
		rec.PartsDone = rec.PartsTotal
		rec.CompletedAt = time.Now().UTC()
	})
}

// SetFailed marks the record failed with a human-readable message.
func (s *Store) SetFailed(id, message string) bool {
	return s.transition(id, func(rec *Record) {
		rec.Status = StatusFailed
		rec.Error = message
		rec.CompletedAt = time.Now().UTC()
	})
}

// SetCancelled marks the record cancelled. Returns false when the record is
// unknown or already terminal.
func (s *Store) SetCancelled(id, message string) bool {
	return s.transition(id, func(rec *Record) {
		rec.Status = StatusCancelled
		rec.Error = message
		rec.CompletedAt = time.Now().UTC()
	})
}

// transition applies fn under the record's lock unless the record is already
// terminal. Terminal states are final: a cancelled record stays cancelled
// even if the preempted orchestrator later reports an outcome.
func (s *Store) transition(id string, fn func(*Record)) bool {
	entry := s.entry(id)
	if entry == nil {
		return false
	}

	entry.mu.Lock()
	defer entry.mu.Unlock()
	if entry.rec.Terminal() {
		return false
	}
	fn(&entry.rec)
	return true
}

func (s *Store) entry(id string) *storeEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.records[id]
}
