// Package ingest turns a source video into a completed embedding record:
// it partitions the source, drives remote embedding tasks to completion,
// stitches per-part segments onto one global timeline, and serializes
// ingestions so only one runs at a time.
package ingest

import (
	"time"

	"github.com/google/uuid"

	"github.com/sage-video/sage-backend/internal/embed"
)

// Lifecycle statuses of an embedding record.
const (
	StatusPending    = "pending"
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
	StatusCancelled  = "cancelled"
)

// Record is the lifecycle state of one ingested video. Segments are present
// only when the record is completed and carry offsets on the whole-source
// timeline. Records live for the process lifetime unless explicitly removed.
type Record struct {
	ID          string          `json:"id"`
	Filename    string          `json:"filename"`
	SourcePath  string          `json:"-"`
	Status      string          `json:"status"`
	DurationSec float64         `json:"duration_sec"`
	Segments    []embed.Segment `json:"-"`
	PartsTotal  int             `json:"parts_total"`
	PartsDone   int             `json:"parts_done"`
	Error       string          `json:"error,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	CompletedAt time.Time       `json:"completed_at,omitzero"`
}

// Terminal reports whether the record can no longer change state on its own.
func (r *Record) Terminal() bool {
	switch r.Status {
	case StatusCompleted, StatusFailed, StatusCancelled:
		return true
	}
	return false
}

func NewID() string {
	return "embed_" + uuid.NewString()
}
