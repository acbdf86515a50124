package ingest

import (
	"testing"

	"github.com/sage-video/sage-backend/internal/embed"
)

func TestStoreLifecycle(t *testing.T) {
	s := NewStore()
	id := NewID()

	rec := s.Create(id, "clip.mp4", "/videos/clip.mp4")
	if rec.Status != StatusPending {
		t.Fatalf("new record status = %q, want %q", rec.Status, StatusPending)
	}

	if !s.SetProcessing(id, 3) {
		t.Fatal("SetProcessing returned false for pending record")
	}
	if !s.SetProgress(id, 2) {
		t.Fatal("SetProgress returned false for processing record")
	}

	segs := []embed.Segment{{StartSec: 0, EndSec: 2, Embedding: []float32{0.1}}}
	if !s.SetCompleted(id, segs, 2.0) {
		t.Fatal("SetCompleted returned false")
	}

	got, ok := s.Get(id)
	if !ok {
		t.Fatal("record disappeared")
	}
	if got.Status != StatusCompleted {
		t.Errorf("status = %q, want %q", got.Status, StatusCompleted)
	}
	if got.PartsDone != got.PartsTotal {
		t.Errorf("parts done = %d, want %d", got.PartsDone, got.PartsTotal)
	}
	if got.DurationSec != 2.0 {
		t.Errorf("duration = %v, want 2.0", got.DurationSec)
	}
	if got.CompletedAt.IsZero() {
		t.Error("CompletedAt not set")
	}
}

func TestStoreTerminalStatesAreFinal(t *testing.T) {
	s := NewStore()
	id := NewID()
	s.Create(id, "clip.mp4", "/videos/clip.mp4")
	s.SetProcessing(id, 1)

	if !s.SetCancelled(id, "cancelled by user") {
		t.Fatal("SetCancelled returned false for processing record")
	}

	// A preempted worker reporting afterwards must not change the outcome.
	if s.SetCompleted(id, nil, 10.0) {
		t.Error("SetCompleted succeeded on a cancelled record")
	}
	if s.SetFailed(id, "late failure") {
		t.Error("SetFailed succeeded on a cancelled record")
	}

	got, _ := s.Get(id)
	if got.Status != StatusCancelled {
		t.Errorf("status = %q, want %q", got.Status, StatusCancelled)
	}
}

func TestStoreGetUnknown(t *testing.T) {
	s := NewStore()
	if _, ok := s.Get("embed_missing"); ok {
		t.Error("Get returned ok for unknown id")
	}
	if s.SetFailed("embed_missing", "x") {
		t.Error("transition succeeded for unknown id")
	}
}

func TestStoreDelete(t *testing.T) {
	s := NewStore()
	id := NewID()
	s.Create(id, "clip.mp4", "/videos/clip.mp4")

	if !s.Delete(id) {
		t.Fatal("Delete returned false for existing record")
	}
	if s.Delete(id) {
		t.Error("Delete returned true for removed record")
	}
	if _, ok := s.Get(id); ok {
		t.Error("record still visible after delete")
	}
}

func TestStoreListSnapshots(t *testing.T) {
	s := NewStore()
	for range 3 {
		s.Create(NewID(), "clip.mp4", "/videos/clip.mp4")
	}

	recs := s.List()
	if len(recs) != 3 {
		t.Fatalf("List returned %d records, want 3", len(recs))
	}

	// Mutating the snapshot must not touch the store.
	recs[0].Status = StatusFailed
	got, _ := s.Get(recs[0].ID)
	if got.Status != StatusPending {
		t.Errorf("store record mutated through snapshot: status = %q", got.Status)
	}
}
