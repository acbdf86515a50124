package ingest

import (
	"context"
	"errors"
	"testing"
)

func newBareService(t *testing.T) (*Service, *Store) {
	t.Helper()
	store := NewStore()
	queue := NewQueue(context.Background(), testLogger())
	return NewService(store, queue, nil, t.TempDir(), testLogger()), store
}

func TestServiceRemoveTerminalRecord(t *testing.T) {
	svc, store := newBareService(t)

	store.Create("embed_done", "clip.mp4", "")
	store.SetProcessing("embed_done", 1)
	store.SetFailed("embed_done", "remote failure")

	if err := svc.Remove("embed_done"); err != nil {
		t.Fatalf("Remove() error = %v", err)
	}
	if _, ok := store.Get("embed_done"); ok {
		t.Error("record still present after Remove")
	}

	if err := svc.Remove("embed_done"); !errors.Is(err, ErrNotFound) {
		t.Errorf("second Remove() error = %v, want not found", err)
	}
}

func TestServiceRemoveRefusesLiveRecord(t *testing.T) {
	svc, store := newBareService(t)

	store.Create("embed_live", "clip.mp4", "")
	store.SetProcessing("embed_live", 1)

	if err := svc.Remove("embed_live"); !errors.Is(err, ErrNotCancellable) {
		t.Fatalf("Remove() error = %v, want not cancellable", err)
	}
	if _, ok := store.Get("embed_live"); !ok {
		t.Error("live record was removed")
	}
}

func TestServiceCancelPendingRecord(t *testing.T) {
	svc, store := newBareService(t)

	store.Create("embed_pending", "clip.mp4", "")

	if err := svc.Cancel("embed_pending"); err != nil {
		t.Fatalf("Cancel() error = %v", err)
	}
	rec, _ := store.Get("embed_pending")
	if rec.Status != StatusCancelled {
		t.Errorf("status = %q, want cancelled", rec.Status)
	}

	if err := svc.Cancel("embed_pending"); !errors.Is(err, ErrNotCancellable) {
		t.Errorf("cancelling a cancelled record: err = %v, want not cancellable", err)
	}
}
