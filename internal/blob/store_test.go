package blob

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestLocalStoreRoundTrip(t *testing.T) {
	store, err := NewLocalStore(filepath.Join(t.TempDir(), "blobs"), testLogger())
	if err != nil {
		t.Fatal(err)
	}

	src := filepath.Join(t.TempDir(), "clip.mp4")
	if err := os.WriteFile(src, []byte("video bytes"), 0644); err != nil {
		t.Fatal(err)
	}

	ctx := context.Background()
	if err := store.Put(ctx, "embed_1/clip.mp4", src); err != nil {
		t.Fatal(err)
	}

	rc, err := store.Get(ctx, "embed_1/clip.mp4")
	if err != nil {
		t.Fatal(err)
	}
	got, _ := io.ReadAll(rc)
	rc.Close()
	if string(got) != "video bytes" {
		t.Errorf("round trip got %q", got)
	}

	path, err := store.Path("embed_1/clip.mp4")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Errorf("Path does not point at the stored file: %v", err)
	}

	if err := store.Remove(ctx, "embed_1/clip.mp4"); err != nil {
		t.Fatal(err)
	}
	if _, err := store.Get(ctx, "embed_1/clip.mp4"); err == nil {
		t.Error("Get succeeded after Remove")
	}
	// Removing again is fine.
	if err := store.Remove(ctx, "embed_1/clip.mp4"); err != nil {
		t.Errorf("second Remove: %v", err)
	}
}

func TestLocalStorePutCreatesKeyDirectories(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "blobs")
	store, err := NewLocalStore(dir, testLogger())
	if err != nil {
		t.Fatal(err)
	}

	src := filepath.Join(t.TempDir(), "source.mp4")
	if err := os.WriteFile(src, []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}

	// Archive keys are "<id>/<filename>"; the id directory does not exist
	// until the first Put.
	if err := store.Put(context.Background(), "embed_abc/source.mp4", src); err != nil {
		t.Fatalf("Put with nested key: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "embed_abc", "source.mp4")); err != nil {
		t.Errorf("archived file missing: %v", err)
	}
}

func TestLocalStoreRejectsEscapingKeys(t *testing.T) {
	store, err := NewLocalStore(filepath.Join(t.TempDir(), "blobs"), testLogger())
	if err != nil {
		t.Fatal(err)
	}

	for _, key := range []string{"", "../outside", "a/../../outside"} {
		if _, err := store.Get(context.Background(), key); err == nil {
			t.Errorf("key %q was accepted", key)
		}
	}
}

func TestDownload(t *testing.T) {
	const body = "downloaded video content"
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, body)
	}))
	defer server.Close()

	dest := filepath.Join(t.TempDir(), "clip.mp4")
	if err := Download(context.Background(), server.URL, dest, 1<<20, testLogger()); err != nil {
		t.Fatal(err)
	}

	got, err := os.ReadFile(dest)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != body {
		t.Errorf("downloaded %q", got)
	}
}

func TestDownloadEnforcesSizeLimit(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, strings.Repeat("x", 2048))
	}))
	defer server.Close()

	dest := filepath.Join(t.TempDir(), "clip.mp4")
	err := Download(context.Background(), server.URL, dest, 1024, testLogger())
	if err == nil {
		t.Fatal("oversized download succeeded")
	}
	if _, statErr := os.Stat(dest); !os.IsNotExist(statErr) {
		t.Error("partial download left behind")
	}
}

func TestDownloadRejectsErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer server.Close()

	dest := filepath.Join(t.TempDir(), "clip.mp4")
	if err := Download(context.Background(), server.URL, dest, 1<<20, testLogger()); err == nil {
		t.Fatal("404 download succeeded")
	}
}
