package embed

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func writeTestVideo(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "clip.mp4")
	if err := os.WriteFile(path, []byte("fake video bytes"), 0644); err != nil {
		t.Fatalf("failed to write test video: %v", err)
	}
	return path
}

func TestHTTPClient_CreateTask_Success(t *testing.T) {
	var receivedKey string
	var receivedModel string
	var receivedFile []byte

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/embed/tasks" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		if r.Method != http.MethodPost {
			t.Errorf("unexpected method: %s", r.Method)
		}

		receivedKey = r.Header.Get("x-api-key")

		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Fatalf("parse multipart: %v", err)
		}
		receivedModel = r.FormValue("model_name")

		file, _, err := r.FormFile("video_file")
		if err != nil {
			t.Fatalf("form file: %v", err)
		}
		defer file.Close()
		buf := make([]byte, 64)
		n, _ := file.Read(buf)
		receivedFile = buf[:n]

		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(map[string]string{"_id": "task-abc"})
	}))
	defer server.Close()

	client := NewHTTPClient(server.URL, "tlk_test", "Marengo-retrieval-2.7", 2, testLogger())

	taskID, err := client.CreateTask(context.Background(), writeTestVideo(t))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if taskID != "task-abc" {
		t.Errorf("taskID = %q, want task-abc", taskID)
	}
	if receivedKey != "tlk_test" {
		t.Errorf("api key = %q, want tlk_test", receivedKey)
	}
	if receivedModel != "Marengo-retrieval-2.7" {
		t.Errorf("model = %q", receivedModel)
	}
	if string(receivedFile) != "fake video bytes" {
		t.Errorf("file content = %q", receivedFile)
	}
}

func TestHTTPClient_CreateTask_ServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		w.Write([]byte(`{"message":"upstream busy"}`))
	}))
	defer server.Close()

	client := NewHTTPClient(server.URL, "tlk_test", "Marengo-retrieval-2.7", 2, testLogger())

	_, err := client.CreateTask(context.Background(), writeTestVideo(t))
	if err == nil {
		t.Fatal("expected error, got nil")
	}

	var reqErr *RequestError
	if !errors.As(err, &reqErr) {
		t.Fatalf("error type = %T, want *RequestError", err)
	}
	if reqErr.StatusCode != http.StatusBadGateway {
		t.Errorf("status = %d, want 502", reqErr.StatusCode)
	}
	if !reqErr.IsRetryable() {
		t.Error("5xx error should be retryable")
	}
}

func TestHTTPClient_GetTask_Ready(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/embed/tasks/task-abc" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		json.NewEncoder(w).Encode(map[string]any{
			"_id":    "task-abc",
			"status": "ready",
			"video_embedding": map[string]any{
				"segments": []map[string]any{
					{"start_offset_sec": 0.0, "end_offset_sec": 2.0, "embeddings_float": []float32{0.1, 0.2}},
					{"start_offset_sec": 2.0, "end_offset_sec": 4.0, "embeddings_float": []float32{0.3, 0.4}},
				},
			},
		})
	}))
	defer server.Close()

	client := NewHTTPClient(server.URL, "tlk_test", "Marengo-retrieval-2.7", 2, testLogger())

	status, err := client.GetTask(context.Background(), "task-abc")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if status.Status != StatusReady {
		t.Errorf("status = %q, want ready", status.Status)
	}
	if !status.Terminal() {
		t.Error("ready task should be terminal")
	}
	if len(status.Segments) != 2 {
		t.Fatalf("segments = %d, want 2", len(status.Segments))
	}
	if status.Segments[1].StartSec != 2.0 || status.Segments[1].EndSec != 4.0 {
		t.Errorf("segment offsets = %v-%v", status.Segments[1].StartSec, status.Segments[1].EndSec)
	}
}

func TestHTTPClient_GetTask_FailedCarriesDiagnostics(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"_id":     "task-abc",
			"status":  "failed",
			"message": "video codec not supported",
		})
	}))
	defer server.Close()

	client := NewHTTPClient(server.URL, "tlk_test", "Marengo-retrieval-2.7", 2, testLogger())

	status, err := client.GetTask(context.Background(), "task-abc")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if status.Status != StatusFailed {
		t.Errorf("status = %q, want failed", status.Status)
	}
	if status.ErrorMessage != "video codec not supported" {
		t.Errorf("error message = %q", status.ErrorMessage)
	}
}

func TestHTTPClient_ValidateKey(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("x-api-key") == "tlk_good" {
			w.WriteHeader(http.StatusOK)
			w.Write([]byte(`{"data":[]}`))
			return
		}
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"message":"invalid api key"}`))
	}))
	defer server.Close()

	client := NewHTTPClient(server.URL, "", "Marengo-retrieval-2.7", 2, testLogger())

	if err := client.ValidateKey(context.Background(), "tlk_good"); err != nil {
		t.Errorf("ValidateKey(good) error = %v", err)
	}

	err := client.ValidateKey(context.Background(), "tlk_bad")
	if err == nil {
		t.Fatal("ValidateKey(bad) should fail")
	}
	var reqErr *RequestError
	if !errors.As(err, &reqErr) || reqErr.StatusCode != http.StatusUnauthorized {
		t.Errorf("unexpected error: %v", err)
	}
}
