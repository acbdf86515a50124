package api

import (
	"fmt"
	"time"

	"github.com/sage-video/sage-backend/internal/compare"
	"github.com/sage-video/sage-backend/internal/ingest"
)

type HealthResponse struct {
	Status     string `json:"status"`
	Version    string `json:"version"`
	UptimeS    int64  `json:"uptime_s"`
	InstanceID string `json:"instance_id,omitempty"`
	HasFFmpeg  bool   `json:"has_ffmpeg"`
	HasFFprobe bool   `json:"has_ffprobe"`
	DBHealthy  bool   `json:"db_healthy"`
}

type ValidateKeyRequest struct {
	APIKey string `json:"api_key"`
}

type ValidateKeyResponse struct {
	Valid bool `json:"valid"`
}

type IngestRequest struct {
	URL string `json:"url,omitempty"`
}

type IngestResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
	Queued bool   `json:"queued"`
}

type EmbeddingResponse struct {
	ID          string  `json:"id"`
	Filename    string  `json:"filename"`
	Status      string  `json:"status"`
	Progress    string  `json:"progress,omitempty"`
	DurationSec float64 `json:"duration_sec,omitempty"`
	Segments    int     `json:"segments,omitempty"`
	Error       string  `json:"error,omitempty"`
	CreatedAt   string  `json:"created_at"`
	CompletedAt string  `json:"completed_at,omitempty"`
}

type EmbeddingsResponse struct {
	Embeddings []EmbeddingResponse `json:"embeddings"`
}

type CompareRequest struct {
	ID1       string   `json:"id1"`
	ID2       string   `json:"id2"`
	Metric    string   `json:"metric,omitempty"`
	Threshold *float64 `json:"threshold,omitempty"`
}

type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

func RecordToResponse(rec ingest.Record) EmbeddingResponse {
	resp := EmbeddingResponse{
		ID:          rec.ID,
		Filename:    rec.Filename,
		Status:      rec.Status,
		DurationSec: rec.DurationSec,
		Segments:    len(rec.Segments),
		Error:       rec.Error,
		CreatedAt:   rec.CreatedAt.Format(time.RFC3339),
	}
	if rec.Status == ingest.StatusProcessing && rec.PartsTotal > 0 {
		resp.Progress = fmt.Sprintf("%d/%d parts processed", rec.PartsDone, rec.PartsTotal)
	}
	if !rec.CompletedAt.IsZero() {
		resp.CompletedAt = rec.CompletedAt.Format(time.RFC3339)
	}
	return resp
}

func recordToInput(rec ingest.Record) compare.Input {
	return compare.Input{
		Filename:    rec.Filename,
		DurationSec: rec.DurationSec,
		Segments:    rec.Segments,
	}
}
