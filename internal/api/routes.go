package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/sage-video/sage-backend/internal/blob"
	"github.com/sage-video/sage-backend/internal/compare"
	"github.com/sage-video/sage-backend/internal/config"
	"github.com/sage-video/sage-backend/internal/ingest"
	"github.com/sage-video/sage-backend/internal/report"
)

func NewRouter(cfg ServerConfig) *chi.Mux {
	r := chi.NewRouter()

	r.Use(RequestIDMiddleware())
	r.Use(RecoveryMiddleware(cfg.Logger))
	r.Use(LoggingMiddleware(cfg.Logger))

	r.Get("/health", healthHandler(cfg))
	r.Post("/validate-key", validateKeyHandler(cfg))

	r.Group(func(r chi.Router) {
		r.Use(AuthMiddleware(cfg.AuthRepo, cfg.EmbedClient, cfg.Logger, cfg.OnKeyValidated))

		r.Post("/ingest", startIngestHandler(cfg))
		r.Get("/ingest", listIngestHandler(cfg))
		r.Get("/ingest/{id}", getIngestHandler(cfg))
		r.Delete("/ingest/{id}", cancelIngestHandler(cfg))
		r.Post("/compare", compareHandler(cfg))
		r.Get("/compare/export", compareExportHandler(cfg))
		r.Get("/videos/{id}", videoHandler(cfg))
	})

	return r
}

func healthHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		WriteJSON(w, http.StatusOK, HealthResponse{
			Status:     "ok",
			Version:    config.Version,
			UptimeS:    int64(time.Since(cfg.StartTime).Seconds()),
			InstanceID: cfg.InstanceID,
			HasFFmpeg:  cfg.Capabilities.HasFFmpeg,
			HasFFprobe: cfg.Capabilities.HasFFprobe,
			DBHealthy:  cfg.DB == nil || cfg.DB.Healthy(),
		})
	}
}

func validateKeyHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req ValidateKeyRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			WriteError(w, http.StatusBadRequest, "invalid request body", "BAD_REQUEST")
			return
		}
		if req.APIKey == "" {
			WriteError(w, http.StatusBadRequest, "api_key is required", "BAD_REQUEST")
			return
		}

		if err := cfg.EmbedClient.ValidateKey(r.Context(), req.APIKey); err != nil {
			WriteJSON(w, http.StatusOK, ValidateKeyResponse{Valid: false})
			return
		}

		if err := cfg.AuthRepo.RecordKey(r.Context(), req.APIKey); err != nil {
			cfg.Logger.Warn("failed to record api key", "error", err)
		}
		if cfg.OnKeyValidated != nil {
			cfg.OnKeyValidated(req.APIKey)
		}
		WriteJSON(w, http.StatusOK, ValidateKeyResponse{Valid: true})
	}
}

// startIngestHandler accepts either a multipart upload under "video_file" or
// a JSON body naming a URL to download. The source is kept under the videos
// directory for later playback and comparison.
func startIngestHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var sourcePath, filename string

		ct, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
		if ct == "multipart/form-data" {
			var err error
			sourcePath, filename, err = saveUpload(cfg, r)
			if err != nil {
				WriteError(w, http.StatusBadRequest, err.Error(), "BAD_REQUEST")
				return
			}
		} else {
			var req IngestRequest
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				WriteError(w, http.StatusBadRequest, "invalid request body", "BAD_REQUEST")
				return
			}
			if req.URL == "" {
				WriteError(w, http.StatusBadRequest, "url or video_file is required", "BAD_REQUEST")
				return
			}

			var err error
			sourcePath, filename, err = saveFromURL(cfg, r, req.URL)
			if err != nil {
				WriteError(w, http.StatusBadGateway, err.Error(), "DOWNLOAD_FAILED")
				return
			}
		}

		id, queued := cfg.Ingest.Start(sourcePath, filename)

		if cfg.Blob != nil {
			if err := cfg.Blob.Put(r.Context(), id+"/"+filename, sourcePath); err != nil {
				cfg.Logger.Warn("failed to archive source video", "embedding_id", id, "error", err)
			}
		}

		rec, err := cfg.Ingest.Get(id)
		if err != nil {
			WriteError(w, http.StatusInternalServerError, err.Error(), "INTERNAL_ERROR")
			return
		}
		WriteJSON(w, http.StatusAccepted, IngestResponse{ID: id, Status: rec.Status, Queued: queued})
	}
}

func saveUpload(cfg ServerConfig, r *http.Request) (string, string, error) {
	r.Body = http.MaxBytesReader(nil, r.Body, cfg.MaxUploadBytes)

	file, header, err := r.FormFile("video_file")
	if err != nil {
		return "", "", fmt.Errorf("video_file is required: %w", err)
	}
	defer file.Close()

	return persistVideo(cfg, file, header.Filename)
}

func saveFromURL(cfg ServerConfig, r *http.Request, rawURL string) (string, string, error) {
	u, err := url.Parse(rawURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return "", "", errors.New("url must be http or https")
	}

	filename := filepath.Base(u.Path)
	if filename == "." || filename == "/" || filename == "" {
		filename = "video.mp4"
	}

	dest := filepath.Join(cfg.VideosDir, uuid.NewString()+filepath.Ext(filename))
	if err := blob.Download(r.Context(), rawURL, dest, cfg.MaxUploadBytes, cfg.Logger); err != nil {
		return "", "", err
	}
	return dest, filename, nil
}

func persistVideo(cfg ServerConfig, src multipart.File, original string) (string, string, error) {
	filename := filepath.Base(original)
	if filename == "." || filename == "" {
		filename = "video.mp4"
	}

	dest := filepath.Join(cfg.VideosDir, uuid.NewString()+filepath.Ext(filename))
	out, err := os.Create(dest)
	if err != nil {
		return "", "", fmt.Errorf("store upload: %w", err)
	}
	if _, err := io.Copy(out, src); err != nil {
		out.Close()
		os.Remove(dest)
		return "", "", fmt.Errorf("store upload: %w", err)
	}
	if err := out.Close(); err != nil {
		os.Remove(dest)
		return "", "", fmt.Errorf("store upload: %w", err)
	}
	return dest, filename, nil
}

func listIngestHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		records := cfg.Ingest.List()
		resp := EmbeddingsResponse{Embeddings: make([]EmbeddingResponse, len(records))}
		for i, rec := range records {
			resp.Embeddings[i] = RecordToResponse(rec)
		}
		WriteJSON(w, http.StatusOK, resp)
	}
}

func getIngestHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rec, err := cfg.Ingest.Get(chi.URLParam(r, "id"))
		if err != nil {
			WriteError(w, http.StatusNotFound, "embedding not found", "NOT_FOUND")
			return
		}
		WriteJSON(w, http.StatusOK, RecordToResponse(rec))
	}
}

// cancelIngestHandler stops a pending or active ingestion; for a record
// that already reached a terminal state it removes the record instead.
func cancelIngestHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		err := cfg.Ingest.Cancel(id)
		if errors.Is(err, ingest.ErrNotCancellable) {
			err = cfg.Ingest.Remove(id)
		}

		switch {
		case errors.Is(err, ingest.ErrNotFound):
			WriteError(w, http.StatusNotFound, "embedding not found", "NOT_FOUND")
		case err != nil:
			WriteError(w, http.StatusInternalServerError, err.Error(), "INTERNAL_ERROR")
		default:
			w.WriteHeader(http.StatusNoContent)
		}
	}
}

func compareHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req CompareRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			WriteError(w, http.StatusBadRequest, "invalid request body", "BAD_REQUEST")
			return
		}

		rep, err := runComparison(cfg, req)
		if err != nil {
			writeCompareError(w, err)
			return
		}
		WriteJSON(w, http.StatusOK, rep)
	}
}

// compareExportHandler renders the same comparison as CSV, one row per
// scored segment pair.
func compareExportHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		req := CompareRequest{
			ID1:    q.Get("id1"),
			ID2:    q.Get("id2"),
			Metric: q.Get("metric"),
		}
		if t := q.Get("threshold"); t != "" {
			v, err := strconv.ParseFloat(t, 64)
			if err != nil {
				WriteError(w, http.StatusBadRequest, "invalid threshold", "BAD_REQUEST")
				return
			}
			req.Threshold = &v
		}

		rep, err := runComparison(cfg, req)
		if err != nil {
			writeCompareError(w, err)
			return
		}

		w.Header().Set("Content-Type", "text/csv")
		w.Header().Set("Content-Disposition", `attachment; filename="comparison.csv"`)
		if err := report.WriteCSV(w, rep); err != nil {
			cfg.Logger.Error("csv export failed", "error", err)
		}
	}
}

func runComparison(cfg ServerConfig, req CompareRequest) (*compare.Report, error) {
	if req.ID1 == "" || req.ID2 == "" {
		return nil, errors.New("id1 and id2 are required")
	}

	metric := req.Metric
	if metric == "" {
		metric = compare.MetricCosine
	}
	threshold := compare.DefaultThreshold
	if req.Threshold != nil {
		threshold = *req.Threshold
	}

	var inputs [2]compare.Input
	for i, id := range []string{req.ID1, req.ID2} {
		rec, err := cfg.Ingest.Get(id)
		if err != nil {
			return nil, err
		}
		if rec.Status != ingest.StatusCompleted {
			return nil, &ingest.NotReadyError{ID: rec.ID, Status: rec.Status}
		}
		inputs[i] = recordToInput(rec)
	}

	return compare.Compare(inputs[0], inputs[1], metric, threshold)
}

func writeCompareError(w http.ResponseWriter, err error) {
	var notReady *ingest.NotReadyError
	switch {
	case errors.Is(err, ingest.ErrNotFound):
		WriteError(w, http.StatusNotFound, err.Error(), "NOT_FOUND")
	case errors.As(err, &notReady):
		WriteError(w, http.StatusConflict, err.Error(), "NOT_READY")
	case errors.Is(err, compare.ErrUnknownMetric),
		errors.Is(err, compare.ErrWidthMismatch),
		errors.Is(err, compare.ErrDimensionMismatch):
		WriteError(w, http.StatusBadRequest, err.Error(), "BAD_REQUEST")
	default:
		WriteError(w, http.StatusBadRequest, err.Error(), "BAD_REQUEST")
	}
}

// videoHandler serves the ingested source back, with range support when the
// file is still on local disk. Deployments with a remote blob store fall
// back to a presigned redirect once local files are gone.
func videoHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		rec, err := cfg.Ingest.Get(id)
		if err != nil {
			WriteError(w, http.StatusNotFound, "embedding not found", "NOT_FOUND")
			return
		}

		if rec.SourcePath != "" {
			if _, err := os.Stat(rec.SourcePath); err == nil {
				http.ServeFile(w, r, rec.SourcePath)
				return
			}
		}

		if cfg.Blob != nil {
			key := id + "/" + rec.Filename
			if u, err := cfg.Blob.Presign(r.Context(), key, 15*time.Minute); err == nil && u != "" {
				http.Redirect(w, r, u, http.StatusTemporaryRedirect)
				return
			}
			if rc, err := cfg.Blob.Get(r.Context(), key); err == nil {
				defer rc.Close()
				w.Header().Set("Content-Type", "video/mp4")
				if _, err := io.Copy(w, rc); err != nil {
					cfg.Logger.Warn("video stream interrupted", "embedding_id", id, "error", err)
				}
				return
			}
		}

		WriteError(w, http.StatusNotFound, "video not available", "NOT_FOUND")
	}
}
