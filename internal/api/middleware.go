package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/sage-video/sage-backend/internal/auth"
	"github.com/sage-video/sage-backend/internal/embed"
	"github.com/sage-video/sage-backend/internal/logging"
)

type contextKey string

const RequestIDKey contextKey = "request_id"

// AuthMiddleware requires a valid X-API-Key header. Keys whose hash is
// already on record are accepted locally; an unknown key is checked against
// the embedding service once and recorded when accepted, so later requests
// never leave the process. onValidated runs after a new key is accepted.
func AuthMiddleware(repo auth.Repository, client embed.Client, logger *slog.Logger, onValidated func(string)) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.Header.Get("X-API-Key")
			if key == "" {
				WriteError(w, http.StatusUnauthorized, "missing X-API-Key header", "UNAUTHORIZED")
				return
			}

			known, err := repo.IsKnownKey(r.Context(), key)
			if err != nil {
				logger.Error("api key lookup failed", "error", err)
				WriteError(w, http.StatusInternalServerError, "auth storage error", "INTERNAL_ERROR")
				return
			}

			if known {
				if err := repo.TouchKey(r.Context(), key); err != nil {
					logger.Warn("failed to touch api key", "error", err)
				}
				next.ServeHTTP(w, r)
				return
			}

			if err := client.ValidateKey(r.Context(), key); err != nil {
				logger.Warn("api key rejected by embedding service",
					"key", logging.SanitizeKey(key), "error", err)
				WriteError(w, http.StatusUnauthorized, "invalid API key", "UNAUTHORIZED")
				return
			}

			if err := repo.RecordKey(r.Context(), key); err != nil {
				logger.Warn("failed to record api key", "error", err)
			}
			if onValidated != nil {
				onValidated(key)
			}
			logger.Info("new api key validated", "key", logging.SanitizeKey(key))

			next.ServeHTTP(w, r)
		})
	}
}

func LoggingMiddleware(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			wrapped := &responseWriter{ResponseWriter: w, status: http.StatusOK}

			next.ServeHTTP(wrapped, r)

			requestID, _ := r.Context().Value(RequestIDKey).(string)
			logger.Info("http request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", wrapped.status,
				"duration_ms", time.Since(start).Milliseconds(),
				"request_id", requestID,
			)
		})
	}
}

func RecoveryMiddleware(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if err := recover(); err != nil {
					requestID, _ := r.Context().Value(RequestIDKey).(string)
					logger.Error("panic recovered", "error", err, "request_id", requestID)
					WriteError(w, http.StatusInternalServerError, "internal server error", "INTERNAL_ERROR")
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

func RequestIDMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			requestID := uuid.NewString()[:8]
			ctx := context.WithValue(r.Context(), RequestIDKey, requestID)
			w.Header().Set("X-Request-ID", requestID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (w *responseWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

func WriteError(w http.ResponseWriter, status int, message, code string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(ErrorResponse{Error: message, Code: code})
}

func WriteJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
