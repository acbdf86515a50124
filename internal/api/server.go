// Package api exposes the ingestion and comparison service over HTTP.
package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/sage-video/sage-backend/internal/auth"
	"github.com/sage-video/sage-backend/internal/blob"
	"github.com/sage-video/sage-backend/internal/db"
	"github.com/sage-video/sage-backend/internal/embed"
	"github.com/sage-video/sage-backend/internal/ingest"
	"github.com/sage-video/sage-backend/internal/media"
)

type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

type ServerConfig struct {
	Port           int
	VideosDir      string
	MaxUploadBytes int64
	Ingest         *ingest.Service
	EmbedClient    embed.Client
	AuthRepo       auth.Repository
	Blob           blob.Store
	DB             *db.DB
	Capabilities   media.Capabilities
	InstanceID     string
	Logger         *slog.Logger
	StartTime      time.Time

	// OnKeyValidated runs after a previously unseen API key is accepted by
	// the embedding service, so the ingestion client can adopt it.
	OnKeyValidated func(string)
}

func NewServer(cfg ServerConfig) *Server {
	router := NewRouter(cfg)

	return &Server{
		httpServer: &http.Server{
			Addr:    fmt.Sprintf(":%d", cfg.Port),
			Handler: router,
			// Uploads and long polls keep connections open; only reads of
			// the request headers are bounded here.
			ReadHeaderTimeout: 15 * time.Second,
			WriteTimeout:      0,
			IdleTimeout:       60 * time.Second,
		},
		logger: cfg.Logger,
	}
}

func (s *Server) Start() error {
	s.logger.Info("starting HTTP server", "addr", s.httpServer.Addr)
	err := s.httpServer.ListenAndServe()
	if err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down HTTP server")
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) Addr() string {
	return s.httpServer.Addr
}
