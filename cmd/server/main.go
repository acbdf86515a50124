package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sage-video/sage-backend/internal/api"
	"github.com/sage-video/sage-backend/internal/auth"
	"github.com/sage-video/sage-backend/internal/blob"
	"github.com/sage-video/sage-backend/internal/config"
	"github.com/sage-video/sage-backend/internal/db"
	"github.com/sage-video/sage-backend/internal/embed"
	"github.com/sage-video/sage-backend/internal/ingest"
	"github.com/sage-video/sage-backend/internal/logging"
	"github.com/sage-video/sage-backend/internal/media"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("fatal error: %v", err)
	}
}

func run() error {
	startTime := time.Now()

	cfg, err := config.New()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	for _, dir := range []string{cfg.DataDir(), cfg.VideosDir(), cfg.ScratchDir()} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create %s: %w", dir, err)
		}
	}

	logger := logging.NewLogger(cfg.LogLevel())
	logger.Info("starting sage backend",
		"version", config.Version,
		"data_dir", logging.SanitizePath(cfg.DataDir()),
	)

	database, err := db.New(cfg.DBPath(), logger)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer database.Close()

	authRepo := auth.NewRepository(database.Conn())

	instanceID, err := auth.EnsureInstanceID(context.Background(), authRepo)
	if err != nil {
		return fmt.Errorf("failed to ensure instance id: %w", err)
	}
	logger.Info("instance identified", "instance_id", instanceID)

	caps := media.Doctor(logger)

	var prober media.Prober
	if caps.HasFFprobe {
		p, err := media.NewFFprobe("", logger)
		if err != nil {
			logger.Warn("ffprobe unavailable, durations will be unknown", "error", err)
		} else {
			prober = p
		}
	}

	var splitter media.Splitter
	if caps.HasFFmpeg {
		s, err := media.NewFFmpegSplitter("", logger)
		if err != nil {
			logger.Warn("ffmpeg unavailable, long sources will be submitted whole", "error", err)
		} else {
			splitter = s
		}
	}

	embedClient := embed.NewHTTPClient(
		cfg.EmbedBaseURL(), "", cfg.EmbedModel(), cfg.ClipLengthSec(), logger)

	partitioner := media.NewPartitioner(
		prober, splitter,
		cfg.MaxEmbedDurationSec(), cfg.MaxEmbedSizeBytes(), cfg.SplitSegmentSec(),
		logger)

	store := ingest.NewStore()

	appCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	queue := ingest.NewQueue(appCtx, logger)
	orchestrator := ingest.NewOrchestrator(ingest.OrchestratorConfig{
		Client:           embedClient,
		Prober:           prober,
		Partitioner:      partitioner,
		Store:            store,
		Logger:           logger,
		PollInterval:     cfg.PollInterval(),
		PollTimeout:      cfg.PollTimeout(),
		ClipLengthSec:    cfg.ClipLengthSec(),
		CoverageFraction: cfg.CoverageFraction(),
		LongVideoSec:     cfg.LongVideoSec(),
	})
	ingestSvc := ingest.NewService(store, queue, orchestrator, cfg.ScratchDir(), logger)

	var blobStore blob.Store
	if cfg.BlobEnabled() {
		bs, err := blob.NewMinioStore(appCtx, blob.MinioConfig{
			Endpoint:  cfg.BlobEndpoint(),
			Bucket:    cfg.BlobBucket(),
			AccessKey: cfg.BlobAccessKey(),
			SecretKey: cfg.BlobSecretKey(),
			UseSSL:    cfg.BlobUseSSL(),
		}, logger)
		if err != nil {
			return fmt.Errorf("failed to connect blob store: %w", err)
		}
		blobStore = bs
		logger.Info("blob archiving enabled", "endpoint", cfg.BlobEndpoint(), "bucket", cfg.BlobBucket())
	} else {
		bs, err := blob.NewLocalStore(cfg.VideosDir(), logger)
		if err != nil {
			return fmt.Errorf("failed to set up local blob store: %w", err)
		}
		blobStore = bs
	}

	apiServer := api.NewServer(api.ServerConfig{
		Port:           cfg.Port(),
		VideosDir:      cfg.VideosDir(),
		MaxUploadBytes: cfg.MaxEmbedSizeBytes(),
		Ingest:         ingestSvc,
		EmbedClient:    embedClient,
		AuthRepo:       authRepo,
		Blob:           blobStore,
		DB:             database,
		Capabilities:   caps,
		InstanceID:     instanceID,
		Logger:         logger,
		StartTime:      startTime,
		OnKeyValidated: embedClient.SetAPIKey,
	})

	go func() {
		if err := apiServer.Start(); err != nil {
			logger.Error("HTTP server error", "error", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	logger.Info("received shutdown signal", "signal", sig.String())

	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := apiServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("failed to shutdown HTTP server", "error", err)
	}

	logger.Info("shutdown complete")
	return nil
}
