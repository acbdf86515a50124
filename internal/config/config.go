// Package config provides configuration management for the SAGE backend.
// Configuration is loaded from environment variables with sensible defaults.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

const (
	// Default values
	DefaultPort     = 8000
	DefaultLogLevel = "info"
	DefaultDataDir  = ".sage"

	// Environment variable names
	EnvPort     = "SAGE_PORT"
	EnvLogLevel = "SAGE_LOG_LEVEL"
	EnvDataDir  = "SAGE_DATA_DIR"

	// Embedding service environment variable names
	EnvEmbedBaseURL = "SAGE_EMBED_BASE_URL"
	EnvEmbedModel   = "SAGE_EMBED_MODEL"

	// Blob store environment variable names
	EnvBlobEndpoint  = "SAGE_BLOB_ENDPOINT"
	EnvBlobBucket    = "SAGE_BLOB_BUCKET"
	EnvBlobAccessKey = "SAGE_BLOB_ACCESS_KEY"
	EnvBlobSecretKey = "SAGE_BLOB_SECRET_KEY"
	EnvBlobUseSSL    = "SAGE_BLOB_USE_SSL"

	// Tunables
	EnvMaxEmbedDuration = "SAGE_MAX_EMBED_DURATION_SEC"
	EnvMaxEmbedSize     = "SAGE_MAX_EMBED_SIZE_BYTES"
	EnvPollTimeout      = "SAGE_POLL_TIMEOUT_SEC"

	// Database filename
	DBFilename = "sage.db"

	// Embedding service defaults
	DefaultEmbedBaseURL = "https://api.twelvelabs.io/v1.3"
	DefaultEmbedModel   = "Marengo-retrieval-2.7"

	// Ingestion defaults. A source longer than the duration limit or larger
	// than the size limit is split into parts of DefaultSplitSegmentSec,
	// which stays safely below the duration limit.
	DefaultMaxEmbedDurationSec = 7200.0
	DefaultMaxEmbedSizeBytes   = 2 * 1024 * 1024 * 1024
	DefaultSplitSegmentSec     = 3600
	DefaultClipLengthSec       = 2
	DefaultPollIntervalSec     = 5
	DefaultPollTimeoutSec      = 7200

	// Result validation defaults. Coverage is only enforced for sources whose
	// probed duration exceeds the long-video threshold.
	DefaultCoverageFraction = 0.8
	DefaultLongVideoSec     = 60.0
)

// Config defines the application configuration interface
type Config interface {
	Port() int
	LogLevel() string
	DataDir() string
	DBPath() string
	VideosDir() string
	ScratchDir() string
	EmbedBaseURL() string
	EmbedModel() string
	MaxEmbedDurationSec() float64
	MaxEmbedSizeBytes() int64
	SplitSegmentSec() int
	ClipLengthSec() int
	PollInterval() time.Duration
	PollTimeout() time.Duration
	CoverageFraction() float64
	LongVideoSec() float64
	BlobEndpoint() string
	BlobBucket() string
	BlobAccessKey() string
	BlobSecretKey() string
	BlobUseSSL() bool
	BlobEnabled() bool
}

// EnvConfig reads configuration from environment variables
type EnvConfig struct {
	port     int
	logLevel string
	dataDir  string

	embedBaseURL string
	embedModel   string

	maxEmbedDurationSec float64
	maxEmbedSizeBytes   int64
	pollTimeoutSec      int

	blobEndpoint  string
	blobBucket    string
	blobAccessKey string
	blobSecretKey string
	blobUseSSL    bool
}

// New creates a new EnvConfig with defaults and environment variable overrides
func New() (*EnvConfig, error) {
	cfg := &EnvConfig{
		port:                DefaultPort,
		logLevel:            DefaultLogLevel,
		dataDir:             defaultDataDir(),
		embedBaseURL:        DefaultEmbedBaseURL,
		embedModel:          DefaultEmbedModel,
		maxEmbedDurationSec: DefaultMaxEmbedDurationSec,
		maxEmbedSizeBytes:   DefaultMaxEmbedSizeBytes,
		pollTimeoutSec:      DefaultPollTimeoutSec,
	}

	// Override port from environment
	if p := os.Getenv(EnvPort); p != "" {
		port, err := strconv.Atoi(p)
		if err != nil {
			return nil, fmt.Errorf("invalid %s: %w", EnvPort, err)
		}
		if port < 1 || port > 65535 {
			return nil, fmt.Errorf("invalid %s: port must be between 1 and 65535", EnvPort)
		}
		cfg.port = port
	}

	// Override log level from environment
	if ll := os.Getenv(EnvLogLevel); ll != "" {
		cfg.logLevel = ll
	}

	// Override data directory from environment
	if dd := os.Getenv(EnvDataDir); dd != "" {
		cfg.dataDir = dd
	}

	if u := os.Getenv(EnvEmbedBaseURL); u != "" {
		cfg.embedBaseURL = u
	}
	if m := os.Getenv(EnvEmbedModel); m != "" {
		cfg.embedModel = m
	}

	if d := os.Getenv(EnvMaxEmbedDuration); d != "" {
		sec, err := strconv.ParseFloat(d, 64)
		if err != nil || sec <= 0 {
			return nil, fmt.Errorf("invalid %s: must be a positive number of seconds", EnvMaxEmbedDuration)
		}
		cfg.maxEmbedDurationSec = sec
	}
	if s := os.Getenv(EnvMaxEmbedSize); s != "" {
		bytes, err := strconv.ParseInt(s, 10, 64)
		if err != nil || bytes <= 0 {
			return nil, fmt.Errorf("invalid %s: must be a positive byte count", EnvMaxEmbedSize)
		}
		cfg.maxEmbedSizeBytes = bytes
	}
	if t := os.Getenv(EnvPollTimeout); t != "" {
		sec, err := strconv.Atoi(t)
		if err != nil || sec < 0 {
			return nil, fmt.Errorf("invalid %s: must be a non-negative number of seconds", EnvPollTimeout)
		}
		cfg.pollTimeoutSec = sec
	}

	cfg.blobEndpoint = os.Getenv(EnvBlobEndpoint)
	cfg.blobBucket = os.Getenv(EnvBlobBucket)
	cfg.blobAccessKey = os.Getenv(EnvBlobAccessKey)
	cfg.blobSecretKey = os.Getenv(EnvBlobSecretKey)
	cfg.blobUseSSL = os.Getenv(EnvBlobUseSSL) == "true"

	return cfg, nil
}

// Port returns the HTTP server port
func (c *EnvConfig) Port() int {
	return c.port
}

// LogLevel returns the log level (debug, info, warn, error)
func (c *EnvConfig) LogLevel() string {
	return c.logLevel
}

// DataDir returns the data directory path
func (c *EnvConfig) DataDir() string {
	return c.dataDir
}

// DBPath returns the full path to the SQLite database file
func (c *EnvConfig) DBPath() string {
	return filepath.Join(c.dataDir, DBFilename)
}

// VideosDir returns the directory where ingested source videos are kept
func (c *EnvConfig) VideosDir() string {
	return filepath.Join(c.dataDir, "videos")
}

// ScratchDir returns the directory used for split parts and temp downloads
func (c *EnvConfig) ScratchDir() string {
	return filepath.Join(c.dataDir, "scratch")
}

func (c *EnvConfig) EmbedBaseURL() string {
	return c.embedBaseURL
}

func (c *EnvConfig) EmbedModel() string {
	return c.embedModel
}

func (c *EnvConfig) MaxEmbedDurationSec() float64 {
	return c.maxEmbedDurationSec
}

func (c *EnvConfig) MaxEmbedSizeBytes() int64 {
	return c.maxEmbedSizeBytes
}

func (c *EnvConfig) SplitSegmentSec() int {
	return DefaultSplitSegmentSec
}

func (c *EnvConfig) ClipLengthSec() int {
	return DefaultClipLengthSec
}

func (c *EnvConfig) PollInterval() time.Duration {
	return DefaultPollIntervalSec * time.Second
}

// PollTimeout returns the maximum time one ingestion may spend polling.
// Zero disables the timeout.
func (c *EnvConfig) PollTimeout() time.Duration {
	return time.Duration(c.pollTimeoutSec) * time.Second
}

func (c *EnvConfig) CoverageFraction() float64 {
	return DefaultCoverageFraction
}

func (c *EnvConfig) LongVideoSec() float64 {
	return DefaultLongVideoSec
}

func (c *EnvConfig) BlobEndpoint() string {
	return c.blobEndpoint
}

func (c *EnvConfig) BlobBucket() string {
	return c.blobBucket
}

func (c *EnvConfig) BlobAccessKey() string {
	return c.blobAccessKey
}

func (c *EnvConfig) BlobSecretKey() string {
	return c.blobSecretKey
}

func (c *EnvConfig) BlobUseSSL() bool {
	return c.blobUseSSL
}

// BlobEnabled reports whether a remote blob store is configured.
func (c *EnvConfig) BlobEnabled() bool {
	return c.blobEndpoint != "" && c.blobBucket != ""
}

// defaultDataDir returns the default data directory path
func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		// Fallback to current directory if home is not available
		return DefaultDataDir
	}
	return filepath.Join(home, DefaultDataDir)
}

// Version information (set at build time via ldflags)
var (
	Version   = "2.0.0"
	BuildTime = "unknown"
	GitCommit = "unknown"
)
