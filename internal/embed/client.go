package embed

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"
)

// RequestError represents an error response from the embedding service.
type RequestError struct {
	StatusCode int
	Body       string
}

func (e *RequestError) Error() string {
	return fmt.Sprintf("embedding service: HTTP %d: %s", e.StatusCode, e.Body)
}

// IsRetryable returns true for server errors (5xx) and network errors.
// Client errors (4xx) are considered permanent.
func (e *RequestError) IsRetryable() bool {
	return e.StatusCode >= 500
}

// Client is the contract for the remote embedding service. Implementations
// must be safe for concurrent use.
type Client interface {
	// CreateTask uploads one media part and returns the task id.
	CreateTask(ctx context.Context, videoPath string) (string, error)

	// GetTask retrieves the current state of a task, including segments
	// once the task is ready.
	GetTask(ctx context.Context, taskID string) (*TaskStatus, error)

	// ValidateKey checks an API key against the service without side
	// effects. A nil error means the key is accepted.
	ValidateKey(ctx context.Context, apiKey string) error
}

// HTTPClient talks to the embedding service's REST API.
type HTTPClient struct {
	baseURL    string
	model      string
	clipLength int
	httpClient *http.Client
	logger     *slog.Logger

	mu     sync.RWMutex
	apiKey string
}

func NewHTTPClient(baseURL, apiKey, model string, clipLength int, logger *slog.Logger) *HTTPClient {
	return &HTTPClient{
		baseURL:    baseURL,
		apiKey:     apiKey,
		model:      model,
		clipLength: clipLength,
		httpClient: &http.Client{
			// Uploads of multi-GB parts take a while; polling calls are
			// bounded by the caller's context instead.
			Timeout: 30 * time.Minute,
		},
		logger: logger,
	}
}

// SetAPIKey replaces the key used for subsequent requests.
func (c *HTTPClient) SetAPIKey(key string) {
	c.mu.Lock()
	c.apiKey = key
	c.mu.Unlock()
}

func (c *HTTPClient) key() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.apiKey
}

func (c *HTTPClient) CreateTask(ctx context.Context, videoPath string) (string, error) {
	file, err := os.Open(videoPath)
	if err != nil {
		return "", fmt.Errorf("open part: %w", err)
	}
	defer file.Close()

	pr, pw := io.Pipe()
	form := multipart.NewWriter(pw)

	go func() {
		var err error
		defer func() { pw.CloseWithError(err) }()

		if err = form.WriteField("model_name", c.model); err != nil {
			return
		}
		if err = form.WriteField("video_clip_length", strconv.Itoa(c.clipLength)); err != nil {
			return
		}
		if err = form.WriteField("video_embedding_scope", "clip"); err != nil {
			return
		}

		var part io.Writer
		part, err = form.CreateFormFile("video_file", filepath.Base(videoPath))
		if err != nil {
			return
		}
		if _, err = io.Copy(part, file); err != nil {
			return
		}
		err = form.Close()
	}()

	url := fmt.Sprintf("%s/embed/tasks", c.baseURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, pr)
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", form.FormDataContentType())
	req.Header.Set("x-api-key", c.key())

	c.logger.Info("creating embedding task",
		"url", url,
		"file", filepath.Base(videoPath),
		"model", c.model,
		"clip_length", c.clipLength,
	)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("http request failed: %w", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", &RequestError{StatusCode: resp.StatusCode, Body: string(body)}
	}

	var created createTaskResponse
	if err := json.Unmarshal(body, &created); err != nil {
		return "", fmt.Errorf("parse create response: %w", err)
	}
	if created.ID == "" {
		return "", fmt.Errorf("embedding service returned no task id")
	}

	c.logger.Info("embedding task created", "task_id", created.ID)
	return created.ID, nil
}

func (c *HTTPClient) GetTask(ctx context.Context, taskID string) (*TaskStatus, error) {
	url := fmt.Sprintf("%s/embed/tasks/%s?embedding_option=visual-text", c.baseURL, taskID)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("x-api-key", c.key())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request failed: %w", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<20))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &RequestError{StatusCode: resp.StatusCode, Body: string(body)}
	}

	var retrieved retrieveTaskResponse
	if err := json.Unmarshal(body, &retrieved); err != nil {
		return nil, fmt.Errorf("parse task response: %w", err)
	}

	status := &TaskStatus{
		ID:           retrieved.ID,
		Status:       retrieved.Status,
		ErrorMessage: retrieved.ErrorMessage,
	}
	if status.ErrorMessage == "" {
		status.ErrorMessage = retrieved.Message
	}
	if retrieved.VideoEmbedding != nil {
		status.Segments = retrieved.VideoEmbedding.Segments
	}

	return status, nil
}

func (c *HTTPClient) ValidateKey(ctx context.Context, apiKey string) error {
	url := fmt.Sprintf("%s/embed/tasks?page_limit=1", c.baseURL)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("x-api-key", apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("http request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &RequestError{StatusCode: resp.StatusCode, Body: string(body)}
	}

	return nil
}
