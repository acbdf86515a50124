package ingest

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned for unknown embedding identifiers.
	ErrNotFound = errors.New("embedding not found")

	// ErrNotCancellable is returned when cancelling an already-terminal
	// record. Cancellation is idempotent in effect but reported.
	ErrNotCancellable = errors.New("embedding is not cancellable")

	// ErrPollTimeout is returned when remote tasks did not all reach a
	// terminal state within the configured budget.
	ErrPollTimeout = errors.New("timed out waiting for embedding tasks")
)

// SubmissionError means a remote embedding task could not be created for a
// part. The whole ingestion is aborted; partial results are never reported
// as success.
type SubmissionError struct {
	PartIndex int
	Err       error
}

func (e *SubmissionError) Error() string {
	return fmt.Sprintf("failed to submit part %d for embedding: %v", e.PartIndex, e.Err)
}

func (e *SubmissionError) Unwrap() error {
	return e.Err
}

// RemoteTaskError means the embedding service reported a task as failed.
type RemoteTaskError struct {
	TaskID  string
	Message string
}

func (e *RemoteTaskError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("embedding task %s failed", e.TaskID)
	}
	return fmt.Sprintf("embedding task %s failed: %s", e.TaskID, e.Message)
}

// ValidationError means the remote service reported success but the
// aggregated result failed sanity checks (e.g. insufficient coverage of the
// probed duration).
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return "embedding result validation failed: " + e.Reason
}

// NotReadyError means a comparison was requested against a record that is
// not completed.
type NotReadyError struct {
	ID     string
	Status string
}

func (e *NotReadyError) Error() string {
	return fmt.Sprintf("embedding %s is not ready: status is %q", e.ID, e.Status)
}
