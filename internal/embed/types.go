// Package embed is the client for the remote video-embedding service.
// One embedding task is created per submitted media part; the service
// returns fixed-width time segments, each carrying an embedding vector.
package embed

// Task statuses reported by the embedding service.
const (
	StatusProcessing = "processing"
	StatusReady      = "ready"
	StatusFailed     = "failed"
)

// Segment is one fixed-width time slice of the submitted part together with
// its embedding vector. Offsets are local to the part, not the whole source.
type Segment struct {
	StartSec  float64   `json:"start_offset_sec"`
	EndSec    float64   `json:"end_offset_sec"`
	Embedding []float32 `json:"embeddings_float"`
}

// TaskStatus is the state of one embedding task.
type TaskStatus struct {
	ID           string
	Status       string
	Segments     []Segment
	ErrorMessage string
}

// Terminal reports whether the task has finished, successfully or not.
func (s *TaskStatus) Terminal() bool {
	return s.Status == StatusReady || s.Status == StatusFailed
}

type createTaskResponse struct {
	ID string `json:"_id"`
}

type retrieveTaskResponse struct {
	ID             string          `json:"_id"`
	Status         string          `json:"status"`
	VideoEmbedding *videoEmbedding `json:"video_embedding,omitempty"`
	ErrorMessage   string          `json:"error_message,omitempty"`
	Message        string          `json:"message,omitempty"`
}

type videoEmbedding struct {
	Segments []Segment `json:"segments"`
}
