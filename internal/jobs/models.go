package jobs

import (
	"errors"
	"time"

	"github.com/djsydney04/wrapshot/internal/scenes"
)

var (
	// ErrAlreadyRunning means the document already has a non-terminal job.
	ErrAlreadyRunning = errors.New("breakdown already running for document")
	// ErrNotFound means no row matched the requested id.
	ErrNotFound = errors.New("not found")
	// ErrNotActive means a guarded write found the job no longer in the
	// expected state, usually because the staleness sweep cancelled it.
	ErrNotActive = errors.New("job is not active")
)

// Status is the lifecycle state of a breakdown job.
type Status string

const (
	StatusPending    Status = "PENDING"
	StatusInProgress Status = "IN_PROGRESS"
	StatusComplete   Status = "COMPLETE"
	StatusFailed     Status = "FAILED"
	StatusCancelled  Status = "CANCELLED"
)

// Terminal reports whether no further transition is allowed.
func (s Status) Terminal() bool {
	switch s {
	case StatusComplete, StatusFailed, StatusCancelled:
		return true
	}
	return false
}

// Job is the persisted record of one breakdown run.
type Job struct {
	ID              string     `json:"id"`
	DocumentID      string     `json:"document_id"`
	Status          Status     `json:"status"`
	ErrorMessage    string     `json:"error_message,omitempty"`
	TotalChunks     int        `json:"total_chunks"`
	ChunksProcessed int        `json:"chunks_processed"`
	ChunksFailed    int        `json:"chunks_failed"`
	SceneCount      int        `json:"scene_count"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
	StartedAt       *time.Time `json:"started_at,omitempty"`
	FinishedAt      *time.Time `json:"finished_at,omitempty"`
}

// Progress is the per-chunk counter snapshot written while a job runs.
type Progress struct {
	TotalChunks     int
	ChunksProcessed int
	ChunksFailed    int
}

// Breakdown is the latest completed result for a document.
type Breakdown struct {
	DocumentID string        `json:"document_id"`
	JobID      string        `json:"job_id"`
	Result     scenes.Result `json:"result"`
	UpdatedAt  time.Time     `json:"updated_at"`
}
