package queue

import (
	"time"

	"github.com/terapio/session-transcription/internal/types"
)

// Job is one batch transcription request moving through the worker pool.
type Job struct {
	ID          string
	SessionName string
	SourceType  string
	FilePath    string
	ContentType string
	Status      string
	Error       error
	Result      *types.TranscriptionResult
	CreatedAt   time.Time
}

// NewJob creates a queued job for the given source file.
func NewJob(id, sessionName, sourceType, filePath, contentType string) *Job {
	return &Job{
		ID:          id,
		SessionName: sessionName,
		SourceType:  sourceType,
		FilePath:    filePath,
		ContentType: contentType,
		Status:      types.StatusQueued,
		CreatedAt:   time.Now(),
	}
}
