package types

import (
	"errors"
	"sort"
	"time"
)

// Job status constants
const (
	StatusQueued     = "QUEUED"
	StatusProcessing = "PROCESSING"
	StatusCompleted  = "COMPLETED"
	StatusFailed     = "FAILED"
)

// Source type constants
const (
	SourceUpload = "upload"
	SourceVideo  = "video"
	SourceWatch  = "watch"
	SourceLive   = "live"
)

// Error kinds surfaced by the pipeline. Causes are attached with
// fmt.Errorf("...: %w", ...) and checked with errors.Is.
var (
	ErrUnsupportedFormat = errors.New("unsupported audio format")
	ErrTranscodeFailed   = errors.New("transcode failed")
	ErrRecognitionFailed = errors.New("recognition failed")
	ErrCancelled         = errors.New("operation cancelled")
)

// Segment is a single speaker-attributed utterance. The speaker tag is
// assigned by the recognition service per call and is not a stable identity
// across calls. Segments are never mutated after creation.
type Segment struct {
	SpeakerTag string        `json:"speaker_tag"`
	Start      time.Duration `json:"start"`
	End        time.Duration `json:"end"`
	Text       string        `json:"text"`
}

// TranscriptionResult is the output of one transcription attempt. Transcript
// holds the utterances in recognition order, one per line; Segments are
// sorted ascending by start offset. Every attempt produces a fresh result
// that supersedes the previous one.
type TranscriptionResult struct {
	JobID       string        `json:"job_id,omitempty"`
	Transcript  string        `json:"transcript"`
	Segments    []Segment     `json:"segments"`
	Language    string        `json:"language,omitempty"`
	Duration    time.Duration `json:"duration,omitempty"`
	WordCount   int           `json:"word_count,omitempty"`
	ProcessedAt time.Time     `json:"processed_at,omitempty"`
	LocalPath   string        `json:"local_path,omitempty"`
}

// EmptyResult returns a result with no transcript and no segments, used when
// a live session completes without ever receiving audio.
func EmptyResult() *TranscriptionResult {
	return &TranscriptionResult{Segments: []Segment{}}
}

// SortSegments orders segments ascending by start offset, keeping the
// original order for equal offsets.
func SortSegments(segments []Segment) {
	sort.SliceStable(segments, func(i, j int) bool {
		return segments[i].Start < segments[j].Start
	})
}
