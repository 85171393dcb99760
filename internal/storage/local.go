package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/terapio/session-transcription/internal/types"
)

// LocalStorage writes finished transcripts to the local filesystem under a
// dated directory layout.
type LocalStorage struct {
	outputDir string
}

// NewLocalStorage creates a local storage handler rooted at outputDir.
func NewLocalStorage(outputDir string) *LocalStorage {
	return &LocalStorage{outputDir: outputDir}
}

// SaveTranscript writes the transcript text plus a metadata JSON sidecar
// and returns the transcript path. Layout: outputs/2026/08/31/.
func (ls *LocalStorage) SaveTranscript(sessionName string, result *types.TranscriptionResult) (string, error) {
	now := time.Now()
	dateDir := filepath.Join(ls.outputDir,
		fmt.Sprintf("%d", now.Year()),
		fmt.Sprintf("%02d", now.Month()),
		fmt.Sprintf("%02d", now.Day()))

	if err := os.MkdirAll(dateDir, 0755); err != nil {
		return "", fmt.Errorf("create date directory: %w", err)
	}

	timestamp := now.Format("20060102_150405")
	baseFilename := fmt.Sprintf("%s_%s", timestamp, sanitizeFilename(sessionName))

	txtPath := filepath.Join(dateDir, baseFilename+".txt")
	metaPath := filepath.Join(dateDir, baseFilename+"_meta.json")

	if err := os.WriteFile(txtPath, []byte(result.Transcript), 0644); err != nil {
		return "", fmt.Errorf("save transcript: %w", err)
	}

	metadata := map[string]interface{}{
		"job_id":           result.JobID,
		"session_name":     sessionName,
		"duration_seconds": result.Duration.Seconds(),
		"word_count":       result.WordCount,
		"language":         result.Language,
		"created_at":       result.ProcessedAt,
		"segments":         result.Segments,
		"local_path":       txtPath,
	}

	metaJSON, err := json.MarshalIndent(metadata, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal metadata: %w", err)
	}
	if err := os.WriteFile(metaPath, metaJSON, 0644); err != nil {
		return "", fmt.Errorf("save metadata: %w", err)
	}

	return txtPath, nil
}

// sanitizeFilename strips path separators and characters that are invalid
// in filenames, and caps the length.
func sanitizeFilename(name string) string {
	result := filepath.Base(name)
	for _, c := range []string{":", "*", "?", "\"", "<", ">", "|"} {
		result = strings.ReplaceAll(result, c, "_")
	}
	if result == "." || result == string(filepath.Separator) || result == "" {
		result = "session"
	}
	if len(result) > 100 {
		result = result[:100]
	}
	return result
}
