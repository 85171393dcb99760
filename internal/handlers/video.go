package handlers

import (
	"fmt"
	"path/filepath"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/terapio/session-transcription/internal/audio"
	"github.com/terapio/session-transcription/internal/queue"
	"github.com/terapio/session-transcription/internal/types"
)

// VideoHandler accepts recorded session video; the audio track is
// extracted and transcribed like any other batch submission.
type VideoHandler struct {
	workerPool *queue.WorkerPool
	tempDir    string
	maxSizeMB  int
	log        *logrus.Entry
}

// NewVideoHandler creates a video submission handler.
func NewVideoHandler(workerPool *queue.WorkerPool, tempDir string, maxSizeMB int) *VideoHandler {
	return &VideoHandler{
		workerPool: workerPool,
		tempDir:    tempDir,
		maxSizeMB:  maxSizeMB,
		log:        logrus.WithField("component", "video"),
	}
}

// Handle processes the multipart video upload and enqueues a batch job.
func (h *VideoHandler) Handle(c *fiber.Ctx) error {
	file, err := c.FormFile("file")
	if err != nil {
		return c.Status(400).JSON(fiber.Map{
			"error": "No file uploaded",
			"code":  "ERR_NO_FILE",
		})
	}

	sessionName := c.FormValue("name")
	if sessionName == "" {
		sessionName = "untitled"
	}

	maxSize := int64(h.maxSizeMB) * 1024 * 1024
	if file.Size > maxSize {
		return c.Status(400).JSON(fiber.Map{
			"error": fmt.Sprintf("File too large (max %dMB)", h.maxSizeMB),
			"code":  "ERR_FILE_TOO_LARGE",
		})
	}

	if !audio.Supported(file.Filename) {
		return c.Status(400).JSON(fiber.Map{
			"error": "Unsupported video format",
			"code":  "ERR_INVALID_FORMAT",
		})
	}

	jobID := uuid.New().String()
	tempPath := filepath.Join(h.tempDir, fmt.Sprintf("%s%s", jobID, filepath.Ext(file.Filename)))

	if err := c.SaveFile(file, tempPath); err != nil {
		h.log.WithError(err).Error("failed to save uploaded video")
		return c.Status(500).JSON(fiber.Map{
			"error": "Failed to save file",
			"code":  "ERR_SAVE_FAILED",
		})
	}

	contentType := file.Header.Get("Content-Type")
	job := queue.NewJob(jobID, sessionName, types.SourceVideo, tempPath, contentType)
	h.workerPool.EnqueueJob(job)

	return c.JSON(fiber.Map{
		"job_id":  jobID,
		"status":  "queued",
		"message": "Video uploaded, audio extraction and transcription started",
	})
}
