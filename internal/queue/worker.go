package queue

import (
	"context"
	"fmt"
	"os"
	"runtime/debug"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/terapio/session-transcription/internal/audio"
	"github.com/terapio/session-transcription/internal/recognition"
	"github.com/terapio/session-transcription/internal/storage"
	"github.com/terapio/session-transcription/internal/types"
)

// WorkerPool processes batch transcription jobs: normalize, transcribe with
// speaker grouping, save the transcript locally and record metadata.
type WorkerPool struct {
	jobQueue     chan *Job
	workerCount  int
	normalizer   *audio.Normalizer
	transcriber  *recognition.Transcriber
	localStorage *storage.LocalStorage
	db           *storage.MetadataDB
	log          *logrus.Entry
}

// NewWorkerPool creates a pool with the given number of workers.
func NewWorkerPool(
	workerCount int,
	normalizer *audio.Normalizer,
	transcriber *recognition.Transcriber,
	localStorage *storage.LocalStorage,
	db *storage.MetadataDB,
) *WorkerPool {
	return &WorkerPool{
		jobQueue:     make(chan *Job, 100),
		workerCount:  workerCount,
		normalizer:   normalizer,
		transcriber:  transcriber,
		localStorage: localStorage,
		db:           db,
		log:          logrus.WithField("component", "queue"),
	}
}

// Start launches the workers.
func (wp *WorkerPool) Start() {
	wp.log.WithField("workers", wp.workerCount).Info("starting worker pool")
	for i := 0; i < wp.workerCount; i++ {
		go wp.worker(i)
	}
}

// EnqueueJob adds a job to the queue.
func (wp *WorkerPool) EnqueueJob(job *Job) {
	job.Status = types.StatusQueued
	job.CreatedAt = time.Now()
	wp.jobQueue <- job
	wp.log.WithFields(logrus.Fields{
		"job":    job.ID,
		"source": job.SourceType,
		"name":   job.SessionName,
	}).Info("job enqueued")
}

func (wp *WorkerPool) worker(id int) {
	log := wp.log.WithField("worker", id)
	log.Debug("worker started")

	for job := range wp.jobQueue {
		func() {
			defer func() {
				if r := recover(); r != nil {
					log.WithField("job", job.ID).Errorf("panic processing job: %v\n%s", r, debug.Stack())
					job.Status = types.StatusFailed
					job.Error = fmt.Errorf("worker panic: %v", r)
					wp.cleanupTempFile(job.FilePath)
				}
			}()
			wp.processJob(log, job)
		}()
	}
}

// processJob runs the full batch pipeline for one job. The input file and
// any intermediate WAV are removed no matter which path fails.
func (wp *WorkerPool) processJob(log *logrus.Entry, job *Job) {
	log = log.WithField("job", job.ID)
	log.Info("processing job")
	job.Status = types.StatusProcessing
	defer wp.cleanupTempFile(job.FilePath)

	normalizedPath, isTemp, err := wp.normalizer.Normalize(job.FilePath, job.ContentType)
	if err != nil {
		log.WithError(err).Error("audio normalization failed")
		wp.fail(job, fmt.Errorf("audio normalization failed: %w", err))
		return
	}
	if isTemp {
		defer wp.cleanupTempFile(normalizedPath)
	}

	result, err := wp.transcriber.TranscribeBatch(context.Background(), normalizedPath)
	if err != nil {
		log.WithError(err).Error("transcription failed")
		wp.fail(job, fmt.Errorf("transcription failed: %w", err))
		return
	}

	result.JobID = job.ID
	result.WordCount = len(strings.Fields(result.Transcript))
	result.ProcessedAt = time.Now()

	localPath, err := wp.localStorage.SaveTranscript(job.SessionName, result)
	if err != nil {
		log.WithError(err).Error("saving transcript failed")
		wp.fail(job, fmt.Errorf("saving transcript failed: %w", err))
		return
	}
	result.LocalPath = localPath

	if wp.db != nil {
		if err := wp.db.SaveRecording(job.ID, job.SessionName, job.SourceType,
			localPath, result.Duration.Seconds(), result.WordCount); err != nil {
			log.WithError(err).Warn("saving metadata failed")
		}
	}

	job.Result = result
	job.Status = types.StatusCompleted
	log.WithField("path", localPath).Info("job completed")
}

func (wp *WorkerPool) fail(job *Job, err error) {
	job.Status = types.StatusFailed
	job.Error = err
}

func (wp *WorkerPool) cleanupTempFile(filePath string) {
	if filePath == "" {
		return
	}
	if err := os.Remove(filePath); err != nil && !os.IsNotExist(err) {
		wp.log.WithError(err).WithField("path", filePath).Warn("failed to clean up temp file")
	}
}
