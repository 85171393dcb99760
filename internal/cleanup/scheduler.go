// Package cleanup sweeps the temp directory for leftover intermediate
// files: stale live-session buffers, half-normalized WAVs from crashed
// attempts.
package cleanup

import (
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"
)

// Scheduler deletes temp files older than a maximum age on an interval.
type Scheduler struct {
	tempDir  string
	interval time.Duration
	maxAge   time.Duration
	stopChan chan struct{}
	log      *logrus.Entry
}

// NewScheduler creates a cleanup scheduler for tempDir.
func NewScheduler(tempDir string, interval, maxAge time.Duration) *Scheduler {
	return &Scheduler{
		tempDir:  tempDir,
		interval: interval,
		maxAge:   maxAge,
		stopChan: make(chan struct{}),
		log:      logrus.WithField("component", "cleanup"),
	}
}

// Start runs one sweep immediately, then sweeps on the configured interval
// until Stop is called.
func (s *Scheduler) Start() {
	s.sweep()

	ticker := time.NewTicker(s.interval)
	go func() {
		for {
			select {
			case <-ticker.C:
				s.sweep()
			case <-s.stopChan:
				ticker.Stop()
				return
			}
		}
	}()

	s.log.WithFields(logrus.Fields{
		"interval": s.interval,
		"max_age":  s.maxAge,
	}).Info("cleanup scheduler started")
}

// Stop stops the scheduler.
func (s *Scheduler) Stop() {
	close(s.stopChan)
	s.log.Info("cleanup scheduler stopped")
}

// sweep removes files in the temp dir older than maxAge.
func (s *Scheduler) sweep() {
	now := time.Now()

	var deletedCount int
	var deletedSize int64

	err := filepath.WalkDir(s.tempDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return nil
		}

		if age := now.Sub(info.ModTime()); age > s.maxAge {
			if err := os.Remove(path); err != nil {
				s.log.WithError(err).WithField("path", path).Warn("failed to delete stale file")
			} else {
				deletedCount++
				deletedSize += info.Size()
			}
		}
		return nil
	})
	if err != nil {
		s.log.WithError(err).Warn("temp sweep failed")
	}

	if deletedCount > 0 {
		s.log.WithFields(logrus.Fields{
			"files":    deletedCount,
			"freed_kb": deletedSize / 1024,
		}).Info("temp sweep complete")
	}
}

// EnsureTempDirExists creates the temp directory if it does not exist.
func EnsureTempDirExists(tempDir string) error {
	return os.MkdirAll(tempDir, 0755)
}
