// Package watch monitors an inbox folder for recordings dropped by desktop
// recorder tools and enqueues them for batch transcription.
package watch

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/terapio/session-transcription/internal/audio"
	"github.com/terapio/session-transcription/internal/queue"
	"github.com/terapio/session-transcription/internal/types"
)

// Monitor watches one folder and enqueues a batch job per new supported
// file. Events are debounced so a file still being copied in is only
// picked up after writes settle.
type Monitor struct {
	watcher      *fsnotify.Watcher
	folderPath   string
	pool         *queue.WorkerPool
	debounceTime time.Duration

	mu           sync.Mutex
	pendingFiles map[string]*time.Timer

	stopChan chan struct{}
	log      *logrus.Entry
}

// NewMonitor creates a monitor for folderPath feeding the worker pool.
func NewMonitor(folderPath string, pool *queue.WorkerPool, debounceTime time.Duration) (*Monitor, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create folder watcher: %w", err)
	}

	return &Monitor{
		watcher:      watcher,
		folderPath:   folderPath,
		pool:         pool,
		debounceTime: debounceTime,
		pendingFiles: make(map[string]*time.Timer),
		stopChan:     make(chan struct{}),
		log:          logrus.WithField("component", "watch"),
	}, nil
}

// Start begins watching the folder, creating it if needed.
func (m *Monitor) Start() error {
	if err := os.MkdirAll(m.folderPath, 0755); err != nil {
		return fmt.Errorf("create watch folder: %w", err)
	}
	if err := m.watcher.Add(m.folderPath); err != nil {
		return fmt.Errorf("watch folder: %w", err)
	}

	go m.watchLoop()

	m.log.WithField("folder", m.folderPath).Info("watching inbox folder")
	return nil
}

// Stop stops the monitor and cancels pending debounce timers.
func (m *Monitor) Stop() {
	close(m.stopChan)
	m.watcher.Close()

	m.mu.Lock()
	defer m.mu.Unlock()
	for _, timer := range m.pendingFiles {
		timer.Stop()
	}
}

func (m *Monitor) watchLoop() {
	for {
		select {
		case <-m.stopChan:
			return
		case event, ok := <-m.watcher.Events:
			if !ok {
				return
			}
			m.handleEvent(event)
		case err, ok := <-m.watcher.Errors:
			if !ok {
				return
			}
			m.log.WithError(err).Warn("folder watch error")
		}
	}
}

// handleEvent resets the debounce timer for created/written files; the
// timer firing means the file has been quiet long enough to enqueue.
func (m *Monitor) handleEvent(event fsnotify.Event) {
	if event.Op&(fsnotify.Create|fsnotify.Write) == 0 {
		return
	}
	if !audio.Supported(event.Name) {
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if timer, ok := m.pendingFiles[event.Name]; ok {
		timer.Stop()
	}
	path := event.Name
	m.pendingFiles[path] = time.AfterFunc(m.debounceTime, func() {
		m.mu.Lock()
		delete(m.pendingFiles, path)
		m.mu.Unlock()
		m.enqueue(path)
	})
}

func (m *Monitor) enqueue(path string) {
	if _, err := os.Stat(path); err != nil {
		return // removed before the debounce fired
	}

	name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	job := queue.NewJob(uuid.New().String(), name, types.SourceWatch, path, "")

	m.log.WithField("file", filepath.Base(path)).Info("picked up recording from inbox")
	m.pool.EnqueueJob(job)
}
