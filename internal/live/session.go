// Package live drives per-session live capture: an append-only raw audio
// buffer fed by the client, with throttled background transcription passes
// over the accumulated audio and one forced final pass on completion.
package live

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/terapio/session-transcription/internal/types"
)

// DefaultThrottleInterval is the minimum wall-clock time between two
// background transcription passes for the same session.
const DefaultThrottleInterval = 4 * time.Second

// Listener statuses pushed to the remote client.
const (
	StatusStarted   = "started"
	StatusRecording = "recording"
	StatusStopping  = "stopping"
	StatusError     = "error"
)

// Listener receives status events and partial/final results for one
// session. Background pass failures arrive as StatusError and never
// terminate the session.
type Listener interface {
	OnStatus(status, message string)
	OnUpdate(result *types.TranscriptionResult)
}

// Normalizer is the slice of the format normalizer the session needs.
type Normalizer interface {
	Normalize(inputPath, declaredType string) (path string, isTemp bool, err error)
}

// Transcriber is the slice of the recognition adapter the session needs.
type Transcriber interface {
	Transcribe(ctx context.Context, wavPath string) (*types.TranscriptionResult, error)
}

// Session owns one live capture. The raw buffer file is written only by
// AppendAudio and read only by the single in-flight transcription pass;
// the in-flight semaphore is the sole synchronization between passes.
type Session struct {
	id          string
	format      string // declared container of incoming chunks
	rawPath     string
	normalizer  Normalizer
	transcriber Transcriber
	listener    Listener
	throttle    time.Duration
	log         *logrus.Entry

	ctx    context.Context
	cancel context.CancelFunc

	inFlight chan struct{} // capacity 1, the "transcription in progress" flag

	writeMu sync.Mutex
	rawFile *os.File

	mu          sync.Mutex
	lastAttempt time.Time
	latest      *types.TranscriptionResult
	finished    bool

	disposeOnce sync.Once
}

// NewSession allocates the session's private raw-audio file in tempDir and
// notifies the listener that capture has started. format declares the
// container of the chunks the client will append (default wav).
func NewSession(id, format, tempDir string, n Normalizer, t Transcriber, l Listener, throttle time.Duration) (*Session, error) {
	if format == "" {
		format = "wav"
	}
	if throttle <= 0 {
		throttle = DefaultThrottleInterval
	}

	rawPath := filepath.Join(tempDir, fmt.Sprintf("live_%s.raw", id))
	rawFile, err := os.OpenFile(rawPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("allocate session buffer: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())

	s := &Session{
		id:          id,
		format:      format,
		rawPath:     rawPath,
		rawFile:     rawFile,
		normalizer:  n,
		transcriber: t,
		listener:    l,
		throttle:    throttle,
		log:         logrus.WithField("session", id),
		ctx:         ctx,
		cancel:      cancel,
		inFlight:    make(chan struct{}, 1),
	}

	s.listener.OnStatus(StatusStarted, "")
	return s, nil
}

// AppendAudio appends a chunk to the raw buffer and flushes it, then
// launches a throttled background pass over the whole buffer when the
// interval has elapsed and no pass is in flight. A set cancellation signal
// drops the chunk silently. If a pass is already running the update is
// skipped, not queued.
func (s *Session) AppendAudio(ctx context.Context, chunk []byte) error {
	if ctx.Err() != nil || s.ctx.Err() != nil {
		return nil
	}

	s.writeMu.Lock()
	if s.rawFile == nil {
		s.writeMu.Unlock()
		return nil
	}
	_, err := s.rawFile.Write(chunk)
	if err == nil {
		err = s.rawFile.Sync()
	}
	s.writeMu.Unlock()
	if err != nil {
		return fmt.Errorf("append audio: %w", err)
	}

	s.mu.Lock()
	due := time.Since(s.lastAttempt) >= s.throttle && !s.finished
	s.mu.Unlock()
	if !due {
		return nil
	}

	select {
	case s.inFlight <- struct{}{}:
		go s.backgroundPass()
	default:
		// A pass is already running; this interval's update is skipped.
	}
	return nil
}

// Complete forces one final pass, waiting for any running pass to finish
// first so the result reflects the full buffer. Failures of the final pass
// propagate to the caller. The session is finished afterwards; calling
// Complete again returns the stored result without another pass.
func (s *Session) Complete(ctx context.Context) (*types.TranscriptionResult, error) {
	select {
	case s.inFlight <- struct{}{}:
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: %v", types.ErrCancelled, ctx.Err())
	case <-s.ctx.Done():
		return nil, fmt.Errorf("%w: session disposed", types.ErrCancelled)
	}
	defer func() { <-s.inFlight }()

	s.mu.Lock()
	if s.finished {
		latest := s.latest
		s.mu.Unlock()
		if latest == nil {
			return types.EmptyResult(), nil
		}
		return latest, nil
	}
	s.mu.Unlock()

	result, err := s.runPass(ctx)

	s.mu.Lock()
	s.finished = true
	s.mu.Unlock()

	if err != nil {
		return nil, err
	}
	return result, nil
}

// Latest returns the most recent transcription result, or an empty one if
// no pass has completed yet.
func (s *Session) Latest() *types.TranscriptionResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.latest == nil {
		return types.EmptyResult()
	}
	return s.latest
}

// Dispose tears the session down exactly once: cancels any in-flight pass,
// closes and deletes the raw buffer file. Safe to call concurrently with a
// running pass; the pass observes the cancelled context and its deferred
// cleanup still runs.
func (s *Session) Dispose() {
	s.disposeOnce.Do(func() {
		s.cancel()

		s.writeMu.Lock()
		if s.rawFile != nil {
			s.rawFile.Close()
			s.rawFile = nil
		}
		s.writeMu.Unlock()

		if err := os.Remove(s.rawPath); err != nil && !os.IsNotExist(err) {
			s.log.WithError(err).Warn("failed to delete session buffer")
		}
		s.log.Debug("session disposed")
	})
}

// backgroundPass runs one throttled pass. Failures are reported through
// the listener only; ingestion continues and a later interval will retry.
func (s *Session) backgroundPass() {
	defer func() { <-s.inFlight }()

	result, err := s.runPass(s.ctx)
	if err != nil {
		if s.ctx.Err() != nil {
			s.log.Debug("background pass aborted by dispose")
			return
		}
		s.log.WithError(err).Warn("background transcription pass failed")
		s.listener.OnStatus(StatusError, err.Error())
		return
	}
	s.listener.OnUpdate(result)
}

// runPass executes one normalization+transcription pass over the entire
// accumulated buffer. Callers must hold the in-flight flag. The attempt's
// temporary WAV file is always deleted, whether the attempt succeeded or
// failed, and the last-attempt timestamp always moves forward.
func (s *Session) runPass(ctx context.Context) (*types.TranscriptionResult, error) {
	defer func() {
		s.mu.Lock()
		s.lastAttempt = time.Now()
		s.mu.Unlock()
	}()

	info, err := os.Stat(s.rawPath)
	if err != nil {
		if s.ctx.Err() != nil {
			return nil, fmt.Errorf("%w: session disposed", types.ErrCancelled)
		}
		return nil, fmt.Errorf("read session buffer: %w", err)
	}
	if info.Size() == 0 {
		// Nothing captured yet; skip the adapter entirely.
		result := types.EmptyResult()
		s.storeLatest(result)
		return result, nil
	}

	wavPath, isTemp, err := s.normalizer.Normalize(s.rawPath, s.format)
	if err != nil {
		return nil, err
	}
	if isTemp {
		defer os.Remove(wavPath)
	}

	result, err := s.transcriber.Transcribe(ctx, wavPath)
	if err != nil {
		return nil, err
	}

	s.storeLatest(result)
	return result, nil
}

func (s *Session) storeLatest(result *types.TranscriptionResult) {
	s.mu.Lock()
	s.latest = result
	s.mu.Unlock()
}
