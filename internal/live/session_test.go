package live

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/terapio/session-transcription/internal/types"
)

// passthroughNormalizer hands the raw buffer straight to the transcriber.
type passthroughNormalizer struct{}

func (passthroughNormalizer) Normalize(inputPath, declaredType string) (string, bool, error) {
	return inputPath, false, nil
}

// tempFileNormalizer simulates an attempt-scoped intermediate WAV file.
type tempFileNormalizer struct {
	mu      sync.Mutex
	created []string
}

func (n *tempFileNormalizer) Normalize(inputPath, declaredType string) (string, bool, error) {
	out := filepath.Join(filepath.Dir(inputPath), fmt.Sprintf("norm_%s.wav", uuid.New().String()))
	if err := os.WriteFile(out, []byte("wav"), 0644); err != nil {
		return "", false, err
	}
	n.mu.Lock()
	n.created = append(n.created, out)
	n.mu.Unlock()
	return out, true, nil
}

type failingNormalizer struct{}

func (failingNormalizer) Normalize(inputPath, declaredType string) (string, bool, error) {
	return "", false, fmt.Errorf("%w: ffmpeg exploded", types.ErrTranscodeFailed)
}

// echoTranscriber echoes the byte count of the audio it was handed, so a
// result always reflects the buffer as of its own pass.
type echoTranscriber struct {
	calls         int32
	inFlight      int32
	maxConcurrent int32
	delay         time.Duration
	failFirst     int32
}

func (m *echoTranscriber) Transcribe(ctx context.Context, wavPath string) (*types.TranscriptionResult, error) {
	call := atomic.AddInt32(&m.calls, 1)

	cur := atomic.AddInt32(&m.inFlight, 1)
	defer atomic.AddInt32(&m.inFlight, -1)
	for {
		max := atomic.LoadInt32(&m.maxConcurrent)
		if cur <= max || atomic.CompareAndSwapInt32(&m.maxConcurrent, max, cur) {
			break
		}
	}

	if m.delay > 0 {
		select {
		case <-time.After(m.delay):
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: %v", types.ErrCancelled, ctx.Err())
		}
	}

	if call <= atomic.LoadInt32(&m.failFirst) {
		return nil, fmt.Errorf("%w: transient backend failure", types.ErrRecognitionFailed)
	}

	info, err := os.Stat(wavPath)
	if err != nil {
		return nil, err
	}
	text := fmt.Sprintf("bytes:%d", info.Size())
	return &types.TranscriptionResult{
		Transcript: text,
		Segments: []types.Segment{
			{SpeakerTag: "Guest-1", Start: 0, End: time.Second, Text: text},
		},
	}, nil
}

func (m *echoTranscriber) callCount() int {
	return int(atomic.LoadInt32(&m.calls))
}

// recordingListener captures status events and result updates.
type recordingListener struct {
	mu       sync.Mutex
	statuses []string
	messages []string
	updates  []*types.TranscriptionResult
}

func (l *recordingListener) OnStatus(status, message string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.statuses = append(l.statuses, status)
	l.messages = append(l.messages, message)
}

func (l *recordingListener) OnUpdate(result *types.TranscriptionResult) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.updates = append(l.updates, result)
}

func (l *recordingListener) statusList() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.statuses...)
}

func (l *recordingListener) updateCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.updates)
}

func contains(list []string, want string) bool {
	for _, s := range list {
		if s == want {
			return true
		}
	}
	return false
}

func newTestSession(t *testing.T, transcriber Transcriber, throttle time.Duration) (*Session, *recordingListener) {
	t.Helper()
	listener := &recordingListener{}
	s, err := NewSession(uuid.New().String(), "wav", t.TempDir(), passthroughNormalizer{}, transcriber, listener, throttle)
	require.NoError(t, err)
	t.Cleanup(s.Dispose)
	return s, listener
}

func TestNewSessionNotifiesStarted(t *testing.T) {
	_, listener := newTestSession(t, &echoTranscriber{}, time.Second)
	assert.Equal(t, []string{StatusStarted}, listener.statusList())
}

func TestCompleteWithoutAudioSkipsBackend(t *testing.T) {
	mock := &echoTranscriber{}
	s, _ := newTestSession(t, mock, time.Second)

	result, err := s.Complete(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "", result.Transcript)
	assert.Empty(t, result.Segments)
	assert.Equal(t, 0, mock.callCount(), "empty buffer must not reach the recognition backend")
}

func TestThrottleSkipsRapidAppends(t *testing.T) {
	mock := &echoTranscriber{}
	s, _ := newTestSession(t, mock, 300*time.Millisecond)

	require.NoError(t, s.AppendAudio(context.Background(), []byte("chunk-1")))
	require.Eventually(t, func() bool { return mock.callCount() == 1 }, time.Second, 5*time.Millisecond)

	// Second append inside the interval is skipped, not queued.
	require.NoError(t, s.AppendAudio(context.Background(), []byte("chunk-2")))
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, 1, mock.callCount())

	// After the interval elapses a new pass runs.
	time.Sleep(300 * time.Millisecond)
	require.NoError(t, s.AppendAudio(context.Background(), []byte("chunk-3")))
	require.Eventually(t, func() bool { return mock.callCount() == 2 }, time.Second, 5*time.Millisecond)
}

func TestEndToEndThreeChunksPlusFinalPass(t *testing.T) {
	mock := &echoTranscriber{}
	s, listener := newTestSession(t, mock, 50*time.Millisecond)

	chunks := [][]byte{[]byte("first-"), []byte("second-"), []byte("third")}
	total := 0
	for i, chunk := range chunks {
		require.NoError(t, s.AppendAudio(context.Background(), chunk))
		total += len(chunk)
		require.Eventually(t, func() bool { return mock.callCount() == i+1 }, time.Second, 5*time.Millisecond)
		time.Sleep(80 * time.Millisecond)
	}

	assert.Equal(t, 3, mock.callCount(), "expected exactly one background pass per spaced chunk")

	result, err := s.Complete(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 4, mock.callCount())
	// The final result reflects the whole buffer, not an accumulation of
	// per-chunk outputs.
	assert.Equal(t, fmt.Sprintf("bytes:%d", total), result.Transcript)
	assert.Equal(t, result, s.Latest(), "the forced final pass is authoritative")
	assert.GreaterOrEqual(t, listener.updateCount(), 3)
}

func TestAppendWithCancelledSignalDropsChunk(t *testing.T) {
	mock := &echoTranscriber{}
	s, _ := newTestSession(t, mock, time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	require.NoError(t, s.AppendAudio(ctx, []byte("dropped")))
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 0, mock.callCount())

	result, err := s.Complete(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "", result.Transcript)
}

func TestBackgroundFailureReportedAndIngestionContinues(t *testing.T) {
	mock := &echoTranscriber{failFirst: 1}
	s, listener := newTestSession(t, mock, 50*time.Millisecond)

	require.NoError(t, s.AppendAudio(context.Background(), []byte("chunk-1")))
	require.Eventually(t, func() bool {
		return contains(listener.statusList(), StatusError)
	}, time.Second, 5*time.Millisecond)

	// Session survives; the next interval's pass succeeds.
	time.Sleep(80 * time.Millisecond)
	require.NoError(t, s.AppendAudio(context.Background(), []byte("chunk-2")))
	require.Eventually(t, func() bool { return listener.updateCount() == 1 }, time.Second, 5*time.Millisecond)
}

func TestCompleteWaitsForInFlightPass(t *testing.T) {
	mock := &echoTranscriber{delay: 150 * time.Millisecond}
	s, _ := newTestSession(t, mock, time.Millisecond)

	payload := []byte("streamed-audio")
	require.NoError(t, s.AppendAudio(context.Background(), payload))

	result, err := s.Complete(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, mock.callCount())
	assert.Equal(t, int32(1), atomic.LoadInt32(&mock.maxConcurrent), "passes must never overlap")
	assert.Equal(t, fmt.Sprintf("bytes:%d", len(payload)), result.Transcript)
}

func TestCompleteIsTerminal(t *testing.T) {
	mock := &echoTranscriber{}
	s, _ := newTestSession(t, mock, time.Hour)

	require.NoError(t, s.AppendAudio(context.Background(), []byte("audio")))

	first, err := s.Complete(context.Background())
	require.NoError(t, err)
	calls := mock.callCount()

	second, err := s.Complete(context.Background())
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, calls, mock.callCount(), "a finished session must not run another pass")
}

func TestCompleteSurfacesBufferReadFailure(t *testing.T) {
	mock := &echoTranscriber{}
	s, _ := newTestSession(t, mock, time.Hour)

	// Pull the buffer out from under the session without disposing it.
	require.NoError(t, os.Remove(s.rawPath))

	_, err := s.Complete(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read session buffer")
	assert.Equal(t, 0, mock.callCount())
}

func TestPassAfterDisposeStaysSilent(t *testing.T) {
	mock := &echoTranscriber{}
	s, listener := newTestSession(t, mock, time.Hour)

	s.Dispose()

	// A pass that lost the race against Dispose finds the buffer gone; it
	// must not report an error status or a phantom empty update.
	s.inFlight <- struct{}{}
	s.backgroundPass()

	assert.Equal(t, []string{StatusStarted}, listener.statusList())
	assert.Equal(t, 0, listener.updateCount())
}

func TestCompleteFailurePropagates(t *testing.T) {
	listener := &recordingListener{}
	s, err := NewSession(uuid.New().String(), "wav", t.TempDir(), failingNormalizer{}, &echoTranscriber{}, listener, time.Hour)
	require.NoError(t, err)
	defer s.Dispose()

	// Put a byte in the buffer so the pass does not short-circuit.
	require.NoError(t, s.AppendAudio(context.Background(), []byte("x")))

	_, err = s.Complete(context.Background())
	assert.ErrorIs(t, err, types.ErrTranscodeFailed)
}

func TestAttemptTempFileAlwaysDeleted(t *testing.T) {
	normalizer := &tempFileNormalizer{}
	listener := &recordingListener{}
	s, err := NewSession(uuid.New().String(), "wav", t.TempDir(), normalizer, &echoTranscriber{failFirst: 100}, listener, time.Hour)
	require.NoError(t, err)
	defer s.Dispose()

	require.NoError(t, s.AppendAudio(context.Background(), []byte("audio")))

	_, err = s.Complete(context.Background())
	require.Error(t, err)

	normalizer.mu.Lock()
	created := append([]string(nil), normalizer.created...)
	normalizer.mu.Unlock()
	require.NotEmpty(t, created)
	for _, path := range created {
		_, statErr := os.Stat(path)
		assert.True(t, os.IsNotExist(statErr), "attempt WAV %s must be deleted after a failed pass", path)
	}
}

func TestDisposeDeletesBufferAndIsIdempotent(t *testing.T) {
	tempDir := t.TempDir()
	listener := &recordingListener{}
	s, err := NewSession("abc", "wav", tempDir, passthroughNormalizer{}, &echoTranscriber{}, listener, time.Second)
	require.NoError(t, err)

	rawPath := filepath.Join(tempDir, "live_abc.raw")
	_, statErr := os.Stat(rawPath)
	require.NoError(t, statErr)

	s.Dispose()
	_, statErr = os.Stat(rawPath)
	assert.True(t, os.IsNotExist(statErr))

	assert.NotPanics(t, s.Dispose)

	// Appends after dispose are dropped, not errors.
	assert.NoError(t, s.AppendAudio(context.Background(), []byte("late")))
}

func TestDisposeCancelsInFlightPass(t *testing.T) {
	mock := &echoTranscriber{delay: 500 * time.Millisecond}
	s, listener := newTestSession(t, mock, time.Millisecond)

	require.NoError(t, s.AppendAudio(context.Background(), []byte("audio")))
	require.Eventually(t, func() bool { return mock.callCount() == 1 }, time.Second, 5*time.Millisecond)

	s.Dispose()

	// The aborted pass must not surface an error status to the listener.
	time.Sleep(600 * time.Millisecond)
	assert.False(t, contains(listener.statusList(), StatusError))
	assert.Equal(t, 0, listener.updateCount())
}
