package handlers

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/gofiber/websocket/v2"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/terapio/session-transcription/internal/audio"
	"github.com/terapio/session-transcription/internal/live"
	"github.com/terapio/session-transcription/internal/recognition"
	"github.com/terapio/session-transcription/internal/storage"
	"github.com/terapio/session-transcription/internal/types"
)

// LiveHandler runs live-capture websocket connections. Binary frames are
// audio chunks appended to the session; the text message "END" completes
// it. Status events and partial results are pushed back over the same
// connection.
type LiveHandler struct {
	normalizer   *audio.Normalizer
	transcriber  *recognition.Transcriber
	localStorage *storage.LocalStorage
	db           *storage.MetadataDB
	tempDir      string
	throttle     time.Duration
	log          *logrus.Entry
}

// NewLiveHandler creates a live capture handler.
func NewLiveHandler(
	normalizer *audio.Normalizer,
	transcriber *recognition.Transcriber,
	localStorage *storage.LocalStorage,
	db *storage.MetadataDB,
	tempDir string,
	throttle time.Duration,
) *LiveHandler {
	return &LiveHandler{
		normalizer:   normalizer,
		transcriber:  transcriber,
		localStorage: localStorage,
		db:           db,
		tempDir:      tempDir,
		throttle:     throttle,
		log:          logrus.WithField("component", "live"),
	}
}

// Handle owns one websocket connection from accept to close.
func (h *LiveHandler) Handle(c *websocket.Conn) {
	defer c.Close()

	sessionID := uuid.New().String()
	format := c.Query("format", "wav")
	log := h.log.WithField("session", sessionID)

	listener := newConnListener(c)

	session, err := live.NewSession(sessionID, format, h.tempDir, h.normalizer, h.transcriber, listener, h.throttle)
	if err != nil {
		log.WithError(err).Error("failed to start live session")
		listener.OnStatus(live.StatusError, "failed to start session")
		return
	}
	defer session.Dispose()

	log.Info("live capture started")

	recording := false
	for {
		messageType, message, err := c.ReadMessage()
		if err != nil {
			// Client went away; dispose without a final pass.
			log.WithError(err).Debug("websocket closed")
			return
		}

		if messageType == websocket.TextMessage {
			if string(message) == "END" {
				break
			}
			continue
		}

		if messageType == websocket.BinaryMessage {
			if err := session.AppendAudio(context.Background(), message); err != nil {
				log.WithError(err).Error("append failed")
				listener.OnStatus(live.StatusError, err.Error())
				continue
			}
			if !recording {
				recording = true
				listener.OnStatus(live.StatusRecording, "")
			}
		}
	}

	listener.OnStatus(live.StatusStopping, "")

	result, err := session.Complete(context.Background())
	if err != nil {
		log.WithError(err).Error("final transcription pass failed")
		listener.OnStatus(live.StatusError, err.Error())
		return
	}

	listener.sendFinal(result)
	log.WithField("segments", len(result.Segments)).Info("live capture completed")

	h.persist(log, c.Query("name", "live_session"), sessionID, result)
}

// persist saves the final live transcript the same way batch jobs are
// saved. Persistence failures are logged, not pushed to the client; the
// final result already reached them.
func (h *LiveHandler) persist(log *logrus.Entry, sessionName, sessionID string, result *types.TranscriptionResult) {
	if h.localStorage == nil || result.Transcript == "" {
		return
	}

	result.JobID = sessionID
	result.WordCount = len(strings.Fields(result.Transcript))
	result.ProcessedAt = time.Now()

	localPath, err := h.localStorage.SaveTranscript(sessionName, result)
	if err != nil {
		log.WithError(err).Warn("failed to save live transcript")
		return
	}
	result.LocalPath = localPath

	if h.db != nil {
		if err := h.db.SaveRecording(sessionID, sessionName, types.SourceLive,
			localPath, result.Duration.Seconds(), result.WordCount); err != nil {
			log.WithError(err).Warn("failed to save live recording metadata")
		}
	}
}

// connListener pushes session events to the websocket client. Writes are
// serialized; background passes report from their own goroutine.
type connListener struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func newConnListener(conn *websocket.Conn) *connListener {
	return &connListener{conn: conn}
}

type statusMessage struct {
	Type    string `json:"type"`
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

type updateMessage struct {
	Type       string          `json:"type"`
	Transcript string          `json:"transcript"`
	Segments   []types.Segment `json:"segments"`
}

func (l *connListener) OnStatus(status, message string) {
	l.send(statusMessage{Type: "status", Status: status, Message: message})
}

func (l *connListener) OnUpdate(result *types.TranscriptionResult) {
	l.send(updateMessage{Type: "update", Transcript: result.Transcript, Segments: result.Segments})
}

func (l *connListener) sendFinal(result *types.TranscriptionResult) {
	l.send(updateMessage{Type: "final", Transcript: result.Transcript, Segments: result.Segments})
}

func (l *connListener) send(v interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.conn.WriteJSON(v)
}
