package recognition

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/fasthttp/websocket"
	"github.com/sirupsen/logrus"

	"github.com/terapio/session-transcription/internal/types"
)

const (
	// audioFrameSize is the binary frame size used when streaming WAV data.
	audioFrameSize = 32 * 1024

	// reasonEndOfStream is the cancellation reason the service sends when
	// the audio simply ran out. It marks successful completion.
	reasonEndOfStream = "EndOfStream"
)

// Client is the websocket client for the diarization-capable speech
// recognition service. One Recognize call maps to one service session.
type Client struct {
	cfg    Config
	dialer *websocket.Dialer
	log    *logrus.Entry
}

// NewClient creates a recognition client from the given config. Language
// defaults to pl-PL and the speaker count is clamped to [2, 10].
func NewClient(cfg Config) *Client {
	return &Client{
		cfg: cfg.Normalize(),
		dialer: &websocket.Dialer{
			HandshakeTimeout: 15 * time.Second,
		},
		log: logrus.WithField("component", "recognition"),
	}
}

// sessionConfig is the first message of a recognition session.
type sessionConfig struct {
	Type        string `json:"type"`
	Language    string `json:"language"`
	Diarization bool   `json:"diarization"`
	MaxSpeakers int    `json:"maxSpeakers"`
	Format      string `json:"format"`
}

// serviceEvent is a message received from the service during a session.
type serviceEvent struct {
	Type       string `json:"type"`
	SpeakerTag string `json:"speakerTag,omitempty"`
	OffsetMs   int64  `json:"offsetMs,omitempty"`
	DurationMs int64  `json:"durationMs,omitempty"`
	Text       string `json:"text,omitempty"`
	Reason     string `json:"reason,omitempty"`
	Message    string `json:"message,omitempty"`
}

// Recognize streams the WAV file to the service and forwards recognized
// utterances until the service closes the session. Connectivity failures
// and service-side processing errors both surface as ErrRecognitionFailed,
// with messages that tell the two apart.
func (c *Client) Recognize(ctx context.Context, wavPath string, onUtterance func(Utterance)) error {
	f, err := os.Open(wavPath)
	if err != nil {
		return fmt.Errorf("%w: open audio: %v", types.ErrRecognitionFailed, err)
	}
	defer f.Close()

	header := http.Header{}
	if c.cfg.SubscriptionKey != "" {
		header.Set("Ocp-Apim-Subscription-Key", c.cfg.SubscriptionKey)
	}

	conn, _, err := c.dialer.DialContext(ctx, c.cfg.Endpoint, header)
	if err != nil {
		return fmt.Errorf("%w: cannot reach recognition service at %s: %v",
			types.ErrRecognitionFailed, c.cfg.Endpoint, err)
	}
	defer conn.Close()

	// Unblock the read loop if the caller gives up mid-session.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	cfgMsg := sessionConfig{
		Type:        "config",
		Language:    c.cfg.Language,
		Diarization: true,
		MaxSpeakers: c.cfg.MaxSpeakers,
		Format:      "detailed",
	}
	if err := conn.WriteJSON(cfgMsg); err != nil {
		return fmt.Errorf("%w: send config: %v", types.ErrRecognitionFailed, err)
	}

	go c.streamAudio(conn, f)

	for {
		_, payload, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return fmt.Errorf("%w: %v", types.ErrCancelled, ctx.Err())
			}
			return fmt.Errorf("%w: connection to recognition service lost: %v",
				types.ErrRecognitionFailed, err)
		}

		var event serviceEvent
		if err := json.Unmarshal(payload, &event); err != nil {
			c.log.WithError(err).Warn("skipping malformed service event")
			continue
		}

		switch event.Type {
		case "recognized":
			onUtterance(Utterance{
				SpeakerTag: event.SpeakerTag,
				Offset:     time.Duration(event.OffsetMs) * time.Millisecond,
				Duration:   time.Duration(event.DurationMs) * time.Millisecond,
				Text:       event.Text,
			})
		case "canceled":
			if event.Reason == reasonEndOfStream {
				return nil
			}
			return fmt.Errorf("%w: recognition service reported a processing error: %s: %s",
				types.ErrRecognitionFailed, event.Reason, event.Message)
		default:
			c.log.WithField("type", event.Type).Debug("ignoring service event")
		}
	}
}

// streamAudio pushes the WAV file to the service in fixed-size binary
// frames followed by an end-of-audio marker. Write errors are left for the
// read loop to observe as a closed connection.
func (c *Client) streamAudio(conn *websocket.Conn, r io.Reader) {
	buf := make([]byte, audioFrameSize)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			if werr := conn.WriteMessage(websocket.BinaryMessage, buf[:n]); werr != nil {
				c.log.WithError(werr).Debug("audio stream write aborted")
				return
			}
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			c.log.WithError(err).Warn("reading audio for streaming failed")
			return
		}
	}
	if err := conn.WriteJSON(serviceEvent{Type: "end"}); err != nil {
		c.log.WithError(err).Debug("end-of-audio write aborted")
	}
}
