package recognition

import (
	"context"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/terapio/session-transcription/internal/transcript"
	"github.com/terapio/session-transcription/internal/types"
)

// Transcriber turns recognizer utterance streams into TranscriptionResults.
type Transcriber struct {
	recognizer Recognizer
	log        *logrus.Entry
}

// NewTranscriber wraps the given recognizer.
func NewTranscriber(r Recognizer) *Transcriber {
	return &Transcriber{
		recognizer: r,
		log:        logrus.WithField("component", "transcriber"),
	}
}

// Transcribe streams the canonical WAV file through the recognizer and
// collects every utterance as it arrives. The transcript holds utterances
// in recognition order, one per line; segments are sorted by start offset
// before return.
func (t *Transcriber) Transcribe(ctx context.Context, wavPath string) (*types.TranscriptionResult, error) {
	var (
		lines    []string
		segments []types.Segment
	)

	err := t.recognizer.Recognize(ctx, wavPath, func(u Utterance) {
		text := strings.TrimSpace(u.Text)
		if text == "" {
			return
		}
		lines = append(lines, text)
		segments = append(segments, types.Segment{
			SpeakerTag: u.SpeakerTag,
			Start:      u.Offset,
			End:        u.Offset + u.Duration,
			Text:       text,
		})
	})
	if err != nil {
		return nil, err
	}

	types.SortSegments(segments)

	result := &types.TranscriptionResult{
		Transcript: strings.Join(lines, "\n"),
		Segments:   segments,
	}
	if len(segments) > 0 {
		result.Duration = segments[len(segments)-1].End
	}

	t.log.WithField("segments", len(segments)).Debug("transcription attempt finished")
	return result, nil
}

// TranscribeBatch runs Transcribe and replaces the chronological transcript
// with the speaker-grouped rendering, which is what batch submissions
// surface to the user.
func (t *Transcriber) TranscribeBatch(ctx context.Context, wavPath string) (*types.TranscriptionResult, error) {
	result, err := t.Transcribe(ctx, wavPath)
	if err != nil {
		return nil, err
	}
	result.Transcript = transcript.BuildGroupedTranscript(result.Segments, result.Transcript)
	return result, nil
}
