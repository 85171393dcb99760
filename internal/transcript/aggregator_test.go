package transcript

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/terapio/session-transcription/internal/types"
)

func seg(tag string, start, end int, text string) types.Segment {
	return types.Segment{
		SpeakerTag: tag,
		Start:      time.Duration(start) * time.Second,
		End:        time.Duration(end) * time.Second,
		Text:       text,
	}
}

func TestBuildGroupedTranscript(t *testing.T) {
	segments := []types.Segment{
		seg("A", 0, 1, "hello"),
		seg("A", 1, 2, "world"),
		seg("B", 2, 3, "hi"),
	}

	got := BuildGroupedTranscript(segments, "")
	assert.Equal(t, "A: hello world\nB: hi", got)
}

func TestBuildGroupedTranscriptFallback(t *testing.T) {
	got := BuildGroupedTranscript(nil, "raw text")
	assert.Equal(t, "raw text", got)

	got = BuildGroupedTranscript(nil, "  padded  ")
	assert.Equal(t, "padded", got)

	got = BuildGroupedTranscript(nil, "")
	assert.Equal(t, "", got)
}

func TestBuildGroupedTranscriptFiltersBlankSegments(t *testing.T) {
	segments := []types.Segment{
		seg("A", 0, 1, "   "),
		seg("A", 1, 2, ""),
	}

	// Nothing survives filtering, so the fallback wins.
	got := BuildGroupedTranscript(segments, "fallback")
	assert.Equal(t, "fallback", got)

	segments = append(segments, seg("B", 2, 3, "only real text"))
	got = BuildGroupedTranscript(segments, "fallback")
	assert.Equal(t, "B: only real text", got)
}

func TestBuildGroupedTranscriptCaseInsensitiveSpeakers(t *testing.T) {
	segments := []types.Segment{
		seg("Guest-1", 0, 1, "first"),
		seg("guest-1", 1, 2, "second"),
		seg("GUEST-2", 2, 3, "third"),
	}

	got := BuildGroupedTranscript(segments, "")
	assert.Equal(t, "Guest-1: first second\nGUEST-2: third", got)
}

func TestBuildGroupedTranscriptSortsByStartOffset(t *testing.T) {
	segments := []types.Segment{
		seg("B", 5, 6, "late"),
		seg("A", 0, 1, "early"),
		seg("A", 2, 3, "middle"),
	}

	got := BuildGroupedTranscript(segments, "")
	assert.Equal(t, "A: early middle\nB: late", got)
}

func TestBuildGroupedTranscriptDoesNotMutateInput(t *testing.T) {
	segments := []types.Segment{
		seg("B", 5, 6, "late"),
		seg("A", 0, 1, "early"),
	}

	BuildGroupedTranscript(segments, "")
	assert.Equal(t, "B", segments[0].SpeakerTag)
}
