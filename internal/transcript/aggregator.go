// Package transcript renders speaker-attributed segments into readable text.
package transcript

import (
	"strings"

	"github.com/terapio/session-transcription/internal/types"
)

// BuildGroupedTranscript merges consecutive same-speaker segments into one
// paragraph per speaker turn, producing lines of the form
// "<SpeakerTag>: <texts joined by spaces>". Speaker tags are compared
// case-insensitively. Segments with blank text are dropped. When nothing
// survives filtering the trimmed fallback transcript is returned instead.
func BuildGroupedTranscript(segments []types.Segment, fallbackTranscript string) string {
	sorted := make([]types.Segment, len(segments))
	copy(sorted, segments)
	types.SortSegments(sorted)

	var (
		lines      []string
		groupTag   string
		groupTexts []string
	)

	flush := func() {
		if len(groupTexts) > 0 {
			lines = append(lines, groupTag+": "+strings.Join(groupTexts, " "))
			groupTexts = nil
		}
	}

	for _, seg := range sorted {
		text := strings.TrimSpace(seg.Text)
		if text == "" {
			continue
		}
		if len(groupTexts) > 0 && !strings.EqualFold(seg.SpeakerTag, groupTag) {
			flush()
		}
		if len(groupTexts) == 0 {
			groupTag = seg.SpeakerTag
		}
		groupTexts = append(groupTexts, text)
	}
	flush()

	if len(lines) == 0 {
		return strings.TrimSpace(fallbackTranscript)
	}
	return strings.Join(lines, "\n")
}
