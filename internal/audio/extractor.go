package audio

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/terapio/session-transcription/internal/types"
)

// FFmpegPathEnv overrides the transcoder executable location.
const FFmpegPathEnv = "FFMPEG_PATH"

// TrackExtractor pulls the audio track out of a video container directly
// into canonical WAV. It is an interface so the subprocess transcoder can
// be swapped for an in-process decoder without touching callers.
type TrackExtractor interface {
	ExtractAudioTrack(inputPath string) (wavPath string, err error)
}

// FFmpegExtractor invokes an external ffmpeg binary to strip the video
// stream and force mono/16-bit/16 kHz in a single pass.
type FFmpegExtractor struct {
	tempDir string
	log     *logrus.Entry
}

// NewFFmpegExtractor creates an extractor writing output files to tempDir.
func NewFFmpegExtractor(tempDir string) *FFmpegExtractor {
	return &FFmpegExtractor{
		tempDir: tempDir,
		log:     logrus.WithField("component", "ffmpeg"),
	}
}

// ExtractAudioTrack runs ffmpeg on the input file. A launch failure or a
// non-zero exit is fatal for the attempt; ffmpeg's combined output is
// attached to the error for diagnosis.
func (e *FFmpegExtractor) ExtractAudioTrack(inputPath string) (string, error) {
	outPath := filepath.Join(e.tempDir, fmt.Sprintf("extracted_%s.wav", uuid.New().String()))

	cmd := exec.Command(ffmpegBinary(),
		"-i", inputPath,
		"-vn", // strip video
		"-ar", strconv.Itoa(int(CanonicalRate)),
		"-ac", strconv.Itoa(CanonicalChannels),
		"-c:a", "pcm_s16le",
		"-y",
		outPath,
	)

	e.log.WithField("input", filepath.Base(inputPath)).Debug("extracting audio track")

	output, err := cmd.CombinedOutput()
	if err != nil {
		os.Remove(outPath)
		return "", fmt.Errorf("%w: ffmpeg: %v: %s", types.ErrTranscodeFailed, err, strings.TrimSpace(string(output)))
	}
	return outPath, nil
}

// ffmpegBinary resolves the transcoder executable from the environment
// override, falling back to the platform default name on PATH.
func ffmpegBinary() string {
	if path := os.Getenv(FFmpegPathEnv); path != "" {
		return path
	}
	if runtime.GOOS == "windows" {
		return "ffmpeg.exe"
	}
	return "ffmpeg"
}

// CheckFFmpeg reports whether the transcoder executable is runnable.
func CheckFFmpeg() bool {
	return exec.Command(ffmpegBinary(), "-version").Run() == nil
}
