package audio

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/gopxl/beep/v2"
	"github.com/gopxl/beep/v2/flac"
	"github.com/gopxl/beep/v2/mp3"
	"github.com/gopxl/beep/v2/vorbis"
	"github.com/gopxl/beep/v2/wav"
	"github.com/sirupsen/logrus"

	"github.com/terapio/session-transcription/internal/types"
)

// Canonical audio format fed to the recognition adapter: mono, 16-bit
// signed PCM, 16 kHz, WAV container.
const (
	CanonicalRate      = beep.SampleRate(16000)
	CanonicalChannels  = 1
	CanonicalPrecision = 2 // bytes per sample

	resampleQuality = 4
)

// Normalizer converts arbitrary input audio or video into canonical WAV.
// Video containers are delegated to the TrackExtractor; everything else is
// decoded and resampled in process.
type Normalizer struct {
	tempDir   string
	extractor TrackExtractor
	log       *logrus.Entry
}

// NewNormalizer creates a normalizer writing intermediate files to tempDir.
func NewNormalizer(tempDir string) *Normalizer {
	return &Normalizer{
		tempDir:   tempDir,
		extractor: NewFFmpegExtractor(tempDir),
		log:       logrus.WithField("component", "normalizer"),
	}
}

// SetExtractor replaces the video audio-track extractor.
func (n *Normalizer) SetExtractor(e TrackExtractor) {
	n.extractor = e
}

// Normalize converts the input file to canonical WAV and returns the
// resulting path. isTemp reports whether a new intermediate file was
// created; when false the returned path is the input itself and must not
// be deleted by the caller's cleanup.
func (n *Normalizer) Normalize(inputPath, declaredType string) (path string, isTemp bool, err error) {
	switch kind := sourceKind(inputPath, declaredType); kind {
	case kindWAV:
		return n.normalizeWAV(inputPath)
	case kindMP3, kindFLAC, kindOGG:
		out, err := n.decodeCompressed(inputPath, kind)
		return out, err == nil, err
	case kindVideo:
		out, err := n.extractor.ExtractAudioTrack(inputPath)
		return out, err == nil, err
	default:
		return "", false, fmt.Errorf("%w: %q", types.ErrUnsupportedFormat, sourceLabel(inputPath, declaredType))
	}
}

// Supported reports whether the filename has an extension the normalizer
// can handle.
func Supported(filename string) bool {
	return sourceKind(filename, "") != kindUnknown
}

// normalizeWAV returns the input path untouched when the file is already
// canonical, otherwise resamples and downmixes into a new temp file.
func (n *Normalizer) normalizeWAV(inputPath string) (string, bool, error) {
	f, err := os.Open(inputPath)
	if err != nil {
		return "", false, fmt.Errorf("%w: open wav: %v", types.ErrTranscodeFailed, err)
	}

	streamer, format, err := wav.Decode(f)
	if err != nil {
		f.Close()
		return "", false, fmt.Errorf("%w: decode wav: %v", types.ErrTranscodeFailed, err)
	}

	if format.SampleRate == CanonicalRate &&
		format.NumChannels == CanonicalChannels &&
		format.Precision == CanonicalPrecision {
		streamer.Close()
		return inputPath, false, nil
	}

	n.log.WithFields(logrus.Fields{
		"rate":     format.SampleRate,
		"channels": format.NumChannels,
	}).Debug("resampling wav to canonical format")

	out, err := n.encodeCanonical(streamer, format)
	streamer.Close()
	if err != nil {
		return "", false, err
	}
	return out, true, nil
}

// decodeCompressed decodes a compressed audio file and writes it back out
// as canonical WAV.
func (n *Normalizer) decodeCompressed(inputPath, kind string) (string, error) {
	f, err := os.Open(inputPath)
	if err != nil {
		return "", fmt.Errorf("%w: open %s: %v", types.ErrTranscodeFailed, kind, err)
	}

	var (
		streamer beep.StreamSeekCloser
		format   beep.Format
	)
	switch kind {
	case kindMP3:
		streamer, format, err = mp3.Decode(f)
	case kindFLAC:
		streamer, format, err = flac.Decode(f)
	case kindOGG:
		streamer, format, err = vorbis.Decode(f)
	}
	if err != nil {
		f.Close()
		return "", fmt.Errorf("%w: decode %s: %v", types.ErrTranscodeFailed, kind, err)
	}
	defer streamer.Close()

	return n.encodeCanonical(streamer, format)
}

// encodeCanonical resamples the stream to 16 kHz and encodes it as mono
// 16-bit WAV in a fresh temp file. The half-written file is removed on
// encode failure.
func (n *Normalizer) encodeCanonical(s beep.Streamer, format beep.Format) (string, error) {
	outPath := filepath.Join(n.tempDir, fmt.Sprintf("normalized_%s.wav", uuid.New().String()))

	out, err := os.Create(outPath)
	if err != nil {
		return "", fmt.Errorf("%w: create output: %v", types.ErrTranscodeFailed, err)
	}

	src := s
	if format.SampleRate != CanonicalRate {
		src = beep.Resample(resampleQuality, format.SampleRate, CanonicalRate, s)
	}

	target := beep.Format{
		SampleRate:  CanonicalRate,
		NumChannels: CanonicalChannels,
		Precision:   CanonicalPrecision,
	}
	if err := wav.Encode(out, src, target); err != nil {
		out.Close()
		os.Remove(outPath)
		return "", fmt.Errorf("%w: encode wav: %v", types.ErrTranscodeFailed, err)
	}

	if err := out.Close(); err != nil {
		os.Remove(outPath)
		return "", fmt.Errorf("%w: close output: %v", types.ErrTranscodeFailed, err)
	}
	return outPath, nil
}

// Source kinds selected from the declared content type or the file
// extension.
const (
	kindUnknown = ""
	kindWAV     = "wav"
	kindMP3     = "mp3"
	kindFLAC    = "flac"
	kindOGG     = "ogg"
	kindVideo   = "video"
)

var kindByExt = map[string]string{
	".wav":  kindWAV,
	".mp3":  kindMP3,
	".flac": kindFLAC,
	".ogg":  kindOGG,
	".mp4":  kindVideo,
	".m4a":  kindVideo, // mp4 audio container, extracted by ffmpeg
	".webm": kindVideo,
	".mov":  kindVideo,
	".mkv":  kindVideo,
	".avi":  kindVideo,
}

var kindByContentType = map[string]string{
	"audio/wav":        kindWAV,
	"audio/x-wav":      kindWAV,
	"audio/wave":       kindWAV,
	"audio/mpeg":       kindMP3,
	"audio/mp3":        kindMP3,
	"audio/flac":       kindFLAC,
	"audio/x-flac":     kindFLAC,
	"audio/ogg":        kindOGG,
	"audio/vorbis":     kindOGG,
	"audio/mp4":        kindVideo,
	"video/mp4":        kindVideo,
	"video/webm":       kindVideo,
	"audio/webm":       kindVideo,
	"video/quicktime":  kindVideo,
	"video/x-matroska": kindVideo,
	"video/x-msvideo":  kindVideo,
}

func sourceKind(inputPath, declaredType string) string {
	declared := strings.ToLower(strings.TrimSpace(declaredType))
	if declared != "" {
		if kind, ok := kindByContentType[declared]; ok {
			return kind
		}
		if kind, ok := kindByExt["."+strings.TrimPrefix(declared, ".")]; ok {
			return kind
		}
	}
	if kind, ok := kindByExt[strings.ToLower(filepath.Ext(inputPath))]; ok {
		return kind
	}
	return kindUnknown
}

func sourceLabel(inputPath, declaredType string) string {
	if declaredType != "" {
		return declaredType
	}
	return filepath.Ext(inputPath)
}
