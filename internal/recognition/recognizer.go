// Package recognition wraps the external diarization-capable speech service.
package recognition

import (
	"context"
	"time"
)

// Speaker count bounds accepted by the recognition service.
const (
	MinSpeakers = 2
	MaxSpeakers = 10
)

// DefaultLanguage is the recognition language used when none is configured.
const DefaultLanguage = "pl-PL"

// Config holds the recognition service settings.
type Config struct {
	Endpoint        string `yaml:"endpoint"`
	SubscriptionKey string `yaml:"subscription_key"`
	Language        string `yaml:"language"`
	MaxSpeakers     int    `yaml:"max_speakers"`
}

// Normalize applies the default language and clamps the speaker count to
// the service's accepted range.
func (c Config) Normalize() Config {
	if c.Language == "" {
		c.Language = DefaultLanguage
	}
	if c.MaxSpeakers < MinSpeakers {
		c.MaxSpeakers = MinSpeakers
	}
	if c.MaxSpeakers > MaxSpeakers {
		c.MaxSpeakers = MaxSpeakers
	}
	return c
}

// Utterance is one recognized utterance event from the service, carrying
// the service-assigned speaker tag and its position in the stream.
type Utterance struct {
	SpeakerTag string
	Offset     time.Duration
	Duration   time.Duration
	Text       string
}

// Recognizer streams a canonical WAV file to the speech service and invokes
// onUtterance for every recognized utterance, in recognition order. A nil
// return means the service signalled normal end of stream.
type Recognizer interface {
	Recognize(ctx context.Context, wavPath string, onUtterance func(Utterance)) error
}
