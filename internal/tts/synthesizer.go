// Package tts coordinates speech synthesis: it requests LINEAR16 audio from a
// backend, decodes it into playable samples, and enforces the
// at-most-one-active-utterance rule.
package tts

import (
	"context"
	"errors"
	"fmt"
)

// ErrUnsupported is returned when no synthesis backend is configured.
var ErrUnsupported = errors.New("tts: speech synthesis is not available")

// VoiceSelection picks the synthesis voice.
type VoiceSelection struct {
	LanguageCode string
	Name         string
}

// Result is one synthesized utterance: raw LINEAR16 little-endian mono PCM
// and the rate it was rendered at.
type Result struct {
	PCM        []byte
	SampleRate int
}

// Synthesizer renders speakable text to PCM audio.
type Synthesizer interface {
	Synthesize(ctx context.Context, text string, voice VoiceSelection) (*Result, error)
}

// SynthesisError is any stage failure in the speak pipeline: bad payload
// shape, decode failure, or playback start failure.
type SynthesisError struct {
	Message string
	Err     error
}

func (e *SynthesisError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("tts: %s: %v", e.Message, e.Err)
	}
	return "tts: " + e.Message
}

func (e *SynthesisError) Unwrap() error { return e.Err }

// InvalidResponseError reports a synthesis backend reply that does not match
// the expected shape.
type InvalidResponseError struct {
	Detail string
}

func (e *InvalidResponseError) Error() string {
	return "tts: invalid synthesis response: " + e.Detail
}

// AudioContextError reports that the audio output context could not be
// resumed, so playback cannot start.
type AudioContextError struct {
	Err error
}

func (e *AudioContextError) Error() string {
	return fmt.Sprintf("tts: audio output unavailable: %v", e.Err)
}

func (e *AudioContextError) Unwrap() error { return e.Err }
