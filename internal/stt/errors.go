package stt

import (
	"errors"
	"fmt"
)

// ErrUnsupported is returned when no speech recognition backend is available.
// The condition is permanent for the process lifetime.
var ErrUnsupported = errors.New("stt: speech recognition is not available")

// ErrorKind classifies recognition failures the way the UI distinguishes them.
type ErrorKind string

const (
	ErrorNoSpeech     ErrorKind = "no-speech"
	ErrorAudioCapture ErrorKind = "audio-capture"
	ErrorNotAllowed   ErrorKind = "not-allowed"
	ErrorNetwork      ErrorKind = "network"
	ErrorOther        ErrorKind = "other"
)

// RecognitionError is a failed recording session.
type RecognitionError struct {
	Kind   ErrorKind
	Detail string
}

func (e *RecognitionError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("stt: recognition error (%s)", e.Kind)
	}
	return fmt.Sprintf("stt: recognition error (%s): %s", e.Kind, e.Detail)
}

// UserMessage maps the error to the text shown to the user.
func (e *RecognitionError) UserMessage() string {
	switch e.Kind {
	case ErrorNoSpeech:
		return "No speech was detected. Please try again."
	case ErrorAudioCapture:
		return "No microphone was found, or audio capture failed."
	case ErrorNotAllowed:
		return "Microphone access was denied. Please allow microphone use and retry."
	case ErrorNetwork:
		return "A network error interrupted speech recognition."
	default:
		return fmt.Sprintf("Speech recognition failed: %s", e.Detail)
	}
}
