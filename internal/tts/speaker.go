package tts

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/pascalm94/Artips/internal/audio"
	"github.com/pascalm94/Artips/internal/textnorm"
)

// Playback is one started utterance. Stop is synchronous and idempotent and
// drives the same completion path as natural end: Done closes either way.
type Playback interface {
	Done() <-chan struct{}
	Stop()
}

// Player is the audio output context utterances play into. EnsureRunning
// resumes a suspended context; Play starts delivery of a decoded buffer.
type Player interface {
	EnsureRunning() error
	Play(buf *audio.Buffer) (Playback, error)
}

// Speaker owns speech output. It serializes utterances: starting a new one
// stops the previous playback before the new audio begins.
type Speaker struct {
	synth Synthesizer

	mu     sync.Mutex
	player Player
	active Playback
	voice  VoiceSelection
	// gen counts Speak/Cancel claims; a Speak still in synthesis when the
	// count moves on must not start playing.
	gen uint64
}

// NewSpeaker builds a Speaker. A nil synthesizer means synthesis is
// unsupported and Speak always fails with ErrUnsupported.
func NewSpeaker(synth Synthesizer, voice VoiceSelection) *Speaker {
	return &Speaker{synth: synth, voice: voice}
}

// Supported reports whether a synthesis backend is configured.
func (s *Speaker) Supported() bool { return s != nil && s.synth != nil }

// Speaking reports whether an utterance is currently playing.
func (s *Speaker) Speaking() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active != nil
}

// SetVoice switches the synthesis voice for subsequent utterances.
func (s *Speaker) SetVoice(v VoiceSelection) {
	s.mu.Lock()
	s.voice = v
	s.mu.Unlock()
}

// SetPlayer attaches or detaches the audio output context. Any active
// utterance is stopped first.
func (s *Speaker) SetPlayer(p Player) {
	s.Cancel()
	s.mu.Lock()
	s.player = p
	s.mu.Unlock()
}

// Speak synthesizes and plays the text, blocking until playback finishes or
// the context is canceled. Empty text is a no-op. An utterance already
// playing is stopped before the new one starts.
func (s *Speaker) Speak(ctx context.Context, text string) error {
	if !s.Supported() {
		return ErrUnsupported
	}
	if strings.TrimSpace(text) == "" {
		return nil
	}

	s.mu.Lock()
	s.gen++
	myGen := s.gen
	prev := s.active
	s.active = nil
	player := s.player
	voice := s.voice
	s.mu.Unlock()
	if prev != nil {
		prev.Stop()
	}

	if player == nil {
		return &AudioContextError{Err: errors.New("no audio output attached")}
	}
	if err := player.EnsureRunning(); err != nil {
		return &AudioContextError{Err: err}
	}

	speakable := textnorm.NormalizeForSpeech(text)
	if speakable == "" {
		return nil
	}

	res, err := s.synth.Synthesize(ctx, speakable, voice)
	if err != nil {
		return &SynthesisError{Message: "synthesis request failed", Err: err}
	}
	samples := audio.PCM16ToFloat32(res.PCM)
	if len(samples) == 0 {
		return &SynthesisError{Message: "synthesis produced no audio"}
	}

	// A newer Speak or a Cancel may have claimed the slot while this call was
	// synthesizing; if so this utterance never starts.
	s.mu.Lock()
	superseded := s.gen != myGen
	s.mu.Unlock()
	if superseded {
		return nil
	}

	pb, err := player.Play(&audio.Buffer{Samples: samples, SampleRate: res.SampleRate})
	if err != nil {
		return &SynthesisError{Message: "playback start failed", Err: err}
	}
	s.mu.Lock()
	if s.gen != myGen {
		s.mu.Unlock()
		pb.Stop()
		return nil
	}
	s.active = pb
	s.mu.Unlock()

	select {
	case <-pb.Done():
	case <-ctx.Done():
		pb.Stop()
		<-pb.Done()
	}

	// Clear the active source only if it is still this one; a superseding
	// utterance may already own the slot.
	s.mu.Lock()
	if s.active == pb {
		s.active = nil
	}
	s.mu.Unlock()
	return ctx.Err()
}

// Cancel stops the active utterance and aborts any Speak still synthesizing.
// No-op when idle.
func (s *Speaker) Cancel() {
	s.mu.Lock()
	s.gen++
	pb := s.active
	s.active = nil
	s.mu.Unlock()
	if pb != nil {
		pb.Stop()
	}
}

// Close stops any playback and detaches the output.
func (s *Speaker) Close() {
	s.Cancel()
	s.mu.Lock()
	s.player = nil
	s.mu.Unlock()
}
