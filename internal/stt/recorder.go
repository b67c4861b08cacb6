// Package stt turns a continuous-listening recognition backend into a
// single-shot "record once, emit one transcript or one error" contract.
package stt

import (
	"context"
	"log"
	"sync"
)

// Recognizer is one streaming recognition session. Start blocks until the
// backend acknowledges the session; the session ends when Done closes, which
// always happens exactly once, whether or not a transcript was produced.
type Recognizer interface {
	Start(ctx context.Context) error
	// Stop requests the session end. The transition back to idle happens on
	// the Done signal, not immediately.
	Stop()
	SendPCM16KLE(pcm []byte) error
	Finals() <-chan string
	Errors() <-chan *RecognitionError
	Done() <-chan struct{}
	Close() error
}

// RecognizerFactory creates a fresh Recognizer per recording session. A nil
// factory means recognition is unsupported on this deployment.
type RecognizerFactory func() Recognizer

// State is the recorder's lifecycle position.
type State int

const (
	StateUninitialized State = iota
	StateIdle
	StateListening
	StateUnsupported
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateListening:
		return "listening"
	case StateUnsupported:
		return "unsupported"
	default:
		return "uninitialized"
	}
}

// Recorder coordinates single-shot recording sessions. Each session emits
// exactly one of: a non-empty final transcript via onResult, or an error via
// onError; the session-end signal drives the state back to idle either way.
type Recorder struct {
	factory  RecognizerFactory
	onResult func(transcript string)
	onError  func(err *RecognitionError)
	onState  func(listening bool)

	mu     sync.Mutex
	state  State
	active Recognizer
	closed bool
}

// NewRecorder wires the recording callbacks. Callbacks run on the session
// goroutine; they must not call back into the Recorder synchronously.
func NewRecorder(factory RecognizerFactory, onResult func(string), onError func(*RecognitionError)) *Recorder {
	return &Recorder{factory: factory, onResult: onResult, onError: onError}
}

// OnStateChange registers an optional listener for listening transitions.
func (r *Recorder) OnStateChange(fn func(listening bool)) {
	r.mu.Lock()
	r.onState = fn
	r.mu.Unlock()
}

// Supported reports whether recognition can ever work in this process.
func (r *Recorder) Supported() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.factory != nil && r.state != StateUnsupported
}

// Listening reports whether a recording session is active.
func (r *Recorder) Listening() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state == StateListening
}

// initLocked performs the one-time capability acquisition.
func (r *Recorder) initLocked() {
	if r.state != StateUninitialized {
		return
	}
	if r.factory == nil {
		r.state = StateUnsupported
		log.Println("stt: no recognition backend configured; voice input disabled")
		return
	}
	r.state = StateIdle
}

// StartRecording begins a recording session. Calling it while already
// listening is a warned no-op. The transition to listening happens only after
// the backend acknowledges the start.
func (r *Recorder) StartRecording(ctx context.Context) error {
	r.mu.Lock()
	r.initLocked()
	switch r.state {
	case StateListening:
		r.mu.Unlock()
		log.Println("stt: start requested while already listening; ignoring")
		return nil
	case StateUnsupported:
		r.mu.Unlock()
		return ErrUnsupported
	}
	if r.closed {
		r.mu.Unlock()
		return ErrUnsupported
	}
	factory := r.factory
	r.mu.Unlock()

	rec := factory()
	if err := rec.Start(ctx); err != nil {
		_ = rec.Close()
		return err
	}

	r.mu.Lock()
	r.state = StateListening
	r.active = rec
	notify := r.onState
	r.mu.Unlock()
	if notify != nil {
		notify(true)
	}

	go r.runSession(rec)
	return nil
}

// StopRecording requests the active session end. No-op when idle.
func (r *Recorder) StopRecording() {
	r.mu.Lock()
	rec := r.active
	listening := r.state == StateListening
	r.mu.Unlock()
	if !listening || rec == nil {
		return
	}
	rec.Stop()
}

// Feed forwards microphone audio (PCM16LE, 16kHz mono) into the active
// session. Audio arriving while idle is dropped.
func (r *Recorder) Feed(pcm []byte) {
	r.mu.Lock()
	rec := r.active
	r.mu.Unlock()
	if rec == nil {
		return
	}
	if err := rec.SendPCM16KLE(pcm); err != nil {
		log.Printf("stt: feed audio: %v", err)
	}
}

// runSession relays the session's single outcome and returns the recorder to
// idle when the backend signals end-of-session.
func (r *Recorder) runSession(rec Recognizer) {
	r.mu.Lock()
	onResult, onError := r.onResult, r.onError
	r.mu.Unlock()

	var once sync.Once
	emitResult := func(text string) {
		once.Do(func() {
			if onResult != nil {
				onResult(text)
			}
		})
	}
	emitError := func(err *RecognitionError) {
		once.Do(func() {
			if onError != nil {
				onError(err)
			}
		})
	}

	for {
		select {
		case text, ok := <-rec.Finals():
			if ok && text != "" {
				emitResult(text)
			}
		case rerr, ok := <-rec.Errors():
			if ok && rerr != nil {
				emitError(rerr)
			}
		case <-rec.Done():
			// An outcome sent just before the end signal may still be queued.
			select {
			case text, ok := <-rec.Finals():
				if ok && text != "" {
					emitResult(text)
				}
			default:
			}
			select {
			case rerr, ok := <-rec.Errors():
				if ok && rerr != nil {
					emitError(rerr)
				}
			default:
			}
			// A session that ends without a transcript or a backend error
			// means nothing usable was heard.
			emitError(&RecognitionError{Kind: ErrorNoSpeech})
			r.mu.Lock()
			if r.active == rec {
				r.active = nil
				if r.state == StateListening {
					r.state = StateIdle
				}
			}
			notify := r.onState
			r.mu.Unlock()
			_ = rec.Close()
			if notify != nil {
				notify(false)
			}
			return
		}
	}
}

// Close aborts any in-flight session and detaches callbacks. Safe to call
// multiple times.
func (r *Recorder) Close() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	rec := r.active
	r.active = nil
	r.onResult = nil
	r.onError = nil
	r.onState = nil
	if r.state == StateListening {
		r.state = StateIdle
	}
	r.mu.Unlock()
	if rec != nil {
		_ = rec.Close()
	}
}
