package stt

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// silenceThreshold is the inactivity window after the last transcript update
// before the utterance is considered complete.
const silenceThreshold = 700 * time.Millisecond

// AssemblyAI streaming message shapes.
type aaiBeginMessage struct {
	Type      string `json:"type"`
	ID        string `json:"id"`
	ExpiresAt int64  `json:"expires_at"`
}

type aaiTurnMessage struct {
	Type       string `json:"type"`
	Transcript string `json:"transcript"`
}

type aaiErrorMessage struct {
	Type  string `json:"type"`
	Error string `json:"error"`
}

// AssemblyAIRecognizer is a single-shot recognition session over the
// AssemblyAI v3 streaming WebSocket. Unlike a dictation stream it finalizes
// once: the first silence-delimited utterance ends the session.
type AssemblyAIRecognizer struct {
	apiKey   string
	language string

	finals chan string
	errs   chan *RecognitionError
	done   chan struct{}
	audio  chan []byte
	stopCh chan struct{}

	mu           sync.Mutex
	conn         *websocket.Conn
	started      bool
	finished     bool
	latest       string
	silenceTimer *time.Timer

	doneOnce sync.Once
	stopOnce sync.Once
}

// NewAssemblyAIRecognizerFactory returns a RecognizerFactory for the given
// credentials, or nil when no API key is configured (recognition unsupported).
func NewAssemblyAIRecognizerFactory(apiKey, language string) RecognizerFactory {
	if apiKey == "" {
		return nil
	}
	return func() Recognizer {
		return &AssemblyAIRecognizer{
			apiKey:   apiKey,
			language: language,
			finals:   make(chan string, 1),
			errs:     make(chan *RecognitionError, 1),
			done:     make(chan struct{}),
			audio:    make(chan []byte, 256),
			stopCh:   make(chan struct{}),
		}
	}
}

func (r *AssemblyAIRecognizer) Finals() <-chan string            { return r.finals }
func (r *AssemblyAIRecognizer) Errors() <-chan *RecognitionError { return r.errs }
func (r *AssemblyAIRecognizer) Done() <-chan struct{}            { return r.done }

// Start dials the streaming endpoint. It returns once the connection is
// established; the backend's Begin message is handled asynchronously.
func (r *AssemblyAIRecognizer) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.started {
		return fmt.Errorf("stt: recognizer already started")
	}

	params := url.Values{}
	params.Set("sample_rate", "16000")
	params.Set("format_turns", "false")
	params.Set("encoding", "pcm_s16le")
	wsURL := fmt.Sprintf("wss://streaming.assemblyai.com/v3/ws?%s", params.Encode())

	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	headers := map[string][]string{"Authorization": {r.apiKey}}

	conn, resp, err := dialer.DialContext(ctx, wsURL, headers)
	if err != nil {
		if resp != nil && (resp.StatusCode == 401 || resp.StatusCode == 403) {
			return &RecognitionError{Kind: ErrorNotAllowed, Detail: fmt.Sprintf("recognition backend refused credentials (status %d)", resp.StatusCode)}
		}
		return &RecognitionError{Kind: ErrorNetwork, Detail: err.Error()}
	}

	r.conn = conn
	r.started = true

	go r.readLoop()
	go r.writeLoop()
	return nil
}

// SendPCM16KLE queues microphone audio for the backend. The queue drops when
// full rather than blocking the capture path.
func (r *AssemblyAIRecognizer) SendPCM16KLE(pcm []byte) error {
	r.mu.Lock()
	started := r.started
	r.mu.Unlock()
	if !started {
		return fmt.Errorf("stt: recognizer not started")
	}
	select {
	case r.audio <- pcm:
	default:
	}
	return nil
}

// Stop requests session end. If a transcript has accumulated it is finalized
// immediately; either way the session tears down and Done closes.
func (r *AssemblyAIRecognizer) Stop() {
	r.stopOnce.Do(func() {
		r.mu.Lock()
		if r.silenceTimer != nil {
			r.silenceTimer.Stop()
			r.silenceTimer = nil
		}
		r.mu.Unlock()
		r.finalize()
	})
}

// Close aborts the session. Safe to call multiple times.
func (r *AssemblyAIRecognizer) Close() error {
	r.teardown()
	return nil
}

func (r *AssemblyAIRecognizer) readLoop() {
	for {
		r.mu.Lock()
		conn := r.conn
		r.mu.Unlock()
		if conn == nil {
			return
		}
		_, message, err := conn.ReadMessage()
		if err != nil {
			select {
			case <-r.stopCh:
				// expected during teardown
			default:
				r.emitError(&RecognitionError{Kind: ErrorNetwork, Detail: err.Error()})
				r.teardown()
			}
			return
		}
		r.processMessage(message)
	}
}

func (r *AssemblyAIRecognizer) writeLoop() {
	for {
		select {
		case <-r.stopCh:
			return
		case pcm := <-r.audio:
			r.mu.Lock()
			conn := r.conn
			r.mu.Unlock()
			if conn == nil {
				return
			}
			if err := conn.WriteMessage(websocket.BinaryMessage, pcm); err != nil {
				select {
				case <-r.stopCh:
				default:
					r.emitError(&RecognitionError{Kind: ErrorNetwork, Detail: err.Error()})
					r.teardown()
				}
				return
			}
		}
	}
}

func (r *AssemblyAIRecognizer) processMessage(message []byte) {
	var base map[string]any
	if err := json.Unmarshal(message, &base); err != nil {
		return
	}
	msgType, _ := base["type"].(string)
	switch msgType {
	case "Begin":
		var msg aaiBeginMessage
		_ = json.Unmarshal(message, &msg)
	case "Turn":
		var msg aaiTurnMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			return
		}
		if msg.Transcript == "" {
			return
		}
		r.mu.Lock()
		r.latest = msg.Transcript
		if r.silenceTimer == nil {
			r.silenceTimer = time.AfterFunc(silenceThreshold, r.finalize)
		} else {
			r.silenceTimer.Stop()
			r.silenceTimer.Reset(silenceThreshold)
		}
		r.mu.Unlock()
	case "Termination":
		r.finalize()
	case "Error":
		var msg aaiErrorMessage
		_ = json.Unmarshal(message, &msg)
		kind := ErrorOther
		lower := strings.ToLower(msg.Error)
		if strings.Contains(lower, "auth") {
			kind = ErrorNotAllowed
		}
		r.emitError(&RecognitionError{Kind: kind, Detail: msg.Error})
		r.teardown()
	}
}

// finalize commits the accumulated transcript, if any, and ends the session.
// Single-shot: the first finalization is the whole recording's result.
func (r *AssemblyAIRecognizer) finalize() {
	r.mu.Lock()
	if r.finished {
		r.mu.Unlock()
		return
	}
	r.finished = true
	transcript := strings.TrimSpace(r.latest)
	r.mu.Unlock()

	if transcript != "" {
		select {
		case r.finals <- transcript:
		default:
		}
	}
	r.teardown()
}

func (r *AssemblyAIRecognizer) emitError(err *RecognitionError) {
	select {
	case r.errs <- err:
	default:
	}
}

// teardown closes the connection and signals end-of-session exactly once.
func (r *AssemblyAIRecognizer) teardown() {
	r.doneOnce.Do(func() {
		close(r.stopCh)
		r.mu.Lock()
		if r.silenceTimer != nil {
			r.silenceTimer.Stop()
			r.silenceTimer = nil
		}
		conn := r.conn
		r.conn = nil
		r.mu.Unlock()
		if conn != nil {
			_ = conn.WriteJSON(map[string]string{"type": "Terminate"})
			_ = conn.Close()
		}
		close(r.done)
	})
}
