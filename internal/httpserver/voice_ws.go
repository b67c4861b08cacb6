package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"github.com/pascalm94/Artips/internal/audio"
	"github.com/pascalm94/Artips/internal/session"
	"github.com/pascalm94/Artips/internal/tts"
)

// Voice channel protocol: the client sends JSON control messages and binary
// 16 kHz PCM16LE microphone audio; the server sends JSON events and binary
// agent audio in 20 ms frames, announced by an audio-start event carrying the
// sample rate.

var voiceUpgrader = websocket.Upgrader{
	ReadBufferSize:  65536,
	WriteBufferSize: 65536,
	CheckOrigin: func(r *http.Request) bool {
		// Allow any origin; restrict in production
		return true
	},
}

const wsWriteTimeout = 10 * time.Second

type controlMessage struct {
	Type string `json:"type"`
}

func (s *Server) voiceWebSocket(c echo.Context) error {
	conn, err := voiceUpgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		log.Printf("voice ws upgrade error: %v", err)
		return err
	}
	vc := &voiceConn{
		conn:   conn,
		orch:   s.orch,
		send:   make(chan wsFrame, 1024),
		closed: make(chan struct{}),
	}
	vc.run()
	return nil
}

type wsFrame struct {
	messageType int
	data        []byte
}

// voiceConn is one voice channel. While it lives it is the session's audio
// output context; closing it suspends speech output.
type voiceConn struct {
	conn *websocket.Conn
	orch *session.Orchestrator

	send      chan wsFrame
	closed    chan struct{}
	closeOnce sync.Once
}

func (vc *voiceConn) run() {
	defer vc.shutdown()

	go vc.writeLoop()
	go vc.pushStates()

	vc.orch.AttachAudioOutput(&wsPlayer{vc: vc})

	for {
		messageType, data, err := vc.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Printf("voice ws read error: %v", err)
			}
			return
		}
		switch messageType {
		case websocket.BinaryMessage:
			vc.orch.FeedAudio(data)
		case websocket.TextMessage:
			vc.handleControl(data)
		}
	}
}

func (vc *voiceConn) shutdown() {
	vc.orch.DetachAudioOutput()
	vc.orch.EndVoiceInput()
	vc.closeOnce.Do(func() { close(vc.closed) })
	_ = vc.conn.Close()
}

func (vc *voiceConn) handleControl(data []byte) {
	var msg controlMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		log.Printf("voice ws: bad control message: %v", err)
		return
	}
	switch msg.Type {
	case "start":
		// Failures surface through the pushed state, not the socket.
		if err := vc.orch.BeginVoiceInput(context.Background()); err != nil {
			log.Printf("voice ws: start recording: %v", err)
		}
	case "stop":
		vc.orch.EndVoiceInput()
	case "cancel-speech":
		vc.orch.CancelSpeech()
	default:
		log.Printf("voice ws: unknown control type %q", msg.Type)
	}
}

// pushStates sends a full state snapshot on connect and after every change.
func (vc *voiceConn) pushStates() {
	ch, cancel := vc.orch.Subscribe()
	defer cancel()

	vc.sendEvent("state", vc.orch.State())
	for {
		select {
		case <-ch:
			vc.sendEvent("state", vc.orch.State())
		case <-vc.closed:
			return
		}
	}
}

func (vc *voiceConn) sendEvent(eventType string, payload any) {
	data, err := json.Marshal(map[string]any{"type": eventType, "payload": payload})
	if err != nil {
		log.Printf("voice ws: encode %s event: %v", eventType, err)
		return
	}
	vc.enqueue(wsFrame{messageType: websocket.TextMessage, data: data})
}

func (vc *voiceConn) enqueue(f wsFrame) {
	select {
	case vc.send <- f:
	case <-vc.closed:
	default:
		// Slow consumer; dropping is better than stalling the session.
	}
}

func (vc *voiceConn) writeLoop() {
	for {
		select {
		case f := <-vc.send:
			_ = vc.conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if err := vc.conn.WriteMessage(f.messageType, f.data); err != nil {
				vc.closeOnce.Do(func() { close(vc.closed) })
				return
			}
		case <-vc.closed:
			return
		}
	}
}

// wsPlayer makes the connection an audio output for the speaker: decoded
// utterances go out as paced binary frames.
type wsPlayer struct {
	vc *voiceConn
}

func (p *wsPlayer) EnsureRunning() error {
	select {
	case <-p.vc.closed:
		return errors.New("voice connection closed")
	default:
		return nil
	}
}

func (p *wsPlayer) Play(buf *audio.Buffer) (tts.Playback, error) {
	if err := p.EnsureRunning(); err != nil {
		return nil, err
	}
	p.vc.sendEvent("audio-start", map[string]any{"sampleRate": buf.SampleRate})

	pw := audio.NewPacedWriter(&wsFrameSender{vc: p.vc}, buf.SampleRate)
	pb := &wsPlayback{vc: p.vc, pw: pw, done: make(chan struct{})}
	go func() {
		pw.Write(buf.Samples)
		pw.FlushTail()
		ticker := time.NewTicker(20 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if pw.Idle() {
					pb.finish(false)
					return
				}
			case <-pb.done:
				return
			case <-p.vc.closed:
				pb.finish(true)
				return
			}
		}
	}()
	return pb, nil
}

type wsFrameSender struct {
	vc *voiceConn
}

func (s *wsFrameSender) WriteFrame(pcm []byte) error {
	s.vc.enqueue(wsFrame{messageType: websocket.BinaryMessage, data: pcm})
	return nil
}

type wsPlayback struct {
	vc   *voiceConn
	pw   *audio.PacedWriter
	once sync.Once
	done chan struct{}
}

func (p *wsPlayback) Done() <-chan struct{} { return p.done }

func (p *wsPlayback) Stop() {
	p.pw.Reset()
	p.finish(true)
}

func (p *wsPlayback) finish(interrupted bool) {
	p.once.Do(func() {
		p.pw.Close()
		p.vc.sendEvent("audio-end", map[string]any{"interrupted": interrupted})
		close(p.done)
	})
}
