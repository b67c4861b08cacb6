package audio

import (
	"sync"
	"time"
)

// FrameWriter receives 20ms PCM16LE mono frames for delivery to the listener.
type FrameWriter interface {
	WriteFrame(pcm []byte) error
}

const frameInterval = 20 * time.Millisecond

// PacedWriter buffers PCM samples and emits fixed 20ms frames to a
// FrameWriter at real-time pace. Delivery pacing keeps the receiving side's
// jitter buffer shallow so cancellation feels immediate.
type PacedWriter struct {
	w            FrameWriter
	frameSamples int
	frames       chan []byte
	stopCh       chan struct{}
	stopped      bool
	mu           sync.Mutex
	pcmBuf       []int16
}

// NewPacedWriter constructs a paced writer emitting 20ms frames at the given
// sample rate.
func NewPacedWriter(w FrameWriter, sampleRate int) *PacedWriter {
	p := &PacedWriter{
		w:            w,
		frameSamples: sampleRate / 50,
		frames:       make(chan []byte, 512),
		stopCh:       make(chan struct{}),
	}
	go p.pacer()
	return p
}

// Write buffers normalized float samples, slicing complete frames onto the
// delivery queue.
func (p *PacedWriter) Write(samples []float32) {
	if len(samples) == 0 {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, s := range samples {
		v := s * 32768.0
		if v > 32767 {
			v = 32767
		} else if v < -32768 {
			v = -32768
		}
		p.pcmBuf = append(p.pcmBuf, int16(v))
	}
	for len(p.pcmBuf) >= p.frameSamples {
		p.pushFrameLocked(int16Bytes(p.pcmBuf[:p.frameSamples]))
		copy(p.pcmBuf, p.pcmBuf[p.frameSamples:])
		p.pcmBuf = p.pcmBuf[:len(p.pcmBuf)-p.frameSamples]
	}
}

// FlushTail pads any partial frame with silence so the utterance tail is not
// clipped.
func (p *PacedWriter) FlushTail() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.pcmBuf) == 0 {
		return
	}
	pad := make([]int16, p.frameSamples)
	copy(pad, p.pcmBuf)
	p.pcmBuf = p.pcmBuf[:0]
	p.pushFrameLocked(int16Bytes(pad))
}

// Idle reports whether all queued frames have been handed to the writer.
func (p *PacedWriter) Idle() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.frames) == 0 && len(p.pcmBuf) == 0
}

// Reset drops buffered samples and queued frames immediately, for barge-in.
func (p *PacedWriter) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for {
		select {
		case <-p.frames:
		default:
			p.pcmBuf = p.pcmBuf[:0]
			return
		}
	}
}

// Close stops the pacer goroutine. Safe to call once.
func (p *PacedWriter) Close() {
	p.mu.Lock()
	if !p.stopped {
		p.stopped = true
		close(p.stopCh)
	}
	p.mu.Unlock()
}

func (p *PacedWriter) pushFrameLocked(frame []byte) {
	select {
	case p.frames <- frame:
	default:
		// Queue full: delivery is lagging badly; drop the oldest frame to
		// bound latency.
		select {
		case <-p.frames:
		default:
		}
		select {
		case p.frames <- frame:
		default:
		}
	}
}

func (p *PacedWriter) pacer() {
	ticker := time.NewTicker(frameInterval)
	defer ticker.Stop()
	for {
		select {
		case <-p.stopCh:
			return
		case <-ticker.C:
			select {
			case frame := <-p.frames:
				_ = p.w.WriteFrame(frame)
			default:
			}
		}
	}
}

func int16Bytes(samples []int16) []byte {
	out := make([]byte, len(samples)*2)
	for i, v := range samples {
		out[2*i] = byte(uint16(v))
		out[2*i+1] = byte(uint16(v) >> 8)
	}
	return out
}
