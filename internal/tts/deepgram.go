package tts

import (
	"context"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	msginterfaces "github.com/deepgram/deepgram-go-sdk/pkg/api/speak/v1/websocket/interfaces"
	clientinterfaces "github.com/deepgram/deepgram-go-sdk/pkg/client/interfaces/v1"
	"github.com/deepgram/deepgram-go-sdk/pkg/client/speak"
)

const deepgramSampleRate = 48000

// DeepgramSynthesizer renders text through Deepgram's streaming speak API,
// buffering the binary frames into a single Result.
type DeepgramSynthesizer struct {
	apiKey string
	model  string
}

func NewDeepgramSynthesizer(apiKey, model string) *DeepgramSynthesizer {
	if model == "" {
		model = "aura-2-thalia-en"
	}
	return &DeepgramSynthesizer{apiKey: apiKey, model: model}
}

func (d *DeepgramSynthesizer) Synthesize(ctx context.Context, text string, voice VoiceSelection) (*Result, error) {
	if d.apiKey == "" {
		return nil, fmt.Errorf("deepgram: API key missing")
	}
	if text == "" {
		return &Result{SampleRate: deepgramSampleRate}, nil
	}

	model := d.model
	if voice.Name != "" {
		model = voice.Name
	}
	options := &clientinterfaces.WSSpeakOptions{
		Model:      model,
		Encoding:   "linear16",
		SampleRate: deepgramSampleRate,
	}

	var (
		mu           sync.Mutex
		pcm          []byte
		lastRecvUnix int64
		seenAudio    int32
	)
	cb := &speakCollector{onBinary: func(data []byte) error {
		if len(data) == 0 {
			return nil
		}
		atomic.StoreInt64(&lastRecvUnix, time.Now().UnixNano())
		atomic.StoreInt32(&seenAudio, 1)
		mu.Lock()
		pcm = append(pcm, data...)
		mu.Unlock()
		return nil
	}}

	dg, err := speak.NewWSUsingCallback(ctx, d.apiKey, &clientinterfaces.ClientOptions{}, options, cb)
	if err != nil {
		return nil, fmt.Errorf("deepgram: create ws client: %w", err)
	}

	stopped := false
	stopClient := func() {
		if !stopped {
			stopped = true
			dg.Stop()
		}
	}
	defer stopClient()

	if ok := dg.Connect(); !ok {
		return nil, fmt.Errorf("deepgram: connect failed")
	}
	if err := dg.SpeakWithText(text); err != nil {
		return nil, fmt.Errorf("deepgram: speak text: %w", err)
	}
	if err := dg.Flush(); err != nil {
		log.Printf("deepgram: flush error: %v", err)
	}

	collect := func() []byte {
		mu.Lock()
		defer mu.Unlock()
		out := make([]byte, len(pcm))
		copy(out, pcm)
		return out
	}

	// The stream has no end-of-audio marker at this level; treat a quiet
	// window after the first audio as completion, bounded by a deadline.
	idleWindow := 400 * time.Millisecond
	deadline := time.Now().Add(12 * time.Second)
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
			if atomic.LoadInt32(&seenAudio) == 1 {
				last := time.Unix(0, atomic.LoadInt64(&lastRecvUnix))
				if time.Since(last) > idleWindow {
					stopClient()
					return &Result{PCM: collect(), SampleRate: deepgramSampleRate}, nil
				}
			}
			if time.Now().After(deadline) {
				stopClient()
				if atomic.LoadInt32(&seenAudio) == 0 {
					return nil, fmt.Errorf("deepgram: no audio received before deadline")
				}
				return &Result{PCM: collect(), SampleRate: deepgramSampleRate}, nil
			}
		}
	}
}

type speakCollector struct{ onBinary func([]byte) error }

func (s *speakCollector) Open(*msginterfaces.OpenResponse) error         { return nil }
func (s *speakCollector) Metadata(*msginterfaces.MetadataResponse) error { return nil }
func (s *speakCollector) Flush(*msginterfaces.FlushedResponse) error     { return nil }
func (s *speakCollector) Clear(*msginterfaces.ClearedResponse) error     { return nil }
func (s *speakCollector) Close(*msginterfaces.CloseResponse) error       { return nil }
func (s *speakCollector) Warning(*msginterfaces.WarningResponse) error   { return nil }
func (s *speakCollector) Error(*msginterfaces.ErrorResponse) error       { return nil }
func (s *speakCollector) UnhandledEvent([]byte) error                    { return nil }
func (s *speakCollector) Binary(byMsg []byte) error {
	if s.onBinary != nil {
		return s.onBinary(byMsg)
	}
	return nil
}
