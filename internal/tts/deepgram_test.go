package tts

import (
	"context"
	"testing"
	"time"
)

// Smoke test without an API key; Synthesize should fail quickly.
func TestDeepgramSynthesizeNoKey(t *testing.T) {
	d := NewDeepgramSynthesizer("", "")
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if _, err := d.Synthesize(ctx, "hello", VoiceSelection{}); err == nil {
		t.Fatal("expected error when api key missing")
	}
}
