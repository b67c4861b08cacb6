package tts

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

const elevenLabsSampleRate = 48000

// ElevenLabsSynthesizer renders speech through the ElevenLabs streaming HTTP
// endpoint, buffering the PCM_48000 response into a single result.
type ElevenLabsSynthesizer struct {
	httpClient     *http.Client
	apiKey         string
	defaultVoiceID string
}

func NewElevenLabsSynthesizer(apiKey, defaultVoiceID string) *ElevenLabsSynthesizer {
	return &ElevenLabsSynthesizer{
		httpClient:     &http.Client{Timeout: 60 * time.Second},
		apiKey:         apiKey,
		defaultVoiceID: defaultVoiceID,
	}
}

func (e *ElevenLabsSynthesizer) Synthesize(ctx context.Context, text string, voice VoiceSelection) (*Result, error) {
	// Catalog voice names are not ElevenLabs voice ids; the configured id
	// wins unless none was set.
	voiceID := e.defaultVoiceID
	if voiceID == "" {
		voiceID = voice.Name
	}
	if e.apiKey == "" || voiceID == "" {
		return nil, fmt.Errorf("elevenlabs: api key or voice id missing")
	}

	u := url.URL{
		Scheme: "https",
		Host:   "api.elevenlabs.io",
		Path:   "/v1/text-to-speech/" + voiceID + "/stream",
	}
	q := u.Query()
	q.Set("model_id", "eleven_flash_v2_5")
	q.Set("output_format", "pcm_48000")
	u.RawQuery = q.Encode()

	body := map[string]any{
		"model_id": "eleven_flash_v2_5",
		"text":     text,
		"voice_settings": map[string]any{
			"stability":         0.4,
			"similarity_boost":  0.7,
			"style":             0.0,
			"use_speaker_boost": true,
		},
	}
	buf, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("elevenlabs: encode request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.String(), bytes.NewReader(buf))
	if err != nil {
		return nil, err
	}
	req.Header.Set("xi-api-key", e.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("elevenlabs: request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("elevenlabs: status=%d body=%s", resp.StatusCode, string(b))
	}

	pcm, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("elevenlabs: read audio stream: %w", err)
	}
	if len(pcm) == 0 {
		return nil, &InvalidResponseError{Detail: "empty audio stream"}
	}
	return &Result{PCM: pcm, SampleRate: elevenLabsSampleRate}, nil
}
