package tts

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/pascalm94/Artips/internal/audio"
)

type proxyVoice struct {
	LanguageCode string `json:"languageCode"`
	Name         string `json:"name"`
}

type proxyAudioConfig struct {
	AudioEncoding string `json:"audioEncoding"`
}

type proxyRequest struct {
	Text        string           `json:"text"`
	Voice       proxyVoice       `json:"voice"`
	AudioConfig proxyAudioConfig `json:"audioConfig"`
}

type proxyResponse struct {
	AudioContent string `json:"audioContent"`
	SampleRate   int    `json:"sampleRate"`
}

// ProxyClient requests synthesis from the TTS proxy endpoint. The proxy
// returns base64-encoded LINEAR16 PCM plus the sample rate it rendered at.
type ProxyClient struct {
	HTTPClient *http.Client
	Endpoint   string
}

func NewProxyClient(endpoint string) *ProxyClient {
	return &ProxyClient{
		HTTPClient: &http.Client{Timeout: 30 * time.Second},
		Endpoint:   endpoint,
	}
}

func (c *ProxyClient) Synthesize(ctx context.Context, text string, voice VoiceSelection) (*Result, error) {
	if c.Endpoint == "" {
		return nil, fmt.Errorf("tts: proxy endpoint not configured")
	}

	body, _ := json.Marshal(proxyRequest{
		Text:        text,
		Voice:       proxyVoice{LanguageCode: voice.LanguageCode, Name: voice.Name},
		AudioConfig: proxyAudioConfig{AudioEncoding: "LINEAR16"},
	})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.Endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("tts: proxy request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("tts: proxy status=%d body=%s", resp.StatusCode, string(b))
	}

	var pr proxyResponse
	if err := json.NewDecoder(resp.Body).Decode(&pr); err != nil {
		return nil, &InvalidResponseError{Detail: err.Error()}
	}
	if pr.AudioContent == "" {
		return nil, &InvalidResponseError{Detail: "missing audioContent"}
	}
	if pr.SampleRate <= 0 {
		return nil, &InvalidResponseError{Detail: fmt.Sprintf("bad sample rate %d", pr.SampleRate)}
	}
	pcm, err := audio.DecodeBase64PCM(pr.AudioContent)
	if err != nil {
		return nil, &InvalidResponseError{Detail: err.Error()}
	}
	return &Result{PCM: pcm, SampleRate: pr.SampleRate}, nil
}
