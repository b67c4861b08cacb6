package config

import (
	"os"
	"testing"
)

func TestLoad_DefaultsAndEnv(t *testing.T) {
	os.Setenv("HTTP_ADDRESS", "")
	os.Setenv("TTS_BACKEND", "")
	os.Setenv("DEEPGRAM_TTS_MODEL", "")
	os.Setenv("DATA_PATH", "")
	os.Setenv("RECOGNITION_LANGUAGE", "")
	cfg := Load()
	if cfg.HTTPAddress == "" {
		t.Fatalf("expected default HTTP address")
	}
	if cfg.TTSBackend != "proxy" {
		t.Fatalf("TTSBackend = %q, want proxy default", cfg.TTSBackend)
	}
	if cfg.DeepgramModel == "" {
		t.Fatalf("expected default deepgram model")
	}
	if cfg.DataPath == "" {
		t.Fatalf("expected default data path")
	}
	if cfg.RecognitionLanguage != "en" {
		t.Fatalf("RecognitionLanguage = %q, want en", cfg.RecognitionLanguage)
	}

	os.Setenv("HTTP_ADDRESS", ":9999")
	os.Setenv("TTS_BACKEND", "deepgram")
	defer os.Unsetenv("HTTP_ADDRESS")
	defer os.Unsetenv("TTS_BACKEND")
	cfg = Load()
	if cfg.HTTPAddress != ":9999" {
		t.Fatalf("HTTPAddress = %q, want :9999", cfg.HTTPAddress)
	}
	if cfg.TTSBackend != "deepgram" {
		t.Fatalf("TTSBackend = %q, want deepgram", cfg.TTSBackend)
	}
}
