package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pascalm94/Artips/internal/archive"
	"github.com/pascalm94/Artips/internal/config"
	"github.com/pascalm94/Artips/internal/httpserver"
	"github.com/pascalm94/Artips/internal/session"
	"github.com/pascalm94/Artips/internal/store"
	"github.com/pascalm94/Artips/internal/stt"
	"github.com/pascalm94/Artips/internal/tts"
	"github.com/pascalm94/Artips/internal/voices"
	"github.com/pascalm94/Artips/internal/webhook"
)

func main() {
	// Include sub-second precision in all log timestamps
	log.SetFlags(log.Ldate | log.Ltime | log.Lmicroseconds)

	cfg := config.Load()

	persister, err := store.OpenBolt(cfg.DataPath)
	if err != nil {
		log.Fatalf("open conversation store: %v", err)
	}
	defer persister.Close()

	orch := session.New(session.Options{
		Store:      store.NewStore(persister),
		Agent:      webhook.New(cfg.WebhookURL),
		Speaker:    buildSpeaker(cfg),
		Recognizer: stt.NewAssemblyAIRecognizerFactory(cfg.AssemblyAIKey, cfg.RecognitionLanguage),
		Archiver:   buildArchiver(cfg),
		Voice:      startupVoice(cfg),
	})
	defer orch.Close()

	srv := httpserver.New(orch)

	server := &http.Server{
		Addr:              cfg.HTTPAddress,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	// Start server in background
	serverErrors := make(chan error, 1)
	go func() {
		log.Printf("server listening on %s", cfg.HTTPAddress)
		serverErrors <- server.ListenAndServe()
	}()

	// Graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		if err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	case sig := <-sigChan:
		log.Printf("shutdown signal received: %v", sig)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.Printf("graceful shutdown failed: %v", err)
		_ = server.Close()
	}
}

// buildSpeaker picks the synthesis backend; a misconfigured one yields a
// speaker that reports speech output as unsupported.
func buildSpeaker(cfg config.Config) *tts.Speaker {
	var synth tts.Synthesizer
	switch cfg.TTSBackend {
	case "proxy":
		if cfg.TTSProxyURL != "" {
			synth = tts.NewProxyClient(cfg.TTSProxyURL)
		}
	case "deepgram":
		if cfg.DeepgramKey != "" {
			synth = tts.NewDeepgramSynthesizer(cfg.DeepgramKey, cfg.DeepgramModel)
		}
	case "elevenlabs":
		if cfg.ElevenLabsKey != "" && cfg.ElevenLabsVoiceID != "" {
			synth = tts.NewElevenLabsSynthesizer(cfg.ElevenLabsKey, cfg.ElevenLabsVoiceID)
		}
	}
	voice := startupVoice(cfg)
	return tts.NewSpeaker(synth, tts.VoiceSelection{LanguageCode: voice.LanguageCode, Name: voice.ID})
}

func buildArchiver(cfg config.Config) session.Archiver {
	if cfg.SupabaseURL == "" || cfg.SupabaseKey == "" {
		return nil
	}
	a, err := archive.New(archive.Config{
		URL:            cfg.SupabaseURL,
		ServiceRoleKey: cfg.SupabaseKey,
		Bucket:         cfg.SupabaseBucket,
	})
	if err != nil {
		log.Printf("archive disabled: %v", err)
		return nil
	}
	return a
}

func startupVoice(cfg config.Config) voices.Option {
	if v, ok := voices.Find(cfg.VoiceID); ok {
		return v
	}
	return voices.Default()
}
