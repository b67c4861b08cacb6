package config

import (
	"log"
	"os"

	"github.com/joho/godotenv"
)

// Config holds application configuration.
type Config struct {
	HTTPAddress string
	WebhookURL  string
	DataPath    string

	TTSBackend        string // "proxy", "deepgram" or "elevenlabs"
	TTSProxyURL       string
	DeepgramKey       string
	DeepgramModel     string
	ElevenLabsKey     string
	ElevenLabsVoiceID string
	VoiceID           string

	AssemblyAIKey       string
	RecognitionLanguage string

	SupabaseURL    string
	SupabaseKey    string
	SupabaseBucket string
}

// Load reads environment variables and returns Config with sane defaults.
func Load() Config {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file loaded; using process environment")
	}

	addr := os.Getenv("HTTP_ADDRESS")
	if addr == "" {
		addr = ":8080"
	}

	webhookURL := os.Getenv("WEBHOOK_URL")
	if webhookURL == "" {
		log.Println("Warning: WEBHOOK_URL not set - agent messaging will not work")
	}

	dataPath := os.Getenv("DATA_PATH")
	if dataPath == "" {
		dataPath = "artips.db"
	}

	ttsBackend := os.Getenv("TTS_BACKEND")
	if ttsBackend == "" {
		ttsBackend = "proxy"
	}
	ttsProxyURL := os.Getenv("TTS_PROXY_URL")
	deepgramKey := os.Getenv("DEEPGRAM_API_KEY")
	deepgramModel := os.Getenv("DEEPGRAM_TTS_MODEL")
	if deepgramModel == "" {
		deepgramModel = "aura-2-thalia-en"
	}
	elevenKey := os.Getenv("ELEVENLABS_API_KEY")
	elevenVoiceID := os.Getenv("ELEVENLABS_VOICE_ID")
	switch ttsBackend {
	case "proxy":
		if ttsProxyURL == "" {
			log.Println("Warning: TTS_PROXY_URL not set - speech output will be disabled")
		}
	case "deepgram":
		if deepgramKey == "" {
			log.Println("Warning: DEEPGRAM_API_KEY not set - speech output will be disabled")
		}
	case "elevenlabs":
		if elevenKey == "" || elevenVoiceID == "" {
			log.Println("Warning: ELEVENLABS_API_KEY / ELEVENLABS_VOICE_ID not set - speech output will be disabled")
		}
	default:
		log.Printf("Warning: unknown TTS_BACKEND %q - speech output will be disabled", ttsBackend)
	}

	assemblyAIKey := os.Getenv("ASSEMBLYAI_API_KEY")
	if assemblyAIKey == "" {
		log.Println("Warning: ASSEMBLYAI_API_KEY not set - speech input will be disabled")
	}
	language := os.Getenv("RECOGNITION_LANGUAGE")
	if language == "" {
		language = "en"
	}

	supabaseURL := os.Getenv("SUPABASE_URL")
	supabaseKey := os.Getenv("SUPABASE_SERVICE_ROLE_KEY")
	supabaseBucket := os.Getenv("SUPABASE_BUCKET")
	if supabaseBucket == "" {
		supabaseBucket = "artips-archive"
	}
	if supabaseURL == "" || supabaseKey == "" {
		log.Println("Warning: SUPABASE_URL / SUPABASE_SERVICE_ROLE_KEY not set - deleted conversations will not be archived")
	}

	log.Printf("config: HTTP_ADDRESS=%s TTS_BACKEND=%s DATA_PATH=%s", addr, ttsBackend, dataPath)
	return Config{
		HTTPAddress:         addr,
		WebhookURL:          webhookURL,
		DataPath:            dataPath,
		TTSBackend:          ttsBackend,
		TTSProxyURL:         ttsProxyURL,
		DeepgramKey:         deepgramKey,
		DeepgramModel:       deepgramModel,
		ElevenLabsKey:       elevenKey,
		ElevenLabsVoiceID:   elevenVoiceID,
		VoiceID:             os.Getenv("VOICE_ID"),
		AssemblyAIKey:       assemblyAIKey,
		RecognitionLanguage: language,
		SupabaseURL:         supabaseURL,
		SupabaseKey:         supabaseKey,
		SupabaseBucket:      supabaseBucket,
	}
}
