package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config contains all runtime settings for the voice gateway.
type Config struct {
	BindAddr         string
	PublicBaseURL    string
	ShutdownTimeout  time.Duration
	MetricsNamespace string

	AllowAnyOrigin bool

	SessionInactivityTimeout time.Duration
	ProviderConnectTimeout   time.Duration

	STTProvider string
	TTSProvider string

	DeepgramAPIKey         string
	DeepgramWSBaseURL      string
	DeepgramModel          string
	DeepgramReconnectDelay time.Duration

	AssemblyAIAPIKey      string
	AssemblyAIWSBaseURL   string
	AssemblyAITokenURL    string
	AssemblyAIBackoffBase time.Duration
	AssemblyAIMaxAttempts int

	ElevenLabsAPIKey       string
	ElevenLabsWSBaseURL    string
	ElevenLabsVoiceID      string
	ElevenLabsModelID      string
	ElevenLabsOutputFormat string
	TTSKeepAliveInterval   time.Duration

	GoogleTTSAPIKey  string
	GoogleTTSBaseURL string
	GoogleTTSVoice   string

	GreetingText string

	DatabaseURL string

	BrainMode    string
	BrainHTTPURL string
}

// Load reads environment variables and applies safe defaults.
func Load() (Config, error) {
	cfg := Config{
		BindAddr:         envOrDefault("APP_BIND_ADDR", ":8080"),
		PublicBaseURL:    stringsTrimSpace("APP_PUBLIC_BASE_URL"),
		MetricsNamespace: envOrDefault("APP_METRICS_NAMESPACE", "switchboard"),
		AllowAnyOrigin:   false,

		STTProvider: envOrDefault("STT_PROVIDER", "deepgram"),
		TTSProvider: envOrDefault("TTS_PROVIDER", "elevenlabs"),

		DeepgramAPIKey:    stringsTrimSpace("DEEPGRAM_API_KEY"),
		DeepgramWSBaseURL: envOrDefault("DEEPGRAM_WS_BASE_URL", "wss://api.deepgram.com"),
		DeepgramModel:     envOrDefault("DEEPGRAM_MODEL", "nova-2"),

		AssemblyAIAPIKey:      stringsTrimSpace("ASSEMBLYAI_API_KEY"),
		AssemblyAIWSBaseURL:   envOrDefault("ASSEMBLYAI_WS_BASE_URL", "wss://streaming.assemblyai.com"),
		AssemblyAITokenURL:    envOrDefault("ASSEMBLYAI_TOKEN_URL", "https://streaming.assemblyai.com/v3/token"),
		AssemblyAIMaxAttempts: 3,

		ElevenLabsAPIKey:    stringsTrimSpace("ELEVENLABS_API_KEY"),
		ElevenLabsWSBaseURL: envOrDefault("ELEVENLABS_WS_BASE_URL", "wss://api.elevenlabs.io"),
		ElevenLabsVoiceID:   envOrDefault("ELEVENLABS_VOICE_ID", "21m00Tcm4TlvDq8ikWAM"),
		ElevenLabsModelID:   envOrDefault("ELEVENLABS_MODEL_ID", "eleven_turbo_v2"),
		// ulaw_8000 is passthrough for the telephony leg; pcm_16000 is
		// transcoded by the adapter.
		ElevenLabsOutputFormat: envOrDefault("ELEVENLABS_OUTPUT_FORMAT", "ulaw_8000"),

		GoogleTTSAPIKey:  stringsTrimSpace("GOOGLE_TTS_API_KEY"),
		GoogleTTSBaseURL: envOrDefault("GOOGLE_TTS_BASE_URL", "https://texttospeech.googleapis.com"),
		GoogleTTSVoice:   envOrDefault("GOOGLE_TTS_VOICE", "en-US-Neural2-C"),

		GreetingText: envOrDefault("APP_GREETING_TEXT", "Hello! How can I help you today?"),

		DatabaseURL: stringsTrimSpace("DATABASE_URL"),

		BrainMode:    envOrDefault("BRAIN_MODE", "auto"),
		BrainHTTPURL: stringsTrimSpace("BRAIN_HTTP_URL"),

		ShutdownTimeout:          15 * time.Second,
		SessionInactivityTimeout: 2 * time.Minute,
		ProviderConnectTimeout:   10 * time.Second,
		DeepgramReconnectDelay:   time.Second,
		AssemblyAIBackoffBase:    time.Second,
		TTSKeepAliveInterval:     15 * time.Second,
	}

	var err error
	cfg.ShutdownTimeout, err = durationFromEnv("APP_SHUTDOWN_TIMEOUT", cfg.ShutdownTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.SessionInactivityTimeout, err = durationFromEnv("APP_SESSION_INACTIVITY_TIMEOUT", cfg.SessionInactivityTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.ProviderConnectTimeout, err = durationFromEnv("PROVIDER_CONNECT_TIMEOUT", cfg.ProviderConnectTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.DeepgramReconnectDelay, err = durationFromEnv("DEEPGRAM_RECONNECT_DELAY", cfg.DeepgramReconnectDelay)
	if err != nil {
		return Config{}, err
	}
	cfg.AssemblyAIBackoffBase, err = durationFromEnv("ASSEMBLYAI_BACKOFF_BASE", cfg.AssemblyAIBackoffBase)
	if err != nil {
		return Config{}, err
	}
	cfg.AssemblyAIMaxAttempts, err = intFromEnv("ASSEMBLYAI_MAX_ATTEMPTS", cfg.AssemblyAIMaxAttempts)
	if err != nil {
		return Config{}, err
	}
	cfg.TTSKeepAliveInterval, err = durationFromEnv("TTS_KEEPALIVE_INTERVAL", cfg.TTSKeepAliveInterval)
	if err != nil {
		return Config{}, err
	}
	cfg.AllowAnyOrigin, err = boolFromEnv("APP_ALLOW_ANY_ORIGIN", cfg.AllowAnyOrigin)
	if err != nil {
		return Config{}, err
	}

	switch strings.ToLower(strings.TrimSpace(cfg.STTProvider)) {
	case "deepgram", "assemblyai", "mock":
	default:
		return Config{}, fmt.Errorf("STT_PROVIDER must be deepgram, assemblyai, or mock")
	}
	switch strings.ToLower(strings.TrimSpace(cfg.TTSProvider)) {
	case "elevenlabs", "google", "mock":
	default:
		return Config{}, fmt.Errorf("TTS_PROVIDER must be elevenlabs, google, or mock")
	}
	if cfg.SessionInactivityTimeout < 5*time.Second {
		return Config{}, fmt.Errorf("APP_SESSION_INACTIVITY_TIMEOUT must be at least 5s")
	}
	if cfg.ProviderConnectTimeout <= 0 {
		return Config{}, fmt.Errorf("PROVIDER_CONNECT_TIMEOUT must be positive")
	}
	if cfg.AssemblyAIMaxAttempts <= 0 {
		return Config{}, fmt.Errorf("ASSEMBLYAI_MAX_ATTEMPTS must be positive")
	}

	return cfg, nil
}

func envOrDefault(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

func stringsTrimSpace(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}

func durationFromEnv(key string, fallback time.Duration) (time.Duration, error) {
	v := stringsTrimSpace(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return d, nil
}

func intFromEnv(key string, fallback int) (int, error) {
	v := stringsTrimSpace(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return n, nil
}

func boolFromEnv(key string, fallback bool) (bool, error) {
	v := strings.ToLower(stringsTrimSpace(key))
	if v == "" {
		return fallback, nil
	}
	switch v {
	case "1", "true", "t", "yes", "y", "on":
		return true, nil
	case "0", "false", "f", "no", "n", "off":
		return false, nil
	default:
		return false, fmt.Errorf("%s parse error: expected bool", key)
	}
}
