package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	setCoreEnvEmpty(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.BindAddr != ":8080" {
		t.Fatalf("BindAddr = %q, want %q", cfg.BindAddr, ":8080")
	}
	if cfg.STTProvider != "deepgram" {
		t.Fatalf("STTProvider = %q, want %q", cfg.STTProvider, "deepgram")
	}
	if cfg.TTSProvider != "elevenlabs" {
		t.Fatalf("TTSProvider = %q, want %q", cfg.TTSProvider, "elevenlabs")
	}
	if cfg.ElevenLabsOutputFormat != "ulaw_8000" {
		t.Fatalf("ElevenLabsOutputFormat = %q, want %q", cfg.ElevenLabsOutputFormat, "ulaw_8000")
	}
	if cfg.ProviderConnectTimeout != 10*time.Second {
		t.Fatalf("ProviderConnectTimeout = %v, want 10s", cfg.ProviderConnectTimeout)
	}
	if cfg.AssemblyAIMaxAttempts != 3 {
		t.Fatalf("AssemblyAIMaxAttempts = %d, want 3", cfg.AssemblyAIMaxAttempts)
	}
	if cfg.TTSKeepAliveInterval != 15*time.Second {
		t.Fatalf("TTSKeepAliveInterval = %v, want 15s", cfg.TTSKeepAliveInterval)
	}
}

func TestLoadRejectsUnknownProviders(t *testing.T) {
	setCoreEnvEmpty(t)
	t.Setenv("STT_PROVIDER", "whisperx")

	if _, err := Load(); err == nil {
		t.Fatalf("Load() accepted unknown STT provider")
	}

	setCoreEnvEmpty(t)
	t.Setenv("TTS_PROVIDER", "espeak")

	if _, err := Load(); err == nil {
		t.Fatalf("Load() accepted unknown TTS provider")
	}
}

func TestLoadParsesDurationsAndBounds(t *testing.T) {
	setCoreEnvEmpty(t)
	t.Setenv("DEEPGRAM_RECONNECT_DELAY", "2500ms")
	t.Setenv("ASSEMBLYAI_MAX_ATTEMPTS", "5")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.DeepgramReconnectDelay != 2500*time.Millisecond {
		t.Fatalf("DeepgramReconnectDelay = %v, want 2.5s", cfg.DeepgramReconnectDelay)
	}
	if cfg.AssemblyAIMaxAttempts != 5 {
		t.Fatalf("AssemblyAIMaxAttempts = %d, want 5", cfg.AssemblyAIMaxAttempts)
	}

	t.Setenv("APP_SESSION_INACTIVITY_TIMEOUT", "1s")
	if _, err := Load(); err == nil {
		t.Fatalf("Load() accepted sub-5s inactivity timeout")
	}
}

func TestLoadRejectsMalformedValues(t *testing.T) {
	setCoreEnvEmpty(t)
	t.Setenv("PROVIDER_CONNECT_TIMEOUT", "soon")
	if _, err := Load(); err == nil {
		t.Fatalf("Load() accepted malformed duration")
	}

	setCoreEnvEmpty(t)
	t.Setenv("APP_ALLOW_ANY_ORIGIN", "maybe")
	if _, err := Load(); err == nil {
		t.Fatalf("Load() accepted malformed bool")
	}
}

func setCoreEnvEmpty(t *testing.T) {
	t.Helper()
	keys := []string{
		"APP_BIND_ADDR",
		"APP_PUBLIC_BASE_URL",
		"APP_SHUTDOWN_TIMEOUT",
		"APP_SESSION_INACTIVITY_TIMEOUT",
		"APP_METRICS_NAMESPACE",
		"APP_ALLOW_ANY_ORIGIN",
		"APP_GREETING_TEXT",
		"PROVIDER_CONNECT_TIMEOUT",
		"STT_PROVIDER",
		"TTS_PROVIDER",
		"DEEPGRAM_API_KEY",
		"DEEPGRAM_WS_BASE_URL",
		"DEEPGRAM_MODEL",
		"DEEPGRAM_RECONNECT_DELAY",
		"ASSEMBLYAI_API_KEY",
		"ASSEMBLYAI_WS_BASE_URL",
		"ASSEMBLYAI_TOKEN_URL",
		"ASSEMBLYAI_BACKOFF_BASE",
		"ASSEMBLYAI_MAX_ATTEMPTS",
		"ELEVENLABS_API_KEY",
		"ELEVENLABS_WS_BASE_URL",
		"ELEVENLABS_VOICE_ID",
		"ELEVENLABS_MODEL_ID",
		"ELEVENLABS_OUTPUT_FORMAT",
		"TTS_KEEPALIVE_INTERVAL",
		"GOOGLE_TTS_API_KEY",
		"GOOGLE_TTS_BASE_URL",
		"GOOGLE_TTS_VOICE",
		"DATABASE_URL",
		"BRAIN_MODE",
		"BRAIN_HTTP_URL",
	}
	for _, k := range keys {
		t.Setenv(k, "")
	}
}
