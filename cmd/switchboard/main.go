package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/antoniostano/switchboard/internal/brain"
	"github.com/antoniostano/switchboard/internal/config"
	"github.com/antoniostano/switchboard/internal/httpapi"
	"github.com/antoniostano/switchboard/internal/memory"
	"github.com/antoniostano/switchboard/internal/observability"
	"github.com/antoniostano/switchboard/internal/session"
	"github.com/antoniostano/switchboard/internal/telephony"
	"github.com/antoniostano/switchboard/internal/voice"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	metrics := observability.NewMetrics(cfg.MetricsNamespace)

	ctx := context.Background()
	store, callers, err := memory.NewStores(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("memory store init failed: %v", err)
	}
	defer store.Close()

	brainAdapter, err := brain.NewAdapter(brain.Config{
		Mode:    cfg.BrainMode,
		HTTPURL: cfg.BrainHTTPURL,
	})
	if err != nil {
		log.Fatalf("brain adapter init failed: %v", err)
	}

	validateProviderKeys(cfg)

	sessions := session.NewManager(cfg.SessionInactivityTimeout)
	sessions.SetExpireHook(func(_ *session.Session) {
		metrics.SessionEvents.WithLabelValues("expired").Inc()
		metrics.ActiveSessions.Set(float64(sessions.ActiveCount()))
	})

	// Every conversation gets its own provider sessions: local adapter state
	// (reconnect counters, failover stickiness) must never leak across calls.
	newOrchestrator := func(sessionID, callerName string, hooks httpapi.PipelineHooks) *voice.Orchestrator {
		stt, tts := buildProviders(cfg, metrics, sttTerminalHook(sessions, metrics, sessionID))
		return voice.NewOrchestrator(voice.OrchestratorConfig{
			SessionID:    sessionID,
			STT:          stt,
			TTS:          tts,
			Brain:        brainAdapter,
			Store:        store,
			Metrics:      metrics,
			CallerName:   callerName,
			OnTurnStart:  hooks.OnTurnStart,
			OnInterrupt:  hooks.OnInterrupt,
			OnTranscript: hooks.OnTranscript,
		})
	}

	bridge := telephony.NewBridge(telephony.BridgeConfig{
		Sessions:      sessions,
		Callers:       callers,
		Greeting:      cfg.GreetingText,
		PublicBaseURL: cfg.PublicBaseURL,
		Metrics:       metrics,
		NewPipeline: func(ctx context.Context, sessionID, callerName string) (telephony.CallPipeline, error) {
			return newOrchestrator(sessionID, callerName, httpapi.PipelineHooks{
				OnTurnStart: func(turnID string) { _ = sessions.StartTurn(sessionID, turnID) },
				OnInterrupt: func() { _ = sessions.Interrupt(sessionID) },
			}), nil
		},
	})

	browserFactory := func(ctx context.Context, sessionID string, hooks httpapi.PipelineHooks) (httpapi.Pipeline, error) {
		return newOrchestrator(sessionID, "", hooks), nil
	}

	api := httpapi.New(cfg, sessions, bridge, browserFactory, metrics)
	httpServer := &http.Server{
		Addr:    cfg.BindAddr,
		Handler: api.Router(),
	}

	runCtx, runCancel := context.WithCancel(context.Background())
	defer runCancel()
	sessions.StartJanitor(runCtx, 5*time.Second)

	go func() {
		log.Printf("server listening on %s (stt=%s tts=%s)", cfg.BindAddr, cfg.STTProvider, cfg.TTSProvider)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("listen error: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	log.Printf("shutdown signal received")

	runCancel()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("graceful shutdown failed: %v", err)
		_ = httpServer.Close()
	}

	log.Printf("shutdown complete")
}

func validateProviderKeys(cfg config.Config) {
	switch strings.ToLower(strings.TrimSpace(cfg.STTProvider)) {
	case "deepgram":
		if cfg.DeepgramAPIKey == "" {
			log.Fatalf("STT_PROVIDER=deepgram but DEEPGRAM_API_KEY is not set")
		}
	case "assemblyai":
		if cfg.AssemblyAIAPIKey == "" {
			log.Fatalf("STT_PROVIDER=assemblyai but ASSEMBLYAI_API_KEY is not set")
		}
	}
	switch strings.ToLower(strings.TrimSpace(cfg.TTSProvider)) {
	case "elevenlabs":
		if cfg.ElevenLabsAPIKey == "" {
			log.Fatalf("TTS_PROVIDER=elevenlabs but ELEVENLABS_API_KEY is not set")
		}
	case "google":
		if cfg.GoogleTTSAPIKey == "" {
			log.Fatalf("TTS_PROVIDER=google but GOOGLE_TTS_API_KEY is not set")
		}
	}
}

// sttTerminalHook builds the callback invoked when a speech-to-text adapter
// gives up reconnecting. The session is ended so a dead transcription path
// never leaves a conversation looking live.
func sttTerminalHook(sessions *session.Manager, metrics *observability.Metrics, sessionID string) func(error) {
	return func(err error) {
		log.Printf("session %s: stt terminal failure: %v", sessionID, err)
		metrics.ProviderErrors.WithLabelValues("stt", "terminal").Inc()
		if _, endErr := sessions.End(sessionID); endErr == nil {
			metrics.SessionEvents.WithLabelValues("stt_failed").Inc()
			metrics.ActiveSessions.Set(float64(sessions.ActiveCount()))
		}
	}
}

// buildProviders assembles the STT/TTS pair for one conversation. When the
// primary pair is Deepgram + ElevenLabs and the secondary credentials are
// present, the pair is wrapped in sticky failover onto AssemblyAI + Google.
func buildProviders(cfg config.Config, metrics *observability.Metrics, onSTTTerminal func(error)) (voice.SpeechToText, voice.TextToSpeech) {
	sttProvider := strings.ToLower(strings.TrimSpace(cfg.STTProvider))
	ttsProvider := strings.ToLower(strings.TrimSpace(cfg.TTSProvider))

	stt := buildSTT(cfg, metrics, sttProvider, onSTTTerminal)
	tts := buildTTS(cfg, ttsProvider)

	if sttProvider == "deepgram" && ttsProvider == "elevenlabs" &&
		cfg.AssemblyAIAPIKey != "" && cfg.GoogleTTSAPIKey != "" {
		return voice.NewFailoverPair(stt, tts, buildSTT(cfg, metrics, "assemblyai", onSTTTerminal), buildTTS(cfg, "google"))
	}
	return stt, tts
}

func buildSTT(cfg config.Config, metrics *observability.Metrics, provider string, onTerminal func(error)) voice.SpeechToText {
	switch provider {
	case "deepgram":
		return voice.NewDeepgramSTT(voice.DeepgramConfig{
			APIKey:         cfg.DeepgramAPIKey,
			WSBaseURL:      cfg.DeepgramWSBaseURL,
			Model:          cfg.DeepgramModel,
			ReconnectDelay: cfg.DeepgramReconnectDelay,
			ConnectTimeout: cfg.ProviderConnectTimeout,
			Metrics:        metrics,
		})
	case "assemblyai":
		return voice.NewAssemblyAISTT(voice.AssemblyAIConfig{
			APIKey:          cfg.AssemblyAIAPIKey,
			WSBaseURL:       cfg.AssemblyAIWSBaseURL,
			TokenURL:        cfg.AssemblyAITokenURL,
			BackoffBase:     cfg.AssemblyAIBackoffBase,
			MaxAttempts:     cfg.AssemblyAIMaxAttempts,
			ConnectTimeout:  cfg.ProviderConnectTimeout,
			Metrics:         metrics,
			OnTerminalError: onTerminal,
		})
	default:
		return voice.NewMockSTT()
	}
}

func buildTTS(cfg config.Config, provider string) voice.TextToSpeech {
	switch provider {
	case "elevenlabs":
		return voice.NewElevenLabsTTS(voice.ElevenLabsConfig{
			APIKey:            cfg.ElevenLabsAPIKey,
			WSBaseURL:         cfg.ElevenLabsWSBaseURL,
			VoiceID:           cfg.ElevenLabsVoiceID,
			ModelID:           cfg.ElevenLabsModelID,
			OutputFormat:      cfg.ElevenLabsOutputFormat,
			KeepAliveInterval: cfg.TTSKeepAliveInterval,
			ConnectTimeout:    cfg.ProviderConnectTimeout,
		})
	case "google":
		return voice.NewGoogleTTS(voice.GoogleTTSConfig{
			APIKey:  cfg.GoogleTTSAPIKey,
			BaseURL: cfg.GoogleTTSBaseURL,
			Voice:   cfg.GoogleTTSVoice,
		})
	default:
		return voice.NewMockTTS()
	}
}
