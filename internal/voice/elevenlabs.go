package voice

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/antoniostano/switchboard/internal/audio"
	"github.com/antoniostano/switchboard/internal/segment"
)

type ElevenLabsConfig struct {
	APIKey            string
	WSBaseURL         string
	VoiceID           string
	ModelID           string
	OutputFormat      string
	KeepAliveInterval time.Duration
	ConnectTimeout    time.Duration
	Stability         float64
	SimilarityBoost   float64
	Speed             float64
}

// ElevenLabsTTS speaks through the ElevenLabs stream-input WebSocket. Output
// is normalized to 8kHz mu-law for the telephony transport: ulaw_8000 streams
// pass through, pcm_16000 streams are decimated and companded locally.
type ElevenLabsTTS struct {
	cfg  ElevenLabsConfig
	dial dialFunc

	mu       sync.Mutex
	writeMu  sync.Mutex
	conn     wsConn
	gen      int
	closed   bool
	lastSend time.Time

	audio observers[[]byte]
}

func NewElevenLabsTTS(cfg ElevenLabsConfig) *ElevenLabsTTS {
	if strings.TrimSpace(cfg.WSBaseURL) == "" {
		cfg.WSBaseURL = "wss://api.elevenlabs.io"
	}
	if strings.TrimSpace(cfg.ModelID) == "" {
		cfg.ModelID = "eleven_turbo_v2"
	}
	if strings.TrimSpace(cfg.OutputFormat) == "" {
		cfg.OutputFormat = "ulaw_8000"
	}
	if cfg.KeepAliveInterval <= 0 {
		cfg.KeepAliveInterval = 15 * time.Second
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = 10 * time.Second
	}
	if cfg.Stability <= 0 || cfg.Stability > 1 {
		cfg.Stability = 0.42
	}
	if cfg.SimilarityBoost <= 0 || cfg.SimilarityBoost > 1 {
		cfg.SimilarityBoost = 0.85
	}
	if cfg.Speed < 0.7 || cfg.Speed > 1.2 {
		cfg.Speed = 1.0
	}
	return &ElevenLabsTTS{cfg: cfg, dial: gorillaDial}
}

func (s *ElevenLabsTTS) endpoint() (string, error) {
	if strings.TrimSpace(s.cfg.VoiceID) == "" {
		return "", fmt.Errorf("elevenlabs voice id is required")
	}
	u, err := url.Parse(strings.TrimRight(s.cfg.WSBaseURL, "/") +
		"/v1/text-to-speech/" + url.PathEscape(s.cfg.VoiceID) + "/stream-input")
	if err != nil {
		return "", err
	}
	q := u.Query()
	q.Set("model_id", s.cfg.ModelID)
	q.Set("output_format", s.cfg.OutputFormat)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// Connect opens the stream and sends the voice-settings handshake. Idempotent
// while a connection is live.
func (s *ElevenLabsTTS) Connect(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connectLocked(ctx)
}

func (s *ElevenLabsTTS) connectLocked(ctx context.Context) error {
	if s.closed {
		return ErrClosed
	}
	if s.conn != nil {
		return nil
	}

	endpoint, err := s.endpoint()
	if err != nil {
		return err
	}

	dialCtx, cancel := context.WithTimeout(ctx, s.cfg.ConnectTimeout)
	defer cancel()

	header := http.Header{}
	header.Set("xi-api-key", s.cfg.APIKey)

	conn, err := s.dial(dialCtx, endpoint, header)
	if err != nil {
		return fmt.Errorf("elevenlabs connect: %w", err)
	}

	s.conn = conn
	s.gen++
	s.lastSend = time.Now()

	// Prime the stream as documented for stream-input flows.
	if err := s.writeJSON(conn, map[string]any{
		"text": " ",
		"voice_settings": map[string]any{
			"stability":        s.cfg.Stability,
			"similarity_boost": s.cfg.SimilarityBoost,
			"speed":            s.cfg.Speed,
		},
	}); err != nil {
		_ = conn.Close()
		s.conn = nil
		return fmt.Errorf("elevenlabs handshake: %w", err)
	}

	go s.readLoop(conn, s.gen)
	go s.keepAliveLoop(conn, s.gen)
	return nil
}

// SendText queues text for synthesis. flush marks a complete utterance
// boundary and triggers generation of whatever the provider has buffered.
// Unlike the audio path there is no implicit reconnect: dropping
// model-generated speech silently is worse than surfacing the error.
func (s *ElevenLabsTTS) SendText(ctx context.Context, text string, flush bool) error {
	if !segment.Speakable(text) {
		return nil
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	conn := s.conn
	s.mu.Unlock()
	if conn == nil {
		return ErrNotConnected
	}

	payload := map[string]any{
		"text":                   text + " ",
		"try_trigger_generation": flush,
	}
	if flush {
		payload["flush"] = true
	}
	if err := s.writeJSON(conn, payload); err != nil {
		return fmt.Errorf("%w: %v", ErrNotConnected, err)
	}

	s.mu.Lock()
	s.lastSend = time.Now()
	s.mu.Unlock()
	return nil
}

func (s *ElevenLabsTTS) OnAudio(h AudioHandler) int {
	return s.audio.Add(h)
}

func (s *ElevenLabsTTS) OffAudio(id int) {
	s.audio.Remove(id)
}

// Halt interrupts in-flight synthesis: the current stream is torn down so
// pending provider audio is discarded, and a fresh stream is opened for the
// next utterance.
func (s *ElevenLabsTTS) Halt(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	if s.conn != nil {
		_ = s.conn.Close()
		s.conn = nil
	}
	err := s.connectLocked(ctx)
	s.mu.Unlock()
	return err
}

func (s *ElevenLabsTTS) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	if s.conn != nil {
		_ = s.conn.Close()
		s.conn = nil
	}
	return nil
}

func (s *ElevenLabsTTS) writeJSON(conn wsConn, payload map[string]any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return conn.WriteMessage(websocket.TextMessage, data)
}

type elevenLabsMessage struct {
	Audio   string `json:"audio"`
	IsFinal bool   `json:"isFinal"`
	Error   string `json:"error"`
}

func (s *ElevenLabsTTS) readLoop(conn wsConn, gen int) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			s.mu.Lock()
			if !s.closed && s.gen == gen && s.conn != nil {
				_ = s.conn.Close()
				s.conn = nil
			}
			s.mu.Unlock()
			return
		}

		var msg elevenLabsMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			continue
		}
		if msg.Error != "" {
			log.Printf("voice: elevenlabs stream error: %s", msg.Error)
			continue
		}
		if msg.Audio == "" {
			continue
		}

		raw, err := base64.StdEncoding.DecodeString(msg.Audio)
		if err != nil || len(raw) == 0 {
			continue
		}

		// A Halt bumps the generation; audio from the old stream is stale.
		s.mu.Lock()
		stale := s.gen != gen
		s.mu.Unlock()
		if stale {
			continue
		}

		s.audio.Emit(normalizeElevenLabsAudio(raw, s.cfg.OutputFormat))
	}
}

// normalizeElevenLabsAudio converts provider-native audio to 8kHz mu-law.
func normalizeElevenLabsAudio(raw []byte, outputFormat string) []byte {
	switch outputFormat {
	case "pcm_16000":
		samples := audio.PCM16BytesToSamples(raw)
		return audio.EncodeMuLaw(audio.Resample16kTo8k(samples))
	default:
		// ulaw_8000 is already transport-ready.
		return raw
	}
}

// keepAliveLoop sends a whitespace frame on idle so the provider does not
// drop the stream between utterances.
func (s *ElevenLabsTTS) keepAliveLoop(conn wsConn, gen int) {
	ticker := time.NewTicker(s.cfg.KeepAliveInterval)
	defer ticker.Stop()
	for range ticker.C {
		s.mu.Lock()
		if s.closed || s.gen != gen || s.conn == nil {
			s.mu.Unlock()
			return
		}
		idle := time.Since(s.lastSend) >= s.cfg.KeepAliveInterval
		s.mu.Unlock()

		if !idle {
			continue
		}
		if err := s.writeJSON(conn, map[string]any{"text": " "}); err != nil {
			return
		}
		s.mu.Lock()
		s.lastSend = time.Now()
		s.mu.Unlock()
	}
}
