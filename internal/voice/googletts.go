package voice

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/antoniostano/switchboard/internal/audio"
	"github.com/antoniostano/switchboard/internal/reliability"
	"github.com/antoniostano/switchboard/internal/segment"
)

type GoogleTTSConfig struct {
	APIKey       string
	BaseURL      string
	Voice        string
	LanguageCode string
}

// GoogleTTS synthesizes one utterance per HTTP request. There is no
// persistent connection: Connect and Halt are no-ops, and each SendText is a
// complete round trip. Responses arrive as WAV-wrapped mu-law which is
// unwrapped before the audio callbacks fire.
type GoogleTTS struct {
	cfg    GoogleTTSConfig
	client *http.Client

	mu     sync.Mutex
	closed bool

	audio observers[[]byte]
}

func NewGoogleTTS(cfg GoogleTTSConfig) *GoogleTTS {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		cfg.BaseURL = "https://texttospeech.googleapis.com"
	}
	if strings.TrimSpace(cfg.Voice) == "" {
		cfg.Voice = "en-US-Neural2-F"
	}
	if strings.TrimSpace(cfg.LanguageCode) == "" {
		cfg.LanguageCode = "en-US"
	}
	return &GoogleTTS{
		cfg:    cfg,
		client: &http.Client{Timeout: 30 * time.Second},
	}
}

// Connect is a no-op: the connection is implicit per request.
func (s *GoogleTTS) Connect(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	return nil
}

type googleSynthesizeRequest struct {
	Input struct {
		Text string `json:"text"`
	} `json:"input"`
	Voice struct {
		Name         string `json:"name"`
		LanguageCode string `json:"languageCode"`
	} `json:"voice"`
	AudioConfig struct {
		AudioEncoding   string `json:"audioEncoding"`
		SampleRateHertz int    `json:"sampleRateHertz"`
	} `json:"audioConfig"`
}

type googleSynthesizeResponse struct {
	AudioContent string `json:"audioContent"`
}

// SendText synthesizes one utterance. flush has no transport meaning here:
// every call is already a complete request.
func (s *GoogleTTS) SendText(ctx context.Context, text string, _ bool) error {
	if !segment.Speakable(text) {
		return nil
	}

	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return ErrClosed
	}

	var req googleSynthesizeRequest
	req.Input.Text = text
	req.Voice.Name = s.cfg.Voice
	req.Voice.LanguageCode = s.cfg.LanguageCode
	req.AudioConfig.AudioEncoding = "MULAW"
	req.AudioConfig.SampleRateHertz = 8000

	payload, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("google tts marshal: %w", err)
	}

	endpoint := strings.TrimRight(s.cfg.BaseURL, "/") + "/v1/text:synthesize?key=" + s.cfg.APIKey
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	res, err := s.client.Do(httpReq)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrNotConnected, err)
	}
	defer res.Body.Close()

	if reliability.IsAuthHTTPStatus(res.StatusCode) {
		return &AuthError{Provider: "google-tts", Status: res.StatusCode}
	}
	if res.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(res.Body, 1<<10))
		return fmt.Errorf("google tts status %d: %s", res.StatusCode, string(body))
	}

	var out googleSynthesizeResponse
	if err := json.NewDecoder(res.Body).Decode(&out); err != nil {
		return fmt.Errorf("google tts decode: %w", err)
	}

	raw, err := base64.StdEncoding.DecodeString(out.AudioContent)
	if err != nil || len(raw) == 0 {
		// Malformed payload counts as no audio produced, not a dead session.
		return nil
	}

	if pcm := audio.ExtractPCMFromWAV(raw); pcm != nil {
		raw = pcm
	}
	if len(raw) == 0 {
		return nil
	}

	s.audio.Emit(raw)
	return nil
}

func (s *GoogleTTS) OnAudio(h AudioHandler) int {
	return s.audio.Add(h)
}

func (s *GoogleTTS) OffAudio(id int) {
	s.audio.Remove(id)
}

// Halt is best-effort only: an HTTP request already in flight cannot be
// interrupted mid-synthesis.
func (s *GoogleTTS) Halt(_ context.Context) error { return nil }

func (s *GoogleTTS) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}
