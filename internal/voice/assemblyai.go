package voice

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/antoniostano/switchboard/internal/observability"
	"github.com/antoniostano/switchboard/internal/reliability"
)

// assemblyTokenExpiryMargin keeps a cached ephemeral token from being used
// right at its expiry edge.
const assemblyTokenExpiryMargin = 30 * time.Second

type AssemblyAIConfig struct {
	APIKey         string
	WSBaseURL      string
	TokenURL       string
	SampleRate     int
	BackoffBase    time.Duration
	BackoffCap     time.Duration
	MaxAttempts    int
	ConnectTimeout time.Duration
	Metrics        *observability.Metrics

	// OnTerminalError fires once when reconnection attempts are exhausted.
	OnTerminalError func(error)
}

// AssemblyAISTT streams audio to the AssemblyAI v3 realtime WebSocket.
// Connection auth uses short-lived tokens fetched from the token endpoint and
// cached until close to expiry. Reconnects back off exponentially and give up
// after MaxAttempts, surfacing a terminal failure instead of retrying forever.
type AssemblyAISTT struct {
	cfg    AssemblyAIConfig
	dial   dialFunc
	client *http.Client

	mu     sync.Mutex
	conn   wsConn
	gen    int
	closed bool

	tokenMu     sync.Mutex
	token       string
	tokenExpiry time.Time

	transcripts observers[Transcript]
}

func NewAssemblyAISTT(cfg AssemblyAIConfig) *AssemblyAISTT {
	if strings.TrimSpace(cfg.WSBaseURL) == "" {
		cfg.WSBaseURL = "wss://streaming.assemblyai.com"
	}
	if strings.TrimSpace(cfg.TokenURL) == "" {
		cfg.TokenURL = "https://streaming.assemblyai.com/v3/token"
	}
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = 8000
	}
	if cfg.BackoffBase <= 0 {
		cfg.BackoffBase = time.Second
	}
	if cfg.BackoffCap <= 0 {
		cfg.BackoffCap = 30 * time.Second
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = 10 * time.Second
	}
	return &AssemblyAISTT{
		cfg:    cfg,
		dial:   gorillaDial,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

type assemblyTokenResponse struct {
	Token            string `json:"token"`
	ExpiresInSeconds int    `json:"expires_in_seconds"`
}

// sessionToken returns the cached ephemeral token, fetching a fresh one only
// when the cache is empty or within the expiry margin.
func (s *AssemblyAISTT) sessionToken(ctx context.Context) (string, error) {
	s.tokenMu.Lock()
	defer s.tokenMu.Unlock()

	if s.token != "" && time.Until(s.tokenExpiry) > assemblyTokenExpiryMargin {
		return s.token, nil
	}

	u, err := url.Parse(s.cfg.TokenURL)
	if err != nil {
		return "", err
	}
	q := u.Query()
	q.Set("expires_in_seconds", "600")
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", s.cfg.APIKey)

	res, err := s.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("assemblyai token: %w", err)
	}
	defer res.Body.Close()

	if reliability.IsAuthHTTPStatus(res.StatusCode) {
		return "", &AuthError{Provider: "assemblyai", Status: res.StatusCode}
	}
	if res.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(res.Body, 1<<10))
		return "", fmt.Errorf("assemblyai token status %d: %s", res.StatusCode, string(body))
	}

	var tok assemblyTokenResponse
	if err := json.NewDecoder(res.Body).Decode(&tok); err != nil {
		return "", fmt.Errorf("assemblyai token decode: %w", err)
	}
	if tok.Token == "" {
		return "", fmt.Errorf("assemblyai token response missing token")
	}

	s.token = tok.Token
	s.tokenExpiry = time.Now().Add(time.Duration(tok.ExpiresInSeconds) * time.Second)
	return s.token, nil
}

func (s *AssemblyAISTT) Connect(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connectLocked(ctx)
}

func (s *AssemblyAISTT) connectLocked(ctx context.Context) error {
	if s.closed {
		return ErrClosed
	}
	if s.conn != nil {
		return nil
	}

	dialCtx, cancel := context.WithTimeout(ctx, s.cfg.ConnectTimeout)
	defer cancel()

	token, err := s.sessionToken(dialCtx)
	if err != nil {
		return err
	}

	u, err := url.Parse(strings.TrimRight(s.cfg.WSBaseURL, "/") + "/v3/ws")
	if err != nil {
		return err
	}
	q := u.Query()
	q.Set("sample_rate", strconv.Itoa(s.cfg.SampleRate))
	q.Set("encoding", "pcm_mulaw")
	q.Set("format_turns", "true")
	q.Set("token", token)
	u.RawQuery = q.Encode()

	conn, err := s.dial(dialCtx, u.String(), nil)
	if err != nil {
		return fmt.Errorf("assemblyai connect: %w", err)
	}

	s.conn = conn
	s.gen++
	go s.readLoop(conn, s.gen)
	return nil
}

func (s *AssemblyAISTT) SendAudio(ctx context.Context, frame []byte) error {
	if len(frame) == 0 {
		return nil
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	if s.conn == nil {
		if err := s.connectLocked(ctx); err != nil {
			s.mu.Unlock()
			return fmt.Errorf("%w: %v", ErrNotConnected, err)
		}
	}
	conn := s.conn
	gen := s.gen
	s.mu.Unlock()

	if err := conn.WriteMessage(websocket.BinaryMessage, frame); err != nil {
		s.dropConn(gen)
		s.mu.Lock()
		if rerr := s.connectLocked(ctx); rerr != nil {
			s.mu.Unlock()
			s.countReconnect("failure")
			return fmt.Errorf("%w: %v", ErrNotConnected, rerr)
		}
		conn = s.conn
		s.mu.Unlock()
		s.countReconnect("success")
		if err := conn.WriteMessage(websocket.BinaryMessage, frame); err != nil {
			return fmt.Errorf("%w: %v", ErrNotConnected, err)
		}
	}
	return nil
}

func (s *AssemblyAISTT) OnTranscript(h TranscriptHandler) int {
	return s.transcripts.Add(h)
}

func (s *AssemblyAISTT) OffTranscript(id int) {
	s.transcripts.Remove(id)
}

func (s *AssemblyAISTT) Close() error {
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

type assemblyTurnMessage struct {
	Type            string `json:"type"`
	Transcript      string `json:"transcript"`
	EndOfTurn       bool   `json:"end_of_turn"`
	TurnIsFormatted bool   `json:"turn_is_formatted"`
}

func (s *AssemblyAISTT) readLoop(conn wsConn, gen int) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			s.handleDisconnect(gen)
			return
		}
		if t, ok := parseAssemblyMessage(data); ok {
			s.transcripts.Emit(t)
		}
	}
}

func parseAssemblyMessage(data []byte) (Transcript, bool) {
	var msg assemblyTurnMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return Transcript{}, false
	}
	if msg.Type != "Turn" {
		return Transcript{}, false
	}
	text := strings.TrimSpace(msg.Transcript)
	if text == "" {
		return Transcript{}, false
	}
	if msg.EndOfTurn && !msg.TurnIsFormatted {
		// The formatted copy of this turn follows; emitting both would
		// double-commit the utterance.
		return Transcript{}, false
	}
	return Transcript{Text: text, IsFinal: msg.EndOfTurn}, true
}

func (s *AssemblyAISTT) dropConn(gen int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || s.gen != gen || s.conn == nil {
		return false
	}
	_ = s.conn.Close()
	s.conn = nil
	return true
}

func (s *AssemblyAISTT) countReconnect(outcome string) {
	if s.cfg.Metrics != nil {
		s.cfg.Metrics.ProviderReconnects.WithLabelValues("assemblyai", outcome).Inc()
	}
}

func (s *AssemblyAISTT) handleDisconnect(gen int) {
	if !s.dropConn(gen) {
		return
	}

	policy := reliability.ExponentialBackoff{
		Base:        s.cfg.BackoffBase,
		Cap:         s.cfg.BackoffCap,
		MaxAttempts: s.cfg.MaxAttempts,
	}
	go func() {
		var lastErr error
		for attempt := 1; ; attempt++ {
			delay, ok := policy.Delay(attempt)
			if !ok {
				s.surfaceTerminal(lastErr)
				return
			}
			time.Sleep(delay)

			s.mu.Lock()
			if s.closed || s.conn != nil {
				s.mu.Unlock()
				return
			}
			lastErr = s.connectLocked(context.Background())
			s.mu.Unlock()
			if lastErr == nil {
				s.countReconnect("success")
				return
			}
			s.countReconnect("failure")
			log.Printf("voice: assemblyai reconnect attempt %d failed: %v", attempt, lastErr)
		}
	}()
}

func (s *AssemblyAISTT) surfaceTerminal(lastErr error) {
	err := fmt.Errorf("assemblyai reconnect attempts exhausted: %w", ErrNotConnected)
	if lastErr != nil {
		err = fmt.Errorf("assemblyai reconnect attempts exhausted: %w", lastErr)
	}

	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()

	if s.cfg.OnTerminalError != nil {
		s.cfg.OnTerminalError(err)
	} else {
		log.Printf("voice: %v", err)
	}
}
