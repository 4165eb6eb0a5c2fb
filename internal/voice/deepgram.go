package voice

import (
	"context"
	"encoding/json"
	"fmt"
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

// wsConn is the slice of *websocket.Conn the adapters need; tests substitute
// their own implementation.
type wsConn interface {
	ReadMessage() (int, []byte, error)
	WriteMessage(messageType int, data []byte) error
	Close() error
}

type dialFunc func(ctx context.Context, urlStr string, header http.Header) (wsConn, error)

func gorillaDial(ctx context.Context, urlStr string, header http.Header) (wsConn, error) {
	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, urlStr, header)
	if err != nil {
		if resp != nil && reliability.IsAuthHTTPStatus(resp.StatusCode) {
			return nil, &AuthError{Provider: "websocket", Status: resp.StatusCode}
		}
		return nil, err
	}
	return conn, nil
}

type DeepgramConfig struct {
	APIKey         string
	WSBaseURL      string
	Model          string
	SampleRate     int
	Encoding       string
	ReconnectDelay time.Duration
	ConnectTimeout time.Duration
	Metrics        *observability.Metrics
}

// DeepgramSTT streams audio to the Deepgram live-transcription WebSocket.
// A dropped connection is redialed on a fixed delay, indefinitely, until the
// session is deliberately closed.
type DeepgramSTT struct {
	cfg  DeepgramConfig
	dial dialFunc

	mu     sync.Mutex
	conn   wsConn
	gen    int
	closed bool

	transcripts observers[Transcript]
}

func NewDeepgramSTT(cfg DeepgramConfig) *DeepgramSTT {
	if strings.TrimSpace(cfg.WSBaseURL) == "" {
		cfg.WSBaseURL = "wss://api.deepgram.com"
	}
	if strings.TrimSpace(cfg.Model) == "" {
		cfg.Model = "nova-2"
	}
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = 8000
	}
	if strings.TrimSpace(cfg.Encoding) == "" {
		cfg.Encoding = "mulaw"
	}
	if cfg.ReconnectDelay <= 0 {
		cfg.ReconnectDelay = time.Second
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = 10 * time.Second
	}
	return &DeepgramSTT{cfg: cfg, dial: gorillaDial}
}

func (s *DeepgramSTT) endpoint() (string, error) {
	u, err := url.Parse(strings.TrimRight(s.cfg.WSBaseURL, "/") + "/v1/listen")
	if err != nil {
		return "", err
	}
	q := u.Query()
	q.Set("model", s.cfg.Model)
	q.Set("encoding", s.cfg.Encoding)
	q.Set("sample_rate", strconv.Itoa(s.cfg.SampleRate))
	q.Set("channels", "1")
	q.Set("punctuate", "true")
	q.Set("interim_results", "true")
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// Connect is idempotent: calling it with a live connection is a no-op.
func (s *DeepgramSTT) Connect(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connectLocked(ctx)
}

func (s *DeepgramSTT) connectLocked(ctx context.Context) error {
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
	header.Set("Authorization", "Token "+s.cfg.APIKey)

	conn, err := s.dial(dialCtx, endpoint, header)
	if err != nil {
		return fmt.Errorf("deepgram connect: %w", err)
	}

	s.conn = conn
	s.gen++
	go s.readLoop(conn, s.gen)
	return nil
}

// SendAudio forwards one mu-law frame. A dead session gets one implicit
// reconnect; if that also fails the frame is dropped and the error returned.
// Frames are never buffered for retry.
func (s *DeepgramSTT) SendAudio(ctx context.Context, frame []byte) error {
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
		// One reconnect attempt, then give up on this frame.
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

func (s *DeepgramSTT) OnTranscript(h TranscriptHandler) int {
	return s.transcripts.Add(h)
}

func (s *DeepgramSTT) OffTranscript(id int) {
	s.transcripts.Remove(id)
}

// Close disables reconnection and tears down the connection. Safe to call
// more than once.
func (s *DeepgramSTT) Close() error {
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

type deepgramResult struct {
	Type    string `json:"type"`
	IsFinal bool   `json:"is_final"`
	Channel struct {
		Alternatives []struct {
			Transcript string `json:"transcript"`
		} `json:"alternatives"`
	} `json:"channel"`
}

func (s *DeepgramSTT) readLoop(conn wsConn, gen int) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			s.handleDisconnect(gen)
			return
		}
		if t, ok := parseDeepgramMessage(data); ok {
			s.transcripts.Emit(t)
		}
	}
}

func parseDeepgramMessage(data []byte) (Transcript, bool) {
	var res deepgramResult
	if err := json.Unmarshal(data, &res); err != nil {
		return Transcript{}, false
	}
	if res.Type != "Results" || len(res.Channel.Alternatives) == 0 {
		return Transcript{}, false
	}
	text := strings.TrimSpace(res.Channel.Alternatives[0].Transcript)
	if text == "" {
		return Transcript{}, false
	}
	return Transcript{Text: text, IsFinal: res.IsFinal}, true
}

// dropConn clears the connection if it still belongs to generation gen. A
// stale reader must not clobber a newer connection.
func (s *DeepgramSTT) dropConn(gen int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || s.gen != gen || s.conn == nil {
		return false
	}
	_ = s.conn.Close()
	s.conn = nil
	return true
}

func (s *DeepgramSTT) countReconnect(outcome string) {
	if s.cfg.Metrics != nil {
		s.cfg.Metrics.ProviderReconnects.WithLabelValues("deepgram", outcome).Inc()
	}
}

func (s *DeepgramSTT) handleDisconnect(gen int) {
	if !s.dropConn(gen) {
		return
	}

	policy := reliability.FixedDelay{Interval: s.cfg.ReconnectDelay}
	go func() {
		for attempt := 1; ; attempt++ {
			delay, ok := policy.Delay(attempt)
			if !ok {
				return
			}
			time.Sleep(delay)

			s.mu.Lock()
			if s.closed || s.conn != nil {
				s.mu.Unlock()
				return
			}
			err := s.connectLocked(context.Background())
			s.mu.Unlock()
			if err == nil {
				s.countReconnect("success")
				return
			}
			s.countReconnect("failure")
			log.Printf("voice: deepgram reconnect attempt %d failed: %v", attempt, err)
		}
	}()
}
