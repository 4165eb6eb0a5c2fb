package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/antoniostano/switchboard/internal/config"
	"github.com/antoniostano/switchboard/internal/observability"
	"github.com/antoniostano/switchboard/internal/protocol"
	"github.com/antoniostano/switchboard/internal/session"
	"github.com/antoniostano/switchboard/internal/telephony"
	"github.com/antoniostano/switchboard/internal/voice"
)

// Pipeline is the per-session voice loop the browser socket drives.
// Implemented by voice.Orchestrator.
type Pipeline interface {
	Start(ctx context.Context) error
	HandleInboundAudio(ctx context.Context, frame []byte)
	SpeakGreeting(ctx context.Context, text string) error
	Interrupt()
	OnAudio(h voice.AudioHandler) int
	OffAudio(id int)
	Close() error
}

// PipelineHooks mirror orchestrator lifecycle transitions onto the client
// socket.
type PipelineHooks struct {
	OnTurnStart  func(turnID string)
	OnInterrupt  func()
	OnTranscript func(text string, final bool)
}

// PipelineFactory builds one pipeline per browser session.
type PipelineFactory func(ctx context.Context, sessionID string, hooks PipelineHooks) (Pipeline, error)

type Server struct {
	cfg         config.Config
	sessions    *session.Manager
	bridge      *telephony.Bridge
	newPipeline PipelineFactory
	metrics     *observability.Metrics
	upgrader    websocket.Upgrader
}

func New(cfg config.Config, sessions *session.Manager, bridge *telephony.Bridge, newPipeline PipelineFactory, metrics *observability.Metrics) *Server {
	return &Server{
		cfg:         cfg,
		sessions:    sessions,
		bridge:      bridge,
		newPipeline: newPipeline,
		metrics:     metrics,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				// Only allow browser websocket connections from the same
				// origin unless explicitly opened up. Telephony providers and
				// other non-browser clients omit Origin.
				if cfg.AllowAnyOrigin {
					return true
				}
				origin := strings.TrimSpace(r.Header.Get("Origin"))
				if origin == "" {
					return true
				}
				u, err := url.Parse(origin)
				if err != nil {
					return false
				}
				if u.Scheme != "http" && u.Scheme != "https" {
					return false
				}
				return strings.EqualFold(u.Host, r.Host)
			},
		},
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Get("/healthz", s.handleHealth)
	r.Get("/readyz", s.handleReady)
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		observability.MetricsHandler().ServeHTTP(w, r)
	})

	r.Post("/v1/voice/session", s.handleCreateSession)
	r.Post("/v1/voice/session/{id}/end", s.handleEndSession)
	r.Get("/v1/voice/session/ws", s.handleSessionWS)

	r.Post("/v1/telephony/voice", s.handleInboundCall)
	r.Post("/v1/telephony/status", s.handleStatusCallback)
	r.Get("/v1/telephony/media/{callSid}", s.handleMediaStream)

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
	})
}

func (s *Server) handleReady(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"status":       "ready",
		"stt_provider": s.cfg.STTProvider,
		"tts_provider": s.cfg.TTSProvider,
	})
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req session.CreateRequest
	if err := decodeJSON(r, &req); err != nil && !errors.Is(err, errEmptyBody) {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	if req.Kind == "" {
		req.Kind = session.KindBrowser
	}
	if req.Kind != session.KindBrowser {
		respondError(w, http.StatusBadRequest, "invalid_kind", "only browser sessions can be created here")
		return
	}

	sess := s.sessions.Create(req.Kind)
	s.metrics.ActiveSessions.Set(float64(s.sessions.ActiveCount()))
	s.metrics.SessionEvents.WithLabelValues("created").Inc()

	respondJSON(w, http.StatusCreated, session.CreateResponse{
		SessionID:       sess.ID,
		Kind:            sess.Kind,
		Status:          sess.Status,
		StartedAt:       sess.StartedAt,
		LastActivityAt:  sess.LastActivityAt,
		InactivityTTLMS: s.cfg.SessionInactivityTimeout.Milliseconds(),
	})
}

func (s *Server) handleEndSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if strings.TrimSpace(id) == "" {
		respondError(w, http.StatusBadRequest, "invalid_session_id", "missing session id")
		return
	}

	sess, err := s.sessions.End(id)
	if err != nil {
		respondError(w, http.StatusNotFound, "session_not_found", err.Error())
		return
	}
	s.metrics.ActiveSessions.Set(float64(s.sessions.ActiveCount()))
	s.metrics.SessionEvents.WithLabelValues("ended").Inc()
	respondJSON(w, http.StatusOK, sess)
}

// handleSessionWS runs one browser voice connection: binary frames carry
// inbound audio, JSON text frames carry control, and everything outbound is
// JSON. Websocket writes stay single-threaded through the outbound queue.
func (s *Server) handleSessionWS(w http.ResponseWriter, r *http.Request) {
	sessionID := strings.TrimSpace(r.URL.Query().Get("session_id"))
	if sessionID == "" {
		respondError(w, http.StatusBadRequest, "missing_session_id", "query parameter session_id is required")
		return
	}
	if s.newPipeline == nil {
		respondError(w, http.StatusNotImplemented, "unavailable", "voice pipeline not configured")
		return
	}

	sess, err := s.sessions.Get(sessionID)
	if err != nil {
		respondError(w, http.StatusNotFound, "session_not_found", err.Error())
		return
	}

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	outbound := make(chan any, 256)
	enqueue := func(msg any) {
		select {
		case outbound <- msg:
		default:
			// Keep websocket writes single-threaded; drop if the queue is
			// saturated.
			log.Printf("httpapi: outbound queue full for session %s", sessionID)
		}
	}

	hooks := PipelineHooks{
		OnTurnStart: func(turnID string) {
			_ = s.sessions.StartTurn(sessionID, turnID)
			enqueue(protocol.TurnStarted{Type: protocol.TypeTurnStarted, TurnID: turnID})
		},
		OnInterrupt: func() {
			_ = s.sessions.Interrupt(sessionID)
			enqueue(protocol.Interrupted{Type: protocol.TypeInterrupted})
		},
		OnTranscript: func(text string, final bool) {
			enqueue(protocol.TranscriptEvent{Type: protocol.TypeTranscript, Text: text, Final: final})
		},
	}

	pipeline, err := s.newPipeline(ctx, sess.ID, hooks)
	if err != nil {
		respondError(w, http.StatusBadGateway, "pipeline_unavailable", err.Error())
		return
	}
	if err := pipeline.Start(ctx); err != nil {
		_ = pipeline.Close()
		respondError(w, http.StatusBadGateway, "pipeline_unavailable", err.Error())
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		_ = pipeline.Close()
		return
	}
	defer conn.Close()

	s.metrics.SessionEvents.WithLabelValues("ws_connected").Inc()

	audioSub := pipeline.OnAudio(func(chunk []byte) {
		enqueue(protocol.NewAudioChunk(chunk))
	})

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-outbound:
				if !ok {
					return
				}
				_ = conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
				if err := conn.WriteJSON(msg); err != nil {
					cancel()
					return
				}
			}
		}
	}()

	if err := pipeline.SpeakGreeting(ctx, s.cfg.GreetingText); err != nil {
		log.Printf("httpapi: greeting for session %s: %v", sessionID, err)
	}

	conn.SetReadLimit(2 << 20)
	_ = conn.SetReadDeadline(time.Now().Add(120 * time.Second))
	conn.SetPongHandler(func(string) error {
		_ = conn.SetReadDeadline(time.Now().Add(120 * time.Second))
		return nil
	})

	endReason := "client_disconnected"
readLoop:
	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			break
		}
		_ = conn.SetReadDeadline(time.Now().Add(120 * time.Second))

		switch msgType {
		case websocket.BinaryMessage:
			_ = s.sessions.Touch(sessionID)
			pipeline.HandleInboundAudio(ctx, data)

		case websocket.TextMessage:
			parsed, err := protocol.ParseClientMessage(data)
			if err != nil {
				enqueue(protocol.NewError("invalid_client_message", err.Error()))
				continue
			}
			ctrl, ok := parsed.(protocol.ClientControl)
			if !ok {
				continue
			}
			switch ctrl.Action {
			case protocol.ActionInterrupt:
				pipeline.Interrupt()
			case protocol.ActionEnd:
				endReason = "client_ended"
				break readLoop
			}
		}
	}

	// Stop the producers before the writer. The outbound channel is never
	// closed: a callback still in flight may enqueue after this point, and
	// those messages are simply dropped with the writer gone.
	pipeline.OffAudio(audioSub)
	if err := pipeline.Close(); err != nil {
		log.Printf("httpapi: close pipeline for session %s: %v", sessionID, err)
	}
	if _, err := s.sessions.End(sessionID); err == nil {
		s.metrics.ActiveSessions.Set(float64(s.sessions.ActiveCount()))
		s.metrics.SessionEvents.WithLabelValues("ended").Inc()
	}

	cancel()
	<-writerDone

	// The writer goroutine has exited, so the farewell can go out directly.
	_ = conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	_ = conn.WriteJSON(protocol.NewSessionEnded(endReason))
	s.metrics.SessionEvents.WithLabelValues("ws_disconnected").Inc()
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

var errEmptyBody = errors.New("empty body")

func decodeJSON(r *http.Request, out any) error {
	if r.Body == nil {
		return errEmptyBody
	}
	defer r.Body.Close()
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(out); err != nil {
		if strings.Contains(strings.ToLower(err.Error()), "eof") {
			return errEmptyBody
		}
		return err
	}
	return nil
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, errorResponse{Error: message, Code: code})
}

var _ Pipeline = (*voice.Orchestrator)(nil)
