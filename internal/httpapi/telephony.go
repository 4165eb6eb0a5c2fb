package httpapi

import (
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/antoniostano/switchboard/internal/telephony"
)

// handleInboundCall answers the provider's call-setup webhook with TwiML.
// The bridge decides whether that is a media-stream connect or a spoken
// apology; either way the response is a valid document, never an HTTP error
// the provider would retry.
func (s *Server) handleInboundCall(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_form", err.Error())
		return
	}
	callSID := strings.TrimSpace(r.PostFormValue("CallSid"))
	if callSID == "" {
		respondError(w, http.StatusBadRequest, "missing_call_sid", "form field CallSid is required")
		return
	}
	from := strings.TrimSpace(r.PostFormValue("From"))
	to := strings.TrimSpace(r.PostFormValue("To"))

	body, err := s.bridge.HandleInboundCall(r.Context(), callSID, from, to)
	if body == nil {
		respondError(w, http.StatusInternalServerError, "twiml_failed", err.Error())
		return
	}

	w.Header().Set("Content-Type", "text/xml; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}

func (s *Server) handleStatusCallback(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte("Error"))
		return
	}
	callSID := strings.TrimSpace(r.PostFormValue("CallSid"))
	status := strings.TrimSpace(r.PostFormValue("CallStatus"))
	if callSID == "" {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte("Error"))
		return
	}

	s.bridge.HandleStatusCallback(r.Context(), callSID, status)
	_, _ = w.Write([]byte("OK"))
}

// wsFrameWriter serializes outbound media frames onto one websocket
// connection.
type wsFrameWriter struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (w *wsFrameWriter) WriteFrame(f telephony.Frame) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	_ = w.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	return w.conn.WriteJSON(f)
}

// handleMediaStream runs one telephony media-stream connection. Frames are
// JSON text messages; the call SID comes from the URL the setup webhook
// handed to the provider.
func (s *Server) handleMediaStream(w http.ResponseWriter, r *http.Request) {
	callSID := strings.TrimSpace(chi.URLParam(r, "callSid"))
	if callSID == "" {
		respondError(w, http.StatusBadRequest, "missing_call_sid", "missing call sid")
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	s.metrics.SessionEvents.WithLabelValues("media_ws_connected").Inc()

	detach := s.bridge.AttachConnection(callSID, &wsFrameWriter{conn: conn})
	defer detach()

	conn.SetReadLimit(1 << 20)
	_ = conn.SetReadDeadline(time.Now().Add(120 * time.Second))

	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			break
		}
		_ = conn.SetReadDeadline(time.Now().Add(120 * time.Second))
		if msgType != websocket.TextMessage {
			continue
		}

		frame, err := telephony.ParseFrame(data)
		if err != nil {
			log.Printf("httpapi: media stream for call %s: %v", callSID, err)
			continue
		}
		s.bridge.HandleFrame(r.Context(), callSID, frame)
		if frame.Event == telephony.EventStop {
			break
		}
	}

	s.metrics.SessionEvents.WithLabelValues("media_ws_disconnected").Inc()
}
