package telephony

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
)

// Media-stream event names. The provider sends these as JSON text frames over
// the call's WebSocket.
const (
	EventConnected = "connected"
	EventStart     = "start"
	EventMedia     = "media"
	EventStop      = "stop"
)

// MediaPayload carries one base64 mu-law audio chunk.
type MediaPayload struct {
	Track     string `json:"track,omitempty"`
	Chunk     string `json:"chunk,omitempty"`
	Timestamp string `json:"timestamp,omitempty"`
	Payload   string `json:"payload"`
}

// StartPayload announces the media stream opening for a call.
type StartPayload struct {
	StreamSID  string `json:"streamSid"`
	CallSID    string `json:"callSid"`
	AccountSID string `json:"accountSid,omitempty"`
}

// Frame is one media-stream control frame, inbound or outbound.
type Frame struct {
	Event     string        `json:"event"`
	StreamSID string        `json:"streamSid,omitempty"`
	Start     *StartPayload `json:"start,omitempty"`
	Media     *MediaPayload `json:"media,omitempty"`
}

// ParseFrame decodes one inbound frame. Unknown events are not an error at
// this layer; callers ignore what they don't handle.
func ParseFrame(raw []byte) (Frame, error) {
	var f Frame
	if err := json.Unmarshal(raw, &f); err != nil {
		return Frame{}, fmt.Errorf("telephony: parse frame: %w", err)
	}
	if f.Event == "" {
		return Frame{}, fmt.Errorf("telephony: frame missing event")
	}
	return f, nil
}

// MediaAudio decodes the frame's base64 audio payload.
func (f Frame) MediaAudio() ([]byte, error) {
	if f.Media == nil || f.Media.Payload == "" {
		return nil, nil
	}
	data, err := base64.StdEncoding.DecodeString(f.Media.Payload)
	if err != nil {
		return nil, fmt.Errorf("telephony: decode media payload: %w", err)
	}
	return data, nil
}

// OutboundMedia wraps one mu-law chunk for the provider's outbound track.
func OutboundMedia(streamSID string, mulaw []byte) Frame {
	return Frame{
		Event:     EventMedia,
		StreamSID: streamSID,
		Media: &MediaPayload{
			Track:   "outbound",
			Chunk:   "0",
			Payload: base64.StdEncoding.EncodeToString(mulaw),
		},
	}
}

// IsTerminalStatus reports whether a status-callback value ends the call.
func IsTerminalStatus(status string) bool {
	switch status {
	case "completed", "busy", "no-answer", "canceled":
		return true
	default:
		return false
	}
}
