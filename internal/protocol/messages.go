package protocol

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
)

// MessageType identifies browser websocket JSON payload variants. Inbound
// audio travels as binary frames and never passes through here; JSON text
// frames carry control and server events.
type MessageType string

const (
	TypeControl      MessageType = "control"
	TypeAudioChunk   MessageType = "audio-chunk"
	TypeTranscript   MessageType = "transcript"
	TypeTurnStarted  MessageType = "turn-started"
	TypeInterrupted  MessageType = "interrupted"
	TypeError        MessageType = "error"
	TypeSessionEnded MessageType = "session-ended"
)

// Control actions the client may send.
const (
	ActionInterrupt = "interrupt"
	ActionEnd       = "end"
)

var ErrUnsupportedType = errors.New("unsupported message type")

type Envelope struct {
	Type MessageType `json:"type"`
}

// ClientControl is the only JSON message clients send.
type ClientControl struct {
	Type   MessageType `json:"type"`
	Action string      `json:"action"`
}

// AudioChunk carries one synthesized mu-law chunk to the client.
type AudioChunk struct {
	Type   MessageType `json:"type"`
	Format string      `json:"format"`
	Data   string      `json:"data"`
}

// TranscriptEvent mirrors recognized speech back to the client.
type TranscriptEvent struct {
	Type  MessageType `json:"type"`
	Text  string      `json:"text"`
	Final bool        `json:"final"`
}

type TurnStarted struct {
	Type   MessageType `json:"type"`
	TurnID string      `json:"turn_id"`
}

type Interrupted struct {
	Type MessageType `json:"type"`
}

type ErrorEvent struct {
	Type   MessageType `json:"type"`
	Code   string      `json:"code"`
	Detail string      `json:"detail,omitempty"`
}

type SessionEnded struct {
	Type   MessageType `json:"type"`
	Reason string      `json:"reason"`
}

// NewAudioChunk wraps raw mu-law bytes for transport.
func NewAudioChunk(mulaw []byte) AudioChunk {
	return AudioChunk{
		Type:   TypeAudioChunk,
		Format: "mulaw_8000",
		Data:   base64.StdEncoding.EncodeToString(mulaw),
	}
}

func NewError(code, detail string) ErrorEvent {
	return ErrorEvent{Type: TypeError, Code: code, Detail: detail}
}

func NewSessionEnded(reason string) SessionEnded {
	return SessionEnded{Type: TypeSessionEnded, Reason: reason}
}

// ParseClientMessage decodes one inbound JSON text frame.
func ParseClientMessage(raw []byte) (any, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("invalid envelope: %w", err)
	}

	switch env.Type {
	case TypeControl:
		var msg ClientControl
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil, err
		}
		switch msg.Action {
		case ActionInterrupt, ActionEnd:
			return msg, nil
		default:
			return nil, fmt.Errorf("unknown control action %q", msg.Action)
		}
	default:
		return nil, ErrUnsupportedType
	}
}
