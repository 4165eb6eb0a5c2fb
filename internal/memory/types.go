package memory

import (
	"context"
	"time"
)

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// TurnRecord stores a single user or assistant conversational turn.
type TurnRecord struct {
	ID        string    `json:"id"`
	SessionID string    `json:"session_id"`
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// Store persists and retrieves the conversation log.
type Store interface {
	SaveTurn(ctx context.Context, record TurnRecord) error
	RecentTurns(ctx context.Context, sessionID string, limit int) ([]TurnRecord, error)
	Close() error
}

// CallerRecord is the result of the call-setup-time caller lookup, persisted
// so the media-stream phase (which may land on a different connection) can
// pick it up by call SID.
type CallerRecord struct {
	CallSID     string    `json:"call_sid"`
	From        string    `json:"from"`
	To          string    `json:"to"`
	DisplayName string    `json:"display_name"`
	CreatedAt   time.Time `json:"created_at"`
}

// CallerStore is the small cross-phase handoff keyed by call SID. A missing
// record is not an error: the stream phase proceeds without caller context.
type CallerStore interface {
	PutCaller(ctx context.Context, record CallerRecord) error
	GetCaller(ctx context.Context, callSID string) (CallerRecord, bool, error)
	DeleteCaller(ctx context.Context, callSID string) error
}
