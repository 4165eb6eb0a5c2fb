package voice

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrNotConnected is returned when an operation needs a live provider
	// session and none exists.
	ErrNotConnected = errors.New("voice: not connected")

	// ErrClosed is returned when an operation is attempted on a session that
	// was deliberately closed.
	ErrClosed = errors.New("voice: session closed")
)

// AuthError marks a rejected credential. Not recoverable without a new key.
type AuthError struct {
	Provider string
	Status   int
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("voice: %s rejected credentials (status %d)", e.Provider, e.Status)
}

// Transcript is a normalized STT event. Consumers accumulate non-final
// transcripts and commit on IsFinal.
type Transcript struct {
	Text    string
	IsFinal bool
}

// TranscriptHandler receives transcript events in provider emission order.
type TranscriptHandler func(Transcript)

// AudioHandler receives synthesized audio already normalized for the active
// output transport (telephony expects 8kHz mu-law).
type AudioHandler func(chunk []byte)

// SpeechToText maintains a live transcription session with one provider.
// Connect is idempotent; SendAudio attempts one implicit reconnect on a dead
// session and then drops the frame rather than blocking the pipeline.
type SpeechToText interface {
	Connect(ctx context.Context) error
	SendAudio(ctx context.Context, frame []byte) error
	OnTranscript(h TranscriptHandler) int
	OffTranscript(id int)
	Close() error
}

// TextToSpeech synthesizes text into audio. SendText with flush=true marks a
// complete utterance boundary. Halt interrupts in-flight synthesis for
// barge-in; request/response providers treat it as a best-effort no-op.
type TextToSpeech interface {
	Connect(ctx context.Context) error
	SendText(ctx context.Context, text string, flush bool) error
	OnAudio(h AudioHandler) int
	OffAudio(id int)
	Halt(ctx context.Context) error
	Close() error
}
