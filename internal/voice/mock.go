package voice

import (
	"context"
	"sync"

	"github.com/antoniostano/switchboard/internal/audio"
	"github.com/antoniostano/switchboard/internal/segment"
)

// MockSTT is a local stand-in for a live transcription backend. Audio frames
// are counted but not transcribed; tests and the mock provider mode drive
// transcripts through EmitTranscript.
type MockSTT struct {
	mu        sync.Mutex
	connected bool
	closed    bool
	frames    int

	transcripts observers[Transcript]
}

func NewMockSTT() *MockSTT { return &MockSTT{} }

func (s *MockSTT) Connect(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	s.connected = true
	return nil
}

func (s *MockSTT) SendAudio(_ context.Context, frame []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	if !s.connected {
		// behave like the real adapters: implicit reconnect
		s.connected = true
	}
	if len(frame) > 0 {
		s.frames++
	}
	return nil
}

// EmitTranscript pushes a transcript event to all subscribers.
func (s *MockSTT) EmitTranscript(t Transcript) {
	s.transcripts.Emit(t)
}

// Frames reports how many non-empty audio frames were received.
func (s *MockSTT) Frames() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.frames
}

func (s *MockSTT) OnTranscript(h TranscriptHandler) int { return s.transcripts.Add(h) }
func (s *MockSTT) OffTranscript(id int)                 { s.transcripts.Remove(id) }

func (s *MockSTT) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.connected = false
	return nil
}

// MockTTS synthesizes deterministic audio locally: each spoken text produces
// one mu-law chunk whose payload is the companded text bytes. Halt and flush
// calls are recorded for assertions.
type MockTTS struct {
	mu        sync.Mutex
	connected bool
	closed    bool
	spoken    []string
	halts     int

	audio observers[[]byte]
}

func NewMockTTS() *MockTTS { return &MockTTS{} }

func (s *MockTTS) Connect(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	s.connected = true
	return nil
}

func (s *MockTTS) SendText(_ context.Context, text string, _ bool) error {
	if !segment.Speakable(text) {
		return nil
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	if !s.connected {
		s.mu.Unlock()
		return ErrNotConnected
	}
	s.spoken = append(s.spoken, text)
	s.mu.Unlock()

	samples := make([]int16, len(text))
	for i, b := range []byte(text) {
		samples[i] = int16(b) << 6
	}
	s.audio.Emit(audio.EncodeMuLaw(samples))
	return nil
}

func (s *MockTTS) OnAudio(h AudioHandler) int { return s.audio.Add(h) }
func (s *MockTTS) OffAudio(id int)            { s.audio.Remove(id) }

func (s *MockTTS) Halt(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	s.halts++
	return nil
}

// Spoken returns the texts sent for synthesis, in order.
func (s *MockTTS) Spoken() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.spoken))
	copy(out, s.spoken)
	return out
}

// Halts reports how many times synthesis was interrupted.
func (s *MockTTS) Halts() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.halts
}

func (s *MockTTS) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.connected = false
	return nil
}
