package session

import (
	"context"
	"testing"
	"time"
)

func TestManagerCreateGetEnd(t *testing.T) {
	m := NewManager(time.Minute)
	s := m.Create(KindBrowser)
	if s.ID == "" {
		t.Fatalf("session ID should not be empty")
	}

	got, err := m.Get(s.ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.Kind != KindBrowser || got.Status != StatusActive {
		t.Fatalf("unexpected session state: %+v", got)
	}

	ended, err := m.End(s.ID)
	if err != nil {
		t.Fatalf("End() error = %v", err)
	}
	if ended.Status != StatusEnded {
		t.Fatalf("ended status = %q, want %q", ended.Status, StatusEnded)
	}
}

func TestManagerCreateForCallIsIdempotent(t *testing.T) {
	m := NewManager(time.Minute)
	a := m.CreateForCall("CA123")
	b := m.CreateForCall("CA123")
	if a.ID != b.ID {
		t.Fatalf("CreateForCall returned different sessions for the same call: %q vs %q", a.ID, b.ID)
	}

	got, err := m.GetByCall("CA123")
	if err != nil {
		t.Fatalf("GetByCall() error = %v", err)
	}
	if got.ID != a.ID || got.Kind != KindTelephony {
		t.Fatalf("unexpected session state: %+v", got)
	}
}

func TestManagerEndByCallUnbindsCall(t *testing.T) {
	m := NewManager(time.Minute)
	a := m.CreateForCall("CA123")

	if _, err := m.EndByCall("CA123"); err != nil {
		t.Fatalf("EndByCall() error = %v", err)
	}
	if _, err := m.GetByCall("CA123"); err != ErrNotFound {
		t.Fatalf("GetByCall after end error = %v, want ErrNotFound", err)
	}

	// A later webhook for the same call starts a fresh session.
	b := m.CreateForCall("CA123")
	if b.ID == a.ID {
		t.Fatalf("CreateForCall reused ended session %q", a.ID)
	}
}

func TestManagerInterruptClearsTurn(t *testing.T) {
	m := NewManager(time.Minute)
	s := m.Create(KindBrowser)
	if err := m.StartTurn(s.ID, "turn-1"); err != nil {
		t.Fatalf("StartTurn() error = %v", err)
	}
	if err := m.Interrupt(s.ID); err != nil {
		t.Fatalf("Interrupt() error = %v", err)
	}

	got, err := m.Get(s.ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.ActiveTurnID != "" {
		t.Fatalf("ActiveTurnID = %q, want empty", got.ActiveTurnID)
	}
	if got.InterruptionCount != 1 {
		t.Fatalf("InterruptionCount = %d, want 1", got.InterruptionCount)
	}
}

func TestManagerJanitorExpiresInactive(t *testing.T) {
	m := NewManager(30 * time.Millisecond)
	s := m.Create(KindBrowser)

	expired := make(chan string, 1)
	m.SetExpireHook(func(s *Session) { expired <- s.ID })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	m.StartJanitor(ctx, 10*time.Millisecond)

	select {
	case id := <-expired:
		if id != s.ID {
			t.Fatalf("expired session = %q, want %q", id, s.ID)
		}
	case <-time.After(time.Second):
		t.Fatalf("janitor did not expire inactive session")
	}

	got, err := m.Get(s.ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.Status != StatusEnded {
		t.Fatalf("Status = %q, want %q", got.Status, StatusEnded)
	}
}
