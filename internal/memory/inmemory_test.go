package memory

import (
	"context"
	"testing"
)

func TestInMemoryStoreSaveAndRecent(t *testing.T) {
	s := NewInMemoryStore()
	ctx := context.Background()

	for _, content := range []string{"one", "two", "three"} {
		if err := s.SaveTurn(ctx, TurnRecord{SessionID: "s1", Role: "user", Content: content}); err != nil {
			t.Fatalf("SaveTurn() error = %v", err)
		}
	}

	got, err := s.RecentTurns(ctx, "s1", 2)
	if err != nil {
		t.Fatalf("RecentTurns() error = %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("len = %d, want 2", len(got))
	}
	if got[0].Content != "two" || got[1].Content != "three" {
		t.Fatalf("recent turns = %q,%q, want chronological tail", got[0].Content, got[1].Content)
	}
	if got[0].ID == "" || got[0].CreatedAt.IsZero() {
		t.Fatalf("record defaults not filled: %+v", got[0])
	}
}

func TestInMemoryStoreRecentTurnsEmptySession(t *testing.T) {
	s := NewInMemoryStore()
	got, err := s.RecentTurns(context.Background(), "missing", 5)
	if err != nil {
		t.Fatalf("RecentTurns() error = %v", err)
	}
	if got != nil {
		t.Fatalf("turns = %v, want nil", got)
	}
}

func TestInMemoryCallerHandoff(t *testing.T) {
	s := NewInMemoryStore()
	ctx := context.Background()

	if _, ok, err := s.GetCaller(ctx, "CA123"); err != nil || ok {
		t.Fatalf("GetCaller() = ok=%v err=%v, want miss without error", ok, err)
	}

	rec := CallerRecord{CallSID: "CA123", From: "+15550100", To: "+15550199", DisplayName: "Ada"}
	if err := s.PutCaller(ctx, rec); err != nil {
		t.Fatalf("PutCaller() error = %v", err)
	}

	got, ok, err := s.GetCaller(ctx, "CA123")
	if err != nil || !ok {
		t.Fatalf("GetCaller() = ok=%v err=%v, want hit", ok, err)
	}
	if got.DisplayName != "Ada" || got.From != "+15550100" {
		t.Fatalf("caller = %+v", got)
	}

	if err := s.DeleteCaller(ctx, "CA123"); err != nil {
		t.Fatalf("DeleteCaller() error = %v", err)
	}
	if _, ok, _ := s.GetCaller(ctx, "CA123"); ok {
		t.Fatalf("caller still present after delete")
	}
}
