package voice

import (
	"context"
	"errors"
	"testing"
)

type connectCountingSTT struct {
	MockSTT
	connects   int
	connectErr error
}

func (s *connectCountingSTT) Connect(ctx context.Context) error {
	s.connects++
	if s.connectErr != nil {
		return s.connectErr
	}
	return s.MockSTT.Connect(ctx)
}

type connectCountingTTS struct {
	MockTTS
	connects   int
	connectErr error
}

func (s *connectCountingTTS) Connect(ctx context.Context) error {
	s.connects++
	if s.connectErr != nil {
		return s.connectErr
	}
	return s.MockTTS.Connect(ctx)
}

func TestFailoverPrefersPrimary(t *testing.T) {
	pSTT, pTTS := &connectCountingSTT{}, &connectCountingTTS{}
	fSTT, fTTS := &connectCountingSTT{}, &connectCountingTTS{}
	stt, tts := NewFailoverPair(pSTT, pTTS, fSTT, fTTS)

	if err := stt.Connect(context.Background()); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	if err := tts.Connect(context.Background()); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	if fSTT.connects != 0 || fTTS.connects != 0 {
		t.Fatalf("fallback connected (%d stt, %d tts) while primary healthy", fSTT.connects, fTTS.connects)
	}
}

func TestFailoverSwitchesAndSticks(t *testing.T) {
	pSTT := &connectCountingSTT{connectErr: errors.New("primary down")}
	pTTS := &connectCountingTTS{}
	fSTT, fTTS := &connectCountingSTT{}, &connectCountingTTS{}
	stt, tts := NewFailoverPair(pSTT, pTTS, fSTT, fTTS)

	if err := stt.Connect(context.Background()); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	if fSTT.connects != 1 {
		t.Fatalf("fallback stt connects = %d, want 1", fSTT.connects)
	}

	// Sticky: the shared state routes the TTS side to fallback too.
	if err := tts.Connect(context.Background()); err != nil {
		t.Fatalf("tts Connect() error = %v", err)
	}
	if pTTS.connects != 0 || fTTS.connects != 1 {
		t.Fatalf("tts connects primary=%d fallback=%d, want 0/1", pTTS.connects, fTTS.connects)
	}

	if err := tts.SendText(context.Background(), "Hello.", true); err != nil {
		t.Fatalf("SendText() error = %v", err)
	}
	if got := fTTS.Spoken(); len(got) != 1 {
		t.Fatalf("fallback spoken = %v, want the utterance", got)
	}
	if got := pTTS.Spoken(); len(got) != 0 {
		t.Fatalf("primary spoken = %v, want none", got)
	}
}

func TestFailoverRecoversToPrimary(t *testing.T) {
	pSTT := &connectCountingSTT{connectErr: errors.New("primary down")}
	pTTS := &connectCountingTTS{}
	fSTT, fTTS := &connectCountingSTT{}, &connectCountingTTS{}
	stt, _ := NewFailoverPair(pSTT, pTTS, fSTT, fTTS)

	if err := stt.Connect(context.Background()); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}

	// Fallback dies; primary is healthy again.
	fSTT.connectErr = errors.New("fallback down")
	pSTT.connectErr = nil
	if err := stt.Connect(context.Background()); err != nil {
		t.Fatalf("Connect() after recovery error = %v", err)
	}
	if pSTT.connects < 2 {
		t.Fatalf("primary connects = %d, want retry after fallback failure", pSTT.connects)
	}
}

func TestFailoverBothDown(t *testing.T) {
	pSTT := &connectCountingSTT{connectErr: errors.New("primary down")}
	fSTT := &connectCountingSTT{connectErr: errors.New("fallback down")}
	stt, _ := NewFailoverPair(pSTT, &connectCountingTTS{}, fSTT, &connectCountingTTS{})

	if err := stt.Connect(context.Background()); err == nil {
		t.Fatalf("Connect() expected error when both backends are down")
	}
}

func TestFailoverTranscriptSubscriptionSurvivesSwitch(t *testing.T) {
	pSTT := &connectCountingSTT{connectErr: errors.New("primary down")}
	fSTT := &connectCountingSTT{}
	stt, _ := NewFailoverPair(pSTT, &connectCountingTTS{}, fSTT, &connectCountingTTS{})

	var got []Transcript
	id := stt.OnTranscript(func(t Transcript) { got = append(got, t) })

	if err := stt.Connect(context.Background()); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	fSTT.EmitTranscript(Transcript{Text: "hello", IsFinal: true})
	if len(got) != 1 || got[0].Text != "hello" {
		t.Fatalf("transcripts = %v, want one from the active backend", got)
	}

	stt.OffTranscript(id)
	fSTT.EmitTranscript(Transcript{Text: "more", IsFinal: true})
	if len(got) != 1 {
		t.Fatalf("transcripts after unsubscribe = %d, want 1", len(got))
	}
}
