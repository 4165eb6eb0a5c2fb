package voice

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
)

// NewFailoverPair wraps primary and fallback STT/TTS adapters behind the same
// contracts. Connect prefers the primary backend and switches to fallback when
// the primary fails; once fallback succeeds it stays active until it fails,
// then primary is retried. The STT and TTS sides share the sticky state so a
// degraded backend is avoided for both directions at once.
func NewFailoverPair(
	primarySTT SpeechToText,
	primaryTTS TextToSpeech,
	fallbackSTT SpeechToText,
	fallbackTTS TextToSpeech,
) (SpeechToText, TextToSpeech) {
	state := &failoverState{}
	return &failoverSTT{
			state:    state,
			primary:  primarySTT,
			fallback: fallbackSTT,
		}, &failoverTTS{
			state:    state,
			primary:  primaryTTS,
			fallback: fallbackTTS,
		}
}

type failoverState struct {
	fallbackActive atomic.Bool
}

type failoverSTT struct {
	state    *failoverState
	primary  SpeechToText
	fallback SpeechToText

	subMu sync.Mutex
	subs  map[int]int
}

func (f *failoverSTT) active() SpeechToText {
	if f.state.fallbackActive.Load() {
		return f.fallback
	}
	return f.primary
}

func (f *failoverSTT) Connect(ctx context.Context) error {
	if f.state.fallbackActive.Load() {
		fbErr := f.fallback.Connect(ctx)
		if fbErr == nil {
			return nil
		}
		// Fallback failed after being active; try primary again.
		prErr := f.primary.Connect(ctx)
		if prErr == nil {
			f.state.fallbackActive.Store(false)
			return nil
		}
		return fmt.Errorf("stt fallback failed: %v; stt primary failed: %w", fbErr, prErr)
	}

	prErr := f.primary.Connect(ctx)
	if prErr == nil {
		return nil
	}
	fbErr := f.fallback.Connect(ctx)
	if fbErr != nil {
		return fmt.Errorf("stt primary failed: %v; stt fallback failed: %w", prErr, fbErr)
	}
	f.state.fallbackActive.Store(true)
	return nil
}

func (f *failoverSTT) SendAudio(ctx context.Context, frame []byte) error {
	return f.active().SendAudio(ctx, frame)
}

// OnTranscript registers on both backends; only the active one has a live
// connection, so only its events fire.
func (f *failoverSTT) OnTranscript(h TranscriptHandler) int {
	pid := f.primary.OnTranscript(h)
	fid := f.fallback.OnTranscript(h)

	f.subMu.Lock()
	if f.subs == nil {
		f.subs = make(map[int]int)
	}
	f.subs[pid] = fid
	f.subMu.Unlock()
	return pid
}

func (f *failoverSTT) OffTranscript(id int) {
	f.subMu.Lock()
	fid, ok := f.subs[id]
	delete(f.subs, id)
	f.subMu.Unlock()

	f.primary.OffTranscript(id)
	if ok {
		f.fallback.OffTranscript(fid)
	}
}

func (f *failoverSTT) Close() error {
	prErr := f.primary.Close()
	fbErr := f.fallback.Close()
	if prErr != nil {
		return prErr
	}
	return fbErr
}

type failoverTTS struct {
	state    *failoverState
	primary  TextToSpeech
	fallback TextToSpeech

	subMu sync.Mutex
	subs  map[int]int
}

func (f *failoverTTS) active() TextToSpeech {
	if f.state.fallbackActive.Load() {
		return f.fallback
	}
	return f.primary
}

func (f *failoverTTS) Connect(ctx context.Context) error {
	if f.state.fallbackActive.Load() {
		fbErr := f.fallback.Connect(ctx)
		if fbErr == nil {
			return nil
		}
		prErr := f.primary.Connect(ctx)
		if prErr == nil {
			f.state.fallbackActive.Store(false)
			return nil
		}
		return fmt.Errorf("tts fallback failed: %v; tts primary failed: %w", fbErr, prErr)
	}

	prErr := f.primary.Connect(ctx)
	if prErr == nil {
		return nil
	}
	fbErr := f.fallback.Connect(ctx)
	if fbErr != nil {
		return fmt.Errorf("tts primary failed: %v; tts fallback failed: %w", prErr, fbErr)
	}
	f.state.fallbackActive.Store(true)
	return nil
}

func (f *failoverTTS) SendText(ctx context.Context, text string, flush bool) error {
	return f.active().SendText(ctx, text, flush)
}

func (f *failoverTTS) OnAudio(h AudioHandler) int {
	pid := f.primary.OnAudio(h)
	fid := f.fallback.OnAudio(h)

	f.subMu.Lock()
	if f.subs == nil {
		f.subs = make(map[int]int)
	}
	f.subs[pid] = fid
	f.subMu.Unlock()
	return pid
}

func (f *failoverTTS) OffAudio(id int) {
	f.subMu.Lock()
	fid, ok := f.subs[id]
	delete(f.subs, id)
	f.subMu.Unlock()

	f.primary.OffAudio(id)
	if ok {
		f.fallback.OffAudio(fid)
	}
}

func (f *failoverTTS) Halt(ctx context.Context) error {
	return f.active().Halt(ctx)
}

func (f *failoverTTS) Close() error {
	prErr := f.primary.Close()
	fbErr := f.fallback.Close()
	if prErr != nil {
		return prErr
	}
	return fbErr
}
