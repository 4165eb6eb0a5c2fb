package voice

import (
	"context"
	"errors"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/antoniostano/switchboard/internal/brain"
	"github.com/antoniostano/switchboard/internal/memory"
	"github.com/antoniostano/switchboard/internal/observability"
	"github.com/antoniostano/switchboard/internal/segment"
)

// errGenerationStale aborts delta processing for a generation that was
// superseded by a newer one.
var errGenerationStale = errors.New("voice: generation superseded")

const defaultHistoryTurns = 12

type OrchestratorConfig struct {
	SessionID    string
	STT          SpeechToText
	TTS          TextToSpeech
	Brain        brain.Adapter
	Store        memory.Store
	Metrics      *observability.Metrics
	Tier         segment.Tier
	HistoryTurns int
	CallerName   string

	// Lifecycle hooks let the session layer observe transitions without the
	// orchestrator depending on it.
	OnTurnStart  func(turnID string)
	OnInterrupt  func()
	OnTranscript func(text string, final bool)
}

// Orchestrator owns one conversation's voice loop: inbound audio feeds STT,
// final transcripts commit a user turn and start a reasoning generation,
// generation deltas flow through the segmenter into TTS, and synthesized
// audio fans out to the transport subscribers. At most one generation is in
// flight per session; starting a new one always aborts the previous
// (last-writer-wins, no queueing). Barge-in aborts the generation AND halts
// TTS so stale speech stops quickly.
type Orchestrator struct {
	cfg OrchestratorConfig

	mu             sync.Mutex
	started        bool
	closed         bool
	genToken       int
	genCancel      context.CancelFunc
	genStartedAt   time.Time
	awaitingAudio  bool
	sttSub, ttsSub int

	audioOut observers[[]byte]
}

func NewOrchestrator(cfg OrchestratorConfig) *Orchestrator {
	if cfg.HistoryTurns <= 0 {
		cfg.HistoryTurns = defaultHistoryTurns
	}
	return &Orchestrator{cfg: cfg}
}

// Start connects both provider sessions and wires the event flow. A dead TTS
// backend is fatal (the caller must not be left in silence); a dead STT
// backend only disables voice input, and the adapter keeps reconnecting.
func (o *Orchestrator) Start(ctx context.Context) error {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return ErrClosed
	}
	if o.started {
		o.mu.Unlock()
		return nil
	}
	o.started = true
	o.mu.Unlock()

	if err := o.cfg.TTS.Connect(ctx); err != nil {
		o.observeProviderError("tts", "connect")
		return err
	}

	sttErr := o.cfg.STT.Connect(ctx)
	if sttErr != nil {
		o.observeProviderError("stt", "connect")
		log.Printf("voice: stt connect for session %s: %v (voice input degraded)", o.cfg.SessionID, sttErr)
	}

	o.mu.Lock()
	o.sttSub = o.cfg.STT.OnTranscript(o.handleTranscript)
	o.ttsSub = o.cfg.TTS.OnAudio(o.handleSynthesizedAudio)
	o.mu.Unlock()
	return nil
}

// HandleInboundAudio forwards one transport frame (8kHz mu-law) to STT. Send
// failures are logged and swallowed: a dropped frame degrades the transcript,
// ending the call would be worse.
func (o *Orchestrator) HandleInboundAudio(ctx context.Context, frame []byte) {
	if len(frame) == 0 {
		return
	}
	if err := o.cfg.STT.SendAudio(ctx, frame); err != nil {
		o.observeProviderError("stt", "send_audio")
		log.Printf("voice: drop audio frame for session %s: %v", o.cfg.SessionID, err)
	}
}

// OnAudio subscribes to outbound synthesized audio (8kHz mu-law).
func (o *Orchestrator) OnAudio(h AudioHandler) int { return o.audioOut.Add(h) }

func (o *Orchestrator) OffAudio(id int) { o.audioOut.Remove(id) }

// SpeakGreeting synthesizes a fixed utterance outside the generation flow.
func (o *Orchestrator) SpeakGreeting(ctx context.Context, text string) error {
	if !segment.Speakable(text) {
		return nil
	}
	o.mu.Lock()
	o.awaitingAudio = true
	o.genStartedAt = time.Now()
	o.mu.Unlock()
	return o.cfg.TTS.SendText(ctx, text, true)
}

func (o *Orchestrator) handleTranscript(t Transcript) {
	text := strings.TrimSpace(t.Text)
	if text == "" {
		return
	}
	if o.cfg.OnTranscript != nil {
		o.cfg.OnTranscript(text, t.IsFinal)
	}

	if !t.IsFinal {
		// The user is speaking. If a generation is still streaming this is a
		// barge-in: abort it now rather than talking over the caller.
		o.interruptActive()
		return
	}

	o.commitUserTurn(text)
	o.respond(text)
}

// Interrupt aborts the in-flight generation, if any. For transports whose
// clients signal barge-in explicitly instead of through detected speech.
func (o *Orchestrator) Interrupt() { o.interruptActive() }

// interruptActive cancels the in-flight generation, if any, and halts TTS.
func (o *Orchestrator) interruptActive() {
	o.mu.Lock()
	cancel := o.genCancel
	o.genCancel = nil
	if cancel != nil {
		o.genToken++
	}
	o.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	if err := o.cfg.TTS.Halt(context.Background()); err != nil && !errors.Is(err, ErrClosed) {
		log.Printf("voice: tts halt for session %s: %v", o.cfg.SessionID, err)
	}
	if o.cfg.Metrics != nil {
		o.cfg.Metrics.Interruptions.Inc()
	}
	if o.cfg.OnInterrupt != nil {
		o.cfg.OnInterrupt()
	}
}

func (o *Orchestrator) commitUserTurn(text string) {
	if o.cfg.Store == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := o.cfg.Store.SaveTurn(ctx, memory.TurnRecord{
		ID:        uuid.NewString(),
		SessionID: o.cfg.SessionID,
		Role:      memory.RoleUser,
		Content:   text,
		CreatedAt: time.Now().UTC(),
	})
	if err != nil {
		log.Printf("voice: save user turn for session %s: %v", o.cfg.SessionID, err)
	}
}

// respond starts a new generation for the committed user text, aborting any
// generation already in flight.
func (o *Orchestrator) respond(userText string) {
	o.interruptActive()

	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return
	}
	genCtx, cancel := context.WithCancel(context.Background())
	o.genToken++
	token := o.genToken
	o.genCancel = cancel
	o.genStartedAt = time.Now()
	o.awaitingAudio = true
	o.mu.Unlock()

	turnID := uuid.NewString()
	if o.cfg.OnTurnStart != nil {
		o.cfg.OnTurnStart(turnID)
	}

	go o.generate(genCtx, token, turnID, userText)
}

func (o *Orchestrator) stale(token int) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.closed || o.genToken != token
}

func (o *Orchestrator) generate(ctx context.Context, token int, turnID, userText string) {
	defer func() {
		// Release this generation's cancel handle unless a newer generation
		// already took over.
		o.mu.Lock()
		if o.genToken == token && o.genCancel != nil {
			o.genCancel()
			o.genCancel = nil
		}
		o.mu.Unlock()
	}()

	seg := segment.New(o.cfg.Tier)
	speechProduced := false

	req := brain.MessageRequest{
		SessionID:     o.cfg.SessionID,
		TurnID:        turnID,
		InputText:     userText,
		MemoryContext: o.recentHistory(ctx),
		CallerName:    o.cfg.CallerName,
	}

	resp, err := o.cfg.Brain.StreamResponse(ctx, req, func(delta string) error {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if o.stale(token) {
			return errGenerationStale
		}

		speech := sanitizeSpeechText(delta)
		speech = speechDeltaSpacing(delta, speech, speechProduced)
		if speech == "" {
			return nil
		}
		speechProduced = true

		if flush, ok := seg.Push(speech); ok {
			o.speak(ctx, flush.Text, "delimiter")
		}
		return nil
	})

	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, errGenerationStale) {
			return
		}
		o.observeProviderError("brain", "stream")
		log.Printf("voice: generation for session %s: %v", o.cfg.SessionID, err)
		return
	}
	if o.stale(token) {
		return
	}

	if remainder, ok := seg.Finish(); ok {
		o.speak(ctx, remainder.Text, "finish")
	}

	o.saveAssistantTurn(resp.Text)
}

func (o *Orchestrator) speak(ctx context.Context, text, trigger string) {
	if err := o.cfg.TTS.SendText(ctx, text, true); err != nil {
		o.observeProviderError("tts", "send_text")
		log.Printf("voice: tts flush for session %s: %v", o.cfg.SessionID, err)
		return
	}
	if o.cfg.Metrics != nil {
		o.cfg.Metrics.TTSFlushes.WithLabelValues(trigger).Inc()
	}
}

func (o *Orchestrator) handleSynthesizedAudio(chunk []byte) {
	if len(chunk) == 0 {
		return
	}

	o.mu.Lock()
	if o.awaitingAudio {
		o.awaitingAudio = false
		if o.cfg.Metrics != nil {
			o.cfg.Metrics.ObserveFirstAudioLatency(time.Since(o.genStartedAt))
		}
	}
	o.mu.Unlock()

	o.audioOut.Emit(chunk)
}

func (o *Orchestrator) recentHistory(ctx context.Context) []string {
	if o.cfg.Store == nil {
		return nil
	}
	turns, err := o.cfg.Store.RecentTurns(ctx, o.cfg.SessionID, o.cfg.HistoryTurns)
	if err != nil {
		log.Printf("voice: load history for session %s: %v", o.cfg.SessionID, err)
		return nil
	}
	out := make([]string, 0, len(turns))
	for _, t := range turns {
		out = append(out, t.Role+": "+t.Content)
	}
	return out
}

func (o *Orchestrator) saveAssistantTurn(text string) {
	text = strings.TrimSpace(text)
	if text == "" || o.cfg.Store == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := o.cfg.Store.SaveTurn(ctx, memory.TurnRecord{
		ID:        uuid.NewString(),
		SessionID: o.cfg.SessionID,
		Role:      memory.RoleAssistant,
		Content:   text,
		CreatedAt: time.Now().UTC(),
	})
	if err != nil {
		log.Printf("voice: save assistant turn for session %s: %v", o.cfg.SessionID, err)
	}
}

func (o *Orchestrator) observeProviderError(provider, code string) {
	if o.cfg.Metrics != nil {
		o.cfg.Metrics.ProviderErrors.WithLabelValues(provider, code).Inc()
	}
}

// Close aborts any in-flight generation, detaches subscriptions, and releases
// both provider sessions. Safe to call more than once.
func (o *Orchestrator) Close() error {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return nil
	}
	o.closed = true
	cancel := o.genCancel
	o.genCancel = nil
	sttSub, ttsSub := o.sttSub, o.ttsSub
	o.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	o.cfg.STT.OffTranscript(sttSub)
	o.cfg.TTS.OffAudio(ttsSub)

	sttErr := o.cfg.STT.Close()
	ttsErr := o.cfg.TTS.Close()
	if sttErr != nil {
		return sttErr
	}
	return ttsErr
}
