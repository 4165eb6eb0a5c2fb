package telephony

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"

	"github.com/antoniostano/switchboard/internal/memory"
	"github.com/antoniostano/switchboard/internal/observability"
	"github.com/antoniostano/switchboard/internal/session"
	"github.com/antoniostano/switchboard/internal/voice"
)

// CallPipeline is the per-call voice loop the bridge drives. Implemented by
// voice.Orchestrator.
type CallPipeline interface {
	Start(ctx context.Context) error
	HandleInboundAudio(ctx context.Context, frame []byte)
	SpeakGreeting(ctx context.Context, text string) error
	OnAudio(h voice.AudioHandler) int
	OffAudio(id int)
	Close() error
}

// PipelineFactory builds one pipeline per call.
type PipelineFactory func(ctx context.Context, sessionID, callerName string) (CallPipeline, error)

// FrameWriter is one live transport connection for a call. Writes must be
// serialized by the implementation.
type FrameWriter interface {
	WriteFrame(f Frame) error
}

type BridgeConfig struct {
	Sessions      *session.Manager
	Callers       memory.CallerStore
	NewPipeline   PipelineFactory
	Greeting      string
	PublicBaseURL string
	ApologyText   string
	Metrics       *observability.Metrics
}

// Bridge adapts the provider's framed media-stream protocol onto per-call
// voice pipelines. Call SID (webhook time) and stream SID (media open) arrive
// in any order on possibly different connections; the bridge keys everything
// by call SID and tolerates both orders.
type Bridge struct {
	cfg BridgeConfig

	mu    sync.Mutex
	calls map[string]*callState
}

func NewBridge(cfg BridgeConfig) *Bridge {
	if strings.TrimSpace(cfg.ApologyText) == "" {
		cfg.ApologyText = "We are sorry, the assistant is unavailable right now. Please try again later."
	}
	return &Bridge{
		cfg:   cfg,
		calls: make(map[string]*callState),
	}
}

type callState struct {
	callSID   string
	sessionID string

	mu           sync.Mutex
	streamSID    string
	greetingSent bool
	pipeline     CallPipeline
	audioSub     int
	writers      map[FrameWriter]struct{}
}

// HandleInboundCall processes the call-setup webhook: persist the caller
// handoff, create the call session, start the pipeline, and answer with
// TwiML that opens the media stream. If the pipeline cannot start at all the
// response speaks an apology and hangs up instead of leaving silence.
func (b *Bridge) HandleInboundCall(ctx context.Context, callSID, from, to string) ([]byte, error) {
	if strings.TrimSpace(callSID) == "" {
		return nil, fmt.Errorf("telephony: missing call sid")
	}

	if b.cfg.Callers != nil {
		err := b.cfg.Callers.PutCaller(ctx, memory.CallerRecord{
			CallSID: callSID,
			From:    from,
			To:      to,
		})
		if err != nil {
			log.Printf("telephony: persist caller for %s: %v", callSID, err)
		}
	}

	cs := b.ensureCall(callSID)
	if err := b.ensurePipeline(ctx, cs); err != nil {
		log.Printf("telephony: start pipeline for call %s: %v", callSID, err)
		b.Teardown(ctx, callSID)
		apology, terr := ApologyTwiML(b.cfg.ApologyText)
		if terr != nil {
			return nil, terr
		}
		return apology, err
	}

	return StreamTwiML(b.mediaStreamURL(callSID))
}

// HandleStatusCallback releases call resources on terminal statuses; other
// statuses are ignored.
func (b *Bridge) HandleStatusCallback(ctx context.Context, callSID, status string) {
	if !IsTerminalStatus(status) {
		return
	}
	b.Teardown(ctx, callSID)
}

// AttachConnection registers a live transport connection for a call and
// returns its detach function. Outbound audio fans out to every attached
// connection.
func (b *Bridge) AttachConnection(callSID string, w FrameWriter) func() {
	cs := b.ensureCall(callSID)
	cs.mu.Lock()
	cs.writers[w] = struct{}{}
	cs.mu.Unlock()

	return func() {
		cs.mu.Lock()
		delete(cs.writers, w)
		cs.mu.Unlock()
	}
}

// HandleFrame dispatches one inbound media-stream frame for a call.
func (b *Bridge) HandleFrame(ctx context.Context, callSID string, f Frame) {
	switch f.Event {
	case EventConnected:
		// transport-level hello, nothing to bind yet

	case EventStart:
		cs := b.ensureCall(callSID)
		streamSID := f.StreamSID
		if streamSID == "" && f.Start != nil {
			streamSID = f.Start.StreamSID
		}
		cs.mu.Lock()
		if streamSID != "" {
			cs.streamSID = streamSID
		}
		cs.mu.Unlock()

		if err := b.ensurePipeline(ctx, cs); err != nil {
			log.Printf("telephony: pipeline for call %s: %v", callSID, err)
			return
		}
		b.dispatchGreeting(ctx, cs)

	case EventMedia:
		cs := b.ensureCall(callSID)
		if err := b.ensurePipeline(ctx, cs); err != nil {
			log.Printf("telephony: pipeline for call %s: %v", callSID, err)
			return
		}
		// The stream id can become known through a different path before the
		// start frame arrives; the greeting gate is its own flag, never
		// inferred from that.
		b.dispatchGreeting(ctx, cs)

		audio, err := f.MediaAudio()
		if err != nil {
			log.Printf("telephony: call %s: %v", callSID, err)
			return
		}
		if len(audio) == 0 {
			return
		}
		if b.cfg.Metrics != nil {
			b.cfg.Metrics.MediaFrames.WithLabelValues("inbound").Inc()
		}
		if b.cfg.Sessions != nil {
			_ = b.cfg.Sessions.Touch(cs.sessionID)
		}

		cs.mu.Lock()
		pipeline := cs.pipeline
		cs.mu.Unlock()
		pipeline.HandleInboundAudio(ctx, audio)

	case EventStop:
		b.Teardown(ctx, callSID)
	}
}

// Teardown releases everything scoped to a call: pipeline, session binding,
// caller handoff record, and the call entry itself. Safe to call for unknown
// calls (late status callbacks).
func (b *Bridge) Teardown(ctx context.Context, callSID string) {
	b.mu.Lock()
	cs, ok := b.calls[callSID]
	delete(b.calls, callSID)
	b.mu.Unlock()

	if b.cfg.Sessions != nil {
		_, _ = b.cfg.Sessions.EndByCall(callSID)
	}
	if b.cfg.Callers != nil {
		_ = b.cfg.Callers.DeleteCaller(ctx, callSID)
	}
	if !ok {
		return
	}

	cs.mu.Lock()
	pipeline := cs.pipeline
	audioSub := cs.audioSub
	cs.pipeline = nil
	cs.writers = make(map[FrameWriter]struct{})
	cs.mu.Unlock()

	if pipeline != nil {
		pipeline.OffAudio(audioSub)
		if err := pipeline.Close(); err != nil {
			log.Printf("telephony: close pipeline for call %s: %v", callSID, err)
		}
	}
	if b.cfg.Metrics != nil {
		b.cfg.Metrics.ActiveCalls.Set(float64(b.ActiveCalls()))
	}
}

// ActiveCalls reports how many calls currently hold state.
func (b *Bridge) ActiveCalls() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.calls)
}

func (b *Bridge) ensureCall(callSID string) *callState {
	b.mu.Lock()
	defer b.mu.Unlock()
	if cs, ok := b.calls[callSID]; ok {
		return cs
	}

	sessionID := callSID
	if b.cfg.Sessions != nil {
		sessionID = b.cfg.Sessions.CreateForCall(callSID).ID
	}
	cs := &callState{
		callSID:   callSID,
		sessionID: sessionID,
		writers:   make(map[FrameWriter]struct{}),
	}
	b.calls[callSID] = cs
	if b.cfg.Metrics != nil {
		b.cfg.Metrics.ActiveCalls.Set(float64(len(b.calls)))
	}
	return cs
}

func (b *Bridge) ensurePipeline(ctx context.Context, cs *callState) error {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	if cs.pipeline != nil {
		return nil
	}

	callerName := ""
	if b.cfg.Callers != nil {
		// The handoff record may not exist; the call proceeds without a name.
		if rec, ok, err := b.cfg.Callers.GetCaller(ctx, cs.callSID); err == nil && ok {
			callerName = rec.DisplayName
		}
	}

	pipeline, err := b.cfg.NewPipeline(ctx, cs.sessionID, callerName)
	if err != nil {
		return err
	}
	if err := pipeline.Start(ctx); err != nil {
		_ = pipeline.Close()
		return err
	}

	cs.pipeline = pipeline
	cs.audioSub = pipeline.OnAudio(func(chunk []byte) {
		b.broadcast(cs, chunk)
	})
	return nil
}

// dispatchGreeting speaks the greeting exactly once per call. The gate is an
// explicit flag set the instant dispatch begins and never reset.
func (b *Bridge) dispatchGreeting(ctx context.Context, cs *callState) {
	if strings.TrimSpace(b.cfg.Greeting) == "" {
		return
	}

	cs.mu.Lock()
	if cs.greetingSent || cs.pipeline == nil {
		cs.mu.Unlock()
		return
	}
	cs.greetingSent = true
	pipeline := cs.pipeline
	cs.mu.Unlock()

	if err := pipeline.SpeakGreeting(ctx, b.cfg.Greeting); err != nil {
		log.Printf("telephony: greeting for call %s: %v", cs.callSID, err)
	}
}

// broadcast wraps one synthesized chunk in an outbound media frame and writes
// it to every live connection for the call, preserving chunk order.
func (b *Bridge) broadcast(cs *callState, chunk []byte) {
	cs.mu.Lock()
	streamSID := cs.streamSID
	writers := make([]FrameWriter, 0, len(cs.writers))
	for w := range cs.writers {
		writers = append(writers, w)
	}
	cs.mu.Unlock()

	if streamSID == "" || len(writers) == 0 {
		return
	}

	frame := OutboundMedia(streamSID, chunk)
	for _, w := range writers {
		if err := w.WriteFrame(frame); err != nil {
			log.Printf("telephony: write media for call %s: %v", cs.callSID, err)
		}
	}
	if b.cfg.Metrics != nil {
		b.cfg.Metrics.MediaFrames.WithLabelValues("outbound").Inc()
	}
}

func (b *Bridge) mediaStreamURL(callSID string) string {
	base := strings.TrimRight(b.cfg.PublicBaseURL, "/")
	switch {
	case strings.HasPrefix(base, "https://"):
		base = "wss://" + strings.TrimPrefix(base, "https://")
	case strings.HasPrefix(base, "http://"):
		base = "ws://" + strings.TrimPrefix(base, "http://")
	}
	return base + "/v1/telephony/media/" + callSID
}
