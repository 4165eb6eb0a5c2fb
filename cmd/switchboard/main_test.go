package main

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/antoniostano/switchboard/internal/config"
	"github.com/antoniostano/switchboard/internal/observability"
	"github.com/antoniostano/switchboard/internal/session"
	"github.com/antoniostano/switchboard/internal/voice"
)

func TestSTTTerminalHookEndsSession(t *testing.T) {
	metrics := observability.NewMetrics("test_main_terminal_hook")
	sessions := session.NewManager(time.Minute)
	sess := sessions.Create(session.KindBrowser)

	hook := sttTerminalHook(sessions, metrics, sess.ID)
	hook(errors.New("reconnect attempts exhausted"))

	if _, err := sessions.Get(sess.ID); err == nil {
		t.Fatal("session should be ended after terminal stt failure")
	}
	if got := testutil.ToFloat64(metrics.ProviderErrors.WithLabelValues("stt", "terminal")); got != 1 {
		t.Fatalf("terminal error counter = %v, want 1", got)
	}
	if got := testutil.ToFloat64(metrics.SessionEvents.WithLabelValues("stt_failed")); got != 1 {
		t.Fatalf("stt_failed events = %v, want 1", got)
	}

	// Firing again for the same session must not double-count the teardown.
	hook(errors.New("still down"))
	if got := testutil.ToFloat64(metrics.SessionEvents.WithLabelValues("stt_failed")); got != 1 {
		t.Fatalf("stt_failed events after repeat = %v, want 1", got)
	}
	if got := testutil.ToFloat64(metrics.ProviderErrors.WithLabelValues("stt", "terminal")); got != 2 {
		t.Fatalf("terminal error counter after repeat = %v, want 2", got)
	}
}

func TestBuildSTTSelectsProvider(t *testing.T) {
	metrics := observability.NewMetrics("test_main_build_stt")
	cfg := config.Config{
		DeepgramAPIKey:   "dg",
		AssemblyAIAPIKey: "aai",
	}
	onTerminal := func(error) {}

	if _, ok := buildSTT(cfg, metrics, "deepgram", onTerminal).(*voice.DeepgramSTT); !ok {
		t.Fatal("deepgram provider should build a DeepgramSTT")
	}
	if _, ok := buildSTT(cfg, metrics, "assemblyai", onTerminal).(*voice.AssemblyAISTT); !ok {
		t.Fatal("assemblyai provider should build an AssemblyAISTT")
	}
	if _, ok := buildSTT(cfg, metrics, "mock", onTerminal).(*voice.MockSTT); !ok {
		t.Fatal("unknown provider should fall back to the mock")
	}
}
