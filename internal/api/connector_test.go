package api_test

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"quote-ingestor/internal/api"
	"quote-ingestor/internal/testutils"
)

type sleepRecorder struct {
	mu     sync.Mutex
	delays []time.Duration
}

func (r *sleepRecorder) sleep(ctx context.Context, d time.Duration) bool {
	r.mu.Lock()
	r.delays = append(r.delays, d)
	r.mu.Unlock()
	return ctx.Err() == nil
}

func (r *sleepRecorder) calls() []time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]time.Duration(nil), r.delays...)
}

func streamConfig() api.StreamConfig {
	return api.StreamConfig{
		URL:            "wss://stream.example/v1/markets/events",
		Symbols:        []string{"AAPL", "TSLA"},
		ReconnectDelay: 10 * time.Second,
		Collection:     "streaming_data",
	}
}

func runStreamer(ctx context.Context, t *testing.T, s *api.Streamer) {
	t.Helper()
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("Run returned %v, want context.Canceled", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("streamer did not stop")
	}
}

func TestStreamer_ReconnectsWithFreshSession(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	first := testutils.NewScriptedConn(
		testutils.Read{Data: []byte("{\"type\":\"quote\",\"symbol\":\"AAPL\",\"bid\":170.1}\n{\"type\":\"trade\",\"symbol\":\"AAPL\",\"price\":170.2}\n")},
		testutils.Read{Err: &websocket.CloseError{Code: websocket.CloseAbnormalClosure}},
	)
	second := testutils.NewScriptedConn()
	second.OnWrite = func([]byte) { cancel() }

	sessions := &testutils.FakeSessions{IDs: []string{"s1", "s2"}}
	dialer := &testutils.FakeDialer{Conns: []*testutils.ScriptedConn{first, second}}
	sink := &testutils.RecordingSink{}
	sleeper := &sleepRecorder{}
	core, logs := observer.New(zapcore.InfoLevel)

	s := api.NewStreamer(streamConfig(), sessions, dialer, sink, zap.New(core), api.WithSleep(sleeper.sleep))
	runStreamer(ctx, t, s)

	if got := sessions.CallCount(); got != 2 {
		t.Fatalf("expected exactly one new session request after disconnect, got %d calls", got)
	}
	if got := dialer.DialCount(); got != 2 {
		t.Fatalf("expected 2 dials, got %d", got)
	}
	if delays := sleeper.calls(); len(delays) != 1 || delays[0] != 10*time.Second {
		t.Fatalf("expected one 10s wait, got %v", delays)
	}
	if logs.FilterMessage("Stream disconnected, waiting before reconnect").Len() != 1 {
		t.Fatal("disconnect should be logged once")
	}
	if sink.EventCount() != 2 {
		t.Fatalf("expected 2 events persisted, got %d", sink.EventCount())
	}

	var sub1, sub2 api.SubscribeMessage
	mustDecode(t, first.WrittenMessages(), &sub1)
	mustDecode(t, second.WrittenMessages(), &sub2)
	if sub1.SessionID != "s1" || sub2.SessionID != "s2" {
		t.Fatalf("session ids reused: %q then %q", sub1.SessionID, sub2.SessionID)
	}
	if !sub1.LineBreak || len(sub1.Symbols) != 2 || sub1.Symbols[0] != "AAPL" {
		t.Fatalf("unexpected subscription: %+v", sub1)
	}
}

func mustDecode(t *testing.T, written [][]byte, v any) {
	t.Helper()
	if len(written) != 1 {
		t.Fatalf("expected a single subscription message, got %d", len(written))
	}
	if err := json.Unmarshal(written[0], v); err != nil {
		t.Fatalf("decode subscription: %v", err)
	}
}

func TestStreamer_MalformedPayloadIsSkipped(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	conn := testutils.NewScriptedConn(
		testutils.Read{Data: []byte("not json")},
		testutils.Read{Data: []byte(`{"type":"summary","symbol":"TSLA"}`)},
		testutils.Read{Err: errors.New("connection reset")},
	)
	sessions := &testutils.FakeSessions{
		IDs: []string{"s1"},
		OnCall: func(n int) {
			if n == 2 {
				cancel()
			}
		},
	}
	dialer := &testutils.FakeDialer{Conns: []*testutils.ScriptedConn{conn}}
	sink := &testutils.RecordingSink{}
	core, logs := observer.New(zapcore.InfoLevel)

	s := api.NewStreamer(streamConfig(), sessions, dialer, sink, zap.New(core), api.WithSleep((&sleepRecorder{}).sleep))
	runStreamer(ctx, t, s)

	if sink.EventCount() != 1 {
		t.Fatalf("expected the valid event to be persisted, got %d", sink.EventCount())
	}
	if logs.FilterMessage("Malformed stream payload, dropped").Len() != 1 {
		t.Fatal("malformed payload should be logged")
	}
}

func TestStreamer_SessionFailureRetries(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	conn := testutils.NewScriptedConn()
	conn.OnWrite = func([]byte) { cancel() }
	sessions := &testutils.FakeSessions{
		IDs:  []string{"", "s2"},
		Errs: []error{errors.New("401 unauthorized")},
	}
	dialer := &testutils.FakeDialer{Conns: []*testutils.ScriptedConn{conn}}
	sleeper := &sleepRecorder{}

	s := api.NewStreamer(streamConfig(), sessions, dialer, &testutils.RecordingSink{}, zap.NewNop(), api.WithSleep(sleeper.sleep))
	runStreamer(ctx, t, s)

	if sessions.CallCount() != 2 || dialer.DialCount() != 1 {
		t.Fatalf("sessions=%d dials=%d", sessions.CallCount(), dialer.DialCount())
	}
	if len(sleeper.calls()) != 1 {
		t.Fatalf("expected one wait, got %v", sleeper.calls())
	}
}
