package adminAuth

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

type countingSink struct {
	count atomic.Int64
}

func (s *countingSink) Emit(context.Context, AuditEvent) {
	s.count.Add(1)
}

type gateSink struct {
	gate chan struct{}
}

func (s *gateSink) Emit(context.Context, AuditEvent) {
	<-s.gate
}

type panicSink struct {
	calls atomic.Int64
}

func (s *panicSink) Emit(context.Context, AuditEvent) {
	if s.calls.Add(1) == 1 {
		panic("sink exploded")
	}
}

func fixedNow() time.Time {
	return time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
}

func TestAuditDispatcherDisabledIsNil(t *testing.T) {
	d := newAuditDispatcher(AuditConfig{Enabled: false}, &countingSink{}, nil, nil)
	if d != nil {
		t.Fatal("expected nil dispatcher when audit is disabled")
	}

	// nil dispatcher methods are safe
	d.Emit(context.Background(), AuditEvent{EventType: "x"})
	d.Close()
	if d.Dropped() != 0 || d.Delivered() != 0 {
		t.Fatal("expected zero counters on nil dispatcher")
	}
}

func TestAuditDispatcherCloseDrainsBuffer(t *testing.T) {
	sink := &countingSink{}
	d := newAuditDispatcher(AuditConfig{Enabled: true, BufferSize: 128}, sink, fixedNow, nil)

	for i := 0; i < 100; i++ {
		d.Emit(context.Background(), AuditEvent{EventType: auditEventLoginFailure})
	}
	d.Close()

	if got := sink.count.Load(); got != 100 {
		t.Fatalf("expected 100 delivered events, got %d", got)
	}
	if d.Delivered() != 100 {
		t.Fatalf("expected Delivered()=100, got %d", d.Delivered())
	}

	// Emit after Close is a no-op
	d.Emit(context.Background(), AuditEvent{EventType: auditEventLoginFailure})
	d.Close()
	if got := sink.count.Load(); got != 100 {
		t.Fatalf("expected no delivery after close, got %d", got)
	}
}

func TestAuditDispatcherDropIfFull(t *testing.T) {
	sink := &gateSink{gate: make(chan struct{})}
	d := newAuditDispatcher(AuditConfig{Enabled: true, BufferSize: 1, DropIfFull: true}, sink, fixedNow, nil)

	// first event is picked up by the worker and blocks in the sink,
	// second fills the buffer, the rest are dropped
	for i := 0; i < 10; i++ {
		d.Emit(context.Background(), AuditEvent{EventType: auditEventLoginFailure})
		time.Sleep(time.Millisecond)
	}

	if d.Dropped() == 0 {
		t.Fatal("expected dropped events with a blocked sink")
	}

	close(sink.gate)
	d.Close()
}

func TestAuditDispatcherBlockingHonoursContext(t *testing.T) {
	sink := &gateSink{gate: make(chan struct{})}
	d := newAuditDispatcher(AuditConfig{Enabled: true, BufferSize: 1}, sink, fixedNow, nil)

	d.Emit(context.Background(), AuditEvent{EventType: "a"})
	time.Sleep(5 * time.Millisecond)
	d.Emit(context.Background(), AuditEvent{EventType: "b"})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	d.Emit(ctx, AuditEvent{EventType: "c"})

	if d.Dropped() != 1 {
		t.Fatalf("expected exactly one drop on cancelled context, got %d", d.Dropped())
	}

	close(sink.gate)
	d.Close()
}

func TestAuditDispatcherSurvivesPanickingSink(t *testing.T) {
	sink := &panicSink{}
	d := newAuditDispatcher(AuditConfig{Enabled: true, BufferSize: 8}, sink, fixedNow, nil)

	d.Emit(context.Background(), AuditEvent{EventType: "first"})
	d.Emit(context.Background(), AuditEvent{EventType: "second"})
	d.Close()

	if sink.calls.Load() != 2 {
		t.Fatalf("expected worker to keep running after panic, got %d calls", sink.calls.Load())
	}
	if d.Delivered() != 1 {
		t.Fatalf("expected one successful delivery, got %d", d.Delivered())
	}
}

func TestAuditDispatcherStampsIDAndTime(t *testing.T) {
	sink := NewChannelSink(2)
	d := newAuditDispatcher(AuditConfig{Enabled: true, BufferSize: 2}, sink, fixedNow, nil)

	d.Emit(context.Background(), AuditEvent{EventType: auditEventOTPIssued})
	d.Emit(context.Background(), AuditEvent{EventType: auditEventOTPIssued, EventID: "keep"})
	d.Close()

	first := <-sink.Events()
	if first.EventID == "" || !first.Timestamp.Equal(fixedNow()) {
		t.Fatalf("expected stamped event, got %+v", first)
	}
	second := <-sink.Events()
	if second.EventID != "keep" {
		t.Fatalf("expected caller id preserved, got %q", second.EventID)
	}
}

func TestJSONWriterSinkWritesLines(t *testing.T) {
	var buf bytes.Buffer
	sink := NewJSONWriterSink(&buf)

	sink.Emit(context.Background(), AuditEvent{EventID: "1", EventType: auditEventLoginSuccess, Success: true})
	sink.Emit(context.Background(), AuditEvent{EventID: "2", EventType: auditEventLoginFailure, Error: "invalid_credentials"})

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %d: %q", len(lines), buf.String())
	}
	var ev AuditEvent
	if err := json.Unmarshal([]byte(lines[1]), &ev); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if ev.EventType != auditEventLoginFailure || ev.Error != "invalid_credentials" {
		t.Fatalf("unexpected event %+v", ev)
	}
}

func TestSlogSinkLevels(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelInfo}))
	sink := NewSlogSink(logger)

	sink.Emit(context.Background(), AuditEvent{EventType: auditEventLogoutSession, Success: true})
	sink.Emit(context.Background(), AuditEvent{
		EventType: auditEventOTPFailure,
		Email:     "admin@example.com",
		Metadata:  map[string]string{"remaining": "2"},
	})

	out := buf.String()
	if !strings.Contains(out, `"level":"INFO"`) || !strings.Contains(out, `"level":"WARN"`) {
		t.Fatalf("expected info and warn records, got %s", out)
	}
	if !strings.Contains(out, `"meta.remaining":"2"`) {
		t.Fatalf("expected metadata attribute, got %s", out)
	}
	if !strings.Contains(out, `"component":"audit"`) {
		t.Fatalf("expected component attribute, got %s", out)
	}
}
