package authkit

import (
	"bytes"
	"context"
	"encoding/json"
	"sync/atomic"
	"testing"
)

type countingSink struct {
	count atomic.Int64
}

func (s *countingSink) Emit(context.Context, SecurityEvent) {
	s.count.Add(1)
}

func TestDispatcherDeliversAndDrains(t *testing.T) {
	sink := &countingSink{}
	d := newSecurityDispatcher(AuditConfig{Enabled: true, BufferSize: 8}, sink)

	for i := 0; i < 20; i++ {
		d.Emit(context.Background(), SecurityEvent{EventType: EventLogin})
	}
	d.Close()

	if got := sink.count.Load(); got != 20 {
		t.Fatalf("expected 20 delivered events, got %d", got)
	}
	// Emit after Close is a silent no-op.
	d.Emit(context.Background(), SecurityEvent{EventType: EventLogin})
	if got := sink.count.Load(); got != 20 {
		t.Fatalf("post-close emit must not deliver, got %d", got)
	}
}

func TestDispatcherDisabled(t *testing.T) {
	d := newSecurityDispatcher(AuditConfig{}, &countingSink{})
	if d != nil {
		t.Fatal("disabled config must yield a nil dispatcher")
	}
	// Nil receivers are safe everywhere.
	d.Emit(context.Background(), SecurityEvent{})
	d.Close()
	if d.Dropped() != 0 {
		t.Fatal("nil dispatcher must report zero drops")
	}
}

type blockingSink struct {
	release chan struct{}
}

func (s *blockingSink) Emit(context.Context, SecurityEvent) {
	<-s.release
}

func TestDispatcherDropIfFull(t *testing.T) {
	sink := &blockingSink{release: make(chan struct{})}
	d := newSecurityDispatcher(AuditConfig{
		Enabled:    true,
		BufferSize: 2,
		DropIfFull: true,
	}, sink)

	// With the sink blocked, everything beyond the buffer (plus the one
	// event in flight) must be counted as dropped, never block Emit.
	for i := 0; i < 10; i++ {
		d.Emit(context.Background(), SecurityEvent{EventType: EventLoginFailed})
	}
	if d.Dropped() == 0 {
		t.Fatal("expected dropped events with a blocked sink")
	}

	close(sink.release)
	d.Close()
}

func TestJSONWriterSink(t *testing.T) {
	var buf bytes.Buffer
	sink := NewJSONWriterSink(&buf)

	sink.Emit(context.Background(), SecurityEvent{
		EventType: EventRecoveryCodeUsed,
		AccountID: "acct-1",
		Success:   true,
	})

	var ev SecurityEvent
	if err := json.Unmarshal(buf.Bytes(), &ev); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if ev.EventType != EventRecoveryCodeUsed || ev.AccountID != "acct-1" || !ev.Success {
		t.Fatalf("unexpected event: %+v", ev)
	}
}

func TestChannelSink(t *testing.T) {
	sink := NewChannelSink(1)
	sink.Emit(context.Background(), SecurityEvent{EventType: EventLogout})

	select {
	case ev := <-sink.Events():
		if ev.EventType != EventLogout {
			t.Fatalf("unexpected event type %s", ev.EventType)
		}
	default:
		t.Fatal("expected a buffered event")
	}
}
