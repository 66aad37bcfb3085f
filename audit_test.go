package rowAuth

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"
)

func newAuditedFixture(t *testing.T, sink AuditSink) *fixture {
	t.Helper()

	cfg := testEngineConfig()
	cfg.Audit.Enabled = true
	cfg.Audit.BufferSize = 64
	cfg.Audit.DropIfFull = false

	store := newMockStore()
	mailer := &mockMailer{}
	clock := newTestClock()

	engine, err := New().
		WithConfig(cfg).
		WithStore(store).
		WithMailer(mailer).
		WithAuditSink(sink).
		WithClock(clock.Now).
		Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	return &fixture{engine: engine, store: store, mailer: mailer, clock: clock}
}

func TestAuditEventsReachSink(t *testing.T) {
	sink := NewChannelSink(64)
	f := newAuditedFixture(t, sink)
	t.Cleanup(f.engine.Close)

	f.signUp(t, "alice@example.test", "secret-pass")

	select {
	case event := <-sink.Events():
		if event.EventType != "account_created" {
			t.Fatalf("event type = %q, want account_created", event.EventType)
		}
		if event.Email != "alice@example.test" || !event.Success {
			t.Fatalf("unexpected event: %+v", event)
		}
		if !event.Timestamp.Equal(f.clock.Now()) {
			t.Fatalf("timestamp = %v, want engine clock", event.Timestamp)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no audit event delivered")
	}
}

func TestAuditFailedLogin(t *testing.T) {
	sink := NewChannelSink(64)
	f := newAuditedFixture(t, sink)
	t.Cleanup(f.engine.Close)

	f.signUp(t, "alice@example.test", "secret-pass")
	<-sink.Events() // account_created

	ctx := WithClientIP(context.Background(), "10.1.2.3")
	if _, err := f.engine.GetUserByEmailAndPassword(ctx, "alice@example.test", "wrong-pass"); err == nil {
		t.Fatal("wrong password accepted")
	}

	select {
	case event := <-sink.Events():
		if event.EventType != "login" || event.Success {
			t.Fatalf("unexpected event: %+v", event)
		}
		if event.IP != "10.1.2.3" {
			t.Fatalf("client ip = %q, want 10.1.2.3", event.IP)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no audit event delivered")
	}
}

func TestCloseDrainsBufferedEvents(t *testing.T) {
	var buf bytes.Buffer
	sink := NewJSONWriterSink(&buf)
	f := newAuditedFixture(t, sink)

	f.signUp(t, "alice@example.test", "secret-pass")
	f.engine.Close()

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) == 0 || lines[0] == "" {
		t.Fatal("no events written before close returned")
	}

	var event AuditEvent
	if err := json.Unmarshal([]byte(lines[0]), &event); err != nil {
		t.Fatalf("event not valid JSON: %v", err)
	}
	if event.EventType != "account_created" {
		t.Fatalf("event type = %q", event.EventType)
	}
}

func TestDisabledAuditEmitsNothing(t *testing.T) {
	f := newFixture(t, nil) // audit disabled in the base config
	f.signUp(t, "alice@example.test", "secret-pass")

	if dropped := f.engine.AuditDropped(); dropped != 0 {
		t.Fatalf("dropped = %d on a disabled dispatcher", dropped)
	}
}

func TestDispatcherDropsWhenFull(t *testing.T) {
	cfg := AuditConfig{Enabled: true, BufferSize: 1, DropIfFull: true}
	blocked := make(chan struct{})
	sink := sinkFunc(func(context.Context, AuditEvent) { <-blocked })

	d := newAuditDispatcher(cfg, sink)

	// one event occupies the sink, one fills the buffer, the rest drop
	for i := 0; i < 5; i++ {
		d.Emit(context.Background(), AuditEvent{EventType: "x"})
	}
	if d.Dropped() == 0 {
		t.Fatal("no events dropped with a full buffer")
	}

	close(blocked)
	d.Close()
}

type sinkFunc func(context.Context, AuditEvent)

func (f sinkFunc) Emit(ctx context.Context, event AuditEvent) { f(ctx, event) }
