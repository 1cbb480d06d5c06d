package web

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/cjeanneret/TriloGo/internal/telemetry"
)

func receive(t *testing.T, ch <-chan string) StatusEvent {
	t.Helper()
	select {
	case msg := <-ch:
		var evt StatusEvent
		if err := json.Unmarshal([]byte(msg), &evt); err != nil {
			t.Fatalf("unmarshal %q: %v", msg, err)
		}
		return evt
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for broadcast")
	}
	return StatusEvent{}
}

func TestBroadcaster_SubscribeAndReceive(t *testing.T) {
	b := NewStatusBroadcaster()
	ch, unsub := b.Subscribe()
	defer unsub()

	b.Broadcast(LevelInfo, "controller connected")

	evt := receive(t, ch)
	if evt.Msg != "controller connected" || evt.Level != LevelInfo {
		t.Errorf("event = %+v", evt)
	}
	if evt.Time == "" {
		t.Error("event should carry a timestamp")
	}
}

func TestBroadcaster_Fanout(t *testing.T) {
	b := NewStatusBroadcaster()
	ch1, unsub1 := b.Subscribe()
	defer unsub1()
	ch2, unsub2 := b.Subscribe()
	defer unsub2()

	if b.Clients() != 2 {
		t.Errorf("Clients = %d, want 2", b.Clients())
	}
	b.BroadcastMsg("both")
	for i, ch := range []<-chan string{ch1, ch2} {
		if evt := receive(t, ch); evt.Msg != "both" {
			t.Errorf("subscriber %d: msg = %q", i, evt.Msg)
		}
	}
}

func TestBroadcaster_Unsubscribe(t *testing.T) {
	b := NewStatusBroadcaster()
	ch, unsub := b.Subscribe()
	unsub()
	unsub()

	if _, ok := <-ch; ok {
		t.Error("channel should be closed after unsubscribe")
	}
	if b.Clients() != 0 {
		t.Errorf("Clients = %d, want 0", b.Clients())
	}
	b.BroadcastMsg("nobody listening")
}

func TestBroadcaster_SlowClientDropsEvents(t *testing.T) {
	b := NewStatusBroadcaster()
	ch, unsub := b.Subscribe()
	defer unsub()

	for i := 0; i < 100; i++ {
		b.BroadcastMsg("tick")
	}

	if len(ch) != cap(ch) {
		t.Errorf("buffered %d events, want a full buffer of %d", len(ch), cap(ch))
	}
}

func TestBroadcaster_PublishSnapshot(t *testing.T) {
	b := NewStatusBroadcaster()
	ch, unsub := b.Subscribe()
	defer unsub()

	var sink telemetry.Sink = b
	if err := sink.Publish(telemetry.Snapshot{Tick: 9, Connected: true, Mode: "rainbow", Left: 1}); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	evt := receive(t, ch)
	if evt.Level != LevelTelemetry || evt.Data == nil {
		t.Fatalf("event = %+v, want telemetry payload", evt)
	}
	if evt.Data.Tick != 9 || evt.Data.Mode != "rainbow" || evt.Data.Left != 1 {
		t.Errorf("snapshot = %+v", *evt.Data)
	}
}

func TestBroadcastWriter(t *testing.T) {
	b := NewStatusBroadcaster()
	ch, unsub := b.Subscribe()
	defer unsub()
	w := BroadcastWriter(b)

	line := "  [TriloGo] [INFO] Controller connected  \n"
	n, err := w.Write([]byte(line))
	if err != nil || n != len(line) {
		t.Fatalf("Write = %d, %v", n, err)
	}
	if evt := receive(t, ch); evt.Msg != "[TriloGo] [INFO] Controller connected" || evt.Level != LevelInfo {
		t.Errorf("event = %+v", evt)
	}

	w.Write([]byte("[TriloGo] [ERROR] set left speed: boom\n"))
	if evt := receive(t, ch); evt.Level != LevelError {
		t.Errorf("level = %q, want error", evt.Level)
	}

	w.Write([]byte("   \n"))
	select {
	case <-ch:
		t.Error("blank write should not broadcast")
	case <-time.After(50 * time.Millisecond):
	}
}
