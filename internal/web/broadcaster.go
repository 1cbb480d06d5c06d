package web

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/cjeanneret/TriloGo/internal/telemetry"
)

// Event levels.
const (
	LevelInfo      = "info"
	LevelError     = "error"
	LevelTelemetry = "telemetry"
)

// StatusEvent is one message pushed to SSE and websocket clients.
type StatusEvent struct {
	Time  string              `json:"t"`
	Level string              `json:"l,omitempty"`
	Msg   string              `json:"msg,omitempty"`
	Data  *telemetry.Snapshot `json:"data,omitempty"`
}

// StatusBroadcaster fans events out to every subscribed client.
type StatusBroadcaster struct {
	mu      sync.RWMutex
	clients map[chan string]struct{}
	now     func() time.Time
}

// NewStatusBroadcaster creates a new broadcaster.
func NewStatusBroadcaster() *StatusBroadcaster {
	return &StatusBroadcaster{
		clients: make(map[chan string]struct{}),
		now:     time.Now,
	}
}

// Subscribe returns a channel of encoded events and a cleanup function the
// caller must run when the client goes away.
func (b *StatusBroadcaster) Subscribe() (<-chan string, func()) {
	ch := make(chan string, 64)
	b.mu.Lock()
	b.clients[ch] = struct{}{}
	b.mu.Unlock()

	var once sync.Once
	unsub := func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.clients, ch)
			b.mu.Unlock()
			close(ch)
		})
	}
	return ch, unsub
}

// Clients returns the number of subscribers.
func (b *StatusBroadcaster) Clients() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.clients)
}

func (b *StatusBroadcaster) send(evt StatusEvent) error {
	evt.Time = b.now().Format(time.RFC3339Nano)
	data, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	payload := string(data)

	b.mu.RLock()
	defer b.mu.RUnlock()
	for ch := range b.clients {
		select {
		case ch <- payload:
		default:
			// slow client, drop
		}
	}
	return nil
}

// Broadcast sends a text message to all clients.
func (b *StatusBroadcaster) Broadcast(level, msg string) {
	_ = b.send(StatusEvent{Level: level, Msg: msg})
}

// BroadcastMsg is a convenience for level "info".
func (b *StatusBroadcaster) BroadcastMsg(msg string) {
	b.Broadcast(LevelInfo, msg)
}

// Publish sends a telemetry snapshot to all clients. It makes the
// broadcaster a telemetry sink.
func (b *StatusBroadcaster) Publish(s telemetry.Snapshot) error {
	return b.send(StatusEvent{Level: LevelTelemetry, Data: &s})
}

// BroadcastWriter returns an io.Writer broadcasting every non-blank write,
// for use with debug.SetOutput.
func BroadcastWriter(b *StatusBroadcaster) *broadcastWriter {
	return &broadcastWriter{b: b}
}

type broadcastWriter struct {
	b *StatusBroadcaster
}

func (w *broadcastWriter) Write(p []byte) (n int, err error) {
	msg := strings.TrimSpace(string(p))
	if msg == "" {
		return len(p), nil
	}
	level := LevelInfo
	if strings.Contains(msg, "[ERROR]") {
		level = LevelError
	}
	w.b.Broadcast(level, msg)
	return len(p), nil
}
