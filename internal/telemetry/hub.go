package telemetry

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/cjeanneret/TriloGo/internal/debug"
)

// DefaultPublishInterval is how often the hub pushes to its sinks.
const DefaultPublishInterval = 100 * time.Millisecond

// Sink receives published snapshots.
type Sink interface {
	Publish(s Snapshot) error
}

// Hub keeps the latest snapshot reported by the control loop and fans it
// out to sinks at a fixed interval, away from the loop goroutine.
type Hub struct {
	mu        sync.RWMutex
	latest    Snapshot
	seq       uint64
	published uint64

	interval time.Duration
	sinks    []Sink
}

// NewHub creates a hub publishing every interval.
func NewHub(interval time.Duration, sinks ...Sink) *Hub {
	if interval <= 0 {
		interval = DefaultPublishInterval
	}
	return &Hub{interval: interval, sinks: sinks}
}

// AddSink registers a sink. Call before Run.
func (h *Hub) AddSink(s Sink) {
	h.sinks = append(h.sinks, s)
}

// Report stores s as the latest snapshot.
func (h *Hub) Report(s Snapshot) {
	h.mu.Lock()
	h.latest = s
	h.seq++
	h.mu.Unlock()
}

// Latest returns the last reported snapshot, false if none yet.
func (h *Hub) Latest() (Snapshot, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.latest, h.seq > 0
}

// Run publishes until ctx is cancelled.
func (h *Hub) Run(ctx context.Context) error {
	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			h.Flush()
		}
	}
}

// Flush publishes the latest snapshot if it has not been published yet.
// It returns the number of sinks that accepted it. Sink failures are
// logged and never stop the hub.
func (h *Hub) Flush() int {
	h.mu.Lock()
	if h.seq == 0 || h.seq == h.published {
		h.mu.Unlock()
		return 0
	}
	snap := h.latest
	h.published = h.seq
	h.mu.Unlock()

	ok := 0
	for _, s := range h.sinks {
		if err := s.Publish(snap); err != nil {
			debug.Error(fmt.Errorf("telemetry sink: %w", err))
			continue
		}
		ok++
	}
	return ok
}
