package link

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

// fakeDevice is an in-memory Device. Open runs on the supervisor's
// background goroutine, so every field is guarded.
type fakeDevice struct {
	mu      sync.Mutex
	openErr error
	pollErr error
	axes    map[string]float64
	opens   int
	closes  int
	gate    chan struct{} // when set, Open blocks until it is closed
}

func (d *fakeDevice) Open() error {
	d.mu.Lock()
	gate := d.gate
	d.mu.Unlock()
	if gate != nil {
		<-gate
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.opens++
	return d.openErr
}

func (d *fakeDevice) Poll() (map[string]float64, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.pollErr != nil {
		return nil, d.pollErr
	}
	out := make(map[string]float64, len(d.axes))
	for k, v := range d.axes {
		out[k] = v
	}
	return out, nil
}

func (d *fakeDevice) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closes++
	return nil
}

func (d *fakeDevice) Name() string { return "fake pad" }

func (d *fakeDevice) set(fn func(d *fakeDevice)) {
	d.mu.Lock()
	fn(d)
	d.mu.Unlock()
}

func (d *fakeDevice) openCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.opens
}

// fakeClock is a manually advanced clock.
type fakeClock struct {
	t time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

const interval = 10 * time.Second

func newTestSupervisor(dev *fakeDevice, clk *fakeClock) *Supervisor {
	return NewSupervisor(dev, WithClock(clk.now), WithAttemptBudget(time.Second))
}

func TestSupervisor_StartsDisconnected(t *testing.T) {
	s := newTestSupervisor(&fakeDevice{}, newFakeClock())
	if s.IsConnected() {
		t.Error("supervisor should start disconnected")
	}
	if err := s.Update(); err != nil {
		t.Errorf("Update while disconnected = %v, want nil", err)
	}
	if _, err := s.ReadAxis("LX"); !errors.Is(err, ErrInvalidAxisRead) {
		t.Errorf("ReadAxis while disconnected err = %v, want ErrInvalidAxisRead", err)
	}
}

func TestSupervisor_ConnectAndRead(t *testing.T) {
	dev := &fakeDevice{axes: map[string]float64{"R2": 0.5, "LX": -0.25}}
	s := newTestSupervisor(dev, newFakeClock())

	if err := s.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	if !s.IsConnected() {
		t.Fatal("expected connected")
	}
	if err := s.Update(); err != nil {
		t.Fatalf("Update: %v", err)
	}
	v, err := s.ReadAxis("R2")
	if err != nil || v != 0.5 {
		t.Errorf("ReadAxis(R2) = %v, %v; want 0.5, nil", v, err)
	}
	if _, err := s.ReadAxis("RY"); !errors.Is(err, ErrInvalidAxisRead) {
		t.Errorf("missing axis err = %v, want ErrInvalidAxisRead", err)
	}

	st := s.State()
	if !st.Connected || st.Axes["LX"] != -0.25 {
		t.Errorf("State() = %+v", st)
	}
	st.Axes["LX"] = 9
	if v, _ := s.ReadAxis("LX"); v != -0.25 {
		t.Error("State() must return a copy")
	}
}

func TestSupervisor_ConnectFailure(t *testing.T) {
	dev := &fakeDevice{openErr: errors.New("no pad")}
	clk := newFakeClock()
	s := newTestSupervisor(dev, clk)

	if err := s.Connect(context.Background()); err == nil {
		t.Fatal("expected Connect to fail")
	}
	if s.IsConnected() {
		t.Error("should stay disconnected")
	}
	if s.Attempts() != 1 || !s.LastAttempt().Equal(clk.now()) {
		t.Errorf("attempts = %d last = %v", s.Attempts(), s.LastAttempt())
	}

	// The failed startup attempt counts: no retry before the interval.
	s.TryReconnect(interval, true)
	if s.Attempts() != 1 {
		t.Errorf("attempts = %d, want 1 (interval not elapsed)", s.Attempts())
	}
}

func TestSupervisor_ForceFirstAttempt(t *testing.T) {
	dev := &fakeDevice{}
	s := newTestSupervisor(dev, newFakeClock())

	s.TryReconnect(interval, true)
	if !s.IsConnected() {
		t.Fatal("forced first attempt should connect immediately")
	}
}

func TestSupervisor_FirstAttemptWaitsWithoutForce(t *testing.T) {
	dev := &fakeDevice{}
	clk := newFakeClock()
	s := newTestSupervisor(dev, clk)

	s.TryReconnect(interval, false)
	if s.Attempts() != 0 {
		t.Fatalf("attempts = %d, want 0", s.Attempts())
	}
	clk.advance(interval)
	s.TryReconnect(interval, false)
	if !s.IsConnected() {
		t.Error("attempt after the interval should connect")
	}
}

func TestSupervisor_RateLimitsAttempts(t *testing.T) {
	dev := &fakeDevice{openErr: errors.New("no pad")}
	clk := newFakeClock()
	s := newTestSupervisor(dev, clk)

	// 25 s of 10 ms ticks: attempts at 0 s, 10 s and 20 s only.
	for i := 0; i < 2500; i++ {
		s.TryReconnect(interval, true)
		clk.advance(10 * time.Millisecond)
	}
	if got := s.Attempts(); got != 3 {
		t.Errorf("attempts = %d, want 3", got)
	}
	if got := dev.openCount(); got != 3 {
		t.Errorf("device opens = %d, want 3", got)
	}
}

func TestSupervisor_UpdateFailureDisconnectsSameCall(t *testing.T) {
	dev := &fakeDevice{axes: map[string]float64{"R2": 1}}
	clk := newFakeClock()
	s := newTestSupervisor(dev, clk)
	_ = s.Connect(context.Background())
	_ = s.Update()

	clk.advance(time.Minute)
	dev.set(func(d *fakeDevice) { d.pollErr = errors.New("read: no such device") })

	err := s.Update()
	if !errors.Is(err, ErrConnectionLost) {
		t.Fatalf("Update err = %v, want ErrConnectionLost", err)
	}
	if s.IsConnected() {
		t.Error("failed Update must disconnect immediately")
	}
	if _, err := s.ReadAxis("R2"); !errors.Is(err, ErrInvalidAxisRead) {
		t.Error("stale axes must not be readable after a loss")
	}
	if dev.closes != 1 {
		t.Errorf("device closes = %d, want 1", dev.closes)
	}
	if !s.LastAttempt().Equal(clk.now()) {
		t.Error("losing the connection should restart the reconnect timer")
	}

	// No reconnect until a full interval after the loss.
	s.TryReconnect(interval, true)
	if s.Attempts() != 1 {
		t.Errorf("attempts = %d, want 1 right after the loss", s.Attempts())
	}
	clk.advance(interval)
	dev.set(func(d *fakeDevice) { d.pollErr = nil })
	s.TryReconnect(interval, true)
	if !s.IsConnected() || s.Attempts() != 2 {
		t.Errorf("connected=%v attempts=%d, want reconnect after interval", s.IsConnected(), s.Attempts())
	}
}

func TestSupervisor_SlowAttemptDoesNotBlock(t *testing.T) {
	gate := make(chan struct{})
	dev := &fakeDevice{gate: gate}
	clk := newFakeClock()
	s := NewSupervisor(dev, WithClock(clk.now), WithAttemptBudget(5*time.Millisecond))

	start := time.Now()
	s.TryReconnect(interval, true)
	if elapsed := time.Since(start); elapsed > 500*time.Millisecond {
		t.Fatalf("TryReconnect blocked for %v", elapsed)
	}
	if s.IsConnected() {
		t.Fatal("attempt has not finished yet")
	}

	// While the attempt runs, later calls neither block nor start another one.
	clk.advance(2 * interval)
	s.TryReconnect(interval, true)
	if s.Attempts() != 1 {
		t.Errorf("attempts = %d, want 1 while one is in flight", s.Attempts())
	}

	close(gate)
	deadline := time.Now().Add(2 * time.Second)
	for !s.IsConnected() {
		if time.Now().After(deadline) {
			t.Fatal("background attempt result never collected")
		}
		_ = s.Update()
		time.Sleep(time.Millisecond)
	}
	if s.Attempts() != 1 {
		t.Errorf("attempts = %d, want 1", s.Attempts())
	}
}

func TestSupervisor_ConnectHonoursContext(t *testing.T) {
	gate := make(chan struct{})
	dev := &fakeDevice{gate: gate}
	s := newTestSupervisor(dev, newFakeClock())

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if err := s.Connect(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Connect err = %v, want deadline exceeded", err)
	}
	close(gate)
	if err := s.Close(); err != nil {
		t.Errorf("Close: %v", err)
	}
}

func TestSupervisor_MarkLost(t *testing.T) {
	dev := &fakeDevice{axes: map[string]float64{}}
	s := newTestSupervisor(dev, newFakeClock())
	_ = s.Connect(context.Background())

	s.MarkLost(errors.New("bad axis"))
	if s.IsConnected() {
		t.Error("MarkLost should disconnect")
	}
	s.MarkLost(errors.New("again"))
	if dev.closes != 1 {
		t.Errorf("closes = %d, want 1 (MarkLost while disconnected is a no-op)", dev.closes)
	}
}

func TestStatus_String(t *testing.T) {
	if Connected.String() != "connected" || Disconnected.String() != "disconnected" {
		t.Error("unexpected Status strings")
	}
}
