package gpio

import (
	"sync"
	"testing"
	"time"
)

// recordingPin records the levels written by the PWM generator.
type recordingPin struct {
	mu     sync.Mutex
	levels []Level
	sleeps []time.Duration
}

func (p *recordingPin) High() { p.mu.Lock(); p.levels = append(p.levels, High); p.mu.Unlock() }
func (p *recordingPin) Low()  { p.mu.Lock(); p.levels = append(p.levels, Low); p.mu.Unlock() }

func (p *recordingPin) sleep(d time.Duration) {
	p.mu.Lock()
	p.sleeps = append(p.sleeps, d)
	p.mu.Unlock()
	time.Sleep(10 * time.Microsecond)
}

func (p *recordingPin) sleepCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.sleeps)
}

func runFor(t *testing.T, duty float64, minSleeps int) *recordingPin {
	t.Helper()
	pin := &recordingPin{}
	g := newSoftPWM(pin, 10*time.Millisecond)
	g.sleep = pin.sleep
	g.set(duty)
	go g.run()

	deadline := time.Now().Add(2 * time.Second)
	for pin.sleepCount() < minSleeps {
		if time.Now().After(deadline) {
			t.Fatalf("generator did not run: %d sleeps", pin.sleepCount())
		}
		time.Sleep(100 * time.Microsecond)
	}
	g.stop()
	return pin
}

func TestSoftPWM_Split(t *testing.T) {
	cases := []struct {
		duty    float64
		on, off time.Duration
	}{
		{0, 0, 10 * time.Millisecond},
		{0.25, 2500 * time.Microsecond, 7500 * time.Microsecond},
		{1, 10 * time.Millisecond, 0},
	}
	for _, tc := range cases {
		g := newSoftPWM(&recordingPin{}, 10*time.Millisecond)
		g.set(tc.duty)
		on, off := g.split()
		if on != tc.on || off != tc.off {
			t.Errorf("duty %v: split = (%v, %v), want (%v, %v)", tc.duty, on, off, tc.on, tc.off)
		}
	}
}

func TestSoftPWM_AlternatesAndStopsLow(t *testing.T) {
	pin := runFor(t, 0.5, 4)

	pin.mu.Lock()
	defer pin.mu.Unlock()
	if pin.levels[0] != High || pin.levels[1] != Low {
		t.Errorf("expected HIGH then LOW, got %v", pin.levels[:2])
	}
	if last := pin.levels[len(pin.levels)-1]; last != Low {
		t.Error("pin should be LOW after stop")
	}
	for _, d := range pin.sleeps {
		if d != 5*time.Millisecond {
			t.Errorf("50%% duty should sleep 5ms per half, got %v", d)
		}
	}
}

func TestSoftPWM_ZeroDutyNeverHigh(t *testing.T) {
	pin := runFor(t, 0, 3)

	pin.mu.Lock()
	defer pin.mu.Unlock()
	for i, l := range pin.levels {
		if l == High {
			t.Fatalf("write %d: zero duty must never drive HIGH", i)
		}
	}
}

func TestSoftPWM_StopIsIdempotent(t *testing.T) {
	pin := &recordingPin{}
	g := newSoftPWM(pin, time.Millisecond)
	g.sleep = pin.sleep
	go g.run()
	g.stop()
	g.stop()
}

func TestValidDuty(t *testing.T) {
	for _, d := range []float64{0, 0.5, 1} {
		if err := ValidDuty(d); err != nil {
			t.Errorf("ValidDuty(%v) = %v, want nil", d, err)
		}
	}
	for _, d := range []float64{-0.01, 1.01} {
		if err := ValidDuty(d); err == nil {
			t.Errorf("ValidDuty(%v) = nil, want error", d)
		}
	}
}

func TestMockDriver_RejectsBadDuty(t *testing.T) {
	m := &MockDriver{}
	if err := m.SetDuty(8, 0.3); err != nil {
		t.Errorf("SetDuty valid: %v", err)
	}
	if err := m.SetDuty(8, 2); err == nil {
		t.Error("SetDuty(2) should fail")
	}
	var _ Driver = m
}
