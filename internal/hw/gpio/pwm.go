package gpio

import (
	"math"
	"sync"
	"sync/atomic"
	"time"
)

// pinWriter is the part of rpio.Pin used by the PWM generator.
type pinWriter interface {
	High()
	Low()
}

// softPWM toggles a pin in the background. The duty cycle can be
// changed at any time; the new value applies from the next period.
type softPWM struct {
	pin    pinWriter
	period time.Duration
	duty   atomic.Uint64 // math.Float64bits
	done   chan struct{}
	once   sync.Once
	exited chan struct{}
	sleep  func(time.Duration)
}

func newSoftPWM(pin pinWriter, period time.Duration) *softPWM {
	return &softPWM{
		pin:    pin,
		period: period,
		done:   make(chan struct{}),
		exited: make(chan struct{}),
		sleep:  time.Sleep,
	}
}

func (s *softPWM) set(duty float64) {
	s.duty.Store(math.Float64bits(duty))
}

func (s *softPWM) get() float64 {
	return math.Float64frombits(s.duty.Load())
}

// split returns the HIGH and LOW durations of one period.
func (s *softPWM) split() (on, off time.Duration) {
	on = time.Duration(float64(s.period) * s.get())
	return on, s.period - on
}

func (s *softPWM) run() {
	defer close(s.exited)
	for {
		select {
		case <-s.done:
			s.pin.Low()
			return
		default:
		}

		on, off := s.split()
		if on > 0 {
			s.pin.High()
			s.sleep(on)
		}
		if off > 0 {
			s.pin.Low()
			s.sleep(off)
		}
	}
}

// stop ends the generator and waits for it to leave the pin LOW.
func (s *softPWM) stop() {
	s.once.Do(func() { close(s.done) })
	<-s.exited
}
