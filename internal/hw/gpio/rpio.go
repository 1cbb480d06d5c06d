package gpio

import (
	"fmt"
	"sync"
	"time"

	"github.com/cjeanneret/TriloGo/internal/debug"
	"github.com/stianeikeland/go-rpio/v4"
)

// DefaultPWMHz is the software PWM frequency used when none is configured.
const DefaultPWMHz = 100

// RPiDriver is the real implementation for Raspberry Pi using go-rpio.
type RPiDriver struct {
	mu     sync.Mutex
	pins   map[int]rpio.Pin
	pwm    map[int]*softPWM
	period time.Duration
}

// NewRPiRealDriver creates a real GPIO driver for Raspberry Pi.
// Requires running on a Raspberry Pi with access to /dev/gpiomem or as root.
func NewRPiRealDriver(pwmHz int) (*RPiDriver, error) {
	debug.Info("Initializing real GPIO driver (go-rpio)")

	if pwmHz <= 0 {
		pwmHz = DefaultPWMHz
	}

	if err := rpio.Open(); err != nil {
		return nil, fmt.Errorf("failed to open GPIO: %w (are you running on a Raspberry Pi?)", err)
	}

	debug.Verbose("GPIO memory mapped successfully (PWM %d Hz)", pwmHz)

	return &RPiDriver{
		pins:   make(map[int]rpio.Pin),
		pwm:    make(map[int]*softPWM),
		period: time.Second / time.Duration(pwmHz),
	}, nil
}

func (r *RPiDriver) SetupPin(pin int, mode PinMode) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.setupLocked(pin, mode)
}

func (r *RPiDriver) setupLocked(pin int, mode PinMode) error {
	debug.GPIO("SetupPin", pin, mode)

	p := rpio.Pin(pin)
	r.pins[pin] = p

	switch mode {
	case Input:
		p.Input()
	case Output:
		p.Output()
	default:
		return fmt.Errorf("unknown pin mode: %d", mode)
	}

	return nil
}

func (r *RPiDriver) outputLocked(pin int) (rpio.Pin, error) {
	p, ok := r.pins[pin]
	if !ok {
		// Pin not setup yet, setup as output
		if err := r.setupLocked(pin, Output); err != nil {
			return 0, err
		}
		p = r.pins[pin]
	}
	return p, nil
}

func (r *RPiDriver) WritePin(pin int, level Level) error {
	debug.GPIO("WritePin", pin, level)

	r.mu.Lock()
	defer r.mu.Unlock()

	// A plain write takes the pin back from the PWM generator.
	if g, ok := r.pwm[pin]; ok {
		g.stop()
		delete(r.pwm, pin)
	}

	p, err := r.outputLocked(pin)
	if err != nil {
		return err
	}

	if level == High {
		p.High()
	} else {
		p.Low()
	}

	return nil
}

func (r *RPiDriver) ReadPin(pin int) (Level, error) {
	debug.GPIO("ReadPin", pin, nil)

	r.mu.Lock()
	p, ok := r.pins[pin]
	if !ok {
		// Pin not setup yet, setup as input
		if err := r.setupLocked(pin, Input); err != nil {
			r.mu.Unlock()
			return Low, err
		}
		p = r.pins[pin]
	}
	r.mu.Unlock()

	state := p.Read()
	if state == rpio.High {
		return High, nil
	}
	return Low, nil
}

// SetDuty updates the duty cycle of the pin's PWM generator,
// starting one on first use.
func (r *RPiDriver) SetDuty(pin int, duty float64) error {
	if err := ValidDuty(duty); err != nil {
		return err
	}
	debug.GPIO("SetDuty", pin, duty)

	r.mu.Lock()
	defer r.mu.Unlock()

	if g, ok := r.pwm[pin]; ok {
		g.set(duty)
		return nil
	}

	p, err := r.outputLocked(pin)
	if err != nil {
		return err
	}
	g := newSoftPWM(p, r.period)
	g.set(duty)
	r.pwm[pin] = g
	go g.run()
	return nil
}

func (r *RPiDriver) Close() error {
	debug.Trace("GPIO Close (real driver)")

	r.mu.Lock()
	defer r.mu.Unlock()

	for pin, g := range r.pwm {
		g.stop()
		delete(r.pwm, pin)
	}

	// Reset all pins to input (safe state)
	for pin, p := range r.pins {
		debug.Verbose("Resetting pin %d to input", pin)
		p.Low()
		p.Input()
	}

	return rpio.Close()
}
