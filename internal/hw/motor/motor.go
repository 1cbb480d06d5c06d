package motor

import (
	"fmt"
	"math"

	"github.com/cjeanneret/TriloGo/internal/debug"
	"github.com/cjeanneret/TriloGo/internal/hw/gpio"
)

// Channel is one H-bridge output: a pair of PWM pins driving one DC motor.
type Channel struct {
	PPin int // forward PWM pin (BCM)
	NPin int // reverse PWM pin (BCM)
}

// Config holds the hardware configuration of the drive motors.
type Config struct {
	EnablePin int // DRV8833 nSLEEP pin (BCM). Active HIGH (HIGH=enabled). 0 = not used.
	Left      Channel
	Right     Channel
}

// Drive controls the two drive motors of a differential-drive robot
// through a DRV8833 dual H-bridge.
type Drive struct {
	gpio    gpio.Driver
	cfg     Config
	enabled bool
}

// NewDrive configures the motor pins. Motors start disabled.
func NewDrive(g gpio.Driver, cfg Config) (*Drive, error) {
	for _, pin := range []int{cfg.Left.PPin, cfg.Left.NPin, cfg.Right.PPin, cfg.Right.NPin} {
		if err := g.SetupPin(pin, gpio.Output); err != nil {
			return nil, fmt.Errorf("setup motor pin %d: %w", pin, err)
		}
	}

	d := &Drive{gpio: g, cfg: cfg}

	if cfg.EnablePin > 0 {
		if err := g.SetupPin(cfg.EnablePin, gpio.Output); err != nil {
			return nil, fmt.Errorf("setup motor enable pin %d: %w", cfg.EnablePin, err)
		}
	}
	if err := d.DisableMotors(); err != nil {
		return nil, err
	}
	return d, nil
}

// clamp limits speed to [-1, 1]. NaN means stop.
func clamp(speed float64) float64 {
	switch {
	case math.IsNaN(speed):
		return 0
	case speed > 1:
		return 1
	case speed < -1:
		return -1
	}
	return speed
}

// SetLeftSpeed sets the left motor speed in [-1, 1], enabling the motors if needed.
func (d *Drive) SetLeftSpeed(speed float64) error {
	return d.setSpeed("left", d.cfg.Left, speed)
}

// SetRightSpeed sets the right motor speed in [-1, 1], enabling the motors if needed.
func (d *Drive) SetRightSpeed(speed float64) error {
	return d.setSpeed("right", d.cfg.Right, speed)
}

// SetSpeeds sets both motors.
func (d *Drive) SetSpeeds(left, right float64) error {
	if err := d.SetLeftSpeed(left); err != nil {
		return err
	}
	return d.SetRightSpeed(right)
}

func (d *Drive) setSpeed(name string, ch Channel, speed float64) error {
	speed = clamp(speed)
	if !d.enabled {
		if err := d.EnableMotors(); err != nil {
			return err
		}
	}

	// Fast decay: one pin carries the PWM, the other is held LOW.
	p, n := 0.0, 0.0
	if speed > 0 {
		p = speed
	} else {
		n = -speed
	}
	debug.Trace("Motor %s: speed %+.3f (P=%.3f N=%.3f)", name, speed, p, n)

	if err := d.gpio.SetDuty(ch.PPin, p); err != nil {
		return fmt.Errorf("%s motor: %w", name, err)
	}
	if err := d.gpio.SetDuty(ch.NPin, n); err != nil {
		return fmt.Errorf("%s motor: %w", name, err)
	}
	return nil
}

// EnableMotors wakes the H-bridge (nSLEEP=HIGH).
func (d *Drive) EnableMotors() error {
	if d.cfg.EnablePin > 0 {
		if err := d.gpio.WritePin(d.cfg.EnablePin, gpio.High); err != nil {
			return fmt.Errorf("enable motors: %w", err)
		}
	}
	d.enabled = true
	return nil
}

// DisableMotors zeroes both channels and puts the H-bridge to sleep (nSLEEP=LOW).
// Motors freewheel to a stop.
func (d *Drive) DisableMotors() error {
	for _, pin := range []int{d.cfg.Left.PPin, d.cfg.Left.NPin, d.cfg.Right.PPin, d.cfg.Right.NPin} {
		if err := d.gpio.SetDuty(pin, 0); err != nil {
			return fmt.Errorf("disable motors: %w", err)
		}
	}
	if d.cfg.EnablePin > 0 {
		if err := d.gpio.WritePin(d.cfg.EnablePin, gpio.Low); err != nil {
			return fmt.Errorf("disable motors: %w", err)
		}
	}
	d.enabled = false
	debug.Trace("Motors disabled")
	return nil
}

// Enabled reports whether the H-bridge is awake.
func (d *Drive) Enabled() bool {
	return d.enabled
}
