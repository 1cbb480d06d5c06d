package motor

import (
	"math"
	"testing"

	"github.com/cjeanneret/TriloGo/internal/hw/gpio"
)

// recordingDriver records GPIO calls for verification.
type recordingDriver struct {
	calls []gpioCall
}

type gpioCall struct {
	op    string // "setup", "write", "duty"
	pin   int
	level gpio.Level
	duty  float64
}

func (d *recordingDriver) SetupPin(pin int, mode gpio.PinMode) error {
	d.calls = append(d.calls, gpioCall{op: "setup", pin: pin})
	return nil
}

func (d *recordingDriver) WritePin(pin int, level gpio.Level) error {
	d.calls = append(d.calls, gpioCall{op: "write", pin: pin, level: level})
	return nil
}

func (d *recordingDriver) ReadPin(pin int) (gpio.Level, error) {
	return gpio.Low, nil
}

func (d *recordingDriver) SetDuty(pin int, duty float64) error {
	if err := gpio.ValidDuty(duty); err != nil {
		return err
	}
	d.calls = append(d.calls, gpioCall{op: "duty", pin: pin, duty: duty})
	return nil
}

func (d *recordingDriver) Close() error { return nil }

// lastDuty returns the most recent duty set on pin, or -1.
func (d *recordingDriver) lastDuty(pin int) float64 {
	for i := len(d.calls) - 1; i >= 0; i-- {
		if c := d.calls[i]; c.op == "duty" && c.pin == pin {
			return c.duty
		}
	}
	return -1
}

func (d *recordingDriver) writesForPin(pin int) []gpioCall {
	var result []gpioCall
	for _, c := range d.calls {
		if c.op == "write" && c.pin == pin {
			result = append(result, c)
		}
	}
	return result
}

var trilobot = Config{
	EnablePin: 26,
	Left:      Channel{PPin: 8, NPin: 11},
	Right:     Channel{PPin: 10, NPin: 9},
}

func newTestDrive(t *testing.T) (*Drive, *recordingDriver) {
	t.Helper()
	drv := &recordingDriver{}
	d, err := NewDrive(drv, trilobot)
	if err != nil {
		t.Fatalf("NewDrive: %v", err)
	}
	return d, drv
}

func TestNewDrive_StartsDisabled(t *testing.T) {
	d, drv := newTestDrive(t)

	if d.Enabled() {
		t.Error("drive should start disabled")
	}
	writes := drv.writesForPin(26)
	if len(writes) != 1 || writes[0].level != gpio.Low {
		t.Errorf("enable pin should be driven LOW once at init, got %v", writes)
	}
	for _, pin := range []int{8, 11, 10, 9} {
		if got := drv.lastDuty(pin); got != 0 {
			t.Errorf("pin %d duty = %v, want 0", pin, got)
		}
	}
}

func TestDrive_ForwardAndReverse(t *testing.T) {
	d, drv := newTestDrive(t)

	if err := d.SetLeftSpeed(0.5); err != nil {
		t.Fatalf("SetLeftSpeed: %v", err)
	}
	if err := d.SetRightSpeed(-0.25); err != nil {
		t.Fatalf("SetRightSpeed: %v", err)
	}

	cases := []struct {
		pin  int
		want float64
	}{
		{8, 0.5}, {11, 0}, // left forward
		{10, 0}, {9, 0.25}, // right reverse
	}
	for _, tc := range cases {
		if got := drv.lastDuty(tc.pin); got != tc.want {
			t.Errorf("pin %d duty = %v, want %v", tc.pin, got, tc.want)
		}
	}
	if !d.Enabled() {
		t.Error("setting a speed should enable the motors")
	}
	writes := drv.writesForPin(26)
	if last := writes[len(writes)-1]; last.level != gpio.High {
		t.Error("enable pin should be HIGH while driving")
	}
}

func TestDrive_ClampsOutOfRange(t *testing.T) {
	d, drv := newTestDrive(t)

	if err := d.SetSpeeds(2, -3); err != nil {
		t.Fatalf("SetSpeeds: %v", err)
	}
	if got := drv.lastDuty(8); got != 1 {
		t.Errorf("left P duty = %v, want 1", got)
	}
	if got := drv.lastDuty(9); got != 1 {
		t.Errorf("right N duty = %v, want 1", got)
	}

	if err := d.SetLeftSpeed(math.NaN()); err != nil {
		t.Fatalf("SetLeftSpeed(NaN): %v", err)
	}
	if drv.lastDuty(8) != 0 || drv.lastDuty(11) != 0 {
		t.Error("NaN speed should stop the motor")
	}
}

func TestDrive_DisableMotors(t *testing.T) {
	d, drv := newTestDrive(t)
	_ = d.SetSpeeds(1, 1)
	drv.calls = nil

	if err := d.DisableMotors(); err != nil {
		t.Fatalf("DisableMotors: %v", err)
	}
	for _, pin := range []int{8, 11, 10, 9} {
		if got := drv.lastDuty(pin); got != 0 {
			t.Errorf("pin %d duty = %v after disable, want 0", pin, got)
		}
	}
	writes := drv.writesForPin(26)
	if len(writes) != 1 || writes[0].level != gpio.Low {
		t.Errorf("disable should write LOW to enable pin, got %v", writes)
	}
	if d.Enabled() {
		t.Error("drive should report disabled")
	}
}

func TestDrive_NoEnablePin(t *testing.T) {
	drv := &recordingDriver{}
	cfg := trilobot
	cfg.EnablePin = 0
	d, err := NewDrive(drv, cfg)
	if err != nil {
		t.Fatalf("NewDrive: %v", err)
	}
	_ = d.SetSpeeds(0.3, 0.3)
	_ = d.DisableMotors()

	for _, c := range drv.calls {
		if c.op == "write" {
			t.Errorf("with EnablePin=0 no level writes are expected, got %+v", c)
		}
	}
}

func TestDrive_WithMockDriver(t *testing.T) {
	d, err := NewDrive(&gpio.MockDriver{}, trilobot)
	if err != nil {
		t.Fatalf("NewDrive: %v", err)
	}
	if err := d.SetSpeeds(0.1, -0.1); err != nil {
		t.Errorf("SetSpeeds: %v", err)
	}
}
