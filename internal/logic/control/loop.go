package control

import (
	"context"
	"errors"
	"fmt"
	"image/color"
	"time"

	"github.com/cjeanneret/TriloGo/internal/debug"
	"github.com/cjeanneret/TriloGo/internal/logic/drive"
	"github.com/cjeanneret/TriloGo/internal/logic/feedback"
	"github.com/cjeanneret/TriloGo/internal/telemetry"
)

// Supervisor is the connection state the loop polls every tick.
type Supervisor interface {
	IsConnected() bool
	TryReconnect(interval time.Duration, forceFirst bool)
	Update() error
	ReadAxis(name string) (float64, error)
	MarkLost(cause error)
}

// Motors drives the two wheels.
type Motors interface {
	SetLeftSpeed(speed float64) error
	SetRightSpeed(speed float64) error
	DisableMotors() error
}

// Lights is the underlight strip. SetLight buffers, Show commits.
type Lights interface {
	SetLight(i int, c color.RGBA) error
	Show() error
	Clear() error
}

// Reporter receives a snapshot after every tick. It must not block.
type Reporter interface {
	Report(s telemetry.Snapshot)
}

// Config holds the loop timing and the controller axes used for driving.
type Config struct {
	TickPeriod        time.Duration
	ReconnectInterval time.Duration
	AccelerateAxis    string
	BrakeAxis         string
	SteerAxis         string
}

// Loop is the drive-and-feedback control loop.
type Loop struct {
	sup      Supervisor
	motors   Motors
	lights   Lights
	anim     *feedback.Animator
	cfg      Config
	reporter Reporter

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error

	tick    uint64
	mode    feedback.Mode
	started bool
}

// NewLoop wires the loop to its collaborators.
func NewLoop(sup Supervisor, motors Motors, lights Lights, anim *feedback.Animator, cfg Config) *Loop {
	return &Loop{
		sup:    sup,
		motors: motors,
		lights: lights,
		anim:   anim,
		cfg:    cfg,
		now:    time.Now,
		sleep:  sleepCtx,
	}
}

// SetReporter installs a telemetry reporter.
func (l *Loop) SetReporter(r Reporter) {
	l.reporter = r
}

// Ticks returns the number of ticks run so far.
func (l *Loop) Ticks() uint64 {
	return l.tick
}

// Tick runs one iteration: connectivity, input, motors, lights, in that order.
// Only hardware driver failures are returned; a lost controller is handled
// by stopping the motors and switching to the pulse animation.
func (l *Loop) Tick() error {
	l.tick++
	snap := telemetry.Snapshot{Tick: l.tick, Time: l.now()}

	if !l.sup.IsConnected() {
		l.sup.TryReconnect(l.cfg.ReconnectInterval, true)
	}

	if err := l.sup.Update(); err != nil {
		debug.Error(err)
		if err := l.motors.DisableMotors(); err != nil {
			return fmt.Errorf("disable motors: %w", err)
		}
	}

	if l.sup.IsConnected() {
		if err := l.driveTick(&snap); err != nil {
			return err
		}
	}

	snap.Connected = l.sup.IsConnected()
	frame, mode := l.anim.Next(snap.Connected)
	l.trackMode(mode)
	if err := l.show(frame); err != nil {
		return err
	}

	phase := l.anim.Phase()
	snap.Mode = mode.String()
	snap.Hue, snap.Angle = phase.Hue, phase.Angle
	if l.reporter != nil {
		l.reporter.Report(snap)
	}
	return nil
}

// driveTick reads the drive axes and issues the motor command. A failed
// read counts as a lost connection.
func (l *Loop) driveTick(snap *telemetry.Snapshot) error {
	accel, errA := l.sup.ReadAxis(l.cfg.AccelerateAxis)
	brake, errB := l.sup.ReadAxis(l.cfg.BrakeAxis)
	steer, errS := l.sup.ReadAxis(l.cfg.SteerAxis)
	if err := errors.Join(errA, errB, errS); err != nil {
		l.sup.MarkLost(err)
		debug.Error(err)
		if err := l.motors.DisableMotors(); err != nil {
			return fmt.Errorf("disable motors: %w", err)
		}
		return nil
	}

	cmd := drive.MapAxes(accel, brake, steer)
	debug.Drive(l.tick, cmd.Left, cmd.Right)
	if err := l.motors.SetLeftSpeed(cmd.Left); err != nil {
		return fmt.Errorf("set left speed: %w", err)
	}
	if err := l.motors.SetRightSpeed(cmd.Right); err != nil {
		return fmt.Errorf("set right speed: %w", err)
	}

	snap.Accelerate, snap.Brake, snap.Steer = accel, brake, steer
	snap.Left, snap.Right = cmd.Left, cmd.Right
	return nil
}

func (l *Loop) trackMode(mode feedback.Mode) {
	if l.started && mode == l.mode {
		return
	}
	if l.started {
		debug.Mode(l.mode.String(), mode.String())
	}
	l.mode, l.started = mode, true
}

func (l *Loop) show(f feedback.Frame) error {
	return showFrame(l.lights, f)
}

func showFrame(lights Lights, f feedback.Frame) error {
	for i, c := range f {
		if err := lights.SetLight(i, c); err != nil {
			return fmt.Errorf("set light %d: %w", i, err)
		}
	}
	if err := lights.Show(); err != nil {
		return fmt.Errorf("show lights: %w", err)
	}
	return nil
}

// Run ticks at the configured period until ctx is cancelled or a hardware
// driver fails. A tick that overruns the period is followed immediately by
// the next one. On return the motors are disabled and the lights cleared.
func (l *Loop) Run(ctx context.Context) (err error) {
	defer func() {
		err = errors.Join(err, l.safeStop())
	}()

	debug.Info("Control loop running (tick %v, reconnect every %v)", l.cfg.TickPeriod, l.cfg.ReconnectInterval)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		start := l.now()
		if err := l.Tick(); err != nil {
			return err
		}

		remaining := l.cfg.TickPeriod - l.now().Sub(start)
		if remaining <= 0 {
			debug.Trace("tick %d overran by %v", l.tick, -remaining)
			continue
		}
		if err := l.sleep(ctx, remaining); err != nil {
			return err
		}
	}
}

// safeStop leaves the hardware in a safe state.
func (l *Loop) safeStop() error {
	debug.Info("Control loop stopping: motors disabled, lights off")
	var errs []error
	if err := l.motors.DisableMotors(); err != nil {
		errs = append(errs, fmt.Errorf("disable motors: %w", err))
	}
	if err := l.lights.Clear(); err != nil {
		errs = append(errs, fmt.Errorf("clear lights: %w", err))
	}
	return errors.Join(errs...)
}

// Confirm plays the connection confirmation frames, step apart.
func Confirm(ctx context.Context, lights Lights, frames []feedback.Frame, step time.Duration) error {
	for _, f := range frames {
		if err := showFrame(lights, f); err != nil {
			return err
		}
		if err := sleepCtx(ctx, step); err != nil {
			return err
		}
	}
	return nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
