package link

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"time"

	"github.com/cjeanneret/TriloGo/internal/debug"
)

var (
	// ErrConnectionLost is returned by Update when the device stops answering.
	ErrConnectionLost = errors.New("connection lost")
	// ErrInvalidAxisRead is returned when an axis is read while disconnected
	// or the device did not report it.
	ErrInvalidAxisRead = errors.New("invalid axis read")
)

// DefaultAttemptBudget bounds how long a reconnect attempt may hold up a tick.
const DefaultAttemptBudget = 2 * time.Millisecond

// Device is an input device that can be opened, polled and closed.
// Open may take a while; it is never called concurrently with the other methods.
type Device interface {
	Open() error
	Poll() (map[string]float64, error)
	Close() error
}

// namer is implemented by devices that can report what they connected to.
type namer interface {
	Name() string
}

// Status is the connectivity state of the supervisor.
type Status int

const (
	Disconnected Status = iota
	Connected
)

func (s Status) String() string {
	if s == Connected {
		return "connected"
	}
	return "disconnected"
}

// ControllerState is the last known input state.
type ControllerState struct {
	Connected bool
	Axes      map[string]float64
}

// Supervisor owns the lifecycle of the input device connection:
// rate-limited reconnects that never stall the caller, loss detection,
// and the latest axis snapshot.
type Supervisor struct {
	dev    Device
	now    func() time.Time
	budget time.Duration

	status      Status
	axes        map[string]float64
	lastAttempt time.Time
	attempted   bool
	attempts    int
	pending     chan error // non-nil while an Open runs in the background
}

// Option configures a Supervisor.
type Option func(*Supervisor)

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Supervisor) { s.now = now }
}

// WithAttemptBudget sets how long TryReconnect waits for an attempt before
// leaving it to finish in the background.
func WithAttemptBudget(d time.Duration) Option {
	return func(s *Supervisor) { s.budget = d }
}

// NewSupervisor creates a disconnected supervisor for dev.
func NewSupervisor(dev Device, opts ...Option) *Supervisor {
	s := &Supervisor{
		dev:    dev,
		now:    time.Now,
		budget: DefaultAttemptBudget,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.lastAttempt = s.now()
	return s
}

// Connect makes one attempt and waits for its outcome or ctx.
// Meant for startup, before the control loop runs.
func (s *Supervisor) Connect(ctx context.Context) error {
	if s.status == Connected {
		return nil
	}
	if s.pending == nil {
		s.start()
	}
	select {
	case err := <-s.pending:
		s.finish(err)
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// TryReconnect starts a reconnect attempt when disconnected, no attempt is
// running and interval has elapsed since the last one. With forceFirst the
// very first attempt starts without waiting. It waits at most the attempt
// budget for the outcome.
func (s *Supervisor) TryReconnect(interval time.Duration, forceFirst bool) {
	s.collect(0)
	if s.status == Connected || s.pending != nil {
		return
	}
	due := s.now().Sub(s.lastAttempt) >= interval
	if !s.attempted && forceFirst {
		due = true
	}
	if !due {
		return
	}
	s.start()
	s.collect(s.budget)
}

func (s *Supervisor) start() {
	s.lastAttempt = s.now()
	s.attempted = true
	s.attempts++
	debug.Live("Reconnect attempt %d", s.attempts)

	ch := make(chan error, 1)
	dev := s.dev
	go func() { ch <- dev.Open() }()
	s.pending = ch
}

// collect picks up the outcome of a running attempt, waiting up to wait.
func (s *Supervisor) collect(wait time.Duration) {
	if s.pending == nil {
		return
	}
	if wait <= 0 {
		select {
		case err := <-s.pending:
			s.finish(err)
		default:
		}
		return
	}
	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case err := <-s.pending:
		s.finish(err)
	case <-timer.C:
		debug.Trace("Reconnect attempt still running after %v", wait)
	}
}

func (s *Supervisor) finish(err error) {
	s.pending = nil
	if err != nil {
		debug.Live("Reconnect attempt failed: %v", err)
		return
	}
	s.status = Connected
	s.axes = nil
	debug.Connection("connected", s.deviceName())
}

func (s *Supervisor) deviceName() string {
	if n, ok := s.dev.(namer); ok {
		return n.Name()
	}
	return "device"
}

// Update refreshes the axis snapshot. A failed poll drops the connection
// and returns an error wrapping ErrConnectionLost. It does nothing while
// disconnected.
func (s *Supervisor) Update() error {
	s.collect(0)
	if s.status != Connected {
		return nil
	}
	axes, err := s.dev.Poll()
	if err != nil {
		s.lose(err)
		return fmt.Errorf("%w: %v", ErrConnectionLost, err)
	}
	s.axes = axes
	return nil
}

// MarkLost drops the connection, e.g. after an invalid axis read.
func (s *Supervisor) MarkLost(cause error) {
	if s.status == Connected {
		s.lose(cause)
	}
}

func (s *Supervisor) lose(cause error) {
	name := s.deviceName()
	s.status = Disconnected
	s.axes = nil
	if err := s.dev.Close(); err != nil {
		debug.Error(fmt.Errorf("close input device: %w", err))
	}
	// The next attempt is one full interval after the loss.
	s.lastAttempt = s.now()
	debug.Connection("lost", fmt.Sprintf("%s: %v", name, cause))
}

// IsConnected reports whether the device is connected.
func (s *Supervisor) IsConnected() bool {
	return s.status == Connected
}

// Status returns the connectivity state.
func (s *Supervisor) Status() Status {
	return s.status
}

// ReadAxis returns the last polled value of an axis.
func (s *Supervisor) ReadAxis(name string) (float64, error) {
	if s.status != Connected {
		return 0, fmt.Errorf("%w: %s while disconnected", ErrInvalidAxisRead, name)
	}
	v, ok := s.axes[name]
	if !ok {
		return 0, fmt.Errorf("%w: %s not reported", ErrInvalidAxisRead, name)
	}
	return v, nil
}

// State returns a copy of the current input state.
func (s *Supervisor) State() ControllerState {
	return ControllerState{
		Connected: s.status == Connected,
		Axes:      maps.Clone(s.axes),
	}
}

// Attempts returns the number of connection attempts made so far.
func (s *Supervisor) Attempts() int {
	return s.attempts
}

// LastAttempt returns when the reconnect timer was last reset.
func (s *Supervisor) LastAttempt() time.Time {
	return s.lastAttempt
}

// Close waits for a running attempt and closes the device.
func (s *Supervisor) Close() error {
	if s.pending != nil {
		<-s.pending
		s.pending = nil
	}
	s.status = Disconnected
	s.axes = nil
	return s.dev.Close()
}
