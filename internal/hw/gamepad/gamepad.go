package gamepad

import (
	"errors"
	"fmt"
	"strings"

	"github.com/0xcafed00d/joystick"
	"github.com/cjeanneret/TriloGo/internal/debug"
)

// ScanRange is the number of /dev/input/jsN devices tried when no index is set.
const ScanRange = 4

var (
	// ErrNoDevice is returned by Open when no matching joystick is present.
	ErrNoDevice = errors.New("no matching controller found")
	// ErrDisconnected is returned by Poll once the joystick stops answering.
	ErrDisconnected = errors.New("controller disconnected")
)

// Gamepad is a game controller read through the Linux joystick API
// and normalized with a Profile.
type Gamepad struct {
	profile Profile
	index   int // -1 scans 0..ScanRange-1
	open    func(id int) (joystick.Joystick, error)
	js      joystick.Joystick
	name    string
}

// New creates a gamepad for profile. index selects /dev/input/js<index>;
// a negative index scans for the first joystick matching the profile.
func New(profile Profile, index int) *Gamepad {
	return &Gamepad{
		profile: profile,
		index:   index,
		open:    joystick.Open,
	}
}

// Profile returns the profile in use.
func (g *Gamepad) Profile() Profile {
	return g.profile
}

// Name returns the kernel name of the open joystick, or "" when closed.
func (g *Gamepad) Name() string {
	return g.name
}

func (g *Gamepad) candidates() []int {
	if g.index >= 0 {
		return []int{g.index}
	}
	ids := make([]int, ScanRange)
	for i := range ids {
		ids[i] = i
	}
	return ids
}

// Open looks for a joystick matching the profile and keeps it open.
func (g *Gamepad) Open() error {
	_ = g.Close()

	need := g.profile.axisCount()
	for _, id := range g.candidates() {
		js, err := g.open(id)
		if err != nil {
			debug.Trace("Joystick %d: %v", id, err)
			continue
		}
		name := js.Name()
		if g.profile.DeviceName != "" && !strings.Contains(name, g.profile.DeviceName) {
			debug.Verbose("Joystick %d (%s) does not match profile %s", id, name, g.profile.Name)
			js.Close()
			continue
		}
		if js.AxisCount() < need {
			debug.Verbose("Joystick %d (%s) has %d axes, profile %s needs %d", id, name, js.AxisCount(), g.profile.Name, need)
			js.Close()
			continue
		}
		g.js = js
		g.name = name
		debug.Verbose("Joystick %d opened: %s (%d axes, %d buttons)", id, name, js.AxisCount(), js.ButtonCount())
		return nil
	}
	return fmt.Errorf("%w: profile %s", ErrNoDevice, g.profile.Name)
}

// Poll reads the latest joystick state and returns every profile axis, normalized.
func (g *Gamepad) Poll() (map[string]float64, error) {
	if g.js == nil {
		return nil, ErrDisconnected
	}
	state, err := g.js.Read()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDisconnected, err)
	}
	axes := make(map[string]float64, len(g.profile.Axes))
	for name, m := range g.profile.Axes {
		if m.Index >= len(state.AxisData) {
			return nil, fmt.Errorf("%w: axis %s index %d beyond %d reported axes", ErrDisconnected, name, m.Index, len(state.AxisData))
		}
		axes[name] = m.Normalize(state.AxisData[m.Index])
	}
	return axes, nil
}

// Close releases the joystick. It is safe to call when already closed.
func (g *Gamepad) Close() error {
	if g.js != nil {
		g.js.Close()
		g.js = nil
		g.name = ""
	}
	return nil
}
