package gamepad

import (
	"errors"
	"fmt"
	"math"
	"sort"
)

// Axis names shared by every profile.
const (
	AxisLX = "LX" // left stick, left = -1, right = +1
	AxisLY = "LY" // left stick, down = -1, up = +1
	AxisRX = "RX"
	AxisRY = "RY"
	AxisL2 = "L2" // left trigger, released = 0, pressed = 1
	AxisR2 = "R2"
)

// AxisNames lists every axis a profile may map.
var AxisNames = []string{AxisLX, AxisLY, AxisRX, AxisRY, AxisL2, AxisR2}

func knownAxis(name string) bool {
	for _, n := range AxisNames {
		if n == name {
			return true
		}
	}
	return false
}

// Raw range reported by the Linux joystick API.
const (
	rawMin = -32767
	rawMax = 32767
)

// ErrUnknownProfile is returned when no profile has the requested name.
var ErrUnknownProfile = errors.New("unknown controller profile")

// AxisMapping defines how a raw axis index maps to a named axis.
type AxisMapping struct {
	Index   int
	Trigger bool // normalize to [0, 1] instead of [-1, 1]
	Invert  bool
	// Raw range of a trigger. Zero values mean the full joystick range.
	RawMin   int
	RawMax   int
	Deadzone float64 // readings with a smaller magnitude are reported as 0
}

// Normalize converts a raw reading to the axis' normalized range.
func (m AxisMapping) Normalize(raw int) float64 {
	var v float64
	if m.Trigger {
		lo, hi := m.RawMin, m.RawMax
		if lo == 0 && hi == 0 {
			lo, hi = rawMin, rawMax
		}
		if hi == lo {
			return 0
		}
		v = float64(raw-lo) / float64(hi-lo)
		if m.Invert {
			v = 1 - v
		}
		v = math.Max(0, math.Min(1, v))
	} else {
		v = float64(raw) / rawMax
		if m.Invert {
			v = -v
		}
		v = math.Max(-1, math.Min(1, v))
	}
	if math.Abs(v) < m.Deadzone {
		return 0
	}
	return v
}

// Profile holds the axis layout of one controller model.
type Profile struct {
	Name       string
	DeviceName string // substring of the joystick name reported by the kernel; empty matches any
	Axes       map[string]AxisMapping
}

// Validate checks that the profile is usable.
func (p Profile) Validate() error {
	if p.Name == "" {
		return errors.New("profile name is required")
	}
	if len(p.Axes) == 0 {
		return fmt.Errorf("profile %q has no axes", p.Name)
	}
	for name, m := range p.Axes {
		if !knownAxis(name) {
			return fmt.Errorf("profile %q: unknown axis %q (known: %v)", p.Name, name, AxisNames)
		}
		if m.Index < 0 {
			return fmt.Errorf("profile %q axis %s: index must be >= 0, got %d", p.Name, name, m.Index)
		}
		if m.Deadzone < 0 || m.Deadzone >= 1 {
			return fmt.Errorf("profile %q axis %s: deadzone must be in [0, 1), got %g", p.Name, name, m.Deadzone)
		}
	}
	return nil
}

// axisCount returns the number of raw axes the profile needs.
func (p Profile) axisCount() int {
	n := 0
	for _, m := range p.Axes {
		if m.Index+1 > n {
			n = m.Index + 1
		}
	}
	return n
}

func stick(index int, invert bool) AxisMapping {
	return AxisMapping{Index: index, Invert: invert, Deadzone: 0.05}
}

func trigger(index int) AxisMapping {
	return AxisMapping{Index: index, Trigger: true}
}

// builtin profiles, as reported by the Linux hid drivers over Bluetooth.
var builtin = []Profile{
	{
		Name:       "ps4",
		DeviceName: "Wireless Controller",
		Axes: map[string]AxisMapping{
			AxisLX: stick(0, false), AxisLY: stick(1, true),
			AxisL2: trigger(2),
			AxisRX: stick(3, false), AxisRY: stick(4, true),
			AxisR2: trigger(5),
		},
	},
	{
		Name:       "ps5",
		DeviceName: "DualSense Wireless Controller",
		Axes: map[string]AxisMapping{
			AxisLX: stick(0, false), AxisLY: stick(1, true),
			AxisL2: trigger(2),
			AxisRX: stick(3, false), AxisRY: stick(4, true),
			AxisR2: trigger(5),
		},
	},
	{
		Name:       "xbox",
		DeviceName: "Xbox Wireless Controller",
		Axes: map[string]AxisMapping{
			AxisLX: stick(0, false), AxisLY: stick(1, true),
			AxisRX: stick(2, false), AxisRY: stick(3, true),
			AxisR2: trigger(4), AxisL2: trigger(5),
		},
	},
	{
		Name:       "8bitdo",
		DeviceName: "8BitDo Pro 2",
		Axes: map[string]AxisMapping{
			AxisLX: stick(0, false), AxisLY: stick(1, true),
			AxisRX: stick(2, false), AxisRY: stick(3, true),
			AxisR2: trigger(4), AxisL2: trigger(5),
		},
	},
}

// Registry is the set of known controller profiles.
type Registry struct {
	profiles map[string]Profile
}

// NewRegistry returns a registry holding the built-in profiles.
func NewRegistry() *Registry {
	r := &Registry{profiles: make(map[string]Profile)}
	for _, p := range builtin {
		r.profiles[p.Name] = p
	}
	return r
}

// Add registers p, replacing any profile with the same name.
func (r *Registry) Add(p Profile) error {
	if err := p.Validate(); err != nil {
		return err
	}
	r.profiles[p.Name] = p
	return nil
}

// Lookup returns the profile called name.
func (r *Registry) Lookup(name string) (Profile, error) {
	p, ok := r.profiles[name]
	if !ok {
		return Profile{}, fmt.Errorf("%w: %q (known: %v)", ErrUnknownProfile, name, r.Names())
	}
	return p, nil
}

// Names returns the profile names in sorted order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.profiles))
	for name := range r.profiles {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
