package feedback

import (
	"image/color"
	"math"

	"github.com/lucasb-eyer/go-colorful"
)

// Default animation parameters.
const (
	DefaultRainbowStep = 0.5 / 360     // hue turns per tick
	DefaultPulseStep   = math.Pi / 200 // radians per tick
	DefaultPulseMax    = 127           // half brightness red
)

// Mode is the active animation.
type Mode int

const (
	ModeRainbow Mode = iota // controller connected
	ModePulse               // controller missing
)

func (m Mode) String() string {
	if m == ModeRainbow {
		return "rainbow"
	}
	return "pulse"
}

// Frame holds one color per light, in light order.
type Frame []color.RGBA

// Config holds the animation parameters.
type Config struct {
	RainbowStep float64
	PulseStep   float64
	PulseMax    uint8
}

// DefaultConfig returns the standard animation parameters.
func DefaultConfig() Config {
	return Config{
		RainbowStep: DefaultRainbowStep,
		PulseStep:   DefaultPulseStep,
		PulseMax:    DefaultPulseMax,
	}
}

// Phase is the animation state carried across ticks.
type Phase struct {
	Hue   float64 `json:"hue"`   // rainbow cursor, [0, 1)
	Angle float64 `json:"angle"` // pulse cursor, [0, 2π)
}

// Animator produces the underlight frame of every tick. Each mode has its
// own cursor, which only moves while that mode is shown.
type Animator struct {
	n     int
	cfg   Config
	phase Phase
}

// NewAnimator creates an animator for n lights.
func NewAnimator(n int, cfg Config) *Animator {
	return &Animator{n: n, cfg: cfg}
}

// Count returns the number of lights per frame.
func (a *Animator) Count() int {
	return a.n
}

// Phase returns the current cursors.
func (a *Animator) Phase() Phase {
	return a.phase
}

// Next returns the frame for the given connectivity and advances the
// matching cursor.
func (a *Animator) Next(connected bool) (Frame, Mode) {
	if connected {
		return a.Rainbow(), ModeRainbow
	}
	return a.Pulse(), ModePulse
}

// RainbowHue returns the hue, in turns, of light i out of n.
func RainbowHue(cursor float64, i, n int) float64 {
	return wrap(cursor+float64(i)/float64(n), 1)
}

// Rainbow returns a full rainbow spread across the lights, rotated by the
// hue cursor, then advances the cursor.
func (a *Animator) Rainbow() Frame {
	f := make(Frame, a.n)
	for i := range f {
		f[i] = hsv(RainbowHue(a.phase.Hue, i, a.n))
	}
	a.phase.Hue = wrap(a.phase.Hue+a.cfg.RainbowStep, 1)
	return f
}

// PulseIntensity returns the pulse brightness, in [0, 1], at angle.
func PulseIntensity(angle float64) float64 {
	return math.Sin(angle)/2 + 0.5
}

// Pulse returns a uniform dim red frame following a sine wave, then
// advances the angle cursor.
func (a *Animator) Pulse() Frame {
	red := uint8(PulseIntensity(a.phase.Angle) * float64(a.cfg.PulseMax))
	f := make(Frame, a.n)
	for i := range f {
		f[i] = color.RGBA{R: red, A: 0xFF}
	}
	a.phase.Angle = wrap(a.phase.Angle+a.cfg.PulseStep, 2*math.Pi)
	return f
}

func hsv(hue float64) color.RGBA {
	r, g, b := colorful.Hsv(hue*360, 1, 1).Clamped().RGB255()
	return color.RGBA{R: r, G: g, B: b, A: 0xFF}
}

// wrap maps v into [0, period).
func wrap(v, period float64) float64 {
	v = math.Mod(v, period)
	if v < 0 {
		v += period
	}
	if v >= period {
		v = 0
	}
	return v
}

// Primary colors of the confirmation sequence.
var (
	Red   = color.RGBA{R: 0xFF, A: 0xFF}
	Green = color.RGBA{G: 0xFF, A: 0xFF}
	Blue  = color.RGBA{B: 0xFF, A: 0xFF}
	Off   = color.RGBA{A: 0xFF}
)

// ConfirmationFrames returns the one-time sequence shown once a controller
// is connected: each light in turn flashes red, green, then blue while the
// others are off, ending with every light off.
func ConfirmationFrames(n int) []Frame {
	frames := make([]Frame, 0, 3*n+1)
	for led := 0; led < n; led++ {
		for _, c := range []color.RGBA{Red, Green, Blue} {
			f := Solid(n, Off)
			f[led] = c
			frames = append(frames, f)
		}
	}
	return append(frames, Solid(n, Off))
}

// Solid returns a frame with every light set to c.
func Solid(n int, c color.RGBA) Frame {
	f := make(Frame, n)
	for i := range f {
		f[i] = c
	}
	return f
}
