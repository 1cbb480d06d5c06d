package underlight

import (
	"errors"
	"fmt"
	"image/color"
	"math"

	"github.com/cjeanneret/TriloGo/internal/debug"
	"github.com/cjeanneret/TriloGo/internal/hw/i2c"
)

// DefaultAddress is the fixed I2C address of the SN3218.
const DefaultAddress = 0x54

// MaxLights is the number of RGB lights an SN3218 can drive (18 channels).
const MaxLights = 6

// SN3218 registers.
const (
	regShutdown   = 0x00
	regPWM        = 0x01 // 18 consecutive PWM registers
	regLEDControl = 0x13 // 3 registers, 6 channel-enable bits each
	regUpdate     = 0x16
	regReset      = 0x17
)

const channels = 18

// ErrIndex is returned when a light index is outside the strip.
var ErrIndex = errors.New("underlight index out of range")

// gammaTable is the SN3218 default correction curve.
var gammaTable = func() [256]byte {
	var t [256]byte
	for i := range t {
		t[i] = byte(math.Pow(255, float64(i-1)/255))
	}
	return t
}()

// Strip drives the RGB underlights through an SN3218. Colors are
// buffered by SetLight and Fill and reach the LEDs on Show.
type Strip struct {
	conn  i2c.Conn
	count int
	gamma bool
	buf   [channels]byte
}

// Config holds the underlight strip parameters.
type Config struct {
	Count int  // number of RGB lights wired, 1..MaxLights
	Gamma bool // apply gamma correction before writing
}

// New resets the SN3218, enables the channels used by count lights
// and blanks them.
func New(conn i2c.Conn, cfg Config) (*Strip, error) {
	if cfg.Count < 1 || cfg.Count > MaxLights {
		return nil, fmt.Errorf("underlight count must be 1-%d, got %d", MaxLights, cfg.Count)
	}
	s := &Strip{conn: conn, count: cfg.Count, gamma: cfg.Gamma}

	if err := conn.Write([]byte{regReset, 0xFF}); err != nil {
		return nil, fmt.Errorf("reset sn3218: %w", err)
	}
	if err := conn.Write([]byte{regShutdown, 0x01}); err != nil {
		return nil, fmt.Errorf("enable sn3218: %w", err)
	}
	if err := conn.Write(append([]byte{regLEDControl}, enableMask(cfg.Count*3)...)); err != nil {
		return nil, fmt.Errorf("enable sn3218 channels: %w", err)
	}
	if err := s.Clear(); err != nil {
		return nil, err
	}
	debug.Verbose("Underlights: %d lights enabled (gamma=%v)", cfg.Count, cfg.Gamma)
	return s, nil
}

// enableMask returns the three LED control bytes for the first n channels.
func enableMask(n int) []byte {
	mask := make([]byte, 3)
	for ch := 0; ch < n; ch++ {
		mask[ch/6] |= 1 << (ch % 6)
	}
	return mask
}

// Count returns the number of lights on the strip.
func (s *Strip) Count() int {
	return s.count
}

// SetLight buffers the color of light i.
func (s *Strip) SetLight(i int, c color.RGBA) error {
	if i < 0 || i >= s.count {
		return fmt.Errorf("%w: %d (count %d)", ErrIndex, i, s.count)
	}
	s.buf[i*3] = c.R
	s.buf[i*3+1] = c.G
	s.buf[i*3+2] = c.B
	return nil
}

// Fill buffers the same color on every light.
func (s *Strip) Fill(c color.RGBA) {
	for i := 0; i < s.count; i++ {
		_ = s.SetLight(i, c)
	}
}

// Show writes the buffered colors and latches them.
func (s *Strip) Show() error {
	msg := make([]byte, 0, channels+1)
	msg = append(msg, regPWM)
	for _, v := range s.buf {
		if s.gamma {
			v = gammaTable[v]
		}
		msg = append(msg, v)
	}
	if err := s.conn.Write(msg); err != nil {
		return fmt.Errorf("write underlights: %w", err)
	}
	if err := s.conn.Write([]byte{regUpdate, 0xFF}); err != nil {
		return fmt.Errorf("latch underlights: %w", err)
	}
	return nil
}

// Clear turns every light off immediately.
func (s *Strip) Clear() error {
	s.buf = [channels]byte{}
	return s.Show()
}

// Close blanks the lights, puts the SN3218 in shutdown and closes the bus.
func (s *Strip) Close() error {
	clearErr := s.Clear()
	shutErr := s.conn.Write([]byte{regShutdown, 0x00})
	closeErr := s.conn.Close()
	return errors.Join(clearErr, shutErr, closeErr)
}
