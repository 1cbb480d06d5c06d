package i2c

import (
	"github.com/cjeanneret/TriloGo/internal/debug"
)

// Conn is a connection to a single device on an I2C bus.
type Conn interface {
	// Write sends one transaction to the device.
	Write(p []byte) error
	Close() error
}

// Open returns a connection to the device at addr on /dev/i2c-<bus>.
// If mock is true, returns a MockConn that only logs.
func Open(bus int, addr uint16, mock bool) (Conn, error) {
	if mock {
		debug.Info("Using MOCK I2C bus %d (development mode)", bus)
		return &MockConn{Bus: bus, Addr: addr}, nil
	}
	return openDevice(bus, addr)
}

// MockConn logs every transaction at trace level.
type MockConn struct {
	Bus  int
	Addr uint16
}

func (m *MockConn) Write(p []byte) error {
	debug.I2C(m.Bus, m.Addr, p)
	return nil
}

func (m *MockConn) Close() error {
	debug.Trace("I2C Close (mock)")
	return nil
}
