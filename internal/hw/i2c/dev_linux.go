//go:build linux

package i2c

import (
	"fmt"

	"github.com/cjeanneret/TriloGo/internal/debug"
	"golang.org/x/sys/unix"
)

// ioctl request selecting the slave address (linux/i2c-dev.h).
const i2cSlave = 0x0703

// Device is a Linux i2c-dev character device bound to one slave address.
type Device struct {
	fd   int
	bus  int
	addr uint16
}

func openDevice(bus int, addr uint16) (Conn, error) {
	path := fmt.Sprintf("/dev/i2c-%d", bus)
	debug.Info("Opening I2C device %s addr=0x%02x", path, addr)

	fd, err := unix.Open(path, unix.O_RDWR|unix.O_CLOEXEC, 0)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w (is I2C enabled?)", path, err)
	}
	if err := unix.IoctlSetInt(fd, i2cSlave, int(addr)); err != nil {
		_ = unix.Close(fd)
		return nil, fmt.Errorf("select i2c address 0x%02x: %w", addr, err)
	}
	return &Device{fd: fd, bus: bus, addr: addr}, nil
}

func (d *Device) Write(p []byte) error {
	debug.I2C(d.bus, d.addr, p)
	n, err := unix.Write(d.fd, p)
	if err != nil {
		return fmt.Errorf("i2c write: %w", err)
	}
	if n != len(p) {
		return fmt.Errorf("i2c write: short write %d/%d bytes", n, len(p))
	}
	return nil
}

func (d *Device) Close() error {
	debug.Trace("I2C Close bus=%d", d.bus)
	return unix.Close(d.fd)
}
