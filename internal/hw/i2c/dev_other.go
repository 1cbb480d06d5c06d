//go:build !linux

package i2c

import "fmt"

func openDevice(bus int, addr uint16) (Conn, error) {
	return nil, fmt.Errorf("i2c bus %d: only supported on linux (use mock_hardware)", bus)
}
