// Package serial opens the UART link to the sensor board.
package serial

import (
	"io"
)

// Port is the byte stream the host link runs over. Tests substitute an
// in-memory pipe.
type Port interface {
	io.ReadWriteCloser

	// Flush discards anything buffered in either direction.
	Flush() error
}

// Config holds serial port configuration
type Config struct {
	// Device path (e.g., "/dev/ttyACM0", "COM3")
	Device string

	// Baud rate of the board's UART bridge
	Baud int

	// Read timeout in milliseconds (0 = blocking)
	ReadTimeout int
}

// Defaults for the board's UART.
const (
	DefaultBaud        = 115200
	DefaultReadTimeout = 100
)

// DefaultConfig returns the configuration for the sensor board's UART.
func DefaultConfig(device string) *Config {
	return &Config{
		Device:      device,
		Baud:        DefaultBaud,
		ReadTimeout: DefaultReadTimeout,
	}
}
