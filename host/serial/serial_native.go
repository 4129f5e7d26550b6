//go:build !wasm

package serial

import (
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/tarm/serial"
)

var ErrPortClosed = errors.New("serial port closed")

// NativePort wraps a tarm/serial port.
type NativePort struct {
	mu     sync.Mutex
	port   *serial.Port
	cfg    *Config
	closed bool
}

// Open opens a native serial port
func Open(cfg *Config) (Port, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if cfg.Device == "" {
		return nil, fmt.Errorf("no serial device configured")
	}

	serialConfig := &serial.Config{
		Name:        cfg.Device,
		Baud:        cfg.Baud,
		ReadTimeout: time.Duration(cfg.ReadTimeout) * time.Millisecond,
	}

	port, err := serial.OpenPort(serialConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to open serial port %s: %w", cfg.Device, err)
	}

	return &NativePort{
		port: port,
		cfg:  cfg,
	}, nil
}

// Read reads from the port. A read timeout with no data returns (0, nil)
// rather than io.EOF so the link reader keeps going; after Close it
// returns io.EOF.
func (p *NativePort) Read(b []byte) (int, error) {
	n, err := p.port.Read(b)
	if errors.Is(err, io.EOF) {
		if p.isClosed() {
			return n, io.EOF
		}
		return n, nil
	}
	return n, err
}

// Write writes data to the serial port
func (p *NativePort) Write(b []byte) (int, error) {
	if p.isClosed() {
		return 0, ErrPortClosed
	}
	return p.port.Write(b)
}

// Close closes the serial port. It is safe to call twice.
func (p *NativePort) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	return p.port.Close()
}

// Flush discards unread input and unsent output.
func (p *NativePort) Flush() error {
	if p.isClosed() {
		return ErrPortClosed
	}
	return p.port.Flush()
}

// Device returns the path the port was opened on.
func (p *NativePort) Device() string {
	return p.cfg.Device
}

func (p *NativePort) isClosed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}
