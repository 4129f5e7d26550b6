package core

import "errors"

var (
	// ErrQueueFull is returned by DeferredQueue.Post when every slot is taken.
	ErrQueueFull = errors.New("deferred queue full")

	// ErrHardwareBusy is returned by a driver that cannot accept a request
	// yet, typically a calibration start while an abort is draining.
	ErrHardwareBusy = errors.New("hardware busy")

	// ErrBufferOwnership reports a ping-pong protocol violation: re-arming a
	// buffer the converter still owns, or a completion for a buffer that was
	// not the one being written.
	ErrBufferOwnership = errors.New("sample buffer ownership violated")

	// ErrCalibrationTimeout is returned when calibration start was rejected
	// more times than the configured bound.
	ErrCalibrationTimeout = errors.New("calibration start rejected too many times")

	// ErrFaulted is returned by operations on a sensor that hit a fatal error.
	ErrFaulted = errors.New("sensor faulted")

	ErrInvalidConfig = errors.New("invalid configuration")
	ErrNoHandler     = errors.New("result handler required")
	ErrNoSensor      = errors.New("no sensor attached")
)

// ConfigError wraps a failure during init. The device cannot run safely
// after one.
type ConfigError struct {
	Op  string
	Err error
}

func (e *ConfigError) Error() string {
	return "config " + e.Op + ": " + e.Err.Error()
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

func configErr(op string, err error) error {
	if err == nil {
		return nil
	}
	return &ConfigError{Op: op, Err: err}
}

// FaultHandler is called once when the sensor hits an unrecoverable error
// in steady state. Firmware typically resets the MCU from here.
type FaultHandler func(reason string, err error)

func defaultFaultHandler(reason string, err error) {
	panic("fsr fault: " + reason + ": " + err.Error())
}
