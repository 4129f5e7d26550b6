//go:build nrf52 || nrf52840

package main

import (
	"errors"
	"machine"

	"fsrsense/core"
)

var errPinNotOutput = errors.New("pin not configured as output")

const gpioPins = 32

// GPIODriver drives P0 pins through machine.Pin.
type GPIODriver struct {
	outputs uint32
}

var gpio = &GPIODriver{}

func (g *GPIODriver) ConfigureOutput(pin core.GPIOPin) error {
	if pin >= gpioPins {
		return core.ErrInvalidConfig
	}
	p := machine.Pin(pin)
	p.Configure(machine.PinConfig{Mode: machine.PinOutput})
	p.Low()
	g.outputs |= 1 << pin
	return nil
}

func (g *GPIODriver) SetPin(pin core.GPIOPin, value bool) error {
	if pin >= gpioPins || g.outputs&(1<<pin) == 0 {
		return errPinNotOutput
	}
	machine.Pin(pin).Set(value)
	return nil
}
