package sim

import (
	"errors"

	"fsrsense/core"
)

var (
	ErrPinNotOutput = errors.New("pin not configured as output")
	ErrPinInvalid   = errors.New("invalid pin")
)

// GPIOPins is the number of pins on port P0.
const GPIOPins = 32

// Transition is one level change on a pin.
type Transition struct {
	At   uint64 // microseconds
	High bool
}

// GPIO models port P0 outputs and records every level change.
type GPIO struct {
	clock  *Clock
	output [GPIOPins]bool
	level  [GPIOPins]bool
	trace  map[core.GPIOPin][]Transition

	// FailSet makes SetPin fail, for fault injection.
	FailSet error
}

// NewGPIO returns a port with every pin an input.
func NewGPIO(clock *Clock) *GPIO {
	return &GPIO{clock: clock, trace: make(map[core.GPIOPin][]Transition)}
}

func (g *GPIO) ConfigureOutput(pin core.GPIOPin) error {
	if pin >= GPIOPins {
		return ErrPinInvalid
	}
	g.output[pin] = true
	g.level[pin] = false
	return nil
}

func (g *GPIO) SetPin(pin core.GPIOPin, value bool) error {
	if pin >= GPIOPins {
		return ErrPinInvalid
	}
	if !g.output[pin] {
		return ErrPinNotOutput
	}
	if g.FailSet != nil {
		return g.FailSet
	}
	if g.level[pin] != value {
		g.trace[pin] = append(g.trace[pin], Transition{At: g.clock.Now(), High: value})
	}
	g.level[pin] = value
	return nil
}

// Level returns the driven level of pin.
func (g *GPIO) Level(pin core.GPIOPin) bool {
	return pin < GPIOPins && g.level[pin]
}

// Transitions returns the recorded level changes of pin.
func (g *GPIO) Transitions(pin core.GPIOPin) []Transition {
	return g.trace[pin]
}
