//go:build tinygo

package core

import "runtime/interrupt"

// State is the saved interrupt mask.
type State = interrupt.State

// disableInterrupts masks interrupts and returns the previous state. Used
// around every field shared between the converter IRQ and the main loop.
func disableInterrupts() State {
	return interrupt.Disable()
}

// restoreInterrupts restores the interrupt state
func restoreInterrupts(state State) {
	interrupt.Restore(state)
}
