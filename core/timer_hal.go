package core

// CompareChannel selects a timer capture/compare register.
type CompareChannel uint8

const (
	CompareChannel0 CompareChannel = iota
	CompareChannel1
	CompareChannel2
	CompareChannel3
)

// TimerDriver is the abstract hardware timer the timebase runs on.
type TimerDriver interface {
	// Init configures the timer and registers the compare interrupt handler.
	Init(handler func(CompareChannel)) error

	// MsToTicks converts milliseconds to timer ticks.
	MsToTicks(ms uint32) uint32

	// Compare arms a compare register, optionally raising an interrupt.
	Compare(ch CompareChannel, ticks uint32, interrupt bool)

	// ExtendedCompare arms a compare register and, when clear is set,
	// resets the counter on match (hardware shortcut).
	ExtendedCompare(ch CompareChannel, ticks uint32, clear bool, interrupt bool)

	// CompareEvent returns the event endpoint of a compare register.
	CompareEvent(ch CompareChannel) Endpoint

	Enable()
	Disable()
}

// PPIChannel is an allocated event-to-task connection.
type PPIChannel uint8

// PPIDriver is the programmable peripheral interconnect.
type PPIDriver interface {
	ChannelAlloc() (PPIChannel, error)
	ChannelAssign(ch PPIChannel, event, task Endpoint) error
	ChannelEnable(ch PPIChannel) error
	ChannelDisable(ch PPIChannel) error
}

// Hardware bundles the drivers a Sensor runs on. Targets build it from
// their register-level drivers; host code uses the sim package.
type Hardware struct {
	ADC   SAADCDriver
	Timer TimerDriver
	PPI   PPIDriver
	GPIO  GPIODriver

	// DelayMicros busy-waits. Optional.
	DelayMicros func(us uint32)
}
