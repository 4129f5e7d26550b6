package sim

import (
	"time"

	"fsrsense/core"
)

// Board wires the modelled peripherals the way TIMER1, PPI and the SAADC
// are connected on the force sensor board.
type Board struct {
	Clock *Clock
	ADC   *SAADC
	Timer *Timer
	PPI   *PPI
	GPIO  *GPIO

	delayed uint64
}

// NewBoard returns a board at time zero with nothing configured.
func NewBoard() *Board {
	clock := NewClock()
	ppi := NewPPI()
	b := &Board{
		Clock: clock,
		ADC:   NewSAADC(clock),
		PPI:   ppi,
		Timer: NewTimer(clock, ppi),
		GPIO:  NewGPIO(clock),
	}
	ppi.Task(b.ADC.SampleTask(), b.ADC.sample)
	return b
}

// Hardware returns the driver bundle for core.NewSensor.
func (b *Board) Hardware() core.Hardware {
	return core.Hardware{
		ADC:         b.ADC,
		Timer:       b.Timer,
		PPI:         b.PPI,
		GPIO:        b.GPIO,
		DelayMicros: b.delay,
	}
}

// Advance runs the peripherals for d of virtual time.
func (b *Board) Advance(d time.Duration) {
	b.Clock.Advance(uint64(d / time.Microsecond))
}

// Run advances in steps of step for d, calling loop after every step the
// way a firmware main loop wakes up.
func (b *Board) Run(d, step time.Duration, loop func()) {
	if step <= 0 {
		step = time.Millisecond
	}
	end := b.Clock.Now() + uint64(d/time.Microsecond)
	for b.Clock.Now() < end {
		next := b.Clock.Now() + uint64(step/time.Microsecond)
		if next > end {
			next = end
		}
		b.Clock.AdvanceTo(next)
		if loop != nil {
			loop()
		}
	}
}

// Delayed returns the total busy-wait requested through DelayMicros.
func (b *Board) Delayed() time.Duration {
	return time.Duration(b.delayed) * time.Microsecond
}

func (b *Board) delay(us uint32) {
	b.delayed += uint64(us)
}
