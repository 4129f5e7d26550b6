package sim

import "fsrsense/core"

// TimerTicksPerMs is the tick rate of the modelled TIMER1 (16 MHz with
// prescaler 4, i.e. 1 MHz).
const TimerTicksPerMs = 1000

// timerEventBase is TIMER1 EVENTS_COMPARE[0].
const timerEventBase core.Endpoint = 0x40009140

type compareReg struct {
	ticks     uint32
	armed     bool
	interrupt bool
	clear     bool
	event     Event
}

// Timer models a 32-bit timer with four compare registers and
// COMPARE->CLEAR shortcuts.
type Timer struct {
	clock   *Clock
	ppi     *PPI
	handler func(core.CompareChannel)

	cc         [4]compareReg
	enabled    bool
	cycleStart uint64

	inits      int
	interrupts [4]uint32
}

// NewTimer returns a stopped timer publishing its events on ppi.
func NewTimer(clock *Clock, ppi *PPI) *Timer {
	t := &Timer{clock: clock, ppi: ppi}
	for i := range t.cc {
		ch := core.CompareChannel(i)
		t.cc[i].event.Handler = func(*Event) Action { return t.fire(ch) }
	}
	return t
}

func (t *Timer) Init(handler func(core.CompareChannel)) error {
	t.handler = handler
	t.inits++
	return nil
}

func (t *Timer) MsToTicks(ms uint32) uint32 {
	return ms * TimerTicksPerMs
}

func (t *Timer) Compare(ch core.CompareChannel, ticks uint32, interrupt bool) {
	t.ExtendedCompare(ch, ticks, false, interrupt)
}

func (t *Timer) ExtendedCompare(ch core.CompareChannel, ticks uint32, clear bool, interrupt bool) {
	r := &t.cc[ch]
	r.ticks = ticks
	r.armed = true
	r.clear = clear
	r.interrupt = interrupt
	if t.enabled {
		t.schedule(ch)
	}
}

func (t *Timer) CompareEvent(ch core.CompareChannel) core.Endpoint {
	return timerEventBase + core.Endpoint(4*ch)
}

// Enable starts counting from zero.
func (t *Timer) Enable() {
	if t.enabled {
		return
	}
	t.enabled = true
	t.cycleStart = t.clock.Now()
	for i := range t.cc {
		t.schedule(core.CompareChannel(i))
	}
}

// Disable stops and clears the counter.
func (t *Timer) Disable() {
	t.enabled = false
	for i := range t.cc {
		t.clock.Cancel(&t.cc[i].event)
	}
}

// Enabled reports whether the timer is counting.
func (t *Timer) Enabled() bool {
	return t.enabled
}

// Inits counts Init calls.
func (t *Timer) Inits() int {
	return t.inits
}

// Interrupts counts compare interrupts delivered on ch.
func (t *Timer) Interrupts(ch core.CompareChannel) uint32 {
	return t.interrupts[ch]
}

func (t *Timer) period() (uint32, bool) {
	for i := range t.cc {
		if t.cc[i].armed && t.cc[i].clear {
			return t.cc[i].ticks, true
		}
	}
	return 0, false
}

func (t *Timer) schedule(ch core.CompareChannel) {
	r := &t.cc[ch]
	t.clock.Cancel(&r.event)
	if !r.armed {
		return
	}
	if p, ok := t.period(); ok && r.ticks > p {
		return
	}
	r.event.At = t.cycleStart + uint64(r.ticks)
	if r.event.At < t.clock.Now() {
		return
	}
	t.clock.Schedule(&r.event)
}

func (t *Timer) fire(ch core.CompareChannel) Action {
	r := &t.cc[ch]
	t.ppi.Signal(t.CompareEvent(ch))
	if r.interrupt && t.handler != nil {
		t.interrupts[ch]++
		t.handler(ch)
	}
	if !t.enabled || !r.clear || r.ticks == 0 {
		// other compares are re-armed when the clearing one starts the
		// next cycle
		return Done
	}
	t.cycleStart = t.clock.Now()
	for i := range t.cc {
		if core.CompareChannel(i) != ch {
			t.schedule(core.CompareChannel(i))
		}
	}
	r.event.At = t.cycleStart + uint64(r.ticks)
	return Reschedule
}
