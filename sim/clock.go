// Package sim models the nRF52 peripherals the force sensor runs on
// (SAADC, TIMER, PPI, GPIO) in virtual time, so the sampling state machine
// can run on a host without hardware.
//
// Peripheral callbacks run from Clock.Advance, which plays the role of
// interrupt context; code calling Advance plays the main loop.
package sim

import "time"

// Action tells the clock what to do with an event after it ran.
type Action uint8

const (
	Done Action = iota
	Reschedule
)

// Event is a scheduled callback. A Reschedule result re-inserts the event
// at its (updated) At.
type Event struct {
	At      uint64 // microseconds
	Handler func(*Event) Action

	next      *Event
	scheduled bool
}

// Clock is a virtual microsecond clock with a sorted event list.
type Clock struct {
	now  uint64
	list *Event
}

// NewClock returns a clock at zero.
func NewClock() *Clock {
	return &Clock{}
}

// Now returns the current time in microseconds.
func (c *Clock) Now() uint64 {
	return c.now
}

// Elapsed returns the current time as a duration.
func (c *Clock) Elapsed() time.Duration {
	return time.Duration(c.now) * time.Microsecond
}

// Schedule inserts e in wake order. Events with equal times run in the
// order they were scheduled.
func (c *Clock) Schedule(e *Event) {
	if e.scheduled {
		c.Cancel(e)
	}
	e.scheduled = true
	if c.list == nil || e.At < c.list.At {
		e.next = c.list
		c.list = e
		return
	}
	cur := c.list
	for cur.next != nil && cur.next.At <= e.At {
		cur = cur.next
	}
	e.next = cur.next
	cur.next = e
}

// After runs fn once, d microseconds from now.
func (c *Clock) After(d uint64, fn func()) *Event {
	e := &Event{At: c.now + d, Handler: func(*Event) Action {
		fn()
		return Done
	}}
	c.Schedule(e)
	return e
}

// Cancel removes e if it is still pending.
func (c *Clock) Cancel(e *Event) {
	if e == nil || !e.scheduled {
		return
	}
	for p := &c.list; *p != nil; p = &(*p).next {
		if *p == e {
			*p = e.next
			break
		}
	}
	e.next = nil
	e.scheduled = false
}

// Pending reports whether e is scheduled.
func (c *Clock) Pending(e *Event) bool {
	return e != nil && e.scheduled
}

// Len returns the number of scheduled events.
func (c *Clock) Len() int {
	n := 0
	for e := c.list; e != nil; e = e.next {
		n++
	}
	return n
}

// AdvanceTo runs every event due at or before t, in order, with Now set
// to each event's time, then moves the clock to t.
func (c *Clock) AdvanceTo(t uint64) {
	for c.list != nil && c.list.At <= t {
		e := c.list
		c.list = e.next
		e.next = nil
		e.scheduled = false
		if e.At > c.now {
			c.now = e.At
		}
		if e.Handler(e) == Reschedule {
			c.Schedule(e)
		}
	}
	if t > c.now {
		c.now = t
	}
}

// Advance moves the clock forward by d microseconds.
func (c *Clock) Advance(d uint64) {
	c.AdvanceTo(c.now + d)
}
