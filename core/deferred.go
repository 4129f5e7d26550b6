package core

// DeferredHandler runs a posted event from the main loop.
type DeferredHandler func(Event)

type deferredEntry struct {
	event   Event
	handler DeferredHandler
}

// DefaultQueueCapacity covers one completion per period plus headroom.
const DefaultQueueCapacity = 5

// DeferredQueue moves work out of interrupt context. Post is called from
// interrupt handlers and never blocks; Drain runs on the main loop and
// executes entries in the order they were posted, each exactly once.
type DeferredQueue struct {
	entries []deferredEntry
	head    int
	count   int

	posted   uint32
	rejected uint32
}

// NewDeferredQueue allocates a queue holding at most capacity entries.
func NewDeferredQueue(capacity int) *DeferredQueue {
	if capacity <= 0 {
		capacity = DefaultQueueCapacity
	}
	return &DeferredQueue{entries: make([]deferredEntry, capacity)}
}

// Post enqueues an event and the handler to run it with. It returns
// ErrQueueFull without touching queued entries when no slot is free.
func (q *DeferredQueue) Post(ev Event, handler DeferredHandler) error {
	state := disableInterrupts()
	defer restoreInterrupts(state)

	if q.count == len(q.entries) {
		q.rejected++
		return ErrQueueFull
	}
	tail := (q.head + q.count) % len(q.entries)
	q.entries[tail] = deferredEntry{event: ev, handler: handler}
	q.count++
	q.posted++
	return nil
}

// Drain runs every queued entry, including ones posted by the handlers
// themselves, and returns how many ran.
func (q *DeferredQueue) Drain() int {
	ran := 0
	for {
		state := disableInterrupts()
		if q.count == 0 {
			restoreInterrupts(state)
			return ran
		}
		e := q.entries[q.head]
		q.entries[q.head] = deferredEntry{}
		q.head = (q.head + 1) % len(q.entries)
		q.count--
		restoreInterrupts(state)

		if e.handler != nil {
			e.handler(e.event)
		}
		ran++
	}
}

// Len returns the number of queued entries.
func (q *DeferredQueue) Len() int {
	state := disableInterrupts()
	defer restoreInterrupts(state)
	return q.count
}

// Cap returns the queue capacity.
func (q *DeferredQueue) Cap() int {
	return len(q.entries)
}

// Rejected returns how many posts failed with ErrQueueFull.
func (q *DeferredQueue) Rejected() uint32 {
	state := disableInterrupts()
	defer restoreInterrupts(state)
	return q.rejected
}
