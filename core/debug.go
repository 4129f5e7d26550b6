package core

// DebugWriter is a function type for writing debug messages
type DebugWriter func(string)

var (
	// debugPrintln is the global debug print function (can be set by platform code)
	debugPrintln DebugWriter = func(s string) {}

	// debugEnabled controls whether DebugPrintln output is active
	debugEnabled bool

	// Async debug output channel
	debugChan chan string
)

// SetDebugWriter sets the platform-specific debug output function
// This allows platforms to redirect debug output to UART, RTT, a host logger, etc.
func SetDebugWriter(writer DebugWriter) {
	debugPrintln = writer
}

// SetDebugEnabled enables or disables debug output
func SetDebugEnabled(enabled bool) {
	debugEnabled = enabled
}

// IsDebugEnabled returns whether debug output is enabled
func IsDebugEnabled() bool {
	return debugEnabled
}

// InitAsyncDebug starts the async debug output goroutine
// Call this from main() after SetDebugWriter
func InitAsyncDebug() {
	debugChan = make(chan string, 16)
	go debugOutputWorker()
}

func debugOutputWorker() {
	for msg := range debugChan {
		if debugPrintln != nil {
			debugPrintln(msg)
		}
	}
}

// DebugPrintln writes a debug message using the platform-specific writer.
// Never call it from interrupt context; use DebugAsync there.
func DebugPrintln(msg string) {
	if debugEnabled && debugPrintln != nil {
		debugPrintln(msg)
	}
}

// DebugAsync queues a debug message for async output (non-blocking)
// Returns immediately even if channel is full (drops message)
func DebugAsync(msg string) {
	if debugChan != nil {
		select {
		case debugChan <- msg:
		default:
		}
	}
}

// TraceKind identifies a sampling event captured in a TraceRing.
type TraceKind uint8

const (
	TraceBufferFull TraceKind = iota + 1
	TraceSpurious
	TraceRearm
	TraceAbort
	TraceCalibrateStart
	TraceCalibrateBusy
	TraceCalibrateDone
	TracePowerOn
	TracePowerOff
	TraceDeliver
	TraceOverwrite
	TraceQueueFull
	TraceStart
	TraceStop
	TraceFault
)

func (k TraceKind) String() string {
	switch k {
	case TraceBufferFull:
		return "BUF_FULL"
	case TraceSpurious:
		return "SPURIOUS"
	case TraceRearm:
		return "REARM"
	case TraceAbort:
		return "ABORT"
	case TraceCalibrateStart:
		return "CAL_START"
	case TraceCalibrateBusy:
		return "CAL_BUSY"
	case TraceCalibrateDone:
		return "CAL_DONE"
	case TracePowerOn:
		return "PWR_ON"
	case TracePowerOff:
		return "PWR_OFF"
	case TraceDeliver:
		return "DELIVER"
	case TraceOverwrite:
		return "OVERWRITE"
	case TraceQueueFull:
		return "QUEUE_FULL"
	case TraceStart:
		return "START"
	case TraceStop:
		return "STOP"
	case TraceFault:
		return "FAULT!"
	}
	return "UNKNOWN"
}

// TraceEvent captures a sampling event for post-mortem analysis
type TraceEvent struct {
	Kind   TraceKind
	Buffer BufferID
	Count  uint32 // samples since last calibration when recorded
	Value  int32  // context-dependent
}

// TraceRingSize is how many events a TraceRing keeps.
const TraceRingSize = 32

// TraceRing keeps the last TraceRingSize events. Recording is
// non-blocking and safe from interrupt context.
type TraceRing struct {
	events  [TraceRingSize]TraceEvent
	head    uint8
	enabled bool
}

// Enable turns recording on or off.
func (r *TraceRing) Enable(on bool) {
	r.enabled = on
}

// Record captures one event.
func (r *TraceRing) Record(kind TraceKind, buf BufferID, count uint32, value int32) {
	if r == nil || !r.enabled {
		return
	}
	idx := r.head
	r.events[idx] = TraceEvent{Kind: kind, Buffer: buf, Count: count, Value: value}
	r.head = (idx + 1) % TraceRingSize
}

// Events returns the recorded events, oldest first.
func (r *TraceRing) Events() []TraceEvent {
	out := make([]TraceEvent, 0, TraceRingSize)
	for i := uint8(0); i < TraceRingSize; i++ {
		evt := r.events[(r.head+i)%TraceRingSize]
		if evt.Kind == 0 {
			continue
		}
		out = append(out, evt)
	}
	return out
}

// Clear empties the ring.
func (r *TraceRing) Clear() {
	for i := range r.events {
		r.events[i] = TraceEvent{}
	}
	r.head = 0
}

// Dump writes the ring through the debug writer (call on fault or from
// the main loop, never from an interrupt).
func (r *TraceRing) Dump() {
	if debugPrintln == nil {
		return
	}
	debugPrintln("[TRACE] === Trace Ring Dump ===")
	for _, evt := range r.Events() {
		debugPrintln("[TRACE] " + evt.Kind.String() +
			" buf=" + evt.Buffer.String() +
			" count=" + utoa(evt.Count) +
			" v=" + itoa(int(evt.Value)))
	}
	debugPrintln("[TRACE] === End Dump ===")
}
