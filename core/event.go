package core

// BufferID identifies one of the two sample buffers.
type BufferID uint8

const (
	BufferPing BufferID = 0
	BufferPong BufferID = 1

	// NoBuffer marks the completion event raised by Abort. It carries no
	// data and must never be read.
	NoBuffer BufferID = 0xFF
)

// Valid reports whether id names a real buffer.
func (id BufferID) Valid() bool {
	return id == BufferPing || id == BufferPong
}

func (id BufferID) String() string {
	switch id {
	case BufferPing:
		return "ping"
	case BufferPong:
		return "pong"
	case NoBuffer:
		return "none"
	}
	return "buffer(" + itoa(int(id)) + ")"
}

// EventKind tags an Event.
type EventKind uint8

const (
	// EventBufferFull reports a filled buffer, or NoBuffer after an abort.
	EventBufferFull EventKind = iota + 1
	// EventCalibrationComplete reports the end of offset calibration.
	EventCalibrationComplete
)

func (k EventKind) String() string {
	switch k {
	case EventBufferFull:
		return "buffer_full"
	case EventCalibrationComplete:
		return "calibration_complete"
	}
	return "unknown"
}

// Event is a converter notification. Buffer is only meaningful for
// EventBufferFull.
type Event struct {
	Kind   EventKind
	Buffer BufferID
}

// BufferFull builds an EventBufferFull for id.
func BufferFull(id BufferID) Event {
	return Event{Kind: EventBufferFull, Buffer: id}
}

// CalibrationComplete builds an EventCalibrationComplete.
func CalibrationComplete() Event {
	return Event{Kind: EventCalibrationComplete, Buffer: NoBuffer}
}

// Spurious reports whether e is the data-less completion raised by Abort.
func (e Event) Spurious() bool {
	return e.Kind == EventBufferFull && !e.Buffer.Valid()
}
