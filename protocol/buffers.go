package protocol

import "io"

// InputBuffer holds received bytes until complete frames can be parsed.
type InputBuffer interface {
	// Data returns the unconsumed bytes.
	Data() []byte
	Available() int
	// Pop consumes n bytes from the front.
	Pop(n int)
}

// OutputBuffer accumulates outgoing frames. Frames are built in place: a
// length placeholder is written first and patched once the payload is
// known.
type OutputBuffer interface {
	Output(data []byte)
	CurPosition() int
	Update(pos int, val byte)
	DataSince(pos int) []byte
}

// SliceInputBuffer reads from a fixed slice.
type SliceInputBuffer struct {
	data []byte
}

func NewSliceInputBuffer(data []byte) *SliceInputBuffer {
	return &SliceInputBuffer{data: data}
}

func (s *SliceInputBuffer) Data() []byte   { return s.data }
func (s *SliceInputBuffer) Available() int { return len(s.data) }

func (s *SliceInputBuffer) Pop(n int) {
	if n > len(s.data) {
		n = len(s.data)
	}
	s.data = s.data[n:]
}

// ScratchOutput is a fixed-size OutputBuffer. Writes past the end are
// dropped and counted.
type ScratchOutput struct {
	buf     [OutputMax]byte
	pos     int
	dropped int
}

func NewScratchOutput() *ScratchOutput {
	return &ScratchOutput{}
}

func (s *ScratchOutput) Output(data []byte) {
	n := copy(s.buf[s.pos:], data)
	s.pos += n
	s.dropped += len(data) - n
}

func (s *ScratchOutput) CurPosition() int { return s.pos }

func (s *ScratchOutput) Update(pos int, val byte) {
	if pos >= 0 && pos < s.pos {
		s.buf[pos] = val
	}
}

func (s *ScratchOutput) DataSince(pos int) []byte {
	if pos < 0 || pos > s.pos {
		return nil
	}
	return s.buf[pos:s.pos]
}

// Result returns everything written since the last Reset.
func (s *ScratchOutput) Result() []byte { return s.buf[:s.pos] }

// Dropped returns how many bytes did not fit since the last Reset.
func (s *ScratchOutput) Dropped() int { return s.dropped }

func (s *ScratchOutput) Reset() {
	s.pos = 0
	s.dropped = 0
}

// FlushTo writes the accumulated bytes to w and resets the buffer.
func (s *ScratchOutput) FlushTo(w io.Writer) error {
	if s.pos == 0 {
		return nil
	}
	_, err := w.Write(s.buf[:s.pos])
	s.Reset()
	return err
}

// FifoBuffer is a bounded byte queue whose unread bytes are always
// contiguous, so Data never copies. Space freed by Pop is reclaimed by
// moving the unread tail to the front on the next Write.
type FifoBuffer struct {
	buf        []byte
	start, end int
}

func NewFifoBuffer(capacity int) *FifoBuffer {
	return &FifoBuffer{buf: make([]byte, capacity)}
}

// Write appends as much of data as fits and returns the count.
func (f *FifoBuffer) Write(data []byte) int {
	if len(f.buf)-f.end < len(data) && f.start > 0 {
		f.end = copy(f.buf, f.buf[f.start:f.end])
		f.start = 0
	}
	n := copy(f.buf[f.end:], data)
	f.end += n
	return n
}

// Read moves up to len(p) bytes out of the queue.
func (f *FifoBuffer) Read(p []byte) int {
	n := copy(p, f.buf[f.start:f.end])
	f.Pop(n)
	return n
}

func (f *FifoBuffer) Data() []byte   { return f.buf[f.start:f.end] }
func (f *FifoBuffer) Available() int { return f.end - f.start }
func (f *FifoBuffer) Free() int      { return len(f.buf) - f.Available() }
func (f *FifoBuffer) IsEmpty() bool  { return f.start == f.end }

func (f *FifoBuffer) Pop(n int) {
	if n > f.Available() {
		n = f.Available()
	}
	f.start += n
	if f.start == f.end {
		f.start, f.end = 0, 0
	}
}

func (f *FifoBuffer) Reset() {
	f.start, f.end = 0, 0
}
