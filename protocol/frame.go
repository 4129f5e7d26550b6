package protocol

import "bytes"

// Frame is one validated frame. Payload aliases the scanned input.
type Frame struct {
	Sequence uint8
	Payload  []byte
}

// IsAck reports whether the frame carries no messages.
func (f Frame) IsAck() bool { return len(f.Payload) == 0 }

// Scanner splits a byte stream into frames. After a length, destination,
// sync or CRC error it drops bytes up to the next sync byte.
type Scanner struct {
	synced      bool
	requireDest bool
	lost        uint32

	// OnResync is called when sync is regained after an error.
	OnResync func()
}

// NewScanner returns a synchronized scanner. requireDest rejects frames
// without the destination bits in their sequence byte.
func NewScanner(requireDest bool) *Scanner {
	return &Scanner{synced: true, requireDest: requireDest}
}

// Next returns the first complete frame in data and the number of bytes
// consumed up to and including it. ok is false when data holds no complete
// frame; consumed then covers the garbage that can be dropped.
func (s *Scanner) Next(data []byte) (f Frame, consumed int, ok bool) {
	i := 0
	for i < len(data) {
		if !s.synced {
			idx := bytes.IndexByte(data[i:], MessageValueSync)
			if idx < 0 {
				return Frame{}, len(data), false
			}
			i += idx + 1
			s.synced = true
			if s.OnResync != nil {
				s.OnResync()
			}
			continue
		}
		if data[i] == MessageValueSync {
			i++
			continue
		}

		rest := data[i:]
		if len(rest) < MessageLengthMin {
			return Frame{}, i, false
		}
		n := int(rest[MessagePositionLen])
		if n < MessageLengthMin || n > MessageLengthMax {
			s.lose()
			continue
		}
		seq := rest[MessagePositionSeq]
		if s.requireDest && seq&^MessageSeqMask != MessageDest {
			s.lose()
			continue
		}
		if len(rest) < n {
			return Frame{}, i, false
		}
		if rest[n-MessageTrailerSync] != MessageValueSync {
			s.lose()
			continue
		}
		crc := uint16(rest[n-MessageTrailerCRC])<<8 | uint16(rest[n-MessageTrailerCRC+1])
		if crc != CRC16(rest[:n-MessageTrailerSize]) {
			s.lose()
			continue
		}
		return Frame{Sequence: seq, Payload: rest[MessageHeaderSize : n-MessageTrailerSize]}, i + n, true
	}
	return Frame{}, i, false
}

// Synchronized reports whether the scanner is in sync.
func (s *Scanner) Synchronized() bool { return s.synced }

// Lost returns how many frame errors forced a resync.
func (s *Scanner) Lost() uint32 { return s.lost }

// Reset puts the scanner back in sync.
func (s *Scanner) Reset() { s.synced = true }

func (s *Scanner) lose() {
	s.synced = false
	s.lost++
}

// AppendFrame appends a complete frame around payload to dst.
func AppendFrame(dst []byte, seq uint8, payload []byte) ([]byte, error) {
	n := MessageLengthMin + len(payload)
	if n > MessageLengthMax {
		return dst, ErrFrameTooLong
	}
	start := len(dst)
	dst = append(dst, byte(n), seq)
	dst = append(dst, payload...)
	crc := CRC16(dst[start:])
	return append(dst, byte(crc>>8), byte(crc), MessageValueSync), nil
}
