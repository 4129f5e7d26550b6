// Package protocol implements the framed serial link between the force
// sensor firmware and host tools, and the payload format of the wireless
// notification.
//
// A frame is
//
//	len | seq | payload ... | crc16 hi | crc16 lo | 0x7E
//
// where len counts the whole frame, seq carries the 0x10 destination bits
// plus a 4-bit sequence number, and the payload is a sequence of messages,
// each a VLQ message ID followed by VLQ-encoded arguments. A frame with an
// empty payload is an ACK (or NAK when its sequence is not the one sent).
package protocol

// Version is the link protocol version reported in the dictionary.
const Version = "fsr-link/1"

const (
	MessageHeaderSize  = 2
	MessageTrailerSize = 3
	MessageLengthMin   = MessageHeaderSize + MessageTrailerSize
	MessageLengthMax   = 64
	MessagePayloadMax  = MessageLengthMax - MessageLengthMin

	MessagePositionLen = 0
	MessagePositionSeq = 1
	MessageTrailerCRC  = 3
	MessageTrailerSync = 1

	MessageValueSync = 0x7E
	MessageDest      = 0x10
	MessageSeqMask   = 0x0F

	// OutputMax is the size of a ScratchOutput: several frames can be
	// queued between flushes.
	OutputMax = 512
)

// NextSequence returns the sequence byte following seq.
func NextSequence(seq uint8) uint8 {
	return ((seq + 1) & MessageSeqMask) | MessageDest
}
