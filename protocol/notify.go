package protocol

import (
	"encoding/binary"
	"errors"
)

// ErrNotificationLength is returned for a payload that is not a whole
// number of int16 values.
var ErrNotificationLength = errors.New("notification payload length is odd")

// NotificationSize returns the payload size for n channels.
func NotificationSize(n int) int { return 2 * n }

// EncodeNotification appends values as packed little-endian int16, the
// layout sent in the wireless notification and in fsr_state.
func EncodeNotification(dst []byte, values []int16) []byte {
	for _, v := range values {
		dst = binary.LittleEndian.AppendUint16(dst, uint16(v))
	}
	return dst
}

// DecodeNotification parses a payload written by EncodeNotification.
func DecodeNotification(payload []byte) ([]int16, error) {
	if len(payload)%2 != 0 {
		return nil, ErrNotificationLength
	}
	values := make([]int16, len(payload)/2)
	for i := range values {
		values[i] = int16(binary.LittleEndian.Uint16(payload[2*i:]))
	}
	return values, nil
}
