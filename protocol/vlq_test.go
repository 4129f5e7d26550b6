package protocol

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVLQRoundTrip(t *testing.T) {
	values := []int32{
		0, 1, -1, 31, -32, 95, 96, -33,
		127, -127, 128, -128, 1000, -1000,
		65535, -65535, 1000000, -1000000,
		1<<31 - 1, -1 << 31,
	}
	for _, v := range values {
		out := NewScratchOutput()
		EncodeVLQInt(out, v)
		data := out.Result()
		assert.LessOrEqual(t, len(data), 5)

		got, err := DecodeVLQInt(&data)
		require.NoError(t, err, "value %d", v)
		assert.Equal(t, v, got)
		assert.Empty(t, data, "value %d left bytes", v)
	}
}

func TestVLQEncodingWidths(t *testing.T) {
	tests := []struct {
		v    int32
		want []byte
	}{
		{0, []byte{0x00}},
		{95, []byte{0x5F}},
		{-32, []byte{0x60}},
		{96, []byte{0x80, 0x60}},
		{1000, []byte{0x87, 0x68}},
	}
	for _, tc := range tests {
		out := NewScratchOutput()
		EncodeVLQInt(out, tc.v)
		assert.Equal(t, tc.want, out.Result(), "value %d", tc.v)
	}
}

func TestVLQUint(t *testing.T) {
	for _, v := range []uint32{0, 127, 128, 65535, 1 << 31, 0xFFFFFFFF} {
		out := NewScratchOutput()
		EncodeVLQUint(out, v)
		data := out.Result()
		got, err := DecodeVLQUint(&data)
		require.NoError(t, err)
		assert.Equal(t, v, got)
	}
}

func TestVLQDecodeErrors(t *testing.T) {
	var empty []byte
	_, err := DecodeVLQInt(&empty)
	assert.ErrorIs(t, err, ErrBufferTooSmall)

	truncated := []byte{0x87}
	_, err = DecodeVLQInt(&truncated)
	assert.ErrorIs(t, err, ErrBufferTooSmall)
	assert.Equal(t, []byte{0x87}, truncated, "failed decode must not consume")

	overlong := []byte{0x81, 0x81, 0x81, 0x81, 0x81, 0x01}
	_, err = DecodeVLQInt(&overlong)
	assert.ErrorIs(t, err, ErrInvalidVLQ)
}

func TestVLQBytesAndStrings(t *testing.T) {
	out := NewScratchOutput()
	EncodeVLQBytes(out, []byte{1, 2, 3})
	EncodeVLQString(out, "calibrate")
	EncodeVLQBytes(out, nil)
	data := out.Result()

	b, err := DecodeVLQBytes(&data)
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2, 3}, b)

	s, err := DecodeVLQString(&data)
	require.NoError(t, err)
	assert.Equal(t, "calibrate", s)

	b, err = DecodeVLQBytes(&data)
	require.NoError(t, err)
	assert.Empty(t, b)
	assert.Empty(t, data)

	short := []byte{5, 1, 2}
	_, err = DecodeVLQBytes(&short)
	assert.ErrorIs(t, err, ErrBufferTooSmall)
}
