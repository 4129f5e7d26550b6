package protocol

import (
	"errors"
	"io"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errBadCommand = errors.New("bad command")

func TestTransportAcksAndDispatches(t *testing.T) {
	out := NewScratchOutput()
	var got []uint32
	tr := NewTransport(out, func(cmdID uint16, data *[]byte) error {
		v, err := DecodeVLQUint(data)
		got = append(got, uint32(cmdID)<<16|v)
		return err
	})

	payload := NewScratchOutput()
	EncodeVLQUint(payload, 3)
	EncodeVLQUint(payload, 500)
	EncodeVLQUint(payload, 4)
	EncodeVLQUint(payload, 7)
	frame, err := AppendFrame(nil, MessageDest, payload.Result())
	require.NoError(t, err)

	tr.Receive(NewSliceInputBuffer(frame))
	assert.Equal(t, []uint32{3<<16 | 500, 4<<16 | 7}, got)

	ack, err := AppendFrame(nil, 0x11, nil)
	require.NoError(t, err)
	assert.Equal(t, ack, out.Result())
}

func TestTransportNaksOutOfSequence(t *testing.T) {
	out := NewScratchOutput()
	calls := 0
	tr := NewTransport(out, func(uint16, *[]byte) error { calls++; return nil })

	frame, err := AppendFrame(nil, 0x15, []byte{2})
	require.NoError(t, err)
	tr.Receive(NewSliceInputBuffer(frame))

	assert.Equal(t, 0, calls)
	nak, err := AppendFrame(nil, MessageDest, nil)
	require.NoError(t, err)
	assert.Equal(t, nak, out.Result())
}

func TestTransportHostReset(t *testing.T) {
	out := NewScratchOutput()
	resets := 0
	tr := NewTransport(out, func(uint16, *[]byte) error { return nil })
	tr.SetResetCallback(func() { resets++ })

	for _, seq := range []uint8{0x10, 0x11, 0x10} {
		f, err := AppendFrame(nil, seq, []byte{2})
		require.NoError(t, err)
		tr.Receive(NewSliceInputBuffer(f))
	}
	assert.Equal(t, 1, resets)
}

func TestTransportHandlerErrorStopsFrame(t *testing.T) {
	out := NewScratchOutput()
	calls := 0
	tr := NewTransport(out, func(uint16, *[]byte) error {
		calls++
		return errBadCommand
	})
	f, err := AppendFrame(nil, MessageDest, []byte{2, 3})
	require.NoError(t, err)
	tr.Receive(NewSliceInputBuffer(f))

	assert.Equal(t, 1, calls)
	assert.Equal(t, uint32(1), tr.HandlerErrors())
	assert.True(t, tr.Synchronized())
}

func TestTransportEncodeFrame(t *testing.T) {
	out := NewScratchOutput()
	tr := NewTransport(out, nil)
	tr.SendCommand(MsgFSRState, func(o OutputBuffer) {
		EncodeVLQUint(o, 9)
		EncodeVLQBytes(o, EncodeNotification(nil, []int16{1650, 825}))
	})

	f, n, ok := NewScanner(true).Next(out.Result())
	require.True(t, ok)
	assert.Equal(t, len(out.Result()), n)

	args := f.Payload
	id, err := DecodeVLQUint(&args)
	require.NoError(t, err)
	assert.Equal(t, uint32(MsgFSRState), id)
	seq, err := DecodeVLQUint(&args)
	require.NoError(t, err)
	assert.Equal(t, uint32(9), seq)
	raw, err := DecodeVLQBytes(&args)
	require.NoError(t, err)
	values, err := DecodeNotification(raw)
	require.NoError(t, err)
	assert.Equal(t, []int16{1650, 825}, values)
}

// fakeDevice runs a Transport on one end of a pipe.
func fakeDevice(t *testing.T, conn net.Conn, handler func(tr *Transport, id uint16, data *[]byte) error) {
	t.Helper()
	out := NewScratchOutput()
	var tr *Transport
	tr = NewTransport(out, func(id uint16, data *[]byte) error {
		return handler(tr, id, data)
	})
	in := NewFifoBuffer(256)
	go func() {
		buf := make([]byte, 64)
		for {
			n, err := conn.Read(buf)
			if err != nil {
				return
			}
			in.Write(buf[:n])
			tr.Receive(in)
			if err := out.FlushTo(conn); err != nil {
				return
			}
		}
	}()
}

func TestHostTransportRoundTrip(t *testing.T) {
	hostEnd, devEnd := net.Pipe()
	defer devEnd.Close()

	fakeDevice(t, devEnd, func(tr *Transport, id uint16, data *[]byte) error {
		if id == MsgGetStatus {
			tr.SendCommand(MsgFSRStatus, func(o OutputBuffer) {
				EncodeVLQUint(o, 1)
				EncodeVLQUint(o, 42)
			})
		}
		return nil
	})

	host := NewHostTransport(hostEnd)
	defer host.Close()

	handled := make(chan uint16, 1)
	host.SetResponseHandler(func(msg *Message) { handled <- msg.ID })

	require.NoError(t, host.SendCommand(MsgGetStatus, nil))
	assert.Equal(t, uint8(0x11), host.Sequence())

	msg, err := host.ReceiveResponse(time.Second)
	require.NoError(t, err)
	assert.Equal(t, MsgFSRStatus, msg.ID)
	state, err := DecodeVLQUint(&msg.Args)
	require.NoError(t, err)
	assert.Equal(t, uint32(1), state)
	samples, err := DecodeVLQUint(&msg.Args)
	require.NoError(t, err)
	assert.Equal(t, uint32(42), samples)

	select {
	case id := <-handled:
		assert.Equal(t, MsgFSRStatus, id)
	case <-time.After(time.Second):
		t.Fatal("response handler not called")
	}
}

func TestHostTransportAckTimeout(t *testing.T) {
	hostEnd, devEnd := net.Pipe()
	defer devEnd.Close()
	go func() { _, _ = io.Copy(io.Discard, devEnd) }()

	host := NewHostTransport(hostEnd)
	defer host.Close()

	err := host.SendCommandWithTimeout(MsgSampleBegin, nil, 20*time.Millisecond)
	assert.ErrorIs(t, err, ErrAckTimeout)
	assert.Equal(t, uint8(MessageDest), host.Sequence())
}

func TestHostTransportClose(t *testing.T) {
	hostEnd, devEnd := net.Pipe()
	defer devEnd.Close()

	host := NewHostTransport(hostEnd)
	require.NoError(t, host.Close())
	select {
	case <-host.Done():
	case <-time.After(time.Second):
		t.Fatal("reader did not stop")
	}
	_, err := host.ReceiveResponse(time.Second)
	assert.ErrorIs(t, err, ErrTransportStopped)
}
