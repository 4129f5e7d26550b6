package core_test

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fsrsense/core"
	"fsrsense/protocol"
	"fsrsense/sim"
)

type sentMessage struct {
	id   uint16
	args []byte
}

type recordingResponder struct {
	sent []sentMessage
}

func (r *recordingResponder) SendCommand(cmdID uint16, args func(output protocol.OutputBuffer)) {
	out := protocol.NewScratchOutput()
	if args != nil {
		args(out)
	}
	r.sent = append(r.sent, sentMessage{id: cmdID, args: append([]byte(nil), out.Result()...)})
}

func (r *recordingResponder) byID(id uint16) []sentMessage {
	var out []sentMessage
	for _, m := range r.sent {
		if m.id == id {
			out = append(out, m)
		}
	}
	return out
}

func newLinkedSensor(t *testing.T) (*sim.Board, *core.Sensor, *core.Link, *recordingResponder) {
	t.Helper()
	b := sim.NewBoard()
	b.ADC.SetRaw(0, 512)
	b.ADC.SetRaw(1, 256)

	resp := &recordingResponder{}
	link := core.NewLink(resp)
	cfg := core.DefaultConfig()
	cfg.CalibrateOnStart = false
	cfg.Fault = link.Fault
	s, err := core.NewSensor(b.Hardware(), cfg, link)
	require.NoError(t, err)
	link.Attach(s)
	return b, s, link, resp
}

func dispatch(t *testing.T, link *core.Link, id uint16, args ...uint32) error {
	t.Helper()
	out := protocol.NewScratchOutput()
	for _, a := range args {
		protocol.EncodeVLQUint(out, a)
	}
	data := out.Result()
	return link.Dispatch(id, &data)
}

func TestLinkStreamsStateWhileSampling(t *testing.T) {
	b, s, link, resp := newLinkedSensor(t)
	loop := func() {
		s.Poll()
		link.Poll()
	}

	require.NoError(t, dispatch(t, link, protocol.MsgSampleBegin))
	assert.Equal(t, core.StateSampling, s.State())
	b.Run(2500*time.Millisecond, time.Millisecond, loop)

	states := resp.byID(protocol.MsgFSRState)
	require.Len(t, states, 2)
	for i, m := range states {
		args := m.args
		seq, err := protocol.DecodeVLQUint(&args)
		require.NoError(t, err)
		assert.Equal(t, uint32(i+1), seq)
		raw, err := protocol.DecodeVLQBytes(&args)
		require.NoError(t, err)
		values, err := protocol.DecodeNotification(raw)
		require.NoError(t, err)
		assert.Equal(t, []int16{1650, 825}, values)
	}

	require.NoError(t, dispatch(t, link, protocol.MsgSampleEnd))
	assert.Equal(t, core.StateIdle, s.State())
	b.Run(2*time.Second, time.Millisecond, loop)
	assert.Len(t, resp.byID(protocol.MsgFSRState), 2)
	assert.Equal(t, uint32(2), link.Sequence())
}

func TestLinkStatus(t *testing.T) {
	b, s, link, resp := newLinkedSensor(t)
	require.NoError(t, s.Start())
	b.Run(1500*time.Millisecond, time.Millisecond, s.Poll)

	require.NoError(t, dispatch(t, link, protocol.MsgGetStatus))
	status := resp.byID(protocol.MsgFSRStatus)
	require.Len(t, status, 1)

	args := status[0].args
	var fields []uint32
	for len(args) > 0 {
		v, err := protocol.DecodeVLQUint(&args)
		require.NoError(t, err)
		fields = append(fields, v)
	}
	assert.Equal(t, []uint32{uint32(core.StateSampling), 1, 0, 0, 0, 0}, fields)
}

func TestLinkReportsFaultOnce(t *testing.T) {
	b, s, link, resp := newLinkedSensor(t)
	require.NoError(t, s.Start())
	b.ADC.FailConvert = errors.New("dma")
	b.Run(1500*time.Millisecond, time.Millisecond, func() {
		s.Poll()
		link.Poll()
	})

	faults := resp.byID(protocol.MsgFSRFault)
	require.Len(t, faults, 1)
	args := faults[0].args
	reason, err := protocol.DecodeVLQString(&args)
	require.NoError(t, err)
	assert.Equal(t, "buffer convert: dma", reason)

	err = dispatch(t, link, protocol.MsgSampleBegin)
	assert.ErrorIs(t, err, core.ErrFaulted)
	assert.Len(t, resp.byID(protocol.MsgFSRFault), 2, "a refused start is reported")
}

func TestLinkIdentify(t *testing.T) {
	_, _, link, resp := newLinkedSensor(t)
	require.NoError(t, dispatch(t, link, protocol.MsgIdentify, 0, 200))

	replies := resp.byID(protocol.MsgIdentifyResponse)
	require.Len(t, replies, 1)
	args := replies[0].args
	offset, err := protocol.DecodeVLQUint(&args)
	require.NoError(t, err)
	assert.Zero(t, offset)
	chunk, err := protocol.DecodeVLQBytes(&args)
	require.NoError(t, err)
	assert.Len(t, chunk, 40)
	assert.True(t, strings.HasPrefix(link.Registry().Dictionary(), string(chunk)))
}

func TestLinkWithoutSensor(t *testing.T) {
	link := core.NewLink(&recordingResponder{})
	assert.ErrorIs(t, dispatch(t, link, protocol.MsgSampleBegin), core.ErrNoSensor)
	assert.ErrorIs(t, dispatch(t, link, protocol.MsgFSRState), core.ErrUnknownCommand)
}
