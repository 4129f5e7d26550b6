package core

import "fsrsense/protocol"

// identifyChunkMax keeps an identify_response inside one frame.
const identifyChunkMax = 40

// Responder sends one message to the host. protocol.Transport implements
// it.
type Responder interface {
	SendCommand(cmdID uint16, args func(output protocol.OutputBuffer))
}

// Link serves the serial host link for a sensor: it starts and stops
// sampling on request, streams every result as fsr_state and reports
// status and faults.
//
// Deliver and Poll run on the main loop. Fault may run in interrupt
// context and only records the fault; Poll sends it.
type Link struct {
	out      Responder
	registry *CommandRegistry
	sensor   *Sensor
	subs     *Subscriptions

	seq     uint32
	payload []byte

	faultPending bool
	faultReason  string
	faultSent    bool
}

// NewLink registers the link commands.
func NewLink(out Responder) *Link {
	l := &Link{
		out:      out,
		registry: NewCommandRegistry(),
		payload:  make([]byte, 0, 16),
	}
	handlers := map[uint16]CommandHandler{
		protocol.MsgIdentify:    l.handleIdentify,
		protocol.MsgSampleBegin: l.handleSampleBegin,
		protocol.MsgSampleEnd:   l.handleSampleEnd,
		protocol.MsgGetStatus:   l.handleGetStatus,
	}
	if err := l.registry.RegisterMessages(protocol.Messages, handlers); err != nil {
		// the message table is static
		panic(err)
	}
	return l
}

// Attach binds the sensor the commands act on. sample_begin and
// sample_end subscribe the serial host; other sources share the set
// returned by Subscriptions.
func (l *Link) Attach(s *Sensor) {
	l.sensor = s
	l.subs = NewSubscriptions(s)
}

// Subscriptions returns the subscriber set of the attached sensor, nil
// before Attach.
func (l *Link) Subscriptions() *Subscriptions {
	return l.subs
}

// Disconnect drops the serial host's subscription, as sample_end does.
// Used when the host goes away without ending.
func (l *Link) Disconnect() error {
	if l.subs == nil {
		return nil
	}
	return l.subs.Unsubscribe(SubscriberSerial)
}

// Registry returns the command registry.
func (l *Link) Registry() *CommandRegistry {
	return l.registry
}

// Dispatch is the protocol.CommandHandler for the device transport.
func (l *Link) Dispatch(cmdID uint16, data *[]byte) error {
	return l.registry.Dispatch(cmdID, data)
}

// Deliver sends one result vector as fsr_state.
func (l *Link) Deliver(milliVolts []int16) {
	l.seq++
	l.payload = protocol.EncodeNotification(l.payload[:0], milliVolts)
	seq := l.seq
	if IsDebugEnabled() {
		DebugPrintln("[FSR] #" + utoa(seq) + " " + formatMilliVolts(milliVolts))
	}
	l.out.SendCommand(protocol.MsgFSRState, func(o protocol.OutputBuffer) {
		protocol.EncodeVLQUint(o, seq)
		protocol.EncodeVLQBytes(o, l.payload)
	})
}

// Fault is a FaultHandler that leaves the firmware running with the
// sensor stopped and reports the fault on the next Poll.
func (l *Link) Fault(reason string, err error) {
	state := disableInterrupts()
	if !l.faultPending && !l.faultSent {
		l.faultPending = true
		l.faultReason = reason + ": " + err.Error()
	}
	restoreInterrupts(state)
}

// Poll sends a recorded fault once.
func (l *Link) Poll() {
	state := disableInterrupts()
	pending, reason := l.faultPending, l.faultReason
	l.faultPending = false
	if pending {
		l.faultSent = true
	}
	restoreInterrupts(state)

	if pending {
		l.sendFault(reason)
	}
}

// Sequence returns the number of fsr_state messages sent.
func (l *Link) Sequence() uint32 {
	return l.seq
}

// SendStatus reports the sensor state and counters.
func (l *Link) SendStatus() {
	if l.sensor == nil {
		return
	}
	st := l.sensor.Stats()
	state := l.sensor.State()
	l.out.SendCommand(protocol.MsgFSRStatus, func(o protocol.OutputBuffer) {
		protocol.EncodeVLQUint(o, uint32(state))
		protocol.EncodeVLQUint(o, st.Samples)
		protocol.EncodeVLQUint(o, st.Calibrations)
		protocol.EncodeVLQUint(o, st.Dropped)
		protocol.EncodeVLQUint(o, st.Overwritten)
		protocol.EncodeVLQUint(o, st.Spurious)
	})
}

func (l *Link) sendFault(reason string) {
	if len(reason) > identifyChunkMax {
		reason = reason[:identifyChunkMax]
	}
	l.out.SendCommand(protocol.MsgFSRFault, func(o protocol.OutputBuffer) {
		protocol.EncodeVLQString(o, reason)
	})
}

func (l *Link) handleIdentify(data *[]byte) error {
	offset, err := protocol.DecodeVLQUint(data)
	if err != nil {
		return err
	}
	count, err := protocol.DecodeVLQUint(data)
	if err != nil {
		return err
	}
	if count > identifyChunkMax {
		count = identifyChunkMax
	}
	chunk := l.registry.DictionaryChunk(offset, uint8(count))
	l.out.SendCommand(protocol.MsgIdentifyResponse, func(o protocol.OutputBuffer) {
		protocol.EncodeVLQUint(o, offset)
		protocol.EncodeVLQBytes(o, chunk)
	})
	return nil
}

func (l *Link) handleSampleBegin(data *[]byte) error {
	if l.sensor == nil {
		return ErrNoSensor
	}
	if err := l.subs.Subscribe(SubscriberSerial); err != nil {
		l.sendFault("sample_begin: " + err.Error())
		return err
	}
	DebugPrintln("[LINK] sampling started")
	return nil
}

func (l *Link) handleSampleEnd(data *[]byte) error {
	if l.sensor == nil {
		return ErrNoSensor
	}
	if err := l.subs.Unsubscribe(SubscriberSerial); err != nil {
		l.sendFault("sample_end: " + err.Error())
		return err
	}
	if l.subs.Active() == 0 {
		DebugPrintln("[LINK] sampling stopped")
	}
	return nil
}

func (l *Link) handleGetStatus(data *[]byte) error {
	l.SendStatus()
	return nil
}
