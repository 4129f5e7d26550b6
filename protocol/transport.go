package protocol

// CommandHandler decodes and runs one message. data is positioned after
// the message ID and must be advanced past the message's arguments.
type CommandHandler func(cmdID uint16, data *[]byte) error

// Transport is the device end of the link: it validates incoming frames,
// enforces the host's sequence numbering, ACKs every frame and dispatches
// the messages of in-sequence frames.
type Transport struct {
	scanner *Scanner
	nextSeq uint8
	output  OutputBuffer
	handler CommandHandler

	resetCallback func()
	flushCallback func()

	handlerErrors uint32
}

// NewTransport returns a transport writing ACKs and responses to output.
func NewTransport(output OutputBuffer, handler CommandHandler) *Transport {
	t := &Transport{
		scanner: NewScanner(true),
		nextSeq: MessageDest,
		output:  output,
		handler: handler,
	}
	t.scanner.OnResync = t.encodeAckNak
	return t
}

// Receive consumes every complete frame in input.
func (t *Transport) Receive(input InputBuffer) {
	for {
		f, n, ok := t.scanner.Next(input.Data())
		if ok {
			t.receiveFrame(f)
		}
		input.Pop(n)
		if !ok {
			return
		}
	}
}

func (t *Transport) receiveFrame(f Frame) {
	if f.Sequence == MessageDest && t.nextSeq != MessageDest {
		// host restarted its numbering
		t.nextSeq = MessageDest
		if t.resetCallback != nil {
			t.resetCallback()
		}
	}
	if f.Sequence == t.nextSeq {
		t.nextSeq = NextSequence(f.Sequence)
		t.dispatch(f.Payload)
	}
	// an out-of-sequence frame is NAKed with the expected sequence
	t.encodeAckNak()
}

func (t *Transport) dispatch(payload []byte) {
	defer func() {
		if r := recover(); r != nil {
			t.handlerErrors++
			t.scanner.lose()
		}
	}()
	for len(payload) > 0 {
		id, err := DecodeVLQUint(&payload)
		if err != nil {
			t.scanner.lose()
			return
		}
		if t.handler == nil {
			return
		}
		if err := t.handler(uint16(id), &payload); err != nil {
			t.handlerErrors++
			return
		}
	}
}

func (t *Transport) encodeAckNak() {
	ack, _ := AppendFrame(make([]byte, 0, MessageLengthMin), t.nextSeq, nil)
	t.output.Output(ack)
	if t.flushCallback != nil {
		t.flushCallback()
	}
}

// EncodeFrame writes one frame whose payload is produced by body. ACKs and
// responses both carry the next expected host sequence.
func (t *Transport) EncodeFrame(body func(output OutputBuffer)) {
	start := t.output.CurPosition()
	t.output.Output([]byte{0, t.nextSeq})
	body(t.output)
	n := len(t.output.DataSince(start)) + MessageTrailerSize
	t.output.Update(start+MessagePositionLen, uint8(n))
	crc := CRC16(t.output.DataSince(start))
	t.output.Output([]byte{byte(crc >> 8), byte(crc), MessageValueSync})
}

// SendCommand writes one message in its own frame.
func (t *Transport) SendCommand(cmdID uint16, args func(output OutputBuffer)) {
	t.EncodeFrame(func(output OutputBuffer) {
		EncodeVLQUint(output, uint32(cmdID))
		if args != nil {
			args(output)
		}
	})
}

// Reset forgets the host sequence, typically after the link was
// reconnected.
func (t *Transport) Reset() {
	t.scanner.Reset()
	t.nextSeq = MessageDest
	if t.resetCallback != nil {
		t.resetCallback()
	}
}

// HandlerErrors counts messages whose handler failed.
func (t *Transport) HandlerErrors() uint32 { return t.handlerErrors }

// Synchronized reports whether the receive side is in sync.
func (t *Transport) Synchronized() bool { return t.scanner.Synchronized() }

// SetResetCallback registers a function run when the host restarts.
func (t *Transport) SetResetCallback(callback func()) {
	t.resetCallback = callback
}

// SetFlushCallback registers a function that pushes ACKs out at once.
func (t *Transport) SetFlushCallback(callback func()) {
	t.flushCallback = callback
}
