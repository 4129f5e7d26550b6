package protocol

import (
	"errors"
	"fmt"
	"io"
	"sync"
	"time"
)

var (
	ErrAckTimeout       = errors.New("ack timeout")
	ErrNak              = errors.New("frame rejected out of sequence")
	ErrTransportStopped = errors.New("transport stopped")
)

// DefaultAckTimeout bounds how long SendCommand waits for the device.
const DefaultAckTimeout = 2 * time.Second

// Message is one device-to-host message. Args is positioned after the ID.
type Message struct {
	ID       uint16
	Sequence uint8
	Args     []byte
}

// ResponseHandler is called from the read goroutine for every message.
type ResponseHandler func(msg *Message)

// HostTransport is the host end of the link. A background goroutine reads
// the port, routes ACKs to the pending SendCommand and queues messages for
// ReceiveResponse and the optional handler.
type HostTransport struct {
	port    io.ReadWriteCloser
	scanner *Scanner
	input   *FifoBuffer

	sendMu sync.Mutex
	seq    uint8

	handlerMu sync.RWMutex
	handler   ResponseHandler

	acks      chan uint8
	responses chan *Message

	stop      chan struct{}
	done      chan struct{}
	closeOnce sync.Once
}

// NewHostTransport starts reading port.
func NewHostTransport(port io.ReadWriteCloser) *HostTransport {
	t := &HostTransport{
		port:      port,
		scanner:   NewScanner(false),
		input:     NewFifoBuffer(4 * MessageLengthMax),
		seq:       MessageDest,
		acks:      make(chan uint8, 1),
		responses: make(chan *Message, 16),
		stop:      make(chan struct{}),
		done:      make(chan struct{}),
	}
	go t.readLoop()
	return t
}

// SendCommand sends one message and waits for its ACK.
func (t *HostTransport) SendCommand(cmdID uint16, args func(output OutputBuffer)) error {
	return t.SendCommandWithTimeout(cmdID, args, DefaultAckTimeout)
}

// SendCommandWithTimeout is SendCommand with a custom ACK timeout.
func (t *HostTransport) SendCommandWithTimeout(cmdID uint16, args func(output OutputBuffer), timeout time.Duration) error {
	t.sendMu.Lock()
	defer t.sendMu.Unlock()

	payload := NewScratchOutput()
	EncodeVLQUint(payload, uint32(cmdID))
	if args != nil {
		args(payload)
	}
	frame, err := AppendFrame(nil, t.seq, payload.Result())
	if err != nil {
		return fmt.Errorf("build command %d: %w", cmdID, err)
	}

	for len(t.acks) > 0 {
		<-t.acks
	}
	if _, err := t.port.Write(frame); err != nil {
		return fmt.Errorf("write command %d: %w", cmdID, err)
	}
	return t.waitForAck(timeout)
}

// waitForAck must be called with sendMu held.
func (t *HostTransport) waitForAck(timeout time.Duration) error {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case ack := <-t.acks:
		want := NextSequence(t.seq)
		if ack != want {
			// adopt the device's numbering so the next frame is accepted
			t.seq = ack
			return fmt.Errorf("%w: expected 0x%02x, got 0x%02x", ErrNak, want, ack)
		}
		t.seq = want
		return nil
	case <-timer.C:
		return fmt.Errorf("%w after %v", ErrAckTimeout, timeout)
	case <-t.stop:
		return ErrTransportStopped
	}
}

// ReceiveResponse returns the next queued message.
func (t *HostTransport) ReceiveResponse(timeout time.Duration) (*Message, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case msg := <-t.responses:
		return msg, nil
	case <-timer.C:
		return nil, fmt.Errorf("response timeout after %v", timeout)
	case <-t.stop:
		return nil, ErrTransportStopped
	}
}

// SetResponseHandler installs a callback for every received message.
func (t *HostTransport) SetResponseHandler(handler ResponseHandler) {
	t.handlerMu.Lock()
	t.handler = handler
	t.handlerMu.Unlock()
}

// Done is closed when the read goroutine exits.
func (t *HostTransport) Done() <-chan struct{} {
	return t.done
}

// Close stops the reader and closes the port.
func (t *HostTransport) Close() error {
	var err error
	t.closeOnce.Do(func() {
		close(t.stop)
		err = t.port.Close()
		<-t.done
	})
	return err
}

// Reset restarts sequence numbering and drops anything buffered.
func (t *HostTransport) Reset() {
	t.sendMu.Lock()
	t.seq = MessageDest
	t.sendMu.Unlock()
	for len(t.acks) > 0 {
		<-t.acks
	}
	for len(t.responses) > 0 {
		<-t.responses
	}
}

// Sequence returns the sequence the next command will carry.
func (t *HostTransport) Sequence() uint8 {
	t.sendMu.Lock()
	defer t.sendMu.Unlock()
	return t.seq
}

func (t *HostTransport) readLoop() {
	defer close(t.done)

	buf := make([]byte, 256)
	for {
		n, err := t.port.Read(buf)
		if n > 0 {
			t.receive(buf[:n])
		}
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrClosedPipe) {
				return
			}
			select {
			case <-t.stop:
				return
			case <-time.After(10 * time.Millisecond):
			}
			continue
		}
		select {
		case <-t.stop:
			return
		default:
		}
	}
}

func (t *HostTransport) receive(data []byte) {
	for len(data) > 0 {
		if t.input.Free() == 0 {
			// garbage filled the buffer without a frame in it
			t.input.Reset()
			t.scanner.lose()
		}
		n := t.input.Write(data)
		data = data[n:]

		for {
			f, used, ok := t.scanner.Next(t.input.Data())
			if ok {
				t.dispatch(f)
			}
			t.input.Pop(used)
			if !ok {
				break
			}
		}
	}
}

func (t *HostTransport) dispatch(f Frame) {
	if f.IsAck() {
		select {
		case t.acks <- f.Sequence:
		default:
		}
		return
	}

	args := append([]byte(nil), f.Payload...)
	id, err := DecodeVLQUint(&args)
	if err != nil {
		return
	}
	msg := &Message{ID: uint16(id), Sequence: f.Sequence, Args: args}

	t.handlerMu.RLock()
	handler := t.handler
	t.handlerMu.RUnlock()
	if handler != nil {
		cp := *msg
		cp.Args = append([]byte(nil), args...)
		handler(&cp)
	}

	select {
	case t.responses <- msg:
	default:
		// keep the newest
		select {
		case <-t.responses:
		default:
		}
		select {
		case t.responses <- msg:
		default:
		}
	}
}
