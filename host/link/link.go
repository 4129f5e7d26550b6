// Package link is the host side of the force sensor serial link: it
// starts and stops sampling, fetches the message dictionary and decodes
// the readings, status reports and faults the firmware sends.
package link

import (
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"sync"
	"time"

	"fsrsense/core"
	"fsrsense/host/serial"
	"fsrsense/protocol"
)

var (
	ErrNotConnected    = errors.New("not connected to sensor")
	ErrResponseTimeout = errors.New("response timeout")
)

// Reading is one fsr_state message.
type Reading struct {
	Seq        uint32
	MilliVolts []int16
	Received   time.Time
}

// Status is one fsr_status message.
type Status struct {
	State        core.SensorState
	Samples      uint32
	Calibrations uint32
	Dropped      uint32
	Overwritten  uint32
	Spurious     uint32
}

// Fault is one fsr_fault message.
type Fault struct {
	Reason   string
	Received time.Time
}

// Subscriber receives decoded messages. Methods run on the link's read
// goroutine and must not block.
type Subscriber interface {
	OnReading(Reading)
	OnStatus(Status)
	OnFault(Fault)
}

// Client talks to one sensor board.
type Client struct {
	transport *protocol.HostTransport
	timeout   time.Duration

	mu          sync.RWMutex
	subscribers []Subscriber
	lastSeq     uint32
	gaps        uint32
	decodeErrs  uint32

	identify chan identifyChunk
	status   chan Status
}

type identifyChunk struct {
	offset uint32
	data   []byte
}

// Connect opens the serial device and starts a client on it. A device
// of the form tcp://host:port dials a simulated board instead.
func Connect(cfg *serial.Config) (*Client, error) {
	if addr, ok := strings.CutPrefix(deviceOf(cfg), "tcp://"); ok {
		conn, err := net.DialTimeout("tcp", addr, 5*time.Second)
		if err != nil {
			return nil, fmt.Errorf("dial %s: %w", addr, err)
		}
		return NewClient(conn), nil
	}
	port, err := serial.Open(cfg)
	if err != nil {
		return nil, err
	}
	return NewClient(port), nil
}

// NewClient runs a client over an already open port. Close closes port.
func NewClient(port io.ReadWriteCloser) *Client {
	c := &Client{
		transport: protocol.NewHostTransport(port),
		timeout:   time.Second,
		identify:  make(chan identifyChunk, 1),
		status:    make(chan Status, 1),
	}
	c.transport.SetResponseHandler(c.handleMessage)
	return c
}

// SetTimeout sets how long Status and Identify wait for the answer.
func (c *Client) SetTimeout(d time.Duration) {
	c.timeout = d
}

// Subscribe adds a subscriber for every later message.
func (c *Client) Subscribe(s Subscriber) {
	c.mu.Lock()
	c.subscribers = append(c.subscribers, s)
	c.mu.Unlock()
}

// Begin starts sampling on the board.
func (c *Client) Begin() error {
	if err := c.transport.SendCommand(protocol.MsgSampleBegin, nil); err != nil {
		return fmt.Errorf("sample_begin: %w", err)
	}
	return nil
}

// End stops sampling on the board.
func (c *Client) End() error {
	if err := c.transport.SendCommand(protocol.MsgSampleEnd, nil); err != nil {
		return fmt.Errorf("sample_end: %w", err)
	}
	return nil
}

// Status asks the board for its state and counters.
func (c *Client) Status() (Status, error) {
	drain(c.status)
	if err := c.transport.SendCommand(protocol.MsgGetStatus, nil); err != nil {
		return Status{}, fmt.Errorf("get_status: %w", err)
	}
	select {
	case st := <-c.status:
		return st, nil
	case <-time.After(c.timeout):
		return Status{}, fmt.Errorf("get_status: %w after %v", ErrResponseTimeout, c.timeout)
	case <-c.transport.Done():
		return Status{}, ErrNotConnected
	}
}

// Identify fetches the message dictionary in chunks.
func (c *Client) Identify() (*Dictionary, error) {
	const chunkSize = 40
	const maxChunks = 256

	var raw []byte
	offset := uint32(0)
	for i := 0; i < maxChunks; i++ {
		chunk, err := c.identifyChunk(offset, chunkSize)
		if err != nil {
			return nil, fmt.Errorf("identify at offset %d: %w", offset, err)
		}
		raw = append(raw, chunk...)
		offset += uint32(len(chunk))
		if len(chunk) < chunkSize {
			break
		}
	}
	return ParseDictionary(string(raw))
}

func (c *Client) identifyChunk(offset uint32, count uint8) ([]byte, error) {
	drain(c.identify)
	err := c.transport.SendCommand(protocol.MsgIdentify, func(o protocol.OutputBuffer) {
		protocol.EncodeVLQUint(o, offset)
		protocol.EncodeVLQUint(o, uint32(count))
	})
	if err != nil {
		return nil, err
	}
	select {
	case chunk := <-c.identify:
		if chunk.offset != offset {
			return nil, fmt.Errorf("offset mismatch: expected %d, got %d", offset, chunk.offset)
		}
		return chunk.data, nil
	case <-time.After(c.timeout):
		return nil, fmt.Errorf("%w after %v", ErrResponseTimeout, c.timeout)
	case <-c.transport.Done():
		return nil, ErrNotConnected
	}
}

// Gaps counts fsr_state sequence numbers that never arrived.
func (c *Client) Gaps() uint32 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.gaps
}

// DecodeErrors counts messages that could not be decoded.
func (c *Client) DecodeErrors() uint32 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.decodeErrs
}

// Done is closed when the connection is gone.
func (c *Client) Done() <-chan struct{} {
	return c.transport.Done()
}

// Close stops the reader and closes the port.
func (c *Client) Close() error {
	return c.transport.Close()
}

func (c *Client) handleMessage(msg *protocol.Message) {
	args := msg.Args
	var err error
	switch msg.ID {
	case protocol.MsgFSRState:
		var r Reading
		if r, err = decodeReading(&args); err == nil {
			c.publishReading(r)
		}
	case protocol.MsgFSRStatus:
		var st Status
		if st, err = decodeStatus(&args); err == nil {
			offer(c.status, st)
			c.each(func(s Subscriber) { s.OnStatus(st) })
		}
	case protocol.MsgFSRFault:
		var reason string
		if reason, err = protocol.DecodeVLQString(&args); err == nil {
			f := Fault{Reason: reason, Received: time.Now()}
			c.each(func(s Subscriber) { s.OnFault(f) })
		}
	case protocol.MsgIdentifyResponse:
		var chunk identifyChunk
		if chunk.offset, err = protocol.DecodeVLQUint(&args); err == nil {
			if chunk.data, err = protocol.DecodeVLQBytes(&args); err == nil {
				chunk.data = append([]byte(nil), chunk.data...)
				offer(c.identify, chunk)
			}
		}
	}
	if err != nil {
		c.mu.Lock()
		c.decodeErrs++
		c.mu.Unlock()
	}
}

func (c *Client) publishReading(r Reading) {
	c.mu.Lock()
	if c.lastSeq != 0 && r.Seq > c.lastSeq+1 {
		c.gaps += r.Seq - c.lastSeq - 1
	}
	c.lastSeq = r.Seq
	c.mu.Unlock()
	c.each(func(s Subscriber) { s.OnReading(r) })
}

func (c *Client) each(fn func(Subscriber)) {
	c.mu.RLock()
	subs := c.subscribers
	c.mu.RUnlock()
	for _, s := range subs {
		fn(s)
	}
}

func decodeReading(args *[]byte) (Reading, error) {
	seq, err := protocol.DecodeVLQUint(args)
	if err != nil {
		return Reading{}, err
	}
	payload, err := protocol.DecodeVLQBytes(args)
	if err != nil {
		return Reading{}, err
	}
	values, err := protocol.DecodeNotification(payload)
	if err != nil {
		return Reading{}, err
	}
	return Reading{Seq: seq, MilliVolts: values, Received: time.Now()}, nil
}

func decodeStatus(args *[]byte) (Status, error) {
	var fields [6]uint32
	for i := range fields {
		v, err := protocol.DecodeVLQUint(args)
		if err != nil {
			return Status{}, err
		}
		fields[i] = v
	}
	return Status{
		State:        core.SensorState(fields[0]),
		Samples:      fields[1],
		Calibrations: fields[2],
		Dropped:      fields[3],
		Overwritten:  fields[4],
		Spurious:     fields[5],
	}, nil
}

// offer replaces whatever is buffered in ch with v.
func offer[T any](ch chan T, v T) {
	drain(ch)
	select {
	case ch <- v:
	default:
	}
}

func drain[T any](ch chan T) {
	for {
		select {
		case <-ch:
		default:
			return
		}
	}
}

func deviceOf(cfg *serial.Config) string {
	if cfg == nil {
		return ""
	}
	return cfg.Device
}
