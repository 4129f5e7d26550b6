package core

// Owner reports who may touch a sample buffer.
type Owner uint8

const (
	// OwnerSoftware: idle, free to arm.
	OwnerSoftware Owner = iota
	// OwnerConverter: queued or being written by the converter.
	OwnerConverter
	// OwnerReader: filled, handed to software through a FilledBuffer.
	OwnerReader
)

func (o Owner) String() string {
	switch o {
	case OwnerSoftware:
		return "software"
	case OwnerConverter:
		return "converter"
	case OwnerReader:
		return "reader"
	}
	return "unknown"
}

// FilledBuffer is the only way to read or re-arm a completed buffer. It is
// created from a completion event and is valid for exactly one Rearm or
// Release.
type FilledBuffer struct {
	id  BufferID
	gen uint32
}

// ID returns the buffer the handle refers to.
func (f FilledBuffer) ID() BufferID { return f.id }

// BufferPool holds the ping and pong buffers and tracks which side owns
// each. The converter consumes armed buffers in FIFO order, so the head of
// the converter queue is the one being written.
type BufferPool struct {
	data  [2][]int16
	owner [2]Owner
	gen   [2]uint32

	queue    [2]BufferID
	queueLen int
}

// NewBufferPool allocates both buffers with one slot per channel.
func NewBufferPool(channels int) *BufferPool {
	p := &BufferPool{}
	for i := range p.data {
		p.data[i] = make([]int16, channels)
	}
	return p
}

// Owner returns the current owner of id.
func (p *BufferPool) Owner(id BufferID) Owner {
	if !id.Valid() {
		return OwnerSoftware
	}
	return p.owner[id]
}

// Writing returns the buffer the converter is filling, or NoBuffer.
func (p *BufferPool) Writing() BufferID {
	if p.queueLen == 0 {
		return NoBuffer
	}
	return p.queue[0]
}

// Queued returns how many buffers the converter holds.
func (p *BufferPool) Queued() int {
	return p.queueLen
}

// Arm hands an idle buffer to the converter.
func (p *BufferPool) Arm(adc SAADCDriver, id BufferID) error {
	if !id.Valid() || p.owner[id] != OwnerSoftware {
		return ErrBufferOwnership
	}
	if err := adc.BufferConvert(id, p.data[id]); err != nil {
		return err
	}
	p.owner[id] = OwnerConverter
	p.queue[p.queueLen] = id
	p.queueLen++
	return nil
}

// ArmAll hands every idle buffer to the converter, ping first.
func (p *BufferPool) ArmAll(adc SAADCDriver) error {
	for _, id := range [...]BufferID{BufferPing, BufferPong} {
		if p.owner[id] != OwnerSoftware {
			continue
		}
		if err := p.Arm(adc, id); err != nil {
			return err
		}
	}
	return nil
}

// Complete takes a buffer back from the converter after its completion
// event. id must be the buffer being written.
func (p *BufferPool) Complete(id BufferID) (FilledBuffer, error) {
	if !id.Valid() || p.queueLen == 0 || p.queue[0] != id {
		return FilledBuffer{}, ErrBufferOwnership
	}
	p.queue[0] = p.queue[1]
	p.queueLen--
	p.owner[id] = OwnerReader
	p.gen[id]++
	return FilledBuffer{id: id, gen: p.gen[id]}, nil
}

// Samples returns the raw codes held by f.
func (p *BufferPool) Samples(f FilledBuffer) ([]int16, error) {
	if err := p.check(f); err != nil {
		return nil, err
	}
	return p.data[f.id], nil
}

// Rearm gives a filled buffer back to the converter, consuming f.
func (p *BufferPool) Rearm(adc SAADCDriver, f FilledBuffer) error {
	if err := p.check(f); err != nil {
		return err
	}
	p.owner[f.id] = OwnerSoftware
	p.gen[f.id]++
	return p.Arm(adc, f.id)
}

// Release returns a filled buffer to idle without re-arming, consuming f.
func (p *BufferPool) Release(f FilledBuffer) error {
	if err := p.check(f); err != nil {
		return err
	}
	p.owner[f.id] = OwnerSoftware
	p.gen[f.id]++
	return nil
}

// Reclaim marks every buffer idle. Call only after the converter has been
// aborted, when it no longer writes to any of them.
func (p *BufferPool) Reclaim() {
	for i := range p.owner {
		if p.owner[i] != OwnerSoftware {
			p.gen[i]++
		}
		p.owner[i] = OwnerSoftware
	}
	p.queueLen = 0
}

func (p *BufferPool) check(f FilledBuffer) error {
	if !f.id.Valid() || p.owner[f.id] != OwnerReader || p.gen[f.id] != f.gen {
		return ErrBufferOwnership
	}
	return nil
}
