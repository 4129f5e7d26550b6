package sim

import (
	"errors"

	"fsrsense/core"
)

var (
	ErrNoPPIChannel  = errors.New("no free ppi channel")
	ErrBadPPIChannel = errors.New("ppi channel not allocated")
)

// PPIChannels is the number of programmable channels on the nRF52832.
const PPIChannels = 20

type ppiChannel struct {
	allocated bool
	enabled   bool
	event     core.Endpoint
	task      core.Endpoint
}

// PPI connects event endpoints to task endpoints. Peripherals publish
// their events through Signal and register their tasks with Task.
type PPI struct {
	channels [PPIChannels]ppiChannel
	tasks    map[core.Endpoint]func()
	fired    uint32
}

// NewPPI returns an interconnect with every channel free.
func NewPPI() *PPI {
	return &PPI{tasks: make(map[core.Endpoint]func())}
}

// Task registers the function a task endpoint triggers.
func (p *PPI) Task(task core.Endpoint, fn func()) {
	p.tasks[task] = fn
}

// Signal publishes an event; every enabled channel listening to it
// triggers its task.
func (p *PPI) Signal(event core.Endpoint) {
	for i := range p.channels {
		ch := &p.channels[i]
		if !ch.enabled || ch.event != event {
			continue
		}
		if fn := p.tasks[ch.task]; fn != nil {
			p.fired++
			fn()
		}
	}
}

// Fired counts tasks triggered through the interconnect.
func (p *PPI) Fired() uint32 {
	return p.fired
}

// Enabled reports whether ch is enabled.
func (p *PPI) Enabled(ch core.PPIChannel) bool {
	return int(ch) < PPIChannels && p.channels[ch].enabled
}

func (p *PPI) ChannelAlloc() (core.PPIChannel, error) {
	for i := range p.channels {
		if !p.channels[i].allocated {
			p.channels[i].allocated = true
			return core.PPIChannel(i), nil
		}
	}
	return 0, ErrNoPPIChannel
}

func (p *PPI) ChannelAssign(ch core.PPIChannel, event, task core.Endpoint) error {
	c, err := p.channel(ch)
	if err != nil {
		return err
	}
	c.event = event
	c.task = task
	return nil
}

func (p *PPI) ChannelEnable(ch core.PPIChannel) error {
	c, err := p.channel(ch)
	if err != nil {
		return err
	}
	c.enabled = true
	return nil
}

func (p *PPI) ChannelDisable(ch core.PPIChannel) error {
	c, err := p.channel(ch)
	if err != nil {
		return err
	}
	c.enabled = false
	return nil
}

func (p *PPI) channel(ch core.PPIChannel) (*ppiChannel, error) {
	if int(ch) >= PPIChannels || !p.channels[ch].allocated {
		return nil, ErrBadPPIChannel
	}
	return &p.channels[ch], nil
}
