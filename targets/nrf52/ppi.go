//go:build nrf52 || nrf52840

package main

import (
	"device/nrf"
	"errors"

	"fsrsense/core"
)

var (
	errNoPPIChannel  = errors.New("no free ppi channel")
	errBadPPIChannel = errors.New("ppi channel not allocated")
)

// ppiAppChannels is the number of channels the SoftDevice leaves to the
// application.
const ppiAppChannels = 14

// PPIDriver hands out application PPI channels.
type PPIDriver struct {
	allocated uint32
}

var ppi = &PPIDriver{}

func (p *PPIDriver) ChannelAlloc() (core.PPIChannel, error) {
	for ch := 0; ch < ppiAppChannels; ch++ {
		if p.allocated&(1<<ch) == 0 {
			p.allocated |= 1 << ch
			return core.PPIChannel(ch), nil
		}
	}
	return 0, errNoPPIChannel
}

func (p *PPIDriver) ChannelAssign(ch core.PPIChannel, event, task core.Endpoint) error {
	if !p.owned(ch) {
		return errBadPPIChannel
	}
	nrf.PPI.CH[ch].EEP.Set(uint32(event))
	nrf.PPI.CH[ch].TEP.Set(uint32(task))
	return nil
}

func (p *PPIDriver) ChannelEnable(ch core.PPIChannel) error {
	if !p.owned(ch) {
		return errBadPPIChannel
	}
	nrf.PPI.CHENSET.Set(1 << ch)
	return nil
}

func (p *PPIDriver) ChannelDisable(ch core.PPIChannel) error {
	if !p.owned(ch) {
		return errBadPPIChannel
	}
	nrf.PPI.CHENCLR.Set(1 << ch)
	return nil
}

func (p *PPIDriver) owned(ch core.PPIChannel) bool {
	return ch < ppiAppChannels && p.allocated&(1<<ch) != 0
}
