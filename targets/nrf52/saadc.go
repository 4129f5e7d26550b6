//go:build nrf52 || nrf52840

package main

import (
	"device/nrf"
	"runtime/interrupt"
	"unsafe"

	"fsrsense/core"
)

// SAADC register layout (nRF52832 product specification, SAADC chapter).
// The core enums use the register encodings directly.
const (
	saadcConfigGainPos   = 8
	saadcConfigRefselPos = 12
	saadcConfigTacqPos   = 16
	saadcConfigModePos   = 20

	saadcIntStarted       = 1 << 0
	saadcIntEnd           = 1 << 1
	saadcIntCalibrateDone = 1 << 4
	saadcIntStopped       = 1 << 5

	saadcChannels = 8

	// saadcStopTimeout bounds the STOPPED poll in Abort, in register reads.
	saadcStopTimeout = 10000
)

type saadcBuffer struct {
	id  core.BufferID
	buf []int16
}

// SAADCDriver drives the converter in scan mode with EasyDMA double
// buffering: the next RESULT.PTR is loaded on STARTED so the following
// SAMPLE task writes straight into it.
type SAADCDriver struct {
	handler func(core.Event)

	primary     saadcBuffer
	secondary   saadcBuffer
	active      bool // primary is owned by the converter
	queued      bool // secondary is waiting for STARTED
	latched     bool // secondary PTR already loaded
	aborting    bool
	calibrating bool

	channels uint8
}

var saadc = &SAADCDriver{}

func resolutionValue(r core.Resolution) (uint32, bool) {
	switch r {
	case core.Resolution8:
		return 0, true
	case core.Resolution10:
		return 1, true
	case core.Resolution12:
		return 2, true
	case core.Resolution14:
		return 3, true
	}
	return 0, false
}

func (d *SAADCDriver) Init(cfg core.SAADCConfig, handler func(core.Event)) error {
	res, ok := resolutionValue(cfg.Resolution)
	if !ok {
		return core.ErrInvalidConfig
	}
	d.handler = handler

	nrf.SAADC.ENABLE.Set(0)
	for i := 0; i < saadcChannels; i++ {
		nrf.SAADC.CH[i].PSELP.Set(0)
		nrf.SAADC.CH[i].PSELN.Set(0)
	}
	nrf.SAADC.RESOLUTION.Set(res)
	nrf.SAADC.OVERSAMPLE.Set(0)
	nrf.SAADC.SAMPLERATE.Set(0) // SAMPLE task driven
	nrf.SAADC.INTENCLR.Set(0xFFFFFFFF)
	nrf.SAADC.INTENSET.Set(saadcIntStarted | saadcIntEnd | saadcIntCalibrateDone | saadcIntStopped)

	intr := interrupt.New(nrf.IRQ_SAADC, saadcIRQ)
	intr.SetPriority(0x60)
	intr.Enable()

	nrf.SAADC.ENABLE.Set(1)
	return nil
}

func (d *SAADCDriver) ConfigureChannel(index uint8, cfg core.ChannelConfig) error {
	if index >= saadcChannels || cfg.Input == core.InputNC {
		return core.ErrInvalidConfig
	}
	ch := &nrf.SAADC.CH[index]
	ch.CONFIG.Set(uint32(cfg.Gain)<<saadcConfigGainPos |
		uint32(cfg.Reference)<<saadcConfigRefselPos |
		uint32(cfg.AcqTime)<<saadcConfigTacqPos |
		uint32(cfg.Mode)<<saadcConfigModePos)
	ch.PSELN.Set(0)
	ch.PSELP.Set(uint32(cfg.Input))
	if index+1 > d.channels {
		d.channels = index + 1
	}
	return nil
}

// BufferConvert queues buf. The first buffer starts the converter; the
// second is loaded into RESULT.PTR once the first has been latched.
func (d *SAADCDriver) BufferConvert(id core.BufferID, buf []int16) error {
	if len(buf) < int(d.channels) {
		return core.ErrInvalidConfig
	}
	state := interrupt.Disable()
	defer interrupt.Restore(state)

	if d.calibrating || d.aborting {
		return core.ErrHardwareBusy
	}
	switch {
	case !d.active:
		d.primary = saadcBuffer{id, buf}
		d.active = true
		d.load(buf)
		nrf.SAADC.TASKS_START.Set(1)
	case !d.queued:
		d.secondary = saadcBuffer{id, buf}
		d.queued = true
		d.latched = false
	default:
		return core.ErrHardwareBusy
	}
	return nil
}

func (d *SAADCDriver) SampleTask() core.Endpoint {
	return core.Endpoint(uintptr(unsafe.Pointer(&nrf.SAADC.TASKS_SAMPLE)))
}

// Abort stops the scan or a running offset calibration and drops both
// buffers. It waits for STOPPED, so EasyDMA writes nothing once it
// returns. STOP makes the converter raise END once more; that END carries
// no buffer and is left for the interrupt handler. A calibration stopped
// here never reports CALIBRATEDONE.
func (d *SAADCDriver) Abort() {
	state := interrupt.Disable()
	defer interrupt.Restore(state)

	busy := d.active || d.calibrating || d.aborting
	d.active, d.queued, d.latched = false, false, false
	d.primary, d.secondary = saadcBuffer{}, saadcBuffer{}
	if !busy {
		return
	}

	d.aborting = true
	nrf.SAADC.EVENTS_STOPPED.Set(0)
	nrf.SAADC.TASKS_STOP.Set(1)
	for i := 0; i < saadcStopTimeout; i++ {
		if nrf.SAADC.EVENTS_STOPPED.Get() != 0 {
			nrf.SAADC.EVENTS_STOPPED.Set(0)
			d.aborting = false
			break
		}
	}
	if d.calibrating {
		nrf.SAADC.EVENTS_CALIBRATEDONE.Set(0)
		d.calibrating = false
	}
	// on timeout aborting stays set and the STOPPED interrupt clears it;
	// until then BufferConvert and CalibrateOffset report busy
}

func (d *SAADCDriver) CalibrateOffset() error {
	state := interrupt.Disable()
	defer interrupt.Restore(state)

	if d.aborting || d.active || d.calibrating {
		return core.ErrHardwareBusy
	}
	d.calibrating = true
	nrf.SAADC.TASKS_CALIBRATEOFFSET.Set(1)
	return nil
}

func (d *SAADCDriver) load(buf []int16) {
	nrf.SAADC.RESULT.PTR.Set(uint32(uintptr(unsafe.Pointer(&buf[0]))))
	nrf.SAADC.RESULT.MAXCNT.Set(uint32(d.channels))
}

func saadcIRQ(interrupt.Interrupt) {
	saadc.handleIRQ()
}

func (d *SAADCDriver) handleIRQ() {
	if nrf.SAADC.EVENTS_STARTED.Get() != 0 {
		nrf.SAADC.EVENTS_STARTED.Set(0)
		if d.queued && !d.latched {
			d.load(d.secondary.buf)
			d.latched = true
		}
	}

	if nrf.SAADC.EVENTS_END.Get() != 0 {
		nrf.SAADC.EVENTS_END.Set(0)
		if !d.active {
			// END raised by STOP
			d.handler(core.BufferFull(core.NoBuffer))
		} else {
			done := d.primary
			if d.queued {
				d.primary = d.secondary
				d.queued = false
				if !d.latched {
					d.load(d.primary.buf)
				}
				d.latched = false
				nrf.SAADC.TASKS_START.Set(1)
			} else {
				d.primary = saadcBuffer{}
				d.active = false
			}
			d.handler(core.BufferFull(done.id))
		}
	}

	if nrf.SAADC.EVENTS_STOPPED.Get() != 0 {
		nrf.SAADC.EVENTS_STOPPED.Set(0)
		d.aborting = false
	}

	if nrf.SAADC.EVENTS_CALIBRATEDONE.Get() != 0 {
		nrf.SAADC.EVENTS_CALIBRATEDONE.Set(0)
		d.calibrating = false
		d.handler(core.CalibrationComplete())
	}
}
