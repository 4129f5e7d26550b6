package sim

import (
	"errors"
	"math"

	"fsrsense/core"
)

var (
	ErrBufferTooSmall = errors.New("sample buffer smaller than channel count")
	ErrBadChannel     = errors.New("invalid saadc channel")
	ErrNotInitialized = errors.New("saadc not initialized")
)

// saadcSampleTask is SAADC TASKS_SAMPLE.
const saadcSampleTask core.Endpoint = 0x40007004

// Default latencies of the modelled converter.
const (
	DefaultConversionMicros  = 40
	DefaultAbortMicros       = 2
	DefaultCalibrationMicros = 400
)

// SignalFunc returns the raw code of channel at time at (microseconds).
type SignalFunc func(channel int, at uint64) int16

// SineSignal returns a signal swinging around mid-scale of a 10-bit
// converter with the given amplitude and period, each channel shifted by a
// quarter period.
func SineSignal(amplitude float64, periodMicros uint64) SignalFunc {
	return func(channel int, at uint64) int16 {
		phase := 2*math.Pi*float64(at)/float64(periodMicros) + float64(channel)*math.Pi/2
		return int16(512 + amplitude*math.Sin(phase))
	}
}

// SAADCCalls counts driver calls.
type SAADCCalls struct {
	Init             int
	ConfigureChannel int
	BufferConvert    int
	Abort            int
	Calibrate        int
	CalibrateBusy    int
	ConvertBusy      int
}

type queuedBuffer struct {
	id  core.BufferID
	buf []int16
}

// SAADC models the nRF52 successive-approximation converter with EasyDMA
// double buffering as driven by the nrfx driver:
//
//   - up to two buffers are queued; the head is written on SAMPLE
//   - a SAMPLE with no buffer, during a conversion or during calibration
//     is ignored
//   - Abort drops every queued buffer and cancels a running calibration;
//     if the converter was active it raises one completion with no buffer
//     a little later
//   - after an abort the converter takes BusyPolls requests to stop:
//     calibration starts and new buffers are refused meanwhile
//   - offset calibration is refused while buffers are queued
type SAADC struct {
	clock   *Clock
	handler func(core.Event)
	cfg     core.SAADCConfig
	inputs  []core.ChannelConfig

	queue       []queuedBuffer
	converting  bool
	calibrating bool
	draining    int

	convEvent Event
	nullEvent Event
	calEvent  Event

	raw    []int16
	Signal SignalFunc

	// BusyPolls is how many calibration starts or buffer hand-overs are
	// refused after each abort.
	BusyPolls int
	// StuckBusy refuses every calibration start.
	StuckBusy bool

	ConversionMicros  uint64
	AbortMicros       uint64
	CalibrationMicros uint64

	// FailConvert and FailCalibrate inject driver errors.
	FailConvert   error
	FailCalibrate error

	calls        SAADCCalls
	ignored      uint32
	conversions  uint32
	calibrations uint32
}

// NewSAADC returns an uninitialised converter.
func NewSAADC(clock *Clock) *SAADC {
	a := &SAADC{
		clock:             clock,
		ConversionMicros:  DefaultConversionMicros,
		AbortMicros:       DefaultAbortMicros,
		CalibrationMicros: DefaultCalibrationMicros,
	}
	a.convEvent.Handler = func(*Event) Action { a.complete(); return Done }
	a.nullEvent.Handler = func(*Event) Action { a.emit(core.BufferFull(core.NoBuffer)); return Done }
	a.calEvent.Handler = func(*Event) Action { a.calibrated(); return Done }
	return a
}

// SetRaw fixes the code returned for channel when no Signal is set.
func (a *SAADC) SetRaw(channel int, raw int16) {
	for len(a.raw) <= channel {
		a.raw = append(a.raw, 0)
	}
	a.raw[channel] = raw
}

func (a *SAADC) Init(cfg core.SAADCConfig, handler func(core.Event)) error {
	a.calls.Init++
	switch cfg.Resolution {
	case core.Resolution8, core.Resolution10, core.Resolution12, core.Resolution14:
	default:
		return core.ErrInvalidConfig
	}
	a.cfg = cfg
	a.handler = handler
	return nil
}

func (a *SAADC) ConfigureChannel(index uint8, cfg core.ChannelConfig) error {
	a.calls.ConfigureChannel++
	if a.handler == nil {
		return ErrNotInitialized
	}
	if index >= 8 || cfg.Input == core.InputNC || cfg.Input > core.InputVDD {
		return ErrBadChannel
	}
	for len(a.inputs) <= int(index) {
		a.inputs = append(a.inputs, core.ChannelConfig{})
	}
	a.inputs[index] = cfg
	return nil
}

func (a *SAADC) BufferConvert(id core.BufferID, buf []int16) error {
	a.calls.BufferConvert++
	if a.FailConvert != nil {
		return a.FailConvert
	}
	if a.draining > 0 {
		a.draining--
		a.calls.ConvertBusy++
		return core.ErrHardwareBusy
	}
	if a.calibrating || len(a.queue) == 2 {
		return core.ErrHardwareBusy
	}
	if len(buf) < len(a.inputs) {
		return ErrBufferTooSmall
	}
	a.queue = append(a.queue, queuedBuffer{id: id, buf: buf})
	return nil
}

func (a *SAADC) SampleTask() core.Endpoint {
	return saadcSampleTask
}

func (a *SAADC) Abort() {
	a.calls.Abort++
	active := len(a.queue) > 0 || a.converting
	calibrating := a.calibrating
	a.clock.Cancel(&a.convEvent)
	a.converting = false
	a.queue = a.queue[:0]
	if calibrating {
		a.clock.Cancel(&a.calEvent)
		a.calibrating = false
	}
	if !active && !calibrating {
		return
	}
	a.draining = a.BusyPolls
	if active && !a.clock.Pending(&a.nullEvent) {
		a.nullEvent.At = a.clock.Now() + a.AbortMicros
		a.clock.Schedule(&a.nullEvent)
	}
}

func (a *SAADC) CalibrateOffset() error {
	a.calls.Calibrate++
	if a.FailCalibrate != nil {
		return a.FailCalibrate
	}
	if a.StuckBusy || a.draining > 0 {
		if a.draining > 0 {
			a.draining--
		}
		a.calls.CalibrateBusy++
		return core.ErrHardwareBusy
	}
	if a.clock.Pending(&a.nullEvent) {
		// the abort's END interrupt is taken before calibration starts
		a.clock.Cancel(&a.nullEvent)
		a.emit(core.BufferFull(core.NoBuffer))
	}
	if a.calibrating || len(a.queue) > 0 || a.converting {
		a.calls.CalibrateBusy++
		return core.ErrHardwareBusy
	}
	a.calibrating = true
	a.calEvent.At = a.clock.Now() + a.CalibrationMicros
	a.clock.Schedule(&a.calEvent)
	return nil
}

// Calls returns the driver call counters.
func (a *SAADC) Calls() SAADCCalls {
	return a.calls
}

// Queued returns the ids of the queued buffers, head first.
func (a *SAADC) Queued() []core.BufferID {
	ids := make([]core.BufferID, len(a.queue))
	for i, q := range a.queue {
		ids[i] = q.id
	}
	return ids
}

// Calibrating reports whether an offset calibration is running.
func (a *SAADC) Calibrating() bool {
	return a.calibrating
}

// Ignored counts SAMPLE triggers that did not start a conversion.
func (a *SAADC) Ignored() uint32 {
	return a.ignored
}

// Conversions counts completed scans.
func (a *SAADC) Conversions() uint32 {
	return a.conversions
}

// Calibrations counts completed offset calibrations.
func (a *SAADC) Calibrations() uint32 {
	return a.calibrations
}

// sample is the SAMPLE task.
func (a *SAADC) sample() {
	if a.calibrating || a.converting || len(a.queue) == 0 {
		a.ignored++
		return
	}
	a.converting = true
	a.convEvent.At = a.clock.Now() + a.ConversionMicros
	a.clock.Schedule(&a.convEvent)
}

func (a *SAADC) complete() {
	a.converting = false
	if len(a.queue) == 0 {
		return
	}
	head := a.queue[0]
	for i := range a.inputs {
		head.buf[i] = a.value(i)
	}
	a.queue = append(a.queue[:0], a.queue[1:]...)
	a.conversions++
	a.emit(core.BufferFull(head.id))
}

func (a *SAADC) calibrated() {
	a.calibrating = false
	a.calibrations++
	a.emit(core.CalibrationComplete())
}

func (a *SAADC) emit(ev core.Event) {
	if a.handler != nil {
		a.handler(ev)
	}
}

func (a *SAADC) value(channel int) int16 {
	var v int16
	switch {
	case a.Signal != nil:
		v = a.Signal(channel, a.clock.Now())
	case channel < len(a.raw):
		v = a.raw[channel]
	}
	full := int16(1)<<a.cfg.Resolution - 1
	if v > full {
		v = full
	}
	return v
}
