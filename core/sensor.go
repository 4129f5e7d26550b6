package core

import "errors"

// SensorState is the converter state machine state.
type SensorState uint8

const (
	// StateIdle: buffers armed, trigger not running.
	StateIdle SensorState = iota
	// StateSampling: trigger running, one buffer being written.
	StateSampling
	// StateCalibrationPending: converter aborted, waiting for Poll to
	// start the offset calibration.
	StateCalibrationPending
	// StateCalibrating: calibration requested from the converter.
	StateCalibrating
	// StateFaulted: unrecoverable error, sampling stopped for good.
	StateFaulted
)

func (s SensorState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateSampling:
		return "sampling"
	case StateCalibrationPending:
		return "calibration_pending"
	case StateCalibrating:
		return "calibrating"
	case StateFaulted:
		return "faulted"
	}
	return "unknown"
}

// ResultHandler receives one millivolt value per channel, in channel
// order, once per completed sample. It runs on the main loop and must not
// block. The slice is reused after Deliver returns.
type ResultHandler interface {
	Deliver(milliVolts []int16)
}

// ResultHandlerFunc adapts a function to ResultHandler.
type ResultHandlerFunc func(milliVolts []int16)

func (f ResultHandlerFunc) Deliver(milliVolts []int16) { f(milliVolts) }

// Stats counts what happened since init.
type Stats struct {
	Samples            uint32 // completed, non-aborted buffers
	Delivered          uint32 // results handed to the ResultHandler
	Overwritten        uint32 // results replaced before delivery
	Dropped            uint32 // results lost to a full deferred queue
	Spurious           uint32 // data-less completions after abort
	Calibrations       uint32 // completed offset calibrations
	CalibrationRejects uint32 // calibration starts refused as busy
	ArmRejects         uint32 // buffer hand-overs refused by Start
	PowerErrors        uint32
	Faults             uint32
}

// CalibrationState is the calibration bookkeeping.
type CalibrationState struct {
	SinceCalibration uint32
	Pending          bool
}

// Sensor runs periodic multi-channel sampling with ping-pong buffers,
// periodic offset calibration and deferred result delivery.
//
// Fields shared with interrupt context are only touched by the main loop
// with interrupts masked.
type Sensor struct {
	hw       Hardware
	cfg      Config
	handler  ResultHandler
	fault    FaultHandler
	scales   []Scale
	pool     *BufferPool
	timebase *Timebase
	queue    *DeferredQueue
	trace    TraceRing

	// shared with interrupt context
	state        SensorState
	results      []int16
	resultBuffer BufferID
	resultReady  bool
	calibration  CalibrationState
	stats        Stats
	faultErr     error

	// main loop only
	delivered []int16
}

// NewSensor configures the converter channels, the timebase and both
// sample buffers. Any failure is a *ConfigError and the device must not
// run. The sensor is left in StateIdle with both buffers armed.
func NewSensor(hw Hardware, cfg Config, handler ResultHandler) (*Sensor, error) {
	if handler == nil {
		return nil, configErr("handler", ErrNoHandler)
	}
	if hw.ADC == nil || hw.Timer == nil || hw.PPI == nil {
		return nil, configErr("hardware", ErrInvalidConfig)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	n := len(cfg.Channels)
	s := &Sensor{
		hw:           hw,
		cfg:          cfg,
		handler:      handler,
		fault:        cfg.Fault,
		scales:       make([]Scale, n),
		results:      make([]int16, n),
		delivered:    make([]int16, n),
		resultBuffer: NoBuffer,
		queue:        cfg.Queue,
	}
	if s.fault == nil {
		s.fault = defaultFaultHandler
	}
	s.trace.Enable(cfg.Trace)
	if cfg.Delivery == DeliveryQueue && s.queue == nil {
		s.queue = NewDeferredQueue(cfg.QueueCapacity)
	}
	for i, ch := range cfg.Channels {
		scale, err := NewScale(ch, cfg.ADC, cfg.Rounding)
		if err != nil {
			return nil, configErr("channel scale", err)
		}
		s.scales[i] = scale
	}

	if err := hw.ADC.Init(cfg.ADC, s.handleEvent); err != nil {
		return nil, configErr("saadc init", err)
	}
	for i, ch := range cfg.Channels {
		if err := hw.ADC.ConfigureChannel(uint8(i), ch); err != nil {
			return nil, configErr("saadc channel "+itoa(i), err)
		}
	}

	tb, err := NewTimebase(hw, cfg.Timebase, hw.ADC.SampleTask(), &s.trace)
	if err != nil {
		return nil, err
	}
	s.timebase = tb

	s.pool = NewBufferPool(n)
	if err := s.pool.ArmAll(hw.ADC); err != nil {
		return nil, configErr("buffer convert", err)
	}

	if cfg.CalibrateOnStart && cfg.CalibrationInterval > 0 {
		s.calibration.SinceCalibration = cfg.CalibrationInterval - 1
	}
	s.state = StateIdle
	return s, nil
}

// Start enables the hardware trigger and, when enabled, power gating.
// Starting a running sensor does nothing. A converter still finishing the
// abort of a previous Stop refuses the buffers for a moment; arming is
// retried up to armRetries times before the sensor faults.
func (s *Sensor) Start() error {
	for attempt := uint32(1); ; attempt++ {
		state := disableInterrupts()
		switch s.state {
		case StateFaulted:
			restoreInterrupts(state)
			return ErrFaulted
		case StateIdle:
		default:
			restoreInterrupts(state)
			return nil
		}
		err := s.pool.ArmAll(s.hw.ADC)
		if err == nil {
			s.state = StateSampling
			s.trace.Record(TraceStart, s.pool.Writing(), s.calibration.SinceCalibration, 0)
			restoreInterrupts(state)
			break
		}
		s.stats.ArmRejects++
		restoreInterrupts(state)
		if !errors.Is(err, ErrHardwareBusy) || attempt >= armRetries {
			s.fail("buffer convert", err)
			return err
		}
	}

	if err := s.timebase.Start(); err != nil {
		s.fail("timebase start", err)
		return err
	}
	return nil
}

// Stop disables the trigger, drops the sensor power and aborts the
// converter. When it returns no buffer will be written until Start. An
// undelivered result is still delivered by the next Poll. A calibration
// that was pending or running is cancelled and redone after the first
// sample following Start.
func (s *Sensor) Stop() error {
	err := s.timebase.Stop()
	s.hw.ADC.Abort()

	state := disableInterrupts()
	if s.state == StateFaulted {
		restoreInterrupts(state)
		return ErrFaulted
	}
	s.pool.Reclaim()
	if s.state == StateCalibrationPending || s.state == StateCalibrating {
		s.calibration.Pending = false
		s.calibration.SinceCalibration = s.cfg.CalibrationInterval - 1
	}
	s.state = StateIdle
	s.trace.Record(TraceStop, NoBuffer, s.calibration.SinceCalibration, 0)
	restoreInterrupts(state)
	return err
}

// Poll must be called regularly from the main loop. It delivers a pending
// result and starts a pending calibration.
func (s *Sensor) Poll() {
	if s.queue != nil {
		s.queue.Drain()
	}
	if s.cfg.Delivery == DeliveryFlag {
		s.deliver()
	}
	s.pollCalibration()
}

// State returns the current state.
func (s *Sensor) State() SensorState {
	state := disableInterrupts()
	defer restoreInterrupts(state)
	return s.state
}

// Stats returns a snapshot of the counters.
func (s *Sensor) Stats() Stats {
	state := disableInterrupts()
	defer restoreInterrupts(state)
	st := s.stats
	st.PowerErrors = s.timebase.PowerErrors()
	return st
}

// Calibration returns a snapshot of the calibration bookkeeping.
func (s *Sensor) Calibration() CalibrationState {
	state := disableInterrupts()
	defer restoreInterrupts(state)
	return s.calibration
}

// Results copies the latest result vector into dst and returns it.
func (s *Sensor) Results(dst []int16) []int16 {
	state := disableInterrupts()
	defer restoreInterrupts(state)
	return append(dst[:0], s.results...)
}

// Channels returns the number of channels.
func (s *Sensor) Channels() int {
	return len(s.results)
}

// Err returns the error that faulted the sensor, if any.
func (s *Sensor) Err() error {
	state := disableInterrupts()
	defer restoreInterrupts(state)
	return s.faultErr
}

// Buffers exposes the ping-pong pool for inspection.
func (s *Sensor) Buffers() *BufferPool {
	return s.pool
}

// Timebase exposes the trigger for inspection.
func (s *Sensor) Timebase() *Timebase {
	return s.timebase
}

// Queue returns the deferred queue, nil with DeliveryFlag and no shared
// queue.
func (s *Sensor) Queue() *DeferredQueue {
	return s.queue
}

// Trace returns the trace ring.
func (s *Sensor) Trace() *TraceRing {
	return &s.trace
}

// handleEvent is the converter interrupt handler.
func (s *Sensor) handleEvent(ev Event) {
	switch ev.Kind {
	case EventBufferFull:
		if ev.Spurious() {
			s.stats.Spurious++
			s.trace.Record(TraceSpurious, ev.Buffer, s.calibration.SinceCalibration, 0)
			return
		}
		s.onBufferFull(ev.Buffer)
	case EventCalibrationComplete:
		s.onCalibrationComplete()
	}
}

func (s *Sensor) onBufferFull(id BufferID) {
	if s.state == StateFaulted {
		return
	}
	filled, err := s.pool.Complete(id)
	if err != nil {
		s.fail("buffer complete", err)
		return
	}
	if err := s.timebase.PowerOff(); err != nil {
		s.fail("power off", err)
		return
	}
	raw, err := s.pool.Samples(filled)
	if err != nil {
		s.fail("buffer read", err)
		return
	}

	if s.resultReady {
		s.stats.Overwritten++
		s.trace.Record(TraceOverwrite, s.resultBuffer, s.calibration.SinceCalibration, 0)
	}
	for i := range s.results {
		s.results[i] = s.scales[i].MilliVolts(raw[i])
	}
	s.resultBuffer = id
	s.stats.Samples++
	s.calibration.SinceCalibration++
	s.trace.Record(TraceBufferFull, id, s.calibration.SinceCalibration, int32(s.results[0]))
	s.signal(id)

	if s.cfg.CalibrationInterval > 0 && s.calibration.SinceCalibration >= s.cfg.CalibrationInterval {
		// The converter cannot calibrate while busy: keep this buffer
		// out, abort the queued one and let Poll start calibration.
		if err := s.pool.Release(filled); err != nil {
			s.fail("buffer release", err)
			return
		}
		s.state = StateCalibrationPending
		s.calibration.Pending = true
		s.trace.Record(TraceAbort, id, s.calibration.SinceCalibration, 0)
		s.hw.ADC.Abort()
		s.pool.Reclaim()
		return
	}

	if err := s.pool.Rearm(s.hw.ADC, filled); err != nil {
		s.fail("buffer convert", err)
		return
	}
	s.trace.Record(TraceRearm, id, s.calibration.SinceCalibration, 0)
}

// signal hands a fresh result to the main loop. At most one result is
// pending: a newer one overwrites it in place without a second signal.
func (s *Sensor) signal(id BufferID) {
	if s.resultReady {
		return
	}
	s.resultReady = true
	if s.cfg.Delivery != DeliveryQueue {
		return
	}
	if err := s.queue.Post(BufferFull(id), s.deliverDeferred); err != nil {
		s.resultReady = false
		s.stats.Dropped++
		s.trace.Record(TraceQueueFull, id, s.calibration.SinceCalibration, 0)
	}
}

func (s *Sensor) onCalibrationComplete() {
	if s.state == StateFaulted {
		return
	}
	if s.hw.DelayMicros != nil {
		s.hw.DelayMicros(calibrationSettleMicros)
	}
	if err := s.pool.ArmAll(s.hw.ADC); err != nil {
		s.fail("buffer convert", err)
		return
	}
	s.calibration.SinceCalibration = 0
	s.calibration.Pending = false
	s.stats.Calibrations++
	s.trace.Record(TraceCalibrateDone, s.pool.Writing(), 0, 0)
	if s.timebase.Running() {
		s.state = StateSampling
	} else {
		s.state = StateIdle
	}
}

func (s *Sensor) deliverDeferred(Event) {
	s.deliver()
}

// deliver runs on the main loop.
func (s *Sensor) deliver() bool {
	state := disableInterrupts()
	if !s.resultReady {
		restoreInterrupts(state)
		return false
	}
	copy(s.delivered, s.results)
	s.resultReady = false
	s.stats.Delivered++
	s.trace.Record(TraceDeliver, s.resultBuffer, s.calibration.SinceCalibration, int32(s.results[0]))
	restoreInterrupts(state)

	s.handler.Deliver(s.delivered)
	return true
}

// pollCalibration starts a pending calibration. The converter refuses the
// request while the abort is still draining, so it is retried here rather
// than in the interrupt handler, up to CalibrationRetries times.
func (s *Sensor) pollCalibration() {
	state := disableInterrupts()
	if s.state != StateCalibrationPending {
		restoreInterrupts(state)
		return
	}
	s.state = StateCalibrating
	restoreInterrupts(state)

	for attempt := uint32(1); ; attempt++ {
		err := s.hw.ADC.CalibrateOffset()
		if err == nil {
			break
		}
		if !errors.Is(err, ErrHardwareBusy) {
			s.fail("calibrate", err)
			return
		}
		state = disableInterrupts()
		s.stats.CalibrationRejects++
		if attempt == 1 {
			s.trace.Record(TraceCalibrateBusy, NoBuffer, s.calibration.SinceCalibration, 0)
		}
		restoreInterrupts(state)
		if attempt >= s.cfg.CalibrationRetries {
			s.fail("calibrate", ErrCalibrationTimeout)
			return
		}
	}

	state = disableInterrupts()
	s.trace.Record(TraceCalibrateStart, NoBuffer, s.calibration.SinceCalibration, 0)
	restoreInterrupts(state)
}

// fail stops sampling for good and reports to the fault handler. There is
// no degraded mode: a dropped buffer would silently corrupt the stream.
func (s *Sensor) fail(reason string, err error) {
	state := disableInterrupts()
	if s.state == StateFaulted {
		restoreInterrupts(state)
		return
	}
	s.state = StateFaulted
	s.faultErr = err
	s.stats.Faults++
	s.trace.Record(TraceFault, NoBuffer, s.calibration.SinceCalibration, 0)
	restoreInterrupts(state)

	_ = s.timebase.Stop()
	s.hw.ADC.Abort()
	s.pool.Reclaim()
	DebugAsync("fsr fault: " + reason + ": " + err.Error())
	s.fault(reason, err)
}
