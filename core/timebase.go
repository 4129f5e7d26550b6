package core

// Compare channel roles. CC0 raises an interrupt that powers the sensor;
// CC1 clears the counter and fires the converter SAMPLE task over PPI.
const (
	PowerCompare  = CompareChannel0
	SampleCompare = CompareChannel1
)

// TimebaseConfig configures the sampling trigger.
type TimebaseConfig struct {
	SamplePeriodMs uint32

	// PeriodicPower gates the sensor supply: the power pin goes high
	// PowerLeadMs before each sample and low once the sample has landed.
	PeriodicPower bool
	PowerLeadMs   uint32
	PowerPin      GPIOPin
}

// Validate checks the period and lead.
func (c TimebaseConfig) Validate() error {
	if c.SamplePeriodMs == 0 {
		return ErrInvalidConfig
	}
	if c.PeriodicPower && (c.PowerLeadMs == 0 || c.PowerLeadMs >= c.SamplePeriodMs) {
		return ErrInvalidConfig
	}
	return nil
}

// Timebase drives sampling from a hardware timer. The sample instant is
// routed timer -> PPI -> SAMPLE task, so no software runs on that path;
// the only callback is the power-lead compare.
type Timebase struct {
	timer TimerDriver
	ppi   PPIDriver
	gpio  GPIODriver
	cfg   TimebaseConfig
	trace *TraceRing

	channel PPIChannel
	running bool
	powered bool

	powerErrors uint32
}

// NewTimebase programs the timer compares and the PPI connection to
// sampleTask. The timer is left stopped.
func NewTimebase(hw Hardware, cfg TimebaseConfig, sampleTask Endpoint, trace *TraceRing) (*Timebase, error) {
	if err := cfg.Validate(); err != nil {
		return nil, configErr("timebase", err)
	}
	tb := &Timebase{
		timer: hw.Timer,
		ppi:   hw.PPI,
		gpio:  hw.GPIO,
		cfg:   cfg,
		trace: trace,
	}

	if err := tb.timer.Init(tb.handleCompare); err != nil {
		return nil, configErr("timer init", err)
	}

	if cfg.PeriodicPower {
		if tb.gpio == nil {
			return nil, configErr("power pin", ErrInvalidConfig)
		}
		if err := tb.gpio.ConfigureOutput(cfg.PowerPin); err != nil {
			return nil, configErr("power pin", err)
		}
		lead := tb.timer.MsToTicks(cfg.SamplePeriodMs - cfg.PowerLeadMs)
		tb.timer.Compare(PowerCompare, lead, true)
	}

	period := tb.timer.MsToTicks(cfg.SamplePeriodMs)
	tb.timer.ExtendedCompare(SampleCompare, period, true, false)

	ch, err := tb.ppi.ChannelAlloc()
	if err != nil {
		return nil, configErr("ppi alloc", err)
	}
	if err := tb.ppi.ChannelAssign(ch, tb.timer.CompareEvent(SampleCompare), sampleTask); err != nil {
		return nil, configErr("ppi assign", err)
	}
	tb.channel = ch
	return tb, nil
}

// Start enables the counter and the PPI connection. Calling it while
// running does nothing.
func (tb *Timebase) Start() error {
	if tb.running {
		return nil
	}
	tb.timer.Enable()
	if err := tb.ppi.ChannelEnable(tb.channel); err != nil {
		tb.timer.Disable()
		return err
	}
	tb.running = true
	return nil
}

// Stop disables the counter and the PPI connection and always drops the
// power pin so stopping never leaves the sensor powered.
func (tb *Timebase) Stop() error {
	var err error
	if tb.running {
		tb.timer.Disable()
		err = tb.ppi.ChannelDisable(tb.channel)
		tb.running = false
	}
	if perr := tb.PowerOff(); err == nil {
		err = perr
	}
	return err
}

// Running reports whether the trigger is enabled.
func (tb *Timebase) Running() bool {
	return tb.running
}

// Powered reports the last level driven on the power pin.
func (tb *Timebase) Powered() bool {
	return tb.powered
}

// PowerErrors counts failed power-on writes from the compare interrupt.
func (tb *Timebase) PowerErrors() uint32 {
	return tb.powerErrors
}

// PowerOff deasserts the power pin. Called from the converter interrupt
// once the sample has been taken.
func (tb *Timebase) PowerOff() error {
	if !tb.cfg.PeriodicPower {
		return nil
	}
	if err := tb.gpio.SetPin(tb.cfg.PowerPin, false); err != nil {
		return err
	}
	if tb.powered {
		tb.trace.Record(TracePowerOff, NoBuffer, 0, 0)
	}
	tb.powered = false
	return nil
}

// handleCompare runs in timer interrupt context.
func (tb *Timebase) handleCompare(ch CompareChannel) {
	if ch != PowerCompare || !tb.cfg.PeriodicPower {
		return
	}
	if err := tb.gpio.SetPin(tb.cfg.PowerPin, true); err != nil {
		tb.powerErrors++
		return
	}
	tb.powered = true
	tb.trace.Record(TracePowerOn, NoBuffer, 0, 0)
}
