package core

// Delivery selects how a completed result reaches the main loop.
type Delivery uint8

const (
	// DeliveryFlag sets a result-ready flag that Poll checks.
	DeliveryFlag Delivery = iota
	// DeliveryQueue posts an entry on a DeferredQueue that Poll drains.
	DeliveryQueue
)

// Defaults for the two-sensor insole board.
const (
	DefaultSamplePeriodMs      = 1000
	DefaultPowerLeadMs         = 5
	DefaultCalibrationInterval = 100
	DefaultCalibrationRetries  = 10000
	DefaultSupplyMilliVolts    = 3300
	DefaultPowerPin            = GPIOPin(17)

	// armRetries bounds how often Start offers the buffers to a converter
	// that is still stopping.
	armRetries = 10000

	// calibrationSettleMicros is waited after CALIBRATEDONE before the
	// buffers are handed back to the converter.
	calibrationSettleMicros = 5
)

// Config holds everything fixed at init. It is not reconfigurable while
// the sensor runs.
type Config struct {
	Channels []ChannelConfig
	ADC      SAADCConfig
	Timebase TimebaseConfig

	// CalibrationInterval is the number of completed samples between
	// offset calibrations. Zero disables calibration.
	CalibrationInterval uint32
	// CalibrateOnStart calibrates after the first sample instead of
	// waiting a full interval.
	CalibrateOnStart bool
	// CalibrationRetries bounds how often a rejected calibration start is
	// retried before the sensor faults.
	CalibrationRetries uint32

	Rounding Rounding
	Delivery Delivery

	// QueueCapacity sizes the queue created for DeliveryQueue when Queue
	// is nil.
	QueueCapacity int
	// Queue lets the application share its deferred queue with the
	// sensor. Poll drains it.
	Queue *DeferredQueue

	// Trace records sampling events in the sensor's TraceRing.
	Trace bool

	// Fault is called on unrecoverable steady-state errors. Defaults to a
	// panic.
	Fault FaultHandler
}

// DefaultConfig returns the two-channel force sensor setup: AIN5 and AIN7,
// gain 1/4, VDD/4 reference, 10-bit single-ended, sampled once a second
// with the sensor powered 5 ms ahead of each sample.
func DefaultConfig() Config {
	ch := ChannelConfig{
		Input:     InputAIN5,
		Gain:      Gain1_4,
		Reference: RefVDD4,
		AcqTime:   AcqTime10us,
		Mode:      ModeSingleEnded,
	}
	ch2 := ch
	ch2.Input = InputAIN7
	return Config{
		Channels: []ChannelConfig{ch, ch2},
		ADC: SAADCConfig{
			Resolution:       Resolution10,
			SupplyMilliVolts: DefaultSupplyMilliVolts,
		},
		Timebase: TimebaseConfig{
			SamplePeriodMs: DefaultSamplePeriodMs,
			PeriodicPower:  true,
			PowerLeadMs:    DefaultPowerLeadMs,
			PowerPin:       DefaultPowerPin,
		},
		CalibrationInterval: DefaultCalibrationInterval,
		CalibrateOnStart:    true,
		CalibrationRetries:  DefaultCalibrationRetries,
		Rounding:            RoundTruncate,
		Delivery:            DeliveryFlag,
		QueueCapacity:       DefaultQueueCapacity,
	}
}

// Validate checks the configuration without touching hardware.
func (c Config) Validate() error {
	if len(c.Channels) == 0 || len(c.Channels) > 8 {
		return configErr("channels", ErrInvalidConfig)
	}
	if err := c.Timebase.Validate(); err != nil {
		return configErr("timebase", err)
	}
	if c.CalibrationInterval > 0 && c.CalibrationRetries == 0 {
		return configErr("calibration retries", ErrInvalidConfig)
	}
	if c.Delivery != DeliveryFlag && c.Delivery != DeliveryQueue {
		return configErr("delivery", ErrInvalidConfig)
	}
	for _, ch := range c.Channels {
		if ch.Mode != ModeSingleEnded {
			return configErr("channel mode", ErrInvalidConfig)
		}
		if _, err := NewScale(ch, c.ADC, c.Rounding); err != nil {
			return configErr("channel scale", err)
		}
	}
	return nil
}
