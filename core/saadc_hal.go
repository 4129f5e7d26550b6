package core

// Endpoint is the address of a hardware event or task register. A PPI
// channel connects an event endpoint to a task endpoint so the task fires
// without CPU involvement.
type Endpoint uint32

// AnalogInput selects the positive input of a converter channel.
type AnalogInput uint8

// Analog inputs as numbered by the nRF52 SAADC PSELP register.
const (
	InputNC AnalogInput = iota
	InputAIN0
	InputAIN1
	InputAIN2
	InputAIN3
	InputAIN4
	InputAIN5
	InputAIN6
	InputAIN7
	InputVDD
)

// Gain is the channel gain applied before conversion.
type Gain uint8

const (
	Gain1_6 Gain = iota
	Gain1_5
	Gain1_4
	Gain1_3
	Gain1_2
	Gain1
	Gain2
	Gain4
)

// Ratio returns the gain as numerator/denominator.
func (g Gain) Ratio() (num, den uint32) {
	switch g {
	case Gain1_6:
		return 1, 6
	case Gain1_5:
		return 1, 5
	case Gain1_4:
		return 1, 4
	case Gain1_3:
		return 1, 3
	case Gain1_2:
		return 1, 2
	case Gain1:
		return 1, 1
	case Gain2:
		return 2, 1
	case Gain4:
		return 4, 1
	}
	return 0, 0
}

// Reference selects the converter reference voltage.
type Reference uint8

const (
	// RefInternal is the 0.6 V internal reference.
	RefInternal Reference = iota
	// RefVDD4 is a quarter of the supply voltage.
	RefVDD4
)

// AcqTime is the channel acquisition (sample-and-hold) time.
type AcqTime uint8

const (
	AcqTime3us AcqTime = iota
	AcqTime5us
	AcqTime10us
	AcqTime15us
	AcqTime20us
	AcqTime40us
)

// Mode selects single-ended or differential conversion.
type Mode uint8

const (
	ModeSingleEnded Mode = iota
	ModeDifferential
)

// Resolution is the conversion width in bits.
type Resolution uint8

const (
	Resolution8  Resolution = 8
	Resolution10 Resolution = 10
	Resolution12 Resolution = 12
	Resolution14 Resolution = 14
)

// ChannelConfig describes one analog input. It is fixed after init;
// calibration only trims the converter offset.
type ChannelConfig struct {
	Input     AnalogInput
	Gain      Gain
	Reference Reference
	AcqTime   AcqTime
	Mode      Mode
}

// SAADCConfig is the peripheral-wide converter configuration.
type SAADCConfig struct {
	Resolution Resolution
	// SupplyMilliVolts is VDD, needed to resolve RefVDD4.
	SupplyMilliVolts uint32
}

// SAADCDriver is the abstract converter interface that core code uses.
//
// The driver owns up to two queued buffers at a time: the first is being
// written by the converter, the second becomes active as soon as the first
// fills. Completion is reported through the handler passed to Init, from
// interrupt context.
type SAADCDriver interface {
	// Init powers up the converter and registers the event handler.
	Init(cfg SAADCConfig, handler func(Event)) error

	// ConfigureChannel sets up one scan channel.
	ConfigureChannel(index uint8, cfg ChannelConfig) error

	// BufferConvert queues buf (one slot per channel) for conversion.
	// The driver reports it back with EventBufferFull carrying id.
	BufferConvert(id BufferID, buf []int16) error

	// SampleTask returns the endpoint that triggers one scan.
	SampleTask() Endpoint

	// Abort stops any conversion and releases all queued buffers. Once it
	// returns the converter no longer writes to any buffer. The driver
	// reports one EventBufferFull with NoBuffer as a side effect.
	Abort()

	// CalibrateOffset starts offset calibration. It returns ErrHardwareBusy
	// while a conversion or an abort is still draining. Completion is
	// reported with EventCalibrationComplete.
	CalibrateOffset() error
}
