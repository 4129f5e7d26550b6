package core_test

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fsrsense/core"
	"fsrsense/sim"
)

type recorder struct {
	results [][]int16
}

func (r *recorder) Deliver(mv []int16) {
	r.results = append(r.results, append([]int16(nil), mv...))
}

type faultRecorder struct {
	reasons []string
	errs    []error
}

func (f *faultRecorder) handle(reason string, err error) {
	f.reasons = append(f.reasons, reason)
	f.errs = append(f.errs, err)
}

// newSensor builds the two-channel board setup reading codes 512 and 256.
func newSensor(t *testing.T, mutate func(*core.Config)) (*sim.Board, *core.Sensor, *recorder) {
	t.Helper()
	b := sim.NewBoard()
	b.ADC.SetRaw(0, 512)
	b.ADC.SetRaw(1, 256)

	cfg := core.DefaultConfig()
	cfg.Trace = true
	if mutate != nil {
		mutate(&cfg)
	}
	rec := &recorder{}
	s, err := core.NewSensor(b.Hardware(), cfg, rec)
	require.NoError(t, err)
	return b, s, rec
}

func noCalibrationOnStart(c *core.Config) { c.CalibrateOnStart = false }

func TestSensorBoardScenario(t *testing.T) {
	b, s, rec := newSensor(t, noCalibrationOnStart)
	assert.Equal(t, core.StateIdle, s.State())
	assert.Equal(t, 2, s.Buffers().Queued(), "both buffers armed at init")

	require.NoError(t, s.Start())
	b.Run(3500*time.Millisecond, time.Millisecond, s.Poll)

	require.Len(t, rec.results, 3)
	for _, r := range rec.results {
		assert.Equal(t, []int16{1650, 825}, r)
	}
	assert.Equal(t, []int16{1650, 825}, s.Results(nil))

	st := s.Stats()
	assert.Equal(t, uint32(3), st.Samples)
	assert.Equal(t, uint32(3), st.Delivered)
	assert.Zero(t, st.Overwritten)
	assert.Equal(t, uint32(3), s.Calibration().SinceCalibration)

	// sensor powered 5 ms ahead of the sample, off once it has landed
	power := b.GPIO.Transitions(core.DefaultPowerPin)
	require.GreaterOrEqual(t, len(power), 2)
	assert.Equal(t, sim.Transition{At: 995000, High: true}, power[0])
	assert.Equal(t, sim.Transition{At: 1000000 + sim.DefaultConversionMicros, High: false}, power[1])
}

func bufferSequence(s *core.Sensor) []core.BufferID {
	var ids []core.BufferID
	for _, ev := range s.Trace().Events() {
		if ev.Kind == core.TraceBufferFull {
			ids = append(ids, ev.Buffer)
		}
	}
	return ids
}

func TestSensorAlternatesBuffers(t *testing.T) {
	b, s, _ := newSensor(t, noCalibrationOnStart)
	require.NoError(t, s.Start())
	b.Run(5500*time.Millisecond, time.Millisecond, s.Poll)

	assert.Equal(t, []core.BufferID{
		core.BufferPing, core.BufferPong, core.BufferPing, core.BufferPong, core.BufferPing,
	}, bufferSequence(s))
}

func fastPeriod(c *core.Config) {
	c.Timebase.SamplePeriodMs = 10
	c.Timebase.PowerLeadMs = 1
}

func TestSensorCalibratesEveryInterval(t *testing.T) {
	b, s, rec := newSensor(t, func(c *core.Config) {
		fastPeriod(c)
		c.CalibrateOnStart = false
	})
	require.NoError(t, s.Start())

	b.Run(995*time.Millisecond, time.Millisecond, s.Poll)
	assert.Equal(t, uint32(99), s.Calibration().SinceCalibration)
	assert.Zero(t, s.Stats().Calibrations)

	b.Run(10*time.Millisecond, time.Millisecond, s.Poll)
	st := s.Stats()
	assert.Equal(t, uint32(100), st.Samples)
	assert.Equal(t, uint32(1), st.Spurious, "abort raises one completion without data")
	assert.Equal(t, uint32(1), st.Calibrations)
	assert.Equal(t, core.CalibrationState{}, s.Calibration())
	assert.Equal(t, core.StateSampling, s.State())
	assert.Equal(t, 2, s.Buffers().Queued(), "both buffers re-armed after calibration")
	assert.Equal(t, uint32(1), b.ADC.Calibrations())
	assert.Equal(t, 5*time.Microsecond, b.Delayed())

	require.Len(t, rec.results, 100)
	for _, r := range rec.results {
		assert.Equal(t, []int16{1650, 825}, r, "null completion data must never be delivered")
	}

	// sampling restarts on ping after the reset
	b.Run(20*time.Millisecond, time.Millisecond, s.Poll)
	seq := bufferSequence(s)
	require.NotEmpty(t, seq)
	assert.Equal(t, []core.BufferID{core.BufferPing, core.BufferPong}, seq[len(seq)-2:])
	assert.Equal(t, uint32(102), s.Stats().Samples)
	assert.Equal(t, uint32(2), s.Calibration().SinceCalibration)
}

func TestSensorCalibratesOnStart(t *testing.T) {
	b, s, rec := newSensor(t, nil)
	require.NoError(t, s.Start())
	b.Run(1010*time.Millisecond, time.Millisecond, s.Poll)

	assert.Len(t, rec.results, 1)
	assert.Equal(t, uint32(1), s.Stats().Calibrations)
	assert.Equal(t, uint32(0), s.Calibration().SinceCalibration)
}

func TestSensorRetriesBusyCalibration(t *testing.T) {
	b, s, _ := newSensor(t, nil)
	b.ADC.BusyPolls = 3
	require.NoError(t, s.Start())
	b.Run(1010*time.Millisecond, time.Millisecond, s.Poll)

	st := s.Stats()
	assert.Equal(t, uint32(3), st.CalibrationRejects)
	assert.Equal(t, uint32(1), st.Calibrations)
	assert.Equal(t, core.StateSampling, s.State())
}

func TestSensorCalibrationTimeoutFaults(t *testing.T) {
	faults := &faultRecorder{}
	b, s, _ := newSensor(t, func(c *core.Config) {
		c.CalibrationRetries = 5
		c.Fault = faults.handle
	})
	b.ADC.StuckBusy = true
	require.NoError(t, s.Start())
	b.Run(1010*time.Millisecond, time.Millisecond, s.Poll)

	require.Len(t, faults.errs, 1)
	assert.Equal(t, "calibrate", faults.reasons[0])
	assert.ErrorIs(t, faults.errs[0], core.ErrCalibrationTimeout)
	assert.ErrorIs(t, s.Err(), core.ErrCalibrationTimeout)
	assert.Equal(t, core.StateFaulted, s.State())
	assert.Equal(t, uint32(5), s.Stats().CalibrationRejects)
	assert.Equal(t, 5, b.ADC.Calls().Calibrate)

	assert.False(t, s.Timebase().Running())
	assert.False(t, b.GPIO.Level(core.DefaultPowerPin))
	assert.ErrorIs(t, s.Start(), core.ErrFaulted)

	samples := s.Stats().Samples
	b.Run(3*time.Second, time.Millisecond, s.Poll)
	assert.Equal(t, samples, s.Stats().Samples)
	assert.Len(t, faults.errs, 1, "fault reported once")
}

func TestSensorDefaultFaultHandlerPanics(t *testing.T) {
	b, s, _ := newSensor(t, nil)
	b.ADC.FailCalibrate = errors.New("calibration unavailable")
	require.NoError(t, s.Start())
	b.Advance(1001 * time.Millisecond)

	assert.Panics(t, s.Poll)
	assert.Equal(t, core.StateFaulted, s.State())
}

func TestSensorRearmFailureFaults(t *testing.T) {
	faults := &faultRecorder{}
	dma := errors.New("dma error")
	b, s, rec := newSensor(t, func(c *core.Config) {
		c.CalibrationInterval = 0
		c.Fault = faults.handle
	})
	require.NoError(t, s.Start())
	b.ADC.FailConvert = dma
	b.Run(1500*time.Millisecond, time.Millisecond, s.Poll)

	require.Len(t, faults.errs, 1)
	assert.Equal(t, "buffer convert", faults.reasons[0])
	assert.ErrorIs(t, faults.errs[0], dma)
	assert.Equal(t, core.StateFaulted, s.State())
	assert.Len(t, rec.results, 1, "the sample converted before the failure is still delivered")
}

func TestSensorStopStartWithoutReconfiguration(t *testing.T) {
	b, s, rec := newSensor(t, noCalibrationOnStart)
	require.NoError(t, s.Start())
	b.Run(2500*time.Millisecond, time.Millisecond, s.Poll)
	require.Len(t, rec.results, 2)

	require.NoError(t, s.Stop())
	assert.Equal(t, core.StateIdle, s.State())
	assert.False(t, s.Timebase().Running())
	assert.False(t, b.GPIO.Level(core.DefaultPowerPin))
	assert.Zero(t, s.Buffers().Queued())
	assert.Empty(t, b.ADC.Queued(), "no buffer may be written after Stop")

	calls := b.ADC.Calls()
	b.Run(3*time.Second, time.Millisecond, s.Poll)
	assert.Len(t, rec.results, 2)
	assert.Equal(t, uint32(1), s.Stats().Spurious)

	require.NoError(t, s.Start())
	require.NoError(t, s.Start(), "start while running is a no-op")
	b.Run(1500*time.Millisecond, time.Millisecond, s.Poll)
	assert.Len(t, rec.results, 3)
	assert.Equal(t, []int16{1650, 825}, rec.results[2])

	after := b.ADC.Calls()
	assert.Equal(t, calls.Init, after.Init)
	assert.Equal(t, calls.ConfigureChannel, after.ConfigureChannel)
	assert.Equal(t, 1, b.Timer.Inits())
}

func TestSensorStopCancelsPendingCalibration(t *testing.T) {
	b, s, _ := newSensor(t, nil)
	require.NoError(t, s.Start())
	b.Advance(1001 * time.Millisecond)
	assert.Equal(t, core.StateCalibrationPending, s.State())

	require.NoError(t, s.Stop())
	assert.Equal(t, core.StateIdle, s.State())
	assert.Equal(t, core.CalibrationState{SinceCalibration: 99}, s.Calibration())

	s.Poll()
	assert.False(t, b.ADC.Calibrating(), "a stopped sensor does not calibrate")

	require.NoError(t, s.Start())
	b.Run(1010*time.Millisecond, time.Millisecond, s.Poll)
	assert.Equal(t, uint32(1), s.Stats().Calibrations)
}

func TestSensorStartWhileAbortDrains(t *testing.T) {
	b, s, rec := newSensor(t, noCalibrationOnStart)
	b.ADC.BusyPolls = 3
	require.NoError(t, s.Start())
	b.Run(1500*time.Millisecond, time.Millisecond, s.Poll)
	require.Len(t, rec.results, 1)

	// the converter is still stopping when Start hands the buffers over
	require.NoError(t, s.Stop())
	require.NoError(t, s.Start())
	assert.Equal(t, core.StateSampling, s.State())
	assert.Equal(t, uint32(3), s.Stats().ArmRejects)
	assert.Equal(t, 3, b.ADC.Calls().ConvertBusy)
	assert.Equal(t, 2, s.Buffers().Queued())
	assert.Equal(t, []core.BufferID{core.BufferPing, core.BufferPong}, b.ADC.Queued())

	b.Run(1500*time.Millisecond, time.Millisecond, s.Poll)
	require.Len(t, rec.results, 2)
	assert.Equal(t, []int16{1650, 825}, rec.results[1])
	assert.Equal(t, uint32(1), s.Stats().Spurious)
	assert.Zero(t, s.Stats().Faults)
}

func TestSensorStartAfterStoppingCalibration(t *testing.T) {
	b, s, _ := newSensor(t, nil)
	b.ADC.BusyPolls = 2
	require.NoError(t, s.Start())
	b.Advance(1001 * time.Millisecond)
	s.Poll()
	require.Equal(t, core.StateCalibrating, s.State())
	require.True(t, b.ADC.Calibrating())

	require.NoError(t, s.Stop())
	assert.False(t, b.ADC.Calibrating())
	require.NoError(t, s.Start())
	assert.Equal(t, core.StateSampling, s.State())
	assert.Equal(t, uint32(2), s.Stats().ArmRejects)

	b.Run(1010*time.Millisecond, time.Millisecond, s.Poll)
	assert.Equal(t, uint32(1), s.Stats().Calibrations)
	assert.Equal(t, core.StateSampling, s.State())
}

func TestSensorStartFaultsWhenConverterNeverStops(t *testing.T) {
	faults := &faultRecorder{}
	b, s, _ := newSensor(t, func(c *core.Config) { c.Fault = faults.handle })
	b.ADC.BusyPolls = 1 << 20
	require.NoError(t, s.Start())
	require.NoError(t, s.Stop())

	err := s.Start()
	assert.ErrorIs(t, err, core.ErrHardwareBusy)
	assert.Equal(t, core.StateFaulted, s.State())
	require.Len(t, faults.reasons, 1)
	assert.Equal(t, "buffer convert", faults.reasons[0])
	assert.Equal(t, uint32(10000), s.Stats().ArmRejects)
}

func TestSensorOverwritesUndeliveredResult(t *testing.T) {
	b, s, rec := newSensor(t, func(c *core.Config) { c.CalibrationInterval = 0 })
	b.ADC.Signal = func(channel int, at uint64) int16 {
		return int16(at / 1000000 * 100)
	}
	require.NoError(t, s.Start())

	// main loop stalls for three periods
	b.Advance(3500 * time.Millisecond)
	s.Poll()

	require.Len(t, rec.results, 1)
	assert.Equal(t, []int16{966, 966}, rec.results[0], "newest result wins")
	st := s.Stats()
	assert.Equal(t, uint32(3), st.Samples)
	assert.Equal(t, uint32(2), st.Overwritten)

	s.Poll()
	assert.Len(t, rec.results, 1, "a result is delivered once")
}

func TestSensorQueueDelivery(t *testing.T) {
	b, s, rec := newSensor(t, func(c *core.Config) {
		c.CalibrationInterval = 0
		c.Delivery = core.DeliveryQueue
	})
	require.NoError(t, s.Start())
	b.Run(3500*time.Millisecond, time.Millisecond, s.Poll)

	assert.Len(t, rec.results, 3)
	require.NotNil(t, s.Queue())
	assert.Zero(t, s.Queue().Len())
	assert.Equal(t, core.DefaultQueueCapacity, s.Queue().Cap())
}

func TestSensorSharedQueueFull(t *testing.T) {
	queue := core.NewDeferredQueue(1)
	b, s, rec := newSensor(t, func(c *core.Config) {
		c.CalibrationInterval = 0
		c.Delivery = core.DeliveryQueue
		c.Queue = queue
	})
	var app int
	require.NoError(t, queue.Post(core.CalibrationComplete(), func(core.Event) { app++ }))

	require.NoError(t, s.Start())
	b.Advance(1001 * time.Millisecond)
	assert.Equal(t, uint32(1), s.Stats().Dropped)

	s.Poll()
	assert.Equal(t, 1, app)
	assert.Empty(t, rec.results)

	b.Run(time.Second, time.Millisecond, s.Poll)
	assert.Len(t, rec.results, 1)
}

func TestSensorWithoutPowerGating(t *testing.T) {
	b, s, rec := newSensor(t, func(c *core.Config) {
		c.Timebase.PeriodicPower = false
		c.CalibrateOnStart = false
	})
	require.NoError(t, s.Start())
	b.Run(2500*time.Millisecond, time.Millisecond, s.Poll)

	assert.Len(t, rec.results, 2)
	assert.Empty(t, b.GPIO.Transitions(core.DefaultPowerPin))
	assert.Zero(t, b.Timer.Interrupts(core.PowerCompare))
}

func TestNewSensorErrors(t *testing.T) {
	b := sim.NewBoard()
	_, err := core.NewSensor(b.Hardware(), core.DefaultConfig(), nil)
	assert.ErrorIs(t, err, core.ErrNoHandler)

	handler := core.ResultHandlerFunc(func([]int16) {})

	cfg := core.DefaultConfig()
	cfg.Timebase.PowerPin = 40
	_, err = core.NewSensor(sim.NewBoard().Hardware(), cfg, handler)
	var cerr *core.ConfigError
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, "power pin", cerr.Op)
	assert.ErrorIs(t, err, sim.ErrPinInvalid)

	b = sim.NewBoard()
	for i := 0; i < sim.PPIChannels; i++ {
		_, err := b.PPI.ChannelAlloc()
		require.NoError(t, err)
	}
	_, err = core.NewSensor(b.Hardware(), core.DefaultConfig(), handler)
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, "ppi alloc", cerr.Op)

	b = sim.NewBoard()
	cfg = core.DefaultConfig()
	cfg.Channels[1].Gain = core.Gain(9)
	_, err = core.NewSensor(b.Hardware(), cfg, handler)
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, "channel scale", cerr.Op)
	assert.ErrorIs(t, err, core.ErrInvalidConfig)
	assert.Zero(t, b.ADC.Calls().Init, "no hardware touched")

	cfg = core.DefaultConfig()
	cfg.Channels[0].Input = core.InputNC
	_, err = core.NewSensor(sim.NewBoard().Hardware(), cfg, handler)
	assert.ErrorIs(t, err, sim.ErrBadChannel)
}
