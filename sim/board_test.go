package sim

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fsrsense/core"
)

func TestTimerDrivesSampleThroughPPI(t *testing.T) {
	b := NewBoard()
	var events []core.Event
	require.NoError(t, b.ADC.Init(core.SAADCConfig{Resolution: core.Resolution10}, func(ev core.Event) {
		events = append(events, ev)
	}))
	require.NoError(t, b.ADC.ConfigureChannel(0, core.ChannelConfig{Input: core.InputAIN5}))
	b.ADC.SetRaw(0, 300)

	var compares []uint64
	require.NoError(t, b.Timer.Init(func(ch core.CompareChannel) {
		if ch == core.CompareChannel0 {
			compares = append(compares, b.Clock.Now())
		}
	}))
	b.Timer.Compare(core.CompareChannel0, b.Timer.MsToTicks(95), true)
	b.Timer.ExtendedCompare(core.CompareChannel1, b.Timer.MsToTicks(100), true, false)

	ch, err := b.PPI.ChannelAlloc()
	require.NoError(t, err)
	require.NoError(t, b.PPI.ChannelAssign(ch, b.Timer.CompareEvent(core.CompareChannel1), b.ADC.SampleTask()))
	require.NoError(t, b.PPI.ChannelEnable(ch))

	ping := make([]int16, 1)
	pong := make([]int16, 1)
	require.NoError(t, b.ADC.BufferConvert(core.BufferPing, ping))
	require.NoError(t, b.ADC.BufferConvert(core.BufferPong, pong))

	b.Timer.Enable()
	b.Advance(250 * time.Millisecond)

	assert.Equal(t, []uint64{95000, 195000}, compares)
	require.Len(t, events, 2)
	assert.Equal(t, core.BufferFull(core.BufferPing), events[0])
	assert.Equal(t, core.BufferFull(core.BufferPong), events[1])
	assert.Equal(t, []int16{300}, ping)
	assert.Equal(t, uint32(2), b.PPI.Fired())

	// nothing queued: the third trigger is ignored
	b.Advance(100 * time.Millisecond)
	assert.Len(t, events, 2)
	assert.Equal(t, uint32(1), b.ADC.Ignored())

	b.Timer.Disable()
	b.Advance(time.Second)
	assert.Equal(t, uint32(3), b.PPI.Fired())
}

func TestSAADCAbortAndCalibrate(t *testing.T) {
	b := NewBoard()
	var events []core.Event
	require.NoError(t, b.ADC.Init(core.SAADCConfig{Resolution: core.Resolution10}, func(ev core.Event) {
		events = append(events, ev)
	}))
	b.ADC.BusyPolls = 2

	// idle converter: abort raises nothing
	b.ADC.Abort()
	b.Advance(time.Millisecond)
	assert.Empty(t, events)

	require.NoError(t, b.ADC.BufferConvert(core.BufferPing, make([]int16, 1)))
	b.ADC.Abort()
	assert.Empty(t, b.ADC.Queued())

	assert.ErrorIs(t, b.ADC.CalibrateOffset(), core.ErrHardwareBusy)
	assert.ErrorIs(t, b.ADC.CalibrateOffset(), core.ErrHardwareBusy)
	require.NoError(t, b.ADC.CalibrateOffset())
	require.Len(t, events, 1, "pending abort completion is taken before calibration")
	assert.True(t, events[0].Spurious())

	assert.ErrorIs(t, b.ADC.BufferConvert(core.BufferPing, make([]int16, 1)), core.ErrHardwareBusy)
	b.Advance(time.Millisecond)
	require.Len(t, events, 2)
	assert.Equal(t, core.CalibrationComplete(), events[1])
	assert.False(t, b.ADC.Calibrating())
	assert.Equal(t, 2, b.ADC.Calls().CalibrateBusy)
}

func TestSAADCRefusesBuffersWhileStopping(t *testing.T) {
	b := NewBoard()
	var events []core.Event
	require.NoError(t, b.ADC.Init(core.SAADCConfig{Resolution: core.Resolution10}, func(ev core.Event) {
		events = append(events, ev)
	}))
	b.ADC.BusyPolls = 2

	require.NoError(t, b.ADC.BufferConvert(core.BufferPing, make([]int16, 1)))
	b.ADC.Abort()
	assert.ErrorIs(t, b.ADC.BufferConvert(core.BufferPing, make([]int16, 1)), core.ErrHardwareBusy)
	assert.ErrorIs(t, b.ADC.BufferConvert(core.BufferPing, make([]int16, 1)), core.ErrHardwareBusy)
	require.NoError(t, b.ADC.BufferConvert(core.BufferPing, make([]int16, 1)))
	assert.Equal(t, []core.BufferID{core.BufferPing}, b.ADC.Queued())
	assert.Equal(t, 2, b.ADC.Calls().ConvertBusy)

	b.Advance(time.Millisecond)
	require.Len(t, events, 1)
	assert.True(t, events[0].Spurious())
}

func TestSAADCAbortDuringCalibrationDrains(t *testing.T) {
	b := NewBoard()
	require.NoError(t, b.ADC.Init(core.SAADCConfig{Resolution: core.Resolution10}, func(core.Event) {}))
	b.ADC.BusyPolls = 1

	require.NoError(t, b.ADC.CalibrateOffset())
	b.ADC.Abort()
	assert.False(t, b.ADC.Calibrating())
	assert.ErrorIs(t, b.ADC.BufferConvert(core.BufferPing, make([]int16, 1)), core.ErrHardwareBusy)
	require.NoError(t, b.ADC.BufferConvert(core.BufferPing, make([]int16, 1)))
}

func TestSAADCAbortCancelsCalibration(t *testing.T) {
	b := NewBoard()
	var events []core.Event
	require.NoError(t, b.ADC.Init(core.SAADCConfig{Resolution: core.Resolution10}, func(ev core.Event) {
		events = append(events, ev)
	}))
	require.NoError(t, b.ADC.CalibrateOffset())
	b.ADC.Abort()
	b.Advance(time.Second)
	assert.Empty(t, events)
	assert.Equal(t, uint32(0), b.ADC.Calibrations())
}

func TestGPIORecordsTransitions(t *testing.T) {
	b := NewBoard()
	assert.ErrorIs(t, b.GPIO.SetPin(3, true), ErrPinNotOutput)
	require.NoError(t, b.GPIO.ConfigureOutput(3))
	b.Advance(time.Millisecond)
	require.NoError(t, b.GPIO.SetPin(3, true))
	require.NoError(t, b.GPIO.SetPin(3, true))
	b.Advance(time.Millisecond)
	require.NoError(t, b.GPIO.SetPin(3, false))

	assert.Equal(t, []Transition{{At: 1000, High: true}, {At: 2000, High: false}}, b.GPIO.Transitions(3))
	assert.False(t, b.GPIO.Level(3))
}
