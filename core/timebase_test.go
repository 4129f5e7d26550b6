package core_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fsrsense/core"
	"fsrsense/sim"
)

func TestTimebasePowerLead(t *testing.T) {
	b := sim.NewBoard()
	tb, err := core.NewTimebase(b.Hardware(), core.TimebaseConfig{
		SamplePeriodMs: 100,
		PeriodicPower:  true,
		PowerLeadMs:    5,
		PowerPin:       core.DefaultPowerPin,
	}, b.ADC.SampleTask(), nil)
	require.NoError(t, err)

	require.NoError(t, tb.Start())
	require.NoError(t, tb.Start())
	b.Advance(96 * time.Millisecond)
	assert.True(t, tb.Powered())
	assert.True(t, b.GPIO.Level(core.DefaultPowerPin))

	require.NoError(t, tb.PowerOff())
	b.Advance(100 * time.Millisecond)
	assert.Equal(t, []sim.Transition{
		{At: 95000, High: true},
		{At: 96000, High: false},
		{At: 195000, High: true},
	}, b.GPIO.Transitions(core.DefaultPowerPin))
	assert.Equal(t, uint32(1), b.PPI.Fired(), "sample task fired by the interconnect")

	require.NoError(t, tb.Stop())
	assert.False(t, tb.Running())
	assert.False(t, b.GPIO.Level(core.DefaultPowerPin), "stop never leaves the sensor powered")
	b.Advance(time.Second)
	assert.Equal(t, uint32(1), b.PPI.Fired())
}

func TestTimebasePowerErrorsAreCounted(t *testing.T) {
	b := sim.NewBoard()
	tb, err := core.NewTimebase(b.Hardware(), core.TimebaseConfig{
		SamplePeriodMs: 10,
		PeriodicPower:  true,
		PowerLeadMs:    2,
		PowerPin:       3,
	}, b.ADC.SampleTask(), nil)
	require.NoError(t, err)

	b.GPIO.FailSet = sim.ErrPinInvalid
	require.NoError(t, tb.Start())
	b.Advance(35 * time.Millisecond)
	assert.Equal(t, uint32(3), tb.PowerErrors())
	assert.False(t, tb.Powered())
}

func TestTimebaseRejectsBadConfig(t *testing.T) {
	b := sim.NewBoard()
	_, err := core.NewTimebase(b.Hardware(), core.TimebaseConfig{
		SamplePeriodMs: 10,
		PeriodicPower:  true,
		PowerLeadMs:    10,
	}, b.ADC.SampleTask(), nil)
	assert.ErrorIs(t, err, core.ErrInvalidConfig)
	assert.Equal(t, 0, b.Timer.Inits())
}
