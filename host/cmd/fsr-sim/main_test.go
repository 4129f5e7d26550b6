package main

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fsrsense/host/config"
)

func TestNewDeviceConstantSignal(t *testing.T) {
	sc := config.Default().Sim
	sc.Raw = []int16{512, 256}

	dev, err := newDevice(sc)
	require.NoError(t, err)
	assert.Nil(t, dev.Board.ADC.Signal)
	assert.Equal(t, 2, dev.Sensor.Channels())
}

func TestNewDeviceSineSignal(t *testing.T) {
	sc := config.Default().Sim
	sc.Signal = "sine"
	sc.Speed = 50
	sc.SignalPeriod = 4 * time.Second

	dev, err := newDevice(sc)
	require.NoError(t, err)
	assert.NotNil(t, dev.Board.ADC.Signal)
	assert.Equal(t, float64(50), dev.Speed)
}

func TestNewDeviceRejectsBadConfig(t *testing.T) {
	sc := config.Default().Sim
	sc.Delivery = "bogus"

	_, err := newDevice(sc)
	assert.Error(t, err)
}
