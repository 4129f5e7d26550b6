package core

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := DefaultConfig()
	assert.NoError(t, cfg.Validate())
	assert.Len(t, cfg.Channels, 2)
	assert.Equal(t, InputAIN5, cfg.Channels[0].Input)
	assert.Equal(t, InputAIN7, cfg.Channels[1].Input)
	assert.Equal(t, uint32(100), cfg.CalibrationInterval)
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		op     string
	}{
		{"no channels", func(c *Config) { c.Channels = nil }, "channels"},
		{"too many channels", func(c *Config) { c.Channels = make([]ChannelConfig, 9) }, "channels"},
		{"zero period", func(c *Config) { c.Timebase.SamplePeriodMs = 0 }, "timebase"},
		{"lead not before sample", func(c *Config) { c.Timebase.PowerLeadMs = 1000 }, "timebase"},
		{"zero lead", func(c *Config) { c.Timebase.PowerLeadMs = 0 }, "timebase"},
		{"no retries", func(c *Config) { c.CalibrationRetries = 0 }, "calibration retries"},
		{"bad delivery", func(c *Config) { c.Delivery = Delivery(7) }, "delivery"},
		{"differential", func(c *Config) { c.Channels[1].Mode = ModeDifferential }, "channel mode"},
		{"bad resolution", func(c *Config) { c.ADC.Resolution = 16 }, "channel scale"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tc.mutate(&cfg)
			err := cfg.Validate()

			var cerr *ConfigError
			if assert.True(t, errors.As(err, &cerr), "got %v", err) {
				assert.Equal(t, tc.op, cerr.Op)
			}
			assert.ErrorIs(t, err, ErrInvalidConfig)
		})
	}
}

func TestConfigValidateAllowsUngatedPower(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Timebase.PeriodicPower = false
	cfg.Timebase.PowerLeadMs = 0
	cfg.CalibrationInterval = 0
	cfg.CalibrationRetries = 0
	assert.NoError(t, cfg.Validate())
}
