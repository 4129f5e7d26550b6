package core

import "math"

// Rounding selects how a conversion result is reduced to whole millivolts.
type Rounding uint8

const (
	// RoundTruncate drops the fraction (toward zero), matching a float to
	// int16 cast of the same value.
	RoundTruncate Rounding = iota
	// RoundNearest rounds half away from zero.
	RoundNearest
)

// internalReferenceMicroVolts is the 0.6 V band-gap reference.
const internalReferenceMicroVolts = 600000

// ReferenceMicroVolts resolves a reference selection against the supply.
func ReferenceMicroVolts(ref Reference, supplyMilliVolts uint32) uint32 {
	switch ref {
	case RefInternal:
		return internalReferenceMicroVolts
	case RefVDD4:
		return supplyMilliVolts * 1000 / 4
	}
	return 0
}

// Scale converts raw single-ended codes of one channel to millivolts:
//
//	V  = raw * reference / (gain * 2^resolution)
//	mV = V * 1000
//
// The quotient is computed exactly in integers so both rounding modes are
// deterministic across targets with and without an FPU.
type Scale struct {
	num      int64 // reference_uV * gain_den
	den      int64 // gain_num * 2^resolution * 1000
	rounding Rounding
}

// NewScale builds the conversion for one channel.
func NewScale(ch ChannelConfig, adc SAADCConfig, rounding Rounding) (Scale, error) {
	gnum, gden := ch.Gain.Ratio()
	ref := ReferenceMicroVolts(ch.Reference, adc.SupplyMilliVolts)
	if gnum == 0 || ref == 0 || adc.Resolution == 0 || adc.Resolution > Resolution14 {
		return Scale{}, ErrInvalidConfig
	}
	return Scale{
		num:      int64(ref) * int64(gden),
		den:      int64(gnum) << uint(adc.Resolution) * 1000,
		rounding: rounding,
	}, nil
}

// MilliVolts converts one raw code. Results outside the int16 range
// saturate.
func (s Scale) MilliVolts(raw int16) int16 {
	n := int64(raw) * s.num
	var q int64
	switch s.rounding {
	case RoundNearest:
		if n >= 0 {
			q = (2*n + s.den) / (2 * s.den)
		} else {
			q = (2*n - s.den) / (2 * s.den)
		}
	default:
		q = n / s.den
	}
	if q > math.MaxInt16 {
		return math.MaxInt16
	}
	if q < math.MinInt16 {
		return math.MinInt16
	}
	return int16(q)
}

// Volts returns the unrounded value, for display only.
func (s Scale) Volts(raw int16) float64 {
	return float64(raw) * float64(s.num) / float64(s.den) / 1000
}
