// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Saad Alam

package psu

import "math"

// Board calibration constants, fixed by the interface board hardware.
const (
	// DACFullScale is the analog output span of the board's DAC in
	// volts: code 65535 drives this voltage.
	DACFullScale = 11.3

	// ADCFullScale is the measured input span of the board's monitor
	// ADC in volts (divider ratio 3.2, reference 3.3 V, trim 1.12).
	ADCFullScale = 3.2 * 3.3 * 1.12

	// MonitorSpan is the PSU's analog monitor output range in volts;
	// 0..MonitorSpan maps to 0..max_physical on the monitor pins.
	MonitorSpan = 10.0

	// CodeMax is the full-scale 16-bit converter code.
	CodeMax = 0xFFFF
)

// VoltsToCode converts a physical value (volts or milliamps, in the
// unit of maxPhysical) to a 16-bit DAC code:
//
//	code = clamp(round(value/maxPhysical * maxInput/fullScale * 65535), 0, 65535)
//
// maxInput is the PSU's programming input range and fullScale the
// board's analog span covered by code 65535. Rounding is half away
// from zero, so boundary codes are reproducible.
//
// The function is pure; maxPhysical must be validated by the caller
// beforehand (the PSU constructor rejects non-positive limits).
func VoltsToCode(value, maxPhysical, maxInput, fullScale float64) uint16 {
	scaled := math.Round(value / maxPhysical * maxInput / fullScale * CodeMax)
	if scaled < 0 {
		return 0
	}
	if scaled > CodeMax {
		return CodeMax
	}
	return uint16(scaled)
}

// CodeToVolts is the exact inverse scaling of VoltsToCode, without
// rounding or clamping, used for ADC readback:
//
//	value = code/65535 * fullScale/maxInput * maxPhysical
func CodeToVolts(code uint16, maxPhysical, maxInput, fullScale float64) float64 {
	return float64(code) / CodeMax * fullScale / maxInput * maxPhysical
}
