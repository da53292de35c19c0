// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Saad Alam

package anapsu

// Command builder functions create Frame structs ready for encoding.
// Each sets the magic number and exactly the SetMask bits for the
// fields the board should apply; everything else stays zero and is
// ignored by the firmware.

// NewSetDACA creates a command frame writing the DACA channel
// (voltage setpoint code).
func NewSetDACA(code uint16) *Frame {
	return &Frame{Magic: Magic, SetMask: MaskDACA, DACA: code}
}

// NewSetDACB creates a command frame writing the DACB channel
// (current setpoint code).
func NewSetDACB(code uint16) *Frame {
	return &Frame{Magic: Magic, SetMask: MaskDACB, DACB: code}
}

// NewSetRelay creates a command frame switching the output relay.
func NewSetRelay(on bool) *Frame {
	f := &Frame{Magic: Magic, SetMask: MaskRelay}
	if on {
		f.Relay = 1
	}
	return f
}

// NewReadout creates a pure readout frame. The board applies nothing
// and answers with its full current state, including all ADC codes.
func NewReadout() *Frame {
	return &Frame{Magic: Magic}
}
