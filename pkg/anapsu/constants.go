// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Saad Alam

// Package anapsu implements the wire protocol of the analog PSU
// interface board.
//
// The board exposes two 16-bit DAC channels (voltage and current
// setpoints), two banks of four ADC channels, and an output relay.
// All communication is a single fixed-layout 32-byte status frame,
// exchanged over USB bulk endpoint 1 in both directions: the host
// writes a command frame and the board answers with its full state.
// This package provides frame encoding/decoding, checksum validation,
// and human-readable formatting.
package anapsu

// USB identity shared by every interface board revision.
const (
	VendorID  = 0xA0A0
	ProductID = 0x000C
)

// Bulk endpoint addresses used by the board firmware.
const (
	EndpointOut = 0x01
	EndpointIn  = 0x81
)

// Frame layout constants
const (
	FrameSize = 32         // packed Status frame, little-endian
	Magic     = 0xA4A7051F // first four bytes of every frame
)

// SetMask bits select which command fields the board applies.
// A zero mask is a pure readout request.
const (
	MaskDACA  = 1 << 0 // apply DACA (voltage setpoint)
	MaskDACB  = 1 << 1 // apply DACB (current setpoint)
	MaskRelay = 1 << 2 // apply Relay
)

// ADC channel assignment in the ADCB bank.
const (
	ADCVoltageMonitor = 2 // scaled PSU output voltage
	ADCCurrentMonitor = 3 // scaled PSU output current
)

// Response word values reported by the board.
const (
	ResponseOK     = 0x0000
	ResponseWarmup = 0x0F00 // reported while the analog stage settles; not an error
)

// Checksum seed for the XOR-16 frame checksum.
const checksumSeed = 0xFFFF
