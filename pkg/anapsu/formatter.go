// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Saad Alam

package anapsu

import (
	"fmt"
	"strings"
)

// FormatBytes renders raw frame bytes as a spaced hex string.
func FormatBytes(data []byte) string {
	var b strings.Builder
	for i, v := range data {
		if i > 0 {
			b.WriteByte(' ')
		}
		fmt.Fprintf(&b, "%02X", v)
	}
	return b.String()
}

// FormatSetMask renders the SetMask bits as the field names the board
// will apply, or "READOUT" for a zero mask.
func FormatSetMask(mask uint8) string {
	if mask == 0 {
		return "READOUT"
	}
	parts := []string{}
	if mask&MaskDACA != 0 {
		parts = append(parts, "DACA")
	}
	if mask&MaskDACB != 0 {
		parts = append(parts, "DACB")
	}
	if mask&MaskRelay != 0 {
		parts = append(parts, "RELAY")
	}
	if rest := mask &^ (MaskDACA | MaskDACB | MaskRelay); rest != 0 {
		parts = append(parts, fmt.Sprintf("UNKNOWN(0x%02X)", rest))
	}
	return strings.Join(parts, "|")
}

// FormatResponse renders the board's response word.
func FormatResponse(resp int16) string {
	switch uint16(resp) {
	case ResponseOK:
		return "OK"
	case ResponseWarmup:
		return "WARMUP (0x0F00)"
	default:
		return fmt.Sprintf("ERROR 0x%04X", uint16(resp))
	}
}

// FormatFrame renders a decoded frame as a multi-line human-readable
// dump, used by verbose mode and the CLI.
func FormatFrame(f *Frame) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Magic:    0x%08X\n", f.Magic)
	fmt.Fprintf(&b, "Seq:      %d\n", f.SequenceNo)
	fmt.Fprintf(&b, "Response: %s\n", FormatResponse(f.Response))
	fmt.Fprintf(&b, "SetMask:  %s\n", FormatSetMask(f.SetMask))
	b.WriteString("ADC A:   ")
	for _, v := range f.ADCA {
		fmt.Fprintf(&b, "\t%d", v)
	}
	b.WriteByte('\n')
	b.WriteString("ADC B:   ")
	for _, v := range f.ADCB {
		fmt.Fprintf(&b, "\t%d", v)
	}
	b.WriteByte('\n')
	fmt.Fprintf(&b, "DAC A:    %d\n", f.DACA)
	fmt.Fprintf(&b, "DAC B:    %d\n", f.DACB)
	fmt.Fprintf(&b, "Relay:    %d\n", f.Relay)
	return b.String()
}
