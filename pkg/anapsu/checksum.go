// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Saad Alam

package anapsu

import "encoding/binary"

// Checksum computes the XOR-16 frame checksum over data.
// The data is treated as a sequence of little-endian 16-bit words
// XORed into a 0xFFFF seed; a trailing odd byte is zero-extended.
//
// A frame carries its checksum computed with the checksum field
// zeroed; consequently Checksum over a complete valid frame is zero.
func Checksum(data []byte) uint16 {
	sum := uint16(checksumSeed)
	for i := 0; i+1 < len(data); i += 2 {
		sum ^= binary.LittleEndian.Uint16(data[i:])
	}
	if len(data)%2 != 0 {
		sum ^= uint16(data[len(data)-1])
	}
	return sum
}
