// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Saad Alam

package anapsu

import "fmt"

// LengthError reports a received frame with the wrong size.
type LengthError struct {
	Length int
}

func (e *LengthError) Error() string {
	return fmt.Sprintf("frame length %d, want %d", e.Length, FrameSize)
}

// MagicError reports a frame whose magic number does not match the
// board protocol.
type MagicError struct {
	Magic uint32
}

func (e *MagicError) Error() string {
	return fmt.Sprintf("frame magic 0x%08X, want 0x%08X", e.Magic, uint32(Magic))
}

// ChecksumError reports a frame whose checksum does not verify.
// Received is the checksum carried in the frame; Residue is the
// non-zero XOR residue over the complete frame.
type ChecksumError struct {
	Received uint16
	Residue  uint16
}

func (e *ChecksumError) Error() string {
	return fmt.Sprintf("frame checksum 0x%04X invalid (residue 0x%04X)", e.Received, e.Residue)
}

// DeviceError reports a non-benign response word from the board.
type DeviceError struct {
	Response int16
}

func (e *DeviceError) Error() string {
	return fmt.Sprintf("board reported error word 0x%04X", uint16(e.Response))
}
