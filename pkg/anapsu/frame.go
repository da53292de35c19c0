// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Saad Alam

package anapsu

import "encoding/binary"

// Frame is the 32-byte status frame exchanged with the interface
// board. The same layout is used for commands (host to board) and
// responses (board to host). A Frame is immutable once encoded;
// builders in commands.go produce command frames with the correct
// SetMask.
type Frame struct {
	Magic      uint32
	Checksum   uint16
	SequenceNo uint16
	Response   int16

	ADCA [4]int16
	ADCB [4]uint16

	DACA  uint16
	DACB  uint16
	Relay uint8

	SetMask uint8
}

// Encode serializes the frame to its 32-byte wire form.
// The checksum field is computed here; any value already present in
// f.Checksum is ignored.
func (f *Frame) Encode() []byte {
	buf := make([]byte, FrameSize)
	binary.LittleEndian.PutUint32(buf[0:], f.Magic)
	// buf[4:6] checksum, filled below
	binary.LittleEndian.PutUint16(buf[6:], f.SequenceNo)
	binary.LittleEndian.PutUint16(buf[8:], uint16(f.Response))
	for i, v := range f.ADCA {
		binary.LittleEndian.PutUint16(buf[10+2*i:], uint16(v))
	}
	for i, v := range f.ADCB {
		binary.LittleEndian.PutUint16(buf[18+2*i:], v)
	}
	binary.LittleEndian.PutUint16(buf[26:], f.DACA)
	binary.LittleEndian.PutUint16(buf[28:], f.DACB)
	buf[30] = f.Relay
	buf[31] = f.SetMask

	binary.LittleEndian.PutUint16(buf[4:], Checksum(buf))
	return buf
}

// DecodeFrame parses and validates a received 32-byte frame.
// It fails with *LengthError for short or long input, *MagicError if
// the magic number does not match, and *ChecksumError if the frame
// checksum is inconsistent. A frame that fails validation is
// discarded; retrying is the caller's decision.
func DecodeFrame(data []byte) (*Frame, error) {
	if len(data) != FrameSize {
		return nil, &LengthError{Length: len(data)}
	}

	magic := binary.LittleEndian.Uint32(data[0:])
	if magic != Magic {
		return nil, &MagicError{Magic: magic}
	}

	// The board computes the transmitted checksum over the frame with
	// the checksum field zeroed, so the checksum over the complete
	// frame folds to zero.
	if residue := Checksum(data); residue != 0 {
		return nil, &ChecksumError{
			Received: binary.LittleEndian.Uint16(data[4:]),
			Residue:  residue,
		}
	}

	f := &Frame{
		Magic:      magic,
		Checksum:   binary.LittleEndian.Uint16(data[4:]),
		SequenceNo: binary.LittleEndian.Uint16(data[6:]),
		Response:   int16(binary.LittleEndian.Uint16(data[8:])),
		DACA:       binary.LittleEndian.Uint16(data[26:]),
		DACB:       binary.LittleEndian.Uint16(data[28:]),
		Relay:      data[30],
		SetMask:    data[31],
	}
	for i := range f.ADCA {
		f.ADCA[i] = int16(binary.LittleEndian.Uint16(data[10+2*i:]))
	}
	for i := range f.ADCB {
		f.ADCB[i] = binary.LittleEndian.Uint16(data[18+2*i:])
	}
	return f, nil
}

// OK reports whether the board's response word indicates success.
// The warm-up status word is deliberately treated as success; the
// board reports it while the analog stage settles after power-on
// without any command having failed.
func (f *Frame) OK() bool {
	return f.Response == ResponseOK || uint16(f.Response) == ResponseWarmup
}

// RelayOn reports the relay state carried in a response frame.
func (f *Frame) RelayOn() bool {
	return f.Relay != 0
}
