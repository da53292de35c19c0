// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Saad Alam

package usbbulk

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors, matchable with errors.Is.
var (
	// ErrPermissionDenied wraps a failure to open a located device,
	// almost always insufficient OS privilege on the USB node.
	ErrPermissionDenied = errors.New("usbbulk: permission denied")

	// ErrInterfaceBusy wraps a failure to claim the interface, meaning
	// another process or context already holds it.
	ErrInterfaceBusy = errors.New("usbbulk: interface busy")

	// ErrClosed is returned for transfers on a closed device.
	ErrClosed = errors.New("usbbulk: device closed")
)

// DeviceNotFoundError reports that enumeration finished without the
// identification strategy accepting a device.
type DeviceNotFoundError struct {
	VendorID  uint16
	ProductID uint16
	Matches   int // VID:PID matches seen during the walk
	Strategy  Strategy
}

func (e *DeviceNotFoundError) Error() string {
	return fmt.Sprintf("usbbulk: no device %04X:%04X accepted by %s (%d candidates seen)",
		e.VendorID, e.ProductID, e.Strategy, e.Matches)
}

// TransferError reports an incomplete bulk transfer.
type TransferError struct {
	Direction   string // "read" or "write"
	Transferred int
	Want        int
	Cause       error // last libusb error, may be nil for silent stalls
}

func (e *TransferError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("usbbulk: bulk %s %d/%d bytes: %v",
			e.Direction, e.Transferred, e.Want, e.Cause)
	}
	return fmt.Sprintf("usbbulk: bulk %s %d/%d bytes", e.Direction, e.Transferred, e.Want)
}

func (e *TransferError) Unwrap() error {
	return e.Cause
}

// IsTimeout reports whether err is a bulk transfer failure whose
// underlying libusb error was a timeout. libusb does not surface a
// typed error through the binding, so this matches on the reported
// error text.
func IsTimeout(err error) bool {
	var te *TransferError
	if !errors.As(err, &te) || te.Cause == nil {
		return false
	}
	return strings.Contains(strings.ToLower(te.Cause.Error()), "timed out") ||
		strings.Contains(strings.ToLower(te.Cause.Error()), "timeout")
}
