// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Saad Alam

package usbbulk

import (
	"fmt"

	"github.com/gotmc/libusb"
)

// Strategy decides which of several identical-VID:PID devices is the
// one to open. Match is called once per VID:PID match during the
// enumeration walk; ordinal counts those matches from zero, in
// platform enumeration order.
type Strategy interface {
	Match(ordinal int, dev *libusb.Device, desc *libusb.DeviceDescriptor) (bool, error)
	fmt.Stringer
}

// ByEnumerationOrder selects the skip-th VID:PID match. This is the
// historical identification method and the only one the stock
// interface boards support; it depends entirely on physical connection
// order and is not stable across platforms.
func ByEnumerationOrder(skip int) Strategy {
	return enumerationOrder{skip: skip}
}

type enumerationOrder struct {
	skip int
}

func (s enumerationOrder) Match(ordinal int, dev *libusb.Device, desc *libusb.DeviceDescriptor) (bool, error) {
	return ordinal == s.skip, nil
}

func (s enumerationOrder) String() string {
	return fmt.Sprintf("enumeration order (skip %d)", s.skip)
}

// ByBCDRelease selects the first match whose device release number
// (bcdDevice) equals release. Boards flashed with distinct release
// numbers can be told apart without opening them.
func ByBCDRelease(release uint16) Strategy {
	return bcdRelease{release: release}
}

type bcdRelease struct {
	release uint16
}

func (s bcdRelease) Match(ordinal int, dev *libusb.Device, desc *libusb.DeviceDescriptor) (bool, error) {
	return desc.DeviceReleaseNumber == s.release, nil
}

func (s bcdRelease) String() string {
	return fmt.Sprintf("bcdDevice 0x%04X", s.release)
}

// BySerialNumber selects the match whose serial number string
// descriptor equals serial. The candidate is opened briefly to read
// the descriptor; candidates without a serial number are skipped.
func BySerialNumber(serial string) Strategy {
	return serialNumber{serial: serial}
}

type serialNumber struct {
	serial string
}

func (s serialNumber) Match(ordinal int, dev *libusb.Device, desc *libusb.DeviceDescriptor) (bool, error) {
	if desc.SerialNumberIndex == 0 {
		return false, nil
	}
	handle, err := dev.Open()
	if err != nil {
		// Unreadable candidates are skipped, not fatal: the wanted
		// board may be a later match.
		return false, nil
	}
	defer handle.Close()

	sn, err := handle.GetStringDescriptorASCII(desc.SerialNumberIndex)
	if err != nil {
		return false, nil
	}
	return sn == s.serial, nil
}

func (s serialNumber) String() string {
	return fmt.Sprintf("serial number %q", s.serial)
}
