// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Saad Alam

// Package usbbulk opens and drives USB bulk devices through libusb.
//
// Every opened Device owns a private libusb context. This is
// deliberate: several identical interface boards share one VID:PID,
// and closing one board's handle must never invalidate a sibling's.
// Keeping the enumeration context per handle makes that independence
// structural instead of relying on libusb reference counting across
// operating systems.
package usbbulk

import (
	"fmt"
	"time"

	"github.com/gotmc/libusb"
)

// Transfer retry policy. Bulk transfers to the interface board
// occasionally complete partially; the firmware expects the remainder
// rather than a restart.
const (
	maxTransferAttempts = 10
	retryDelay          = 10 * time.Millisecond
)

// DefaultTimeout bounds a single bulk transfer attempt.
const DefaultTimeout = 100 * time.Millisecond

// Device is an open, claimed USB bulk device. It is exclusively owned
// by the caller; methods are not safe for concurrent use.
type Device struct {
	context *libusb.Context
	handle  *libusb.DeviceHandle
	desc    *libusb.DeviceDescriptor

	iface   int
	epOut   *libusb.EndpointDescriptor
	epIn    *libusb.EndpointDescriptor
	claimed bool
}

// Open locates the skip-th device matching vid:pid in platform
// enumeration order, opens it, and claims interface ifaceNum.
//
// Enumeration order is the platform's and is not guaranteed stable
// across operating systems or replug cycles; boards selected by skip
// count are interchangeable only by physical connection order. Use
// OpenWith with a descriptor-based strategy where the boards expose
// distinguishing descriptors.
func Open(vid, pid uint16, ifaceNum, skip int) (*Device, error) {
	return OpenWith(vid, pid, ifaceNum, ByEnumerationOrder(skip))
}

// OpenWith opens the device selected by the given identification
// strategy among all vid:pid matches.
//
// Errors: *DeviceNotFoundError if no match satisfies the strategy,
// ErrPermissionDenied (wrapped) if the device cannot be opened, and
// ErrInterfaceBusy (wrapped) if the interface cannot be claimed.
func OpenWith(vid, pid uint16, ifaceNum int, sel Strategy) (*Device, error) {
	ctx, err := libusb.NewContext()
	if err != nil {
		return nil, fmt.Errorf("usbbulk: init context: %v", err)
	}

	dev := &Device{context: ctx, iface: ifaceNum}
	if err := dev.open(vid, pid, sel); err != nil {
		ctx.Close()
		return nil, err
	}
	return dev, nil
}

func (d *Device) open(vid, pid uint16, sel Strategy) error {
	devices, err := d.context.GetDeviceList()
	if err != nil {
		return fmt.Errorf("usbbulk: get device list: %v", err)
	}

	matches := 0
	for _, candidate := range devices {
		desc, err := candidate.GetDeviceDescriptor()
		if err != nil {
			// Devices can disappear mid-walk; skip them.
			continue
		}
		if desc.VendorID != vid || desc.ProductID != pid {
			continue
		}

		ok, err := sel.Match(matches, candidate, desc)
		matches++
		if err != nil {
			return fmt.Errorf("usbbulk: identification strategy: %v", err)
		}
		if !ok {
			continue
		}

		handle, err := candidate.Open()
		if err != nil {
			return fmt.Errorf("%w: open %04X:%04X: %v", ErrPermissionDenied, vid, pid, err)
		}
		if err := handle.ClaimInterface(d.iface); err != nil {
			handle.Close()
			return fmt.Errorf("%w: claim interface %d on %04X:%04X: %v",
				ErrInterfaceBusy, d.iface, vid, pid, err)
		}

		d.handle = handle
		d.desc = desc
		d.claimed = true

		if err := d.resolveEndpoints(candidate); err != nil {
			d.Close()
			return err
		}
		return nil
	}

	return &DeviceNotFoundError{VendorID: vid, ProductID: pid, Matches: matches, Strategy: sel}
}

// resolveEndpoints picks the first OUT and first IN bulk endpoint of
// the claimed interface from the active configuration.
func (d *Device) resolveEndpoints(dev *libusb.Device) error {
	config, err := dev.GetActiveConfigDescriptor()
	if err != nil {
		return fmt.Errorf("usbbulk: get active config descriptor: %v", err)
	}
	if d.iface >= len(config.SupportedInterfaces) {
		return fmt.Errorf("usbbulk: interface %d not present in active config", d.iface)
	}

	ifaceDesc := config.SupportedInterfaces[d.iface].InterfaceDescriptors[0]
	for _, ep := range ifaceDesc.EndpointDescriptors {
		if ep.EndpointAddress&0x80 != 0 {
			if d.epIn == nil {
				d.epIn = ep
			}
		} else if d.epOut == nil {
			d.epOut = ep
		}
	}
	if d.epOut == nil || d.epIn == nil {
		return fmt.Errorf("usbbulk: interface %d exposes no bulk IN/OUT endpoint pair", d.iface)
	}
	return nil
}

// Descriptor returns the device descriptor captured at open time.
func (d *Device) Descriptor() *libusb.DeviceDescriptor {
	return d.desc
}

// WriteBulk writes p to the device's bulk OUT endpoint, retrying
// partial transfers. timeout bounds each attempt, not the whole write.
func (d *Device) WriteBulk(p []byte, timeout time.Duration) (int, error) {
	if d.handle == nil {
		return 0, ErrClosed
	}

	transferred := 0
	var cause error
	for attempt := 0; transferred < len(p) && attempt < maxTransferAttempts; attempt++ {
		if attempt > 0 {
			time.Sleep(retryDelay)
		}
		n, err := d.handle.BulkTransfer(
			d.epOut.EndpointAddress, p[transferred:], len(p)-transferred,
			int(timeout.Milliseconds()))
		transferred += n
		cause = err
	}

	if transferred != len(p) {
		return transferred, &TransferError{
			Direction:   "write",
			Transferred: transferred,
			Want:        len(p),
			Cause:       cause,
		}
	}
	return transferred, nil
}

// ReadBulk fills p from the device's bulk IN endpoint, retrying
// partial transfers. timeout bounds each attempt, not the whole read.
func (d *Device) ReadBulk(p []byte, timeout time.Duration) (int, error) {
	if d.handle == nil {
		return 0, ErrClosed
	}

	transferred := 0
	var cause error
	for attempt := 0; transferred < len(p) && attempt < maxTransferAttempts; attempt++ {
		if attempt > 0 {
			time.Sleep(retryDelay)
		}
		n, err := d.handle.BulkTransfer(
			d.epIn.EndpointAddress, p[transferred:], len(p)-transferred,
			int(timeout.Milliseconds()))
		transferred += n
		cause = err
	}

	if transferred != len(p) {
		return transferred, &TransferError{
			Direction:   "read",
			Transferred: transferred,
			Want:        len(p),
			Cause:       cause,
		}
	}
	return transferred, nil
}

// Close releases the claimed interface, closes the handle, and tears
// down this device's private libusb context. Other open devices are
// unaffected. Close is idempotent.
func (d *Device) Close() error {
	if d.handle == nil {
		return nil
	}

	var err error
	if d.claimed {
		if rerr := d.handle.ReleaseInterface(d.iface); rerr != nil {
			err = fmt.Errorf("usbbulk: release interface %d: %v", d.iface, rerr)
		}
		d.claimed = false
	}
	d.handle.Close()
	d.handle = nil

	d.context.Close()
	d.context = nil
	return err
}
