// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Saad Alam

package psu

import (
	"errors"
	"fmt"
)

// Sentinel errors, matchable with errors.Is.
var (
	// ErrNoRelay is returned by relay operations on a PSU built
	// without relay capability. Relay-incapable supplies are switched
	// on at the front panel; reporting success here would misstate the
	// actual output state.
	ErrNoRelay = errors.New("psu: no relay on this device")

	// ErrDeviceFaulted is returned by every operation after a
	// transport failure until the device is explicitly closed and
	// reopened (Registry.Reopen).
	ErrDeviceFaulted = errors.New("psu: device faulted")

	// ErrClosed is returned by operations on a closed PSU.
	ErrClosed = errors.New("psu: device closed")
)

// ConfigError reports invalid construction limits. No hardware is
// touched; the caller may retry with a corrected Spec.
type ConfigError struct {
	Field  string
	Value  float64
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("psu: invalid %s %g: %s", e.Field, e.Value, e.Reason)
}

// OutOfRangeError reports a setpoint rejected before any hardware
// write. The cached setpoints and device state are unchanged.
type OutOfRangeError struct {
	Quantity string // "voltage" or "current"
	Value    float64
	Max      float64
}

func (e *OutOfRangeError) Error() string {
	return fmt.Sprintf("psu: %s setpoint %g outside [0, %g]", e.Quantity, e.Value, e.Max)
}

// HardwareError reports a failed transfer or an invalid response
// during an operation. The PSU transitions to Faulted when the
// underlying failure is a transport failure.
type HardwareError struct {
	DeviceIndex int
	Op          string // operation with its attempted value, e.g. "set_voltage 5000 V"
	Cause       error
}

func (e *HardwareError) Error() string {
	return fmt.Sprintf("psu: device %d: %s: %v", e.DeviceIndex, e.Op, e.Cause)
}

func (e *HardwareError) Unwrap() error {
	return e.Cause
}

// SpecMismatchError reports a GetOrCreate call whose Spec disagrees
// with the one the device index was first registered with. Honoring
// the new limits silently would leave the caller believing in bounds
// the instance does not enforce.
type SpecMismatchError struct {
	DeviceIndex int
	Registered  Spec
	Requested   Spec
}

func (e *SpecMismatchError) Error() string {
	return fmt.Sprintf("psu: device %d already registered with %+v, requested %+v",
		e.DeviceIndex, e.Registered, e.Requested)
}
