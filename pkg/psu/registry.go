// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Saad Alam

package psu

import (
	"fmt"
	"sort"
	"sync"

	"github.com/saad-alam12/hvpsu/pkg/anapsu"
	"github.com/saad-alam12/hvpsu/pkg/usbbulk"
)

// OpenFunc opens the transport backing a logical device index.
type OpenFunc func(deviceIndex int) (Transport, error)

// DefaultOpen opens the interface board at the given index over USB,
// using the index as the enumeration skip count on the boards' fixed
// VID:PID and interface 0.
func DefaultOpen(deviceIndex int) (Transport, error) {
	return usbbulk.Open(anapsu.VendorID, anapsu.ProductID, 0, deviceIndex)
}

// Registry is the process-wide mapping from logical device index to
// an open PSU. It owns the shared Config, performs initialization
// ordering, and isolates per-device failures: an open failure for one
// index never disturbs devices that are already open.
//
// The Registry synchronizes its own map. The PSU instances it hands
// out are not synchronized; see the package comment.
type Registry struct {
	mu      sync.Mutex
	cfg     Config
	open    OpenFunc
	entries map[int]*PSU
}

// NewRegistry creates a registry with the given shared Config. A nil
// open falls back to DefaultOpen.
func NewRegistry(cfg Config, open OpenFunc) *Registry {
	if open == nil {
		open = DefaultOpen
	}
	return &Registry{
		cfg:     cfg.withDefaults(),
		open:    open,
		entries: make(map[int]*PSU),
	}
}

// GetOrCreate returns the PSU registered under deviceIndex, opening
// and initializing it on first use. A repeated call with a Spec that
// differs from the original registration fails with
// *SpecMismatchError; mismatched limits are a caller bug, never
// silently honored.
func (r *Registry) GetOrCreate(deviceIndex int, spec Spec) (*PSU, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.getOrCreateLocked(deviceIndex, spec)
}

func (r *Registry) getOrCreateLocked(deviceIndex int, spec Spec) (*PSU, error) {
	if p, ok := r.entries[deviceIndex]; ok {
		if p.spec != spec {
			return nil, &SpecMismatchError{
				DeviceIndex: deviceIndex,
				Registered:  p.spec,
				Requested:   spec,
			}
		}
		return p, nil
	}

	t, err := r.open(deviceIndex)
	if err != nil {
		return nil, fmt.Errorf("psu: open device %d: %w", deviceIndex, err)
	}
	p, err := New(deviceIndex, t, spec, r.cfg)
	if err != nil {
		t.Close()
		return nil, err
	}
	r.entries[deviceIndex] = p
	return p, nil
}

// InitResult reports the outcome of an OpenOrdered call. Devices in
// Opened are usable regardless of entries in Failed.
type InitResult struct {
	Opened []int
	Failed map[int]error
}

// OK reports whether every requested index opened.
func (ir InitResult) OK() bool {
	return len(ir.Failed) == 0
}

// OpenOrdered opens the given device indices strictly in the order
// supplied. Some USB stacks only release shared enumeration resources
// correctly when boards are brought up in a specific order, so the
// caller's order is authoritative; it need not be ascending. Each
// index is isolated: a failure is recorded in the result and the walk
// continues, with every successfully opened device left fully usable.
// A repeated index is opened once and reported once.
func (r *Registry) OpenOrdered(order []int, specs map[int]Spec) InitResult {
	r.mu.Lock()
	defer r.mu.Unlock()

	result := InitResult{Failed: make(map[int]error)}
	seen := make(map[int]bool, len(order))
	for _, idx := range order {
		if seen[idx] {
			continue
		}
		seen[idx] = true

		spec, ok := specs[idx]
		if !ok {
			result.Failed[idx] = &ConfigError{
				Field: "device index", Value: float64(idx), Reason: "no spec supplied",
			}
			continue
		}
		if _, err := r.getOrCreateLocked(idx, spec); err != nil {
			result.Failed[idx] = err
			continue
		}
		result.Opened = append(result.Opened, idx)
	}
	return result
}

// Get returns the PSU registered under deviceIndex, or nil.
func (r *Registry) Get(deviceIndex int) *PSU {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.entries[deviceIndex]
}

// Active returns the registered device indices in ascending order.
func (r *Registry) Active() []int {
	r.mu.Lock()
	defer r.mu.Unlock()

	indices := make([]int, 0, len(r.entries))
	for idx := range r.entries {
		indices = append(indices, idx)
	}
	sort.Ints(indices)
	return indices
}

// Cleanup closes the device registered under deviceIndex and removes
// it. Unknown indices are a no-op.
func (r *Registry) Cleanup(deviceIndex int) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.entries[deviceIndex]
	if !ok {
		return nil
	}
	delete(r.entries, deviceIndex)
	return p.Close()
}

// CleanupAll tears down every registered device, keeping the first
// close error. Intended for process shutdown.
func (r *Registry) CleanupAll() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var first error
	for idx, p := range r.entries {
		if err := p.Close(); err != nil && first == nil {
			first = err
		}
		delete(r.entries, idx)
	}
	return first
}

// Reopen performs the explicit close-then-reopen cycle required to
// recover a Faulted device, preserving its registered Spec. Sibling
// devices are untouched. If the close itself fails the device is left
// unregistered and the close error is returned.
func (r *Registry) Reopen(deviceIndex int) (*PSU, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.entries[deviceIndex]
	if !ok {
		return nil, fmt.Errorf("psu: device %d not registered", deviceIndex)
	}
	spec := p.spec
	delete(r.entries, deviceIndex)
	if cerr := p.Close(); cerr != nil {
		// A failed interface release is the likeliest reason the
		// upcoming claim would fail too; surface it rather than let
		// the reopen report a misleading busy error.
		return nil, fmt.Errorf("psu: reopen device %d: close: %w", deviceIndex, cerr)
	}

	return r.getOrCreateLocked(deviceIndex, spec)
}
