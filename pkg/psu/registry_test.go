// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Saad Alam

package psu

import (
	"errors"
	"testing"
)

// fakeOpener hands out one fakeBoard per device index, counting opens
// and recording the order they were requested in.
type fakeOpener struct {
	specs  map[int]Spec
	boards map[int]*fakeBoard
	opens  map[int]int
	order  []int
	fail   map[int]error
}

func newFakeOpener(specs map[int]Spec) *fakeOpener {
	return &fakeOpener{
		specs:  specs,
		boards: make(map[int]*fakeBoard),
		opens:  make(map[int]int),
		fail:   make(map[int]error),
	}
}

func (o *fakeOpener) open(deviceIndex int) (Transport, error) {
	o.order = append(o.order, deviceIndex)
	if err := o.fail[deviceIndex]; err != nil {
		return nil, err
	}
	o.opens[deviceIndex]++
	board := newFakeBoard(o.specs[deviceIndex])
	o.boards[deviceIndex] = board
	return board, nil
}

func testSpecs() map[int]Spec {
	return map[int]Spec{
		0: heinzingerSpec,
		1: fugSpec,
		2: heinzingerSpec,
	}
}

func TestRegistry_GetOrCreateReturnsSameInstance(t *testing.T) {
	opener := newFakeOpener(testSpecs())
	reg := NewRegistry(Config{}, opener.open)

	first, err := reg.GetOrCreate(0, heinzingerSpec)
	if err != nil {
		t.Fatalf("GetOrCreate: %v", err)
	}
	second, err := reg.GetOrCreate(0, heinzingerSpec)
	if err != nil {
		t.Fatalf("GetOrCreate (repeat): %v", err)
	}
	if first != second {
		t.Error("repeat GetOrCreate returned a different instance")
	}
	if opener.opens[0] != 1 {
		t.Errorf("device opened %d times, want 1", opener.opens[0])
	}
}

func TestRegistry_SpecMismatch(t *testing.T) {
	opener := newFakeOpener(testSpecs())
	reg := NewRegistry(Config{}, opener.open)

	if _, err := reg.GetOrCreate(0, heinzingerSpec); err != nil {
		t.Fatalf("GetOrCreate: %v", err)
	}
	_, err := reg.GetOrCreate(0, fugSpec)
	var mismatch *SpecMismatchError
	if !errors.As(err, &mismatch) {
		t.Fatalf("GetOrCreate with different limits = %v, want *SpecMismatchError", err)
	}
	if mismatch.DeviceIndex != 0 {
		t.Errorf("DeviceIndex = %d, want 0", mismatch.DeviceIndex)
	}
}

func TestRegistry_CleanupLeavesSiblingsRunning(t *testing.T) {
	opener := newFakeOpener(testSpecs())
	reg := NewRegistry(Config{}, opener.open)

	if _, err := reg.GetOrCreate(0, heinzingerSpec); err != nil {
		t.Fatalf("GetOrCreate(0): %v", err)
	}
	p1, err := reg.GetOrCreate(1, fugSpec)
	if err != nil {
		t.Fatalf("GetOrCreate(1): %v", err)
	}

	if err := reg.Cleanup(0); err != nil {
		t.Fatalf("Cleanup(0): %v", err)
	}
	if !opener.boards[0].closed {
		t.Error("device 0 transport not closed")
	}
	if reg.Get(0) != nil {
		t.Error("device 0 still registered after Cleanup")
	}
	if err := p1.SetVoltage(1000); err != nil {
		t.Errorf("device 1 broken by sibling cleanup: %v", err)
	}
}

func TestRegistry_CleanupUnknownIsNoop(t *testing.T) {
	reg := NewRegistry(Config{}, newFakeOpener(testSpecs()).open)
	if err := reg.Cleanup(7); err != nil {
		t.Errorf("Cleanup of unknown index = %v, want nil", err)
	}
}

func TestRegistry_OpenOrdered(t *testing.T) {
	opener := newFakeOpener(testSpecs())
	opener.fail[0] = errors.New("no such device")
	reg := NewRegistry(Config{}, opener.open)

	res := reg.OpenOrdered([]int{2, 0, 1}, testSpecs())

	if res.OK() {
		t.Error("InitResult.OK with a failed device")
	}
	if len(res.Opened) != 2 || res.Opened[0] != 2 || res.Opened[1] != 1 {
		t.Errorf("Opened = %v, want [2 1]", res.Opened)
	}
	if res.Failed[0] == nil {
		t.Error("missing failure record for device 0")
	}
	if len(opener.order) != 3 || opener.order[0] != 2 || opener.order[1] != 0 || opener.order[2] != 1 {
		t.Errorf("open order = %v, want [2 0 1]", opener.order)
	}
	// The survivors are usable.
	for _, idx := range res.Opened {
		if err := reg.Get(idx).SetVoltage(10); err != nil {
			t.Errorf("device %d after partial init: %v", idx, err)
		}
	}
}

func TestRegistry_OpenOrderedDuplicateIndex(t *testing.T) {
	opener := newFakeOpener(testSpecs())
	reg := NewRegistry(Config{}, opener.open)

	res := reg.OpenOrdered([]int{1, 0, 1}, testSpecs())

	if !res.OK() {
		t.Fatalf("OpenOrdered failed: %v", res.Failed)
	}
	if len(res.Opened) != 2 || res.Opened[0] != 1 || res.Opened[1] != 0 {
		t.Errorf("Opened = %v, want [1 0]", res.Opened)
	}
	if opener.opens[1] != 1 {
		t.Errorf("device 1 opened %d times, want 1", opener.opens[1])
	}
}

func TestRegistry_ActiveSorted(t *testing.T) {
	opener := newFakeOpener(testSpecs())
	reg := NewRegistry(Config{}, opener.open)

	for _, idx := range []int{2, 0, 1} {
		if _, err := reg.GetOrCreate(idx, testSpecs()[idx]); err != nil {
			t.Fatalf("GetOrCreate(%d): %v", idx, err)
		}
	}
	active := reg.Active()
	if len(active) != 3 || active[0] != 0 || active[1] != 1 || active[2] != 2 {
		t.Errorf("Active = %v, want [0 1 2]", active)
	}
}

func TestRegistry_CleanupAll(t *testing.T) {
	opener := newFakeOpener(testSpecs())
	reg := NewRegistry(Config{}, opener.open)

	for idx := range testSpecs() {
		if _, err := reg.GetOrCreate(idx, testSpecs()[idx]); err != nil {
			t.Fatalf("GetOrCreate(%d): %v", idx, err)
		}
	}
	if err := reg.CleanupAll(); err != nil {
		t.Fatalf("CleanupAll: %v", err)
	}
	if got := reg.Active(); len(got) != 0 {
		t.Errorf("Active after CleanupAll = %v, want empty", got)
	}
	for idx, board := range opener.boards {
		if !board.closed {
			t.Errorf("device %d transport not closed", idx)
		}
	}
}

func TestRegistry_ReopenRecoversFaultedDevice(t *testing.T) {
	opener := newFakeOpener(testSpecs())
	reg := NewRegistry(Config{}, opener.open)

	p, err := reg.GetOrCreate(1, fugSpec)
	if err != nil {
		t.Fatalf("GetOrCreate: %v", err)
	}
	opener.boards[1].writeErr = errors.New("device gone")
	if err := p.SetVoltage(100); err == nil {
		t.Fatal("SetVoltage succeeded on a dead transport")
	}
	if p.State() != StateFaulted {
		t.Fatalf("state = %v, want %v", p.State(), StateFaulted)
	}

	fresh, err := reg.Reopen(1)
	if err != nil {
		t.Fatalf("Reopen: %v", err)
	}
	if fresh == p {
		t.Error("Reopen returned the faulted instance")
	}
	if fresh.State() != StateReady {
		t.Errorf("state after Reopen = %v, want %v", fresh.State(), StateReady)
	}
	if fresh.Spec() != fugSpec {
		t.Errorf("Reopen changed the device limits: %+v", fresh.Spec())
	}
	if err := fresh.SetVoltage(100); err != nil {
		t.Errorf("SetVoltage after Reopen: %v", err)
	}
	if opener.opens[1] != 2 {
		t.Errorf("device opened %d times, want 2", opener.opens[1])
	}
}

func TestRegistry_ReopenSurfacesCloseFailure(t *testing.T) {
	opener := newFakeOpener(testSpecs())
	reg := NewRegistry(Config{}, opener.open)

	if _, err := reg.GetOrCreate(1, fugSpec); err != nil {
		t.Fatalf("GetOrCreate: %v", err)
	}
	closeErr := errors.New("release stuck")
	opener.boards[1].closeErr = closeErr

	if _, err := reg.Reopen(1); !errors.Is(err, closeErr) {
		t.Fatalf("Reopen = %v, want wrapped close error", err)
	}
	if reg.Get(1) != nil {
		t.Error("device still registered after failed close")
	}
	if opener.opens[1] != 1 {
		t.Errorf("device reopened despite failed close (%d opens)", opener.opens[1])
	}
}
