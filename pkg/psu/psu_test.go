// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Saad Alam

package psu

import (
	"errors"
	"fmt"
	"math"
	"testing"
	"time"

	"github.com/saad-alam12/hvpsu/pkg/anapsu"
)

// fakeBoard emulates an interface board behind the Transport interface.
// It applies command frames to its register state and answers each write
// with a status frame whose monitor channels track the DAC outputs, so
// setpoint and readback stay self-consistent the way a real analog loop
// would keep them.
type fakeBoard struct {
	spec Spec

	daca  uint16
	dacb  uint16
	relay uint8

	seq      uint16
	response int16

	writes int
	reads  int

	pending []byte

	writeErr    error
	readErr     error
	closeErr    error
	corruptNext bool
	closed      bool
}

func newFakeBoard(spec Spec) *fakeBoard {
	return &fakeBoard{spec: spec}
}

func (b *fakeBoard) WriteBulk(p []byte, timeout time.Duration) (int, error) {
	b.writes++
	if b.writeErr != nil {
		return 0, b.writeErr
	}
	cmd, err := anapsu.DecodeFrame(p)
	if err != nil {
		return 0, fmt.Errorf("fake board: bad command: %w", err)
	}
	if cmd.SetMask&anapsu.MaskDACA != 0 {
		b.daca = cmd.DACA
	}
	if cmd.SetMask&anapsu.MaskDACB != 0 {
		b.dacb = cmd.DACB
	}
	if cmd.SetMask&anapsu.MaskRelay != 0 {
		b.relay = cmd.Relay
	}
	b.pending = b.statusFrame()
	if b.corruptNext {
		b.pending[12] ^= 0x40
		b.corruptNext = false
	}
	return len(p), nil
}

func (b *fakeBoard) ReadBulk(p []byte, timeout time.Duration) (int, error) {
	b.reads++
	if b.readErr != nil {
		return 0, b.readErr
	}
	if b.pending == nil {
		return 0, errors.New("fake board: read before write")
	}
	n := copy(p, b.pending)
	return n, nil
}

func (b *fakeBoard) Close() error {
	b.closed = true
	return b.closeErr
}

// statusFrame derives the monitor codes from the current DAC codes: the
// simulated supply output follows its programming input exactly.
func (b *fakeBoard) statusFrame() []byte {
	outV := CodeToVolts(b.daca, b.spec.MaxVoltage, b.spec.MaxInputVoltage, DACFullScale)
	outC := CodeToVolts(b.dacb, b.spec.MaxCurrent, b.spec.MaxInputVoltage, DACFullScale)
	b.seq++
	f := &anapsu.Frame{
		Magic:      anapsu.Magic,
		SequenceNo: b.seq,
		Response:   b.response,
		DACA:       b.daca,
		DACB:       b.dacb,
		Relay:      b.relay,
	}
	f.ADCB[anapsu.ADCVoltageMonitor] = VoltsToCode(outV, b.spec.MaxVoltage, MonitorSpan, ADCFullScale)
	f.ADCB[anapsu.ADCCurrentMonitor] = VoltsToCode(outC, b.spec.MaxCurrent, MonitorSpan, ADCFullScale)
	return f.Encode()
}

var (
	heinzingerSpec = Spec{MaxVoltage: 30000, MaxCurrent: 2.0, MaxInputVoltage: 10, HasRelay: false}
	fugSpec        = Spec{MaxVoltage: 50000, MaxCurrent: 0.5, MaxInputVoltage: 10, HasRelay: true}
)

func mustNew(t *testing.T, board *fakeBoard) *PSU {
	t.Helper()
	p, err := New(0, board, board.spec, Config{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return p
}

func TestNew_RejectsInvalidSpec(t *testing.T) {
	tests := []struct {
		name string
		spec Spec
	}{
		{"zero max voltage", Spec{MaxCurrent: 1, MaxInputVoltage: 10}},
		{"negative max current", Spec{MaxVoltage: 1000, MaxCurrent: -1, MaxInputVoltage: 10}},
		{"zero input range", Spec{MaxVoltage: 1000, MaxCurrent: 1}},
		{"input range beyond DAC", Spec{MaxVoltage: 1000, MaxCurrent: 1, MaxInputVoltage: 12}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			board := newFakeBoard(tt.spec)
			_, err := New(0, board, tt.spec, Config{})
			var cfgErr *ConfigError
			if !errors.As(err, &cfgErr) {
				t.Fatalf("New = %v, want *ConfigError", err)
			}
			if board.writes != 0 {
				t.Errorf("invalid spec reached the transport (%d writes)", board.writes)
			}
		})
	}
}

func TestNew_ZeroesBothOutputs(t *testing.T) {
	board := newFakeBoard(heinzingerSpec)
	board.daca = 0x1234
	board.dacb = 0x5678

	p := mustNew(t, board)

	if board.daca != 0 || board.dacb != 0 {
		t.Errorf("outputs after init: DACA=%d DACB=%d, want 0/0", board.daca, board.dacb)
	}
	if board.writes != 2 {
		t.Errorf("init wrote %d frames, want 2", board.writes)
	}
	if p.State() != StateReady {
		t.Errorf("state = %v, want %v", p.State(), StateReady)
	}
}

func TestSetVoltage_OutOfRange(t *testing.T) {
	board := newFakeBoard(heinzingerSpec)
	p := mustNew(t, board)
	writesAfterInit := board.writes

	for _, v := range []float64{-1, 30000.5, 35000} {
		err := p.SetVoltage(v)
		var rng *OutOfRangeError
		if !errors.As(err, &rng) {
			t.Fatalf("SetVoltage(%g) = %v, want *OutOfRangeError", v, err)
		}
		if rng.Max != heinzingerSpec.MaxVoltage {
			t.Errorf("OutOfRangeError.Max = %g, want %g", rng.Max, heinzingerSpec.MaxVoltage)
		}
	}
	if board.writes != writesAfterInit {
		t.Errorf("rejected setpoints reached the transport (%d extra writes)", board.writes-writesAfterInit)
	}
}

func TestSetpoints_RejectNonFinite(t *testing.T) {
	board := newFakeBoard(fugSpec)
	p := mustNew(t, board)
	writesAfterInit := board.writes

	for _, v := range []float64{math.NaN(), math.Inf(1), math.Inf(-1)} {
		var rng *OutOfRangeError
		if err := p.SetVoltage(v); !errors.As(err, &rng) {
			t.Errorf("SetVoltage(%g) = %v, want *OutOfRangeError", v, err)
		}
		if err := p.SetCurrent(v); !errors.As(err, &rng) {
			t.Errorf("SetCurrent(%g) = %v, want *OutOfRangeError", v, err)
		}
	}
	if board.writes != writesAfterInit {
		t.Errorf("non-finite setpoints reached the transport (%d extra writes)", board.writes-writesAfterInit)
	}
	if p.SetpointVoltage() != 0 || p.SetpointCurrent() != 0 {
		t.Errorf("cached setpoints changed: V=%g C=%g",
			p.SetpointVoltage(), p.SetpointCurrent())
	}
}

func TestSetVoltage_ProgramsConvertedCode(t *testing.T) {
	board := newFakeBoard(heinzingerSpec)
	p := mustNew(t, board)

	if err := p.SetVoltage(5000); err != nil {
		t.Fatalf("SetVoltage: %v", err)
	}
	want := VoltsToCode(5000, heinzingerSpec.MaxVoltage, heinzingerSpec.MaxInputVoltage, DACFullScale)
	if board.daca != want {
		t.Errorf("DACA = %d, want %d", board.daca, want)
	}
	if got := p.SetpointVoltage(); got != 5000 {
		t.Errorf("SetpointVoltage = %g, want 5000", got)
	}
}

func TestSetThenRead_VoltageTracksSetpoint(t *testing.T) {
	board := newFakeBoard(heinzingerSpec)
	p := mustNew(t, board)

	if err := p.SetVoltage(5000); err != nil {
		t.Fatalf("SetVoltage: %v", err)
	}
	got, err := p.ReadVoltage()
	if err != nil {
		t.Fatalf("ReadVoltage: %v", err)
	}
	if math.Abs(got-5000) > 2.0 {
		t.Errorf("ReadVoltage = %g, want within 2 V of 5000", got)
	}
}

func TestSetCurrent_ProgramsConvertedCode(t *testing.T) {
	board := newFakeBoard(fugSpec)
	p := mustNew(t, board)

	if err := p.SetCurrent(0.25); err != nil {
		t.Fatalf("SetCurrent: %v", err)
	}
	want := VoltsToCode(0.25, fugSpec.MaxCurrent, fugSpec.MaxInputVoltage, DACFullScale)
	if board.dacb != want {
		t.Errorf("DACB = %d, want %d", board.dacb, want)
	}
	got, err := p.ReadCurrent()
	if err != nil {
		t.Fatalf("ReadCurrent: %v", err)
	}
	if math.Abs(got-0.25) > 0.001 {
		t.Errorf("ReadCurrent = %g, want ~0.25", got)
	}
}

func TestSetMaxOutputs(t *testing.T) {
	board := newFakeBoard(heinzingerSpec)
	p := mustNew(t, board)

	if err := p.SetMaxVoltage(); err != nil {
		t.Fatalf("SetMaxVoltage: %v", err)
	}
	if err := p.SetMaxCurrent(); err != nil {
		t.Fatalf("SetMaxCurrent: %v", err)
	}
	if board.daca != CodeMax || board.dacb != CodeMax {
		t.Errorf("DACA=%d DACB=%d, want %d/%d", board.daca, board.dacb, CodeMax, CodeMax)
	}
}

func TestRelay_SwitchOnOff(t *testing.T) {
	board := newFakeBoard(fugSpec)
	p := mustNew(t, board)

	if err := p.SwitchOn(); err != nil {
		t.Fatalf("SwitchOn: %v", err)
	}
	if !p.IsRelayOn() || board.relay == 0 {
		t.Error("relay not on after SwitchOn")
	}
	if err := p.SwitchOff(); err != nil {
		t.Fatalf("SwitchOff: %v", err)
	}
	if p.IsRelayOn() || board.relay != 0 {
		t.Error("relay not off after SwitchOff")
	}
}

func TestRelay_Incapable(t *testing.T) {
	board := newFakeBoard(heinzingerSpec)
	p := mustNew(t, board)
	writesAfterInit := board.writes

	if err := p.SwitchOn(); !errors.Is(err, ErrNoRelay) {
		t.Errorf("SwitchOn = %v, want ErrNoRelay", err)
	}
	if err := p.SwitchOff(); !errors.Is(err, ErrNoRelay) {
		t.Errorf("SwitchOff = %v, want ErrNoRelay", err)
	}
	if board.writes != writesAfterInit {
		t.Error("relay commands reached a relay-incapable device")
	}
	// Voltage control still works.
	if err := p.SetVoltage(100); err != nil {
		t.Errorf("SetVoltage after relay refusal: %v", err)
	}
}

func TestTransportFailure_Faults(t *testing.T) {
	board := newFakeBoard(heinzingerSpec)
	p := mustNew(t, board)

	board.writeErr = errors.New("endpoint stalled")
	err := p.SetVoltage(1000)
	var hwErr *HardwareError
	if !errors.As(err, &hwErr) {
		t.Fatalf("SetVoltage = %v, want *HardwareError", err)
	}
	if p.State() != StateFaulted {
		t.Fatalf("state = %v, want %v", p.State(), StateFaulted)
	}

	// Every subsequent operation is refused without touching the bus.
	board.writeErr = nil
	writes := board.writes
	if err := p.SetVoltage(1000); !errors.Is(err, ErrDeviceFaulted) {
		t.Errorf("SetVoltage on faulted = %v, want ErrDeviceFaulted", err)
	}
	if _, err := p.ReadVoltage(); !errors.Is(err, ErrDeviceFaulted) {
		t.Errorf("ReadVoltage on faulted = %v, want ErrDeviceFaulted", err)
	}
	if board.writes != writes {
		t.Error("faulted device still reached the transport")
	}
}

func TestReadFailure_Faults(t *testing.T) {
	board := newFakeBoard(heinzingerSpec)
	p := mustNew(t, board)

	board.readErr = errors.New("transfer timed out")
	if _, err := p.ReadVoltage(); err == nil {
		t.Fatal("ReadVoltage succeeded with failing reads")
	}
	if p.State() != StateFaulted {
		t.Errorf("state = %v, want %v", p.State(), StateFaulted)
	}
}

func TestCorruptedResponse_IsErrorNotValue(t *testing.T) {
	board := newFakeBoard(heinzingerSpec)
	p := mustNew(t, board)

	board.corruptNext = true
	v, err := p.ReadVoltage()
	if err == nil {
		t.Fatalf("ReadVoltage returned %g from a corrupted frame", v)
	}
	var csErr *anapsu.ChecksumError
	if !errors.As(err, &csErr) {
		t.Errorf("error chain %v does not contain *anapsu.ChecksumError", err)
	}
	// A bad frame is not a transport fault; the next exchange recovers.
	if p.State() != StateReady {
		t.Errorf("state = %v, want %v", p.State(), StateReady)
	}
	if _, err := p.ReadVoltage(); err != nil {
		t.Errorf("ReadVoltage after corruption: %v", err)
	}
}

func TestDeviceErrorResponse(t *testing.T) {
	board := newFakeBoard(heinzingerSpec)
	p := mustNew(t, board)

	board.response = 0x0001
	err := p.SetVoltage(100)
	var devErr *anapsu.DeviceError
	if !errors.As(err, &devErr) {
		t.Fatalf("SetVoltage = %v, want *anapsu.DeviceError in chain", err)
	}
	if p.State() != StateReady {
		t.Errorf("device error word faulted the handle")
	}

	// The warm-up word is benign.
	board.response = anapsu.ResponseWarmup
	if err := p.SetVoltage(100); err != nil {
		t.Errorf("SetVoltage with warm-up response: %v", err)
	}
}

func TestReadback_FollowsHardwareNotCache(t *testing.T) {
	board := newFakeBoard(heinzingerSpec)
	p := mustNew(t, board)

	if err := p.SetVoltage(5000); err != nil {
		t.Fatalf("SetVoltage: %v", err)
	}
	// The output collapses behind our back; readback must see it while
	// the cached setpoint keeps its last commanded value.
	board.daca = 0
	got, err := p.ReadVoltage()
	if err != nil {
		t.Fatalf("ReadVoltage: %v", err)
	}
	if got > 1.0 {
		t.Errorf("ReadVoltage = %g, want ~0 after output collapse", got)
	}
	if p.SetpointVoltage() != 5000 {
		t.Errorf("SetpointVoltage = %g, want 5000", p.SetpointVoltage())
	}
}

func TestReadADC(t *testing.T) {
	board := newFakeBoard(fugSpec)
	p := mustNew(t, board)

	if err := p.SetVoltage(25000); err != nil {
		t.Fatalf("SetVoltage: %v", err)
	}
	_, adcB, err := p.ReadADC()
	if err != nil {
		t.Fatalf("ReadADC: %v", err)
	}
	want := VoltsToCode(
		CodeToVolts(board.daca, fugSpec.MaxVoltage, fugSpec.MaxInputVoltage, DACFullScale),
		fugSpec.MaxVoltage, MonitorSpan, ADCFullScale)
	if adcB[anapsu.ADCVoltageMonitor] != want {
		t.Errorf("voltage monitor code = %d, want %d", adcB[anapsu.ADCVoltageMonitor], want)
	}
}

func TestClose(t *testing.T) {
	board := newFakeBoard(heinzingerSpec)
	p := mustNew(t, board)

	if err := p.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if !board.closed {
		t.Error("transport not closed")
	}
	if err := p.SetVoltage(1); !errors.Is(err, ErrClosed) {
		t.Errorf("SetVoltage after Close = %v, want ErrClosed", err)
	}
}
