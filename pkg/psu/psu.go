// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Saad Alam

// Package psu controls high-voltage laboratory power supplies driven
// through the analog PSU interface board: unit conversion between
// physical values and 16-bit converter codes, per-device safety-limit
// enforcement, and a process-wide registry resolving logical device
// indices to open instances.
//
// The package does no internal locking on PSU instances. Each PSU is
// exclusively owned by one goroutine at a time; callers sharing one
// must guard it with their own per-device mutex. The Registry, being
// the process-wide shared structure, synchronizes itself.
package psu

import (
	"fmt"
	"time"

	"github.com/saad-alam12/hvpsu/pkg/anapsu"
)

// Transport is the blocking bulk channel to one interface board.
// *usbbulk.Device implements it; tests substitute fakes.
type Transport interface {
	WriteBulk(p []byte, timeout time.Duration) (int, error)
	ReadBulk(p []byte, timeout time.Duration) (int, error)
	Close() error
}

// Spec fixes a PSU's physical limits and capabilities. All fields are
// immutable after construction.
type Spec struct {
	MaxVoltage      float64 // volts, full scale of the supply
	MaxCurrent      float64 // milliamps, full scale of the supply
	MaxInputVoltage float64 // volts, the supply's programming input range
	HasRelay        bool    // output relay present on this model
}

// State is the PSU lifecycle state.
type State int

const (
	StateUninitialized State = iota
	StateReady
	StateFaulted
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "UNINITIALIZED"
	case StateReady:
		return "READY"
	case StateFaulted:
		return "FAULTED"
	default:
		return fmt.Sprintf("STATE(%d)", int(s))
	}
}

// PSU is one controlled supply. Cached setpoints reflect the last
// successfully written command, not hardware-confirmed state; only
// ReadVoltage/ReadCurrent report measured reality.
type PSU struct {
	deviceIndex int
	transport   Transport
	spec        Spec
	cfg         Config

	state     State
	setVolt   float64
	setCurr   float64
	relayOn   bool
	lastFrame *anapsu.Frame
}

// New validates spec, then brings the device to Ready by zeroing both
// DAC channels, so a freshly opened channel never holds a stale
// setpoint from a previous owner. The transport is not closed on
// error; it stays with the caller.
func New(deviceIndex int, t Transport, spec Spec, cfg Config) (*PSU, error) {
	if spec.MaxVoltage <= 0 {
		return nil, &ConfigError{Field: "max voltage", Value: spec.MaxVoltage, Reason: "must be positive"}
	}
	if spec.MaxCurrent <= 0 {
		return nil, &ConfigError{Field: "max current", Value: spec.MaxCurrent, Reason: "must be positive"}
	}
	if spec.MaxInputVoltage <= 0 {
		return nil, &ConfigError{Field: "max input voltage", Value: spec.MaxInputVoltage, Reason: "must be positive"}
	}
	if spec.MaxInputVoltage > DACFullScale {
		return nil, &ConfigError{
			Field: "max input voltage", Value: spec.MaxInputVoltage,
			Reason: fmt.Sprintf("board DAC output tops out at %g V", DACFullScale),
		}
	}

	p := &PSU{
		deviceIndex: deviceIndex,
		transport:   t,
		spec:        spec,
		cfg:         cfg.withDefaults(),
		state:       StateUninitialized,
	}

	// Defensive zero-output default.
	if _, err := p.query(anapsu.NewSetDACA(0), "init voltage 0"); err != nil {
		return nil, err
	}
	if _, err := p.query(anapsu.NewSetDACB(0), "init current 0"); err != nil {
		return nil, err
	}
	p.state = StateReady
	return p, nil
}

// DeviceIndex returns the logical index this PSU was registered under.
func (p *PSU) DeviceIndex() int { return p.deviceIndex }

// Spec returns the limits the PSU was constructed with.
func (p *PSU) Spec() Spec { return p.spec }

// State returns the current lifecycle state.
func (p *PSU) State() State { return p.state }

// SetVoltage commands a new voltage setpoint in volts. Bounds are
// re-validated on every call; out-of-range values are rejected before
// any transport activity. A transport failure faults the device.
func (p *PSU) SetVoltage(v float64) error {
	if err := p.ready(); err != nil {
		return err
	}
	// Inverted form so NaN fails the check rather than both comparisons.
	if !(v >= 0 && v <= p.spec.MaxVoltage) {
		return &OutOfRangeError{Quantity: "voltage", Value: v, Max: p.spec.MaxVoltage}
	}

	code := VoltsToCode(v, p.spec.MaxVoltage, p.spec.MaxInputVoltage, DACFullScale)
	if _, err := p.query(anapsu.NewSetDACA(code), fmt.Sprintf("set_voltage %g V", v)); err != nil {
		return err
	}
	p.setVolt = v
	return nil
}

// SetCurrent commands a new current setpoint in milliamps, symmetric
// to SetVoltage over MaxCurrent.
func (p *PSU) SetCurrent(mA float64) error {
	if err := p.ready(); err != nil {
		return err
	}
	if !(mA >= 0 && mA <= p.spec.MaxCurrent) {
		return &OutOfRangeError{Quantity: "current", Value: mA, Max: p.spec.MaxCurrent}
	}

	code := VoltsToCode(mA, p.spec.MaxCurrent, p.spec.MaxInputVoltage, DACFullScale)
	if _, err := p.query(anapsu.NewSetDACB(code), fmt.Sprintf("set_current %g mA", mA)); err != nil {
		return err
	}
	p.setCurr = mA
	return nil
}

// SetMaxVoltage drives the voltage DAC to full scale. Maintenance
// operation; the resulting output depends on the supply's response to
// an overdriven programming input.
func (p *PSU) SetMaxVoltage() error {
	if err := p.ready(); err != nil {
		return err
	}
	if _, err := p.query(anapsu.NewSetDACA(CodeMax), "set_voltage full scale"); err != nil {
		return err
	}
	p.setVolt = CodeToVolts(CodeMax, p.spec.MaxVoltage, p.spec.MaxInputVoltage, DACFullScale)
	return nil
}

// SetMaxCurrent drives the current DAC to full scale.
func (p *PSU) SetMaxCurrent() error {
	if err := p.ready(); err != nil {
		return err
	}
	if _, err := p.query(anapsu.NewSetDACB(CodeMax), "set_current full scale"); err != nil {
		return err
	}
	p.setCurr = CodeToVolts(CodeMax, p.spec.MaxCurrent, p.spec.MaxInputVoltage, DACFullScale)
	return nil
}

// SwitchOn closes the output relay. Fails with ErrNoRelay on
// relay-incapable models.
func (p *PSU) SwitchOn() error {
	return p.switchRelay(true)
}

// SwitchOff opens the output relay. Fails with ErrNoRelay on
// relay-incapable models.
func (p *PSU) SwitchOff() error {
	return p.switchRelay(false)
}

func (p *PSU) switchRelay(on bool) error {
	if err := p.ready(); err != nil {
		return err
	}
	if !p.spec.HasRelay {
		return fmt.Errorf("%w (device %d)", ErrNoRelay, p.deviceIndex)
	}
	if _, err := p.query(anapsu.NewSetRelay(on), fmt.Sprintf("set_relay %v", on)); err != nil {
		return err
	}
	p.relayOn = on
	return nil
}

// ReadVoltage performs a fresh ADC readout and returns the measured
// output voltage in volts. The result is independent of any cached
// setpoint; this is the only source of hardware truth for voltage.
func (p *PSU) ReadVoltage() (float64, error) {
	f, err := p.readout("read_voltage")
	if err != nil {
		return 0, err
	}
	code := f.ADCB[anapsu.ADCVoltageMonitor]
	return CodeToVolts(code, p.spec.MaxVoltage, MonitorSpan, ADCFullScale), nil
}

// ReadCurrent performs a fresh ADC readout and returns the measured
// output current in milliamps.
func (p *PSU) ReadCurrent() (float64, error) {
	f, err := p.readout("read_current")
	if err != nil {
		return 0, err
	}
	code := f.ADCB[anapsu.ADCCurrentMonitor]
	return CodeToVolts(code, p.spec.MaxCurrent, MonitorSpan, ADCFullScale), nil
}

// ReadADC performs a readout and returns both raw ADC banks.
func (p *PSU) ReadADC() ([4]int16, [4]uint16, error) {
	f, err := p.readout("read_adc")
	if err != nil {
		return [4]int16{}, [4]uint16{}, err
	}
	return f.ADCA, f.ADCB, nil
}

func (p *PSU) readout(op string) (*anapsu.Frame, error) {
	if err := p.ready(); err != nil {
		return nil, err
	}
	return p.query(anapsu.NewReadout(), op)
}

// IsRelayOn reports the cached relay state: the last successfully
// commanded position, optimistic and never re-confirmed against the
// board. Meaningful only for relay-capable models.
func (p *PSU) IsRelayOn() bool { return p.relayOn }

// SetpointVoltage returns the last successfully commanded voltage in
// volts. Commanded, not measured; see ReadVoltage.
func (p *PSU) SetpointVoltage() float64 { return p.setVolt }

// SetpointCurrent returns the last successfully commanded current in
// milliamps. Commanded, not measured; see ReadCurrent.
func (p *PSU) SetpointCurrent() float64 { return p.setCurr }

// LastFrame returns the most recent valid response frame, or nil
// before the first exchange. Diagnostic use only.
func (p *PSU) LastFrame() *anapsu.Frame { return p.lastFrame }

func (p *PSU) ready() error {
	switch {
	case p.transport == nil:
		return fmt.Errorf("%w (device %d)", ErrClosed, p.deviceIndex)
	case p.state == StateFaulted:
		return fmt.Errorf("%w (device %d)", ErrDeviceFaulted, p.deviceIndex)
	default:
		return nil
	}
}

// query performs one command/response exchange. Transport failures
// transition the PSU to Faulted; decode failures and device error
// words do not (the channel itself is still usable and the caller may
// retry the operation).
func (p *PSU) query(cmd *anapsu.Frame, op string) (*anapsu.Frame, error) {
	out := cmd.Encode()
	if p.cfg.Verbose {
		fmt.Fprintf(p.cfg.Output, "device %d -> %s\n%s", p.deviceIndex, anapsu.FormatBytes(out), anapsu.FormatFrame(cmd))
	}

	if _, err := p.transport.WriteBulk(out, p.cfg.Timeout); err != nil {
		p.state = StateFaulted
		return nil, &HardwareError{DeviceIndex: p.deviceIndex, Op: op, Cause: err}
	}

	in := make([]byte, anapsu.FrameSize)
	if _, err := p.transport.ReadBulk(in, p.cfg.Timeout); err != nil {
		p.state = StateFaulted
		return nil, &HardwareError{DeviceIndex: p.deviceIndex, Op: op, Cause: err}
	}

	resp, err := anapsu.DecodeFrame(in)
	if err != nil {
		return nil, &HardwareError{DeviceIndex: p.deviceIndex, Op: op, Cause: err}
	}
	if p.cfg.Verbose {
		fmt.Fprintf(p.cfg.Output, "device %d <- %s\n%s", p.deviceIndex, anapsu.FormatBytes(in), anapsu.FormatFrame(resp))
	}
	if !resp.OK() {
		return nil, &HardwareError{
			DeviceIndex: p.deviceIndex, Op: op,
			Cause: &anapsu.DeviceError{Response: resp.Response},
		}
	}

	p.lastFrame = resp
	return resp, nil
}

// Close releases the underlying transport. The instance is unusable
// afterwards; obtain a fresh one through the Registry.
func (p *PSU) Close() error {
	if p.transport == nil {
		return nil
	}
	err := p.transport.Close()
	p.transport = nil
	p.state = StateUninitialized
	return err
}
