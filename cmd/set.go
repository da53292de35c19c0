// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Saad Alam

package cmd

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

var setCmd = &cobra.Command{
	Use:   "set",
	Short: "Program a setpoint",
	Long: `Program the voltage or current setpoint of a supply.

Values are physical units (volts, milliamps) and are validated against
the device limits before any frame is sent. The literal value "max"
drives the DAC to full scale regardless of the configured limit.`,
}

var setVoltageCmd = &cobra.Command{
	Use:   "voltage <volts>",
	Short: "Set the output voltage",
	Args:  cobra.ExactArgs(1),
	RunE:  runSetVoltage,
}

var setCurrentCmd = &cobra.Command{
	Use:   "current <milliamps>",
	Short: "Set the output current limit",
	Args:  cobra.ExactArgs(1),
	RunE:  runSetCurrent,
}

func init() {
	setCmd.AddCommand(setVoltageCmd)
	setCmd.AddCommand(setCurrentCmd)
	rootCmd.AddCommand(setCmd)
}

func runSetVoltage(cmd *cobra.Command, args []string) error {
	p, cleanup, err := openTarget(cmd)
	if err != nil {
		return err
	}
	defer cleanup()

	if args[0] == "max" {
		if err := p.SetMaxVoltage(); err != nil {
			return err
		}
		fmt.Printf("Device %d: voltage DAC at full scale\n", p.DeviceIndex())
		return nil
	}

	v, err := strconv.ParseFloat(args[0], 64)
	if err != nil {
		return fmt.Errorf("invalid voltage %q: %v", args[0], err)
	}
	if err := p.SetVoltage(v); err != nil {
		return err
	}
	fmt.Printf("Device %d: voltage setpoint %s\n", p.DeviceIndex(), formatVolts(v))
	return nil
}

func runSetCurrent(cmd *cobra.Command, args []string) error {
	p, cleanup, err := openTarget(cmd)
	if err != nil {
		return err
	}
	defer cleanup()

	if args[0] == "max" {
		if err := p.SetMaxCurrent(); err != nil {
			return err
		}
		fmt.Printf("Device %d: current DAC at full scale\n", p.DeviceIndex())
		return nil
	}

	mA, err := strconv.ParseFloat(args[0], 64)
	if err != nil {
		return fmt.Errorf("invalid current %q: %v", args[0], err)
	}
	if err := p.SetCurrent(mA); err != nil {
		return err
	}
	fmt.Printf("Device %d: current setpoint %.3f mA\n", p.DeviceIndex(), mA)
	return nil
}

func formatVolts(v float64) string {
	if v >= 1000 {
		return fmt.Sprintf("%.2f kV", v/1000)
	}
	return fmt.Sprintf("%.1f V", v)
}

func formatReadback(voltage, current float64) string {
	return fmt.Sprintf("%s  %.3f mA", formatVolts(voltage), current)
}
