// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Saad Alam

package cmd

import (
	"time"

	"github.com/spf13/cobra"
)

var (
	// Device selection flags
	deviceIndex int
	profileName string

	// Safety limit flags, overriding or replacing a profile
	maxVoltage float64
	maxCurrent float64
	maxInput   float64
	withRelay  bool

	verbose    bool
	busTimeout time.Duration
)

var rootCmd = &cobra.Command{
	Use:   "hvpsu",
	Short: "High-voltage power supply control",
	Long: `hvpsu drives analog high-voltage power supplies through their USB
interface boards: 16-bit voltage and current setpoints, monitor channel
readback, and output relay switching.

Device selection:
  --profile heinzinger|fug      named supply (fixed limits and index)
  --device N                    N-th matching board in enumeration order

Without a profile, --max-voltage and --max-current are required; all
setpoints are validated against these limits before anything reaches
the bus.`,
	Version: "1.0.0",
}

func init() {
	rootCmd.PersistentFlags().IntVarP(&deviceIndex, "device", "d", 0, "Device index (enumeration order)")
	rootCmd.PersistentFlags().StringVarP(&profileName, "profile", "P", "", "Named supply profile (heinzinger, fug)")
	rootCmd.PersistentFlags().Float64Var(&maxVoltage, "max-voltage", 0, "Maximum output voltage in volts")
	rootCmd.PersistentFlags().Float64Var(&maxCurrent, "max-current", 0, "Maximum output current in milliamps")
	rootCmd.PersistentFlags().Float64Var(&maxInput, "max-input", 10.0, "Programming input range of the supply in volts")
	rootCmd.PersistentFlags().BoolVar(&withRelay, "relay", false, "Supply has an output relay")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Dump wire frames for every exchange")
	rootCmd.PersistentFlags().DurationVar(&busTimeout, "timeout", 0, "Bulk transfer timeout (0 = default)")
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}
