// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Saad Alam

package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var relayCmd = &cobra.Command{
	Use:   "relay",
	Short: "Switch or query the output relay",
	Long: `Switch the supply's output relay, or show its last reported state.

Supplies without an output relay (e.g. the heinzinger profile) refuse
these commands.`,
}

var relayOnCmd = &cobra.Command{
	Use:   "on",
	Short: "Close the output relay",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		p, cleanup, err := openTarget(cmd)
		if err != nil {
			return err
		}
		defer cleanup()

		if err := p.SwitchOn(); err != nil {
			return err
		}
		fmt.Printf("Device %d: relay on\n", p.DeviceIndex())
		return nil
	},
}

var relayOffCmd = &cobra.Command{
	Use:   "off",
	Short: "Open the output relay",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		p, cleanup, err := openTarget(cmd)
		if err != nil {
			return err
		}
		defer cleanup()

		if err := p.SwitchOff(); err != nil {
			return err
		}
		fmt.Printf("Device %d: relay off\n", p.DeviceIndex())
		return nil
	},
}

var relayStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the relay state reported by the board",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		p, cleanup, err := openTarget(cmd)
		if err != nil {
			return err
		}
		defer cleanup()

		// A readout refreshes the frame cache with the board's view.
		if _, _, err := p.ReadADC(); err != nil {
			return err
		}
		state := "off"
		if frame := p.LastFrame(); frame != nil && frame.RelayOn() {
			state = "on"
		}
		fmt.Printf("Device %d: relay %s\n", p.DeviceIndex(), state)
		return nil
	},
}

func init() {
	relayCmd.AddCommand(relayOnCmd)
	relayCmd.AddCommand(relayOffCmd)
	relayCmd.AddCommand(relayStatusCmd)
	rootCmd.AddCommand(relayCmd)
}
