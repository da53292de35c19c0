// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Saad Alam

package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/saad-alam12/hvpsu/pkg/anapsu"
	"github.com/saad-alam12/hvpsu/pkg/usbbulk"
)

var devicesCmd = &cobra.Command{
	Use:   "devices",
	Short: "List connected interface boards",
	Long: `List all USB interface boards matching the supply controller's
vendor and product ID, in enumeration order. The printed ordinal is the
value to pass as --device.`,
	Args: cobra.NoArgs,
	RunE: runDevices,
}

func init() {
	rootCmd.AddCommand(devicesCmd)
}

func runDevices(cmd *cobra.Command, args []string) error {
	infos, err := usbbulk.ListDevices(anapsu.VendorID, anapsu.ProductID)
	if err != nil {
		return err
	}
	if len(infos) == 0 {
		fmt.Printf("No devices matching %04X:%04X\n", anapsu.VendorID, anapsu.ProductID)
		return nil
	}
	for _, info := range infos {
		fmt.Println(info)
	}
	return nil
}
