// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Saad Alam
//
// hvpsu - High-voltage power supply control
//
// Drives analog high-voltage supplies through their USB interface
// boards: setpoints, monitor readback, and output relay switching.

package main

import (
	"fmt"
	"os"

	"github.com/saad-alam12/hvpsu/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
