// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Saad Alam

package psu

import (
	"io"
	"os"
	"time"

	"github.com/saad-alam12/hvpsu/pkg/usbbulk"
)

// Config carries the process-wide knobs that used to be globals in
// earlier incarnations of this system: verbosity and where verbose
// output goes, plus the transfer timeout. The Registry owns a Config
// and hands it to every PSU it constructs.
type Config struct {
	// Verbose enables frame-level dumps of every exchange.
	Verbose bool

	// Output receives verbose dumps. Defaults to os.Stdout.
	Output io.Writer

	// Timeout bounds each bulk transfer attempt.
	// Defaults to usbbulk.DefaultTimeout.
	Timeout time.Duration
}

func (c Config) withDefaults() Config {
	if c.Output == nil {
		c.Output = os.Stdout
	}
	if c.Timeout == 0 {
		c.Timeout = usbbulk.DefaultTimeout
	}
	return c
}
