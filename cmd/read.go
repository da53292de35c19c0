// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Saad Alam

package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/saad-alam12/hvpsu/pkg/psu"
)

var (
	readWatch    bool
	readInterval time.Duration
	readRaw      bool
)

var readCmd = &cobra.Command{
	Use:   "read [voltage|current|all]",
	Short: "Read back the supply output",
	Long: `Read the monitor channels of a supply.

With no argument both voltage and current are read. --watch repeats the
readout until interrupted; --raw prints ADC codes instead of physical
units.`,
	Args:      cobra.MaximumNArgs(1),
	ValidArgs: []string{"voltage", "current", "all"},
	RunE:      runRead,
}

func init() {
	readCmd.Flags().BoolVarP(&readWatch, "watch", "w", false, "Repeat until interrupted")
	readCmd.Flags().DurationVar(&readInterval, "interval", time.Second, "Delay between readouts with --watch")
	readCmd.Flags().BoolVar(&readRaw, "raw", false, "Print raw ADC codes")
	rootCmd.AddCommand(readCmd)
}

func runRead(cmd *cobra.Command, args []string) error {
	what := "all"
	if len(args) == 1 {
		what = args[0]
	}

	p, cleanup, err := openTarget(cmd)
	if err != nil {
		return err
	}
	defer cleanup()

	if !readWatch {
		return readOnce(p, what)
	}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sig)

	ticker := time.NewTicker(readInterval)
	defer ticker.Stop()

	for {
		if err := readOnce(p, what); err != nil {
			return err
		}
		select {
		case <-sig:
			fmt.Println()
			return nil
		case <-ticker.C:
		}
	}
}

func readOnce(p *psu.PSU, what string) error {
	if readRaw {
		adcA, adcB, err := p.ReadADC()
		if err != nil {
			return err
		}
		fmt.Printf("%s  ADCA %6d %6d %6d %6d  ADCB %5d %5d %5d %5d\n",
			time.Now().Format("15:04:05.000"),
			adcA[0], adcA[1], adcA[2], adcA[3],
			adcB[0], adcB[1], adcB[2], adcB[3])
		return nil
	}

	switch what {
	case "voltage":
		v, err := p.ReadVoltage()
		if err != nil {
			return err
		}
		fmt.Printf("%s  %s\n", time.Now().Format("15:04:05.000"), formatVolts(v))
	case "current":
		c, err := p.ReadCurrent()
		if err != nil {
			return err
		}
		fmt.Printf("%s  %.3f mA\n", time.Now().Format("15:04:05.000"), c)
	default:
		v, err := p.ReadVoltage()
		if err != nil {
			return err
		}
		c, err := p.ReadCurrent()
		if err != nil {
			return err
		}
		fmt.Printf("%s  %s\n", time.Now().Format("15:04:05.000"), formatReadback(v, c))
	}
	return nil
}
