// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Saad Alam

package cmd

import (
	"bufio"
	"fmt"
	"os"
	"sort"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/saad-alam12/hvpsu/pkg/psu"
)

// profile is a named supply with fixed limits and a conventional
// device index on the bus.
type profile struct {
	index int
	spec  psu.Spec
}

var profiles = map[string]profile{
	"heinzinger": {
		index: 0,
		spec:  psu.Spec{MaxVoltage: 30000, MaxCurrent: 2.0, MaxInputVoltage: 10, HasRelay: false},
	},
	"fug": {
		index: 1,
		spec:  psu.Spec{MaxVoltage: 50000, MaxCurrent: 0.5, MaxInputVoltage: 10, HasRelay: true},
	},
}

func profileNames() []string {
	names := make([]string, 0, len(profiles))
	for name := range profiles {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// resolveTarget turns the persistent flags into a device index and
// limit spec. A profile supplies both; explicitly set flags override
// its individual fields.
func resolveTarget(cmd *cobra.Command) (int, psu.Spec, error) {
	index := deviceIndex
	var spec psu.Spec

	if profileName != "" {
		prof, ok := profiles[profileName]
		if !ok {
			return 0, psu.Spec{}, fmt.Errorf("unknown profile %q (have: %s)",
				profileName, strings.Join(profileNames(), ", "))
		}
		spec = prof.spec
		if !cmd.Flags().Changed("device") {
			index = prof.index
		}
		if cmd.Flags().Changed("max-voltage") {
			spec.MaxVoltage = maxVoltage
		}
		if cmd.Flags().Changed("max-current") {
			spec.MaxCurrent = maxCurrent
		}
		if cmd.Flags().Changed("max-input") {
			spec.MaxInputVoltage = maxInput
		}
		if cmd.Flags().Changed("relay") {
			spec.HasRelay = withRelay
		}
		return index, spec, nil
	}

	if maxVoltage <= 0 || maxCurrent <= 0 {
		return 0, psu.Spec{}, fmt.Errorf("either --profile or both --max-voltage and --max-current are required")
	}
	spec = psu.Spec{
		MaxVoltage:      maxVoltage,
		MaxCurrent:      maxCurrent,
		MaxInputVoltage: maxInput,
		HasRelay:        withRelay,
	}
	return index, spec, nil
}

func busConfig() psu.Config {
	cfg := psu.Config{Timeout: busTimeout}
	if verbose {
		cfg.Verbose = true
		cfg.Output = os.Stderr
	}
	return cfg
}

// openTarget opens the device selected by the persistent flags. The
// returned cleanup closes it and must run before process exit so the
// interface is released.
func openTarget(cmd *cobra.Command) (*psu.PSU, func(), error) {
	index, spec, err := resolveTarget(cmd)
	if err != nil {
		return nil, nil, err
	}

	reg := psu.NewRegistry(busConfig(), nil)
	p, err := reg.GetOrCreate(index, spec)
	if err != nil {
		return nil, nil, fmt.Errorf("open device %d: %w", index, err)
	}
	return p, func() { reg.CleanupAll() }, nil
}

// GetPassword retrieves a password from the environment or prompts for it
func GetPassword() (string, error) {
	if pw := os.Getenv("HVPSU_PASSWORD"); pw != "" {
		return pw, nil
	}

	fmt.Fprint(os.Stderr, "Password: ")

	passwordBytes, err := term.ReadPassword(int(syscall.Stdin))
	if err != nil {
		// Fallback to regular input if terminal functions fail
		reader := bufio.NewReader(os.Stdin)
		password, err := reader.ReadString('\n')
		if err != nil {
			return "", fmt.Errorf("failed to read password: %v", err)
		}
		fmt.Fprintln(os.Stderr)
		return strings.TrimSpace(password), nil
	}

	fmt.Fprintln(os.Stderr)
	return string(passwordBytes), nil
}
