// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Saad Alam

package cmd

import (
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/saad-alam12/hvpsu/pkg/psu"
)

var monitorInterval time.Duration

var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Interactive TUI for live supply control",
	Long: `Monitor and control a supply via an interactive terminal UI.

The readback panel refreshes continuously. The command line at the
bottom accepts:

  v <volts>       set the voltage setpoint
  c <milliamps>   set the current setpoint
  on / off        switch the output relay
  q               quit (the relay state is left as-is)`,
	RunE: runMonitor,
}

func init() {
	monitorCmd.Flags().DurationVar(&monitorInterval, "interval", 500*time.Millisecond, "Readback refresh interval")
	rootCmd.AddCommand(monitorCmd)
}

func runMonitor(cmd *cobra.Command, args []string) error {
	p, cleanup, err := openTarget(cmd)
	if err != nil {
		return err
	}
	defer cleanup()

	m := initialMonitorModel(p)
	if _, err := tea.NewProgram(m, tea.WithAltScreen()).Run(); err != nil {
		return fmt.Errorf("TUI error: %v", err)
	}
	return nil
}

// monitorLogEntry mirrors an event line in the log panel
type monitorLogEntry struct {
	timestamp time.Time
	message   string
	isError   bool
}

type monitorSample struct {
	timestamp time.Time
	voltage   float64
	current   float64
	relayOn   bool
	err       error
}

// Messages
type monitorTickMsg time.Time
type monitorSampleMsg monitorSample
type monitorCmdMsg struct {
	message string
	isError bool
}

// monitorModel drives the TUI. All device access goes through the
// mutex: bubbletea runs commands on their own goroutines and the PSU
// handle is not safe for concurrent use.
type monitorModel struct {
	mu *sync.Mutex
	p  *psu.PSU

	input         textinput.Model
	lastSample    *monitorSample
	log           []monitorLogEntry
	maxLogEntries int
	width         int
	height        int
	quitting      bool
}

func initialMonitorModel(p *psu.PSU) monitorModel {
	input := textinput.New()
	input.Placeholder = "v 5000 | c 0.5 | on | off | q"
	input.Prompt = "> "
	input.Focus()

	return monitorModel{
		mu:            &sync.Mutex{},
		p:             p,
		input:         input,
		log:           make([]monitorLogEntry, 0),
		maxLogEntries: 100,
		width:         80,
		height:        24,
	}
}

func (m monitorModel) Init() tea.Cmd {
	return tea.Batch(
		m.sampleCmd(),
		textinput.Blink,
		tea.EnterAltScreen,
	)
}

// sampleCmd reads both monitor channels off the bus.
func (m monitorModel) sampleCmd() tea.Cmd {
	mu, p := m.mu, m.p
	return tea.Tick(monitorInterval, func(t time.Time) tea.Msg {
		mu.Lock()
		defer mu.Unlock()

		sample := monitorSample{timestamp: t, relayOn: p.IsRelayOn()}
		v, err := p.ReadVoltage()
		if err != nil {
			sample.err = err
			return monitorSampleMsg(sample)
		}
		c, err := p.ReadCurrent()
		if err != nil {
			sample.err = err
			return monitorSampleMsg(sample)
		}
		sample.voltage = v
		sample.current = c
		return monitorSampleMsg(sample)
	})
}

// execCmd runs one command-line entry against the device.
func (m monitorModel) execCmd(line string) tea.Cmd {
	mu, p := m.mu, m.p
	return func() tea.Msg {
		fields := strings.Fields(line)
		if len(fields) == 0 {
			return nil
		}

		mu.Lock()
		defer mu.Unlock()

		switch fields[0] {
		case "v":
			if len(fields) != 2 {
				return monitorCmdMsg{message: "usage: v <volts>", isError: true}
			}
			v, err := strconv.ParseFloat(fields[1], 64)
			if err != nil {
				return monitorCmdMsg{message: fmt.Sprintf("bad voltage %q", fields[1]), isError: true}
			}
			if err := p.SetVoltage(v); err != nil {
				return monitorCmdMsg{message: err.Error(), isError: true}
			}
			return monitorCmdMsg{message: "voltage setpoint " + formatVolts(v)}
		case "c":
			if len(fields) != 2 {
				return monitorCmdMsg{message: "usage: c <milliamps>", isError: true}
			}
			c, err := strconv.ParseFloat(fields[1], 64)
			if err != nil {
				return monitorCmdMsg{message: fmt.Sprintf("bad current %q", fields[1]), isError: true}
			}
			if err := p.SetCurrent(c); err != nil {
				return monitorCmdMsg{message: err.Error(), isError: true}
			}
			return monitorCmdMsg{message: fmt.Sprintf("current setpoint %.3f mA", c)}
		case "on":
			if err := p.SwitchOn(); err != nil {
				return monitorCmdMsg{message: err.Error(), isError: true}
			}
			return monitorCmdMsg{message: "relay on"}
		case "off":
			if err := p.SwitchOff(); err != nil {
				return monitorCmdMsg{message: err.Error(), isError: true}
			}
			return monitorCmdMsg{message: "relay off"}
		default:
			return monitorCmdMsg{message: fmt.Sprintf("unknown command %q", fields[0]), isError: true}
		}
	}
}

func (m monitorModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c":
			m.quitting = true
			return m, tea.Quit
		case "enter":
			line := strings.TrimSpace(m.input.Value())
			m.input.Reset()
			if line == "q" || line == "quit" {
				m.quitting = true
				return m, tea.Quit
			}
			if line != "" {
				return m, m.execCmd(line)
			}
			return m, nil
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case monitorSampleMsg:
		sample := monitorSample(msg)
		m.lastSample = &sample
		if sample.err != nil {
			m.addLogEntry(sample.err.Error(), true)
		}
		return m, m.sampleCmd()

	case monitorCmdMsg:
		m.addLogEntry(msg.message, msg.isError)
		return m, nil
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m *monitorModel) addLogEntry(message string, isError bool) {
	m.log = append(m.log, monitorLogEntry{
		timestamp: time.Now(),
		message:   message,
		isError:   isError,
	})
	if len(m.log) > m.maxLogEntries {
		m.log = m.log[len(m.log)-m.maxLogEntries:]
	}
}

func (m monitorModel) View() string {
	if m.quitting {
		return "Shutting down...\n"
	}

	titleStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("12")).
		Background(lipgloss.Color("235")).
		Padding(0, 1)

	headerStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("241"))

	labelStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("12")).
		Bold(true)

	valueStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("10"))

	errorStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("9")).
		Bold(true)

	warningStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("11"))

	boxStyle := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("240")).
		Padding(0, 1)

	spec := m.p.Spec()

	var s strings.Builder
	s.WriteString(titleStyle.Render("HVPSU MONITOR"))
	s.WriteString("\n")
	s.WriteString(headerStyle.Render(fmt.Sprintf(
		"Device %d | %s / %.1f mA max | Relay: %s | State: %s",
		m.p.DeviceIndex(), formatVolts(spec.MaxVoltage), spec.MaxCurrent,
		func() string {
			if spec.HasRelay {
				return "yes"
			}
			return "no"
		}(), m.p.State())))
	s.WriteString("\n\n")

	// Readback panel
	readback := strings.Builder{}
	if m.lastSample == nil {
		readback.WriteString(warningStyle.Render("Waiting for first readout..."))
	} else if m.lastSample.err != nil {
		readback.WriteString(errorStyle.Render("READOUT FAILED"))
		readback.WriteString("\n")
		readback.WriteString(headerStyle.Render(m.lastSample.err.Error()))
	} else {
		readback.WriteString(fmt.Sprintf("%s %s   %s %s\n",
			labelStyle.Render("Voltage:"), valueStyle.Render(formatVolts(m.lastSample.voltage)),
			labelStyle.Render("Current:"), valueStyle.Render(fmt.Sprintf("%.3f mA", m.lastSample.current)),
		))
		readback.WriteString(fmt.Sprintf("%s %s   %s %s   %s %s",
			labelStyle.Render("Set V:"), valueStyle.Render(formatVolts(m.p.SetpointVoltage())),
			labelStyle.Render("Set C:"), valueStyle.Render(fmt.Sprintf("%.3f mA", m.p.SetpointCurrent())),
			labelStyle.Render("Relay:"), func() string {
				if m.lastSample.relayOn {
					return valueStyle.Render("ON")
				}
				return headerStyle.Render("off")
			}(),
		))
	}
	s.WriteString(boxStyle.Render(readback.String()))
	s.WriteString("\n\n")

	// Event log
	s.WriteString(labelStyle.Render("Recent Events:"))
	s.WriteString("\n")

	logHeight := m.height - 14
	if logHeight < 5 {
		logHeight = 5
	}
	startIdx := len(m.log) - logHeight
	if startIdx < 0 {
		startIdx = 0
	}

	logContent := strings.Builder{}
	if len(m.log) == 0 {
		logContent.WriteString(headerStyle.Render("  (no events yet)"))
	} else {
		for i := startIdx; i < len(m.log); i++ {
			entry := m.log[i]
			timestamp := entry.timestamp.Format("15:04:05.000")
			if entry.isError {
				logContent.WriteString(fmt.Sprintf("%s %s\n",
					headerStyle.Render(timestamp),
					errorStyle.Render("✗ "+entry.message)))
			} else {
				logContent.WriteString(fmt.Sprintf("%s %s\n",
					headerStyle.Render(timestamp),
					valueStyle.Render("✓ "+entry.message)))
			}
		}
	}
	s.WriteString(boxStyle.Width(m.width - 4).Render(logContent.String()))
	s.WriteString("\n")

	s.WriteString(m.input.View())
	return s.String()
}
