// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"strings"
	"time"

	"github.com/Thermoquad/nbplink/pkg/bridge"
	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

const (
	ledFrame = 50 * time.Millisecond
	ledRamp  = 0.08 // intensity change per frame while searching
	ledDecay = 0.85 // intensity kept per frame after a flash
	ledIdle  = 0.15
)

// LED colours per indicator mode
const (
	ledBooting   = "11"
	ledSearching = "12"
	ledOK        = "10"
	ledError     = "9"
)

// Event log entry
type logEntry struct {
	timestamp time.Time
	message   string
	isError   bool
}

// statusModel renders the status indicator as an LED intensity bar plus the
// broadcast statistics
type statusModel struct {
	connInfo string
	device   string
	stats    *bridge.Statistics
	snap     bridge.Snapshot

	led       progress.Model
	level     float64
	rampUp    bool
	searching bool
	errors    int

	log           []logEntry
	maxLogEntries int
	width         int
	height        int
	quitting      bool
}

// Messages
type frameMsg time.Time
type eventMsg bridge.Event
type driverDoneMsg struct {
	err error
}

func newStatusModel(connInfo, device string, stats *bridge.Statistics) statusModel {
	led := progress.New(progress.WithSolidFill(ledBooting), progress.WithoutPercentage())
	led.Width = 40
	return statusModel{
		connInfo:      connInfo,
		device:        device,
		stats:         stats,
		snap:          stats.Snapshot(),
		led:           led,
		rampUp:        true,
		maxLogEntries: 100,
		width:         80,
		height:        24,
	}
}

func (m statusModel) Init() tea.Cmd {
	return frameCmd()
}

func frameCmd() tea.Cmd {
	return tea.Tick(ledFrame, func(t time.Time) tea.Msg {
		return frameMsg(t)
	})
}

func (m statusModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			m.quitting = true
			return m, tea.Quit
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case frameMsg:
		m.snap = m.stats.Snapshot()
		m.animate()
		return m, frameCmd()

	case eventMsg:
		m.signal(bridge.Event(msg))

	case driverDoneMsg:
		m.quitting = true
		return m, tea.Quit
	}

	return m, nil
}

// animate advances the LED by one frame
func (m *statusModel) animate() {
	if m.searching {
		if m.rampUp {
			m.level += ledRamp
		} else {
			m.level -= ledRamp
		}
		if m.level >= 1 {
			m.level, m.rampUp = 1, false
		} else if m.level <= 0 {
			m.level, m.rampUp = 0, true
		}
		return
	}
	if m.level > ledIdle {
		m.level = max(ledIdle, m.level*ledDecay)
	}
}

// signal maps a status event onto the LED and the event log
func (m *statusModel) signal(e bridge.Event) {
	switch e {
	case bridge.EventBooting:
		m.searching = false
		m.level = 1
		m.led.FullColor = ledBooting
		m.addLogEntry("Booting radio module", false)

	case bridge.EventSearching:
		if !m.searching {
			m.addLogEntry("Waiting for a client to connect", false)
			m.level, m.rampUp = 0, true
		}
		m.searching = true
		m.led.FullColor = ledSearching

	case bridge.EventSuccess:
		if m.searching {
			m.addLogEntry("Client connected", false)
		}
		if m.errors > 0 {
			m.addLogEntry(fmt.Sprintf("Recovered after %d failed sends", m.errors), false)
		}
		m.searching = false
		m.errors = 0
		m.led.FullColor = ledOK

	case bridge.EventError:
		m.searching = false
		m.errors++
		m.level = 1
		m.led.FullColor = ledError
		if m.errors == 1 {
			m.addLogEntry("Send failed", true)
		}

	case bridge.EventHeartbeat:
		m.level = 1
	}
}

func (m *statusModel) addLogEntry(message string, isError bool) {
	m.log = append(m.log, logEntry{
		timestamp: time.Now(),
		message:   message,
		isError:   isError,
	})

	if len(m.log) > m.maxLogEntries {
		m.log = m.log[len(m.log)-m.maxLogEntries:]
	}
}

// formatElapsed renders d as "1h02m03s" without sub-second noise
func formatElapsed(d time.Duration) string {
	d = d.Truncate(time.Second)
	h := int(d.Hours())
	mins := int(d.Minutes()) % 60
	secs := int(d.Seconds()) % 60
	if h > 0 {
		return fmt.Sprintf("%dh%02dm%02ds", h, mins, secs)
	}
	if mins > 0 {
		return fmt.Sprintf("%dm%02ds", mins, secs)
	}
	return fmt.Sprintf("%ds", secs)
}

func (m statusModel) View() string {
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

	infoStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("11"))

	boxStyle := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("240")).
		Padding(0, 1)

	var s strings.Builder
	s.WriteString(titleStyle.Render("NBPLINK - BROADCAST"))
	s.WriteString("\n")
	s.WriteString(headerStyle.Render(fmt.Sprintf("%s | Device: %s | Press 'q' to quit", m.connInfo, m.device)))
	s.WriteString("\n\n")

	stateStyle := valueStyle
	if m.errors > 0 {
		stateStyle = errorStyle
	} else if m.snap.State != bridge.Connected {
		stateStyle = infoStyle
	}
	s.WriteString(fmt.Sprintf("%s %s  %s\n\n",
		labelStyle.Render("LED"), m.led.ViewAs(m.level), stateStyle.Render(m.snap.State.String())))

	snap := m.snap
	failures := snap.Failures()
	stats := strings.Builder{}
	stats.WriteString(fmt.Sprintf("%s %s   %s %s   %s %s\n",
		labelStyle.Render("Attempts:"), valueStyle.Render(fmt.Sprintf("%d", snap.Attempts)),
		labelStyle.Render("Sent:"), valueStyle.Render(fmt.Sprintf("%d (%.1f%%)", snap.Successes, snap.SuccessRate)),
		labelStyle.Render("Failed:"), func() string {
			if failures > 0 {
				return errorStyle.Render(fmt.Sprintf("%d", failures))
			}
			return valueStyle.Render("0")
		}(),
	))
	if failures > 0 {
		stats.WriteString(fmt.Sprintf("%s %d   %s %d   %s %d   (%s: %d, %s: %d)\n",
			labelStyle.Render("Protocol:"), snap.ProtocolErrors,
			labelStyle.Render("Timeout:"), snap.Timeouts,
			labelStyle.Render("Link:"), snap.LinkErrors,
			headerStyle.Render("announce"), snap.AnnounceFails,
			headerStyle.Render("payload"), snap.PayloadFails,
		))
	}
	stats.WriteString(fmt.Sprintf("%s %d   %s %d   %s %d\n",
		labelStyle.Render("Full Snapshots:"), snap.FullSnapshots,
		labelStyle.Render("Reconnections:"), snap.Reconnections,
		labelStyle.Render("Control Packets:"), snap.ControlPackets,
	))
	stats.WriteString(fmt.Sprintf("%s %s   %s %s   %s %s",
		labelStyle.Render("Send Rate:"), valueStyle.Render(fmt.Sprintf("%.1f pkts/s", snap.SendRate)),
		labelStyle.Render("Bytes:"), valueStyle.Render(fmt.Sprintf("%d", snap.BytesSent)),
		labelStyle.Render("Running:"), valueStyle.Render(formatElapsed(time.Since(snap.StartTime))),
	))

	s.WriteString(boxStyle.Render(stats.String()))
	s.WriteString("\n\n")

	s.WriteString(labelStyle.Render("Recent Events:"))
	s.WriteString("\n")

	logHeight := m.height - 14
	if logHeight < 5 {
		logHeight = 5
	}
	startIdx := max(0, len(m.log)-logHeight)

	logContent := strings.Builder{}
	if len(m.log) == 0 {
		logContent.WriteString(headerStyle.Render("  (no events yet)"))
	}
	for _, entry := range m.log[startIdx:] {
		timestamp := headerStyle.Render(entry.timestamp.Format("01/02/06 15:04:05.000"))
		if entry.isError {
			logContent.WriteString(fmt.Sprintf("%s %s\n", timestamp, errorStyle.Render("✗ "+entry.message)))
		} else {
			logContent.WriteString(fmt.Sprintf("%s %s\n", timestamp, infoStyle.Render("ℹ "+entry.message)))
		}
	}

	s.WriteString(boxStyle.Width(m.width - 4).Render(logContent.String()))

	return s.String()
}
