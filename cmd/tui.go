// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"slices"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/Thermoquad/wallbus/internal/gateway"
	"github.com/Thermoquad/wallbus/pkg/wallpad"
)

// Error log entry
type errorLogEntry struct {
	timestamp time.Time
	message   string
	isError   bool // true for errors, false for warnings
}

// eventLog keeps the most recent entries
type eventLog struct {
	entries []errorLogEntry
	max     int
}

func newEventLog(size int) eventLog {
	return eventLog{max: size}
}

func (l *eventLog) add(message string, isError bool) {
	l.entries = append(l.entries, errorLogEntry{
		timestamp: time.Now(),
		message:   message,
		isError:   isError,
	})
	// Keep only last N entries
	if len(l.entries) > l.max {
		l.entries = l.entries[len(l.entries)-l.max:]
	}
}

// tail returns at most n of the newest entries
func (l eventLog) tail(n int) []errorLogEntry {
	if n < len(l.entries) {
		return l.entries[len(l.entries)-n:]
	}
	return l.entries
}

// Styles shared by the terminal UIs
var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("12")).
			Background(lipgloss.Color("235")).
			Padding(0, 1)

	headerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("241"))

	statsLabelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("12")).
			Bold(true)

	statsValueStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("10"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("9")).
			Bold(true)

	warningStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("11"))

	boxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("240")).
			Padding(0, 1)
)

// TUI model
type model struct {
	connInfo      string
	statsInterval int
	showAll       bool
	stats         *wallpad.Statistics
	log           eventLog
	synchronized  bool
	invalidBytes  uint64
	connected     bool
	width         int
	height        int
	quitting      bool
	states        map[wallpad.DeviceKey]wallpad.DeviceState
	lastState     time.Time
}

// Messages
type tickMsg time.Time
type frameMsg struct {
	frame     wallpad.Frame
	anomalies []wallpad.ValidationError
}
type stateMsg struct {
	state wallpad.DeviceState
}
type syncMsg struct {
	invalidBytes uint64
}
type statusMsg gateway.StatusEvent

// formatUptime formats a duration as a human-friendly string
func formatUptime(d time.Duration) string {
	seconds := int64(d / time.Second)
	if seconds <= 0 {
		return "0 seconds"
	}

	minutes := seconds / 60
	hours := minutes / 60
	days := hours / 24

	seconds %= 60
	minutes %= 60
	hours %= 24

	unit := func(n int64, name string) string {
		if n == 1 {
			return "1 " + name
		}
		return fmt.Sprintf("%d %ss", n, name)
	}

	parts := []string{}
	if days > 0 {
		parts = append(parts, unit(days, "day"))
	}
	if hours > 0 {
		parts = append(parts, unit(hours, "hour"))
	}
	if minutes > 0 {
		parts = append(parts, unit(minutes, "minute"))
	}
	if seconds > 0 {
		parts = append(parts, unit(seconds, "second"))
	}

	// Join with commas and "and" for last item
	switch len(parts) {
	case 1:
		return parts[0]
	case 2:
		return parts[0] + " and " + parts[1]
	}
	last := parts[len(parts)-1]
	rest := strings.Join(parts[:len(parts)-1], ", ")
	return rest + ", and " + last
}

func initialModel(connInfo string, statsInterval int, showAll bool, stats *wallpad.Statistics) model {
	return model{
		connInfo:      connInfo,
		statsInterval: statsInterval,
		showAll:       showAll,
		stats:         stats,
		log:           newEventLog(100),
		width:         80,
		height:        24,
		states:        make(map[wallpad.DeviceKey]wallpad.DeviceState),
	}
}

func (m model) Init() tea.Cmd {
	return tickCmd()
}

func tickCmd() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
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

	case tickMsg:
		// Redraw with fresh rates
		return m, tickCmd()

	case statusMsg:
		switch {
		case msg.Status == gateway.StatusConnected:
			m.connected = true
			m.synchronized = false
			m.log.add("Connected: "+msg.Info, false)
		case msg.Err != nil:
			m.connected = false
			m.log.add(fmt.Sprintf("Disconnected: %v", msg.Err), true)
		default:
			m.connected = false
		}

	case syncMsg:
		m.synchronized = true
		m.invalidBytes = msg.invalidBytes
		if msg.invalidBytes > 0 {
			m.log.add(fmt.Sprintf("Synchronized after skipping %d noise bytes", msg.invalidBytes), false)
		} else {
			m.log.add("Synchronized", false)
		}

	case frameMsg:
		device := wallpad.FormatDeviceID(msg.frame.DeviceID())
		if len(msg.anomalies) > 0 {
			for _, err := range msg.anomalies {
				m.log.add(fmt.Sprintf("%s: %s", device, err.Message), true)
			}
		} else if m.showAll {
			m.log.add(fmt.Sprintf("%s %s (valid)", device, wallpad.FormatCommandID(msg.frame.CommandID())), false)
		}

	case stateMsg:
		m.states[msg.state.Key] = msg.state
		m.lastState = time.Now()
	}

	return m, nil
}

func (m model) View() string {
	if m.quitting {
		return "Shutting down...\n"
	}

	// Header
	var s strings.Builder
	s.WriteString(titleStyle.Render("WALLBUS - ERROR DETECTION"))
	s.WriteString("\n")
	mode := "Anomalies only"
	if m.showAll {
		mode = "All frames"
	}
	s.WriteString(headerStyle.Render(fmt.Sprintf("%s | Mode: %s | Press 'q' to quit", m.connInfo, mode)))
	s.WriteString("\n\n")

	// Sync status
	switch {
	case !m.connected:
		s.WriteString(warningStyle.Render("⏳ Connecting..."))
	case !m.synchronized:
		s.WriteString(warningStyle.Render("⏳ Waiting for synchronization..."))
	default:
		s.WriteString(statsValueStyle.Render("✓ Synchronized"))
		if m.invalidBytes > 0 {
			s.WriteString(headerStyle.Render(fmt.Sprintf(" (skipped %d noise bytes)", m.invalidBytes)))
		}
	}
	s.WriteString("\n\n")

	s.WriteString(boxStyle.Render(renderStatistics(m.stats.Snapshot())))
	s.WriteString("\n\n")

	// Latest states (only shown once something decoded)
	if len(m.states) > 0 {
		s.WriteString(statsLabelStyle.Render("Latest States:"))
		s.WriteString(headerStyle.Render(" updated " + m.lastState.Format("15:04:05")))
		s.WriteString("\n")
		s.WriteString(boxStyle.Render(renderStates(m.states)))
		s.WriteString("\n\n")
	}

	s.WriteString(statsLabelStyle.Render("Recent Events:"))
	s.WriteString("\n")

	// Reserve space for header and stats
	logHeight := max(m.height-15-len(m.states), 5)
	s.WriteString(boxStyle.Width(m.width - 4).Render(renderEventLog(m.log.tail(logHeight), "01/02/06 15:04:05.000")))

	return s.String()
}

// renderStatistics renders the counters box content
func renderStatistics(st wallpad.StatisticsSnapshot) string {
	var validPercent, errorPercent float64
	totalErrors := st.MalformedFrames + st.AnomalousValues + st.UnknownDevices
	if st.TotalFrames > 0 {
		validPercent = float64(st.ValidFrames) * 100.0 / float64(st.TotalFrames)
		errorPercent = float64(totalErrors) * 100.0 / float64(st.TotalFrames)
	}

	var content strings.Builder
	fmt.Fprintf(&content, "%s %s   %s %s   %s %s\n",
		statsLabelStyle.Render("Total:"), statsValueStyle.Render(fmt.Sprintf("%d", st.TotalFrames)),
		statsLabelStyle.Render("Valid:"), statsValueStyle.Render(fmt.Sprintf("%d (%.1f%%)", st.ValidFrames, validPercent)),
		statsLabelStyle.Render("Anomalies:"), errorStyle.Render(fmt.Sprintf("%d (%.1f%%)", totalErrors, errorPercent)),
	)

	fmt.Fprintf(&content, "%s %s   %s %s   %s %s\n",
		statsLabelStyle.Render("States:"), statsValueStyle.Render(fmt.Sprintf("%d", st.DecodedStates)),
		statsLabelStyle.Render("Unknown:"), statsValueStyle.Render(fmt.Sprintf("%d", st.UnknownFrames)),
		statsLabelStyle.Render("Noise:"), warningStyle.Render(fmt.Sprintf("%d bytes", st.NoiseBytes)),
	)

	if st.MalformedFrames > 0 {
		fmt.Fprintf(&content, "%s %s (%s: %d)\n",
			statsLabelStyle.Render("Malformed:"), errorStyle.Render(fmt.Sprintf("%d", st.MalformedFrames)),
			headerStyle.Render("length mismatches"), st.LengthMismatches,
		)
	}

	if st.AnomalousValues > 0 {
		fmt.Fprintf(&content, "%s %s (%s: %d, %s: %d)\n",
			statsLabelStyle.Render("Anomalous:"), warningStyle.Render(fmt.Sprintf("%d", st.AnomalousValues)),
			headerStyle.Render("invalid temp"), st.InvalidTemp,
			headerStyle.Render("invalid values"), st.InvalidValues,
		)
	}

	if st.CommandsSent > 0 || st.CommandsDropped > 0 {
		fmt.Fprintf(&content, "%s %s   %s %s\n",
			statsLabelStyle.Render("Sent:"), statsValueStyle.Render(fmt.Sprintf("%d", st.CommandsSent)),
			statsLabelStyle.Render("Dropped:"), errorStyle.Render(fmt.Sprintf("%d", st.CommandsDropped)),
		)
	}

	errorRate := statsValueStyle.Render(fmt.Sprintf("%.1f err/s", st.ErrorRate))
	if st.ErrorRate > 0 {
		errorRate = errorStyle.Render(fmt.Sprintf("%.1f err/s", st.ErrorRate))
	}
	fmt.Fprintf(&content, "%s %s   %s %s   %s %s",
		statsLabelStyle.Render("Frame Rate:"), statsValueStyle.Render(fmt.Sprintf("%.1f frames/s", st.FrameRate)),
		statsLabelStyle.Render("Error Rate:"), errorRate,
		statsLabelStyle.Render("Running:"), statsValueStyle.Render(formatUptime(time.Since(st.StartTime))),
	)
	return content.String()
}

// sortedKeys orders device keys by class, then zone
func sortedKeys(states map[wallpad.DeviceKey]wallpad.DeviceState) []wallpad.DeviceKey {
	keys := make([]wallpad.DeviceKey, 0, len(states))
	for k := range states {
		keys = append(keys, k)
	}
	slices.SortFunc(keys, func(a, b wallpad.DeviceKey) int {
		if a.Class != b.Class {
			return int(a.Class) - int(b.Class)
		}
		return a.Index - b.Index
	})
	return keys
}

func renderStates(states map[wallpad.DeviceKey]wallpad.DeviceState) string {
	var content strings.Builder
	for i, k := range sortedKeys(states) {
		if i > 0 {
			content.WriteString("\n")
		}
		fmt.Fprintf(&content, "%s %s",
			statsLabelStyle.Render(fmt.Sprintf("%-16s", k.UniqueID()+":")),
			statsValueStyle.Render(wallpad.FormatValue(states[k].Value)))
	}
	return content.String()
}

func renderEventLog(entries []errorLogEntry, layout string) string {
	if len(entries) == 0 {
		return headerStyle.Render("  (no events yet)")
	}
	var content strings.Builder
	for _, entry := range entries {
		timestamp := headerStyle.Render(entry.timestamp.Format(layout))
		if entry.isError {
			fmt.Fprintf(&content, "%s %s\n", timestamp, errorStyle.Render("✗ "+entry.message))
		} else {
			fmt.Fprintf(&content, "%s %s\n", timestamp, warningStyle.Render("ℹ "+entry.message))
		}
	}
	return content.String()
}
