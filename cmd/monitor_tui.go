// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/Thermoquad/wallbus/internal/gateway"
	"github.com/Thermoquad/wallbus/pkg/wallpad"
)

//////////////////////////////////////////////////////////////
// Constants
//////////////////////////////////////////////////////////////

// Focus states
const (
	focusDeviceList = iota
	focusAction
	focusValueInput
	focusButton
)

const deviceListWidth = 30

//////////////////////////////////////////////////////////////
// Types
//////////////////////////////////////////////////////////////

// device is one unit seen on the bus
type device struct {
	state    wallpad.DeviceState
	lastSeen time.Time
}

// Implement list.Item interface
func (d device) Title() string       { return d.state.Key.UniqueID() }
func (d device) Description() string { return wallpad.FormatValue(d.state.Value) }
func (d device) FilterValue() string { return d.state.Key.UniqueID() }

// monitorModel is the Bubble Tea model for the monitor TUI
type monitorModel struct {
	send       func(wallpad.Command) error
	connInfo   string
	speedTable wallpad.SpeedTable

	// Device tracking
	devices    []device
	deviceList list.Model

	stats *wallpad.Statistics
	log   eventLog

	// Control
	actionIdx    int
	valueInput   textinput.Model
	focusedField int
	pending      int

	// UI state
	width        int
	height       int
	synchronized bool
	connected    bool
	quitting     bool
}

//////////////////////////////////////////////////////////////
// Messages
//////////////////////////////////////////////////////////////

type monitorTickMsg time.Time

type monitorBatchMsg struct {
	states    []wallpad.DeviceState
	anomalies []string
	synced    bool
	skipped   uint64
}

type commandResultMsg struct {
	command wallpad.Command
	err     error
}

//////////////////////////////////////////////////////////////
// Model Initialization
//////////////////////////////////////////////////////////////

func initialMonitorModel(connInfo string, stats *wallpad.Statistics, table wallpad.SpeedTable, send func(wallpad.Command) error) monitorModel {
	ti := textinput.New()
	ti.CharLimit = 8
	ti.Width = 10

	delegate := list.NewDefaultDelegate()
	delegate.ShowDescription = true
	delegate.SetHeight(2)
	deviceList := list.New([]list.Item{}, delegate, deviceListWidth, 10)
	deviceList.Title = "Devices"
	deviceList.SetShowStatusBar(false)
	deviceList.SetShowHelp(false)
	deviceList.SetFilteringEnabled(false)

	return monitorModel{
		send:         send,
		connInfo:     connInfo,
		speedTable:   table,
		deviceList:   deviceList,
		stats:        stats,
		log:          newEventLog(100),
		valueInput:   ti,
		focusedField: focusDeviceList,
		width:        80,
		height:       24,
	}
}

//////////////////////////////////////////////////////////////
// Bubble Tea Interface
//////////////////////////////////////////////////////////////

func (m monitorModel) Init() tea.Cmd {
	return monitorTickCmd()
}

func monitorTickCmd() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return monitorTickMsg(t)
	})
}

func (m monitorModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKeyMsg(msg)

	case tea.MouseMsg:
		if msg.Action == tea.MouseActionRelease && msg.Button == tea.MouseButtonLeft {
			m.deviceList, _ = m.deviceList.Update(msg)
		}
		return m, nil

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.updateListSize()

	case monitorTickMsg:
		return m, monitorTickCmd()

	case statusMsg:
		switch {
		case msg.Status == gateway.StatusConnected:
			m.connected = true
			m.synchronized = false
			m.connInfo = msg.Info
			m.log.add("Connected: "+msg.Info, false)
		case msg.Err != nil:
			m.connected = false
			m.log.add(fmt.Sprintf("Connection lost: %v - reconnecting...", msg.Err), true)
		default:
			m.connected = false
		}

	case monitorBatchMsg:
		var selectedKey wallpad.DeviceKey
		if d := m.selectedDevice(); d != nil {
			selectedKey = d.state.Key
		}
		if msg.synced {
			m.synchronized = true
			if msg.skipped > 0 {
				m.log.add(fmt.Sprintf("Synchronized after skipping %d noise bytes", msg.skipped), false)
			} else {
				m.log.add("Synchronized", false)
			}
		}
		for _, s := range msg.states {
			m.applyState(s)
		}
		for _, a := range msg.anomalies {
			m.log.add(a, true)
		}
		m.updateDeviceList(selectedKey)

	case commandResultMsg:
		m.pending--
		if msg.err != nil {
			m.log.add(fmt.Sprintf("Failed to send %s %s: %v", msg.command.Key, msg.command.Action, msg.err), true)
		} else {
			m.log.add(fmt.Sprintf("Sent %s to %s", msg.command.Action, msg.command.Key), false)
		}
	}

	return m, nil
}

func (m monitorModel) handleKeyMsg(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c":
		m.quitting = true
		return m, tea.Quit

	case "q":
		if m.focusedField != focusValueInput {
			m.quitting = true
			return m, tea.Quit
		}

	case "tab":
		return m.cycleFocus(1), nil

	case "shift+tab":
		return m.cycleFocus(-1), nil

	case "left", "h":
		if m.focusedField == focusAction {
			return m.cycleAction(-1), nil
		}

	case "right", "l":
		if m.focusedField == focusAction {
			return m.cycleAction(1), nil
		}

	case "enter":
		if m.focusedField == focusButton || m.focusedField == focusValueInput {
			return m.sendCommand()
		}
	}

	var cmd tea.Cmd
	switch m.focusedField {
	case focusDeviceList:
		m.deviceList, cmd = m.deviceList.Update(msg)
		m.clampAction()
	case focusValueInput:
		m.valueInput, cmd = m.valueInput.Update(msg)
	}
	return m, cmd
}

func (m monitorModel) cycleFocus(delta int) monitorModel {
	if m.selectedDevice() == nil {
		m.focusedField = focusDeviceList
		m.valueInput.Blur()
		return m
	}

	const fields = focusButton + 1
	m.focusedField = (m.focusedField + delta + fields) % fields

	// Skip the value input when the action takes none
	if m.focusedField == focusValueInput && !actionTakesValue(m.selectedAction()) {
		m.focusedField = (m.focusedField + delta + fields) % fields
	}

	if m.focusedField == focusValueInput {
		m.valueInput.Focus()
	} else {
		m.valueInput.Blur()
	}
	return m
}

func (m monitorModel) cycleAction(delta int) monitorModel {
	actions := m.availableActions()
	if len(actions) == 0 {
		return m
	}
	m.actionIdx = (m.actionIdx + delta + len(actions)) % len(actions)
	m.valueInput.SetValue("")
	m.valueInput.Placeholder = m.valuePlaceholder(m.selectedAction())
	return m
}

func (m *monitorModel) clampAction() {
	if actions := m.availableActions(); m.actionIdx >= len(actions) {
		m.actionIdx = 0
	}
	m.valueInput.Placeholder = m.valuePlaceholder(m.selectedAction())
}

func (m monitorModel) sendCommand() (tea.Model, tea.Cmd) {
	selected := m.selectedDevice()
	if selected == nil {
		return m, nil
	}
	if !m.connected {
		m.log.add("Cannot send command: not connected", true)
		return m, nil
	}

	action := m.selectedAction()
	value := m.valueInput.Value()
	if value == "" {
		value = m.valueInput.Placeholder
	}
	params, err := parseParams(action, value)
	if err != nil {
		m.log.add(err.Error(), true)
		return m, nil
	}

	command := wallpad.Command{Key: selected.state.Key, Action: action, Params: params}
	send := m.send
	m.pending++
	return m, func() tea.Msg {
		return commandResultMsg{command: command, err: send(command)}
	}
}

func (m monitorModel) View() string {
	if m.quitting {
		return "Shutting down...\n"
	}

	var s strings.Builder

	focusedBoxStyle := boxStyle.
		BorderForeground(lipgloss.Color("12"))

	buttonStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("0")).
		Background(lipgloss.Color("12")).
		Padding(0, 2)

	focusedButtonStyle := buttonStyle.
		Background(lipgloss.Color("10"))

	// Header
	s.WriteString(titleStyle.Render("WALLBUS MONITOR"))
	s.WriteString(" ")
	connStatus := m.connInfo
	switch {
	case !m.connected:
		connStatus = warningStyle.Render("RECONNECTING...")
	case !m.synchronized:
		connStatus += warningStyle.Render(" (waiting for frames)")
	}
	s.WriteString(headerStyle.Render(fmt.Sprintf("| %s | q=quit Tab=switch", connStatus)))
	s.WriteString("\n\n")

	// Layout: left panel (devices) | right panel (control)
	rightWidth := max(m.width-deviceListWidth-6, 20)

	listStyle := boxStyle.Width(deviceListWidth)
	if m.focusedField == focusDeviceList {
		listStyle = focusedBoxStyle.Width(deviceListWidth)
	}
	var devicePanel string
	if len(m.devices) == 0 {
		devicePanel = listStyle.Render(headerStyle.Render("Waiting for devices..."))
	} else {
		devicePanel = listStyle.Render(m.deviceList.View())
	}

	controlPanel := boxStyle.Width(rightWidth).Render(m.renderControlPanel(buttonStyle, focusedButtonStyle))

	s.WriteString(lipgloss.JoinHorizontal(lipgloss.Top, devicePanel, " ", controlPanel))
	s.WriteString("\n\n")

	s.WriteString(m.renderStatisticsBar())
	s.WriteString("\n\n")

	s.WriteString(statsLabelStyle.Render("EVENTS"))
	s.WriteString("\n")
	s.WriteString(boxStyle.Width(m.width - 4).Render(renderEventLog(m.log.tail(8), "15:04:05.000")))

	return s.String()
}

//////////////////////////////////////////////////////////////
// View Helpers
//////////////////////////////////////////////////////////////

func (m monitorModel) renderControlPanel(buttonStyle, focusedButtonStyle lipgloss.Style) string {
	var s strings.Builder

	selected := m.selectedDevice()
	if selected == nil {
		s.WriteString(headerStyle.Render("No device selected"))
		return s.String()
	}

	fmt.Fprintf(&s, "%s %s\n", statsLabelStyle.Render("Selected:"), selected.state.Key.UniqueID())
	fmt.Fprintf(&s, "%s %s\n", statsLabelStyle.Render("State:"), statsValueStyle.Render(wallpad.FormatValue(selected.state.Value)))
	fmt.Fprintf(&s, "%s %s\n\n", statsLabelStyle.Render("Seen:"), headerStyle.Render(selected.lastSeen.Format("15:04:05")))

	// Action selector
	s.WriteString(statsLabelStyle.Render("Action: "))
	for i, a := range m.availableActions() {
		label := string(a)
		switch {
		case i == m.actionIdx && m.focusedField == focusAction:
			s.WriteString(focusedButtonStyle.Render(label))
		case i == m.actionIdx:
			s.WriteString(buttonStyle.Render(label))
		default:
			s.WriteString(headerStyle.Render(" " + label + " "))
		}
		s.WriteString(" ")
	}
	s.WriteString("\n\n")

	if actionTakesValue(m.selectedAction()) {
		s.WriteString(statsLabelStyle.Render("Value: "))
		if m.focusedField == focusValueInput {
			s.WriteString(m.valueInput.View())
		} else {
			val := m.valueInput.Value()
			if val == "" {
				val = m.valueInput.Placeholder
			}
			fmt.Fprintf(&s, "[%s]", val)
		}
		s.WriteString("\n\n")
	}

	btnText := "[ Send ]"
	if m.pending > 0 {
		btnText = "[ Sending... ]"
	}
	if m.focusedField == focusButton {
		s.WriteString(focusedButtonStyle.Render(btnText))
	} else {
		s.WriteString(buttonStyle.Render(btnText))
	}

	return s.String()
}

func (m monitorModel) renderStatisticsBar() string {
	st := m.stats.Snapshot()
	var validPercent float64
	if st.TotalFrames > 0 {
		validPercent = float64(st.ValidFrames) * 100.0 / float64(st.TotalFrames)
	}

	dropped := statsValueStyle.Render("0")
	if st.CommandsDropped > 0 {
		dropped = errorStyle.Render(fmt.Sprintf("%d", st.CommandsDropped))
	}

	content := fmt.Sprintf("%s %s  %s %s  %s %s  %s %s  %s %s  %s %s",
		statsLabelStyle.Render("Frames:"), statsValueStyle.Render(fmt.Sprintf("%d", st.TotalFrames)),
		statsLabelStyle.Render("Valid:"), statsValueStyle.Render(fmt.Sprintf("%.1f%%", validPercent)),
		statsLabelStyle.Render("Noise:"), statsValueStyle.Render(fmt.Sprintf("%dB", st.NoiseBytes)),
		statsLabelStyle.Render("Sent:"), statsValueStyle.Render(fmt.Sprintf("%d", st.CommandsSent)),
		statsLabelStyle.Render("Dropped:"), dropped,
		statsLabelStyle.Render("Rate:"), statsValueStyle.Render(fmt.Sprintf("%.1f f/s", st.FrameRate)),
	)
	return boxStyle.Width(m.width - 4).Render(content)
}

//////////////////////////////////////////////////////////////
// Data Processing
//////////////////////////////////////////////////////////////

// applyState records a state, keeping devices ordered by class and zone
func (m *monitorModel) applyState(s wallpad.DeviceState) {
	now := time.Now()
	i, found := slices.BinarySearchFunc(m.devices, s.Key, func(d device, k wallpad.DeviceKey) int {
		if d.state.Key.Class != k.Class {
			return int(d.state.Key.Class) - int(k.Class)
		}
		return d.state.Key.Index - k.Index
	})
	if found {
		old := m.devices[i].state.Value
		m.devices[i] = device{state: s, lastSeen: now}
		if old != s.Value {
			m.log.add(fmt.Sprintf("%s: %s -> %s", s.Key, wallpad.FormatValue(old), wallpad.FormatValue(s.Value)), false)
		}
		return
	}
	m.devices = slices.Insert(m.devices, i, device{state: s, lastSeen: now})
	m.log.add(fmt.Sprintf("Device discovered: %s", s.Key), false)
}

//////////////////////////////////////////////////////////////
// Helpers
//////////////////////////////////////////////////////////////

func (m monitorModel) selectedDevice() *device {
	idx := m.deviceList.Index()
	if idx < 0 || idx >= len(m.devices) {
		return nil
	}
	return &m.devices[idx]
}

func (m monitorModel) availableActions() []wallpad.Action {
	selected := m.selectedDevice()
	if selected == nil {
		return nil
	}
	return classActions(selected.state.Key.Class)
}

func (m monitorModel) selectedAction() wallpad.Action {
	actions := m.availableActions()
	if m.actionIdx < 0 || m.actionIdx >= len(actions) {
		return ""
	}
	return actions[m.actionIdx]
}

func (m monitorModel) valuePlaceholder(action wallpad.Action) string {
	switch action {
	case wallpad.ActionHVAC:
		return wallpad.HVACHeat
	case wallpad.ActionTemp:
		return "22.5"
	case wallpad.ActionAway:
		return "on"
	case wallpad.ActionSetSpeed:
		if levels := m.speedTable.Levels(); len(levels) > 0 {
			return fmt.Sprintf("%d", levels[0].Percentage)
		}
	case wallpad.ActionPreset:
		if presets := m.speedTable.Presets(); len(presets) > 0 {
			return presets[0]
		}
	}
	return ""
}

// updateDeviceList rebuilds the list, keeping the selection on the same
// device across inserts
func (m *monitorModel) updateDeviceList(selectedKey wallpad.DeviceKey) {
	items := make([]list.Item, len(m.devices))
	for i, d := range m.devices {
		items[i] = d
	}
	m.deviceList.SetItems(items)

	for i, d := range m.devices {
		if d.state.Key == selectedKey {
			m.deviceList.Select(i)
			break
		}
	}
	m.clampAction()
}

func (m *monitorModel) updateListSize() {
	listHeight := max(m.height/3, 5)
	m.deviceList.SetSize(deviceListWidth-2, listHeight)
}
