// SPDX-License-Identifier: MIT
package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"partialsynth/internal/audio"
)

// Selection is the result of the device picker.
type Selection struct {
	InputDevice  int
	OutputDevice int
	SampleRate   float64
}

// ScreenType defines which screen is currently active
type ScreenType int

const (
	InputScreen ScreenType = iota
	OutputScreen
	RateScreen
)

type pickerKeys struct {
	Quit   key.Binding
	Up     key.Binding
	Down   key.Binding
	Select key.Binding
	Back   key.Binding
}

var pickerKeyMap = pickerKeys{
	Quit:   key.NewBinding(key.WithKeys("q", "ctrl+c")),
	Up:     key.NewBinding(key.WithKeys("up", "k")),
	Down:   key.NewBinding(key.WithKeys("down", "j")),
	Select: key.NewBinding(key.WithKeys("enter")),
	Back:   key.NewBinding(key.WithKeys("esc")),
}

// DeviceListModel walks through input device, output device and sample
// rate selection.
type DeviceListModel struct {
	fetch    func() ([]audio.Device, error)
	devices  []audio.Device
	viewport viewport.Model
	ready    bool
	err      error
	screen   ScreenType

	cursor    int
	rates     []float64
	selection Selection
	done      bool
	cancelled bool
}

type devicesMsg struct {
	devices []audio.Device
}

type errMsg struct {
	err error
}

// NewDeviceListModel creates a picker offering rates. fetch is usually
// audio.HostDevices.
func NewDeviceListModel(fetch func() ([]audio.Device, error), rates []float64) DeviceListModel {
	return DeviceListModel{
		fetch:     fetch,
		rates:     rates,
		selection: Selection{InputDevice: -1, OutputDevice: -1},
	}
}

// Init initializes the Bubble Tea model
func (m DeviceListModel) Init() tea.Cmd {
	fetch := m.fetch
	return func() tea.Msg {
		devices, err := fetch()
		if err != nil {
			return errMsg{err}
		}
		return devicesMsg{devices}
	}
}

// Selection returns the chosen devices and rate, and whether the picker was
// completed.
func (m DeviceListModel) Selection() (Selection, bool) {
	return m.selection, m.done && !m.cancelled
}

// candidates returns the devices usable on the current screen.
func (m DeviceListModel) candidates() []audio.Device {
	var out []audio.Device
	for _, d := range m.devices {
		if (m.screen == InputScreen && d.MaxInputChannels > 0) ||
			(m.screen == OutputScreen && d.MaxOutputChannels > 0) {
			out = append(out, d)
		}
	}
	return out
}

func (m DeviceListModel) options() int {
	if m.screen == RateScreen {
		return len(m.rates)
	}
	return len(m.candidates())
}

func (m DeviceListModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		if !m.ready {
			m.viewport = viewport.New(msg.Width, msg.Height-4)
			m.viewport.Style = lipgloss.NewStyle()
			m.ready = true
		} else {
			m.viewport.Width = msg.Width
			m.viewport.Height = msg.Height - 4
		}

	case devicesMsg:
		m.devices = msg.devices

	case errMsg:
		m.err = msg.err

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, pickerKeyMap.Quit):
			m.cancelled = true
			return m, tea.Quit

		case key.Matches(msg, pickerKeyMap.Up):
			if m.cursor > 0 {
				m.cursor--
			}

		case key.Matches(msg, pickerKeyMap.Down):
			if m.cursor < m.options()-1 {
				m.cursor++
			}

		case key.Matches(msg, pickerKeyMap.Back):
			if m.screen > InputScreen {
				m.screen--
				m.cursor = 0
			}

		case key.Matches(msg, pickerKeyMap.Select):
			if m.options() == 0 {
				break
			}
			switch m.screen {
			case InputScreen:
				m.selection.InputDevice = m.candidates()[m.cursor].ID
			case OutputScreen:
				m.selection.OutputDevice = m.candidates()[m.cursor].ID
			case RateScreen:
				m.selection.SampleRate = m.rates[m.cursor]
				m.done = true
				return m, tea.Quit
			}
			m.screen++
			m.cursor = 0
		}
	}

	if m.ready {
		m.viewport.SetContent(m.render())
		m.viewport, cmd = m.viewport.Update(msg)
	}
	return m, cmd
}

// View renders the UI
func (m DeviceListModel) View() string {
	if m.err != nil {
		return fmt.Sprintf("Error: %v\n\nPress q to exit.", m.err)
	}
	if !m.ready {
		return "Initializing..."
	}

	var title string
	switch m.screen {
	case InputScreen:
		title = "Select Input Device"
	case OutputScreen:
		title = "Select Output Device"
	default:
		title = "Select Sample Rate"
	}
	help := infoStyle.Render("↑/↓: Navigate • Enter: Select • Esc: Back • q: Quit")
	return fmt.Sprintf("%s\n\n%s\n\n%s", titleStyle.Render(title), m.viewport.View(), help)
}

func (m DeviceListModel) render() string {
	if m.screen == RateScreen {
		return m.renderRates()
	}

	devices := m.candidates()
	if len(devices) == 0 {
		return "No matching audio devices found."
	}

	var sb strings.Builder
	for i, d := range devices {
		info := fmt.Sprintf("[%d] %s (%s)\n", d.ID, d.Name, d.Kind())
		info += fmt.Sprintf("    Input channels: %d, Output channels: %d\n", d.MaxInputChannels, d.MaxOutputChannels)
		info += fmt.Sprintf("    Default sample rate: %.0f Hz\n", d.DefaultSampleRate)
		if i == m.cursor {
			info = highlightStyle.Render(info)
		}
		sb.WriteString(info)
		sb.WriteString("\n")
	}
	return sb.String()
}

func (m DeviceListModel) renderRates() string {
	var sb strings.Builder
	sb.WriteString("Sample Rate:\n")
	for i, rate := range m.rates {
		marker := " "
		if i == m.cursor {
			marker = "▶"
		}
		line := fmt.Sprintf("  %s %.0f Hz\n", marker, rate)
		if i == m.cursor {
			line = highlightStyle.Render(line)
		}
		sb.WriteString(line)
	}
	return sb.String()
}

// PickDevices runs the picker full screen and returns the selection.
func PickDevices(rates []float64) (Selection, bool, error) {
	p := tea.NewProgram(NewDeviceListModel(audio.HostDevices, rates), tea.WithAltScreen())
	final, err := p.Run()
	if err != nil {
		return Selection{}, false, err
	}
	sel, ok := final.(DeviceListModel).Selection()
	return sel, ok, nil
}
