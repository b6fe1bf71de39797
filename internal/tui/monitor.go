// SPDX-License-Identifier: MIT
package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"partialsynth/internal/analysis"
	"partialsynth/internal/audio"
	"partialsynth/internal/resynth"
)

const (
	gainStep      = 0.05
	freqScaleStep = 0.05
	barWidth      = 24
)

// Status is what the monitor shows on one refresh.
type Status struct {
	Frame        *analysis.Frame
	HistoryRows  int
	Pitch        []analysis.PitchResult
	Output       audio.State
	OutputRate   float64
	Failures     int
	Synth        resynth.Status
	Params       resynth.Params
	Window       analysis.WindowFunc
	InputIdle    time.Duration
	StallTimeout time.Duration
}

// Source provides monitor status. It is polled from the UI goroutine.
type Source interface {
	Status() Status
}

// Controls are the parameter changes the monitor can make.
type Controls interface {
	AdjustGain(delta float64) error
	AdjustFreqScale(delta float64) error
	CycleWindow() error
	RequestRestart()
}

type monitorKeys struct {
	Quit       key.Binding
	GainUp     key.Binding
	GainDown   key.Binding
	ScaleUp    key.Binding
	ScaleDown  key.Binding
	NextWindow key.Binding
	Restart    key.Binding
}

var monitorKeyMap = monitorKeys{
	Quit:       key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
	GainUp:     key.NewBinding(key.WithKeys("+", "="), key.WithHelp("+/-", "gain")),
	GainDown:   key.NewBinding(key.WithKeys("-")),
	ScaleUp:    key.NewBinding(key.WithKeys("]"), key.WithHelp("[/]", "freq scale")),
	ScaleDown:  key.NewBinding(key.WithKeys("[")),
	NextWindow: key.NewBinding(key.WithKeys("w"), key.WithHelp("w", "window")),
	Restart:    key.NewBinding(key.WithKeys("r"), key.WithHelp("r", "restart output")),
}

type tickMsg time.Time

// MonitorModel is the live view of analysis, pitch and output state.
type MonitorModel struct {
	source   Source
	controls Controls
	refresh  time.Duration

	status  Status
	message string
	width   int
}

// NewMonitorModel polls source every refresh.
func NewMonitorModel(source Source, controls Controls, refresh time.Duration) MonitorModel {
	return MonitorModel{
		source:   source,
		controls: controls,
		refresh:  refresh,
		status:   source.Status(),
	}
}

func (m MonitorModel) tick() tea.Cmd {
	return tea.Tick(m.refresh, func(t time.Time) tea.Msg { return tickMsg(t) })
}

// Init starts the refresh loop.
func (m MonitorModel) Init() tea.Cmd {
	return m.tick()
}

func (m MonitorModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width

	case tickMsg:
		m.status = m.source.Status()
		return m, m.tick()

	case tea.KeyMsg:
		var err error
		switch {
		case key.Matches(msg, monitorKeyMap.Quit):
			return m, tea.Quit
		case key.Matches(msg, monitorKeyMap.GainUp):
			err = m.controls.AdjustGain(gainStep)
		case key.Matches(msg, monitorKeyMap.GainDown):
			err = m.controls.AdjustGain(-gainStep)
		case key.Matches(msg, monitorKeyMap.ScaleUp):
			err = m.controls.AdjustFreqScale(freqScaleStep)
		case key.Matches(msg, monitorKeyMap.ScaleDown):
			err = m.controls.AdjustFreqScale(-freqScaleStep)
		case key.Matches(msg, monitorKeyMap.NextWindow):
			err = m.controls.CycleWindow()
		case key.Matches(msg, monitorKeyMap.Restart):
			m.controls.RequestRestart()
			m.message = "output restart requested"
			return m, nil
		default:
			return m, nil
		}
		if err != nil {
			m.message = err.Error()
		} else {
			m.message = ""
		}
		m.status = m.source.Status()
	}
	return m, nil
}

// View renders the monitor
func (m MonitorModel) View() string {
	s := m.status
	var sections []string

	sections = append(sections, titleStyle.Render("partialsynth monitor"))
	sections = append(sections, panelStyle.Render(m.renderStream()))

	if s.Frame == nil || len(s.Frame.Partials) == 0 {
		sections = append(sections, dimStyle.Render("waiting for analysis..."))
	} else {
		for ch := range s.Frame.Partials {
			sections = append(sections, panelStyle.Render(m.renderChannel(ch)))
		}
	}

	if m.message != "" {
		sections = append(sections, warnStyle.Render(m.message))
	}
	sections = append(sections, infoStyle.Render(helpLine()))
	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

func (m MonitorModel) renderStream() string {
	s := m.status
	state := s.Output.String()
	switch s.Output {
	case audio.Healthy:
		state = highlightStyle.Render(state)
	default:
		state = warnStyle.Render(state)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Output: %s", state)
	if s.OutputRate > 0 {
		fmt.Fprintf(&b, " @ %.0f Hz", s.OutputRate)
	}
	if s.Failures > 0 {
		fmt.Fprintf(&b, "  failures: %d", s.Failures)
	}
	input := "active"
	if s.StallTimeout > 0 && s.InputIdle >= s.StallTimeout {
		input = warnStyle.Render("stalled")
	}
	fmt.Fprintf(&b, "  Input: %s\n", input)

	fmt.Fprintf(&b, "Gain %.2f  Freq scale %.2f  Update %.2fs  Window %s\n",
		s.Params.Gain, s.Params.FreqScale, s.Params.UpdateRate, s.Window)
	fmt.Fprintf(&b, "Updates applied %d  crossfade %3.0f%%", s.Synth.Applied, s.Synth.Weight*100)
	if s.Frame != nil {
		fmt.Fprintf(&b, "  frame #%d", s.Frame.Seq)
	}
	if s.HistoryRows > 0 {
		fmt.Fprintf(&b, "  history %d rows", s.HistoryRows)
	}
	return b.String()
}

func (m MonitorModel) renderChannel(ch int) string {
	s := m.status
	var b strings.Builder

	fmt.Fprintf(&b, "Channel %d", ch)
	if ch < len(s.Pitch) && s.Pitch[ch].Frequency > 0 {
		p := s.Pitch[ch]
		pitch := fmt.Sprintf("  pitch %.1f Hz", p.Frequency)
		if p.Confidence > 0 {
			pitch = highlightStyle.Render(pitch + fmt.Sprintf(" (%.0f%%)", p.Confidence*100))
		} else {
			pitch = dimStyle.Render(pitch + " (held)")
		}
		b.WriteString(pitch)
	}
	b.WriteString("\n")

	active := s.Frame.Partials.Active(ch)
	if len(active) == 0 {
		b.WriteString(dimStyle.Render("  no partials"))
		return b.String()
	}

	peak := 0.0
	for _, p := range active {
		peak = max(peak, p.Magnitude())
	}
	for i, p := range active {
		if i > 0 {
			b.WriteString("\n")
		}
		fmt.Fprintf(&b, "  %8.2f Hz  %-*s %6.2f", p.Frequency, barWidth, Bar(p.Magnitude(), peak, barWidth), p.Amplitude)
	}
	return b.String()
}

// Bar renders v relative to peak as up to width block characters.
func Bar(v, peak float64, width int) string {
	if peak <= 0 || v <= 0 {
		return ""
	}
	n := int(v / peak * float64(width))
	return strings.Repeat("█", max(1, min(n, width)))
}

func helpLine() string {
	bindings := []key.Binding{
		monitorKeyMap.GainUp, monitorKeyMap.ScaleUp, monitorKeyMap.NextWindow,
		monitorKeyMap.Restart, monitorKeyMap.Quit,
	}
	parts := make([]string, 0, len(bindings))
	for _, kb := range bindings {
		h := kb.Help()
		parts = append(parts, h.Key+": "+h.Desc)
	}
	return strings.Join(parts, " • ")
}

// RunMonitor runs the monitor full screen until the user quits.
func RunMonitor(source Source, controls Controls, refresh time.Duration) error {
	p := tea.NewProgram(NewMonitorModel(source, controls, refresh), tea.WithAltScreen())
	_, err := p.Run()
	return err
}
