package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"garcon/orders"
	"garcon/session"
)

type tickMsg time.Time

var (
	statusRecStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true)
	statusIdleStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	statusProcStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("220"))
	statusErrStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	transcriptStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("4"))
	alertBannerStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("231")).
				Background(lipgloss.Color("160")).
				Bold(true).
				Padding(0, 1)
	advisoryStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("208"))
	infoStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	dimStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	helpStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("239"))
	helpBoldStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("239")).Bold(true)
	meterOnStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("46"))
	meterHotStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	confirmStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
)

type tuiModel struct {
	ctrl     *session.Controller
	orderCtx orders.Context

	state         session.State
	frame         int
	elapsed       time.Duration
	level         float64
	peak          float64
	message       string
	text          string
	alerts        []string
	lastOrder     string
	lastAlerts    []string
	modeLine      string
	deviceLine    string
	width, height int
}

func newTUIProgram(ctrl *session.Controller, orderCtx orders.Context, modeLine, deviceLine string) *tea.Program {
	m := tuiModel{
		ctrl:       ctrl,
		orderCtx:   orderCtx,
		state:      session.StateIdle,
		modeLine:   modeLine,
		deviceLine: deviceLine,
	}
	return tea.NewProgram(m, tea.WithAltScreen())
}

func tuiTick() tea.Cmd {
	return tea.Tick(60*time.Millisecond, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m tuiModel) Init() tea.Cmd {
	return tuiTick()
}

func (m tuiModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case tickMsg:
		m.frame++
		return m, tuiTick()

	case tea.KeyMsg:
		return m.handleKey(msg)

	case sessionEventMsg:
		return m.handleSession(session.Event(msg))
	}
	return m, nil
}

func (m tuiModel) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c", "q":
		ctrl := m.ctrl
		return m, tea.Sequence(
			func() tea.Msg { ctrl.Close(); return nil },
			tea.Quit,
		)

	case " ":
		ctrl := m.ctrl
		switch m.state {
		case session.StateIdle:
			return m, func() tea.Msg { ctrl.Begin(); return nil }
		case session.StateRecording:
			return m, func() tea.Msg { ctrl.Stop(); return nil }
		}

	case "enter":
		if m.state == session.StateConfirming {
			ctrl, octx := m.ctrl, m.orderCtx
			return m, func() tea.Msg {
				ctrl.Confirm(context.Background(), octx)
				return nil
			}
		}

	case "esc":
		ctrl := m.ctrl
		return m, func() tea.Msg { ctrl.Cancel(); return nil }
	}
	return m, nil
}

func (m tuiModel) handleSession(ev session.Event) (tea.Model, tea.Cmd) {
	switch ev.Kind {
	case session.EventTick:
		m.elapsed = ev.Elapsed

	case session.EventLevel:
		// Smooth the meter; track the raw peak for the no-voice hint.
		m.level = m.level*0.6 + ev.Level*0.4
		if ev.Level > m.peak {
			m.peak = ev.Level
		}

	case session.EventState:
		m.state = ev.State
		m.message = ev.Message
		switch ev.State {
		case session.StateRecording:
			m.elapsed = 0
			m.level = 0
			m.peak = 0
			m.text = ""
			m.alerts = nil
		case session.StateConfirming:
			m.text = ev.Text
			m.alerts = ev.Alerts
		case session.StateIdle:
			m.level = 0
			if ev.Reason == session.ReasonConfirmed && ev.Draft != nil {
				m.lastOrder = ev.Draft.Text
				m.lastAlerts = ev.Draft.Alerts
			}
		}
	}
	return m, nil
}

func (m tuiModel) View() string {
	if m.width == 0 || m.height == 0 {
		return "Loading..."
	}

	var b strings.Builder
	b.WriteString("\n")

	b.WriteString("  " + m.statusLine() + "\n\n")

	switch m.state {
	case session.StateRecording:
		b.WriteString("  " + renderMeter(m.level, 30) + "\n")
		if m.elapsed > time.Second && m.peak < 0.02 {
			b.WriteString("  " + advisoryStyle.Render("⚠ no voice detected") + "\n")
		}
	case session.StateConfirming:
		b.WriteString(m.confirmPanel())
	default:
		if m.message != "" {
			b.WriteString("  " + advisoryStyle.Render(m.message) + "\n")
		}
	}

	b.WriteString("\n")
	if m.lastOrder != "" && m.state == session.StateIdle {
		b.WriteString("  " + dimStyle.Render("last order: ") + confirmStyle.Render(m.lastOrder))
		if len(m.lastAlerts) > 0 {
			b.WriteString(" " + alertBannerStyle.Render(strings.Join(m.lastAlerts, " · ")))
		}
		b.WriteString("\n\n")
	}

	if m.modeLine != "" {
		b.WriteString("  " + infoStyle.Render(m.modeLine) + "\n")
	}
	if m.deviceLine != "" {
		b.WriteString("  " + dimStyle.Render(m.deviceLine) + "\n")
	}
	if ctx := orderContextLine(m.orderCtx); ctx != "" {
		b.WriteString("  " + dimStyle.Render(ctx) + "\n")
	}

	b.WriteString("\n  " + m.helpLine() + "\n")
	b.WriteString("  " + helpStyle.Render("garcon "+version) + "\n")

	return b.String()
}

func (m tuiModel) statusLine() string {
	switch m.state {
	case session.StateRecording:
		return statusRecStyle.Render(fmt.Sprintf("● REC %.1fs", m.elapsed.Seconds()))
	case session.StateRequesting:
		return statusProcStyle.Render("… requesting microphone")
	case session.StateProcessing:
		dots := strings.Repeat(".", m.frame/5%4)
		return statusProcStyle.Render("… transcribing" + dots)
	case session.StateConfirming:
		return confirmStyle.Render("✓ review order")
	case session.StateError:
		return statusErrStyle.Render("✗ " + m.message)
	default:
		return statusIdleStyle.Render("○ READY")
	}
}

func (m tuiModel) confirmPanel() string {
	var b strings.Builder
	wrapWidth := m.width - 4
	if wrapWidth < 20 {
		wrapWidth = 20
	}
	for _, line := range wrapText(m.text, wrapWidth) {
		b.WriteString("  " + transcriptStyle.Render(line) + "\n")
	}
	if len(m.alerts) > 0 {
		b.WriteString("\n  " + alertBannerStyle.Render("⚠ "+strings.Join(m.alerts, " · ")) + "\n")
	}
	return b.String()
}

func (m tuiModel) helpLine() string {
	switch m.state {
	case session.StateRecording:
		return helpBoldStyle.Render("space") + helpStyle.Render(" stop")
	case session.StateConfirming:
		return helpBoldStyle.Render("enter") + helpStyle.Render(" send to kitchen  ") +
			helpBoldStyle.Render("esc") + helpStyle.Render(" discard")
	default:
		return helpBoldStyle.Render("space") + helpStyle.Render(" record  ") +
			helpBoldStyle.Render("q") + helpStyle.Render(" quit")
	}
}

func renderMeter(level float64, width int) string {
	filled := int(level * float64(width) * 3)
	if filled > width {
		filled = width
	}
	var b strings.Builder
	for i := 0; i < width; i++ {
		if i < filled {
			if i > width*3/4 {
				b.WriteString(meterHotStyle.Render("█"))
			} else {
				b.WriteString(meterOnStyle.Render("█"))
			}
		} else {
			b.WriteString(dimStyle.Render("░"))
		}
	}
	return b.String()
}

func orderContextLine(octx orders.Context) string {
	var parts []string
	if octx.Table != "" {
		parts = append(parts, "table "+octx.Table)
	}
	if octx.Seat != "" {
		parts = append(parts, "seat "+octx.Seat)
	}
	if octx.Resident != "" {
		parts = append(parts, octx.Resident)
	}
	return strings.Join(parts, " · ")
}

func wrapText(text string, width int) []string {
	if len(text) == 0 {
		return []string{""}
	}
	if width <= 0 {
		width = 1
	}

	var lines []string
	for len(text) > width {
		splitAt := width
		for i := width; i > 0; i-- {
			if text[i] == ' ' {
				splitAt = i
				break
			}
		}
		lines = append(lines, text[:splitAt])
		text = strings.TrimLeft(text[splitAt:], " ")
	}
	if len(text) > 0 {
		lines = append(lines, text)
	}
	return lines
}
