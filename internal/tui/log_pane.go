package tui

import (
	"strings"

	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// LogPaneModel shows the simulation log in a scrollable viewport. It follows
// the tail unless the user scrolled up.
type LogPaneModel struct {
	lines    []string
	viewport viewport.Model
	width    int
	height   int
	focused  bool
}

// NewLogPaneModel creates a new log pane model.
func NewLogPaneModel() LogPaneModel {
	return LogPaneModel{viewport: viewport.New(0, 0)}
}

// Update handles messages for the log pane.
func (m LogPaneModel) Update(msg tea.Msg) (LogPaneModel, tea.Cmd) {
	var cmd tea.Cmd

	// The viewport keymap already binds j/k and paging keys.
	if _, ok := msg.(tea.KeyMsg); ok && m.focused {
		m.viewport, cmd = m.viewport.Update(msg)
	}

	return m, cmd
}

// Sync replaces the log with lines when they differ from what is shown.
func (m *LogPaneModel) Sync(lines []string) {
	if sameLines(m.lines, lines) {
		return
	}
	follow := m.viewport.AtBottom() || len(lines) < len(m.lines)
	m.lines = append(m.lines[:0], lines...)
	m.refresh()
	if follow {
		m.viewport.GotoBottom()
	}
}

// sameLines compares lengths and the last line; the log only grows between resets.
func sameLines(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	return len(a) == 0 || a[len(a)-1] == b[len(b)-1]
}

// Lines returns the log lines.
func (m LogPaneModel) Lines() []string {
	return m.lines
}

func (m *LogPaneModel) refresh() {
	if len(m.lines) == 0 {
		m.viewport.SetContent(StyleStatusPending.Render("Waiting for execution..."))
		return
	}

	styled := make([]string, len(m.lines))
	for i, line := range m.lines {
		styled[i] = styleLogLine(line)
	}
	m.viewport.SetContent(strings.Join(styled, "\n"))
}

func styleLogLine(line string) string {
	switch {
	case strings.Contains(line, " EXECUTING "):
		return StyleLogExecuting.Render(line)
	case strings.Contains(line, " COMPLETED "):
		return StyleLogCompleted.Render(line)
	case strings.Contains(line, "SYSTEM:"):
		return StyleLogSystem.Render(line)
	default:
		return line
	}
}

// View renders the log pane.
func (m LogPaneModel) View() string {
	if m.width == 0 || m.height == 0 {
		return ""
	}

	title := StyleTitle.Render("System Log")
	content := lipgloss.JoinVertical(lipgloss.Left,
		title,
		strings.Repeat("=", lipgloss.Width(title)),
		m.viewport.View(),
	)

	style := StyleUnfocusedBorder
	if m.focused {
		style = StyleFocusedBorder
	}

	return style.
		Width(m.width - 2).
		Height(m.height - 2).
		Render(content)
}

// SetSize updates the pane dimensions.
func (m *LogPaneModel) SetSize(w, h int) {
	m.width = w
	m.height = h
	m.viewport.Width = max(10, w-4)
	m.viewport.Height = max(3, h-4)
	m.refresh()
}

// SetFocused updates the focus state.
func (m *LogPaneModel) SetFocused(focused bool) {
	m.focused = focused
}
