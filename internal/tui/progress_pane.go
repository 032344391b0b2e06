package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// ProgressPaneModel shows task counts, the completion bar and whether the
// simulator is ticking.
type ProgressPaneModel struct {
	total     int
	completed int
	running   int
	ready     int
	pending   int
	percent   int
	active    bool
	runID     string
	spinner   spinner.Model
	width     int
	height    int
	focused   bool
}

// NewProgressPaneModel creates a new progress pane model.
func NewProgressPaneModel() ProgressPaneModel {
	return ProgressPaneModel{
		spinner: spinner.New(spinner.WithSpinner(spinner.Dot), spinner.WithStyle(StyleActive)),
	}
}

// Update handles messages for the progress pane.
func (m ProgressPaneModel) Update(msg tea.Msg) (ProgressPaneModel, tea.Cmd) {
	if msg, ok := msg.(spinner.TickMsg); ok && m.active {
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

// SetCounts updates the task counts and completion percentage.
func (m *ProgressPaneModel) SetCounts(total, completed, running, ready, pending, percent int) {
	m.total = total
	m.completed = completed
	m.running = running
	m.ready = ready
	m.pending = pending
	m.percent = percent
}

// SetActive updates the ticking state and run ID. It returns the spinner
// command when the simulator becomes active.
func (m *ProgressPaneModel) SetActive(active bool, runID string) tea.Cmd {
	wasActive := m.active
	m.active = active
	m.runID = runID
	if active && !wasActive {
		return m.spinner.Tick
	}
	return nil
}

// Active reports whether the simulator is ticking.
func (m ProgressPaneModel) Active() bool {
	return m.active
}

// Percent returns the completion percentage.
func (m ProgressPaneModel) Percent() int {
	return m.percent
}

// View renders the progress pane.
func (m ProgressPaneModel) View() string {
	if m.width == 0 || m.height == 0 {
		return ""
	}

	var b strings.Builder

	title := StyleTitle.Render("Progress")
	b.WriteString(title)
	b.WriteString("\n")
	b.WriteString(strings.Repeat("=", lipgloss.Width(title)))
	b.WriteString("\n\n")

	state := StyleIdle.Render("IDLE")
	if m.active {
		state = m.spinner.View() + " " + StyleActive.Render("ACTIVE")
	}
	b.WriteString(fmt.Sprintf("State:     %s\n", state))
	b.WriteString(fmt.Sprintf("Total:     %d\n", m.total))
	b.WriteString(fmt.Sprintf("Completed: %s\n", StyleStatusComplete.Render(fmt.Sprintf("%d", m.completed))))
	b.WriteString(fmt.Sprintf("Running:   %s\n", StyleStatusRunning.Render(fmt.Sprintf("%d", m.running))))
	b.WriteString(fmt.Sprintf("Ready:     %s\n", StyleStatusReady.Render(fmt.Sprintf("%d", m.ready))))
	b.WriteString(fmt.Sprintf("Pending:   %s\n", StyleStatusPending.Render(fmt.Sprintf("%d", m.pending))))

	b.WriteString("\n")
	b.WriteString(m.renderBar())
	b.WriteString("\n")

	if m.runID != "" {
		b.WriteString(StyleHelp.Render("run " + m.runID))
	}

	style := StyleUnfocusedBorder
	if m.focused {
		style = StyleFocusedBorder
	}

	return style.
		Width(m.width - 2).
		Height(m.height - 2).
		Render(b.String())
}

func (m ProgressPaneModel) renderBar() string {
	barWidth := min(max(m.width-12, 10), 40)
	if m.total == 0 {
		return fmt.Sprintf("[%s] %3d%%", StyleStatusPending.Render(strings.Repeat(".", barWidth)), m.percent)
	}

	completedWidth := (m.completed * barWidth) / m.total
	runningWidth := (m.running * barWidth) / m.total
	restWidth := barWidth - completedWidth - runningWidth

	bar := StyleStatusComplete.Render(strings.Repeat("=", max(0, completedWidth)))
	bar += StyleStatusRunning.Render(strings.Repeat("-", max(0, runningWidth)))
	bar += StyleStatusPending.Render(strings.Repeat(".", max(0, restWidth)))

	return fmt.Sprintf("[%s] %3d%%", bar, m.percent)
}

// SetSize updates the pane dimensions.
func (m *ProgressPaneModel) SetSize(w, h int) {
	m.width = w
	m.height = h
}

// SetFocused updates the focus state.
func (m *ProgressPaneModel) SetFocused(focused bool) {
	m.focused = focused
}
