package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/aristath/playbooksim/internal/playbook"
	"github.com/aristath/playbooksim/internal/simulator"
)

// QueuePaneModel lists every task with its status and shows the selected
// task's details.
type QueuePaneModel struct {
	tasks       []simulator.TaskState
	personas    map[string]playbook.Persona
	selectedIdx int
	viewport    viewport.Model
	width       int
	height      int
	focused     bool
}

// NewQueuePaneModel creates a queue pane. pb may be nil.
func NewQueuePaneModel(pb *playbook.Playbook) QueuePaneModel {
	personas := make(map[string]playbook.Persona)
	if pb != nil {
		for _, p := range pb.Team.Prompts {
			personas[p.Agent] = p
		}
	}
	return QueuePaneModel{
		personas: personas,
		viewport: viewport.New(0, 0),
	}
}

// Update handles messages for the queue pane.
func (m QueuePaneModel) Update(msg tea.Msg) (QueuePaneModel, tea.Cmd) {
	var cmd tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		if !m.focused {
			break
		}

		switch msg.String() {
		case KeyJ, KeyDown:
			if m.selectedIdx < len(m.tasks)-1 {
				m.selectedIdx++
				m.refresh()
			}
		case KeyK, KeyUp:
			if m.selectedIdx > 0 {
				m.selectedIdx--
				m.refresh()
			}
		default:
			m.viewport, cmd = m.viewport.Update(msg)
		}
	}

	return m, cmd
}

// SetTasks replaces the displayed task states.
func (m *QueuePaneModel) SetTasks(tasks []simulator.TaskState) {
	m.tasks = tasks
	if m.selectedIdx >= len(tasks) {
		m.selectedIdx = max(0, len(tasks)-1)
	}
	m.refresh()
}

// Selected returns the selected task.
func (m QueuePaneModel) Selected() (simulator.TaskState, bool) {
	if m.selectedIdx >= 0 && m.selectedIdx < len(m.tasks) {
		return m.tasks[m.selectedIdx], true
	}
	return simulator.TaskState{}, false
}

// View renders the queue pane.
func (m QueuePaneModel) View() string {
	if m.width == 0 || m.height == 0 {
		return ""
	}

	var b strings.Builder
	title := StyleTitle.Render("Task Queue")
	b.WriteString(title)
	b.WriteString("\n")
	b.WriteString(strings.Repeat("=", lipgloss.Width(title)))
	b.WriteString("\n")
	b.WriteString(m.viewport.View())
	b.WriteString("\n")
	b.WriteString(m.renderDetails())

	style := StyleUnfocusedBorder
	if m.focused {
		style = StyleFocusedBorder
	}

	return style.
		Width(m.width - 2).
		Height(m.height - 2).
		Render(b.String())
}

func (m *QueuePaneModel) refresh() {
	if len(m.tasks) == 0 {
		m.viewport.SetContent(StyleStatusPending.Render("No tasks."))
		return
	}

	width := m.viewport.Width
	lines := make([]string, 0, len(m.tasks))
	for i, t := range m.tasks {
		text := fmt.Sprintf("%-4s %-13s %s", t.ID, t.Role, t.Description)
		if t.Status == simulator.StatusCompleted {
			text += fmt.Sprintf(" (%.1fs)", t.Elapsed(time.Time{}).Seconds())
		}
		// Icon and separator take two cells.
		if width > 5 {
			text = truncate(text, width-2)
		}
		line := StatusIcon(t.Status) + " " + text
		if i == m.selectedIdx {
			line = StyleSelected.Render(line)
		}
		lines = append(lines, line)
	}
	m.viewport.SetContent(strings.Join(lines, "\n"))

	// Keep the selection on screen.
	if m.viewport.Height > 0 {
		if m.selectedIdx < m.viewport.YOffset {
			m.viewport.SetYOffset(m.selectedIdx)
		} else if m.selectedIdx >= m.viewport.YOffset+m.viewport.Height {
			m.viewport.SetYOffset(m.selectedIdx - m.viewport.Height + 1)
		}
	}
}

func (m QueuePaneModel) renderDetails() string {
	t, ok := m.Selected()
	if !ok {
		return ""
	}

	agent := t.Agent
	if p, ok := m.personas[t.Agent]; ok && p.Role != "" {
		agent = fmt.Sprintf("%s (%s)", t.Agent, p.Role)
	}
	deps := "none"
	if len(t.Deps) > 0 {
		deps = strings.Join(t.Deps, ", ")
	}

	return StyleHelp.Render(fmt.Sprintf("%s | agent: %s | deps: %s | %s", t.ID, agent, deps, t.Status))
}

// StatusIcon returns a styled status indicator.
func StatusIcon(status simulator.Status) string {
	switch status {
	case simulator.StatusRunning:
		return StyleStatusRunning.Render("●")
	case simulator.StatusCompleted:
		return StyleStatusComplete.Render("✓")
	case simulator.StatusReady:
		return StyleStatusReady.Render("◐")
	default:
		return StyleStatusPending.Render("○")
	}
}

func truncate(s string, width int) string {
	r := []rune(s)
	switch {
	case len(r) <= width:
		return s
	case width < 4:
		return string(r[:max(0, width)])
	}
	return string(r[:width-3]) + "..."
}

// SetSize updates the pane dimensions.
func (m *QueuePaneModel) SetSize(w, h int) {
	m.width = w
	m.height = h

	// Borders, title and details line.
	m.viewport.Width = max(10, w-4)
	m.viewport.Height = max(3, h-6)
	m.refresh()
}

// SetFocused updates the focus state.
func (m *QueuePaneModel) SetFocused(focused bool) {
	m.focused = focused
}
