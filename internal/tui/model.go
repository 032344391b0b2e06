package tui

import (
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/aristath/playbooksim/internal/config"
	"github.com/aristath/playbooksim/internal/events"
	"github.com/aristath/playbooksim/internal/playbook"
	"github.com/aristath/playbooksim/internal/simulator"
)

// Controller drives a simulation. *simulator.Simulator implements it.
type Controller interface {
	Start()
	Pause()
	Reset()
	Snapshot() simulator.Snapshot
}

// PaneID identifies which pane is focused.
type PaneID int

const (
	PaneQueue PaneID = iota
	PaneLog
	PaneProgress
	paneCount
)

// Options configures the dashboard.
type Options struct {
	Playbook    *playbook.Playbook
	Config      *config.Config
	Apply       ApplyFunc // Called with saved settings
	GlobalPath  string
	ProjectPath string
}

// Model is the root Bubble Tea model for the TUI.
type Model struct {
	ctrl         Controller
	playbook     *playbook.Playbook
	queuePane    QueuePaneModel
	logPane      LogPaneModel
	progressPane ProgressPaneModel
	settingsPane SettingsPaneModel
	focusedPane  PaneID
	eventSub     <-chan events.Event
	width        int
	height       int
	quitting     bool
	showSettings bool
}

// New creates a new TUI model. eventSub should be a subscription to every
// simulator event; the model redraws from ctrl snapshots when events arrive.
func New(ctrl Controller, eventSub <-chan events.Event, opts Options) Model {
	cfg := opts.Config
	if cfg == nil {
		cfg = config.DefaultConfig()
	}

	m := Model{
		ctrl:         ctrl,
		playbook:     opts.Playbook,
		queuePane:    NewQueuePaneModel(opts.Playbook),
		logPane:      NewLogPaneModel(),
		progressPane: NewProgressPaneModel(),
		settingsPane: NewSettingsPaneModel(cfg, opts.Apply, opts.GlobalPath, opts.ProjectPath),
		focusedPane:  PaneQueue,
		eventSub:     eventSub,
	}
	m.sync()
	m.updateFocusStates()
	return m
}

// Init initializes the model and returns the initial command.
func (m Model) Init() tea.Cmd {
	cmds := []tea.Cmd{waitForEvent(m.eventSub)}
	if m.progressPane.Active() {
		cmds = append(cmds, m.progressPane.spinner.Tick)
	}
	return tea.Batch(cmds...)
}

// waitForEvent returns a command that waits for the next event from the event bus.
func waitForEvent(sub <-chan events.Event) tea.Cmd {
	return func() tea.Msg {
		event, ok := <-sub
		if !ok {
			return nil // bus closed
		}
		return event
	}
}

// Update handles messages and updates the model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		// If settings panel is open, route all keys to it (modal behavior)
		if m.showSettings {
			var cmd tea.Cmd
			m.settingsPane, cmd = m.settingsPane.Update(msg)
			cmds = append(cmds, cmd)

			// Closed by esc or a successful save.
			if !m.settingsPane.IsVisible() {
				m.showSettings = false
			}
			return m, tea.Batch(cmds...)
		}

		switch msg.String() {
		case KeyQuit, KeyCtrlC:
			m.quitting = true
			return m, tea.Quit

		case KeySettings:
			m.showSettings = true
			m.settingsPane.SetVisible(true)
			cmds = append(cmds, m.settingsPane.Init())

		case KeyToggle:
			if m.ctrl.Snapshot().Running {
				m.ctrl.Pause()
			} else {
				m.ctrl.Start()
			}
			cmds = append(cmds, m.sync())

		case KeyReset:
			m.ctrl.Reset()
			cmds = append(cmds, m.sync())

		case KeyTab:
			m.focusedPane = (m.focusedPane + 1) % paneCount
			m.updateFocusStates()

		case KeyShiftTab:
			m.focusedPane = (m.focusedPane + paneCount - 1) % paneCount
			m.updateFocusStates()

		case KeyPane1:
			m.focusedPane = PaneQueue
			m.updateFocusStates()

		case KeyPane2:
			m.focusedPane = PaneLog
			m.updateFocusStates()

		case KeyPane3:
			m.focusedPane = PaneProgress
			m.updateFocusStates()

		default:
			// Delegate to focused pane
			var cmd tea.Cmd
			switch m.focusedPane {
			case PaneQueue:
				m.queuePane, cmd = m.queuePane.Update(msg)
			case PaneLog:
				m.logPane, cmd = m.logPane.Update(msg)
			}
			cmds = append(cmds, cmd)
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.computeLayout()
		m.settingsPane.SetSize(msg.Width, msg.Height)

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.progressPane, cmd = m.progressPane.Update(msg)
		cmds = append(cmds, cmd)

	case events.Event:
		cmds = append(cmds, m.sync(), waitForEvent(m.eventSub))

	default:
		// Forward remaining messages (form internals) to the settings overlay.
		if m.showSettings {
			var cmd tea.Cmd
			m.settingsPane, cmd = m.settingsPane.Update(msg)
			cmds = append(cmds, cmd)
			if !m.settingsPane.IsVisible() {
				m.showSettings = false
			}
		}
	}

	return m, tea.Batch(cmds...)
}

// sync copies the current simulator snapshot into every pane.
func (m *Model) sync() tea.Cmd {
	snap := m.ctrl.Snapshot()
	m.queuePane.SetTasks(snap.Tasks)
	m.logPane.Sync(snap.Log)
	m.progressPane.SetCounts(snap.Total, snap.Completed, snap.Active, snap.Ready, snap.Pending, snap.Progress)
	return m.progressPane.SetActive(snap.Running, snap.RunID)
}

// View renders the TUI.
func (m Model) View() string {
	if m.quitting {
		return "Goodbye!\n"
	}

	if m.width == 0 || m.height == 0 {
		return "Initializing..."
	}

	if m.showSettings {
		return m.settingsPane.View()
	}

	rightPane := lipgloss.JoinVertical(lipgloss.Left, m.logPane.View(), m.progressPane.View())
	mainContent := lipgloss.JoinHorizontal(lipgloss.Top, m.queuePane.View(), rightPane)

	parts := []string{}
	if header := headerView(m.playbook, m.width); header != "" {
		parts = append(parts, header)
	}
	parts = append(parts, mainContent, HelpView())

	return lipgloss.JoinVertical(lipgloss.Left, parts...)
}

// computeLayout calculates pane dimensions and updates all child models.
func (m *Model) computeLayout() {
	headerHeight := 0
	if m.playbook != nil {
		headerHeight = 2
	}

	leftWidth := (m.width * 45) / 100
	rightWidth := m.width - leftWidth
	availableHeight := m.height - headerHeight - 1 // reserve 1 line for help bar
	logHeight := (availableHeight * 60) / 100
	progressHeight := availableHeight - logHeight

	m.queuePane.SetSize(leftWidth, availableHeight)
	m.logPane.SetSize(rightWidth, logHeight)
	m.progressPane.SetSize(rightWidth, progressHeight)

	m.updateFocusStates()
}

// updateFocusStates updates the focus state of all panes.
func (m *Model) updateFocusStates() {
	m.queuePane.SetFocused(m.focusedPane == PaneQueue)
	m.logPane.SetFocused(m.focusedPane == PaneLog)
	m.progressPane.SetFocused(m.focusedPane == PaneProgress)
}
