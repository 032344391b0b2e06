package tui

import (
	"fmt"
	"strconv"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"

	"github.com/aristath/playbooksim/internal/config"
)

// ApplyFunc applies saved simulation settings to the running simulator.
type ApplyFunc func(config.SimulationConfig) error

// SettingsPaneModel manages the settings form overlay.
type SettingsPaneModel struct {
	form        *huh.Form
	config      *config.Config
	apply       ApplyFunc
	globalPath  string
	projectPath string
	width       int
	height      int
	visible     bool
	saved       bool
	err         error

	// Form field bindings (strings for Huh)
	saveTarget     string
	tickInterval   string
	taskDuration   string
	maxConcurrency string
	startsPerTick  string
	restartDelay   string
}

// NewSettingsPaneModel creates a new settings pane. apply may be nil.
func NewSettingsPaneModel(cfg *config.Config, apply ApplyFunc, globalPath, projectPath string) SettingsPaneModel {
	m := SettingsPaneModel{
		config:      cfg,
		apply:       apply,
		globalPath:  globalPath,
		projectPath: projectPath,
	}

	m.loadFromConfig()
	m.buildForm()
	return m
}

// loadFromConfig initializes form field values from config.
func (m *SettingsPaneModel) loadFromConfig() {
	sim := m.config.Simulation
	m.saveTarget = "global"
	if m.globalPath == "" {
		m.saveTarget = "project"
	}
	m.tickInterval = strconv.Itoa(sim.TickIntervalMs)
	m.taskDuration = strconv.Itoa(sim.TaskDurationMs)
	m.maxConcurrency = strconv.Itoa(sim.MaxConcurrency)
	m.startsPerTick = strconv.Itoa(sim.StartsPerTick)
	m.restartDelay = strconv.Itoa(sim.RestartDelayMs)
}

func positiveInt(s string) error {
	n, err := strconv.Atoi(s)
	if err != nil {
		return fmt.Errorf("must be a whole number")
	}
	if n <= 0 {
		return fmt.Errorf("must be greater than zero")
	}
	return nil
}

func nonNegativeInt(s string) error {
	n, err := strconv.Atoi(s)
	if err != nil {
		return fmt.Errorf("must be a whole number")
	}
	if n < 0 {
		return fmt.Errorf("must not be negative")
	}
	return nil
}

// buildForm constructs the Huh form with all settings fields.
func (m *SettingsPaneModel) buildForm() {
	m.form = huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Key("tickInterval").
				Title("Tick Interval (ms)").
				Value(&m.tickInterval).
				Validate(positiveInt).
				Placeholder(strconv.Itoa(config.DefaultTickIntervalMs)),

			huh.NewInput().
				Key("taskDuration").
				Title("Task Duration (ms)").
				Value(&m.taskDuration).
				Validate(positiveInt).
				Placeholder(strconv.Itoa(config.DefaultTaskDurationMs)),

			huh.NewInput().
				Key("maxConcurrency").
				Title("Max Concurrency").
				Value(&m.maxConcurrency).
				Validate(positiveInt).
				Placeholder(strconv.Itoa(config.DefaultMaxConcurrency)),

			huh.NewInput().
				Key("startsPerTick").
				Title("Starts Per Tick").
				Value(&m.startsPerTick).
				Validate(positiveInt).
				Placeholder(strconv.Itoa(config.DefaultStartsPerTick)),

			huh.NewInput().
				Key("restartDelay").
				Title("Restart Delay (ms)").
				Value(&m.restartDelay).
				Validate(nonNegativeInt).
				Placeholder(strconv.Itoa(config.DefaultRestartDelayMs)),
		).Title("Simulation Timing"),

		huh.NewGroup(
			huh.NewSelect[string]().
				Key("saveTarget").
				Title("Save To").
				Options(
					huh.NewOption("Global (~/.playbooksim/config.json)", "global"),
					huh.NewOption("Project (.playbooksim/config.json)", "project"),
				).
				Value(&m.saveTarget),
		).Title("Save Target"),
	)
}

// Init initializes the settings pane.
func (m SettingsPaneModel) Init() tea.Cmd {
	return m.form.Init()
}

// Update handles messages for the settings pane.
func (m SettingsPaneModel) Update(msg tea.Msg) (SettingsPaneModel, tea.Cmd) {
	if !m.visible {
		return m, nil
	}

	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case KeyEsc:
			// Cancel without saving
			m.visible = false
			m.saved = false
			return m, nil
		}
	}

	// Delegate to form
	form, cmd := m.form.Update(msg)
	if f, ok := form.(*huh.Form); ok {
		m.form = f
	}

	if m.form.State == huh.StateCompleted {
		m.err = m.commit()
		m.saved = m.err == nil

		// Hide form after successful save
		if m.saved {
			m.visible = false
		}
	}

	return m, cmd
}

// commit copies the form values into the config, saves it and applies it.
func (m *SettingsPaneModel) commit() error {
	sim, err := m.formValues()
	if err != nil {
		return err
	}

	cfg := *m.config
	cfg.Simulation = sim

	targetPath := m.globalPath
	if m.saveTarget == "project" {
		targetPath = m.projectPath
	}
	if targetPath != "" {
		if err := config.Save(&cfg, targetPath); err != nil {
			return err
		}
	}

	if m.apply != nil {
		if err := m.apply(sim); err != nil {
			return fmt.Errorf("applying settings: %w", err)
		}
	}

	m.config.Simulation = sim
	return nil
}

func (m SettingsPaneModel) formValues() (config.SimulationConfig, error) {
	fields := []struct {
		name string
		src  string
	}{
		{"tick interval", m.tickInterval},
		{"task duration", m.taskDuration},
		{"max concurrency", m.maxConcurrency},
		{"starts per tick", m.startsPerTick},
		{"restart delay", m.restartDelay},
	}
	vals := make([]int, len(fields))
	for i, f := range fields {
		n, err := strconv.Atoi(f.src)
		if err != nil {
			return config.SimulationConfig{}, fmt.Errorf("%s %q: %w", f.name, f.src, config.ErrInvalid)
		}
		vals[i] = n
	}

	sim := config.SimulationConfig{
		TickIntervalMs: vals[0],
		TaskDurationMs: vals[1],
		MaxConcurrency: vals[2],
		StartsPerTick:  vals[3],
		RestartDelayMs: vals[4],
	}
	return sim, sim.Validate()
}

// View renders the settings pane.
func (m SettingsPaneModel) View() string {
	if !m.visible {
		return ""
	}

	var content string
	if m.err != nil {
		content = StyleError.Render(fmt.Sprintf("✗ Error saving: %v", m.err))
	} else {
		content = m.form.View()
	}

	// Wrap in styled border
	style := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("62")).
		Padding(1, 2).
		Width(max(0, m.width-4)).
		Height(max(0, m.height-4))

	title := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("62")).
		Render("⚙ Settings")

	return lipgloss.JoinVertical(lipgloss.Left, title, style.Render(content))
}

// SetSize updates the dimensions of the settings pane.
func (m *SettingsPaneModel) SetSize(w, h int) {
	m.width = w
	m.height = h
	if m.form != nil {
		m.form.WithWidth(max(0, w-8)).WithHeight(max(0, h-8))
	}
}

// SetVisible shows or hides the settings pane.
func (m *SettingsPaneModel) SetVisible(v bool) {
	m.visible = v
	m.saved = false
	m.err = nil

	// Rebuild the form from the current config when showing.
	if v {
		m.loadFromConfig()
		m.buildForm()
		if m.width > 0 {
			m.SetSize(m.width, m.height)
		}
	}
}

// IsVisible returns whether the settings pane is currently visible.
func (m SettingsPaneModel) IsVisible() bool {
	return m.visible
}

// Saved reports whether the last submission was saved and applied.
func (m SettingsPaneModel) Saved() bool {
	return m.saved
}

// Err returns the error of the last submission.
func (m SettingsPaneModel) Err() error {
	return m.err
}
