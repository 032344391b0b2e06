package commands

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/alecthomas/kingpin/v2"

	"github.com/aristath/playbooksim/internal/config"
	"github.com/aristath/playbooksim/internal/log"
	"github.com/aristath/playbooksim/internal/playbook"
	"github.com/aristath/playbooksim/internal/simulator"
)

const (
	// LoggerTypeDefault is the logger default type.
	LoggerTypeDefault = "default"
	// LoggerTypeJSON is the logger json type.
	LoggerTypeJSON = "json"
)

// Command represents an application command, all commands that want to be executed
// should implement and setup on main.
type Command interface {
	Name() string
	Run(ctx context.Context) error
}

// RootCommand represents the root command configuration and global configuration
// for all the commands.
type RootCommand struct {
	// Global flags.
	Debug          bool
	NoLog          bool
	NoColor        bool
	LoggerType     string
	GlobalConfig   string
	ProjectConfig  string
	PlaybookPath   string
	SkipValidation bool

	// Timing overrides, zero keeps the configured value.
	TickInterval   time.Duration
	TaskDuration   time.Duration
	MaxConcurrency int
	StartsPerTick  int

	// Global instances.
	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer
	Logger log.Logger
}

// NewRootCommand initializes the main root configuration.
func NewRootCommand(app *kingpin.Application) *RootCommand {
	c := &RootCommand{}

	app.Flag("debug", "Enable debug mode.").BoolVar(&c.Debug)
	app.Flag("no-log", "Disable logger.").BoolVar(&c.NoLog)
	app.Flag("no-color", "Disable logger color.").BoolVar(&c.NoColor)
	app.Flag("logger", "Selects the logger type.").Default(LoggerTypeDefault).EnumVar(&c.LoggerType, LoggerTypeDefault, LoggerTypeJSON)

	// Without a home directory the config files are skipped.
	globalPath, projectPath, _ := config.DefaultPaths()
	app.Flag("global-config", "Path to the global JSON config file.").Default(globalPath).StringVar(&c.GlobalConfig)
	app.Flag("project-config", "Path to the project JSON config file.").Default(projectPath).StringVar(&c.ProjectConfig)
	app.Flag("playbook", "Playbook YAML/JSON file, the built-in playbook is used when empty.").Envar(config.EnvPlaybook).StringVar(&c.PlaybookPath)
	app.Flag("skip-validation", "Load playbooks with dangling dependencies or cycles.").BoolVar(&c.SkipValidation)

	app.Flag("tick", "Scheduling period override.").DurationVar(&c.TickInterval)
	app.Flag("task-duration", "Simulated task duration override.").DurationVar(&c.TaskDuration)
	app.Flag("max-concurrency", "Max running tasks override.").IntVar(&c.MaxConcurrency)
	app.Flag("starts-per-tick", "Max task starts per tick override.").IntVar(&c.StartsPerTick)

	return c
}

// loadConfig merges the config files, the environment and the timing flags.
func (c RootCommand) loadConfig() (*config.Config, error) {
	cfg, err := config.Load(c.GlobalConfig, c.ProjectConfig)
	if err != nil {
		return nil, err
	}
	if err := config.ApplyEnv(cfg, ".env"); err != nil {
		return nil, err
	}

	if c.TickInterval != 0 {
		cfg.Simulation.TickIntervalMs = int(c.TickInterval / time.Millisecond)
	}
	if c.TaskDuration != 0 {
		cfg.Simulation.TaskDurationMs = int(c.TaskDuration / time.Millisecond)
	}
	if c.MaxConcurrency != 0 {
		cfg.Simulation.MaxConcurrency = c.MaxConcurrency
	}
	if c.StartsPerTick != 0 {
		cfg.Simulation.StartsPerTick = c.StartsPerTick
	}
	if c.PlaybookPath != "" {
		cfg.Playbook = c.PlaybookPath
	}

	if err := cfg.Simulation.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// loadPlaybook returns the configured playbook, or the built-in one.
func (c RootCommand) loadPlaybook(cfg *config.Config) (*playbook.Playbook, error) {
	switch {
	case cfg.Playbook == "":
		return playbook.Default(), nil
	case c.SkipValidation:
		return playbook.ReadFile(cfg.Playbook)
	default:
		return playbook.LoadFile(cfg.Playbook)
	}
}

// session is everything a command needs to drive a simulation.
type session struct {
	cfg      *config.Config
	playbook *playbook.Playbook
	sim      *simulator.Simulator
}

func (c RootCommand) newSession() (*session, error) {
	cfg, err := c.loadConfig()
	if err != nil {
		return nil, fmt.Errorf("could not load config: %w", err)
	}

	pb, err := c.loadPlaybook(cfg)
	if err != nil {
		return nil, fmt.Errorf("could not load playbook: %w", err)
	}

	sim, err := simulator.New(simulator.Config{
		Timing:         simulator.TimingFromConfig(cfg.Simulation),
		SkipValidation: c.SkipValidation,
		NoRestartDelay: cfg.Simulation.RestartDelayMs == 0,
		Logger:         c.logger(),
	}, pb.CloneTasks())
	if err != nil {
		return nil, fmt.Errorf("could not create simulator: %w", err)
	}

	c.logger().WithValues(log.Kv{
		"tasks":    len(pb.Tasks),
		"playbook": cfg.Playbook,
	}).Debugf("simulation loaded")

	return &session{cfg: cfg, playbook: pb, sim: sim}, nil
}

func (c RootCommand) logger() log.Logger {
	if c.Logger == nil {
		return log.Noop
	}
	return c.Logger
}
