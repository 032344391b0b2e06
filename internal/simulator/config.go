package simulator

import (
	"fmt"
	"time"

	"github.com/aristath/playbooksim/internal/config"
	"github.com/aristath/playbooksim/internal/events"
	"github.com/aristath/playbooksim/internal/log"
)

// Timing holds the scheduling constants.
type Timing struct {
	TickInterval   time.Duration // Period between scheduling passes
	TaskDuration   time.Duration // Wall-clock time a task stays running
	MaxConcurrency int           // Max tasks running at once
	StartsPerTick  int           // Max ready tasks started in one pass
	RestartDelay   time.Duration // Delay before ticking when Start restarts a finished run
}

// DefaultTiming returns 800ms ticks, 2s tasks, 2 slots, one start per tick
// and a 100ms restart delay.
func DefaultTiming() Timing {
	return TimingFromConfig(config.DefaultConfig().Simulation)
}

// TimingFromConfig converts the file configuration into Timing.
func TimingFromConfig(c config.SimulationConfig) Timing {
	return Timing{
		TickInterval:   c.TickInterval(),
		TaskDuration:   c.TaskDuration(),
		MaxConcurrency: c.MaxConcurrency,
		StartsPerTick:  c.StartsPerTick,
		RestartDelay:   c.RestartDelay(),
	}
}

// Validate checks every field is usable.
func (t Timing) Validate() error {
	switch {
	case t.TickInterval <= 0:
		return fmt.Errorf("tick interval must be positive: %w", config.ErrInvalid)
	case t.TaskDuration <= 0:
		return fmt.Errorf("task duration must be positive: %w", config.ErrInvalid)
	case t.MaxConcurrency <= 0:
		return fmt.Errorf("max concurrency must be positive: %w", config.ErrInvalid)
	case t.StartsPerTick <= 0:
		return fmt.Errorf("starts per tick must be positive: %w", config.ErrInvalid)
	case t.RestartDelay < 0:
		return fmt.Errorf("restart delay must not be negative: %w", config.ErrInvalid)
	}
	return nil
}

// Config is the configuration for the simulator.
type Config struct {
	Timing Timing
	// SkipValidation accepts dependency graphs with cycles or dangling
	// references. Affected tasks then stay pending and the run never halts.
	SkipValidation bool
	// NoRestartDelay keeps a zero Timing.RestartDelay instead of filling
	// the default, so a finished run restarts on the next tick.
	NoRestartDelay bool
	// Now returns the current time. Defaults to time.Now.
	Now    func() time.Time
	Logger log.Logger
	// Bus receives simulator events. A private bus is created when nil.
	Bus *events.EventBus
}

func (c *Config) defaults() error {
	def := DefaultTiming()
	if c.Timing.TickInterval == 0 {
		c.Timing.TickInterval = def.TickInterval
	}
	if c.Timing.TaskDuration == 0 {
		c.Timing.TaskDuration = def.TaskDuration
	}
	if c.Timing.MaxConcurrency == 0 {
		c.Timing.MaxConcurrency = def.MaxConcurrency
	}
	if c.Timing.StartsPerTick == 0 {
		c.Timing.StartsPerTick = def.StartsPerTick
	}
	if c.Timing.RestartDelay == 0 && !c.NoRestartDelay {
		c.Timing.RestartDelay = def.RestartDelay
	}
	if err := c.Timing.Validate(); err != nil {
		return err
	}

	if c.Now == nil {
		c.Now = time.Now
	}

	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "simulator"})

	return nil
}
