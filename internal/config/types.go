package config

import (
	"errors"
	"fmt"
	"time"
)

// ErrInvalid is returned when a configuration value is out of range.
var ErrInvalid = errors.New("invalid configuration")

// SimulationConfig holds the simulator tuning knobs.
// Zero values mean "not set" and are filled from defaults when merging.
type SimulationConfig struct {
	TickIntervalMs int `json:"tick_interval_ms,omitempty"` // Scheduling period
	TaskDurationMs int `json:"task_duration_ms,omitempty"` // Simulated running time per task
	MaxConcurrency int `json:"max_concurrency,omitempty"`  // Max tasks running at once
	StartsPerTick  int `json:"starts_per_tick,omitempty"`  // Max ready tasks started per tick
	RestartDelayMs int `json:"restart_delay_ms,omitempty"` // Delay before restarting a finished run
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Addr      string `json:"addr,omitempty"`
	AuthToken string `json:"auth_token,omitempty"` // Bearer token for /v1, empty disables auth
}

// Config is the top-level configuration.
type Config struct {
	Simulation SimulationConfig `json:"simulation"`
	Playbook   string           `json:"playbook,omitempty"` // Playbook file path, empty for the built-in one
	Server     ServerConfig     `json:"server"`
}

// TickInterval returns the tick period as a duration.
func (s SimulationConfig) TickInterval() time.Duration {
	return time.Duration(s.TickIntervalMs) * time.Millisecond
}

// TaskDuration returns the simulated task duration.
func (s SimulationConfig) TaskDuration() time.Duration {
	return time.Duration(s.TaskDurationMs) * time.Millisecond
}

// RestartDelay returns the delay before an implicit restart.
func (s SimulationConfig) RestartDelay() time.Duration {
	return time.Duration(s.RestartDelayMs) * time.Millisecond
}

// Validate checks that every simulation value is usable.
func (s SimulationConfig) Validate() error {
	switch {
	case s.TickIntervalMs <= 0:
		return fmt.Errorf("tick_interval_ms must be positive, got %d: %w", s.TickIntervalMs, ErrInvalid)
	case s.TaskDurationMs <= 0:
		return fmt.Errorf("task_duration_ms must be positive, got %d: %w", s.TaskDurationMs, ErrInvalid)
	case s.MaxConcurrency <= 0:
		return fmt.Errorf("max_concurrency must be positive, got %d: %w", s.MaxConcurrency, ErrInvalid)
	case s.StartsPerTick <= 0:
		return fmt.Errorf("starts_per_tick must be positive, got %d: %w", s.StartsPerTick, ErrInvalid)
	case s.RestartDelayMs < 0:
		return fmt.Errorf("restart_delay_ms must not be negative, got %d: %w", s.RestartDelayMs, ErrInvalid)
	}
	return nil
}

// merge copies every set field of other into s.
func (s *SimulationConfig) merge(other SimulationConfig) {
	if other.TickIntervalMs != 0 {
		s.TickIntervalMs = other.TickIntervalMs
	}
	if other.TaskDurationMs != 0 {
		s.TaskDurationMs = other.TaskDurationMs
	}
	if other.MaxConcurrency != 0 {
		s.MaxConcurrency = other.MaxConcurrency
	}
	if other.StartsPerTick != 0 {
		s.StartsPerTick = other.StartsPerTick
	}
	if other.RestartDelayMs != 0 {
		s.RestartDelayMs = other.RestartDelayMs
	}
}
