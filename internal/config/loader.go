package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/joho/godotenv"
)

// Environment variable names. They override file values.
const (
	EnvTickIntervalMs = "PLAYBOOKSIM_TICK_INTERVAL_MS"
	EnvTaskDurationMs = "PLAYBOOKSIM_TASK_DURATION_MS"
	EnvMaxConcurrency = "PLAYBOOKSIM_MAX_CONCURRENCY"
	EnvStartsPerTick  = "PLAYBOOKSIM_STARTS_PER_TICK"
	EnvRestartDelayMs = "PLAYBOOKSIM_RESTART_DELAY_MS"
	EnvPlaybook       = "PLAYBOOKSIM_PLAYBOOK"
	EnvServerAddr     = "PLAYBOOKSIM_ADDR"
	EnvAuthToken      = "PLAYBOOKSIM_API_TOKEN"
)

// Load reads and merges configuration from global and project paths.
// Order of precedence (highest to lowest): project config, global config, defaults.
// Missing files are not errors; malformed JSON returns an error.
func Load(globalPath, projectPath string) (*Config, error) {
	cfg := DefaultConfig()

	if globalPath != "" {
		if err := mergeConfigFile(cfg, globalPath); err != nil {
			return nil, fmt.Errorf("loading global config: %w", err)
		}
	}

	if projectPath != "" {
		if err := mergeConfigFile(cfg, projectPath); err != nil {
			return nil, fmt.Errorf("loading project config: %w", err)
		}
	}

	return cfg, nil
}

// DefaultPaths returns the conventional config locations.
// Global: ~/.playbooksim/config.json
// Project: .playbooksim/config.json (relative to cwd)
func DefaultPaths() (globalPath, projectPath string, err error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", "", fmt.Errorf("getting home directory: %w", err)
	}

	return filepath.Join(homeDir, ".playbooksim", "config.json"), filepath.Join(".playbooksim", "config.json"), nil
}

// LoadDefault loads configuration from the conventional paths, then applies
// environment overrides (including a .env file in the working directory).
func LoadDefault() (*Config, error) {
	globalPath, projectPath, err := DefaultPaths()
	if err != nil {
		return nil, err
	}

	cfg, err := Load(globalPath, projectPath)
	if err != nil {
		return nil, err
	}

	if err := ApplyEnv(cfg, ".env"); err != nil {
		return nil, err
	}

	return cfg, nil
}

// ApplyEnv overrides cfg with PLAYBOOKSIM_* environment variables. envFiles
// are loaded first with godotenv; missing files are skipped and variables
// already present in the environment win over file values.
func ApplyEnv(cfg *Config, envFiles ...string) error {
	var existing []string
	for _, f := range envFiles {
		if _, err := os.Stat(f); err == nil {
			existing = append(existing, f)
		}
	}
	if len(existing) > 0 {
		if err := godotenv.Load(existing...); err != nil {
			return fmt.Errorf("loading env files: %w", err)
		}
	}

	ints := []struct {
		key string
		dst *int
	}{
		{EnvTickIntervalMs, &cfg.Simulation.TickIntervalMs},
		{EnvTaskDurationMs, &cfg.Simulation.TaskDurationMs},
		{EnvMaxConcurrency, &cfg.Simulation.MaxConcurrency},
		{EnvStartsPerTick, &cfg.Simulation.StartsPerTick},
		{EnvRestartDelayMs, &cfg.Simulation.RestartDelayMs},
	}
	for _, e := range ints {
		val, ok := os.LookupEnv(e.key)
		if !ok || val == "" {
			continue
		}
		n, err := strconv.Atoi(val)
		if err != nil {
			return fmt.Errorf("parsing %s=%q: %w", e.key, val, ErrInvalid)
		}
		*e.dst = n
	}

	if val, ok := os.LookupEnv(EnvPlaybook); ok && val != "" {
		cfg.Playbook = val
	}
	if val, ok := os.LookupEnv(EnvServerAddr); ok && val != "" {
		cfg.Server.Addr = val
	}
	if val, ok := os.LookupEnv(EnvAuthToken); ok && val != "" {
		cfg.Server.AuthToken = val
	}

	return nil
}

// mergeConfigFile reads a JSON config file and merges it into the base config.
// Missing files are silently skipped. Malformed JSON returns an error.
func mergeConfigFile(base *Config, path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading %s: %w", path, err)
	}

	var loaded Config
	if err := json.Unmarshal(data, &loaded); err != nil {
		return fmt.Errorf("parsing %s: %w", path, err)
	}

	base.Simulation.merge(loaded.Simulation)

	if loaded.Playbook != "" {
		// Relative playbook paths are resolved against the config file.
		pb := loaded.Playbook
		if !filepath.IsAbs(pb) {
			pb = filepath.Join(filepath.Dir(path), pb)
		}
		base.Playbook = pb
	}

	if loaded.Server.Addr != "" {
		base.Server.Addr = loaded.Server.Addr
	}
	if loaded.Server.AuthToken != "" {
		base.Server.AuthToken = loaded.Server.AuthToken
	}

	return nil
}
