package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
}

func TestLoad(t *testing.T) {
	tests := map[string]struct {
		global  string
		project string
		expCfg  func(dir string) *Config
		expErr  bool
	}{
		"No config files should return defaults.": {
			expCfg: func(string) *Config { return DefaultConfig() },
		},
		"Global only should override set fields.": {
			global: `{"simulation": {"tick_interval_ms": 100, "max_concurrency": 4}}`,
			expCfg: func(string) *Config {
				c := DefaultConfig()
				c.Simulation.TickIntervalMs = 100
				c.Simulation.MaxConcurrency = 4
				return c
			},
		},
		"Project should win over global.": {
			global:  `{"simulation": {"tick_interval_ms": 100, "task_duration_ms": 500}}`,
			project: `{"simulation": {"tick_interval_ms": 50}, "server": {"addr": ":9000", "auth_token": "t"}}`,
			expCfg: func(string) *Config {
				c := DefaultConfig()
				c.Simulation.TickIntervalMs = 50
				c.Simulation.TaskDurationMs = 500
				c.Server.Addr = ":9000"
				c.Server.AuthToken = "t"
				return c
			},
		},
		"Relative playbook paths resolve against the config file.": {
			project: `{"playbook": "team.yaml"}`,
			expCfg: func(dir string) *Config {
				c := DefaultConfig()
				c.Playbook = filepath.Join(dir, "project", "team.yaml")
				return c
			},
		},
		"Malformed JSON should fail.": {
			global: "{invalid json",
			expErr: true,
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			dir := t.TempDir()

			globalPath := ""
			if test.global != "" {
				globalPath = filepath.Join(dir, "global", "config.json")
				writeFile(t, globalPath, test.global)
			}
			projectPath := ""
			if test.project != "" {
				projectPath = filepath.Join(dir, "project", "config.json")
				writeFile(t, projectPath, test.project)
			}

			cfg, err := Load(globalPath, projectPath)

			if test.expErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, test.expCfg(dir), cfg)
		})
	}
}

func TestLoadMissingFilesNotError(t *testing.T) {
	cfg, err := Load("/nonexistent/global.json", "/nonexistent/project.json")
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestApplyEnv(t *testing.T) {
	t.Run("Environment variables override file values.", func(t *testing.T) {
		t.Setenv(EnvTickIntervalMs, "10")
		t.Setenv(EnvMaxConcurrency, "3")
		t.Setenv(EnvPlaybook, "/tmp/pb.yaml")
		t.Setenv(EnvServerAddr, ":1234")
		t.Setenv(EnvAuthToken, "secret")

		cfg := DefaultConfig()
		require.NoError(t, ApplyEnv(cfg))

		assert.Equal(t, 10, cfg.Simulation.TickIntervalMs)
		assert.Equal(t, 3, cfg.Simulation.MaxConcurrency)
		assert.Equal(t, DefaultTaskDurationMs, cfg.Simulation.TaskDurationMs)
		assert.Equal(t, "/tmp/pb.yaml", cfg.Playbook)
		assert.Equal(t, ":1234", cfg.Server.Addr)
		assert.Equal(t, "secret", cfg.Server.AuthToken)
	})

	t.Run("Dotenv files are loaded without overriding the environment.", func(t *testing.T) {
		envFile := filepath.Join(t.TempDir(), ".env")
		writeFile(t, envFile, EnvTaskDurationMs+"=300\n"+EnvStartsPerTick+"=5\n")
		t.Setenv(EnvStartsPerTick, "2")
		// Registered for cleanup so the dotenv value does not leak to other tests.
		t.Setenv(EnvTaskDurationMs, "")
		os.Unsetenv(EnvTaskDurationMs)

		cfg := DefaultConfig()
		require.NoError(t, ApplyEnv(cfg, envFile, filepath.Join(t.TempDir(), "missing.env")))

		assert.Equal(t, 300, cfg.Simulation.TaskDurationMs)
		assert.Equal(t, 2, cfg.Simulation.StartsPerTick)
	})

	t.Run("Non numeric values fail.", func(t *testing.T) {
		t.Setenv(EnvMaxConcurrency, "many")

		err := ApplyEnv(DefaultConfig())
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrInvalid))
	})
}

func TestSimulationValidate(t *testing.T) {
	tests := map[string]struct {
		mutate func(*SimulationConfig)
		expErr bool
	}{
		"Defaults are valid.":              {mutate: func(*SimulationConfig) {}},
		"Zero restart delay is valid.":     {mutate: func(s *SimulationConfig) { s.RestartDelayMs = 0 }},
		"Zero tick interval is invalid.":   {mutate: func(s *SimulationConfig) { s.TickIntervalMs = 0 }, expErr: true},
		"Negative duration is invalid.":    {mutate: func(s *SimulationConfig) { s.TaskDurationMs = -1 }, expErr: true},
		"Zero concurrency is invalid.":     {mutate: func(s *SimulationConfig) { s.MaxConcurrency = 0 }, expErr: true},
		"Zero starts per tick is invalid.": {mutate: func(s *SimulationConfig) { s.StartsPerTick = 0 }, expErr: true},
		"Negative restart delay invalid.":  {mutate: func(s *SimulationConfig) { s.RestartDelayMs = -5 }, expErr: true},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			sim := DefaultConfig().Simulation
			test.mutate(&sim)

			err := sim.Validate()
			if test.expErr {
				assert.True(t, errors.Is(err, ErrInvalid))
				return
			}
			assert.NoError(t, err)
		})
	}
}
