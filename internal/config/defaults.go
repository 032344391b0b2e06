package config

const (
	DefaultTickIntervalMs = 800
	DefaultTaskDurationMs = 2000
	DefaultMaxConcurrency = 2
	DefaultStartsPerTick  = 1
	DefaultRestartDelayMs = 100
	DefaultServerAddr     = "127.0.0.1:7480"
)

// DefaultConfig returns the default configuration: the dashboard's classic
// timing, the built-in playbook and a loopback API address.
func DefaultConfig() *Config {
	return &Config{
		Simulation: SimulationConfig{
			TickIntervalMs: DefaultTickIntervalMs,
			TaskDurationMs: DefaultTaskDurationMs,
			MaxConcurrency: DefaultMaxConcurrency,
			StartsPerTick:  DefaultStartsPerTick,
			RestartDelayMs: DefaultRestartDelayMs,
		},
		Server: ServerConfig{
			Addr: DefaultServerAddr,
		},
	}
}
