package config

import "time"

// ProviderConfig defines the command that performs the actual work for one
// agent type. Providers are transport only; the engine is agnostic to what
// the command does inside the task workspace.
type ProviderConfig struct {
	Command string   `json:"command"`        // Executable name (e.g., "claude", "codex")
	Args    []string `json:"args,omitempty"` // Default args prepended to every invocation
	Env     []string `json:"env,omitempty"`  // Extra environment entries, KEY=VALUE
}

// RetryConfig tunes the exponential backoff between execution attempts.
// Intervals are milliseconds so the values survive JSON round-trips.
type RetryConfig struct {
	InitialIntervalMS   int     `json:"initial_interval_ms"`
	MaxIntervalMS       int     `json:"max_interval_ms"`
	MaxElapsedTimeMS    int     `json:"max_elapsed_time_ms"`
	Multiplier          float64 `json:"multiplier"`
	RandomizationFactor float64 `json:"randomization_factor"`
}

// Config is the top-level engine configuration.
//
// MaxAgents and MaxConcurrent are deliberately independent knobs: the first
// caps how many agents the pool may hold, the second how many tasks execute
// simultaneously. A large pool can still be throttled to a few in-flight
// tasks, and a small pool is simply revisited across scheduling ticks.
type Config struct {
	MaxAgents      int                       `json:"max_agents"`
	MaxConcurrent  int                       `json:"max_concurrent"`
	MaxRetries     int                       `json:"max_retries"`
	TimeoutSeconds int                       `json:"timeout_seconds"`
	Retry          RetryConfig               `json:"retry"`
	Providers      map[string]ProviderConfig `json:"providers"` // agent type -> provider
	Pipelines      map[string][]string       `json:"pipelines"` // pipeline name -> agent type sequence
	LogDir         string                    `json:"log_dir"`
	DatabasePath   string                    `json:"database_path"`
}

// Timeout returns the run deadline as a duration. Zero means no deadline.
func (c *Config) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}
