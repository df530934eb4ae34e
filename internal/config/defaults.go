package config

import "path/filepath"

// DefaultConfig returns the built-in configuration: one provider per agent
// type and the standard feature pipeline.
func DefaultConfig() *Config {
	return &Config{
		MaxAgents:      10,
		MaxConcurrent:  3,
		MaxRetries:     3,
		TimeoutSeconds: 3600,
		Retry: RetryConfig{
			InitialIntervalMS:   100,
			MaxIntervalMS:       10000,
			MaxElapsedTimeMS:    120000,
			Multiplier:          2.0,
			RandomizationFactor: 0.5,
		},
		Providers: map[string]ProviderConfig{
			"backend": {
				Command: "claude",
			},
			"frontend": {
				Command: "claude",
			},
			"test": {
				Command: "claude",
			},
		},
		Pipelines: map[string][]string{
			"feature": {"backend", "frontend", "test"},
		},
		LogDir:       "logs",
		DatabasePath: filepath.Join(".conductor", "conductor.db"),
	}
}
