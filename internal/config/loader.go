package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// fileConfig mirrors Config with optional fields, so a config file can
// override individual settings without restating the rest.
type fileConfig struct {
	MaxAgents      *int                      `json:"max_agents"`
	MaxConcurrent  *int                      `json:"max_concurrent"`
	MaxRetries     *int                      `json:"max_retries"`
	TimeoutSeconds *int                      `json:"timeout_seconds"`
	Retry          *RetryConfig              `json:"retry"`
	Providers      map[string]ProviderConfig `json:"providers"`
	Pipelines      map[string][]string       `json:"pipelines"`
	LogDir         *string                   `json:"log_dir"`
	DatabasePath   *string                   `json:"database_path"`
}

// Load reads and merges configuration from global and project paths.
// Order of precedence (highest to lowest): project config, global config, defaults.
// Missing files are not errors; malformed JSON returns an error.
func Load(globalPath, projectPath string) (*Config, error) {
	// Start with defaults
	cfg := DefaultConfig()

	// Merge global config if exists
	if globalPath != "" {
		if err := mergeConfigFile(cfg, globalPath); err != nil {
			return nil, fmt.Errorf("loading global config: %w", err)
		}
	}

	// Merge project config if exists (highest precedence)
	if projectPath != "" {
		if err := mergeConfigFile(cfg, projectPath); err != nil {
			return nil, fmt.Errorf("loading project config: %w", err)
		}
	}

	return cfg, nil
}

// LoadDefault loads configuration from conventional paths.
// Global: ~/.conductor/config.json
// Project: .conductor/config.json (relative to cwd)
func LoadDefault() (*Config, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("getting home directory: %w", err)
	}

	globalPath := filepath.Join(homeDir, ".conductor", "config.json")
	projectPath := filepath.Join(".conductor", "config.json")

	return Load(globalPath, projectPath)
}

// mergeConfigFile reads a JSON config file and merges it into the base config.
// Scalar fields present in the file override the base; provider and pipeline
// maps merge per key. Missing files are silently skipped.
func mergeConfigFile(base *Config, path string) error {
	// Check if file exists
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil // Missing file is not an error
	}

	// Read file
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading %s: %w", path, err)
	}

	// Parse JSON
	var loaded fileConfig
	if err := json.Unmarshal(data, &loaded); err != nil {
		return fmt.Errorf("parsing %s: %w", path, err)
	}

	// Merge scalar overrides
	if loaded.MaxAgents != nil {
		base.MaxAgents = *loaded.MaxAgents
	}
	if loaded.MaxConcurrent != nil {
		base.MaxConcurrent = *loaded.MaxConcurrent
	}
	if loaded.MaxRetries != nil {
		base.MaxRetries = *loaded.MaxRetries
	}
	if loaded.TimeoutSeconds != nil {
		base.TimeoutSeconds = *loaded.TimeoutSeconds
	}
	if loaded.Retry != nil {
		base.Retry = *loaded.Retry
	}
	if loaded.LogDir != nil {
		base.LogDir = *loaded.LogDir
	}
	if loaded.DatabasePath != nil {
		base.DatabasePath = *loaded.DatabasePath
	}

	// Merge providers
	for key, provider := range loaded.Providers {
		base.Providers[key] = provider
	}

	// Merge pipelines
	for key, pipeline := range loaded.Pipelines {
		base.Pipelines[key] = pipeline
	}

	return nil
}
