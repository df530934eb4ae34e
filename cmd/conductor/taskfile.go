package main

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/codeframe/conductor/internal/config"
	"github.com/codeframe/conductor/internal/orchestrator"
	"github.com/codeframe/conductor/internal/scheduler"
	"github.com/codeframe/conductor/internal/worker"
)

// loadTaskFile reads a JSON array of tasks and fills in defaults. Structural
// problems (cycles, missing dependencies) are left for BuildGraph; this only
// rejects entries that are malformed on their own.
func loadTaskFile(path string) ([]*scheduler.Task, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var tasks []*scheduler.Task
	if err := json.Unmarshal(data, &tasks); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if len(tasks) == 0 {
		return nil, fmt.Errorf("%s: no tasks", path)
	}

	for i, t := range tasks {
		if t == nil {
			return nil, fmt.Errorf("%s: task at index %d is null", path, i)
		}
		if t.ID == 0 {
			return nil, fmt.Errorf("%s: task at index %d has no id", path, i)
		}
		if t.Title == "" {
			return nil, fmt.Errorf("%s: task %d has no title", path, t.ID)
		}
		if t.AgentType != "" && !t.AgentType.Valid() {
			return nil, fmt.Errorf("%s: task %d has unknown agent type %q", path, t.ID, t.AgentType)
		}
		if t.TaskNumber == 0 {
			t.TaskNumber = i + 1
		}
	}
	return tasks, nil
}

// providersFromConfig converts the config's provider table into the worker
// package's representation, keyed by agent type.
func providersFromConfig(cfg *config.Config) map[scheduler.AgentType]worker.Provider {
	providers := make(map[scheduler.AgentType]worker.Provider, len(cfg.Providers))
	for name, p := range cfg.Providers {
		providers[scheduler.AgentType(name)] = worker.Provider{
			Command: p.Command,
			Args:    p.Args,
			Env:     p.Env,
		}
	}
	return providers
}

// retryFromConfig converts millisecond-based retry settings into durations.
func retryFromConfig(rc config.RetryConfig) orchestrator.RetryConfig {
	return orchestrator.RetryConfig{
		InitialInterval:     time.Duration(rc.InitialIntervalMS) * time.Millisecond,
		MaxInterval:         time.Duration(rc.MaxIntervalMS) * time.Millisecond,
		MaxElapsedTime:      time.Duration(rc.MaxElapsedTimeMS) * time.Millisecond,
		Multiplier:          rc.Multiplier,
		RandomizationFactor: rc.RandomizationFactor,
	}
}
