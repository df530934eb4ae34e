package worker

import (
	"context"
	"fmt"

	"github.com/codeframe/conductor/internal/scheduler"
	"github.com/codeframe/conductor/internal/workspace"
)

// Result is what a task execution produced.
type Result struct {
	Output    string   // captured stdout of the task command
	Artifacts []string // workspace-relative paths of files the task wrote
}

// Executor performs the actual work of a task. Implementations must honor
// context cancellation: a canceled ctx aborts the work and returns an error.
type Executor interface {
	Execute(ctx context.Context, task *scheduler.Task) (*Result, error)
}

// ExecutorFunc adapts a plain function to the Executor interface.
type ExecutorFunc func(ctx context.Context, task *scheduler.Task) (*Result, error)

// Execute calls f.
func (f ExecutorFunc) Execute(ctx context.Context, task *scheduler.Task) (*Result, error) {
	return f(ctx, task)
}

// Provider describes the command that performs work for one agent type.
type Provider struct {
	Command string   // executable to run
	Args    []string // fixed arguments placed before the task title
	Env     []string // extra environment entries, KEY=VALUE
}

// Factory resolves executors per agent type from the configured providers.
// Executors it creates share the factory's process manager and workspace
// manager.
type Factory struct {
	providers map[scheduler.AgentType]Provider
	procs     *ProcessManager
	spaces    *workspace.Manager
}

// NewFactory creates an executor factory. procs may be nil if subprocess
// tracking is not needed.
func NewFactory(providers map[scheduler.AgentType]Provider, procs *ProcessManager, spaces *workspace.Manager) *Factory {
	return &Factory{
		providers: providers,
		procs:     procs,
		spaces:    spaces,
	}
}

// Executor returns a command executor for the given agent type.
func (f *Factory) Executor(agentType scheduler.AgentType) (Executor, error) {
	provider, ok := f.providers[agentType]
	if !ok {
		return nil, fmt.Errorf("unknown agent type: %s", agentType)
	}
	return NewCommandExecutor(provider, f.procs, f.spaces), nil
}
