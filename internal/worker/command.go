package worker

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/google/uuid"

	"github.com/codeframe/conductor/internal/scheduler"
	"github.com/codeframe/conductor/internal/workspace"
)

// ExecutionError wraps a task command failure with the captured stderr.
type ExecutionError struct {
	TaskID int64
	Stderr string
	Err    error
}

func (e *ExecutionError) Error() string {
	if e.Stderr != "" {
		return fmt.Sprintf("task %d execution failed: %v (stderr: %s)", e.TaskID, e.Err, e.Stderr)
	}
	return fmt.Sprintf("task %d execution failed: %v", e.TaskID, e.Err)
}

func (e *ExecutionError) Unwrap() error { return e.Err }

// CommandExecutor runs the provider command as a subprocess for each task.
// The command runs inside a scratch workspace created for the task; files it
// writes there are returned as artifacts. Task context travels in argv (the
// title is the last argument) and in CONDUCTOR_* environment variables.
type CommandExecutor struct {
	provider  Provider
	sessionID string
	procs     *ProcessManager
	spaces    *workspace.Manager
}

// NewCommandExecutor creates an executor for one provider command. Each
// executor carries its own session id, handed to the command via the
// environment so provider tooling can correlate invocations.
func NewCommandExecutor(provider Provider, procs *ProcessManager, spaces *workspace.Manager) *CommandExecutor {
	return &CommandExecutor{
		provider:  provider,
		sessionID: uuid.NewString(),
		procs:     procs,
		spaces:    spaces,
	}
}

// SessionID returns the executor's session identifier.
func (e *CommandExecutor) SessionID() string {
	return e.sessionID
}

// Execute runs the provider command for the task and collects its artifacts.
func (e *CommandExecutor) Execute(ctx context.Context, task *scheduler.Task) (*Result, error) {
	ws, err := e.freshWorkspace(task.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare workspace: %w", err)
	}

	args := append(append([]string(nil), e.provider.Args...), task.Title)
	cmd := newCommand(ctx, e.provider.Command, args...)
	cmd.Dir = ws.Path
	cmd.Env = append(os.Environ(),
		fmt.Sprintf("CONDUCTOR_TASK_ID=%d", task.ID),
		fmt.Sprintf("CONDUCTOR_TASK_TITLE=%s", task.Title),
		fmt.Sprintf("CONDUCTOR_TASK_DESCRIPTION=%s", task.Description),
		fmt.Sprintf("CONDUCTOR_SESSION_ID=%s", e.sessionID),
	)
	cmd.Env = append(cmd.Env, e.provider.Env...)

	stdout, stderr, err := runCommand(cmd, e.procs)
	if err != nil {
		return nil, &ExecutionError{
			TaskID: task.ID,
			Stderr: strings.TrimSpace(string(stderr)),
			Err:    err,
		}
	}

	artifacts, err := e.spaces.Collect(task.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to collect artifacts: %w", err)
	}

	return &Result{
		Output:    strings.TrimSpace(string(stdout)),
		Artifacts: artifacts,
	}, nil
}

// freshWorkspace allocates the task's scratch directory. A retried task gets
// a clean directory: the half-written output of a failed attempt must not
// leak into the next one.
func (e *CommandExecutor) freshWorkspace(taskID int64) (*workspace.Info, error) {
	ws, err := e.spaces.Create(taskID)
	if err == nil {
		return ws, nil
	}
	if cleanErr := e.spaces.Cleanup(taskID); cleanErr != nil {
		return nil, err
	}
	return e.spaces.Create(taskID)
}
