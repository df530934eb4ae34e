package worker

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/codeframe/conductor/internal/scheduler"
	"github.com/codeframe/conductor/internal/workspace"
)

func newTestFactory(t *testing.T, providers map[scheduler.AgentType]Provider) *Factory {
	t.Helper()
	spaces := workspace.NewManager(workspace.Config{Root: t.TempDir()})
	return NewFactory(providers, NewProcessManager(), spaces)
}

func TestFactoryUnknownType(t *testing.T) {
	f := newTestFactory(t, map[scheduler.AgentType]Provider{
		scheduler.AgentBackend: {Command: "echo"},
	})

	if _, err := f.Executor(scheduler.AgentFrontend); err == nil {
		t.Error("expected error for unconfigured agent type, got nil")
	}

	exec, err := f.Executor(scheduler.AgentBackend)
	if err != nil {
		t.Fatalf("Executor(backend) failed: %v", err)
	}
	if exec == nil {
		t.Fatal("Executor(backend) returned nil executor")
	}
}

func TestExecutorFunc(t *testing.T) {
	called := false
	fn := ExecutorFunc(func(ctx context.Context, task *scheduler.Task) (*Result, error) {
		called = true
		return &Result{Output: task.Title}, nil
	})

	res, err := fn.Execute(context.Background(), &scheduler.Task{ID: 1, Title: "noop"})
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if !called {
		t.Error("adapter did not invoke the function")
	}
	if res.Output != "noop" {
		t.Errorf("Output = %q, want %q", res.Output, "noop")
	}
}

func TestCommandExecutorExecute(t *testing.T) {
	f := newTestFactory(t, map[scheduler.AgentType]Provider{
		scheduler.AgentBackend: {
			Command: "bash",
			Args:    []string{"-c", `echo "$CONDUCTOR_TASK_TITLE"; echo output > result.txt`},
		},
	})

	exec, err := f.Executor(scheduler.AgentBackend)
	if err != nil {
		t.Fatalf("Executor failed: %v", err)
	}

	task := &scheduler.Task{ID: 11, Title: "build the api"}
	res, err := exec.Execute(context.Background(), task)
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}

	// The task title reaches the command through the environment.
	if res.Output != "build the api" {
		t.Errorf("Output = %q, want %q", res.Output, "build the api")
	}
	// Files written in the workspace come back as artifacts.
	if len(res.Artifacts) != 1 || res.Artifacts[0] != "result.txt" {
		t.Errorf("Artifacts = %v, want [result.txt]", res.Artifacts)
	}
}

func TestCommandExecutorFailure(t *testing.T) {
	f := newTestFactory(t, map[scheduler.AgentType]Provider{
		scheduler.AgentTest: {
			Command: "bash",
			Args:    []string{"-c", "echo broken >&2; exit 2"},
		},
	})

	exec, _ := f.Executor(scheduler.AgentTest)
	_, err := exec.Execute(context.Background(), &scheduler.Task{ID: 21, Title: "run tests"})
	if err == nil {
		t.Fatal("expected error from failing command, got nil")
	}

	var execErr *ExecutionError
	if !errors.As(err, &execErr) {
		t.Fatalf("expected *ExecutionError, got %T: %v", err, err)
	}
	if execErr.TaskID != 21 {
		t.Errorf("ExecutionError.TaskID = %d, want 21", execErr.TaskID)
	}
	if execErr.Stderr != "broken" {
		t.Errorf("ExecutionError.Stderr = %q, want %q", execErr.Stderr, "broken")
	}
}

// TestCommandExecutorRetryGetsCleanWorkspace verifies a second attempt does
// not see files left behind by a failed first attempt. The marker file lives
// outside the workspace so the script can tell attempts apart; stale.txt
// lives inside it and must vanish between attempts.
func TestCommandExecutorRetryGetsCleanWorkspace(t *testing.T) {
	marker := filepath.Join(t.TempDir(), "attempted")
	script := `if [ -e stale.txt ]; then echo dirty; exit 0; fi
touch stale.txt
if [ -e "$ATTEMPT_MARKER" ]; then echo clean; exit 0; fi
touch "$ATTEMPT_MARKER"
exit 1`

	f := newTestFactory(t, map[scheduler.AgentType]Provider{
		scheduler.AgentBackend: {
			Command: "bash",
			Args:    []string{"-c", script},
			Env:     []string{"ATTEMPT_MARKER=" + marker},
		},
	})

	exec, _ := f.Executor(scheduler.AgentBackend)
	task := &scheduler.Task{ID: 31, Title: "retryable"}

	if _, err := exec.Execute(context.Background(), task); err == nil {
		t.Fatal("expected first attempt to fail")
	}

	res, err := exec.Execute(context.Background(), task)
	if err != nil {
		t.Fatalf("second attempt failed: %v", err)
	}
	if res.Output == "dirty" {
		t.Fatal("second attempt saw files from the failed first attempt")
	}
	if res.Output != "clean" {
		t.Errorf("Output = %q, want %q", res.Output, "clean")
	}
}

func TestCommandExecutorContextCancellation(t *testing.T) {
	f := newTestFactory(t, map[scheduler.AgentType]Provider{
		scheduler.AgentBackend: {
			Command: "bash",
			Args:    []string{"-c", "sleep 30"},
		},
	})

	exec, _ := f.Executor(scheduler.AgentBackend)

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := exec.Execute(ctx, &scheduler.Task{ID: 41, Title: "slow"})
	if err == nil {
		t.Fatal("expected error after context cancellation, got nil")
	}
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Errorf("cancellation took too long: %v", elapsed)
	}
}

func TestCommandExecutorSessionID(t *testing.T) {
	spaces := workspace.NewManager(workspace.Config{Root: t.TempDir()})
	a := NewCommandExecutor(Provider{Command: "echo"}, nil, spaces)
	b := NewCommandExecutor(Provider{Command: "echo"}, nil, spaces)

	if a.SessionID() == "" {
		t.Error("SessionID is empty")
	}
	if a.SessionID() == b.SessionID() {
		t.Error("two executors share a session id")
	}
}
