package worker

import (
	"context"
	"errors"
	"os/exec"
	"strings"
	"syscall"
	"testing"
	"time"
)

func TestRunCommandBasic(t *testing.T) {
	cmd := newCommand(context.Background(), "echo", "hello")

	stdout, stderr, err := runCommand(cmd, nil)
	if err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}
	if !strings.Contains(string(stdout), "hello") {
		t.Errorf("expected stdout to contain 'hello', got: %s", stdout)
	}
	if len(stderr) > 0 {
		t.Errorf("expected empty stderr, got: %s", stderr)
	}
}

// TestRunCommandLargeOutput proves the concurrent pipe drain: output well
// above the 64KB pipe buffer must not deadlock the Wait.
func TestRunCommandLargeOutput(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	cmd := newCommand(ctx, "bash", "-c", `for i in $(seq 1 20000); do echo "line-$i"; done`)

	start := time.Now()
	stdout, _, err := runCommand(cmd, nil)
	duration := time.Since(start)

	if err != nil {
		t.Fatalf("expected no error, got: %v (took %v)", err, duration)
	}
	lines := strings.Split(strings.TrimSpace(string(stdout)), "\n")
	if len(lines) != 20000 {
		t.Errorf("expected 20000 lines of output, got %d", len(lines))
	}
	if duration > 5*time.Second {
		t.Errorf("command took too long (%v), possible pipe deadlock", duration)
	}
}

func TestRunCommandStderrCapture(t *testing.T) {
	cmd := newCommand(context.Background(), "bash", "-c", "echo error >&2; echo ok")

	stdout, stderr, err := runCommand(cmd, nil)
	if err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}
	if !strings.Contains(string(stdout), "ok") {
		t.Errorf("expected stdout to contain 'ok', got: %s", stdout)
	}
	if !strings.Contains(string(stderr), "error") {
		t.Errorf("expected stderr to contain 'error', got: %s", stderr)
	}
}

func TestRunCommandContextCancellation(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()

	cmd := newCommand(ctx, "bash", "-c", "sleep 30")

	start := time.Now()
	_, _, err := runCommand(cmd, nil)
	duration := time.Since(start)

	if err == nil {
		t.Fatal("expected error due to context cancellation, got nil")
	}
	if duration > 5*time.Second {
		t.Errorf("cancellation took too long: %v", duration)
	}
}

func TestRunCommandNonZeroExit(t *testing.T) {
	cmd := newCommand(context.Background(), "bash", "-c", "echo partial; exit 3")

	stdout, _, err := runCommand(cmd, nil)
	if err == nil {
		t.Fatal("expected error due to non-zero exit code, got nil")
	}

	// Output produced before the failure is still captured.
	if !strings.Contains(string(stdout), "partial") {
		t.Errorf("expected stdout to be captured despite error, got: %s", stdout)
	}

	var exitErr *exec.ExitError
	if !errors.As(err, &exitErr) {
		t.Fatalf("expected error to wrap *exec.ExitError, got %T: %v", err, err)
	}
	if code := exitErr.ExitCode(); code != 3 {
		t.Errorf("expected exit code 3, got %d", code)
	}
}

func TestProcessManagerTrackAndKillAll(t *testing.T) {
	pm := NewProcessManager()

	cmd := newCommand(context.Background(), "bash", "-c", "sleep 300")
	if err := cmd.Start(); err != nil {
		t.Fatalf("failed to start process: %v", err)
	}

	pm.Track(cmd)
	if pm.Count() != 1 {
		t.Errorf("expected 1 tracked process, got %d", pm.Count())
	}

	if err := pm.KillAll(); err != nil {
		t.Fatalf("KillAll failed: %v", err)
	}

	err := cmd.Wait()
	if err == nil {
		t.Error("expected process to be killed (non-nil error), got nil")
	}
	if exitErr, ok := err.(*exec.ExitError); ok {
		if status, ok := exitErr.Sys().(syscall.WaitStatus); ok && !status.Signaled() {
			t.Errorf("expected process to be signaled, got exit status: %v", status)
		}
	}

	pm.Untrack(cmd)
	if pm.Count() != 0 {
		t.Errorf("expected 0 tracked processes after Untrack, got %d", pm.Count())
	}
}

// TestRunCommandUntracksOnExit verifies the manager does not accumulate
// entries for processes that finished normally.
func TestRunCommandUntracksOnExit(t *testing.T) {
	pm := NewProcessManager()

	for i := 0; i < 5; i++ {
		cmd := newCommand(context.Background(), "echo", "done")
		if _, _, err := runCommand(cmd, pm); err != nil {
			t.Fatalf("runCommand failed: %v", err)
		}
	}

	if pm.Count() != 0 {
		t.Errorf("expected 0 tracked processes after completion, got %d", pm.Count())
	}
}
