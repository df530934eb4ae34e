package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/codeframe/conductor/internal/config"
	"github.com/codeframe/conductor/internal/eventlog"
	"github.com/codeframe/conductor/internal/events"
	"github.com/codeframe/conductor/internal/orchestrator"
	"github.com/codeframe/conductor/internal/persistence"
	"github.com/codeframe/conductor/internal/pool"
	"github.com/codeframe/conductor/internal/scheduler"
	"github.com/codeframe/conductor/internal/worker"
	"github.com/codeframe/conductor/internal/workspace"
)

var (
	runMaxConcurrent int
	runMaxRetries    int
	runMaxAgents     int
	runTimeoutSecs   int
	runDBPath        string
	runLogDir        string
	runResume        bool
)

var runCmd = &cobra.Command{
	Use:   "run [tasks.json]",
	Short: "Execute a task graph",
	Long: `Run executes a dependency graph of tasks across a pool of worker agents.

Tasks come from a JSON file (see 'conductor validate --help' for the format)
or, with --resume, from the checkpoint database of an earlier run. Every task
whose dependencies have completed is dispatched to an agent of its type, up
to the concurrency limit. Transient failures are retried with exponential
backoff; completed and failed tasks are checkpointed after every transition.

When the run deadline expires the engine performs an emergency shutdown:
worker processes are killed, all agents are retired, and in-flight tasks
return to pending so a later --resume picks them up.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runGraph,
}

func init() {
	runCmd.Flags().IntVar(&runMaxConcurrent, "max-concurrent", 0, "Tasks executing at once (0 = config value)")
	runCmd.Flags().IntVar(&runMaxRetries, "max-retries", -1, "Re-attempts per task after the first try (-1 = config value)")
	runCmd.Flags().IntVar(&runMaxAgents, "max-agents", 0, "Worker agents alive at once (0 = config value)")
	runCmd.Flags().IntVar(&runTimeoutSecs, "timeout", -1, "Run deadline in seconds, 0 for none (-1 = config value)")
	runCmd.Flags().StringVar(&runDBPath, "db", "", "Checkpoint database path (default from config)")
	runCmd.Flags().StringVar(&runLogDir, "log-dir", "", "Directory for JSONL event logs (default from config)")
	runCmd.Flags().BoolVar(&runResume, "resume", false, "Resume persisted tasks instead of reading a file")
}

func runGraph(cmd *cobra.Command, args []string) error {
	if !runResume && len(args) == 0 {
		return errors.New("a tasks file is required unless --resume is set")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.LoadDefault()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	applyRunFlags(cfg)

	// Workers are tracked so a shutdown signal kills whatever is running even
	// if an executor ignores cancellation.
	procs := worker.NewProcessManager()
	go func() {
		<-ctx.Done()
		_ = procs.KillAll()
	}()

	store, err := persistence.NewSQLiteStore(ctx, cfg.DatabasePath)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer store.Close()

	bus := events.NewBus()
	defer bus.Close()

	// The journal drains the bus in the background; the drain goroutine exits
	// when the bus closes.
	consumeDone := make(chan struct{})
	journal, err := eventlog.NewWriter(cfg.LogDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: event log unavailable: %v\n", err)
		close(consumeDone)
	} else {
		ch := bus.SubscribeAll(256)
		go func() {
			journal.Consume(ch)
			close(consumeDone)
		}()
		defer journal.Close()
	}

	spaces := workspace.NewManager(workspace.Config{})
	if err := spaces.Prune(); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: workspace prune failed: %v\n", err)
	}

	factory := worker.NewFactory(providersFromConfig(cfg), procs, spaces)
	resolver := scheduler.NewDependencyResolver()
	agents := pool.New(cfg.MaxAgents, bus)

	orch := orchestrator.New(orchestrator.Config{
		MaxConcurrent:   cfg.MaxConcurrent,
		MaxRetries:      cfg.MaxRetries,
		Timeout:         cfg.Timeout(),
		Retry:           retryFromConfig(cfg.Retry),
		ExecutorFactory: factory.Executor,
		Bus:             bus,
		Store:           store,
		Procs:           procs,
	}, resolver, agents, nil)

	var summary *orchestrator.ExecutionSummary
	if runResume {
		fmt.Println("Resuming persisted tasks")
		summary, err = orch.Resume(ctx)
	} else {
		tasks, loadErr := loadTaskFile(args[0])
		if loadErr != nil {
			return loadErr
		}
		if buildErr := resolver.BuildGraph(tasks); buildErr != nil {
			return fmt.Errorf("%s: %w", args[0], buildErr)
		}
		fmt.Printf("Running %d tasks (max %d concurrent, %d agents)\n",
			resolver.Size(), cfg.MaxConcurrent, cfg.MaxAgents)
		summary, err = orch.Run(ctx)
	}

	// Close the bus so the journal drains fully before we report.
	bus.Close()
	<-consumeDone

	if summary != nil {
		printSummary(summary)
	}
	if err != nil {
		return err
	}
	if summary.Failed > 0 {
		return fmt.Errorf("%d task(s) failed", summary.Failed)
	}
	return nil
}

// applyRunFlags overlays command-line overrides on the loaded config.
func applyRunFlags(cfg *config.Config) {
	if runMaxConcurrent > 0 {
		cfg.MaxConcurrent = runMaxConcurrent
	}
	if runMaxRetries >= 0 {
		cfg.MaxRetries = runMaxRetries
	}
	if runMaxAgents > 0 {
		cfg.MaxAgents = runMaxAgents
	}
	if runTimeoutSecs >= 0 {
		cfg.TimeoutSeconds = runTimeoutSecs
	}
	if runDBPath != "" {
		cfg.DatabasePath = runDBPath
	}
	if runLogDir != "" {
		cfg.LogDir = runLogDir
	}
}

func printSummary(s *orchestrator.ExecutionSummary) {
	fmt.Println()
	fmt.Printf("Run %s finished in %s\n", s.RunID, s.Elapsed.Round(time.Millisecond))
	fmt.Printf("  Completed: %d/%d\n", s.Completed, s.TotalTasks)
	fmt.Printf("  Failed:    %d\n", s.Failed)
	fmt.Printf("  Retries:   %d\n", s.Retries)
	if s.TimedOut {
		fmt.Println("  The run hit its deadline; interrupted tasks can be re-run with --resume.")
	}
}
