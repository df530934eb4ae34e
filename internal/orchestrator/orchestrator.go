package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/codeframe/conductor/internal/events"
	"github.com/codeframe/conductor/internal/persistence"
	"github.com/codeframe/conductor/internal/pool"
	"github.com/codeframe/conductor/internal/scheduler"
	"github.com/codeframe/conductor/internal/worker"
)

const (
	// DefaultMaxConcurrent bounds simultaneous task executions when the
	// config does not say otherwise. Independent of the pool's max agents:
	// the pool bounds how many agents exist, this bounds how many work at
	// once.
	DefaultMaxConcurrent = 3

	// tickInterval is how long the scheduling loop sleeps when it could not
	// dispatch anything: every slot busy, resources held, or waiting for
	// in-flight tasks to unblock dependents.
	tickInterval = 10 * time.Millisecond
)

// ExecutorFactory creates the executor used to run tasks of one agent type.
// Called once per task execution; retries reuse the same executor.
type ExecutorFactory func(agentType scheduler.AgentType) (worker.Executor, error)

// Config configures an orchestration run.
type Config struct {
	MaxConcurrent   int           // Max tasks executing at once (default 3)
	MaxRetries      int           // Re-attempts per task after the first try (0 = fail on first error)
	Timeout         time.Duration // Global run deadline (0 = none)
	Retry           RetryConfig
	Classifier      scheduler.Classifier // Resolves the agent type for untyped tasks
	ExecutorFactory ExecutorFactory
	Bus             *events.Bus            // Optional event sink
	Store           persistence.Store      // Optional checkpoint store
	Procs           *worker.ProcessManager // Workers killed on emergency shutdown
}

// ExecutionSummary reports the outcome of one orchestration run. A run that
// hits its deadline still produces a summary: timing out is an outcome, not
// an error.
type ExecutionSummary struct {
	RunID      string        `json:"run_id"`
	TotalTasks int           `json:"total_tasks"`
	Completed  int           `json:"completed"`
	Failed     int           `json:"failed"`
	Retries    int           `json:"retries"`
	Elapsed    time.Duration `json:"elapsed"`
	TimedOut   bool          `json:"timed_out"`
	StartedAt  time.Time     `json:"started_at"`
}

// Orchestrator drives the scheduling loop: pull ready tasks from the
// resolver, claim agents and resource locks, execute with retry, and cascade
// completions until the graph drains or the deadline hits.
type Orchestrator struct {
	cfg      Config
	resolver *scheduler.DependencyResolver
	agents   *pool.AgentPool
	locks    *scheduler.ResourceLockManager
	breakers *CircuitBreakerRegistry

	retries  atomic.Int64 // Retry attempts across all tasks this run
	inFlight atomic.Int64 // Tasks dispatched but not yet settled

	mu        sync.Mutex
	cancelRun context.CancelFunc
	shutdown  bool
}

// New creates an orchestrator over an already-built resolver and pool.
// A nil locks manager gets a fresh one; zero-value config fields take their
// defaults.
func New(cfg Config, resolver *scheduler.DependencyResolver, agents *pool.AgentPool, locks *scheduler.ResourceLockManager) *Orchestrator {
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = DefaultMaxConcurrent
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.Retry == (RetryConfig{}) {
		cfg.Retry = DefaultRetryConfig()
	}
	if cfg.Classifier == nil {
		cfg.Classifier = scheduler.DefaultClassifier
	}
	if locks == nil {
		locks = scheduler.NewResourceLockManager()
	}

	return &Orchestrator{
		cfg:      cfg,
		resolver: resolver,
		agents:   agents,
		locks:    locks,
		breakers: NewCircuitBreakerRegistry(),
	}
}

// Run executes the dependency graph until it drains, the caller's context is
// cancelled, or the configured timeout expires. The summary is returned for
// every completed loop, including timed-out runs; the error reports caller
// cancellation only, never task failures or the run deadline.
func (o *Orchestrator) Run(ctx context.Context) (*ExecutionSummary, error) {
	if o.cfg.ExecutorFactory == nil {
		return nil, errors.New("executor factory not configured")
	}

	started := time.Now()
	runID := uuid.NewString()

	var runCtx context.Context
	var cancel context.CancelFunc
	if o.cfg.Timeout > 0 {
		runCtx, cancel = context.WithTimeout(ctx, o.cfg.Timeout)
	} else {
		runCtx, cancel = context.WithCancel(ctx)
	}
	defer cancel()

	o.mu.Lock()
	o.cancelRun = cancel
	o.shutdown = false
	o.mu.Unlock()
	o.retries.Store(0)

	total := o.resolver.Size()
	o.cfg.Bus.Publish(events.RunStartedEvent{RunID: runID, TotalTasks: total, Timestamp: time.Now()})
	log.Printf("Run %s started: %d tasks, %d max concurrent", runID, total, o.cfg.MaxConcurrent)

	// Tasks ready at graph construction never pass through
	// UnblockDependents, so announce them here.
	for _, t := range o.resolver.ReadyTasks() {
		o.publishTaskStatus(t.ID, scheduler.TaskPending, scheduler.TaskReady, "")
	}

	sem := semaphore.NewWeighted(int64(o.cfg.MaxConcurrent))
	g, gctx := errgroup.WithContext(runCtx)

	for runCtx.Err() == nil {
		ready := o.resolver.ReadyTasks()

		if len(ready) == 0 {
			// Re-read after the in-flight count: a task finishing between
			// the two reads may have promoted dependents already.
			if o.inFlight.Load() == 0 && len(o.resolver.ReadyTasks()) == 0 {
				// Nothing running and nothing to start: the graph is
				// drained or every remaining task is blocked on a failure.
				break
			}
			o.sleepTick(runCtx)
			continue
		}

		dispatched := 0
		for _, task := range ready {
			if runCtx.Err() != nil {
				break
			}
			if !sem.TryAcquire(1) {
				break // Every slot is busy; try again next tick
			}
			if o.dispatch(gctx, g, sem, task) {
				dispatched++
			}
		}

		if dispatched == 0 {
			o.sleepTick(runCtx)
		}
	}

	// A deadline hit is an emergency: kill worker processes and retire the
	// pool so the wait below cannot hang on stuck executors.
	timedOut := errors.Is(runCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil
	if timedOut {
		log.Printf("WARNING: run %s hit the %s deadline", runID, o.cfg.Timeout)
		o.EmergencyShutdown()
	}

	_ = g.Wait()

	completed, failed, _ := o.resolver.Stats()
	summary := &ExecutionSummary{
		RunID:      runID,
		TotalTasks: total,
		Completed:  completed,
		Failed:     failed,
		Retries:    int(o.retries.Load()),
		Elapsed:    time.Since(started),
		TimedOut:   timedOut,
		StartedAt:  started,
	}

	o.cfg.Bus.Publish(events.RunCompletedEvent{
		RunID:     runID,
		Completed: summary.Completed,
		Failed:    summary.Failed,
		Retries:   summary.Retries,
		Elapsed:   summary.Elapsed,
		TimedOut:  summary.TimedOut,
		Timestamp: time.Now(),
	})
	o.saveRun(summary)

	log.Printf("Run %s finished: %d/%d completed, %d failed, %d retries in %s",
		runID, summary.Completed, summary.TotalTasks, summary.Failed, summary.Retries,
		summary.Elapsed.Round(time.Millisecond))

	if !timedOut && ctx.Err() != nil {
		return summary, ctx.Err()
	}
	return summary, nil
}

// Resume reloads persisted tasks into the resolver and runs the remainder of
// the graph. Terminal statuses survive the rebuild, so completed and failed
// work is not repeated.
func (o *Orchestrator) Resume(ctx context.Context) (*ExecutionSummary, error) {
	if o.cfg.Store == nil {
		return nil, errors.New("resume requires a checkpoint store")
	}

	tasks, err := o.cfg.Store.ListTasks(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load tasks: %w", err)
	}
	if len(tasks) == 0 {
		return nil, errors.New("no persisted tasks to resume")
	}

	if err := o.resolver.BuildGraph(tasks); err != nil {
		return nil, fmt.Errorf("failed to rebuild graph: %w", err)
	}

	log.Printf("Resuming %d tasks from store", len(tasks))
	return o.Run(ctx)
}

// EmergencyShutdown aborts the current run: cancels the run context, kills
// every tracked worker process, and retires all agents. Repeat calls within
// one run are no-ops.
func (o *Orchestrator) EmergencyShutdown() {
	o.mu.Lock()
	if o.shutdown {
		o.mu.Unlock()
		return
	}
	o.shutdown = true
	cancel := o.cancelRun
	o.mu.Unlock()

	log.Printf("WARNING: emergency shutdown: stopping workers and retiring agents")

	if cancel != nil {
		cancel()
	}
	if o.cfg.Procs != nil {
		o.cfg.Procs.KillAll()
	}
	o.agents.Clear()
}

// dispatch claims resource locks and an agent for a ready task and hands it
// to the group. Returns false when the task must wait for a later tick or
// when claiming failed terminally; the semaphore slot is released on every
// false return.
func (o *Orchestrator) dispatch(ctx context.Context, g *errgroup.Group, sem *semaphore.Weighted, task *scheduler.Task) bool {
	agentType := task.AgentType
	if !agentType.Valid() {
		agentType = o.cfg.Classifier(task)
	}

	if !o.locks.TryLockAll(task.Resources) {
		// Another task holds an overlapping resource tag.
		sem.Release(1)
		return false
	}

	agent, err := o.acquireAgent(agentType)
	if err != nil {
		o.locks.UnlockAll(task.Resources)
		sem.Release(1)
		if errors.Is(err, pool.ErrPoolCapacity) {
			// Every agent is busy working; the task stays ready and is
			// picked up again on a later tick.
			return false
		}
		o.failUnclaimed(task, fmt.Errorf("failed to acquire agent: %w", err))
		return false
	}

	if err := o.resolver.MarkAssigned(task.ID, agent.ID); err != nil {
		log.Printf("ERROR: failed to assign task %d: %v", task.ID, err)
		o.locks.UnlockAll(task.Resources)
		sem.Release(1)
		return false
	}
	if err := o.agents.MarkBusy(agent.ID, task.ID); err != nil {
		log.Printf("ERROR: failed to claim agent %s for task %d: %v", agent.ID, task.ID, err)
		o.locks.UnlockAll(task.Resources)
		sem.Release(1)
		o.failUnclaimed(task, fmt.Errorf("failed to claim agent: %w", err))
		return false
	}

	o.publishTaskStatus(task.ID, scheduler.TaskReady, scheduler.TaskAssigned, agent.ID)

	o.inFlight.Add(1)
	g.Go(func() error {
		defer o.inFlight.Add(-1)
		defer sem.Release(1)
		defer o.locks.UnlockAll(task.Resources)

		o.executeTask(ctx, task, agent.ID, agentType)
		return nil // Task failures are tracked in the resolver, not the group
	})
	return true
}

// acquireAgent returns an idle agent of the wanted type, growing the pool
// when allowed. When the pool is at capacity but holds idle agents of other
// types, one is retired to make room; if every agent is busy the
// ErrPoolCapacity passes through and the task waits for a later tick.
func (o *Orchestrator) acquireAgent(agentType scheduler.AgentType) (*pool.Agent, error) {
	agent, err := o.agents.GetOrCreateAgent(agentType)
	if err == nil || !errors.Is(err, pool.ErrPoolCapacity) {
		return agent, err
	}

	if !o.retireIdleAgent(agentType) {
		return nil, err
	}
	return o.agents.GetOrCreateAgent(agentType)
}

// retireIdleAgent retires one idle agent whose type differs from want.
// Only the scheduling loop moves agents from idle to busy, so an agent
// observed idle here cannot be claimed concurrently.
func (o *Orchestrator) retireIdleAgent(want scheduler.AgentType) bool {
	snapshot := o.agents.Snapshot()
	ids := make([]string, 0, len(snapshot))
	for id := range snapshot {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, id := range ids {
		a := snapshot[id]
		if a.Type == want || a.Status != pool.AgentIdle {
			continue
		}
		if err := o.agents.RetireAgent(id); err != nil {
			log.Printf("WARNING: failed to retire idle agent %s: %v", id, err)
			continue
		}
		log.Printf("Retired idle agent %s to make room for a %s task", id, want)
		return true
	}
	return false
}

// executeTask runs one claimed task through its executor, retrying per
// config, then settles the outcome. Always called from inside the group.
func (o *Orchestrator) executeTask(ctx context.Context, task *scheduler.Task, agentID string, agentType scheduler.AgentType) {
	if err := o.resolver.MarkRunning(task.ID); err != nil {
		o.failTask(task, agentID, err)
		return
	}
	o.publishTaskStatus(task.ID, scheduler.TaskAssigned, scheduler.TaskRunning, agentID)
	o.persistTask(task.ID)
	log.Printf("Task %d (%s) started on %s", task.ID, task.Title, agentID)

	exec, err := o.cfg.ExecutorFactory(agentType)
	if err != nil {
		o.failTask(task, agentID, fmt.Errorf("failed to create executor: %w", err))
		return
	}

	notify := func(attemptErr error, next time.Duration) {
		o.retries.Add(1)
		if err := o.resolver.RecordRetry(task.ID); err != nil {
			log.Printf("WARNING: failed to record retry for task %d: %v", task.ID, err)
		}
		// A retried task stays running; the self-transition is still
		// published so sinks can observe the attempt.
		o.publishTaskStatus(task.ID, scheduler.TaskRunning, scheduler.TaskRunning, agentID)
		log.Printf("WARNING: task %d attempt failed, retrying in %s: %v",
			task.ID, next.Round(time.Millisecond), attemptErr)
	}

	result, err := executeWithRetry(ctx, exec, task, o.breakers.Get(agentType), o.cfg.Retry, o.cfg.MaxRetries, notify)
	if err != nil {
		if ctx.Err() != nil {
			// The run was cancelled or timed out mid-execution. That is not
			// the task's failure: put it back so a resumed run re-executes it.
			o.interruptTask(task, agentID)
			return
		}
		o.failTask(task, agentID, err)
		return
	}

	o.completeTask(task, agentID, result)
}

// interruptTask returns a task cut short by cancellation or shutdown to
// pending. The agent release is best-effort: an emergency shutdown may have
// cleared the pool already.
func (o *Orchestrator) interruptTask(task *scheduler.Task, agentID string) {
	if err := o.resolver.MarkInterrupted(task.ID); err != nil {
		log.Printf("WARNING: failed to reset interrupted task %d: %v", task.ID, err)
	}
	o.persistTask(task.ID)
	o.publishTaskStatus(task.ID, scheduler.TaskRunning, scheduler.TaskPending, agentID)
	_ = o.agents.MarkIdle(agentID)

	log.Printf("WARNING: task %d (%s) interrupted before completion", task.ID, task.Title)
}

// completeTask settles a successful execution: store the result, promote
// dependents, free the agent. The completion is checkpointed before
// dependents are promoted, so a dependent never starts on top of a
// completion that a crash could roll back.
func (o *Orchestrator) completeTask(task *scheduler.Task, agentID string, result *worker.Result) {
	output := ""
	artifacts := 0
	if result != nil {
		output = result.Output
		artifacts = len(result.Artifacts)
	}

	if err := o.resolver.MarkCompleted(task.ID, output); err != nil {
		log.Printf("ERROR: failed to mark task %d completed: %v", task.ID, err)
	}
	o.persistTask(task.ID)
	o.publishTaskStatus(task.ID, scheduler.TaskRunning, scheduler.TaskCompleted, agentID)

	unblocked, err := o.resolver.UnblockDependents(task.ID)
	if err != nil {
		log.Printf("ERROR: failed to unblock dependents of task %d: %v", task.ID, err)
	}
	for _, id := range unblocked {
		o.publishTaskStatus(id, scheduler.TaskPending, scheduler.TaskReady, "")
	}

	if err := o.agents.MarkIdle(agentID); err != nil {
		log.Printf("WARNING: failed to release agent %s: %v", agentID, err)
	}

	log.Printf("Task %d (%s) completed by %s: %d artifacts, %d unblocked",
		task.ID, task.Title, agentID, artifacts, len(unblocked))
}

// failTask settles a failed execution: mark the task failed, report newly
// blocked dependents, free the agent. Exhausted retries on one task must not
// strand a pool slot, so the agent goes back to idle either way.
func (o *Orchestrator) failTask(task *scheduler.Task, agentID string, taskErr error) {
	blocked := o.markFailed(task.ID, taskErr)

	o.publishTaskStatus(task.ID, scheduler.TaskRunning, scheduler.TaskFailed, agentID)
	o.publishBlocked(task.ID, blocked)

	if err := o.agents.MarkIdle(agentID); err != nil {
		log.Printf("WARNING: failed to release agent %s: %v", agentID, err)
	}

	attempts := task.Attempts
	if t, ok := o.resolver.Task(task.ID); ok {
		attempts = t.Attempts
	}
	log.Printf("ERROR: task %d (%s) failed after %d attempt(s): %v", task.ID, task.Title, attempts, taskErr)
}

// failUnclaimed fails a task that never got an agent, from the scheduling
// loop itself.
func (o *Orchestrator) failUnclaimed(task *scheduler.Task, taskErr error) {
	blocked := o.markFailed(task.ID, taskErr)
	o.publishTaskStatus(task.ID, scheduler.TaskReady, scheduler.TaskFailed, "")
	o.publishBlocked(task.ID, blocked)
	log.Printf("ERROR: task %d (%s) failed: %v", task.ID, task.Title, taskErr)
}

func (o *Orchestrator) markFailed(taskID int64, taskErr error) []int64 {
	blocked, err := o.resolver.MarkFailed(taskID, taskErr)
	if err != nil {
		log.Printf("ERROR: failed to mark task %d failed: %v", taskID, err)
	}
	o.persistTask(taskID)
	return blocked
}

func (o *Orchestrator) publishBlocked(failedID int64, blocked []int64) {
	for _, id := range blocked {
		log.Printf("WARNING: task %d is blocked: dependency %d failed", id, failedID)
		o.cfg.Bus.Publish(events.TaskBlockedEvent{
			ID:        id,
			BlockedOn: []int64{failedID},
			Timestamp: time.Now(),
		})
	}
}

func (o *Orchestrator) publishTaskStatus(taskID int64, from, to scheduler.TaskStatus, agentID string) {
	o.cfg.Bus.Publish(events.TaskStatusChangedEvent{
		ID:        taskID,
		From:      from.String(),
		To:        to.String(),
		AgentID:   agentID,
		Timestamp: time.Now(),
	})
}

// persistTask checkpoints the task's current resolver state. Uses a
// background context: a cancelled run must still record what happened.
func (o *Orchestrator) persistTask(taskID int64) {
	if o.cfg.Store == nil {
		return
	}
	task, ok := o.resolver.Task(taskID)
	if !ok {
		return
	}
	if err := o.cfg.Store.SaveTask(context.Background(), task); err != nil {
		log.Printf("WARNING: failed to persist task %d: %v", taskID, err)
	}
}

func (o *Orchestrator) saveRun(summary *ExecutionSummary) {
	if o.cfg.Store == nil {
		return
	}
	record := &persistence.RunRecord{
		RunID:      summary.RunID,
		TotalTasks: summary.TotalTasks,
		Completed:  summary.Completed,
		Failed:     summary.Failed,
		Retries:    summary.Retries,
		Elapsed:    summary.Elapsed,
		TimedOut:   summary.TimedOut,
		StartedAt:  summary.StartedAt,
	}
	if err := o.cfg.Store.SaveRun(context.Background(), record); err != nil {
		log.Printf("WARNING: failed to persist run %s: %v", summary.RunID, err)
	}
}

func (o *Orchestrator) sleepTick(ctx context.Context) {
	select {
	case <-ctx.Done():
	case <-time.After(tickInterval):
	}
}
