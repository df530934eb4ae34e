package scheduler

import (
	"container/heap"
	"fmt"
	"sort"
	"sync"

	"github.com/gammazero/toposort"
)

// DependencyResolver owns the task set and its dependency graph. It answers
// "what can run now" and "what just became runnable", and guards every
// mutation behind a single lock so a completing task's status write and the
// cascade that follows are observed atomically by other schedulers.
type DependencyResolver struct {
	mu    sync.RWMutex
	tasks map[int64]*Task
	graph *TaskGraph
}

// NewDependencyResolver creates a resolver with an empty graph.
func NewDependencyResolver() *DependencyResolver {
	return &DependencyResolver{
		tasks: make(map[int64]*Task),
		graph: NewTaskGraph(),
	}
}

// BuildGraph validates the task set and replaces the resolver's graph with
// the induced dependency relation. Construction is all-or-nothing: on any
// validation failure the previous state is left untouched and never a
// partially built graph is exposed.
//
// Fails with *DependencyError when a task lists itself or references an id
// not present in the set, and with *CycleError (carrying the offending path)
// when the relation is not acyclic.
func (r *DependencyResolver) BuildGraph(tasks []*Task) error {
	staged := make(map[int64]*Task, len(tasks))
	graph := NewTaskGraph()

	// First pass: register every task.
	for _, t := range tasks {
		if _, exists := staged[t.ID]; exists {
			return fmt.Errorf("duplicate task id %d", t.ID)
		}
		cp := t.Clone()
		// Terminal statuses survive a rebuild (resumed runs); everything
		// else starts over as pending.
		if !cp.Status.Terminal() {
			cp.Status = TaskPending
		}
		cp.DependsOn = normalizeDeps(cp.DependsOn)
		staged[cp.ID] = cp
		graph.AddTask(cp.ID)
	}

	// Second pass: edges, now that all ids are known.
	for _, t := range staged {
		for _, depID := range t.DependsOn {
			if depID == t.ID {
				return &DependencyError{TaskID: t.ID, DependencyID: depID, Reason: "task depends on itself"}
			}
			if _, exists := staged[depID]; !exists {
				return &DependencyError{TaskID: t.ID, DependencyID: depID, Reason: "dependency does not exist"}
			}
			graph.AddEdge(t.ID, depID)
		}
	}

	if cycle := graph.FindCycle(); cycle != nil {
		return &CycleError{Path: cycle}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.tasks = staged
	r.graph = graph

	// Tasks with every dependency already completed (including the no-dep
	// case) are ready from the start.
	for _, t := range r.tasks {
		if t.Status == TaskPending && r.depsCompletedLocked(t.ID) {
			t.Status = TaskReady
		}
	}
	return nil
}

// ValidateDependency simulates adding the edge taskID -> depID on a copy of
// the adjacency map and reports whether the result would still be acyclic.
// The live graph is never mutated. Unknown ids and self-references are
// rejected outright.
func (r *DependencyResolver) ValidateDependency(taskID, depID int64) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if taskID == depID {
		return false
	}
	if !r.graph.HasTask(taskID) || !r.graph.HasTask(depID) {
		return false
	}

	trial := r.graph.Clone()
	trial.AddEdge(taskID, depID)

	edges := make([]toposort.Edge, 0, trial.Size())
	for _, id := range trial.TaskIDs() {
		deps := trial.Dependencies(id)
		if len(deps) == 0 {
			// No dependencies: edge from nil so the node is still included.
			edges = append(edges, toposort.Edge{nil, id})
			continue
		}
		for _, dep := range deps {
			edges = append(edges, toposort.Edge{dep, id})
		}
	}

	_, err := toposort.Toposort(edges)
	return err == nil
}

// ReadyTasks returns copies of every task that is eligible to run now:
// status pending or ready with every dependency completed. Tasks already
// assigned, running, or terminal are excluded. Results are ordered by
// TaskNumber for deterministic scheduling.
func (r *DependencyResolver) ReadyTasks() []*Task {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ready := []*Task{}
	for _, t := range r.tasks {
		if !r.readyLocked(t) {
			continue
		}
		cp := t.Clone()
		cp.Status = TaskReady
		ready = append(ready, cp)
	}

	sort.Slice(ready, func(i, j int) bool {
		if ready[i].TaskNumber != ready[j].TaskNumber {
			return ready[i].TaskNumber < ready[j].TaskNumber
		}
		return ready[i].ID < ready[j].ID
	})
	return ready
}

// UnblockDependents marks completedID completed and promotes its direct
// dependents whose dependencies are now all completed to ready. The status
// write and the cascade happen under one lock, so a task never becomes
// ready before its dependency's completion is visible. One hop per call:
// transitive cascades resolve over successive scheduling ticks, bounding
// the work per completion to the node's out-degree.
//
// Returns the newly ready task ids, sorted ascending.
func (r *DependencyResolver) UnblockDependents(completedID int64) ([]int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	t, ok := r.tasks[completedID]
	if !ok {
		return nil, fmt.Errorf("task %d not found", completedID)
	}
	t.Status = TaskCompleted

	var newlyReady []int64
	for _, depID := range r.graph.Dependents(completedID) {
		dep := r.tasks[depID]
		if dep.Status != TaskPending {
			continue
		}
		if r.depsCompletedLocked(depID) {
			dep.Status = TaskReady
			newlyReady = append(newlyReady, depID)
		}
	}
	return newlyReady, nil
}

// MarkAssigned transitions a ready task to assigned and records the agent
// holding it.
func (r *DependencyResolver) MarkAssigned(taskID int64, agentID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	t, ok := r.tasks[taskID]
	if !ok {
		return fmt.Errorf("task %d not found", taskID)
	}
	if !r.readyLocked(t) {
		return fmt.Errorf("task %d is not ready (status %s)", taskID, t.Status)
	}
	t.Status = TaskAssigned
	t.AssignedAgentID = agentID
	return nil
}

// MarkRunning transitions an assigned task to running and counts the attempt.
func (r *DependencyResolver) MarkRunning(taskID int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	t, ok := r.tasks[taskID]
	if !ok {
		return fmt.Errorf("task %d not found", taskID)
	}
	if t.Status != TaskAssigned && t.Status != TaskRunning {
		return fmt.Errorf("task %d cannot start from status %s", taskID, t.Status)
	}
	t.Status = TaskRunning
	t.Attempts++
	return nil
}

// RecordRetry counts a re-attempt of a running task.
func (r *DependencyResolver) RecordRetry(taskID int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	t, ok := r.tasks[taskID]
	if !ok {
		return fmt.Errorf("task %d not found", taskID)
	}
	t.Attempts++
	return nil
}

// MarkCompleted records a successful result on a running task. Promotion of
// dependents is a separate step (UnblockDependents), which also sets the
// completed status; MarkCompleted exists for callers that need to store the
// result first.
func (r *DependencyResolver) MarkCompleted(taskID int64, result string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	t, ok := r.tasks[taskID]
	if !ok {
		return fmt.Errorf("task %d not found", taskID)
	}
	t.Status = TaskCompleted
	t.Result = result
	return nil
}

// MarkFailed transitions a task to failed terminally. Returns the ids of
// direct dependents that are now permanently blocked for this run: a failed
// dependency is never treated as satisfied and there is no skip path.
func (r *DependencyResolver) MarkFailed(taskID int64, taskErr error) ([]int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	t, ok := r.tasks[taskID]
	if !ok {
		return nil, fmt.Errorf("task %d not found", taskID)
	}
	t.Status = TaskFailed
	t.Err = taskErr

	var blocked []int64
	for _, depID := range r.graph.Dependents(taskID) {
		if !r.tasks[depID].Status.Terminal() {
			blocked = append(blocked, depID)
		}
	}
	return blocked, nil
}

// MarkInterrupted returns an in-flight task to pending, for tasks cut short
// by cancellation or an emergency shutdown rather than their own failure.
// The task stays non-terminal so a resumed run will execute it again.
func (r *DependencyResolver) MarkInterrupted(taskID int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	t, ok := r.tasks[taskID]
	if !ok {
		return fmt.Errorf("task %d not found", taskID)
	}
	if t.Status != TaskAssigned && t.Status != TaskRunning {
		return fmt.Errorf("task %d is not in flight (status %s)", taskID, t.Status)
	}
	t.Status = TaskPending
	t.AssignedAgentID = ""
	return nil
}

// TopologicalSort returns a full ordering of task ids consistent with every
// dependency edge, using Kahn's algorithm. Ties between equally eligible
// tasks are broken by ascending TaskNumber (then id) so the order is
// reproducible. If a cycle is somehow present the call degrades to a
// *CycleError instead of looping.
func (r *DependencyResolver) TopologicalSort() ([]int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	indegree := make(map[int64]int, len(r.tasks))
	for id := range r.tasks {
		indegree[id] = len(r.graph.Dependencies(id))
	}

	h := &taskNumberHeap{}
	for id, deg := range indegree {
		if deg == 0 {
			*h = append(*h, r.tasks[id])
		}
	}
	heap.Init(h)

	order := make([]int64, 0, len(r.tasks))
	for h.Len() > 0 {
		next := heap.Pop(h).(*Task)
		order = append(order, next.ID)
		for _, depID := range r.graph.Dependents(next.ID) {
			indegree[depID]--
			if indegree[depID] == 0 {
				heap.Push(h, r.tasks[depID])
			}
		}
	}

	if len(order) != len(r.tasks) {
		if cycle := r.graph.FindCycle(); cycle != nil {
			return nil, &CycleError{Path: cycle}
		}
		return nil, &CycleError{}
	}
	return order, nil
}

// DependencyDepth returns the length of the longest dependency chain below
// the task: 0 for tasks with no dependencies.
func (r *DependencyResolver) DependencyDepth(taskID int64) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if _, ok := r.tasks[taskID]; !ok {
		return 0, fmt.Errorf("task %d not found", taskID)
	}

	memo := make(map[int64]int)
	var depth func(int64) int
	depth = func(id int64) int {
		if d, ok := memo[id]; ok {
			return d
		}
		longest := 0
		for _, dep := range r.graph.Dependencies(id) {
			if d := depth(dep) + 1; d > longest {
				longest = d
			}
		}
		memo[id] = longest
		return longest
	}
	return depth(taskID), nil
}

// BlockedTasks maps every pending task to the dependency ids still keeping
// it from running.
func (r *DependencyResolver) BlockedTasks() map[int64][]int64 {
	r.mu.RLock()
	defer r.mu.RUnlock()

	blocked := make(map[int64][]int64)
	for id, t := range r.tasks {
		if t.Status != TaskPending {
			continue
		}
		var blocking []int64
		for _, depID := range r.graph.Dependencies(id) {
			if r.tasks[depID].Status != TaskCompleted {
				blocking = append(blocking, depID)
			}
		}
		if len(blocking) > 0 {
			blocked[id] = blocking
		}
	}
	return blocked
}

// Task returns a copy of the task with the given id.
func (r *DependencyResolver) Task(taskID int64) (*Task, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	t, ok := r.tasks[taskID]
	if !ok {
		return nil, false
	}
	return t.Clone(), true
}

// Tasks returns copies of all tasks ordered by TaskNumber.
func (r *DependencyResolver) Tasks() []*Task {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Task, 0, len(r.tasks))
	for _, t := range r.tasks {
		out = append(out, t.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].TaskNumber != out[j].TaskNumber {
			return out[i].TaskNumber < out[j].TaskNumber
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// Size returns the number of tasks in the graph.
func (r *DependencyResolver) Size() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tasks)
}

// Stats returns how many tasks are completed, failed, and still non-terminal.
func (r *DependencyResolver) Stats() (completed, failed, remaining int) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, t := range r.tasks {
		switch t.Status {
		case TaskCompleted:
			completed++
		case TaskFailed:
			failed++
		default:
			remaining++
		}
	}
	return completed, failed, remaining
}

// Clear drops all tasks and edges. Intended for tests and full resets.
func (r *DependencyResolver) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tasks = make(map[int64]*Task)
	r.graph = NewTaskGraph()
}

// readyLocked reports task eligibility: pending or ready with every
// dependency completed. Callers hold r.mu.
func (r *DependencyResolver) readyLocked(t *Task) bool {
	if t.Status != TaskPending && t.Status != TaskReady {
		return false
	}
	return r.depsCompletedLocked(t.ID)
}

// depsCompletedLocked reports whether every dependency of the task has
// completed. Callers hold r.mu.
func (r *DependencyResolver) depsCompletedLocked(taskID int64) bool {
	for _, depID := range r.graph.Dependencies(taskID) {
		dep, ok := r.tasks[depID]
		if !ok || dep.Status != TaskCompleted {
			return false
		}
	}
	return true
}

// normalizeDeps dedupes and sorts a dependency list (set semantics).
func normalizeDeps(deps []int64) []int64 {
	if len(deps) == 0 {
		return nil
	}
	seen := make(map[int64]struct{}, len(deps))
	out := make([]int64, 0, len(deps))
	for _, id := range deps {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// taskNumberHeap is a min-heap of tasks ordered by TaskNumber, then id.
type taskNumberHeap []*Task

func (h taskNumberHeap) Len() int { return len(h) }

func (h taskNumberHeap) Less(i, j int) bool {
	if h[i].TaskNumber != h[j].TaskNumber {
		return h[i].TaskNumber < h[j].TaskNumber
	}
	return h[i].ID < h[j].ID
}

func (h taskNumberHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *taskNumberHeap) Push(x any) { *h = append(*h, x.(*Task)) }

func (h *taskNumberHeap) Pop() any {
	old := *h
	n := len(old)
	t := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return t
}
