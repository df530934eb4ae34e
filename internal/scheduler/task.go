package scheduler

import "fmt"

// TaskStatus represents the current state of a task.
type TaskStatus int

const (
	TaskPending   TaskStatus = iota // Waiting for dependencies
	TaskReady                       // All dependencies completed, eligible to run
	TaskAssigned                    // Claimed by the orchestrator, agent reserved
	TaskRunning                     // Currently executing
	TaskCompleted                   // Finished successfully
	TaskFailed                      // Finished with error, retries exhausted
)

// String returns the lowercase status name used in logs, events, and storage.
func (s TaskStatus) String() string {
	switch s {
	case TaskPending:
		return "pending"
	case TaskReady:
		return "ready"
	case TaskAssigned:
		return "assigned"
	case TaskRunning:
		return "running"
	case TaskCompleted:
		return "completed"
	case TaskFailed:
		return "failed"
	default:
		return fmt.Sprintf("unknown(%d)", int(s))
	}
}

// Terminal reports whether the status is final.
func (s TaskStatus) Terminal() bool {
	return s == TaskCompleted || s == TaskFailed
}

// ParseTaskStatus converts a stored status name back to a TaskStatus.
func ParseTaskStatus(name string) (TaskStatus, error) {
	switch name {
	case "pending":
		return TaskPending, nil
	case "ready":
		return TaskReady, nil
	case "assigned":
		return TaskAssigned, nil
	case "running":
		return TaskRunning, nil
	case "completed":
		return TaskCompleted, nil
	case "failed":
		return TaskFailed, nil
	default:
		return TaskPending, fmt.Errorf("unknown task status %q", name)
	}
}

// AgentType identifies which kind of worker agent a task requires.
type AgentType string

const (
	AgentBackend  AgentType = "backend"
	AgentFrontend AgentType = "frontend"
	AgentTest     AgentType = "test"
)

// Valid reports whether t is one of the known agent types.
func (t AgentType) Valid() bool {
	switch t {
	case AgentBackend, AgentFrontend, AgentTest:
		return true
	}
	return false
}

// Task represents a unit of work in the dependency graph.
type Task struct {
	ID          int64     `json:"id"`
	TaskNumber  int       `json:"task_number"` // Display ordering and scheduling tie-break key
	ProjectID   string    `json:"project_id,omitempty"`
	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`
	AgentType   AgentType `json:"agent_type,omitempty"` // Empty means infer via classifier
	DependsOn   []int64   `json:"depends_on,omitempty"` // Task IDs this task depends on (set semantics)
	Resources   []string  `json:"resources,omitempty"`  // Exclusive resource tags (serialized access)

	Status          TaskStatus `json:"-"`
	AssignedAgentID string     `json:"-"` // Weak reference, does not own the agent
	Attempts        int        `json:"-"` // Execution attempts so far
	Result          string     `json:"-"` // Output from execution
	Err             error      `json:"-"` // Error if failed
}

// Clone returns a deep copy of the task.
func (t *Task) Clone() *Task {
	if t == nil {
		return nil
	}

	cp := *t
	if t.DependsOn != nil {
		cp.DependsOn = append([]int64(nil), t.DependsOn...)
	}
	if t.Resources != nil {
		cp.Resources = append([]string(nil), t.Resources...)
	}
	return &cp
}
