package events

import (
	"time"
)

// Event is the base interface for all events.
type Event interface {
	EventType() string
	TaskID() int64 // 0 when the event is not about a task
}

// Event type constants. Subscriptions are keyed by these.
const (
	EventTypeTaskStatusChanged  = "task_status_changed"
	EventTypeTaskBlocked        = "task_blocked"
	EventTypeAgentCreated       = "agent_created"
	EventTypeAgentStatusChanged = "agent_status_changed"
	EventTypeAgentRetired       = "agent_retired"
	EventTypeRunStarted         = "run_started"
	EventTypeRunCompleted       = "run_completed"
)

// TaskStatusChangedEvent is published on every task state transition.
type TaskStatusChangedEvent struct {
	ID        int64     `json:"task_id"`
	From      string    `json:"from"`
	To        string    `json:"to"`
	AgentID   string    `json:"agent_id,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

func (e TaskStatusChangedEvent) EventType() string { return EventTypeTaskStatusChanged }
func (e TaskStatusChangedEvent) TaskID() int64     { return e.ID }

// TaskBlockedEvent is published when a task can no longer become ready in
// this run because a dependency failed.
type TaskBlockedEvent struct {
	ID        int64     `json:"task_id"`
	BlockedOn []int64   `json:"blocked_on"`
	Timestamp time.Time `json:"timestamp"`
}

func (e TaskBlockedEvent) EventType() string { return EventTypeTaskBlocked }
func (e TaskBlockedEvent) TaskID() int64     { return e.ID }

// AgentCreatedEvent is published when the pool allocates a new agent.
type AgentCreatedEvent struct {
	AgentID   string    `json:"agent_id"`
	AgentType string    `json:"agent_type"`
	Timestamp time.Time `json:"timestamp"`
}

func (e AgentCreatedEvent) EventType() string { return EventTypeAgentCreated }
func (e AgentCreatedEvent) TaskID() int64     { return 0 }

// AgentStatusChangedEvent is published when an agent moves between idle and
// busy.
type AgentStatusChangedEvent struct {
	AgentID   string    `json:"agent_id"`
	From      string    `json:"from"`
	To        string    `json:"to"`
	Task      int64     `json:"task_id,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

func (e AgentStatusChangedEvent) EventType() string { return EventTypeAgentStatusChanged }
func (e AgentStatusChangedEvent) TaskID() int64     { return e.Task }

// AgentRetiredEvent is published when an agent is removed from the pool.
type AgentRetiredEvent struct {
	AgentID        string    `json:"agent_id"`
	AgentType      string    `json:"agent_type"`
	TasksCompleted int       `json:"tasks_completed"`
	Timestamp      time.Time `json:"timestamp"`
}

func (e AgentRetiredEvent) EventType() string { return EventTypeAgentRetired }
func (e AgentRetiredEvent) TaskID() int64     { return 0 }

// RunStartedEvent is published when an orchestration run begins.
type RunStartedEvent struct {
	RunID      string    `json:"run_id"`
	TotalTasks int       `json:"total_tasks"`
	Timestamp  time.Time `json:"timestamp"`
}

func (e RunStartedEvent) EventType() string { return EventTypeRunStarted }
func (e RunStartedEvent) TaskID() int64     { return 0 }

// RunCompletedEvent is published when an orchestration run terminates,
// whether it drained the graph, stalled on failures, or hit the deadline.
type RunCompletedEvent struct {
	RunID     string        `json:"run_id"`
	Completed int           `json:"completed"`
	Failed    int           `json:"failed"`
	Retries   int           `json:"retries"`
	Elapsed   time.Duration `json:"elapsed"`
	TimedOut  bool          `json:"timed_out"`
	Timestamp time.Time     `json:"timestamp"`
}

func (e RunCompletedEvent) EventType() string { return EventTypeRunCompleted }
func (e RunCompletedEvent) TaskID() int64     { return 0 }
