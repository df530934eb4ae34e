package pool

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/codeframe/conductor/internal/events"
	"github.com/codeframe/conductor/internal/scheduler"
)

// DefaultMaxAgents bounds the pool when no capacity is configured.
const DefaultMaxAgents = 10

// ErrPoolCapacity is returned when creating an agent would exceed the pool's
// capacity. The orchestrator treats it as a deferral signal, not a failure.
var ErrPoolCapacity = errors.New("agent pool at capacity")

// AgentStatus represents the lifecycle state of an agent.
type AgentStatus int

const (
	AgentIdle    AgentStatus = iota // Available for assignment
	AgentBusy                       // Holds exactly one task
	AgentRetired                    // Removed from the pool, irreversible
)

// String returns the lowercase status name used in logs and events.
func (s AgentStatus) String() string {
	switch s {
	case AgentIdle:
		return "idle"
	case AgentBusy:
		return "busy"
	case AgentRetired:
		return "retired"
	default:
		return fmt.Sprintf("unknown(%d)", int(s))
	}
}

// AgentStateError reports an illegal agent lifecycle transition, such as
// assigning a task to an agent that is not idle.
type AgentStateError struct {
	AgentID string
	Status  AgentStatus // current status
	Want    AgentStatus // status the operation requires
}

func (e *AgentStateError) Error() string {
	return fmt.Sprintf("agent %s is %s, want %s", e.AgentID, e.Status, e.Want)
}

// Agent is a worker-agent handle: identity, lifecycle state, and counters.
// The pool owns the canonical record; callers receive copies.
type Agent struct {
	ID             string
	Type           scheduler.AgentType
	Status         AgentStatus
	CurrentTaskID  int64 // 0 when not busy
	TasksCompleted int
	CreatedAt      time.Time
}

func (a *Agent) clone() *Agent {
	cp := *a
	return &cp
}

// AgentPool manages a bounded set of worker agents. All mutating operations
// are serialized behind one mutex; reads return consistent snapshots. The
// pool publishes agent lifecycle events to the bus (which may be nil).
type AgentPool struct {
	mu        sync.Mutex
	maxAgents int
	agents    map[string]*Agent
	nextSeq   map[scheduler.AgentType]int
	bus       *events.Bus
}

// New creates a pool holding at most maxAgents non-retired agents.
// maxAgents <= 0 selects DefaultMaxAgents.
func New(maxAgents int, bus *events.Bus) *AgentPool {
	if maxAgents <= 0 {
		maxAgents = DefaultMaxAgents
	}
	return &AgentPool{
		maxAgents: maxAgents,
		agents:    make(map[string]*Agent),
		nextSeq:   make(map[scheduler.AgentType]int),
		bus:       bus,
	}
}

// CreateAgent allocates a new idle agent of the given type. Agent ids are
// sequential per type ("backend-worker-003"). Fails with ErrPoolCapacity when
// the pool already holds maxAgents agents.
func (p *AgentPool) CreateAgent(agentType scheduler.AgentType) (*Agent, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.createLocked(agentType)
}

func (p *AgentPool) createLocked(agentType scheduler.AgentType) (*Agent, error) {
	if !agentType.Valid() {
		return nil, fmt.Errorf("unknown agent type: %s", agentType)
	}
	if len(p.agents) >= p.maxAgents {
		return nil, fmt.Errorf("%w: %d agents (max %d)", ErrPoolCapacity, len(p.agents), p.maxAgents)
	}

	p.nextSeq[agentType]++
	agent := &Agent{
		ID:        fmt.Sprintf("%s-worker-%03d", agentType, p.nextSeq[agentType]),
		Type:      agentType,
		Status:    AgentIdle,
		CreatedAt: time.Now(),
	}
	p.agents[agent.ID] = agent

	p.bus.Publish(events.AgentCreatedEvent{
		AgentID:   agent.ID,
		AgentType: string(agent.Type),
		Timestamp: time.Now(),
	})
	return agent.clone(), nil
}

// GetOrCreateAgent returns an idle agent of the given type, preferring the
// oldest existing one, and only allocates when none is free. This is the
// standard acquisition path: reuse avoids allocation churn.
func (p *AgentPool) GetOrCreateAgent(agentType scheduler.AgentType) (*Agent, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	var candidates []*Agent
	for _, agent := range p.agents {
		if agent.Type == agentType && agent.Status == AgentIdle {
			candidates = append(candidates, agent)
		}
	}
	if len(candidates) > 0 {
		// Sequential ids sort in creation order within a type.
		sort.Slice(candidates, func(i, j int) bool { return candidates[i].ID < candidates[j].ID })
		return candidates[0].clone(), nil
	}

	return p.createLocked(agentType)
}

// MarkBusy transitions an idle agent to busy and records its task. Fails
// with *AgentStateError if the agent is not idle, so a task can never be
// silently double-assigned.
func (p *AgentPool) MarkBusy(agentID string, taskID int64) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	agent, ok := p.agents[agentID]
	if !ok {
		return fmt.Errorf("agent %s not found", agentID)
	}
	if agent.Status != AgentIdle {
		return &AgentStateError{AgentID: agentID, Status: agent.Status, Want: AgentIdle}
	}

	agent.Status = AgentBusy
	agent.CurrentTaskID = taskID

	p.bus.Publish(events.AgentStatusChangedEvent{
		AgentID:   agentID,
		From:      AgentIdle.String(),
		To:        AgentBusy.String(),
		Task:      taskID,
		Timestamp: time.Now(),
	})
	return nil
}

// MarkIdle transitions a busy agent back to idle, clears its task, and
// counts the completed assignment.
func (p *AgentPool) MarkIdle(agentID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	agent, ok := p.agents[agentID]
	if !ok {
		return fmt.Errorf("agent %s not found", agentID)
	}
	if agent.Status != AgentBusy {
		return &AgentStateError{AgentID: agentID, Status: agent.Status, Want: AgentBusy}
	}

	taskID := agent.CurrentTaskID
	agent.Status = AgentIdle
	agent.CurrentTaskID = 0
	agent.TasksCompleted++

	p.bus.Publish(events.AgentStatusChangedEvent{
		AgentID:   agentID,
		From:      AgentBusy.String(),
		To:        AgentIdle.String(),
		Task:      taskID,
		Timestamp: time.Now(),
	})
	return nil
}

// RetireAgent removes an agent from the pool regardless of its state.
// Used for idle-timeout cleanup and full-session shutdown.
func (p *AgentPool) RetireAgent(agentID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.retireLocked(agentID)
}

func (p *AgentPool) retireLocked(agentID string) error {
	agent, ok := p.agents[agentID]
	if !ok {
		return fmt.Errorf("agent %s not found", agentID)
	}

	agent.Status = AgentRetired
	delete(p.agents, agentID)

	p.bus.Publish(events.AgentRetiredEvent{
		AgentID:        agentID,
		AgentType:      string(agent.Type),
		TasksCompleted: agent.TasksCompleted,
		Timestamp:      time.Now(),
	})
	return nil
}

// Agent returns a copy of the agent with the given id.
func (p *AgentPool) Agent(agentID string) (*Agent, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	agent, ok := p.agents[agentID]
	if !ok {
		return nil, false
	}
	return agent.clone(), true
}

// Snapshot returns a consistent copy of every agent record, keyed by id.
func (p *AgentPool) Snapshot() map[string]Agent {
	p.mu.Lock()
	defer p.mu.Unlock()

	snap := make(map[string]Agent, len(p.agents))
	for id, agent := range p.agents {
		snap[id] = *agent
	}
	return snap
}

// Size returns the number of non-retired agents.
func (p *AgentPool) Size() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.agents)
}

// IdleCount returns the number of idle agents.
func (p *AgentPool) IdleCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()

	count := 0
	for _, agent := range p.agents {
		if agent.Status == AgentIdle {
			count++
		}
	}
	return count
}

// Clear retires every agent. Used by tests and emergency shutdown.
func (p *AgentPool) Clear() {
	p.mu.Lock()
	defer p.mu.Unlock()

	for id := range p.agents {
		// retireLocked cannot fail for a known id.
		_ = p.retireLocked(id)
	}
}
