package scheduler

import "fmt"

// ExpandPipeline turns an ordered list of agent types into a chain of
// dependent tasks for one piece of work: step N depends on step N-1, so the
// chain executes strictly in order. Task ids are allocated sequentially from
// startID and task numbers from startNumber, letting callers append the chain
// to an existing task set without collisions.
func ExpandPipeline(title string, steps []string, startID int64, startNumber int) ([]*Task, error) {
	if title == "" {
		return nil, fmt.Errorf("pipeline title must not be empty")
	}
	if len(steps) == 0 {
		return nil, fmt.Errorf("pipeline has no steps")
	}

	tasks := make([]*Task, 0, len(steps))
	for i, step := range steps {
		agentType := AgentType(step)
		if !agentType.Valid() {
			return nil, fmt.Errorf("pipeline step %d: unknown agent type %q", i+1, step)
		}

		task := &Task{
			ID:          startID + int64(i),
			TaskNumber:  startNumber + i,
			Title:       fmt.Sprintf("%s: %s", title, agentType),
			Description: fmt.Sprintf("%s step %d of %d (%s)", title, i+1, len(steps), agentType),
			AgentType:   agentType,
			Status:      TaskPending,
		}
		if i > 0 {
			task.DependsOn = []int64{tasks[i-1].ID}
		}
		tasks = append(tasks, task)
	}
	return tasks, nil
}
