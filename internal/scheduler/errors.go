package scheduler

import (
	"fmt"
	"strconv"
	"strings"
)

// CycleError reports that the dependency relation is not acyclic.
// Path holds the offending cycle as an ordered task id list with the
// starting node repeated at the end, e.g. [3 5 3].
type CycleError struct {
	Path []int64
}

func (e *CycleError) Error() string {
	if len(e.Path) == 0 {
		return "circular dependencies detected"
	}
	parts := make([]string, len(e.Path))
	for i, id := range e.Path {
		parts[i] = strconv.FormatInt(id, 10)
	}
	return fmt.Sprintf("circular dependencies detected: %s", strings.Join(parts, " -> "))
}

// DependencyError reports an invalid dependency declaration: a task that
// lists itself, or a reference to a task id that does not exist.
type DependencyError struct {
	TaskID       int64
	DependencyID int64
	Reason       string
}

func (e *DependencyError) Error() string {
	return fmt.Sprintf("invalid dependency: task %d -> %d: %s", e.TaskID, e.DependencyID, e.Reason)
}
