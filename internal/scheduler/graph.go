package scheduler

import "sort"

// TaskGraph is the in-memory dependency relation: pure data plus graph
// algorithms, no locking, no I/O. The forward map records each task's
// dependencies, the reverse map its dependents; AddEdge keeps the two
// mutually inverse.
type TaskGraph struct {
	deps       map[int64]map[int64]struct{} // task id -> ids it depends on
	dependents map[int64]map[int64]struct{} // task id -> ids that depend on it
}

// NewTaskGraph creates an empty graph.
func NewTaskGraph() *TaskGraph {
	return &TaskGraph{
		deps:       make(map[int64]map[int64]struct{}),
		dependents: make(map[int64]map[int64]struct{}),
	}
}

// AddTask registers a node. Adding an existing node is a no-op.
func (g *TaskGraph) AddTask(id int64) {
	if _, ok := g.deps[id]; !ok {
		g.deps[id] = make(map[int64]struct{})
	}
	if _, ok := g.dependents[id]; !ok {
		g.dependents[id] = make(map[int64]struct{})
	}
}

// AddEdge records that taskID depends on depID. Both nodes are registered
// if missing. Duplicate edges collapse (set semantics).
func (g *TaskGraph) AddEdge(taskID, depID int64) {
	g.AddTask(taskID)
	g.AddTask(depID)
	g.deps[taskID][depID] = struct{}{}
	g.dependents[depID][taskID] = struct{}{}
}

// HasTask reports whether id is a node in the graph.
func (g *TaskGraph) HasTask(id int64) bool {
	_, ok := g.deps[id]
	return ok
}

// Size returns the number of nodes.
func (g *TaskGraph) Size() int {
	return len(g.deps)
}

// Dependencies returns the ids taskID depends on, sorted ascending.
func (g *TaskGraph) Dependencies(taskID int64) []int64 {
	return sortedKeys(g.deps[taskID])
}

// Dependents returns the ids that depend on taskID, sorted ascending.
func (g *TaskGraph) Dependents(taskID int64) []int64 {
	return sortedKeys(g.dependents[taskID])
}

// TaskIDs returns all node ids, sorted ascending.
func (g *TaskGraph) TaskIDs() []int64 {
	return sortedKeys(g.deps)
}

// Clone returns an independent deep copy of the graph.
func (g *TaskGraph) Clone() *TaskGraph {
	cp := NewTaskGraph()
	for id, set := range g.deps {
		cp.AddTask(id)
		for dep := range set {
			cp.AddEdge(id, dep)
		}
	}
	return cp
}

// Traversal colors for cycle detection.
const (
	colorWhite = iota // unvisited
	colorGray         // in progress on the current DFS path
	colorBlack        // fully explored
)

// FindCycle runs a depth-first three-coloring traversal over the dependency
// edges. A back-edge to an in-progress node identifies a cycle; the ordered
// path is reconstructed from the traversal stack with the entry node repeated
// at the end (e.g. [3 5 3]). Returns nil if the graph is acyclic. Nodes are
// visited in ascending id order so reports are deterministic.
func (g *TaskGraph) FindCycle() []int64 {
	color := make(map[int64]int, len(g.deps))
	var stack []int64
	var cycle []int64

	var visit func(id int64) bool
	visit = func(id int64) bool {
		color[id] = colorGray
		stack = append(stack, id)

		for _, dep := range g.Dependencies(id) {
			switch color[dep] {
			case colorGray:
				// Back edge: the cycle is the stack suffix starting at dep.
				for i, n := range stack {
					if n == dep {
						cycle = append(append([]int64(nil), stack[i:]...), dep)
						return true
					}
				}
			case colorWhite:
				if visit(dep) {
					return true
				}
			}
		}

		stack = stack[:len(stack)-1]
		color[id] = colorBlack
		return false
	}

	for _, id := range g.TaskIDs() {
		if color[id] == colorWhite && visit(id) {
			return cycle
		}
	}
	return nil
}

func sortedKeys[V any](set map[int64]V) []int64 {
	if len(set) == 0 {
		return nil
	}
	out := make([]int64, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
