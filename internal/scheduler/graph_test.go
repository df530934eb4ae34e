package scheduler

import (
	"reflect"
	"testing"
)

// TestGraphAdjacency tests that forward and reverse maps stay mutual inverses.
func TestGraphAdjacency(t *testing.T) {
	g := NewTaskGraph()
	g.AddEdge(2, 1)
	g.AddEdge(3, 1)
	g.AddEdge(4, 2)
	g.AddEdge(4, 3)

	if got := g.Dependencies(4); !reflect.DeepEqual(got, []int64{2, 3}) {
		t.Errorf("Dependencies(4) = %v, want [2 3]", got)
	}
	if got := g.Dependents(1); !reflect.DeepEqual(got, []int64{2, 3}) {
		t.Errorf("Dependents(1) = %v, want [2 3]", got)
	}
	if got := g.Dependencies(1); got != nil {
		t.Errorf("Dependencies(1) = %v, want nil", got)
	}
	if g.Size() != 4 {
		t.Errorf("Size() = %d, want 4", g.Size())
	}

	// Duplicate edges collapse
	g.AddEdge(4, 2)
	if got := g.Dependencies(4); len(got) != 2 {
		t.Errorf("after duplicate AddEdge, Dependencies(4) = %v, want 2 entries", got)
	}
}

// TestGraphFindCycle tests cycle detection across graph shapes.
func TestGraphFindCycle(t *testing.T) {
	tests := []struct {
		name      string
		setup     func() *TaskGraph
		wantCycle bool
		wantPath  []int64 // checked only when non-nil
	}{
		{
			name: "empty graph",
			setup: func() *TaskGraph {
				return NewTaskGraph()
			},
		},
		{
			name: "linear chain",
			setup: func() *TaskGraph {
				g := NewTaskGraph()
				g.AddEdge(2, 1)
				g.AddEdge(3, 2)
				return g
			},
		},
		{
			name: "diamond is acyclic",
			setup: func() *TaskGraph {
				g := NewTaskGraph()
				g.AddEdge(2, 1)
				g.AddEdge(3, 1)
				g.AddEdge(4, 2)
				g.AddEdge(4, 3)
				return g
			},
		},
		{
			name: "self-loop",
			setup: func() *TaskGraph {
				g := NewTaskGraph()
				g.AddEdge(1, 1)
				return g
			},
			wantCycle: true,
			wantPath:  []int64{1, 1},
		},
		{
			name: "two-node cycle",
			setup: func() *TaskGraph {
				g := NewTaskGraph()
				g.AddEdge(1, 2)
				g.AddEdge(2, 1)
				return g
			},
			wantCycle: true,
			wantPath:  []int64{1, 2, 1},
		},
		{
			name: "transitive cycle",
			setup: func() *TaskGraph {
				g := NewTaskGraph()
				g.AddEdge(1, 2)
				g.AddEdge(2, 3)
				g.AddEdge(3, 1)
				return g
			},
			wantCycle: true,
		},
		{
			name: "cycle in second component",
			setup: func() *TaskGraph {
				g := NewTaskGraph()
				g.AddEdge(2, 1)
				g.AddEdge(8, 9)
				g.AddEdge(9, 8)
				return g
			},
			wantCycle: true,
			wantPath:  []int64{8, 9, 8},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := tt.setup()
			cycle := g.FindCycle()

			if (cycle != nil) != tt.wantCycle {
				t.Fatalf("FindCycle() = %v, wantCycle %v", cycle, tt.wantCycle)
			}

			if cycle != nil {
				if first, last := cycle[0], cycle[len(cycle)-1]; first != last {
					t.Errorf("cycle path %v does not close (first %d, last %d)", cycle, first, last)
				}
				// Every consecutive pair must be a real edge.
				for i := 0; i < len(cycle)-1; i++ {
					found := false
					for _, dep := range g.Dependencies(cycle[i]) {
						if dep == cycle[i+1] {
							found = true
							break
						}
					}
					if !found {
						t.Errorf("cycle path %v contains non-edge %d -> %d", cycle, cycle[i], cycle[i+1])
					}
				}
			}

			if tt.wantPath != nil && !reflect.DeepEqual(cycle, tt.wantPath) {
				t.Errorf("FindCycle() = %v, want %v", cycle, tt.wantPath)
			}
		})
	}
}

// TestGraphClone tests that clones are fully independent.
func TestGraphClone(t *testing.T) {
	g := NewTaskGraph()
	g.AddEdge(2, 1)

	cp := g.Clone()
	cp.AddEdge(1, 2) // close a cycle on the copy only

	if cp.FindCycle() == nil {
		t.Error("clone should contain the added cycle")
	}
	if g.FindCycle() != nil {
		t.Error("original graph mutated by clone edit")
	}
}
