package scheduler

import (
	"reflect"
	"strings"
	"testing"
)

func TestExpandPipeline(t *testing.T) {
	tasks, err := ExpandPipeline("User auth", []string{"backend", "frontend", "test"}, 100, 7)
	if err != nil {
		t.Fatalf("ExpandPipeline() error = %v", err)
	}
	if len(tasks) != 3 {
		t.Fatalf("expected 3 tasks, got %d", len(tasks))
	}

	// Sequential ids and task numbers from the requested starts.
	for i, task := range tasks {
		if task.ID != 100+int64(i) {
			t.Errorf("task %d ID = %d, want %d", i, task.ID, 100+int64(i))
		}
		if task.TaskNumber != 7+i {
			t.Errorf("task %d TaskNumber = %d, want %d", i, task.TaskNumber, 7+i)
		}
		if !strings.Contains(task.Title, "User auth") {
			t.Errorf("task %d title %q missing pipeline title", i, task.Title)
		}
	}

	// First step has no dependencies; each later step depends on the previous.
	if tasks[0].DependsOn != nil {
		t.Errorf("first step DependsOn = %v, want none", tasks[0].DependsOn)
	}
	if !reflect.DeepEqual(tasks[1].DependsOn, []int64{100}) {
		t.Errorf("second step DependsOn = %v, want [100]", tasks[1].DependsOn)
	}
	if !reflect.DeepEqual(tasks[2].DependsOn, []int64{101}) {
		t.Errorf("third step DependsOn = %v, want [101]", tasks[2].DependsOn)
	}

	// Agent types carried through in order.
	wantTypes := []AgentType{AgentBackend, AgentFrontend, AgentTest}
	for i, task := range tasks {
		if task.AgentType != wantTypes[i] {
			t.Errorf("task %d AgentType = %s, want %s", i, task.AgentType, wantTypes[i])
		}
	}
}

func TestExpandPipelineBuildsValidGraph(t *testing.T) {
	tasks, err := ExpandPipeline("Checkout flow", []string{"backend", "test"}, 1, 1)
	if err != nil {
		t.Fatalf("ExpandPipeline() error = %v", err)
	}

	r := NewDependencyResolver()
	if err := r.BuildGraph(tasks); err != nil {
		t.Fatalf("BuildGraph() over expanded pipeline error = %v", err)
	}

	order, err := r.TopologicalSort()
	if err != nil {
		t.Fatalf("TopologicalSort() error = %v", err)
	}
	if !reflect.DeepEqual(order, []int64{1, 2}) {
		t.Errorf("TopologicalSort() = %v, want [1 2]", order)
	}
}

func TestExpandPipelineErrors(t *testing.T) {
	tests := []struct {
		name  string
		title string
		steps []string
	}{
		{"empty title", "", []string{"backend"}},
		{"no steps", "Feature", nil},
		{"unknown agent type", "Feature", []string{"backend", "designer"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ExpandPipeline(tt.title, tt.steps, 1, 1); err == nil {
				t.Error("ExpandPipeline() error = nil, want error")
			}
		})
	}
}
