package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/codeframe/conductor/internal/scheduler"
)

var validateCmd = &cobra.Command{
	Use:   "validate <tasks.json>",
	Short: "Check a task file for cycles and invalid dependencies",
	Long: `Validate builds the dependency graph from a task file and reports
problems without executing anything.

The file is a JSON array of tasks:

  [
    {"id": 1, "task_number": 1, "title": "Create schema", "agent_type": "backend"},
    {"id": 2, "task_number": 2, "title": "Build API", "depends_on": [1]},
    {"id": 3, "task_number": 3, "title": "API contract tests", "depends_on": [2],
     "resources": ["staging-db"]}
  ]

Tasks without an agent_type are classified from their title and description.
Circular dependencies and references to missing tasks make the command exit
non-zero; on success the scheduling order is printed.`,
	Args: cobra.ExactArgs(1),
	RunE: validateTaskFile,
}

func validateTaskFile(cmd *cobra.Command, args []string) error {
	tasks, err := loadTaskFile(args[0])
	if err != nil {
		return err
	}

	resolver := scheduler.NewDependencyResolver()
	if err := resolver.BuildGraph(tasks); err != nil {
		return fmt.Errorf("%s: %w", args[0], err)
	}

	order, err := resolver.TopologicalSort()
	if err != nil {
		return err
	}

	fmt.Printf("Task graph OK: %d tasks\n\n", len(order))
	fmt.Println("Scheduling order:")
	for i, id := range order {
		task, _ := resolver.Task(id)
		depth, _ := resolver.DependencyDepth(id)
		fmt.Printf("  %2d. [%-8s] %s (task %d, depth %d)\n",
			i+1, scheduler.DefaultClassifier(task), task.Title, task.ID, depth)
	}
	return nil
}
