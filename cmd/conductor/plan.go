package main

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/codeframe/conductor/internal/config"
	"github.com/codeframe/conductor/internal/scheduler"
)

var (
	planOutput      string
	planStartID     int64
	planStartNumber int
)

var planCmd = &cobra.Command{
	Use:   "plan <pipeline> <title>",
	Short: "Expand a configured pipeline into a task file",
	Long: `Plan generates a runnable task file from a named pipeline. Each step in
the pipeline becomes a task depending on the previous step, so "plan feature
'User login'" with a backend,frontend,test pipeline emits three chained tasks.

The result is printed to stdout, or written to a file with --output so it can
be edited and fed to "conductor run".`,
	Args: cobra.ExactArgs(2),
	RunE: expandPlan,
}

func init() {
	planCmd.Flags().StringVarP(&planOutput, "output", "o", "", "write the task file here instead of stdout")
	planCmd.Flags().Int64Var(&planStartID, "start-id", 1, "id assigned to the first generated task")
	planCmd.Flags().IntVar(&planStartNumber, "start-number", 1, "task number assigned to the first generated task")
}

func expandPlan(cmd *cobra.Command, args []string) error {
	name, title := args[0], args[1]

	cfg, err := config.LoadDefault()
	if err != nil {
		return err
	}

	steps, ok := cfg.Pipelines[name]
	if !ok {
		known := make([]string, 0, len(cfg.Pipelines))
		for k := range cfg.Pipelines {
			known = append(known, k)
		}
		sort.Strings(known)
		return fmt.Errorf("unknown pipeline %q (known: %s)", name, strings.Join(known, ", "))
	}

	tasks, err := scheduler.ExpandPipeline(title, steps, planStartID, planStartNumber)
	if err != nil {
		return err
	}

	data, err := json.MarshalIndent(tasks, "", "  ")
	if err != nil {
		return err
	}
	data = append(data, '\n')

	if planOutput == "" {
		fmt.Print(string(data))
		return nil
	}
	if err := os.WriteFile(planOutput, data, 0644); err != nil {
		return err
	}
	fmt.Printf("Wrote %d tasks to %s\n", len(tasks), planOutput)
	return nil
}
