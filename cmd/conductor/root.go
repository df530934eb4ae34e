package main

import (
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "conductor",
	Short: "Multi-agent task coordination engine",
	Long: `Conductor executes dependency graphs of tasks across a bounded pool
of worker agents.

Tasks declare dependencies, an agent type (backend, frontend, test), and
optional exclusive resources. Conductor dispatches every task whose
dependencies have completed, bounds concurrency, retries transient failures
with exponential backoff, and checkpoints progress to SQLite so interrupted
runs can be resumed.`,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(planCmd)
	rootCmd.AddCommand(initCmd)
}
