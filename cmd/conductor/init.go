package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/codeframe/conductor/internal/config"
)

var (
	initGlobal bool
	initForce  bool
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a starter configuration file",
	Long: `Init writes the default configuration to .conductor/config.json in the
current directory, or to ~/.conductor/config.json with --global.

The written file can be trimmed to just the settings you want to override;
anything missing falls back to the defaults at load time. Project settings
take precedence over global ones.`,
	Args: cobra.NoArgs,
	RunE: initConfig,
}

func init() {
	initCmd.Flags().BoolVar(&initGlobal, "global", false, "Write to ~/.conductor instead of the project directory")
	initCmd.Flags().BoolVar(&initForce, "force", false, "Overwrite an existing config file")
}

func initConfig(cmd *cobra.Command, args []string) error {
	path := filepath.Join(".conductor", "config.json")
	if initGlobal {
		home, err := os.UserHomeDir()
		if err != nil {
			return fmt.Errorf("getting home directory: %w", err)
		}
		path = filepath.Join(home, ".conductor", "config.json")
	}

	if !initForce {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("%s already exists (use --force to overwrite)", path)
		}
	}

	if err := config.Save(config.DefaultConfig(), path); err != nil {
		return err
	}
	fmt.Printf("Wrote %s\n", path)
	return nil
}
