package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/hkuds/autopy/internal/config"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Write the default config file",
	Long:  "Write the default configuration to ~/.autopy/config.json (or --config). An existing file is left untouched.",
	RunE:  runInit,
}

func runInit(cmd *cobra.Command, args []string) error {
	path := resolvedConfigPath()
	created, err := config.InitConfig(path)
	if err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	out := cmd.OutOrStdout()
	if !created {
		fmt.Fprintf(out, "Config already exists at %s\n", path)
		return nil
	}
	fmt.Fprintf(out, "Wrote default config to %s\n", path)
	fmt.Fprintf(out, "Set %s (or another provider key) in the environment or in the file, then run 'autopy run'.\n", config.EnvAIMLAPIKey)
	return nil
}
