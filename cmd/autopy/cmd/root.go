package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/hkuds/autopy/internal/config"
)

// ErrRunFailed is returned when a run ends without a working program.
var ErrRunFailed = errors.New("run failed")

var (
	configPath string
	envFile    string
	debugFlag  bool
	plainFlag  bool
)

var rootCmd = &cobra.Command{
	Use:   "autopy",
	Short: "AutoPy - generate Python scripts that actually run",
	Long: `AutoPy asks a language model for a Python script, runs it in an isolated
Docker container and feeds any error back to the model until the script
runs cleanly or the iteration budget is spent.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file (default ~/.autopy/config.json)")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "Dotenv file with provider API keys")
	rootCmd.PersistentFlags().BoolVar(&debugFlag, "debug", false, "Log to the console at debug level")
	rootCmd.PersistentFlags().BoolVar(&plainFlag, "plain", false, "Disable interactive and styled output")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(versionCmd)
}

// loadConfig reads the config file and fills API keys from the environment.
func loadConfig() (*config.Config, error) {
	if err := config.LoadEnv(envFile); err != nil {
		return nil, err
	}
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	cfg.ApplyEnv()
	return cfg, nil
}

func resolvedConfigPath() string {
	if configPath != "" {
		return configPath
	}
	return config.GetConfigPath()
}
