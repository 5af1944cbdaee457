package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/hkuds/autopy/internal/log"
	"github.com/hkuds/autopy/internal/tui"
)

const pingTimeout = 5 * time.Second

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show configuration status",
	Long:  "Display the current AutoPy configuration, the active provider and whether the Docker daemon is reachable.",
	RunE:  runStatus,
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	executor, closeExecutor := newExecutor(cfg, log.Noop)
	defer closeExecutor()

	ctx, cancel := context.WithTimeout(cmd.Context(), pingTimeout)
	defer cancel()
	runtime := tui.RuntimeStatus{Err: executor.Ping(ctx)}

	fmt.Fprint(cmd.OutOrStdout(), tui.RenderStatus(cfg, resolvedConfigPath(), runtime))
	return nil
}
