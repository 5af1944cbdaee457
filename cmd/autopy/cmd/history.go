package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/hkuds/autopy/internal/history"
	"github.com/hkuds/autopy/internal/tui"
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List previous runs",
	Long:  "List previous runs, newest first. Use 'autopy history show <id>' to see every iteration of a run.",
	Args:  cobra.NoArgs,
	RunE:  runHistoryList,
}

var historyShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show the iterations of a run",
	Long:  "Show the task, generated code and sandbox result of every iteration of a run. A unique ID prefix is enough.",
	Args:  cobra.ExactArgs(1),
	RunE:  runHistoryShow,
}

var historyRmCmd = &cobra.Command{
	Use:   "rm <id>",
	Short: "Delete a run",
	Args:  cobra.ExactArgs(1),
	RunE:  runHistoryRm,
}

func init() {
	historyCmd.AddCommand(historyShowCmd)
	historyCmd.AddCommand(historyRmCmd)
}

func openHistory() (*history.Store, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	return history.NewStore(cfg.HistoryDir())
}

func runHistoryList(cmd *cobra.Command, args []string) error {
	store, err := openHistory()
	if err != nil {
		return err
	}
	runs, err := store.List()
	if err != nil {
		return fmt.Errorf("failed to list runs: %w", err)
	}
	fmt.Fprint(cmd.OutOrStdout(), tui.RenderHistory(runs))
	return nil
}

func runHistoryShow(cmd *cobra.Command, args []string) error {
	store, err := openHistory()
	if err != nil {
		return err
	}
	run, err := store.Load(args[0])
	if err != nil {
		return fmt.Errorf("failed to load run %s: %w", args[0], err)
	}
	fmt.Fprint(cmd.OutOrStdout(), tui.RenderRun(run))
	return nil
}

func runHistoryRm(cmd *cobra.Command, args []string) error {
	store, err := openHistory()
	if err != nil {
		return err
	}
	if err := store.Delete(args[0]); err != nil {
		return fmt.Errorf("failed to delete run %s: %w", args[0], err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Deleted run %s\n", args[0])
	return nil
}
