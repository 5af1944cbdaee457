package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/hkuds/autopy/internal/config"
	"github.com/hkuds/autopy/internal/history"
	"github.com/hkuds/autopy/internal/log"
	"github.com/hkuds/autopy/internal/providers"
	"github.com/hkuds/autopy/internal/refine"
	"github.com/hkuds/autopy/internal/sandbox"
	"github.com/hkuds/autopy/internal/tui"
)

var (
	maxIterationsFlag int
	modelFlag         string
	providerFlag      string
	imageFlag         string
	noDepsFlag        bool
)

var runCmd = &cobra.Command{
	Use:   "run [task...]",
	Short: "Generate and run a Python script for a task",
	Long: `Generate a Python script for the task, run it in a sandbox and refine it
with the error output until it runs. Without arguments the task is read
from an interactive prompt.`,
	RunE: runRun,
}

func init() {
	runCmd.Flags().IntVarP(&maxIterationsFlag, "max-iterations", "n", 0, "Maximum generation attempts (default from config)")
	runCmd.Flags().StringVarP(&modelFlag, "model", "m", "", "Model to request code from")
	runCmd.Flags().StringVarP(&providerFlag, "provider", "p", "", "Provider to use (aimlapi, openai, openrouter, groq, vllm)")
	runCmd.Flags().StringVar(&imageFlag, "image", "", "Container image to run scripts in")
	runCmd.Flags().BoolVar(&noDepsFlag, "no-deps", false, "Do not install third-party packages")
}

// applyRunFlags overrides config values with the flags set on the command line.
func applyRunFlags(cmd *cobra.Command, cfg *config.Config) {
	flags := cmd.Flags()
	if flags.Changed("max-iterations") {
		cfg.Loop.MaxIterations = maxIterationsFlag
	}
	if flags.Changed("model") {
		cfg.Generator.Model = modelFlag
	}
	if flags.Changed("provider") {
		cfg.Generator.Provider = providerFlag
	}
	if flags.Changed("image") {
		cfg.Sandbox.Image = imageFlag
	}
	if noDepsFlag {
		cfg.Sandbox.InstallDependencies = false
	}
}

// sandboxConfig maps the sandbox config section onto the executor config.
func sandboxConfig(cfg *config.Config) sandbox.Config {
	sc := sandbox.DefaultConfig().
		WithMemoryMB(cfg.Sandbox.MemoryMB).
		WithCPUPercent(cfg.Sandbox.CPUPercent).
		WithMaxProcesses(cfg.Sandbox.MaxProcesses).
		WithGVisor(cfg.Sandbox.UseGVisor).
		WithInstallDependencies(cfg.Sandbox.InstallDependencies).
		WithTimeout(cfg.SandboxTimeout()).
		WithInstallTimeout(cfg.SandboxInstallTimeout())
	if cfg.Sandbox.Image != "" {
		sc = sc.WithImage(cfg.Sandbox.Image)
	}
	return sc
}

// newExecutor connects to Docker. A failed connection still yields an
// executor; every run on it fails as runtime unavailable.
func newExecutor(cfg *config.Config, logger log.Logger) (*sandbox.Executor, func()) {
	execCfg := sandbox.ExecutorConfig{
		Sandbox: sandboxConfig(cfg),
		Logger:  logger,
	}

	cli, err := sandbox.NewDockerClient()
	if err != nil {
		logger.Errorf("Could not initialize docker client: %s", err)
		execCfg.InitErr = err
		return sandbox.NewExecutor(execCfg), func() {}
	}
	execCfg.Client = cli

	return sandbox.NewExecutor(execCfg), func() { _ = cli.Close() }
}

func readTask(args []string, cfg *config.Config) (string, error) {
	if task := strings.TrimSpace(strings.Join(args, " ")); task != "" {
		return task, nil
	}
	if plainFlag {
		return cfg.Loop.DefaultTask, nil
	}
	return tui.PromptTask(cfg.Loop.DefaultTask)
}

func runRun(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	applyRunFlags(cmd, cfg)

	if err := config.EnsureDirs(cfg); err != nil {
		return err
	}

	rl, err := openRunLog(cfg, debugFlag, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer rl.Close()

	task, err := readTask(args, cfg)
	if err != nil {
		return fmt.Errorf("failed to read task: %w", err)
	}

	provider, err := providers.NewProviderFromConfig(cfg)
	if err != nil {
		return fmt.Errorf("failed to create provider: %w", err)
	}

	runID := history.NewRunID()
	logger := rl.Logger.WithValues(log.Kv{"run": runID})

	generator, err := providers.NewCodeGenerator(providers.CodeGeneratorConfig{
		Provider:     provider,
		Model:        cfg.Generator.Model,
		MaxTokens:    cfg.Generator.MaxTokens,
		Temperature:  cfg.Generator.Temperature,
		SystemPrompt: cfg.Generator.SystemPrompt,
		Logger:       logger,
	})
	if err != nil {
		return fmt.Errorf("failed to create code generator: %w", err)
	}

	executor, closeExecutor := newExecutor(cfg, logger)
	defer closeExecutor()

	var progress *tui.Progress
	loop, err := refine.New(refine.Config{
		Generator:           generator,
		Executor:            executor,
		Logger:              logger,
		MaxIterations:       cfg.Loop.MaxIterations,
		RetryDelay:          cfg.RetryDelay(),
		InstallDependencies: cfg.Sandbox.InstallDependencies,
		Observer: func(ev refine.Event) {
			if progress != nil {
				progress.Observe(ev)
			}
		},
	})
	if err != nil {
		return fmt.Errorf("failed to create refinement loop: %w", err)
	}

	rec := history.NewRun(runID, task)
	rec.Provider = provider.Name()
	rec.Model = generator.Model()
	rec.LogFile = rl.Path
	logger.Infof("Run started: provider=%s model=%s task=%q", rec.Provider, rec.Model, task)

	if !plainFlag && !debugFlag {
		progress = tui.NewProgress(cmd.OutOrStdout(), loop.MaxIterations())
		progress.Start()
	}

	var out refine.Outcome
	err = runInterruptible(cmd.Context(), logger, func(ctx context.Context) error {
		out = loop.Run(ctx, task)
		return nil
	})
	if progress != nil {
		progress.Stop()
	}
	if err != nil {
		return err
	}

	rec.Complete(out)
	logger.Infof("Run finished: status=%s iterations=%d", out.Status, out.Iterations)
	if cfg.History.Enabled {
		saveRun(cfg, rec, logger)
	}

	if plainFlag {
		fmt.Fprint(cmd.OutOrStdout(), tui.RenderPlain(out, rl.Path))
	} else {
		fmt.Fprint(cmd.OutOrStdout(), tui.RenderOutcome(out, rl.Path))
	}

	if !out.Succeeded() {
		return ErrRunFailed
	}
	return nil
}

// saveRun persists rec. History is best effort and never fails the run.
func saveRun(cfg *config.Config, rec *history.Run, logger log.Logger) {
	store, err := history.NewStore(cfg.HistoryDir())
	if err != nil {
		logger.Warningf("Could not open history store: %s", err)
		return
	}
	if err := store.Save(rec); err != nil {
		logger.Warningf("Could not save run history: %s", err)
	}
}
