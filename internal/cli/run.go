package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/RevCBH/bbrun/internal/config"
	"github.com/RevCBH/bbrun/internal/container"
	"github.com/RevCBH/bbrun/internal/envvars"
	"github.com/RevCBH/bbrun/internal/pipeline"
)

// ErrNoTerminal is returned when interactive mode is requested without a TTY.
var ErrNoTerminal = errors.New("--interactive requires a terminal on stdin")

// RunOptions holds flags for the run command
type RunOptions struct {
	Step          string   // Step name; empty runs every step of the pipeline
	Template      string   // Pipeline file (default: bitbucket-pipelines.yml)
	Pipeline      string   // Pipeline name (default: "default")
	Env           []string // KEY=value entries, each may be comma-separated
	EnvFile       string   // Dotenv file exported into every step
	WorkDir       string   // Mount point inside the container (default: ws)
	DryRun        bool     // Print the docker command and script without running
	Interactive   bool     // Open a shell in the step image instead of running the script
	IgnoreFolders []string // Folders masked with an empty directory
	NoRoot        bool     // Do not force the root user
	Runtime       string   // docker, podman or auto
}

// Validate checks RunOptions for validity
func (opts RunOptions) Validate() error {
	if _, err := container.ModeFromFlags(opts.DryRun, opts.Interactive); err != nil {
		return err
	}
	for _, folder := range opts.IgnoreFolders {
		if err := config.ValidateFolder(folder); err != nil {
			return fmt.Errorf("ignore folder %q: %w", folder, err)
		}
	}
	return nil
}

// NewRunCmd creates the root command, which runs pipeline steps
func NewRunCmd(app *App) *cobra.Command {
	opts := RunOptions{}

	cmd := &cobra.Command{
		Use:   "bbrun [step]",
		Short: "Run Bitbucket Pipelines steps locally in Docker",
		Long: `bbrun executes steps of a Bitbucket Pipelines file inside the step's
Docker image, mounting the current directory as the working directory.

Without a step name every step of the selected pipeline runs in order.`,
		Example: `  # Execute all steps in the default pipeline
  bbrun
  bbrun --template bitbucket-template.yml

  # Execute a single step by its name
  bbrun test
  bbrun "Integration Tests"

  # Execute steps from a different pipeline
  bbrun test --pipeline branches:master

  # Define environment variables
  bbrun test --env EDITOR=vim
  bbrun test --env "EDITOR=vim, USER=root"`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) > 0 {
				opts.Step = args[0]
			}
			if err := opts.Validate(); err != nil {
				return err
			}
			return app.RunSteps(cmd.Context(), opts, changedFlags(cmd))
		},
	}

	// Add flags
	cmd.Flags().StringVarP(&opts.Template, "template", "t", config.DefaultTemplate, "Pipeline file")
	cmd.Flags().StringVarP(&opts.Pipeline, "pipeline", "p", config.DefaultPipeline, "Pipeline to execute (e.g. default, branches:master)")
	cmd.Flags().StringArrayVarP(&opts.Env, "env", "e", nil, "Environment variables for the step (KEY=value, comma-separated)")
	cmd.Flags().StringVar(&opts.EnvFile, "env-file", "", "Dotenv file with environment variables for the step")
	cmd.Flags().StringVarP(&opts.WorkDir, "work-dir", "w", config.DefaultWorkDir, "Working directory inside the container")
	cmd.Flags().BoolVarP(&opts.DryRun, "dry-run", "d", false, "Print the docker command and build script without running")
	cmd.Flags().BoolVarP(&opts.Interactive, "interactive", "i", false, "Start an interactive shell in the step image")
	cmd.Flags().StringArrayVarP(&opts.IgnoreFolders, "ignore-folder", "f", nil, "Map a folder to an empty directory (repeatable)")
	cmd.Flags().BoolVar(&opts.NoRoot, "no-root", false, "Run as the image's default user instead of root")
	cmd.Flags().StringVar(&opts.Runtime, "runtime", config.DefaultRuntime, "Container runtime: docker, podman or auto")

	return cmd
}

// changedFlags reports which flags were set explicitly on the command line.
func changedFlags(cmd *cobra.Command) map[string]bool {
	changed := make(map[string]bool)
	for _, name := range []string{"template", "pipeline", "env-file", "work-dir", "no-root", "runtime"} {
		if f := cmd.Flags().Lookup(name); f != nil && f.Changed {
			changed[name] = true
		}
	}
	return changed
}

// merge applies explicitly set flags over the loaded configuration.
func (opts RunOptions) merge(cfg *config.Config, changed map[string]bool) {
	if changed["template"] {
		cfg.Template = opts.Template
	}
	if changed["pipeline"] {
		cfg.Pipeline = opts.Pipeline
	}
	if changed["env-file"] {
		cfg.EnvFile = opts.EnvFile
	}
	if changed["work-dir"] {
		cfg.WorkDir = opts.WorkDir
	}
	if changed["no-root"] {
		cfg.NoRoot = opts.NoRoot
	}
	if changed["runtime"] {
		cfg.Runtime = opts.Runtime
	}
	cfg.IgnoreFolders = append(cfg.IgnoreFolders, opts.IgnoreFolders...)
}

// RunSteps resolves the requested steps and runs each one in turn.
// The first failing step stops the run.
func (a *App) RunSteps(ctx context.Context, opts RunOptions, changed map[string]bool) error {
	if ctx == nil {
		ctx = context.Background()
	}

	mode, err := container.ModeFromFlags(opts.DryRun, opts.Interactive)
	if err != nil {
		return err
	}
	if mode == container.ModeInteractive && !a.isTerminal(a.stdin) {
		return ErrNoTerminal
	}

	root, err := a.getwd()
	if err != nil {
		return fmt.Errorf("failed to get working directory: %w", err)
	}

	cfg, err := config.LoadConfig(root)
	if err != nil {
		return err
	}
	opts.merge(cfg, changed)
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("validate options: %w", err)
	}

	env, err := a.loadEnv(root, cfg, opts.Env)
	if err != nil {
		return err
	}

	file, err := pipeline.Load(cfg.TemplatePath(root))
	if err != nil {
		return err
	}
	steps, err := file.Steps(cfg.Pipeline, opts.Step, cfg.DefaultImage)
	if err != nil {
		return err
	}

	runner := a.runner
	if runner == nil {
		runner = container.DefaultRunner()
	}
	runtime, err := container.DetectRuntime(ctx, runner, cfg.Runtime)
	if err != nil {
		return err
	}

	area, err := container.NewBuildArea(root)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	base := container.RunConfig{
		WorkDir:          cfg.WorkDir,
		HostDir:          area.Root(),
		Mode:             mode,
		RunAsRoot:        !cfg.NoRoot,
		IgnoredFolders:   cfg.IgnoreFolders,
		InteractiveShell: cfg.InteractiveShell,
		ScriptShell:      cfg.ScriptShell,
	}

	handler := NewSignalHandler(cancel)
	if base.UsesBuildArea() {
		// Remove the build area on interrupt; the normal deferred cleanup may not get to run.
		handler.OnShutdown(func() {
			if err := area.Cleanup(); err != nil {
				a.debugf("cleanup on interrupt: %v", err)
			}
		})
	}
	if a.signals != nil {
		handler.signals = a.signals
	}
	handler.Listen(a.signals == nil)
	defer handler.Stop()

	exec := &container.Executor{
		Runtime: runtime,
		Area:    area,
		Runner:  runner,
		Display: a.display(),
		Stdin:   a.stdin,
		Stdout:  a.stdout,
		Stderr:  a.stderr,
	}

	for i, step := range steps {
		a.debugf("step %d/%d %q: image=%s mode=%s runtime=%s", i+1, len(steps), step.Name, step.Image, mode, runtime)

		runCfg := base
		runCfg.Image = step.Image
		err := exec.Run(ctx, runCfg, container.CommandList(env, step.Script))
		if handler.Interrupted() {
			return stepError(step.Name, len(steps), ErrInterrupted)
		}
		if err != nil {
			return stepError(step.Name, len(steps), err)
		}
	}
	return nil
}

// stepError names the failing step when more than one was scheduled.
func stepError(name string, total int, err error) error {
	if name != "" && total > 1 {
		return fmt.Errorf("step %q: %w", name, err)
	}
	return err
}

// loadEnv returns env-file entries followed by --env entries.
func (a *App) loadEnv(root string, cfg *config.Config, flags []string) ([]string, error) {
	var env []string
	if path := cfg.EnvFilePath(root); path != "" {
		vars, err := envvars.LoadFile(path)
		if err != nil {
			return nil, err
		}
		env = append(env, vars...)
	}
	vars, err := envvars.ParseAll(flags)
	if err != nil {
		return nil, err
	}
	return append(env, vars...), nil
}
