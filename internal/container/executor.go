package container

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"strings"
)

// Plan is what a dry run reports.
type Plan struct {
	Runtime  string
	Command  Command
	Commands []string
}

// Display renders the user-facing parts of a run.
type Display interface {
	DryRun(plan Plan)
	Interactive(image string)
}

// TextDisplay is a plain-text Display.
type TextDisplay struct {
	W io.Writer
}

func (d TextDisplay) DryRun(plan Plan) {
	fmt.Fprintf(d.W, "%s command:\n\t%s %s\n", plan.Runtime, plan.Runtime, plan.Command)
	fmt.Fprintf(d.W, "build script:\n\t%s\n", strings.Join(plan.Commands, "\n\t"))
}

func (d TextDisplay) Interactive(image string) {
	fmt.Fprintf(d.W, "opening shell for image %q\n", image)
}

// CommandList assembles the lines of a build script: environment exports,
// then "set -e", then the step script.
func CommandList(env []string, script []string) []string {
	commands := make([]string, 0, len(env)+1+len(script))
	for _, kv := range env {
		commands = append(commands, "export "+kv)
	}
	commands = append(commands, "set -e")
	commands = append(commands, script...)
	return commands
}

// Executor runs one step in a container.
type Executor struct {
	// Runtime is the container runtime binary ("docker" or "podman")
	Runtime string

	// Area holds the build script and staging directory
	Area *BuildArea

	// Runner executes the runtime; DefaultRunner() when nil
	Runner Runner

	// Display renders dry-run and interactive banners; plain text when nil
	Display Display

	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer
}

// Run executes commands according to cfg.Mode. In batch mode the build area
// is always cleaned up before Run returns, whatever the container's exit code.
func (e *Executor) Run(ctx context.Context, cfg RunConfig, commands []string) error {
	if cfg.HostDir == "" {
		cfg.HostDir = e.Area.Root()
	}
	cmd := BuildCommand(cfg)

	switch cfg.Mode {
	case ModeDryRun:
		e.display().DryRun(Plan{Runtime: e.Runtime, Command: cmd, Commands: commands})
		return nil

	case ModeInteractive:
		if cfg.UsesBuildArea() {
			defer e.cleanup()
			if err := e.Area.Stage(); err != nil {
				return err
			}
		}
		e.display().Interactive(cfg.Image)
		return e.run(ctx, cfg.HostDir, cmd)

	case ModeBatch:
		defer e.cleanup()
		if err := e.Area.Prepare(commands, len(cfg.IgnoredFolders) > 0); err != nil {
			return err
		}
		return e.run(ctx, cfg.HostDir, cmd)

	default:
		return fmt.Errorf("unknown execution mode %s", cfg.Mode)
	}
}

func (e *Executor) run(ctx context.Context, dir string, cmd Command) error {
	return e.runner().Run(ctx, Process{
		Name:   e.Runtime,
		Args:   cmd.Args,
		Dir:    dir,
		Stdin:  orReader(e.Stdin, os.Stdin),
		Stdout: orWriter(e.Stdout, os.Stdout),
		Stderr: orWriter(e.Stderr, os.Stderr),
	})
}

// cleanup is best effort; the container's exit status stays the result.
func (e *Executor) cleanup() {
	if err := e.Area.Cleanup(); err != nil {
		log.Printf("warning: %v", err)
	}
}

func (e *Executor) runner() Runner {
	if e.Runner != nil {
		return e.Runner
	}
	return DefaultRunner()
}

func (e *Executor) display() Display {
	if e.Display != nil {
		return e.Display
	}
	return TextDisplay{W: orWriter(e.Stdout, os.Stdout)}
}

func orReader(r, fallback io.Reader) io.Reader {
	if r != nil {
		return r
	}
	return fallback
}

func orWriter(w, fallback io.Writer) io.Writer {
	if w != nil {
		return w
	}
	return fallback
}
