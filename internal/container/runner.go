package container

import (
	"context"
	"errors"
	"io"
	"os"
	"os/exec"
	"time"
)

// interruptGrace is how long an interrupted runtime gets before it is killed.
const interruptGrace = 10 * time.Second

// Process describes a foreground child process.
type Process struct {
	Name   string
	Args   []string
	Dir    string
	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer
}

// Runner executes container runtime commands.
type Runner interface {
	// CombinedOutput runs name with args and returns stdout and stderr together.
	CombinedOutput(ctx context.Context, name string, args ...string) (string, error)

	// Run runs p in the foreground and blocks until it exits.
	// A non-zero exit is reported as *ExitError.
	Run(ctx context.Context, p Process) error
}

// osRunner executes real commands via exec.CommandContext.
type osRunner struct{}

func (osRunner) CombinedOutput(ctx context.Context, name string, args ...string) (string, error) {
	out, err := exec.CommandContext(ctx, name, args...).CombinedOutput()
	return string(out), err
}

func (osRunner) Run(ctx context.Context, p Process) error {
	cmd := exec.CommandContext(ctx, p.Name, p.Args...)
	cmd.Dir = p.Dir
	cmd.Stdin = p.Stdin
	cmd.Stdout = p.Stdout
	cmd.Stderr = p.Stderr

	// Let the runtime stop its container on cancellation instead of killing it outright.
	cmd.Cancel = func() error {
		return cmd.Process.Signal(os.Interrupt)
	}
	cmd.WaitDelay = interruptGrace

	err := cmd.Run()
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return &ExitError{Code: exitErr.ExitCode()}
	}
	return err
}

// DefaultRunner returns the runner that executes real processes.
func DefaultRunner() Runner {
	return osRunner{}
}
