package container

import (
	"errors"
	"fmt"
)

// Mode selects how a step is executed. It is fixed for the whole invocation.
type Mode int

const (
	// ModeBatch writes the build script and runs it inside the container.
	ModeBatch Mode = iota
	// ModeInteractive hands the terminal over to a shell in the container.
	ModeInteractive
	// ModeDryRun prints what would run without touching disk or the runtime.
	ModeDryRun
)

// ErrInvalidMode is returned when both dry-run and interactive are requested.
var ErrInvalidMode = errors.New("--dry-run and --interactive cannot be combined")

// ModeFromFlags maps the two independent CLI booleans to a single Mode.
func ModeFromFlags(dryRun, interactive bool) (Mode, error) {
	switch {
	case dryRun && interactive:
		return 0, ErrInvalidMode
	case dryRun:
		return ModeDryRun, nil
	case interactive:
		return ModeInteractive, nil
	default:
		return ModeBatch, nil
	}
}

func (m Mode) String() string {
	switch m {
	case ModeBatch:
		return "batch"
	case ModeInteractive:
		return "interactive"
	case ModeDryRun:
		return "dry-run"
	default:
		return fmt.Sprintf("mode(%d)", int(m))
	}
}

// RunConfig describes a single container run.
type RunConfig struct {
	// Image is the plain image reference (e.g., "node:18")
	Image string

	// WorkDir is the directory inside the container the project is mounted at
	WorkDir string

	// HostDir is the absolute project root on the host
	HostDir string

	// Mode is the execution mode
	Mode Mode

	// RunAsRoot adds "-u root" to the invocation
	RunAsRoot bool

	// IgnoredFolders are project-relative folders masked by the staging directory
	IgnoredFolders []string

	// InteractiveShell is the entrypoint used in interactive mode
	InteractiveShell string

	// ScriptShell invokes the build script in batch mode
	ScriptShell string
}

// UsesBuildArea reports whether running cfg writes to the build area. Dry runs
// never do; interactive runs only stage the empty folder for ignored folders.
func (c RunConfig) UsesBuildArea() bool {
	switch c.Mode {
	case ModeBatch:
		return true
	case ModeInteractive:
		return len(c.IgnoredFolders) > 0
	default:
		return false
	}
}

// ExitError reports a non-zero exit status from the container runtime.
type ExitError struct {
	Code int
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("step failed with exit code %d", e.Code)
}

// EnvironmentError is returned when the container runtime is missing or unusable.
type EnvironmentError struct {
	Runtime string
	Output  string
	Err     error
}

func (e *EnvironmentError) Error() string {
	msg := fmt.Sprintf("bbrun requires a valid %s installation: %s -v: %v", e.Runtime, e.Runtime, e.Err)
	if e.Output != "" {
		msg += fmt.Sprintf(" (output: %s)", e.Output)
	}
	return msg
}

func (e *EnvironmentError) Unwrap() error {
	return e.Err
}
