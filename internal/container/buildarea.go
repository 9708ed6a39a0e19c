package container

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

const (
	// BuildScriptName is the build script file, relative to the project root.
	BuildScriptName = ".bprun.sh"

	// StagingDirName is the empty directory mounted over ignored folders.
	StagingDirName = ".bprun"

	scriptHeader = "#!/usr/bin/env sh\n"
)

// ErrOutsideRoot is returned when an artifact path would escape the project root.
var ErrOutsideRoot = errors.New("path is outside the project root")

// BuildArea owns the build script and staging directory of one project root.
// Cleanup is idempotent and safe to call from a signal handler.
type BuildArea struct {
	root string
	mu   sync.Mutex
}

// NewBuildArea returns the build area rooted at the given project directory.
func NewBuildArea(root string) (*BuildArea, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve project root: %w", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("project root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("project root %s is not a directory", abs)
	}
	return &BuildArea{root: abs}, nil
}

// Root returns the absolute project root.
func (a *BuildArea) Root() string {
	return a.root
}

// ScriptPath returns the host path of the build script.
func (a *BuildArea) ScriptPath() string {
	return filepath.Join(a.root, BuildScriptName)
}

// StagingPath returns the host path of the staging directory.
func (a *BuildArea) StagingPath() string {
	return stagingPath(a.root)
}

func stagingPath(root string) string {
	return filepath.Join(root, StagingDirName)
}

// Prepare clears leftovers from an earlier run, writes the build script and,
// when stage is set, creates the empty staging directory.
func (a *BuildArea) Prepare(commands []string, stage bool) error {
	if err := a.Cleanup(); err != nil {
		return fmt.Errorf("remove stale build artifacts: %w", err)
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	// O_EXCL so a path recreated between cleanup and here is never followed.
	f, err := os.OpenFile(a.ScriptPath(), os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		return fmt.Errorf("create build script: %w", err)
	}
	if _, err := f.WriteString(RenderScript(commands)); err != nil {
		f.Close()
		return fmt.Errorf("write build script: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close build script: %w", err)
	}

	if stage {
		if err := a.stageLocked(); err != nil {
			return err
		}
	}
	return nil
}

// Stage creates the empty staging directory without writing a script.
func (a *BuildArea) Stage() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if err := a.removeLocked(a.StagingPath()); err != nil {
		return fmt.Errorf("remove stale staging directory: %w", err)
	}
	return a.stageLocked()
}

func (a *BuildArea) stageLocked() error {
	if err := os.Mkdir(a.StagingPath(), 0755); err != nil {
		return fmt.Errorf("create staging directory: %w", err)
	}
	return nil
}

// Cleanup removes the build script and the staging directory.
// Missing artifacts are not an error.
func (a *BuildArea) Cleanup() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	var errs []error
	if err := a.removeLocked(a.ScriptPath()); err != nil {
		errs = append(errs, fmt.Errorf("remove build script: %w", err))
	}
	if err := a.removeLocked(a.StagingPath()); err != nil {
		errs = append(errs, fmt.Errorf("remove staging directory: %w", err))
	}
	return errors.Join(errs...)
}

// removeLocked deletes target, which must be a direct descendant of the root.
// Symbolic links are removed as links; their targets are never visited.
func (a *BuildArea) removeLocked(target string) error {
	if err := a.contains(target); err != nil {
		return err
	}

	info, err := os.Lstat(target)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}

	if info.Mode()&fs.ModeSymlink != 0 || !info.IsDir() {
		return ignoreNotExist(os.Remove(target))
	}
	return removeTree(target)
}

// contains asserts target resolves inside the root, symlinks in the root included.
func (a *BuildArea) contains(target string) error {
	root, err := filepath.EvalSymlinks(a.root)
	if err != nil {
		return fmt.Errorf("resolve project root: %w", err)
	}
	parent, err := filepath.EvalSymlinks(filepath.Dir(target))
	if err != nil {
		return fmt.Errorf("resolve %s: %w", target, err)
	}
	resolved := filepath.Join(parent, filepath.Base(target))

	rel, err := filepath.Rel(root, resolved)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrOutsideRoot, target)
	}
	if rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) || filepath.IsAbs(rel) {
		return fmt.Errorf("%w: %s", ErrOutsideRoot, target)
	}
	return nil
}

// removeTree deletes a directory depth-first using Lstat, so nested
// symlinks are unlinked instead of followed.
func removeTree(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return ignoreNotExist(err)
	}
	for _, entry := range entries {
		p := filepath.Join(dir, entry.Name())
		info, err := os.Lstat(p)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return err
		}
		if info.IsDir() {
			if err := removeTree(p); err != nil {
				return err
			}
			continue
		}
		if err := ignoreNotExist(os.Remove(p)); err != nil {
			return err
		}
	}
	return ignoreNotExist(os.Remove(dir))
}

func ignoreNotExist(err error) error {
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return err
}

// RenderScript returns the build script contents for the given commands.
func RenderScript(commands []string) string {
	return scriptHeader + strings.Join(commands, "\n") + "\n"
}
