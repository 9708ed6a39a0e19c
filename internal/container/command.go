package container

import (
	"path"
	"strings"
)

// Command is a container runtime invocation, without the runtime binary itself.
type Command struct {
	Args []string
}

// String renders the arguments as a copy-pasteable shell fragment.
func (c Command) String() string {
	return shellQuoteArgs(c.Args)
}

// BuildCommand translates a RunConfig into the runtime's "run" arguments.
// It has no side effects; the staging directory is referenced, not created.
func BuildCommand(cfg RunConfig) Command {
	args := []string{"run", "--rm", "-P"}

	if cfg.RunAsRoot {
		args = append(args, "-u", "root")
	}

	interactive := cfg.Mode == ModeInteractive
	if interactive {
		args = append(args, "-it", "--entrypoint="+cfg.InteractiveShell)
	}

	args = append(args, "-v", cfg.HostDir+":"+cfg.WorkDir)
	args = append(args, "-w", cfg.WorkDir)

	staging := stagingPath(cfg.HostDir)
	for _, folder := range cfg.IgnoredFolders {
		args = append(args, "-v", staging+":"+path.Join(cfg.WorkDir, folder))
	}

	args = append(args, cfg.Image)

	if !interactive {
		args = append(args, cfg.ScriptShell, BuildScriptName)
	}

	return Command{Args: args}
}

// shellQuoteArgs returns a printable, shell-safe representation of args.
func shellQuoteArgs(args []string) string {
	quoted := make([]string, len(args))
	for i, a := range args {
		quoted[i] = ShellQuote(a)
	}
	return strings.Join(quoted, " ")
}

// ShellQuote single-quotes s when it contains characters the shell would interpret.
func ShellQuote(s string) string {
	if s == "" || strings.ContainsAny(s, " \t\n\"'`$\\*?[]{}()<>|&;#~") {
		return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
	}
	return s
}
