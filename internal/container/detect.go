package container

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrNoRuntime is returned when no container runtime is found.
var ErrNoRuntime = errors.New("no container runtime found (need docker or podman)")

// RuntimeAuto asks DetectRuntime to pick the first working runtime.
const RuntimeAuto = "auto"

// candidateRuntimes are probed in order when the runtime is "auto".
var candidateRuntimes = []string{"docker", "podman"}

// CheckRuntime verifies that runtime responds to a version probe (`<runtime> -v`).
func CheckRuntime(ctx context.Context, runner Runner, runtime string) error {
	out, err := runner.CombinedOutput(ctx, runtime, "-v")
	if err != nil {
		return &EnvironmentError{Runtime: runtime, Output: strings.TrimSpace(out), Err: err}
	}
	return nil
}

// DetectRuntime resolves the runtime to use. An explicit runtime is probed
// directly; "auto" checks docker first, then podman.
func DetectRuntime(ctx context.Context, runner Runner, runtime string) (string, error) {
	if runtime != RuntimeAuto {
		if err := CheckRuntime(ctx, runner, runtime); err != nil {
			return "", err
		}
		return runtime, nil
	}

	var outputs []string
	var lastErr error
	for _, bin := range candidateRuntimes {
		err := CheckRuntime(ctx, runner, bin)
		if err == nil {
			return bin, nil
		}
		var envErr *EnvironmentError
		if errors.As(err, &envErr) {
			if envErr.Output != "" {
				outputs = append(outputs, bin+": "+envErr.Output)
			}
			err = envErr.Err
		}
		lastErr = err
	}
	return "", &EnvironmentError{
		Runtime: candidateRuntimes[0],
		Output:  strings.Join(outputs, "; "),
		Err:     fmt.Errorf("%w: %w", ErrNoRuntime, lastErr),
	}
}
