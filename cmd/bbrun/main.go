package main

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/RevCBH/bbrun/internal/cli"
	"github.com/RevCBH/bbrun/internal/container"
)

// Build-time variables (set via ldflags)
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

func main() {
	app := cli.New()
	app.SetVersion(version, commit, date)

	if err := app.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", strings.ReplaceAll(err.Error(), "\n", "; "))

		// A failing step exits with the container's own status.
		var exitErr *container.ExitError
		switch {
		case errors.Is(err, cli.ErrInterrupted):
			os.Exit(130)
		case errors.As(err, &exitErr) && exitErr.Code > 0:
			os.Exit(exitErr.Code)
		}
		os.Exit(1)
	}
}
