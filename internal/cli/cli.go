package cli

import (
	"io"
	"log"
	"os"
	"strings"
	"unicode"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"golang.org/x/term"

	"github.com/RevCBH/bbrun/internal/container"
)

// versionInfo holds build-time version details.
type versionInfo struct {
	Version string
	Commit  string
	Date    string
}

// App represents the CLI application with all wired dependencies
type App struct {
	// Root command
	rootCmd *cobra.Command

	// Runtime state
	verbose bool

	// Version information
	versionInfo versionInfo

	// I/O and process wiring, replaceable in tests
	stdin      io.Reader
	stdout     io.Writer
	stderr     io.Writer
	runner     container.Runner
	getwd      func() (string, error)
	isTerminal func(any) bool

	// signals, when set, replaces OS signal delivery during a run
	signals chan os.Signal
}

// New creates a new CLI application
func New() *App {
	app := &App{
		stdin:      os.Stdin,
		stdout:     os.Stdout,
		stderr:     os.Stderr,
		getwd:      os.Getwd,
		isTerminal: isTerminal,
	}
	log.SetFlags(0)
	log.SetPrefix("bbrun: ")
	app.setupRootCmd()
	return app
}

// Execute runs the CLI application
func (a *App) Execute() error {
	return a.rootCmd.Execute()
}

// SetVersion sets the version string for the version command
func (a *App) SetVersion(version, commit, date string) {
	a.versionInfo = versionInfo{Version: version, Commit: commit, Date: date}
}

// SetArgs overrides the command-line arguments, for tests.
func (a *App) SetArgs(args []string) {
	a.rootCmd.SetArgs(args)
}

// setupRootCmd configures the root Cobra command
func (a *App) setupRootCmd() {
	a.rootCmd = NewRunCmd(a)
	a.rootCmd.SilenceUsage = true
	a.rootCmd.SilenceErrors = true

	// Subcommand names shadow steps of the same name; `bbrun -- version`
	// runs a step called "version". No completion command, so only
	// version and help are taken.
	a.rootCmd.CompletionOptions.DisableDefaultCmd = true

	// Add persistent flags
	a.rootCmd.PersistentFlags().BoolVar(&a.verbose, "verbose", false,
		"Verbose output")

	// Accept the camelCase spellings of earlier releases (--workDir, --dryRun, ...)
	a.rootCmd.SetGlobalNormalizationFunc(kebabCase)

	a.rootCmd.AddCommand(NewVersionCmd(a))
}

// debugf logs only when --verbose is set.
func (a *App) debugf(format string, args ...any) {
	if a.verbose {
		log.Printf(format, args...)
	}
}

// kebabCase normalizes camelCase flag names to their kebab-case form.
func kebabCase(f *pflag.FlagSet, name string) pflag.NormalizedName {
	var b strings.Builder
	for i, r := range name {
		if unicode.IsUpper(r) {
			if i > 0 {
				b.WriteByte('-')
			}
			r = unicode.ToLower(r)
		}
		b.WriteRune(r)
	}
	return pflag.NormalizedName(b.String())
}

func isTerminal(stream any) bool {
	f, ok := stream.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}
