package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// String renders version info, substituting placeholders for unset fields.
func (v versionInfo) String() string {
	return fmt.Sprintf("bbrun %s (commit %s, built %s)",
		orDefault(v.Version, "dev"), orDefault(v.Commit, "unknown"), orDefault(v.Date, "unknown"))
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}

// NewVersionCmd creates the version command
func NewVersionCmd(app *App) *cobra.Command {
	var short bool

	cmd := &cobra.Command{
		Use:   "version",
		Short: "Display version information",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if short {
				fmt.Fprintln(cmd.OutOrStdout(), orDefault(app.versionInfo.Version, "dev"))
				return nil
			}
			fmt.Fprintln(cmd.OutOrStdout(), app.versionInfo)
			return nil
		},
	}

	cmd.Flags().BoolVar(&short, "short", false, "Print only the version number")

	return cmd
}
