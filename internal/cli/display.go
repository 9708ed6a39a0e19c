package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/RevCBH/bbrun/internal/container"
)

// Styles holds the lipgloss styles for terminal output
type Styles struct {
	Heading lipgloss.Style
	Command lipgloss.Style
	Script  lipgloss.Style
	Notice  lipgloss.Style
}

// DefaultStyles returns the default terminal styles
func DefaultStyles() Styles {
	return Styles{
		Heading: lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("39")),
		Command: lipgloss.NewStyle().Foreground(lipgloss.Color("214")),
		Script:  lipgloss.NewStyle().Foreground(lipgloss.Color("245")),
		Notice:  lipgloss.NewStyle().Foreground(lipgloss.Color("42")),
	}
}

// styledDisplay renders dry runs and interactive banners with colour.
type styledDisplay struct {
	w      io.Writer
	styles Styles
}

func (d styledDisplay) DryRun(plan container.Plan) {
	fmt.Fprintln(d.w, d.styles.Heading.Render(plan.Runtime+" command:"))
	fmt.Fprintf(d.w, "\t%s\n", d.styles.Command.Render(plan.Runtime+" "+plan.Command.String()))
	fmt.Fprintln(d.w, d.styles.Heading.Render("build script:"))
	for _, line := range plan.Commands {
		// Multi-line script entries keep their indentation under the tab.
		for _, l := range strings.Split(strings.TrimRight(line, "\n"), "\n") {
			fmt.Fprintf(d.w, "\t%s\n", d.styles.Script.Render(l))
		}
	}
}

func (d styledDisplay) Interactive(image string) {
	fmt.Fprintln(d.w, d.styles.Notice.Render(fmt.Sprintf("opening shell for image %q", image)))
}

// display picks colour output only when stdout is a terminal.
func (a *App) display() container.Display {
	if a.isTerminal(a.stdout) {
		return styledDisplay{w: a.stdout, styles: DefaultStyles()}
	}
	return container.TextDisplay{W: a.stdout}
}
