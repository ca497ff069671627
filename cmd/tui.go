// Package cmd command line
package cmd

import (
	"fmt"
	"os"

	errors "github.com/Laisky/errors/v2"
	gcmd "github.com/Laisky/go-utils/v6/cmd"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/JxTIN21/Codebase/cmd/tui"
	"github.com/JxTIN21/Codebase/internal/global"
)

var tuiCMD = &cobra.Command{
	Use:   "tui",
	Short: "Launch interactive TUI",
	Long: `Launch an interactive Terminal User Interface (TUI) for searching indexed codebases.

Pick a codebase, type a question and read the explanation together with the
ranked files and code examples. Index a directory first with "codebase index".

Keyboard shortcuts:
  ↑/↓ or j/k  Navigate codebases / scroll the answer
  /           Filter codebases
  Enter       Select / Search
  r           Refresh the codebase list
  Esc         Go back
  q           Quit`,
	Args:   gcmd.NoExtraArgs,
	PreRun: preRun,
	Run: func(cmd *cobra.Command, args []string) {
		if err := runTUI(cmd); err != nil {
			fmt.Fprintf(os.Stderr, "Error running TUI: %v\n", err)
			os.Exit(1)
		}
	},
}

func init() {
	rootCMD.AddCommand(tuiCMD)
}

// runTUI starts the interactive Terminal User Interface and returns any start/run error.
func runTUI(cmd *cobra.Command) error {
	rt, err := global.SetupService(cmd.Context())
	if err != nil {
		return errors.Wrap(err, "setup service")
	}
	defer rt.Close()

	p := tea.NewProgram(
		tui.NewModel(rt.Service),
		tea.WithAltScreen(),
		tea.WithMouseCellMotion(),
	)

	_, err = p.Run()
	return errors.WithStack(err)
}
