package cmd

import (
	"io"

	"github.com/bnema/waydriver/internal/logger"
	"github.com/bnema/waydriver/internal/ui"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
)

var consoleCmd = &cobra.Command{
	Use:   "console",
	Short: "Interactive keyword console",
	Long: `Interactive keyword console. Separate the keyword and its arguments with a
tab or two spaces, e.g. "Type String    hello world".`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		caller, target := newCaller()
		defer func() { _ = caller.Close() }()

		// keep log lines out of the alt screen
		logger.SetOutput(io.Discard)

		p := tea.NewProgram(ui.NewConsoleModel(caller, target), tea.WithAltScreen())
		_, err := p.Run()
		return err
	},
}

func init() {
	rootCmd.AddCommand(consoleCmd)
}
