package cli

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
	"github.com/valter-silva-au/todo/internal/core"
)

const progressBarWidth = 30

var (
	barFilledStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("46"))
	barEmptyStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
)

var progressCmd = &cobra.Command{
	Use:   "progress",
	Short: "Show how many tasks are done",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if Store == nil {
			return errStoreNotInitialized
		}
		p := core.ComputeProgress(Store.Tasks())
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "%s %d%%\n", renderBar(p.Percent, progressBarWidth), p.Percent)
		fmt.Fprintf(out, "%d of %d tasks completed. %s\n", p.Completed, p.Total, p.Message)
		return nil
	},
}

func renderBar(percent, width int) string {
	filled := percent * width / 100
	if filled > width {
		filled = width
	}
	return barFilledStyle.Render(strings.Repeat("█", filled)) +
		barEmptyStyle.Render(strings.Repeat("░", width-filled))
}

func init() {
	rootCmd.AddCommand(progressCmd)
}
