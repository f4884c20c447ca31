package cli

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

var alertsNotifyFlag bool

var alertsCmd = &cobra.Command{
	Use:   "alerts",
	Short: "Show overdue and due-soon tasks",
	Long: `Evaluate alert conditions against the task list and the event log and display
any triggered alerts.

Alerts fire for overdue tasks, tasks due within alerts.due_soon_days, and
recent save failures. Use --notify to also send them to the configured notifier.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if AlertEngine == nil {
			return fmt.Errorf("alert engine not initialized (observability may be disabled)")
		}
		if Store == nil {
			return errStoreNotInitialized
		}

		alerts, err := AlertEngine.Evaluate(Store.Tasks(), time.Now())
		if err != nil {
			return fmt.Errorf("evaluating alerts: %w", err)
		}

		out := cmd.OutOrStdout()
		if len(alerts) == 0 {
			fmt.Fprintln(out, "No active alerts.")
			return nil
		}

		fmt.Fprintf(out, "%d active alert(s):\n\n", len(alerts))
		for _, alert := range alerts {
			severity := strings.ToUpper(string(alert.Severity))
			fmt.Fprintf(out, "  [%s] %s\n", severity, alert.Message)
		}

		if alertsNotifyFlag {
			if Notifier == nil {
				return fmt.Errorf("notifier not initialized")
			}
			if err := Notifier.Notify(alerts); err != nil {
				return fmt.Errorf("sending alerts: %w", err)
			}
		}

		return nil
	},
}

func init() {
	alertsCmd.Flags().BoolVar(&alertsNotifyFlag, "notify", false, "Send alerts to the configured notifier")
	rootCmd.AddCommand(alertsCmd)
}
