package cli

import (
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
)

var remindCmd = &cobra.Command{
	Use:   "remind <task> <when>",
	Short: "Send a reminder for a task at a later time",
	Long: `Schedule a one-shot reminder "Don't forget: <task>" and wait for it.

<when> is either a duration from now (30m, 2h) or a local time formatted
"2006-01-02 15:04" or "15:04" (today). Reminders are delivered through the
configured notifier. The command stays in the foreground until the reminder
fires; interrupt it to cancel.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		if Store == nil {
			return errStoreNotInitialized
		}
		if Reminders == nil {
			return fmt.Errorf("reminder scheduler not initialized")
		}
		task, err := resolveTask(args[0])
		if err != nil {
			return err
		}
		at, err := parseWhen(args[1], time.Now())
		if err != nil {
			return err
		}
		cancel, err := Reminders.Schedule(*task, at)
		if err != nil {
			return err
		}
		defer cancel()

		fmt.Fprintf(cmd.OutOrStdout(), "Reminder for %q set for %s\n", task.Text, at.Format("2006-01-02 15:04"))

		ctx, stop := signal.NotifyContext(commandContext(cmd), os.Interrupt, syscall.SIGTERM)
		defer stop()

		ticker := time.NewTicker(250 * time.Millisecond)
		defer ticker.Stop()
		for Reminders.Pending() > 0 {
			select {
			case <-ctx.Done():
				fmt.Fprintln(cmd.OutOrStdout(), "Reminder cancelled")
				return nil
			case <-ticker.C:
			}
		}
		// Let delivery finish before the process exits.
		Reminders.Stop()
		return nil
	},
}

// parseWhen turns a duration or a local clock time into an absolute time.
func parseWhen(s string, now time.Time) (time.Time, error) {
	s = strings.TrimSpace(s)
	if d, err := time.ParseDuration(s); err == nil {
		return now.Add(d), nil
	}
	if t, err := time.ParseInLocation("2006-01-02 15:04", s, time.Local); err == nil {
		return t, nil
	}
	if t, err := time.ParseInLocation("15:04", s, time.Local); err == nil {
		y, m, d := now.In(time.Local).Date()
		return time.Date(y, m, d, t.Hour(), t.Minute(), 0, 0, time.Local), nil
	}
	return time.Time{}, fmt.Errorf("invalid time %q: use a duration like 30m or a time like \"2006-01-02 15:04\"", s)
}

func init() {
	rootCmd.AddCommand(remindCmd)
}
