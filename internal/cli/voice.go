package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var (
	voiceDueFlag      string
	voicePriorityFlag string
)

var voiceCmd = &cobra.Command{
	Use:   "voice",
	Short: "Add a task by speaking it",
	Long: `Run the configured speech-to-text command (voice.command in .todoconfig)
and add its transcript as a new task.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if Store == nil {
			return errStoreNotInitialized
		}
		if Voice == nil {
			return fmt.Errorf("voice capture not initialized")
		}
		fmt.Fprintln(cmd.OutOrStdout(), "Listening...")
		text, err := Voice.Capture(commandContext(cmd))
		if err != nil {
			return fmt.Errorf("capturing task text: %w", err)
		}
		task, err := createTask(cmd, text, voiceDueFlag, voicePriorityFlag, nil)
		if err != nil {
			return err
		}
		pos, _ := Store.IndexOf(task.ID)
		fmt.Fprintf(cmd.OutOrStdout(), "Added task %d: %s\n", pos+1, task.Text)
		return nil
	},
}

func init() {
	voiceCmd.Flags().StringVar(&voiceDueFlag, "due", "", "Due date (YYYY-MM-DD)")
	voiceCmd.Flags().StringVarP(&voicePriorityFlag, "priority", "p", "", "Priority: high, medium or low")
	rootCmd.AddCommand(voiceCmd)
}
