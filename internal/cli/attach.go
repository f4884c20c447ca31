package cli

import (
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"
)

var attachCmd = &cobra.Command{
	Use:   "attach <task> <file>...",
	Short: "Attach files to a task",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		if Store == nil {
			return errStoreNotInitialized
		}
		task, err := resolveTask(args[0])
		if err != nil {
			return err
		}
		sess, err := Store.BeginEdit(task.ID)
		if err != nil {
			return err
		}
		defer sess.Cancel()

		for _, path := range args[1:] {
			name, mimeType, data, err := readAttachment(path)
			if err != nil {
				return err
			}
			if _, err := sess.AddFile(name, mimeType, data); err != nil {
				return err
			}
		}
		updated, err := sess.Save()
		if err != nil {
			return fmt.Errorf("attaching files: %w", err)
		}
		if err := flush(cmd); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s now has %d attachment(s)\n", updated.Text, len(updated.Attachments))
		return nil
	},
}

var detachCmd = &cobra.Command{
	Use:   "detach <task> <n>",
	Short: "Remove the n-th attachment from a task",
	Long:  `Remove an attachment. <n> is its 1-based number as listed by "todo show".`,
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		if Store == nil {
			return errStoreNotInitialized
		}
		task, err := resolveTask(args[0])
		if err != nil {
			return err
		}
		n, err := strconv.Atoi(args[1])
		if err != nil || n < 1 || n > len(task.Attachments) {
			return fmt.Errorf("invalid attachment number %q: task has %d attachment(s)", args[1], len(task.Attachments))
		}
		sess, err := Store.BeginEdit(task.ID)
		if err != nil {
			return err
		}
		defer sess.Cancel()

		name := task.Attachments[n-1].Name
		if err := sess.Remove(n - 1); err != nil {
			return err
		}
		if _, err := sess.Save(); err != nil {
			return fmt.Errorf("removing attachment: %w", err)
		}
		if err := flush(cmd); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Removed %s from %s\n", name, task.Text)
		return nil
	},
}

var exportOutFlag string

var exportCmd = &cobra.Command{
	Use:   "export <task> <n>",
	Short: "Write the n-th attachment of a task to a file",
	Long: `Decode an attachment and write it to --out, or to its original file name in
the current directory.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		if Store == nil {
			return errStoreNotInitialized
		}
		task, err := resolveTask(args[0])
		if err != nil {
			return err
		}
		n, err := strconv.Atoi(args[1])
		if err != nil || n < 1 || n > len(task.Attachments) {
			return fmt.Errorf("invalid attachment number %q: task has %d attachment(s)", args[1], len(task.Attachments))
		}
		codec := Store.Codec()
		a, err := codec.FromStorable(task.Attachments[n-1])
		if err != nil {
			return err
		}
		codec.ReleasePreview(&a)

		out := exportOutFlag
		if out == "" {
			out = a.Name
		}
		if err := os.WriteFile(out, a.Data, 0o600); err != nil {
			return fmt.Errorf("writing attachment: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s (%d bytes)\n", out, len(a.Data))
		return nil
	},
}

func init() {
	exportCmd.Flags().StringVarP(&exportOutFlag, "out", "o", "", "Output file path")
	rootCmd.AddCommand(attachCmd, detachCmd, exportCmd)
}
