package cli

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/valter-silva-au/todo/internal/core"
	"github.com/valter-silva-au/todo/pkg/models"
)

var (
	addDueFlag      string
	addPriorityFlag string
	addAttachFlag   []string
)

var addCmd = &cobra.Command{
	Use:   "add <text>",
	Short: "Add a task",
	Long: `Add a task to the end of the list.

The text must not be empty and must not match an existing task, ignoring case
and surrounding whitespace. Files given with --attach are stored with the task.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if Store == nil {
			return errStoreNotInitialized
		}
		task, err := createTask(cmd, strings.Join(args, " "), addDueFlag, addPriorityFlag, addAttachFlag)
		if err != nil {
			return err
		}
		pos, _ := Store.IndexOf(task.ID)
		fmt.Fprintf(cmd.OutOrStdout(), "Added task %d: %s\n", pos+1, task.Text)
		return nil
	},
}

// createTask runs a create session for text and waits for it to be saved.
func createTask(cmd *cobra.Command, text, due, priority string, files []string) (*models.Task, error) {
	dueDate, err := parseDue(due)
	if err != nil {
		return nil, err
	}
	p, err := parsePriority(priority)
	if err != nil {
		return nil, err
	}

	sess, err := Store.BeginCreate()
	if err != nil {
		return nil, fmt.Errorf("adding task: %w", err)
	}
	defer sess.Cancel()
	sess.Text = text
	sess.DueDate = dueDate
	if p != "" {
		sess.Priority = p
	}
	for _, path := range files {
		name, mimeType, data, err := readAttachment(path)
		if err != nil {
			return nil, err
		}
		if _, err := sess.AddFile(name, mimeType, data); err != nil {
			return nil, err
		}
	}
	task, err := sess.Save()
	if err != nil {
		return nil, fmt.Errorf("adding task: %w", err)
	}
	if err := flush(cmd); err != nil {
		return nil, err
	}
	return task, nil
}

var (
	listSearchFlag   string
	listPriorityFlag string
	listStatusFlag   string
	listJSONFlag     bool
)

var listCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List tasks by priority",
	Long: `List active and completed tasks, each sorted by priority (high first).
Tasks of equal priority keep their manual order. Numbers are positions in the
manual order and can be used to refer to tasks in other commands.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if Store == nil {
			return errStoreNotInitialized
		}
		filter := models.Filter{
			Search:   listSearchFlag,
			Priority: models.Priority(strings.ToLower(listPriorityFlag)),
			Status:   models.StatusFilter(strings.ToLower(listStatusFlag)),
		}
		if filter.Priority != "" && filter.Priority != models.PriorityAll && !filter.Priority.Valid() {
			return fmt.Errorf("invalid --priority %q: must be one of all, high, medium, low", listPriorityFlag)
		}
		if !filter.Status.Valid() {
			return fmt.Errorf("invalid --status %q: must be one of all, active, completed", listStatusFlag)
		}

		canonical := Store.Tasks()
		index := core.NewIndex(canonical)
		view := core.Project(canonical, filter)
		out := cmd.OutOrStdout()

		if listJSONFlag {
			data, err := json.MarshalIndent(map[string]any{
				"active":    view.Active,
				"completed": view.Completed,
				"total":     view.Total,
			}, "", "  ")
			if err != nil {
				return fmt.Errorf("formatting tasks as JSON: %w", err)
			}
			fmt.Fprintln(out, string(data))
			return nil
		}

		if view.Total == 0 {
			fmt.Fprintln(out, "No tasks yet. Add one with: todo add <text>")
			return nil
		}

		now := time.Now()
		fmt.Fprintln(out, sectionStyle.Render(fmt.Sprintf("Active (%d)", len(view.Active))))
		for _, t := range view.Active {
			fmt.Fprintln(out, formatTaskLine(t, index[t.ID], now))
		}
		if len(view.Completed) > 0 {
			fmt.Fprintln(out)
			fmt.Fprintln(out, sectionStyle.Render(fmt.Sprintf("Completed (%d)", len(view.Completed))))
			for _, t := range view.Completed {
				fmt.Fprintln(out, formatTaskLine(t, index[t.ID], now))
			}
		}
		return nil
	},
}

var showCmd = &cobra.Command{
	Use:   "show <task>",
	Short: "Show a task's details and attachments",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if Store == nil {
			return errStoreNotInitialized
		}
		task, err := resolveTask(args[0])
		if err != nil {
			return err
		}
		pos, _ := Store.IndexOf(task.ID)
		out := cmd.OutOrStdout()

		status := "active"
		if task.Done {
			status = "completed"
		}
		fmt.Fprintf(out, "Task %d: %s\n", pos+1, task.Text)
		fmt.Fprintf(out, "  ID:       %s\n", task.ID)
		fmt.Fprintf(out, "  Status:   %s\n", status)
		fmt.Fprintf(out, "  Priority: %s\n", styleForPriority(task.Priority).Render(string(task.Priority)))
		if task.DueDate != nil {
			fmt.Fprintf(out, "  Due:      %s (%s)\n", *task.DueDate, core.DeadlineStatus(*task, time.Now()))
		}
		if !task.CreatedAt.IsZero() {
			fmt.Fprintf(out, "  Created:  %s\n", task.CreatedAt.Local().Format("2006-01-02 15:04"))
		}
		if len(task.Attachments) > 0 {
			fmt.Fprintln(out, "  Attachments:")
			for i, a := range task.Attachments {
				fmt.Fprintf(out, "    %d. %s (%s, %d bytes)\n", i+1, a.Name, a.Type, a.Size)
			}
		}
		return nil
	},
}

var (
	editTextFlag     string
	editDueFlag      string
	editClearDueFlag bool
	editPriorityFlag string
)

var editCmd = &cobra.Command{
	Use:   "edit <task>",
	Short: "Change a task's text, due date or priority",
	Long: `Change a task's text, due date or priority. Fields without a flag keep their
current value. <task> is a position from "todo list", a task ID or an ID prefix.`,
	Args: cobra.ExactArgs(1),
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

		flags := cmd.Flags()
		if flags.Changed("text") {
			sess.Text = editTextFlag
		}
		if flags.Changed("due") {
			due, err := parseDue(editDueFlag)
			if err != nil {
				return err
			}
			sess.DueDate = due
		}
		if editClearDueFlag {
			sess.DueDate = nil
		}
		if flags.Changed("priority") {
			p, err := parsePriority(editPriorityFlag)
			if err != nil {
				return err
			}
			sess.Priority = p
		}

		updated, err := sess.Save()
		if err != nil {
			return fmt.Errorf("editing task: %w", err)
		}
		if err := flush(cmd); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Updated task: %s\n", updated.Text)
		return nil
	},
}

var doneCmd = &cobra.Command{
	Use:     "done <task>",
	Aliases: []string{"toggle"},
	Short:   "Mark a task done, or not done again",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if Store == nil {
			return errStoreNotInitialized
		}
		task, err := resolveTask(args[0])
		if err != nil {
			return err
		}
		toggled, err := Store.ToggleDone(task.ID)
		if err != nil {
			return err
		}
		if err := flush(cmd); err != nil {
			return err
		}
		if toggled.Done {
			fmt.Fprintf(cmd.OutOrStdout(), "Completed: %s\n", toggled.Text)
		} else {
			fmt.Fprintf(cmd.OutOrStdout(), "Reopened: %s\n", toggled.Text)
		}
		return nil
	},
}

var rmCmd = &cobra.Command{
	Use:     "rm <task>",
	Aliases: []string{"delete"},
	Short:   "Delete a task",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if Store == nil {
			return errStoreNotInitialized
		}
		task, err := resolveTask(args[0])
		if err != nil {
			return err
		}
		if err := Store.Delete(task.ID); err != nil {
			return err
		}
		if err := flush(cmd); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Deleted: %s\n", task.Text)
		return nil
	},
}

var moveCmd = &cobra.Command{
	Use:   "move <from> <to>",
	Short: "Move a task to another position in the manual order",
	Long: `Move the task at position <from> to position <to>. Positions are 1-based
and refer to the manual order shown by "todo list".`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		if Store == nil {
			return errStoreNotInitialized
		}
		n := len(Store.Tasks())
		from, err := strconv.Atoi(args[0])
		if err != nil || from < 1 || from > n {
			return fmt.Errorf("invalid <from> %q: must be between 1 and %d", args[0], n)
		}
		to, err := strconv.Atoi(args[1])
		if err != nil || to < 1 || to > n {
			return fmt.Errorf("invalid <to> %q: must be between 1 and %d", args[1], n)
		}
		Store.Reorder(from-1, to-1)
		if err := flush(cmd); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Moved task %d to position %d\n", from, to)
		return nil
	},
}

func init() {
	addCmd.Flags().StringVar(&addDueFlag, "due", "", "Due date (YYYY-MM-DD)")
	addCmd.Flags().StringVarP(&addPriorityFlag, "priority", "p", "", "Priority: high, medium or low (default medium)")
	addCmd.Flags().StringSliceVarP(&addAttachFlag, "attach", "a", nil, "File to attach (repeatable)")

	listCmd.Flags().StringVarP(&listSearchFlag, "search", "s", "", "Only tasks whose text contains this (case-insensitive)")
	listCmd.Flags().StringVarP(&listPriorityFlag, "priority", "p", "", "Only tasks of this priority (all, high, medium, low)")
	listCmd.Flags().StringVar(&listStatusFlag, "status", "", "Only tasks with this status (all, active, completed)")
	listCmd.Flags().BoolVar(&listJSONFlag, "json", false, "Output tasks as JSON")

	editCmd.Flags().StringVar(&editTextFlag, "text", "", "New task text")
	editCmd.Flags().StringVar(&editDueFlag, "due", "", "New due date (YYYY-MM-DD)")
	editCmd.Flags().BoolVar(&editClearDueFlag, "clear-due", false, "Remove the due date")
	editCmd.Flags().StringVarP(&editPriorityFlag, "priority", "p", "", "New priority (high, medium, low)")

	rootCmd.AddCommand(addCmd, listCmd, showCmd, editCmd, doneCmd, rmCmd, moveCmd)
}
