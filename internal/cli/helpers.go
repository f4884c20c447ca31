package cli

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
	"github.com/valter-silva-au/todo/internal/core"
	"github.com/valter-silva-au/todo/pkg/models"
)

var errStoreNotInitialized = errors.New("task store not initialized")

var (
	priorityHighStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true)
	priorityMediumStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("226"))
	priorityLowStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("69"))
	doneStyle           = lipgloss.NewStyle().Foreground(lipgloss.Color("240")).Strikethrough(true)
	overdueStyle        = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	sectionStyle        = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("62"))
)

// commandContext returns the command's context, or Background when the
// command runs outside Execute.
func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

// flush waits for the mutation just made to reach storage.
func flush(cmd *cobra.Command) error {
	if err := Store.Flush(commandContext(cmd)); err != nil {
		return fmt.Errorf("saving tasks: %w", err)
	}
	return nil
}

// resolveTask finds a task by exact ID, then by 1-based position in the
// canonical list, then by unique ID prefix.
func resolveTask(ref string) (*models.Task, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return nil, fmt.Errorf("task reference is empty")
	}
	if t, err := Store.Get(ref); err == nil {
		return t, nil
	}
	tasks := Store.Tasks()
	if n, err := strconv.Atoi(ref); err == nil {
		if n < 1 || n > len(tasks) {
			return nil, fmt.Errorf("position %d out of range (1-%d): %w", n, len(tasks), core.ErrNotFound)
		}
		t := tasks[n-1]
		return &t, nil
	}
	var match *models.Task
	for i := range tasks {
		if strings.HasPrefix(tasks[i].ID, ref) {
			if match != nil {
				return nil, fmt.Errorf("task reference %q is ambiguous", ref)
			}
			match = &tasks[i]
		}
	}
	if match == nil {
		return nil, fmt.Errorf("task %q: %w", ref, core.ErrNotFound)
	}
	return match, nil
}

// parseDue validates a YYYY-MM-DD due date. An empty string means no date.
func parseDue(s string) (*string, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	if _, err := time.Parse(models.DateLayout, s); err != nil {
		return nil, fmt.Errorf("invalid due date %q: use YYYY-MM-DD", s)
	}
	return &s, nil
}

func parsePriority(s string) (models.Priority, error) {
	if s == "" {
		return "", nil
	}
	p := models.Priority(strings.ToLower(strings.TrimSpace(s)))
	if !p.Valid() {
		return "", fmt.Errorf("invalid priority %q: must be one of high, medium, low", s)
	}
	return p, nil
}

// readAttachment loads a file and guesses its MIME type from the extension,
// falling back to content sniffing.
func readAttachment(path string) (name, mimeType string, data []byte, err error) {
	data, err = os.ReadFile(path)
	if err != nil {
		return "", "", nil, fmt.Errorf("reading attachment: %w", err)
	}
	name = filepath.Base(path)
	mimeType = mime.TypeByExtension(filepath.Ext(name))
	if mimeType == "" {
		mimeType = http.DetectContentType(data)
	}
	return name, mimeType, data, nil
}

func styleForPriority(p models.Priority) lipgloss.Style {
	switch p {
	case models.PriorityHigh:
		return priorityHighStyle
	case models.PriorityLow:
		return priorityLowStyle
	default:
		return priorityMediumStyle
	}
}

// formatTaskLine renders one task row: position, checkbox, text, priority,
// deadline and attachment count.
func formatTaskLine(t models.Task, position int, now time.Time) string {
	box := "[ ]"
	text := t.Text
	if t.Done {
		box = "[x]"
		text = doneStyle.Render(text)
	}
	line := fmt.Sprintf("%3d. %s %s %s", position+1, box, text,
		styleForPriority(t.Priority).Render("("+string(t.Priority)+")"))
	if status := core.DeadlineStatus(t, now); status != "" && !t.Done {
		if status == "Overdue" {
			status = overdueStyle.Render(status)
		}
		line += "  " + status
	}
	if n := len(t.Attachments); n > 0 {
		line += fmt.Sprintf("  [%d file(s)]", n)
	}
	return line
}
