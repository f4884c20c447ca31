package core

import (
	"fmt"
	"math"
	"time"

	"github.com/valter-silva-au/todo/pkg/models"
)

// DeadlineStatus labels the task's due date relative to now: "Due in N
// days", "Due tomorrow", "Due today" or "Overdue". It returns "" when the task
// has no due date. Days are counted from midnight of the due date and rounded
// up.
func DeadlineStatus(task models.Task, now time.Time) string {
	due, ok := task.Due()
	if !ok {
		return ""
	}
	days := int(math.Ceil(due.Sub(now).Hours() / 24))
	switch {
	case days > 1:
		return fmt.Sprintf("Due in %d days", days)
	case days == 1:
		return "Due tomorrow"
	case days == 0:
		return "Due today"
	default:
		return "Overdue"
	}
}

// Progress summarises completion across a task list.
type Progress struct {
	Completed int
	Total     int
	Percent   int
	Message   string
}

// ComputeProgress counts completed tasks and picks the encouragement message
// for the rounded percentage.
func ComputeProgress(tasks []models.Task) Progress {
	p := Progress{Total: len(tasks)}
	for _, t := range tasks {
		if t.Done {
			p.Completed++
		}
	}
	if p.Total > 0 {
		p.Percent = int(math.Round(float64(p.Completed) / float64(p.Total) * 100))
	}
	p.Message = progressMessage(p.Percent)
	return p
}

func progressMessage(pct int) string {
	switch {
	case pct == 0:
		return "Let's get started!"
	case pct < 25:
		return "Great start! Keep going!"
	case pct < 50:
		return "You're making progress!"
	case pct < 75:
		return "More than halfway there!"
	case pct < 100:
		return "Almost there! You're crushing it!"
	default:
		return "All done! Amazing work!"
	}
}
