package core

import (
	"sort"
	"strings"

	"github.com/valter-silva-au/todo/pkg/models"
)

// View is what a UI renders for one filter state: the not-done and done
// partitions of the filtered tasks, each sorted by priority.
type View struct {
	Active    []models.Task
	Completed []models.Task
	Total     int
}

// Project filters tasks and splits the result by status. It never mutates
// tasks and keeps no state between calls.
func Project(tasks []models.Task, f models.Filter) View {
	filtered := Filter(tasks, f)
	active, completed := SplitByStatus(filtered)
	return View{Active: active, Completed: completed, Total: len(tasks)}
}

// Filter returns the tasks that match the search term (case-insensitive
// substring), the priority filter, and the status filter. Empty filter fields
// match everything.
func Filter(tasks []models.Task, f models.Filter) []models.Task {
	term := strings.ToLower(f.Search)
	out := make([]models.Task, 0, len(tasks))
	for _, t := range tasks {
		if term != "" && !strings.Contains(strings.ToLower(t.Text), term) {
			continue
		}
		if f.Priority != "" && f.Priority != models.PriorityAll && t.Priority != f.Priority {
			continue
		}
		switch f.Status {
		case models.StatusActive:
			if t.Done {
				continue
			}
		case models.StatusCompleted:
			if !t.Done {
				continue
			}
		}
		out = append(out, t)
	}
	return out
}

// SortByPriority returns a copy of tasks ordered high, medium, low. Tasks of
// equal priority keep their input order.
func SortByPriority(tasks []models.Task) []models.Task {
	out := append([]models.Task(nil), tasks...)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Priority.Rank() < out[j].Priority.Rank()
	})
	return out
}

// SplitByStatus partitions tasks into not-done and done, each sorted by
// priority.
func SplitByStatus(tasks []models.Task) (active, completed []models.Task) {
	for _, t := range tasks {
		if t.Done {
			completed = append(completed, t)
		} else {
			active = append(active, t)
		}
	}
	return SortByPriority(active), SortByPriority(completed)
}

// NewIndex maps task IDs to their canonical positions.
func NewIndex(canonical []models.Task) map[string]int {
	idx := make(map[string]int, len(canonical))
	for i, t := range canonical {
		idx[t.ID] = i
	}
	return idx
}

// ResolveCanonicalIndex locates task in canonical by ID, never by field
// equality. It returns -1 when the task is not present. It scans, so callers
// resolving more than one task build a NewIndex once, as TaskStore.IndexOf
// does.
func ResolveCanonicalIndex(task models.Task, canonical []models.Task) int {
	for i, t := range canonical {
		if t.ID == task.ID {
			return i
		}
	}
	return -1
}
