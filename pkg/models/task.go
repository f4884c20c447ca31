package models

import (
	"strings"
	"time"
)

// Priority represents the urgency level of a task.
type Priority string

const (
	PriorityHigh   Priority = "high"
	PriorityMedium Priority = "medium"
	PriorityLow    Priority = "low"
)

// Priorities lists every valid priority from most to least urgent.
var Priorities = []Priority{PriorityHigh, PriorityMedium, PriorityLow}

// Valid reports whether p is one of the known priorities.
func (p Priority) Valid() bool {
	switch p {
	case PriorityHigh, PriorityMedium, PriorityLow:
		return true
	}
	return false
}

// Rank returns the sort rank of p: high sorts first. Unknown priorities rank
// as medium.
func (p Priority) Rank() int {
	switch p {
	case PriorityHigh:
		return 0
	case PriorityLow:
		return 2
	default:
		return 1
	}
}

// NormalizePriority lower-cases p and falls back to medium when it is empty or
// unknown.
func NormalizePriority(p Priority) Priority {
	p = Priority(strings.ToLower(strings.TrimSpace(string(p))))
	if !p.Valid() {
		return PriorityMedium
	}
	return p
}

// DateLayout is the calendar date format used for due dates.
const DateLayout = "2006-01-02"

// Task is a single to-do item. Its position in the canonical sequence is its
// manual order; there is no separate rank field.
type Task struct {
	ID          string             `yaml:"id" json:"id"`
	Text        string             `yaml:"text" json:"text"`
	Done        bool               `yaml:"done" json:"done"`
	DueDate     *string            `yaml:"due_date,omitempty" json:"dueDate"`
	Priority    Priority           `yaml:"priority" json:"priority"`
	Attachments []StoredAttachment `yaml:"attachments" json:"attachments"`
	CreatedAt   time.Time          `yaml:"created_at" json:"createdAt"`
}

// Clone returns a deep copy of t so callers cannot alias canonical state.
func (t Task) Clone() Task {
	out := t
	if t.DueDate != nil {
		d := *t.DueDate
		out.DueDate = &d
	}
	if t.Attachments != nil {
		out.Attachments = make([]StoredAttachment, len(t.Attachments))
		for i, a := range t.Attachments {
			out.Attachments[i] = a.Clone()
		}
	}
	return out
}

// Due parses DueDate as local midnight. ok is false when the task has no (or
// an unparseable) due date.
func (t Task) Due() (due time.Time, ok bool) {
	if t.DueDate == nil || *t.DueDate == "" {
		return time.Time{}, false
	}
	d, err := time.ParseInLocation(DateLayout, *t.DueDate, time.Local)
	if err != nil {
		return time.Time{}, false
	}
	return d, true
}
