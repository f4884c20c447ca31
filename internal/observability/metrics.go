package observability

import (
	"fmt"
	"time"
)

// Metrics holds counts derived from the event log.
type Metrics struct {
	TasksCreated       int            `json:"tasks_created"`
	TasksUpdated       int            `json:"tasks_updated"`
	TasksCompleted     int            `json:"tasks_completed"`
	TasksReopened      int            `json:"tasks_reopened"`
	TasksDeleted       int            `json:"tasks_deleted"`
	TasksByPriority    map[string]int `json:"tasks_by_priority"`
	RemindersScheduled int            `json:"reminders_scheduled"`
	RemindersFired     int            `json:"reminders_fired"`
	SaveFailures       int            `json:"save_failures"`
	AttachmentsSkipped int            `json:"attachments_skipped"`
	EventCount         int            `json:"event_count"`
	OldestEvent        *time.Time     `json:"oldest_event,omitempty"`
	NewestEvent        *time.Time     `json:"newest_event,omitempty"`
}

// MetricsCalculator derives metrics from the event log.
type MetricsCalculator interface {
	Calculate(since time.Time) (*Metrics, error)
}

// metricsCalculator implements MetricsCalculator by reading from an EventLog.
type metricsCalculator struct {
	eventLog EventLog
}

// NewMetricsCalculator creates a new MetricsCalculator that reads from the given EventLog.
func NewMetricsCalculator(eventLog EventLog) MetricsCalculator {
	return &metricsCalculator{eventLog: eventLog}
}

// Calculate reads all events since the given time and aggregates them into metrics.
func (mc *metricsCalculator) Calculate(since time.Time) (*Metrics, error) {
	events, err := mc.eventLog.Read(EventFilter{Since: &since})
	if err != nil {
		return nil, fmt.Errorf("reading events for metrics: %w", err)
	}

	m := &Metrics{
		TasksByPriority: make(map[string]int),
	}

	m.EventCount = len(events)

	for i, event := range events {
		if i == 0 {
			t := event.Time
			m.OldestEvent = &t
		}
		t := event.Time
		m.NewestEvent = &t

		switch event.Type {
		case "task.created":
			m.TasksCreated++
			if p, ok := event.Data["priority"].(string); ok {
				m.TasksByPriority[p]++
			}
		case "task.updated":
			m.TasksUpdated++
		case "task.completed":
			m.TasksCompleted++
		case "task.reopened":
			m.TasksReopened++
		case "task.deleted":
			m.TasksDeleted++
		case "reminder.scheduled":
			m.RemindersScheduled++
		case "reminder.fired":
			m.RemindersFired++
		case "store.save_failed":
			m.SaveFailures++
		case "codec.skipped":
			// JSON numbers decode as float64.
			if n, ok := event.Data["skipped"].(float64); ok {
				m.AttachmentsSkipped += int(n)
			}
		}
	}

	return m, nil
}
