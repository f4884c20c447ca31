package observability

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/valter-silva-au/todo/pkg/models"
)

// AlertSeverity represents the urgency of an alert.
type AlertSeverity string

const (
	SeverityHigh   AlertSeverity = "high"
	SeverityMedium AlertSeverity = "medium"
	SeverityLow    AlertSeverity = "low"
)

// Alert represents a triggered alert condition.
type Alert struct {
	ID          string        `json:"id"`
	TaskID      string        `json:"task_id,omitempty"`
	Condition   string        `json:"condition"`
	Severity    AlertSeverity `json:"severity"`
	Message     string        `json:"message"`
	TriggeredAt time.Time     `json:"triggered_at"`
}

// AlertThresholds configures when alerts should fire.
type AlertThresholds struct {
	// DueSoonDays raises a due-soon alert for open tasks due within this many
	// days. Zero limits it to tasks due today.
	DueSoonDays int `yaml:"due_soon_days" json:"due_soon_days"`
	// SaveFailureWindow is how far back store.save_failed events count.
	SaveFailureWindow time.Duration `yaml:"save_failure_window" json:"save_failure_window"`
}

// DefaultAlertThresholds returns sensible defaults for alert thresholds.
func DefaultAlertThresholds() AlertThresholds {
	return AlertThresholds{
		DueSoonDays:       1,
		SaveFailureWindow: 24 * time.Hour,
	}
}

// AlertEngine evaluates alert conditions against the task list and the event
// log.
type AlertEngine interface {
	Evaluate(tasks []models.Task, now time.Time) ([]Alert, error)
}

type alertEngine struct {
	eventLog   EventLog
	thresholds AlertThresholds
}

// NewAlertEngine creates a new AlertEngine. eventLog may be nil, in which
// case only due-date alerts are produced.
func NewAlertEngine(eventLog EventLog, thresholds AlertThresholds) AlertEngine {
	return &alertEngine{
		eventLog:   eventLog,
		thresholds: thresholds,
	}
}

// Evaluate returns overdue and due-soon alerts for open tasks, ordered most
// urgent first, followed by a save-failure alert if any recent save failed.
func (ae *alertEngine) Evaluate(tasks []models.Task, now time.Time) ([]Alert, error) {
	alerts := ae.checkDueDates(tasks, now)

	saveAlerts, err := ae.checkSaveFailures(now)
	if err != nil {
		return nil, fmt.Errorf("checking save failures: %w", err)
	}
	return append(alerts, saveAlerts...), nil
}

func (ae *alertEngine) checkDueDates(tasks []models.Task, now time.Time) []Alert {
	type dueAlert struct {
		alert Alert
		due   time.Time
	}
	var found []dueAlert

	for _, t := range tasks {
		if t.Done {
			continue
		}
		due, ok := t.Due()
		if !ok {
			continue
		}
		days := int(math.Ceil(due.Sub(now).Hours() / 24))
		switch {
		case days < 0:
			found = append(found, dueAlert{due: due, alert: Alert{
				ID:          fmt.Sprintf("overdue-%s", t.ID),
				TaskID:      t.ID,
				Condition:   "task_overdue",
				Severity:    SeverityHigh,
				Message:     fmt.Sprintf("%q was due on %s", t.Text, *t.DueDate),
				TriggeredAt: now,
			}})
		case days <= ae.thresholds.DueSoonDays:
			sev := SeverityMedium
			if t.Priority == models.PriorityLow {
				sev = SeverityLow
			}
			found = append(found, dueAlert{due: due, alert: Alert{
				ID:          fmt.Sprintf("due-soon-%s", t.ID),
				TaskID:      t.ID,
				Condition:   "task_due_soon",
				Severity:    sev,
				Message:     fmt.Sprintf("%q is due on %s", t.Text, *t.DueDate),
				TriggeredAt: now,
			}})
		}
	}

	sort.SliceStable(found, func(i, j int) bool {
		return found[i].due.Before(found[j].due)
	})
	alerts := make([]Alert, 0, len(found))
	for _, f := range found {
		alerts = append(alerts, f.alert)
	}
	return alerts
}

func (ae *alertEngine) checkSaveFailures(now time.Time) ([]Alert, error) {
	if ae.eventLog == nil || ae.thresholds.SaveFailureWindow <= 0 {
		return nil, nil
	}
	since := now.Add(-ae.thresholds.SaveFailureWindow)
	events, err := ae.eventLog.Read(EventFilter{Since: &since, Type: "store.save_failed"})
	if err != nil {
		return nil, err
	}
	if len(events) == 0 {
		return nil, nil
	}
	return []Alert{{
		ID:          "save-failed",
		Condition:   "save_failed",
		Severity:    SeverityHigh,
		Message:     fmt.Sprintf("%d task save(s) failed since %s", len(events), since.Format("2006-01-02 15:04")),
		TriggeredAt: now,
	}}, nil
}
