package observability

import (
	"path/filepath"
	"testing"
	"time"
)

func newTestEventLog(t *testing.T) EventLog {
	t.Helper()
	el, err := NewJSONLEventLog(filepath.Join(t.TempDir(), "events.jsonl"))
	if err != nil {
		t.Fatalf("creating event log: %v", err)
	}
	t.Cleanup(func() { _ = el.Close() })
	return el
}

func writeEvents(t *testing.T, el EventLog, events ...Event) {
	t.Helper()
	for _, e := range events {
		if e.Level == "" {
			e.Level = LevelFor(e.Type)
		}
		if err := el.Write(e); err != nil {
			t.Fatalf("writing event: %v", err)
		}
	}
}

func TestMetricsCalculator_Empty(t *testing.T) {
	el := newTestEventLog(t)

	m, err := NewMetricsCalculator(el).Calculate(time.Time{})
	if err != nil {
		t.Fatalf("calculating metrics: %v", err)
	}
	if m.EventCount != 0 {
		t.Errorf("expected 0 events, got %d", m.EventCount)
	}
	if m.OldestEvent != nil || m.NewestEvent != nil {
		t.Error("expected no event bounds for empty log")
	}
}

func TestMetricsCalculator_CountsTaskLifecycle(t *testing.T) {
	el := newTestEventLog(t)
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	writeEvents(t, el,
		Event{Time: base, Type: "task.created", Data: map[string]any{"task_id": "a", "priority": "high"}},
		Event{Time: base.Add(time.Minute), Type: "task.created", Data: map[string]any{"task_id": "b", "priority": "low"}},
		Event{Time: base.Add(2 * time.Minute), Type: "task.created", Data: map[string]any{"task_id": "c", "priority": "high"}},
		Event{Time: base.Add(3 * time.Minute), Type: "task.updated", Data: map[string]any{"task_id": "a"}},
		Event{Time: base.Add(4 * time.Minute), Type: "task.completed", Data: map[string]any{"task_id": "a"}},
		Event{Time: base.Add(5 * time.Minute), Type: "task.reopened", Data: map[string]any{"task_id": "a"}},
		Event{Time: base.Add(6 * time.Minute), Type: "task.deleted", Data: map[string]any{"task_id": "b"}},
		Event{Time: base.Add(7 * time.Minute), Type: "reminder.scheduled", Data: map[string]any{"task_id": "c"}},
		Event{Time: base.Add(8 * time.Minute), Type: "reminder.fired", Data: map[string]any{"task_id": "c"}},
		Event{Time: base.Add(9 * time.Minute), Type: "store.save_failed", Data: map[string]any{"error": "disk full"}},
		Event{Time: base.Add(10 * time.Minute), Type: "codec.skipped", Data: map[string]any{"task_id": "c", "skipped": 2}},
	)

	m, err := NewMetricsCalculator(el).Calculate(base.Add(-time.Hour))
	if err != nil {
		t.Fatalf("calculating metrics: %v", err)
	}

	checks := []struct {
		name      string
		got, want int
	}{
		{"TasksCreated", m.TasksCreated, 3},
		{"TasksUpdated", m.TasksUpdated, 1},
		{"TasksCompleted", m.TasksCompleted, 1},
		{"TasksReopened", m.TasksReopened, 1},
		{"TasksDeleted", m.TasksDeleted, 1},
		{"RemindersScheduled", m.RemindersScheduled, 1},
		{"RemindersFired", m.RemindersFired, 1},
		{"SaveFailures", m.SaveFailures, 1},
		{"AttachmentsSkipped", m.AttachmentsSkipped, 2},
		{"EventCount", m.EventCount, 11},
		{"high", m.TasksByPriority["high"], 2},
		{"low", m.TasksByPriority["low"], 1},
	}
	for _, c := range checks {
		if c.got != c.want {
			t.Errorf("%s = %d, want %d", c.name, c.got, c.want)
		}
	}

	if m.OldestEvent == nil || !m.OldestEvent.Equal(base) {
		t.Errorf("expected oldest event %v, got %v", base, m.OldestEvent)
	}
	if m.NewestEvent == nil || !m.NewestEvent.Equal(base.Add(10*time.Minute)) {
		t.Errorf("expected newest event %v, got %v", base.Add(10*time.Minute), m.NewestEvent)
	}
}

func TestMetricsCalculator_RespectsSince(t *testing.T) {
	el := newTestEventLog(t)
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	writeEvents(t, el,
		Event{Time: base, Type: "task.created"},
		Event{Time: base.Add(2 * time.Hour), Type: "task.created"},
	)

	m, err := NewMetricsCalculator(el).Calculate(base.Add(time.Hour))
	if err != nil {
		t.Fatalf("calculating metrics: %v", err)
	}
	if m.TasksCreated != 1 {
		t.Errorf("expected 1 task created since cutoff, got %d", m.TasksCreated)
	}
}
