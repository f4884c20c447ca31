package core

import (
	"fmt"
	"sync"
	"time"

	"github.com/valter-silva-au/todo/pkg/models"
	"go.uber.org/zap"
)

// Notifier delivers a one-shot alert to the user. Permission negotiation, if
// any, is the implementation's concern.
type Notifier interface {
	Notify(title, body string) error
}

// ReminderScheduler schedules one-shot task reminders.
type ReminderScheduler interface {
	Schedule(task models.Task, at time.Time) (cancel func(), err error)
	Pending() int
	Stop()
}

type reminderScheduler struct {
	notifier Notifier
	events   EventLogger
	logger   *zap.Logger
	now      func() time.Time

	mu     sync.Mutex
	nextID int
	timers map[int]*time.Timer
	wg     sync.WaitGroup
}

// NewReminderScheduler creates a scheduler that fires through notifier.
// events and logger may be nil.
func NewReminderScheduler(notifier Notifier, events EventLogger, logger *zap.Logger) ReminderScheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &reminderScheduler{
		notifier: notifier,
		events:   events,
		logger:   logger,
		now:      time.Now,
		timers:   make(map[int]*time.Timer),
	}
}

// Schedule arms a timer that notifies "Don't forget: <text>" at at. Times that
// are not in the future are rejected.
func (r *reminderScheduler) Schedule(task models.Task, at time.Time) (func(), error) {
	delay := at.Sub(r.now())
	if delay <= 0 {
		return nil, fmt.Errorf("scheduling reminder for %q: %w", task.Text, ErrReminderInPast)
	}

	r.mu.Lock()
	id := r.nextID
	r.nextID++
	r.wg.Add(1)
	r.timers[id] = time.AfterFunc(delay, func() {
		defer r.wg.Done()
		if !r.take(id) {
			return
		}
		r.fire(task)
	})
	r.mu.Unlock()

	if r.events != nil {
		_ = r.events.LogEvent("reminder.scheduled", map[string]any{
			"task_id": task.ID,
			"at":      at.UTC().Format(time.RFC3339),
		})
	}

	return func() { r.cancel(id) }, nil
}

func (r *reminderScheduler) Pending() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.timers)
}

// Stop cancels every pending reminder and waits for running ones to finish.
func (r *reminderScheduler) Stop() {
	r.mu.Lock()
	ids := make([]int, 0, len(r.timers))
	for id := range r.timers {
		ids = append(ids, id)
	}
	r.mu.Unlock()
	for _, id := range ids {
		r.cancel(id)
	}
	r.wg.Wait()
}

func (r *reminderScheduler) cancel(id int) {
	r.mu.Lock()
	t, ok := r.timers[id]
	delete(r.timers, id)
	r.mu.Unlock()
	if ok && t.Stop() {
		r.wg.Done()
	}
}

// take claims a fired timer; false means it was cancelled concurrently.
func (r *reminderScheduler) take(id int) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.timers[id]; !ok {
		return false
	}
	delete(r.timers, id)
	return true
}

func (r *reminderScheduler) fire(task models.Task) {
	body := "Don't forget: " + task.Text
	if err := r.notifier.Notify("Task Reminder", body); err != nil {
		r.logger.Warn("reminder delivery failed", zap.String("task_id", task.ID), zap.Error(err))
		return
	}
	if r.events != nil {
		_ = r.events.LogEvent("reminder.fired", map[string]any{"task_id": task.ID})
	}
}
