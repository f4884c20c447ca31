package core

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/valter-silva-au/todo/pkg/models"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// memPersister records every snapshot it is asked to save.
type memPersister struct {
	mu      sync.Mutex
	loaded  []models.Task
	saves   [][]models.Task
	saveErr error
	loadErr error
}

func (p *memPersister) Load(_ context.Context) ([]models.Task, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.loadErr != nil {
		return nil, p.loadErr
	}
	return cloneTasks(p.loaded), nil
}

func (p *memPersister) SaveAll(_ context.Context, tasks []models.Task) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.saves = append(p.saves, cloneTasks(tasks))
	return p.saveErr
}

func (p *memPersister) last() []models.Task {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.saves) == 0 {
		return nil
	}
	return p.saves[len(p.saves)-1]
}

func (p *memPersister) saveCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.saves)
}

// recordingEvents captures logged event types.
type recordingEvents struct {
	mu    sync.Mutex
	types []string
}

func (r *recordingEvents) LogEvent(eventType string, _ map[string]any) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.types = append(r.types, eventType)
	return nil
}

func (r *recordingEvents) has(eventType string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, t := range r.types {
		if t == eventType {
			return true
		}
	}
	return false
}

// toggleAuth can sign in and out during a test.
type toggleAuth struct {
	mu   sync.Mutex
	user string
}

func (a *toggleAuth) CurrentUser() (string, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.user, a.user != ""
}

func (a *toggleAuth) set(user string) {
	a.mu.Lock()
	a.user = user
	a.mu.Unlock()
}

var fixedNow = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

func newTestStore(t *testing.T, p *memPersister) TaskStore {
	t.Helper()
	s := NewTaskStore(StoreOptions{
		Persister: p,
		Now:       func() time.Time { return fixedNow },
	})
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func texts(tasks []models.Task) []string {
	out := make([]string, len(tasks))
	for i, t := range tasks {
		out[i] = t.Text
	}
	return out
}

func mustCreate(t *testing.T, s TaskStore, text string, p models.Priority) *models.Task {
	t.Helper()
	task, err := s.Create(CreateInput{Text: text, Priority: p})
	if err != nil {
		t.Fatalf("creating %q: %v", text, err)
	}
	return task
}

func TestCreate_AppendsAndPersists(t *testing.T) {
	p := &memPersister{}
	s := newTestStore(t, p)

	due := " 2026-03-05 "
	task, err := s.Create(CreateInput{Text: "  Buy milk  ", DueDate: &due, Priority: "HIGH"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if task.ID == "" {
		t.Error("expected generated ID")
	}
	if task.Text != "Buy milk" {
		t.Errorf("Text = %q, want trimmed", task.Text)
	}
	if task.Priority != models.PriorityHigh {
		t.Errorf("Priority = %q, want high", task.Priority)
	}
	if task.DueDate == nil || *task.DueDate != "2026-03-05" {
		t.Errorf("DueDate = %v, want 2026-03-05", task.DueDate)
	}
	if task.Done {
		t.Error("new task must not be done")
	}
	if !task.CreatedAt.Equal(fixedNow) {
		t.Errorf("CreatedAt = %v, want %v", task.CreatedAt, fixedNow)
	}

	if err := s.Flush(context.Background()); err != nil {
		t.Fatalf("flush: %v", err)
	}
	if diff := cmp.Diff(s.Tasks(), p.last(), cmpopts.EquateEmpty()); diff != "" {
		t.Errorf("persisted snapshot mismatch (-memory +saved):\n%s", diff)
	}
}

func TestCreate_DefaultsToMediumPriority(t *testing.T) {
	s := newTestStore(t, &memPersister{})
	task := mustCreate(t, s, "Water plants", "")
	if task.Priority != models.PriorityMedium {
		t.Errorf("Priority = %q, want medium", task.Priority)
	}
}

func TestCreate_RejectsEmptyText(t *testing.T) {
	p := &memPersister{}
	s := newTestStore(t, p)

	for _, text := range []string{"", "   ", "\t\n"} {
		if _, err := s.Create(CreateInput{Text: text}); !errors.Is(err, ErrEmptyText) {
			t.Errorf("Create(%q) error = %v, want ErrEmptyText", text, err)
		}
	}
	_ = s.Flush(context.Background())
	if p.saveCount() != 0 {
		t.Errorf("rejected creates must not save, got %d saves", p.saveCount())
	}
}

func TestCreate_RejectsDuplicateTextCaseInsensitive(t *testing.T) {
	s := newTestStore(t, &memPersister{})
	mustCreate(t, s, "Buy Milk", models.PriorityLow)

	_, err := s.Create(CreateInput{Text: "  buy milk "})
	if !errors.Is(err, ErrDuplicateText) {
		t.Fatalf("error = %v, want ErrDuplicateText", err)
	}
	if len(s.Tasks()) != 1 {
		t.Errorf("expected 1 task, got %d", len(s.Tasks()))
	}
}

func TestUpdate_ReplacesFields(t *testing.T) {
	s := newTestStore(t, &memPersister{})
	a := mustCreate(t, s, "A", models.PriorityLow)
	mustCreate(t, s, "B", models.PriorityLow)

	empty := ""
	got, err := s.Update(a.ID, UpdateInput{Text: "A2", DueDate: &empty, Priority: models.PriorityHigh})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Text != "A2" || got.Priority != models.PriorityHigh || got.DueDate != nil {
		t.Errorf("unexpected task after update: %+v", got)
	}
	if i, _ := s.IndexOf(a.ID); i != 0 {
		t.Errorf("update must keep position, got %d", i)
	}
}

func TestUpdate_SameTextIsNotDuplicate(t *testing.T) {
	s := newTestStore(t, &memPersister{})
	a := mustCreate(t, s, "Read book", models.PriorityLow)

	if _, err := s.Update(a.ID, UpdateInput{Text: "READ BOOK", Priority: models.PriorityHigh}); err != nil {
		t.Fatalf("renaming a task to its own text must succeed: %v", err)
	}
}

func TestUpdate_Errors(t *testing.T) {
	s := newTestStore(t, &memPersister{})
	a := mustCreate(t, s, "A", models.PriorityLow)
	mustCreate(t, s, "B", models.PriorityLow)

	if _, err := s.Update("missing", UpdateInput{Text: "x"}); !errors.Is(err, ErrNotFound) {
		t.Errorf("error = %v, want ErrNotFound", err)
	}
	if _, err := s.Update(a.ID, UpdateInput{Text: " "}); !errors.Is(err, ErrEmptyText) {
		t.Errorf("error = %v, want ErrEmptyText", err)
	}
	if _, err := s.Update(a.ID, UpdateInput{Text: "b"}); !errors.Is(err, ErrDuplicateText) {
		t.Errorf("error = %v, want ErrDuplicateText", err)
	}
}

func TestToggleDone_FlipsAndLogs(t *testing.T) {
	events := &recordingEvents{}
	s := NewTaskStore(StoreOptions{Persister: &memPersister{}, Events: events})
	t.Cleanup(func() { _ = s.Close() })
	a := mustCreate(t, s, "A", models.PriorityLow)

	got, err := s.ToggleDone(a.ID)
	if err != nil || !got.Done {
		t.Fatalf("first toggle: done=%v err=%v", got != nil && got.Done, err)
	}
	got, err = s.ToggleDone(a.ID)
	if err != nil || got.Done {
		t.Fatalf("second toggle: done=%v err=%v", got != nil && got.Done, err)
	}
	if !events.has("task.completed") || !events.has("task.reopened") {
		t.Errorf("expected completed and reopened events, got %v", events.types)
	}
	if _, err := s.ToggleDone("missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("error = %v, want ErrNotFound", err)
	}
}

func TestDelete_RemovesTask(t *testing.T) {
	s := newTestStore(t, &memPersister{})
	a := mustCreate(t, s, "A", models.PriorityLow)
	b := mustCreate(t, s, "B", models.PriorityLow)

	if err := s.Delete(a.ID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := s.IndexOf(a.ID); ok {
		t.Error("deleted task still indexed")
	}
	if i, _ := s.IndexOf(b.ID); i != 0 {
		t.Errorf("B should move to position 0, got %d", i)
	}
	if err := s.Delete(a.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("second delete error = %v, want ErrNotFound", err)
	}
}

func TestReorder(t *testing.T) {
	tests := []struct {
		name     string
		from, to int
		want     []string
	}{
		{"forward", 0, 2, []string{"B", "C", "A", "D"}},
		{"backward", 3, 1, []string{"A", "D", "B", "C"}},
		{"same index", 1, 1, []string{"A", "B", "C", "D"}},
		{"from out of range", 4, 0, []string{"A", "B", "C", "D"}},
		{"negative", -1, 0, []string{"A", "B", "C", "D"}},
		{"to out of range", 0, 9, []string{"A", "B", "C", "D"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestStore(t, &memPersister{})
			for _, text := range []string{"A", "B", "C", "D"} {
				mustCreate(t, s, text, models.PriorityMedium)
			}
			s.Reorder(tt.from, tt.to)
			if diff := cmp.Diff(tt.want, texts(s.Tasks())); diff != "" {
				t.Errorf("order mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestTasks_ReturnsCopies(t *testing.T) {
	s := newTestStore(t, &memPersister{})
	mustCreate(t, s, "A", models.PriorityLow)

	tasks := s.Tasks()
	tasks[0].Text = "mutated"
	if s.Tasks()[0].Text != "A" {
		t.Error("caller mutation leaked into store")
	}
}

func TestLoad_SanitizesStoredTasks(t *testing.T) {
	p := &memPersister{loaded: []models.Task{
		{ID: "a", Text: "A", Priority: "HIGH"},
		{Text: "legacy", Priority: "urgent"},
		{ID: "c", Text: "C", Attachments: []models.StoredAttachment{
			{Name: "ok.txt", Type: "text/plain", Size: 2, Data: []int{104, 105}},
			{Name: "bad.bin", Type: "application/octet-stream", Size: 1, Data: []int{300}},
		}},
	}}
	s := newTestStore(t, p)

	if err := s.Load(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	tasks := s.Tasks()
	if len(tasks) != 3 {
		t.Fatalf("expected 3 tasks, got %d", len(tasks))
	}
	if tasks[0].Priority != models.PriorityHigh {
		t.Errorf("priority not normalized: %q", tasks[0].Priority)
	}
	if tasks[1].ID == "" || tasks[1].Priority != models.PriorityMedium {
		t.Errorf("legacy task not filled in: %+v", tasks[1])
	}
	if len(tasks[2].Attachments) != 1 || tasks[2].Attachments[0].Name != "ok.txt" {
		t.Errorf("malformed attachment not dropped: %+v", tasks[2].Attachments)
	}

	// The generated ID is written back so it survives the next load.
	if err := s.Flush(context.Background()); err != nil {
		t.Fatalf("flush: %v", err)
	}
	saved := p.last()
	if len(saved) != 3 || saved[1].ID != tasks[1].ID {
		t.Errorf("generated ID not persisted: %+v", saved)
	}
}

func TestLoad_WithoutMissingIDsDoesNotSave(t *testing.T) {
	p := &memPersister{loaded: []models.Task{{ID: "a", Text: "A", Priority: models.PriorityLow}}}
	s := newTestStore(t, p)
	if err := s.Load(context.Background()); err != nil {
		t.Fatal(err)
	}
	_ = s.Flush(context.Background())
	if p.saveCount() != 0 {
		t.Errorf("expected no save after clean load, got %d", p.saveCount())
	}
}

func TestLoad_PropagatesError(t *testing.T) {
	s := newTestStore(t, &memPersister{loadErr: errors.New("disk on fire")})
	if err := s.Load(context.Background()); err == nil {
		t.Fatal("expected load error")
	}
}

func TestSaveFailure_KeepsMemoryState(t *testing.T) {
	p := &memPersister{saveErr: errors.New("quota exceeded")}
	events := &recordingEvents{}
	s := NewTaskStore(StoreOptions{Persister: p, Events: events})
	t.Cleanup(func() { _ = s.Close() })

	mustCreate(t, s, "A", models.PriorityLow)
	if err := s.Flush(context.Background()); err == nil {
		t.Fatal("expected flush to report the save error")
	}
	if s.LastSaveError() == nil {
		t.Error("LastSaveError should be set")
	}
	if len(s.Tasks()) != 1 {
		t.Error("in-memory state must survive a failed save")
	}
	if !events.has("store.save_failed") {
		t.Error("expected store.save_failed event")
	}
}

func TestRequiresSignedInUser(t *testing.T) {
	auth := &toggleAuth{}
	s := NewTaskStore(StoreOptions{Persister: &memPersister{}, Auth: auth})
	t.Cleanup(func() { _ = s.Close() })

	if _, err := s.Create(CreateInput{Text: "A"}); !errors.Is(err, ErrUnauthenticated) {
		t.Errorf("Create error = %v, want ErrUnauthenticated", err)
	}
	if err := s.Load(context.Background()); !errors.Is(err, ErrUnauthenticated) {
		t.Errorf("Load error = %v, want ErrUnauthenticated", err)
	}

	auth.set("alice")
	a := mustCreate(t, s, "A", models.PriorityLow)
	mustCreate(t, s, "B", models.PriorityLow)

	auth.set("")
	if _, err := s.ToggleDone(a.ID); !errors.Is(err, ErrUnauthenticated) {
		t.Errorf("ToggleDone error = %v, want ErrUnauthenticated", err)
	}
	if err := s.Delete(a.ID); !errors.Is(err, ErrUnauthenticated) {
		t.Errorf("Delete error = %v, want ErrUnauthenticated", err)
	}
	s.Reorder(0, 1)
	if diff := cmp.Diff([]string{"A", "B"}, texts(s.Tasks())); diff != "" {
		t.Errorf("Reorder must be a no-op when signed out (-want +got):\n%s", diff)
	}
}

// fakeSubscriber hands the store's callback back to the test.
type fakeSubscriber struct {
	mu       sync.Mutex
	userID   string
	callback func([]models.Task)
	stopped  bool
}

func (f *fakeSubscriber) Subscribe(_ context.Context, userID string, cb func([]models.Task)) (func(), error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.userID = userID
	f.callback = cb
	return func() {
		f.mu.Lock()
		f.stopped = true
		f.mu.Unlock()
	}, nil
}

func TestSync_ReplacesSnapshotWithoutSaving(t *testing.T) {
	p := &memPersister{}
	s := NewTaskStore(StoreOptions{Persister: p, Auth: NewStaticAuth("alice")})
	t.Cleanup(func() { _ = s.Close() })
	sub := &fakeSubscriber{}

	unsubscribe, err := s.Sync(context.Background(), sub)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sub.userID != "alice" {
		t.Errorf("subscribed as %q, want alice", sub.userID)
	}

	sub.callback([]models.Task{{ID: "x", Text: "From elsewhere", Priority: models.PriorityHigh}})
	if diff := cmp.Diff([]string{"From elsewhere"}, texts(s.Tasks())); diff != "" {
		t.Errorf("snapshot not applied (-want +got):\n%s", diff)
	}
	_ = s.Flush(context.Background())
	if p.saveCount() != 0 {
		t.Errorf("remote snapshots must not be saved back, got %d saves", p.saveCount())
	}

	unsubscribe()
	if !sub.stopped {
		t.Error("unsubscribe not forwarded")
	}
}

func TestSync_RequiresUser(t *testing.T) {
	s := NewTaskStore(StoreOptions{Persister: &memPersister{}, Auth: &toggleAuth{}})
	t.Cleanup(func() { _ = s.Close() })
	if _, err := s.Sync(context.Background(), &fakeSubscriber{}); !errors.Is(err, ErrUnauthenticated) {
		t.Errorf("error = %v, want ErrUnauthenticated", err)
	}
}

func TestFlush_CoalescesBurst(t *testing.T) {
	p := &memPersister{}
	s := newTestStore(t, p)
	for i := 0; i < 50; i++ {
		mustCreate(t, s, fmt.Sprintf("task %d", i), models.PriorityLow)
	}
	if err := s.Flush(context.Background()); err != nil {
		t.Fatalf("flush: %v", err)
	}
	if n := p.saveCount(); n < 1 || n > 50 {
		t.Errorf("unexpected save count %d", n)
	}
	if len(p.last()) != 50 {
		t.Errorf("last snapshot has %d tasks, want 50", len(p.last()))
	}
}

func TestClose_WritesPendingSnapshot(t *testing.T) {
	p := &memPersister{}
	s := NewTaskStore(StoreOptions{Persister: p})
	mustCreate(t, s, "A", models.PriorityLow)
	if err := s.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if len(p.last()) != 1 {
		t.Errorf("pending snapshot not written on close")
	}
	if err := s.Close(); err != nil {
		t.Errorf("second close: %v", err)
	}
}
