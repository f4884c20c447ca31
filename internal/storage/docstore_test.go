package storage

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/valter-silva-au/todo/internal/core"
	"github.com/valter-silva-au/todo/pkg/models"
	"go.uber.org/goleak"
)

type switchableAuth struct {
	user string
}

func (a *switchableAuth) CurrentUser() (string, bool) {
	return a.user, a.user != ""
}

func newTestDocumentStore(t *testing.T, auth core.AuthProvider) TaskPersister {
	t.Helper()
	store, err := NewDocumentStore(filepath.Join(t.TempDir(), "todo.db"), auth, 20*time.Millisecond, nil)
	if err != nil {
		t.Fatalf("opening document store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestDocumentStore_SaveAndLoad(t *testing.T) {
	store := newTestDocumentStore(t, &switchableAuth{user: "alice"})
	want := sampleTasks()

	if err := store.SaveAll(context.Background(), want); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got, err := store.Load(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if diff := cmp.Diff(want, got, cmpopts.EquateEmpty()); diff != "" {
		t.Fatalf("round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestDocumentStore_PreservesOrder(t *testing.T) {
	store := newTestDocumentStore(t, &switchableAuth{user: "alice"})
	tasks := sampleTasks()
	tasks[0], tasks[1] = tasks[1], tasks[0]

	if err := store.SaveAll(context.Background(), tasks); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got, err := store.Load(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got[0].ID != "b" || got[1].ID != "a" {
		t.Fatalf("expected order [b a], got [%s %s]", got[0].ID, got[1].ID)
	}
}

func TestDocumentStore_CollectionsArePerUser(t *testing.T) {
	auth := &switchableAuth{user: "alice"}
	store := newTestDocumentStore(t, auth)

	if err := store.SaveAll(context.Background(), sampleTasks()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	auth.user = "bob"
	got, err := store.Load(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("expected bob's collection empty, got %d tasks", len(got))
	}
}

func TestDocumentStore_RequiresUser(t *testing.T) {
	store := newTestDocumentStore(t, &switchableAuth{})

	if _, err := store.Load(context.Background()); !errors.Is(err, core.ErrUnauthenticated) {
		t.Fatalf("expected ErrUnauthenticated from Load, got %v", err)
	}
	if err := store.SaveAll(context.Background(), nil); !errors.Is(err, core.ErrUnauthenticated) {
		t.Fatalf("expected ErrUnauthenticated from SaveAll, got %v", err)
	}
	if _, err := store.Subscribe(context.Background(), "", func([]models.Task) {}); !errors.Is(err, core.ErrUnauthenticated) {
		t.Fatalf("expected ErrUnauthenticated from Subscribe, got %v", err)
	}
}

func TestDocumentStore_SubscribeDeliversInitialAndForeignSnapshots(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreTopFunction("database/sql.(*DB).connectionOpener"))

	path := filepath.Join(t.TempDir(), "todo.db")
	auth := &switchableAuth{user: "alice"}
	watched, err := NewDocumentStore(path, auth, 20*time.Millisecond, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer watched.Close()
	writer, err := NewDocumentStore(path, auth, 20*time.Millisecond, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer writer.Close()

	got := make(chan []models.Task, 8)
	unsubscribe, err := watched.Subscribe(context.Background(), "alice", func(tasks []models.Task) {
		got <- tasks
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer unsubscribe()

	select {
	case tasks := <-got:
		if len(tasks) != 0 {
			t.Fatalf("expected empty initial snapshot, got %d", len(tasks))
		}
	case <-time.After(time.Second):
		t.Fatal("no initial snapshot")
	}

	if err := writer.SaveAll(context.Background(), sampleTasks()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	select {
	case tasks := <-got:
		if len(tasks) != 2 {
			t.Fatalf("expected 2 tasks, got %d", len(tasks))
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for foreign snapshot")
	}
}

func TestDocumentStore_SubscribeIgnoresOwnWrites(t *testing.T) {
	store := newTestDocumentStore(t, &switchableAuth{user: "alice"})

	got := make(chan []models.Task, 8)
	unsubscribe, err := store.Subscribe(context.Background(), "alice", func(tasks []models.Task) {
		got <- tasks
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer unsubscribe()
	<-got // initial

	if err := store.SaveAll(context.Background(), sampleTasks()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	select {
	case tasks := <-got:
		t.Fatalf("own write was echoed: %d tasks", len(tasks))
	case <-time.After(200 * time.Millisecond):
	}
}

func TestDocumentStore_RapidOwnWritesAreNeverEchoed(t *testing.T) {
	store, err := NewDocumentStore(filepath.Join(t.TempDir(), "todo.db"), &switchableAuth{user: "alice"}, time.Millisecond, nil)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = store.Close() })

	var echoed atomic.Int32
	initial := make(chan struct{})
	var once sync.Once
	unsubscribe, err := store.Subscribe(context.Background(), "alice", func([]models.Task) {
		select {
		case <-initial:
			echoed.Add(1)
		default:
			once.Do(func() { close(initial) })
		}
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer unsubscribe()

	// The poller ticks every millisecond, so it keeps checking the version
	// while saves commit.
	for i := 0; i < 100; i++ {
		tasks := sampleTasks()
		tasks[0].Text = fmt.Sprintf("Buy milk %d", i)
		if err := store.SaveAll(context.Background(), tasks); err != nil {
			t.Fatalf("save %d: %v", i, err)
		}
	}
	time.Sleep(50 * time.Millisecond)
	if n := echoed.Load(); n != 0 {
		t.Errorf("own writes echoed %d times", n)
	}
}

func TestDecodeDocument_SkipsMalformedAttachment(t *testing.T) {
	doc := `{"id":"a","text":"x","priority":"low","attachments":[
		{"name":"bad","type":"text/plain","size":1,"data":"oops"},
		{"name":"good","type":"text/plain","size":1,"data":[1]}
	]}`
	task, skipped, err := decodeDocument([]byte(doc))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if skipped != 1 {
		t.Fatalf("expected 1 skipped, got %d", skipped)
	}
	if len(task.Attachments) != 1 || task.Attachments[0].Name != "good" {
		t.Fatalf("unexpected attachments: %+v", task.Attachments)
	}
}
