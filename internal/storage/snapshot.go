// Package storage provides the persistence adapters behind the task store: a
// local YAML snapshot file and a per-user SQLite document collection.
package storage

import (
	"context"
	"crypto/sha256"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/valter-silva-au/todo/internal/core"
	"github.com/valter-silva-au/todo/pkg/models"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// TaskPersister is a PersistenceAdapter that can also push live snapshots.
type TaskPersister interface {
	core.Persister
	core.Subscriber
	Close() error
}

// SnapshotFile represents the top-level structure of tasks.yaml.
type SnapshotFile struct {
	Version string        `yaml:"version"`
	Tasks   []models.Task `yaml:"tasks"`
}

const snapshotVersion = "1.0"

// snapshotDebounce collapses the burst of events a single save produces.
const snapshotDebounce = 100 * time.Millisecond

// ownWriteHistory is how many recent own writes are recognised when the
// watcher reads the file back.
const ownWriteHistory = 16

type localSnapshotStore struct {
	basePath string
	logger   *zap.Logger

	mu      sync.Mutex
	written [][sha256.Size]byte // oldest first
}

// NewLocalStore creates a TaskPersister backed by a tasks.yaml file in the
// given base directory. logger may be nil.
func NewLocalStore(basePath string, logger *zap.Logger) TaskPersister {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &localSnapshotStore{basePath: basePath, logger: logger}
}

// SnapshotPath returns the location of the snapshot file under basePath.
func SnapshotPath(basePath string) string {
	return filepath.Join(basePath, "tasks.yaml")
}

func (s *localSnapshotStore) filePath() string {
	return SnapshotPath(s.basePath)
}

// Load reads the snapshot. A missing file is an empty task list. Attachment
// payloads are returned as stored; the task store validates them.
func (s *localSnapshotStore) Load(_ context.Context) ([]models.Task, error) {
	data, err := os.ReadFile(s.filePath())
	if err != nil {
		if os.IsNotExist(err) {
			return []models.Task{}, nil
		}
		return nil, fmt.Errorf("loading snapshot: %w", err)
	}
	tasks, skipped, err := decodeSnapshot(data)
	if err != nil {
		return nil, err
	}
	if skipped > 0 {
		s.logger.Warn("skipped undecodable attachments", zap.Int("skipped", skipped))
	}
	return tasks, nil
}

// SaveAll replaces the snapshot file atomically under an exclusive lock.
func (s *localSnapshotStore) SaveAll(_ context.Context, tasks []models.Task) error {
	if err := os.MkdirAll(s.basePath, 0o750); err != nil {
		return fmt.Errorf("saving snapshot: creating directory: %w", err)
	}
	if tasks == nil {
		tasks = []models.Task{}
	}
	data, err := yaml.Marshal(&SnapshotFile{Version: snapshotVersion, Tasks: tasks})
	if err != nil {
		return fmt.Errorf("saving snapshot: marshaling YAML: %w", err)
	}

	unlock, err := lockFile(s.filePath() + ".lock")
	if err != nil {
		return fmt.Errorf("saving snapshot: %w", err)
	}
	defer func() { _ = unlock() }()

	tmp := s.filePath() + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("saving snapshot: writing file: %w", err)
	}

	s.rememberWrite(sha256.Sum256(data))

	if err := os.Rename(tmp, s.filePath()); err != nil {
		return fmt.Errorf("saving snapshot: replacing file: %w", err)
	}
	return nil
}

// Subscribe watches the snapshot file and delivers its contents whenever
// another writer changes it. Writes made through this store are not echoed.
// userID is ignored: a local snapshot belongs to whoever owns the directory.
func (s *localSnapshotStore) Subscribe(ctx context.Context, _ string, onSnapshot func([]models.Task)) (func(), error) {
	if err := os.MkdirAll(s.basePath, 0o750); err != nil {
		return nil, fmt.Errorf("watching snapshot: creating directory: %w", err)
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("watching snapshot: %w", err)
	}
	// Watch the directory: atomic renames replace the file's inode.
	if err := watcher.Add(s.basePath); err != nil {
		_ = watcher.Close()
		return nil, fmt.Errorf("watching snapshot: %w", err)
	}

	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go s.watch(ctx, watcher, onSnapshot, done)

	var once sync.Once
	return func() {
		once.Do(func() {
			cancel()
			<-done
			_ = watcher.Close()
		})
	}, nil
}

func (s *localSnapshotStore) watch(ctx context.Context, w *fsnotify.Watcher, onSnapshot func([]models.Task), done chan struct{}) {
	defer close(done)

	var (
		timer   *time.Timer
		timerCh <-chan time.Time
	)
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-w.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != filepath.Clean(s.filePath()) {
				continue
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(snapshotDebounce)
			} else {
				timer.Reset(snapshotDebounce)
			}
			timerCh = timer.C
		case err, ok := <-w.Errors:
			if !ok {
				return
			}
			s.logger.Warn("snapshot watcher error", zap.Error(err))
		case <-timerCh:
			timerCh = nil
			s.deliver(onSnapshot)
		}
	}
}

func (s *localSnapshotStore) deliver(onSnapshot func([]models.Task)) {
	data, err := s.readLocked()
	if err != nil {
		if !os.IsNotExist(err) {
			s.logger.Warn("reading changed snapshot", zap.Error(err))
		}
		return
	}
	if s.wroteBefore(sha256.Sum256(data)) {
		return
	}
	tasks, _, err := decodeSnapshot(data)
	if err != nil {
		// A half-written foreign edit; the next event retries.
		s.logger.Warn("decoding changed snapshot", zap.Error(err))
		return
	}
	onSnapshot(tasks)
}

// readLocked reads the snapshot under the writers' lock, so it never sees a
// save between its temp write and the rename.
func (s *localSnapshotStore) readLocked() ([]byte, error) {
	unlock, err := lockFile(s.filePath() + ".lock")
	if err != nil {
		return nil, err
	}
	defer func() { _ = unlock() }()
	return os.ReadFile(s.filePath())
}

func (s *localSnapshotStore) rememberWrite(sum [sha256.Size]byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.written = append(s.written, sum)
	if len(s.written) > ownWriteHistory {
		s.written = s.written[len(s.written)-ownWriteHistory:]
	}
}

// wroteBefore reports whether sum matches one of this store's recent writes.
func (s *localSnapshotStore) wroteBefore(sum [sha256.Size]byte) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, w := range s.written {
		if w == sum {
			return true
		}
	}
	return false
}

func (s *localSnapshotStore) Close() error {
	return nil
}

// rawSnapshot mirrors SnapshotFile but defers attachment payload decoding so
// one malformed attachment does not fail the whole file.
type rawSnapshot struct {
	Version string    `yaml:"version"`
	Tasks   []rawTask `yaml:"tasks"`
}

type rawTask struct {
	ID          string          `yaml:"id"`
	Text        string          `yaml:"text"`
	Done        bool            `yaml:"done"`
	DueDate     *string         `yaml:"due_date"`
	Priority    models.Priority `yaml:"priority"`
	Attachments []rawAttachment `yaml:"attachments"`
	CreatedAt   time.Time       `yaml:"created_at"`
}

type rawAttachment struct {
	Name string    `yaml:"name"`
	Type string    `yaml:"type"`
	Size int64     `yaml:"size"`
	Data yaml.Node `yaml:"data"`
}

func decodeSnapshot(data []byte) ([]models.Task, int, error) {
	var rs rawSnapshot
	if err := yaml.Unmarshal(data, &rs); err != nil {
		return nil, 0, fmt.Errorf("loading snapshot: parsing YAML: %w", err)
	}
	skipped := 0
	tasks := make([]models.Task, 0, len(rs.Tasks))
	for _, rt := range rs.Tasks {
		t := models.Task{
			ID:          rt.ID,
			Text:        rt.Text,
			Done:        rt.Done,
			DueDate:     rt.DueDate,
			Priority:    rt.Priority,
			CreatedAt:   rt.CreatedAt,
			Attachments: make([]models.StoredAttachment, 0, len(rt.Attachments)),
		}
		for _, ra := range rt.Attachments {
			var values []int
			if ra.Data.Kind != 0 {
				if err := ra.Data.Decode(&values); err != nil {
					skipped++
					continue
				}
			}
			t.Attachments = append(t.Attachments, models.StoredAttachment{
				Name: ra.Name, Type: ra.Type, Size: ra.Size, Data: values,
			})
		}
		tasks = append(tasks, t)
	}
	return tasks, skipped, nil
}
