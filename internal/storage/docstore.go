package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/valter-silva-au/todo/internal/core"
	"github.com/valter-silva-au/todo/pkg/models"
	"go.uber.org/zap"
)

const defaultPollInterval = 2 * time.Second

// documentStore keeps one task collection per user in SQLite. Each task is a
// JSON document; a per-user version row is bumped on every SaveAll so
// subscribers can detect foreign writes by polling.
type documentStore struct {
	db     *sql.DB
	auth   core.AuthProvider
	poll   time.Duration
	logger *zap.Logger

	// writeMu is held from a save's commit through markSeen, and by the
	// poller from its version check through markSeen, so the poller never
	// observes a version this store wrote before it is marked seen.
	writeMu sync.Mutex

	mu   sync.Mutex
	seen map[string]int64 // last version this store wrote or delivered, per user
}

// NewDocumentStore opens (creating if needed) the SQLite database at dbPath.
// Every operation is scoped to the user auth reports; without one they fail
// with core.ErrUnauthenticated. poll <= 0 uses a two second interval.
func NewDocumentStore(dbPath string, auth core.AuthProvider, poll time.Duration, logger *zap.Logger) (TaskPersister, error) {
	if strings.HasPrefix(dbPath, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("opening document store: %w", err)
		}
		dbPath = filepath.Join(home, dbPath[1:])
	}
	if dir := filepath.Dir(dbPath); dir != "" {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("opening document store: creating directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", dbPath+"?_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("opening document store: %w", err)
	}
	// One connection serialises the saver and the poller within this process;
	// the busy timeout covers other processes.
	db.SetMaxOpenConns(1)
	if poll <= 0 {
		poll = defaultPollInterval
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &documentStore{
		db:     db,
		auth:   auth,
		poll:   poll,
		logger: logger,
		seen:   make(map[string]int64),
	}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("opening document store: migrating: %w", err)
	}
	return s, nil
}

func (s *documentStore) migrate() error {
	schema := `
		CREATE TABLE IF NOT EXISTS tasks (
			user_id TEXT NOT NULL,
			id TEXT NOT NULL,
			position INTEGER NOT NULL,
			doc TEXT NOT NULL,
			updated_at DATETIME NOT NULL,
			PRIMARY KEY (user_id, id)
		);

		CREATE TABLE IF NOT EXISTS collection_versions (
			user_id TEXT PRIMARY KEY,
			version INTEGER NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_tasks_user_position ON tasks(user_id, position);
	`
	_, err := s.db.Exec(schema)
	return err
}

func (s *documentStore) currentUser() (string, error) {
	if s.auth == nil {
		return "", core.ErrUnauthenticated
	}
	user, ok := s.auth.CurrentUser()
	if !ok || user == "" {
		return "", core.ErrUnauthenticated
	}
	return user, nil
}

func (s *documentStore) Load(ctx context.Context) ([]models.Task, error) {
	user, err := s.currentUser()
	if err != nil {
		return nil, err
	}
	tasks, version, err := s.readCollection(ctx, user)
	if err != nil {
		return nil, err
	}
	s.markSeen(user, version)
	return tasks, nil
}

// SaveAll replaces the user's whole collection in one transaction.
func (s *documentStore) SaveAll(ctx context.Context, tasks []models.Task) error {
	user, err := s.currentUser()
	if err != nil {
		return err
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("saving tasks: beginning transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM tasks WHERE user_id = ?`, user); err != nil {
		return fmt.Errorf("saving tasks: clearing collection: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO tasks (user_id, id, position, doc, updated_at) VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("saving tasks: preparing insert: %w", err)
	}
	defer stmt.Close()

	now := time.Now().UTC()
	for i, t := range tasks {
		doc, err := json.Marshal(t)
		if err != nil {
			return fmt.Errorf("saving task %s: encoding document: %w", t.ID, err)
		}
		if _, err := stmt.ExecContext(ctx, user, t.ID, i, string(doc), now); err != nil {
			return fmt.Errorf("saving task %s: %w", t.ID, err)
		}
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO collection_versions (user_id, version) VALUES (?, 1)
		ON CONFLICT(user_id) DO UPDATE SET version = version + 1`, user); err != nil {
		return fmt.Errorf("saving tasks: bumping version: %w", err)
	}
	var version int64
	if err := tx.QueryRowContext(ctx,
		`SELECT version FROM collection_versions WHERE user_id = ?`, user).Scan(&version); err != nil {
		return fmt.Errorf("saving tasks: reading version: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("saving tasks: committing: %w", err)
	}
	s.markSeen(user, version)
	return nil
}

// Subscribe delivers userID's collection immediately and then again each
// time another writer bumps its version.
func (s *documentStore) Subscribe(ctx context.Context, userID string, onSnapshot func([]models.Task)) (func(), error) {
	if userID == "" {
		return nil, core.ErrUnauthenticated
	}
	tasks, version, err := s.readCollection(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("subscribing to tasks: %w", err)
	}
	s.markSeen(userID, version)
	onSnapshot(tasks)

	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go s.pollLoop(ctx, userID, onSnapshot, done)

	var once sync.Once
	return func() {
		once.Do(func() {
			cancel()
			<-done
		})
	}, nil
}

func (s *documentStore) pollLoop(ctx context.Context, userID string, onSnapshot func([]models.Task), done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(s.poll)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		tasks, changed, err := s.pollOnce(ctx, userID)
		if err != nil {
			if ctx.Err() == nil {
				s.logger.Warn("polling task collection", zap.String("user_id", userID), zap.Error(err))
			}
			continue
		}
		if changed {
			onSnapshot(tasks)
		}
	}
}

// pollOnce reads userID's collection if another writer bumped its version
// since this store last wrote or delivered it.
func (s *documentStore) pollOnce(ctx context.Context, userID string) ([]models.Task, bool, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	version, err := s.readVersion(ctx, userID)
	if err != nil {
		return nil, false, err
	}
	if version == s.seenVersion(userID) {
		return nil, false, nil
	}
	tasks, version, err := s.readCollection(ctx, userID)
	if err != nil {
		return nil, false, fmt.Errorf("reading changed collection: %w", err)
	}
	s.markSeen(userID, version)
	return tasks, true, nil
}

func (s *documentStore) readVersion(ctx context.Context, userID string) (int64, error) {
	var version int64
	err := s.db.QueryRowContext(ctx,
		`SELECT version FROM collection_versions WHERE user_id = ?`, userID).Scan(&version)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("reading collection version: %w", err)
	}
	return version, nil
}

// readCollection returns the user's tasks in position order together with the
// version they belong to.
func (s *documentStore) readCollection(ctx context.Context, userID string) ([]models.Task, int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, 0, fmt.Errorf("loading tasks: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var version int64
	err = tx.QueryRowContext(ctx,
		`SELECT version FROM collection_versions WHERE user_id = ?`, userID).Scan(&version)
	if err != nil && err != sql.ErrNoRows {
		return nil, 0, fmt.Errorf("loading tasks: reading version: %w", err)
	}

	rows, err := tx.QueryContext(ctx,
		`SELECT id, doc FROM tasks WHERE user_id = ? ORDER BY position`, userID)
	if err != nil {
		return nil, 0, fmt.Errorf("loading tasks: %w", err)
	}
	defer rows.Close()

	tasks := []models.Task{}
	for rows.Next() {
		var id, doc string
		if err := rows.Scan(&id, &doc); err != nil {
			return nil, 0, fmt.Errorf("loading tasks: scanning row: %w", err)
		}
		t, skipped, err := decodeDocument([]byte(doc))
		if err != nil {
			s.logger.Warn("skipping undecodable task document", zap.String("task_id", id), zap.Error(err))
			continue
		}
		if skipped > 0 {
			s.logger.Warn("skipped undecodable attachments", zap.String("task_id", id), zap.Int("skipped", skipped))
		}
		if t.ID == "" {
			t.ID = id
		}
		tasks = append(tasks, t)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("loading tasks: %w", err)
	}
	return tasks, version, nil
}

func (s *documentStore) markSeen(userID string, version int64) {
	s.mu.Lock()
	if version > s.seen[userID] {
		s.seen[userID] = version
	}
	s.mu.Unlock()
}

func (s *documentStore) seenVersion(userID string) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.seen[userID]
}

func (s *documentStore) Close() error {
	return s.db.Close()
}

// taskDocument mirrors models.Task with attachment payloads left raw, so a
// single bad payload only costs that attachment.
type taskDocument struct {
	ID          string          `json:"id"`
	Text        string          `json:"text"`
	Done        bool            `json:"done"`
	DueDate     *string         `json:"dueDate"`
	Priority    models.Priority `json:"priority"`
	Attachments []struct {
		Name string          `json:"name"`
		Type string          `json:"type"`
		Size int64           `json:"size"`
		Data json.RawMessage `json:"data"`
	} `json:"attachments"`
	CreatedAt time.Time `json:"createdAt"`
}

func decodeDocument(doc []byte) (models.Task, int, error) {
	var d taskDocument
	if err := json.Unmarshal(doc, &d); err != nil {
		return models.Task{}, 0, err
	}
	t := models.Task{
		ID:          d.ID,
		Text:        d.Text,
		Done:        d.Done,
		DueDate:     d.DueDate,
		Priority:    d.Priority,
		CreatedAt:   d.CreatedAt,
		Attachments: make([]models.StoredAttachment, 0, len(d.Attachments)),
	}
	skipped := 0
	for _, a := range d.Attachments {
		var values []int
		if len(a.Data) > 0 {
			if err := json.Unmarshal(a.Data, &values); err != nil {
				skipped++
				continue
			}
		}
		t.Attachments = append(t.Attachments, models.StoredAttachment{
			Name: a.Name, Type: a.Type, Size: a.Size, Data: values,
		})
	}
	return t, skipped, nil
}
