package core

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/valter-silva-au/todo/pkg/models"
	"go.uber.org/zap"
)

// Persister is the PersistenceAdapter contract TaskStore depends on. Defining
// it here keeps core independent of the storage package.
type Persister interface {
	Load(ctx context.Context) ([]models.Task, error)
	SaveAll(ctx context.Context, tasks []models.Task) error
}

// Subscriber is implemented by persisters that can push full replacement
// snapshots when the underlying collection changes.
type Subscriber interface {
	Subscribe(ctx context.Context, userID string, onSnapshot func([]models.Task)) (unsubscribe func(), err error)
}

// AuthProvider supplies the signed-in user, if any.
type AuthProvider interface {
	CurrentUser() (userID string, ok bool)
}

// CreateInput carries the fields of a new task.
type CreateInput struct {
	Text        string
	DueDate     *string
	Priority    models.Priority
	Attachments []models.Attachment
}

// UpdateInput replaces every mutable field of a task.
type UpdateInput struct {
	Text        string
	DueDate     *string
	Priority    models.Priority
	Attachments []models.Attachment
}

// TaskStore is the single authoritative mutator of the canonical task
// sequence.
type TaskStore interface {
	Load(ctx context.Context) error
	Create(in CreateInput) (*models.Task, error)
	Update(id string, in UpdateInput) (*models.Task, error)
	ToggleDone(id string) (*models.Task, error)
	Delete(id string) error
	Reorder(from, to int)

	Tasks() []models.Task
	Get(id string) (*models.Task, error)
	IndexOf(id string) (int, bool)
	ReplaceAll(tasks []models.Task)
	Sync(ctx context.Context, sub Subscriber) (unsubscribe func(), err error)

	BeginEdit(id string) (*EditSession, error)
	BeginCreate() (*EditSession, error)
	Codec() *AttachmentCodec

	LastSaveError() error
	Flush(ctx context.Context) error
	Close() error
}

// StoreOptions configures a TaskStore. Only Persister is required.
type StoreOptions struct {
	Persister Persister
	Codec     *AttachmentCodec
	// Auth, when set, gates every operation on a signed-in user.
	Auth   AuthProvider
	Events EventLogger
	Logger *zap.Logger
	Now    func() time.Time
	// DefaultPriority seeds new edit sessions. Empty or invalid means medium.
	DefaultPriority models.Priority
}

type taskStore struct {
	mu    sync.Mutex
	tasks []models.Task
	index map[string]int

	// sessions holds the open edit sessions keyed by task ID; "" is the
	// create session.
	sessions map[string]*EditSession

	codec  *AttachmentCodec
	auth   AuthProvider
	events EventLogger
	logger *zap.Logger
	now    func() time.Time
	saver  *saver

	defaultPriority models.Priority
}

// NewTaskStore creates an empty store and starts its background saver. Call
// Load to read the persisted snapshot and Close to stop the saver.
func NewTaskStore(opts StoreOptions) TaskStore {
	if opts.Codec == nil {
		opts.Codec = NewAttachmentCodec(nil)
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	s := &taskStore{
		index:    make(map[string]int),
		sessions: make(map[string]*EditSession),
		codec:    opts.Codec,
		auth:     opts.Auth,
		events:   opts.Events,
		logger:   opts.Logger,
		now:      opts.Now,

		defaultPriority: models.NormalizePriority(opts.DefaultPriority),
	}
	s.saver = newSaver(opts.Persister, s.onSaveResult)
	return s
}

func (s *taskStore) Codec() *AttachmentCodec { return s.codec }

func (s *taskStore) Load(ctx context.Context) error {
	if err := s.requireUser(); err != nil {
		return err
	}
	tasks, err := s.saver.persist.Load(ctx)
	if err != nil {
		return fmt.Errorf("loading tasks: %w", err)
	}
	missingIDs := false
	for _, t := range tasks {
		if t.ID == "" {
			missingIDs = true
			break
		}
	}
	s.ReplaceAll(tasks)
	// Persist identities assigned to entries written without one.
	if missingIDs {
		s.mu.Lock()
		s.commitLocked()
		s.mu.Unlock()
	}
	return nil
}

func (s *taskStore) Create(in CreateInput) (*models.Task, error) {
	if err := s.requireUser(); err != nil {
		return nil, err
	}
	text := strings.TrimSpace(in.Text)
	if text == "" {
		return nil, ErrEmptyText
	}

	s.mu.Lock()
	if s.hasText(text, "") {
		s.mu.Unlock()
		return nil, ErrDuplicateText
	}
	task := models.Task{
		ID:          uuid.NewString(),
		Text:        text,
		DueDate:     normalizeDueDate(in.DueDate),
		Priority:    models.NormalizePriority(in.Priority),
		Attachments: s.encodeAll(in.Attachments),
		CreatedAt:   s.now().UTC(),
	}
	s.tasks = append(s.tasks, task)
	s.rebuildIndex()
	out := task.Clone()
	s.commitLocked()
	s.mu.Unlock()

	s.logEvent("task.created", map[string]any{
		"task_id":     out.ID,
		"priority":    string(out.Priority),
		"attachments": len(out.Attachments),
	})
	return &out, nil
}

func (s *taskStore) Update(id string, in UpdateInput) (*models.Task, error) {
	if err := s.requireUser(); err != nil {
		return nil, err
	}
	text := strings.TrimSpace(in.Text)
	if text == "" {
		return nil, ErrEmptyText
	}

	s.mu.Lock()
	i, ok := s.index[id]
	if !ok {
		s.mu.Unlock()
		return nil, fmt.Errorf("updating task %s: %w", id, ErrNotFound)
	}
	if s.hasText(text, id) {
		s.mu.Unlock()
		return nil, ErrDuplicateText
	}
	t := &s.tasks[i]
	t.Text = text
	t.DueDate = normalizeDueDate(in.DueDate)
	t.Priority = models.NormalizePriority(in.Priority)
	t.Attachments = s.encodeAll(in.Attachments)
	out := t.Clone()
	s.commitLocked()
	s.mu.Unlock()

	s.logEvent("task.updated", map[string]any{"task_id": id})
	return &out, nil
}

func (s *taskStore) ToggleDone(id string) (*models.Task, error) {
	if err := s.requireUser(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	i, ok := s.index[id]
	if !ok {
		s.mu.Unlock()
		return nil, fmt.Errorf("toggling task %s: %w", id, ErrNotFound)
	}
	s.tasks[i].Done = !s.tasks[i].Done
	out := s.tasks[i].Clone()
	s.commitLocked()
	s.mu.Unlock()

	evt := "task.reopened"
	if out.Done {
		evt = "task.completed"
	}
	s.logEvent(evt, map[string]any{"task_id": id})
	return &out, nil
}

func (s *taskStore) Delete(id string) error {
	if err := s.requireUser(); err != nil {
		return err
	}
	s.mu.Lock()
	i, ok := s.index[id]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("deleting task %s: %w", id, ErrNotFound)
	}
	s.tasks = append(s.tasks[:i], s.tasks[i+1:]...)
	s.rebuildIndex()
	open := s.sessions[id]
	delete(s.sessions, id)
	s.commitLocked()
	s.mu.Unlock()

	// Cancel outside the store lock: Save takes the session lock first.
	if open != nil {
		open.Cancel()
	}
	s.logEvent("task.deleted", map[string]any{"task_id": id})
	return nil
}

func (s *taskStore) Reorder(from, to int) {
	if s.requireUser() != nil {
		return
	}
	s.mu.Lock()
	n := len(s.tasks)
	if from == to || from < 0 || to < 0 || from >= n || to >= n {
		s.mu.Unlock()
		return
	}
	moved := s.tasks[from]
	s.tasks = append(s.tasks[:from], s.tasks[from+1:]...)
	s.tasks = append(s.tasks[:to], append([]models.Task{moved}, s.tasks[to:]...)...)
	s.rebuildIndex()
	s.commitLocked()
	s.mu.Unlock()

	s.logEvent("task.reordered", map[string]any{"task_id": moved.ID, "from": from, "to": to})
}

func (s *taskStore) Tasks() []models.Task {
	s.mu.Lock()
	defer s.mu.Unlock()
	return cloneTasks(s.tasks)
}

func (s *taskStore) Get(id string) (*models.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i, ok := s.index[id]
	if !ok {
		return nil, fmt.Errorf("task %s: %w", id, ErrNotFound)
	}
	out := s.tasks[i].Clone()
	return &out, nil
}

func (s *taskStore) IndexOf(id string) (int, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i, ok := s.index[id]
	return i, ok
}

// ReplaceAll swaps in a full snapshot in one step. It does not save: the
// snapshot came from the persistence layer. An open edit session whose task
// vanished is cancelled.
func (s *taskStore) ReplaceAll(tasks []models.Task) {
	next := make([]models.Task, 0, len(tasks))
	for _, t := range tasks {
		next = append(next, s.sanitize(t))
	}

	s.mu.Lock()
	s.tasks = next
	s.rebuildIndex()
	var orphans []*EditSession
	for id, sess := range s.sessions {
		if id == "" {
			continue
		}
		if _, ok := s.index[id]; !ok {
			orphans = append(orphans, sess)
			delete(s.sessions, id)
		}
	}
	s.mu.Unlock()

	for _, sess := range orphans {
		sess.Cancel()
	}
}

// Sync subscribes to live snapshots for the signed-in user.
func (s *taskStore) Sync(ctx context.Context, sub Subscriber) (func(), error) {
	user := ""
	if s.auth != nil {
		u, ok := s.auth.CurrentUser()
		if !ok {
			return nil, ErrUnauthenticated
		}
		user = u
	}
	unsubscribe, err := sub.Subscribe(ctx, user, s.ReplaceAll)
	if err != nil {
		return nil, fmt.Errorf("subscribing to tasks: %w", err)
	}
	return unsubscribe, nil
}

func (s *taskStore) LastSaveError() error {
	return s.saver.lastError()
}

func (s *taskStore) Flush(ctx context.Context) error {
	return s.saver.flush(ctx)
}

// Close cancels every open edit session, waits for the last snapshot to be
// written, and stops the saver.
func (s *taskStore) Close() error {
	s.mu.Lock()
	open := make([]*EditSession, 0, len(s.sessions))
	for _, sess := range s.sessions {
		open = append(open, sess)
	}
	clear(s.sessions)
	s.mu.Unlock()
	for _, sess := range open {
		sess.Cancel()
	}
	return s.saver.close()
}

// hasText reports whether another task (not exceptID) already uses text,
// compared trimmed and case-folded. Callers hold s.mu.
func (s *taskStore) hasText(text, exceptID string) bool {
	for _, t := range s.tasks {
		if t.ID == exceptID {
			continue
		}
		if strings.EqualFold(strings.TrimSpace(t.Text), text) {
			return true
		}
	}
	return false
}

func (s *taskStore) encodeAll(in []models.Attachment) []models.StoredAttachment {
	out := make([]models.StoredAttachment, len(in))
	for i, a := range in {
		out[i] = s.codec.ToStorable(a)
	}
	return out
}

// sanitize fills defaults on tasks read from storage and drops attachments
// whose data cannot be decoded; the task keeps its other fields.
func (s *taskStore) sanitize(t models.Task) models.Task {
	t = t.Clone()
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	t.Priority = models.NormalizePriority(t.Priority)
	t.DueDate = normalizeDueDate(t.DueDate)
	if t.Attachments == nil {
		t.Attachments = []models.StoredAttachment{}
	}
	kept, err := SanitizeStored(t.Attachments)
	if err != nil {
		s.logger.Warn("skipping malformed attachments",
			zap.String("task_id", t.ID),
			zap.Int("skipped", len(t.Attachments)-len(kept)),
			zap.Error(err))
		s.logEvent("codec.skipped", map[string]any{
			"task_id": t.ID,
			"skipped": len(t.Attachments) - len(kept),
		})
	}
	t.Attachments = kept
	return t
}

func (s *taskStore) rebuildIndex() {
	s.index = NewIndex(s.tasks)
}

// commitLocked queues a snapshot of the current state for saving.
func (s *taskStore) commitLocked() {
	s.saver.enqueue(cloneTasks(s.tasks))
}

func (s *taskStore) requireUser() error {
	if s.auth == nil {
		return nil
	}
	if _, ok := s.auth.CurrentUser(); !ok {
		return ErrUnauthenticated
	}
	return nil
}

func (s *taskStore) onSaveResult(err error) {
	if err == nil {
		return
	}
	s.logger.Error("saving tasks failed", zap.Error(err))
	s.logEvent("store.save_failed", map[string]any{"error": err.Error()})
}

func (s *taskStore) logEvent(eventType string, data map[string]any) {
	if s.events == nil {
		return
	}
	if err := s.events.LogEvent(eventType, data); err != nil {
		s.logger.Debug("writing event failed", zap.String("type", eventType), zap.Error(err))
	}
}

// openSession registers sess, replacing an open session on the same task.
// It fails if the task was deleted after the session was built.
func (s *taskStore) openSession(sess *EditSession) error {
	s.mu.Lock()
	if sess.taskID != "" {
		if _, ok := s.index[sess.taskID]; !ok {
			s.mu.Unlock()
			return ErrNotFound
		}
	}
	prev := s.sessions[sess.taskID]
	s.sessions[sess.taskID] = sess
	s.mu.Unlock()
	// The previous session's previews are gone before the new one is used.
	if prev != nil {
		prev.Cancel()
	}
	return nil
}

func (s *taskStore) endSession(sess *EditSession) {
	s.mu.Lock()
	if s.sessions[sess.taskID] == sess {
		delete(s.sessions, sess.taskID)
	}
	s.mu.Unlock()
}

func normalizeDueDate(d *string) *string {
	if d == nil {
		return nil
	}
	v := strings.TrimSpace(*d)
	if v == "" {
		return nil
	}
	return &v
}

func cloneTasks(in []models.Task) []models.Task {
	out := make([]models.Task, len(in))
	for i, t := range in {
		out[i] = t.Clone()
	}
	return out
}

// IsValidationError reports whether err is a user-correctable input error.
func IsValidationError(err error) bool {
	return errors.Is(err, ErrEmptyText) || errors.Is(err, ErrDuplicateText)
}
