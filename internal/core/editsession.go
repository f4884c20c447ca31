package core

import (
	"fmt"
	"sync"

	"github.com/valter-silva-au/todo/pkg/models"
	"go.uber.org/zap"
)

// EditSession is the in-progress edit buffer for one task, or for a new task
// when opened with BeginCreate. It owns the preview handles of its
// attachments and releases all of them on Save, Cancel, or when the task it
// edits is deleted.
//
// Text, DueDate, and Priority are plain fields; a session belongs to a single
// caller. A store keeps at most one open session per task, plus one create
// session, so concurrent callers editing different tasks do not interfere.
type EditSession struct {
	Text     string
	DueDate  *string
	Priority models.Priority

	store  *taskStore
	codec  *AttachmentCodec
	taskID string

	mu          sync.Mutex
	attachments []models.Attachment
	closed      bool
}

// BeginEdit opens a session on task id, decoding its stored attachments and
// creating previews for images. A session already open on the same task is
// cancelled first; sessions on other tasks are left alone.
func (s *taskStore) BeginEdit(id string) (*EditSession, error) {
	if err := s.requireUser(); err != nil {
		return nil, err
	}
	task, err := s.Get(id)
	if err != nil {
		return nil, fmt.Errorf("opening edit session: %w", err)
	}

	// Stored attachments were sanitized when they entered the store, so a
	// decode failure here is not expected; any that fail are left out.
	atts, err := s.codec.DecodeAll(task.Attachments)
	if err != nil {
		s.logger.Warn("decoding attachments for edit", zap.String("task_id", id), zap.Error(err))
	}
	sess := &EditSession{
		Text:        task.Text,
		DueDate:     task.DueDate,
		Priority:    task.Priority,
		store:       s,
		codec:       s.codec,
		taskID:      id,
		attachments: atts,
	}
	// The session owns its previews only once it is registered.
	if err := s.openSession(sess); err != nil {
		sess.release()
		return nil, fmt.Errorf("opening edit session: %w", err)
	}
	return sess, nil
}

// BeginCreate opens a session for a task that does not exist yet, replacing
// any other create session.
func (s *taskStore) BeginCreate() (*EditSession, error) {
	if err := s.requireUser(); err != nil {
		return nil, err
	}
	sess := &EditSession{
		Priority: s.defaultPriority,
		store:    s,
		codec:    s.codec,
	}
	if err := s.openSession(sess); err != nil {
		return nil, err
	}
	return sess, nil
}

// TaskID returns the ID of the task being edited, or "" for a new task.
func (e *EditSession) TaskID() string {
	return e.taskID
}

// Attachments returns a copy of the session's attachment list.
func (e *EditSession) Attachments() []models.Attachment {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]models.Attachment(nil), e.attachments...)
}

// AddFile appends new file content to the session and returns its position.
func (e *EditSession) AddFile(name, mime string, data []byte) (int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return -1, ErrSessionClosed
	}
	e.attachments = append(e.attachments, e.codec.NewAttachment(name, mime, data))
	return len(e.attachments) - 1, nil
}

// Remove drops the attachment at i and releases its preview.
func (e *EditSession) Remove(i int) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return ErrSessionClosed
	}
	if i < 0 || i >= len(e.attachments) {
		return fmt.Errorf("removing attachment %d: index out of range", i)
	}
	e.codec.ReleasePreview(&e.attachments[i])
	e.attachments = append(e.attachments[:i], e.attachments[i+1:]...)
	return nil
}

// Save commits the buffer through the store. Validation errors leave the
// session open so the caller can correct the input; any other outcome closes
// it and releases every preview.
func (e *EditSession) Save() (*models.Task, error) {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil, ErrSessionClosed
	}
	atts := append([]models.Attachment(nil), e.attachments...)
	e.mu.Unlock()

	var (
		task *models.Task
		err  error
	)
	if e.taskID == "" {
		task, err = e.store.Create(CreateInput{
			Text: e.Text, DueDate: e.DueDate, Priority: e.Priority, Attachments: atts,
		})
	} else {
		task, err = e.store.Update(e.taskID, UpdateInput{
			Text: e.Text, DueDate: e.DueDate, Priority: e.Priority, Attachments: atts,
		})
	}
	if err != nil && IsValidationError(err) {
		return nil, err
	}
	e.Cancel()
	return task, err
}

// Cancel discards the buffer and releases every preview. It is idempotent.
func (e *EditSession) Cancel() {
	if e.release() {
		e.store.endSession(e)
	}
}

// release closes the session and revokes its previews. It reports whether
// this call closed it.
func (e *EditSession) release() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return false
	}
	e.closed = true
	for i := range e.attachments {
		e.codec.ReleasePreview(&e.attachments[i])
	}
	e.attachments = nil
	return true
}

// Closed reports whether the session has ended.
func (e *EditSession) Closed() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.closed
}
