package core

import "errors"

// Errors surfaced to whoever triggered the action. None are fatal.
var (
	ErrEmptyText       = errors.New("task cannot be empty")
	ErrDuplicateText   = errors.New("task already exists")
	ErrNotFound        = errors.New("task not found")
	ErrUnauthenticated = errors.New("not signed in")
	ErrCodec           = errors.New("malformed attachment data")
	ErrSessionClosed   = errors.New("edit session is closed")
	ErrReminderInPast  = errors.New("reminder time is in the past")
)
