package task

import "errors"

var (
	ErrInvalidCommand = errors.New("invalid command")
	ErrNotFound       = errors.New("task not found")
	ErrForbidden      = errors.New("forbidden")
	ErrInvalidState   = errors.New("invalid task state")

	// ErrAlreadyDone is informational: completing a completed task is not a
	// failure, callers render it as a friendly notice.
	ErrAlreadyDone = errors.New("task already completed")
)
