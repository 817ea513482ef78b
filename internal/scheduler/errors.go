package scheduler

import "errors"

var (
	ErrDisposed     = errors.New("scheduler has been disposed")
	ErrPoolNotFound = errors.New("pool not found")
	ErrDefaultPool  = errors.New("the default pool cannot be removed")
	ErrTaskActive   = errors.New("task is active")
	ErrEmptyScript  = errors.New("script is empty")

	// ErrWaitTimeout is surfaced by the command layer when an outer wait
	// elapses; the task itself is unaffected.
	ErrWaitTimeout = errors.New("timed out waiting for task")
)
