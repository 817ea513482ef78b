package task

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Status is the lifecycle state of a task.
//
// Transitions only move forward:
//
//	Created -> Scheduled -> Running -> Completed | Failed | Cancelled | TimedOut
//	Created -> Cancelled
//	Scheduled -> Cancelled
//
// Terminal states are absorbing: once reached, the status never changes.
type Status int

const (
	StatusCreated Status = iota
	StatusScheduled
	StatusRunning
	StatusCompleted
	StatusFailed
	StatusCancelled
	StatusTimedOut
)

func (s Status) String() string {
	switch s {
	case StatusCreated:
		return "Created"
	case StatusScheduled:
		return "Scheduled"
	case StatusRunning:
		return "Running"
	case StatusCompleted:
		return "Completed"
	case StatusFailed:
		return "Failed"
	case StatusCancelled:
		return "Cancelled"
	case StatusTimedOut:
		return "TimedOut"
	default:
		return "Unknown"
	}
}

// Terminal reports whether s is an absorbing state.
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusCancelled, StatusTimedOut:
		return true
	}
	return false
}

// Task is one submitted unit of work and everything captured about it.
//
// Identity and submission fields are frozen at construction. Mutable state
// (status, timestamps, streams) is guarded by mu; the completion future and
// the cancel signal have their own one-shot primitives so waiters never take
// the task lock.
type Task struct {
	ID         string
	Name       string
	PoolName   string
	ScriptText string
	Arguments  []any

	// Deadline is the run-time budget measured from the moment the task
	// enters Running. Zero means no deadline.
	Deadline time.Duration

	CreatedAt time.Time

	mu            sync.Mutex
	status        Status
	startedAt     time.Time
	completedAt   time.Time
	failureReason string
	lastProgress  *ProgressRecord

	output   stream[Record]
	errs     stream[ErrorRecord]
	progress stream[ProgressRecord]

	cancelOnce sync.Once
	cancelAt   time.Time
	cancelCtx  context.Context
	cancelFn   context.CancelFunc

	doneOnce sync.Once
	done     chan struct{}
}

// New builds a task in the Created state bound to the given pool.
func New(poolName, name, script string, args []any, deadline time.Duration) *Task {
	ctx, cancel := context.WithCancel(context.Background())
	return &Task{
		ID:         uuid.NewString(),
		Name:       strings.TrimSpace(name),
		PoolName:   poolName,
		ScriptText: script,
		Arguments:  append([]any(nil), args...),
		Deadline:   deadline,
		CreatedAt:  time.Now().UTC(),
		status:     StatusCreated,
		cancelCtx:  ctx,
		cancelFn:   cancel,
		done:       make(chan struct{}),
	}
}

func (t *Task) Status() Status {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.status
}

// StartedAt returns the moment the task entered Running (zero if it never did).
func (t *Task) StartedAt() time.Time {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.startedAt
}

// CompletedAt returns the moment the task entered a terminal state (zero if active).
func (t *Task) CompletedAt() time.Time {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.completedAt
}

// Duration is CompletedAt - StartedAt, or zero when either is unset.
func (t *Task) Duration() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.startedAt.IsZero() || t.completedAt.IsZero() {
		return 0
	}
	return t.completedAt.Sub(t.startedAt)
}

func (t *Task) FailureReason() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.failureReason
}

// Active reports whether the task is in Created, Scheduled or Running.
func (t *Task) Active() bool {
	return !t.Status().Terminal()
}

// MarkScheduled moves Created -> Scheduled. Returns false if the task already
// left Created (e.g. pre-start cancellation won the race).
func (t *Task) MarkScheduled() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.status != StatusCreated {
		return false
	}
	t.status = StatusScheduled
	return true
}

// MarkRunning moves Scheduled -> Running and stamps StartedAt exactly once.
func (t *Task) MarkRunning() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.status != StatusScheduled {
		return false
	}
	t.status = StatusRunning
	if t.startedAt.IsZero() {
		now := time.Now().UTC()
		if now.Before(t.CreatedAt) {
			now = t.CreatedAt
		}
		t.startedAt = now
	}
	return true
}

// Finish moves the task into the given terminal state. reason is captured as
// FailureReason when non-empty (Failed always has one; TimedOut may carry the
// underlying engine error for diagnostics).
//
// The only permitted entries are Completed/Failed/TimedOut from Running and
// Cancelled from any non-terminal state. Finish is a no-op returning false on
// any other combination, so a task reaches a terminal state at most once.
func (t *Task) Finish(st Status, reason string) bool {
	if !st.Terminal() {
		return false
	}
	t.mu.Lock()
	if t.status.Terminal() {
		t.mu.Unlock()
		return false
	}
	switch st {
	case StatusCancelled:
		// Allowed from Created, Scheduled and Running.
	default:
		if t.status != StatusRunning {
			t.mu.Unlock()
			return false
		}
	}
	t.status = st
	t.completedAt = time.Now().UTC()
	if reason != "" {
		t.failureReason = reason
	}
	t.mu.Unlock()

	t.doneOnce.Do(func() { close(t.done) })
	return true
}

// Cancel fires the one-shot cancel signal. It returns true when the task was
// still stoppable (not terminal) at the moment of the call; firing the signal
// on a terminal task is a no-op.
func (t *Task) Cancel() bool {
	t.mu.Lock()
	stoppable := !t.status.Terminal()
	t.mu.Unlock()
	if !stoppable {
		return false
	}
	t.cancelOnce.Do(func() {
		t.mu.Lock()
		t.cancelAt = time.Now().UTC()
		t.mu.Unlock()
		t.cancelFn()
	})
	return true
}

// CancelFired reports whether the cancel signal fired and when.
func (t *Task) CancelFired() (time.Time, bool) {
	select {
	case <-t.cancelCtx.Done():
	default:
		return time.Time{}, false
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.cancelAt, true
}

// Context is done once the cancel signal fires. The executor composes it with
// the deadline; admission waits on it so a pre-start Stop unblocks the gate.
func (t *Task) Context() context.Context { return t.cancelCtx }

// Done is the completion future: closed when the task reaches a terminal state.
func (t *Task) Done() <-chan struct{} { return t.done }

// Wait blocks until the task completes, the timeout elapses (0 = no timeout),
// or ctx is canceled. It returns true only when the task reached a terminal
// state; the task itself is never mutated by waiting.
func (t *Task) Wait(ctx context.Context, timeout time.Duration) bool {
	if ctx == nil {
		ctx = context.Background()
	}
	var tc <-chan time.Time
	if timeout > 0 {
		tmr := time.NewTimer(timeout)
		defer tmr.Stop()
		tc = tmr.C
	}
	select {
	case <-t.done:
		return true
	case <-tc:
		return false
	case <-ctx.Done():
		return false
	}
}
