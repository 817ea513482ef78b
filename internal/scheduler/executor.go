package scheduler

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"taskpool/internal/engine"
	"taskpool/internal/eventbus"
	"taskpool/internal/pool"
	"taskpool/internal/task"
	logx "taskpool/pkg/logx"
)

// run is the per-task execution loop: admission, worker checkout, stream
// wiring, cancellation/deadline composition, engine drive, terminal
// classification. Worker and permit are released on every exit path.
func (s *Scheduler) run(p *pool.Pool, t *task.Task) {
	defer s.wg.Done()

	// Guard against engine or handler panics: one bad task must not take the
	// process down or leak a permit.
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("task panic",
				logx.String("task", t.ID),
				logx.Any("panic", r),
				logx.String("stack", string(debug.Stack())),
			)
			if t.Finish(task.StatusFailed, fmt.Sprintf("panic: %v", r)) {
				s.publish(eventbus.KindFailed, t, nil)
			}
		}
	}()

	if !t.MarkScheduled() {
		// Pre-schedule cancellation won the race.
		s.finish(t, task.StatusCancelled, "")
		return
	}
	s.publish(eventbus.KindScheduled, t, nil)

	// Admission: wait on the pool gate, abandoning the wait the moment the
	// cancel signal fires.
	if err := p.Acquire(t.Context()); err != nil {
		s.finish(t, task.StatusCancelled, "")
		return
	}
	defer p.Release()

	if _, fired := t.CancelFired(); fired {
		s.finish(t, task.StatusCancelled, "")
		return
	}

	if !t.MarkRunning() {
		s.finish(t, task.StatusCancelled, "")
		return
	}
	s.publish(eventbus.KindStarted, t, nil)
	start := t.StartedAt()

	w, err := p.Checkout(t.Context())
	if err != nil {
		if _, fired := t.CancelFired(); fired {
			s.finish(t, task.StatusCancelled, "")
			return
		}
		s.finish(t, task.StatusFailed, fmt.Sprintf("acquiring worker: %v", err))
		return
	}
	defer p.Checkin(w)

	// Compose the cancellation source: the task's own cancel signal linked
	// with the deadline, measured from the moment execution began.
	runCtx := t.Context()
	var deadlineAt time.Time
	if t.Deadline > 0 {
		deadlineAt = start.Add(t.Deadline)
		var cancel context.CancelFunc
		runCtx, cancel = context.WithDeadline(runCtx, deadlineAt)
		defer cancel()
	}

	h := engine.Handlers{
		Output: t.AppendOutput,
		Error:  t.AppendError,
		Progress: func(pr task.ProgressRecord) {
			t.AppendProgress(pr)
			s.publish(eventbus.KindProgress, t, &pr)
			if s.progressLog.Allow() {
				s.log.Debug("task progress",
					logx.String("task", t.ID),
					logx.Int("percent", pr.PercentComplete),
					logx.String("activity", pr.Activity),
				)
			}
		},
	}

	result, runErr := w.Run(runCtx, t.ScriptText, t.Arguments, h)
	// Snapshot the composed context right away: its error encodes which
	// signal (if any) fired while the engine was still running.
	ctxErr := runCtx.Err()
	if runErr == nil && result != nil {
		t.AppendOutput(result)
	}

	st, reason := classify(t, ctxErr, deadlineAt, runErr)
	s.finish(t, st, reason)

	switch st {
	case task.StatusFailed:
		s.log.Warn("task failed",
			logx.String("task", t.ID),
			logx.String("pool", p.Name()),
			logx.String("reason", reason),
			logx.Duration("dur", t.Duration()),
		)
	case task.StatusTimedOut:
		s.log.Info("task timed out",
			logx.String("task", t.ID),
			logx.String("pool", p.Name()),
			logx.Duration("deadline", t.Deadline),
		)
	default:
		s.log.Debug("task finished",
			logx.String("task", t.ID),
			logx.String("pool", p.Name()),
			logx.String("status", st.String()),
			logx.Duration("dur", t.Duration()),
		)
	}
}

// finish applies the terminal transition and publishes its event exactly once.
func (s *Scheduler) finish(t *task.Task, st task.Status, reason string) {
	if t.Finish(st, reason) {
		s.publish(eventbus.TerminalKind(st), t, nil)
	}
}

// classify maps the engine outcome onto the terminal states.
//
// Tie-break when both signals fired: the user cancel wins iff it fired
// before the deadline elapsed (firing order, not final context state). A
// deadline that elapsed absorbs any engine error into TimedOut; the error is
// still kept as the failure reason for diagnostics.
func classify(t *task.Task, ctxErr error, deadlineAt time.Time, runErr error) (task.Status, string) {
	cancelAt, cancelFired := t.CancelFired()
	userCancelWins := cancelFired && (deadlineAt.IsZero() || cancelAt.Before(deadlineAt))
	deadlineFired := ctxErr == context.DeadlineExceeded

	switch {
	case userCancelWins:
		return task.StatusCancelled, ""
	case deadlineFired:
		reason := ""
		if runErr != nil {
			reason = runErr.Error()
		}
		return task.StatusTimedOut, reason
	case cancelFired:
		return task.StatusCancelled, ""
	case runErr != nil:
		return task.StatusFailed, runErr.Error()
	default:
		return task.StatusCompleted, ""
	}
}
