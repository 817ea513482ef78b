package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"taskpool/internal/task"
)

func TestClassify(t *testing.T) {
	t.Parallel()

	now := time.Now().UTC()
	engineErr := errors.New("engine blew up")

	tests := []struct {
		name       string
		cancel     bool
		deadlineAt time.Time
		ctxErr     error
		runErr     error
		want       task.Status
		wantReason string
	}{
		{
			name: "clean completion",
			want: task.StatusCompleted,
		},
		{
			name:       "engine error",
			runErr:     engineErr,
			want:       task.StatusFailed,
			wantReason: "engine blew up",
		},
		{
			name:   "user cancel, no deadline",
			cancel: true,
			ctxErr: context.Canceled,
			runErr: context.Canceled,
			want:   task.StatusCancelled,
		},
		{
			name:       "deadline elapsed",
			deadlineAt: now.Add(-time.Second),
			ctxErr:     context.DeadlineExceeded,
			runErr:     context.DeadlineExceeded,
			want:       task.StatusTimedOut,
			wantReason: context.DeadlineExceeded.Error(),
		},
		{
			name:       "deadline absorbs engine error",
			deadlineAt: now.Add(-time.Second),
			ctxErr:     context.DeadlineExceeded,
			runErr:     engineErr,
			want:       task.StatusTimedOut,
			wantReason: "engine blew up",
		},
		{
			name:       "cancel fired before deadline wins",
			cancel:     true,
			deadlineAt: now.Add(time.Hour),
			ctxErr:     context.Canceled,
			runErr:     context.Canceled,
			want:       task.StatusCancelled,
		},
		{
			name:       "deadline before cancel wins",
			cancel:     true,
			deadlineAt: now.Add(-time.Hour),
			ctxErr:     context.DeadlineExceeded,
			runErr:     context.DeadlineExceeded,
			want:       task.StatusTimedOut,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			tk := task.New("default", "", "1", nil, 0)
			if tt.cancel {
				tk.Cancel()
			}
			st, reason := classify(tk, tt.ctxErr, tt.deadlineAt, tt.runErr)
			if st != tt.want {
				t.Fatalf("classify = %s, want %s", st, tt.want)
			}
			if tt.wantReason != "" && reason != tt.wantReason {
				t.Fatalf("reason = %q, want %q", reason, tt.wantReason)
			}
		})
	}
}
