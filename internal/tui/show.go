// Package tui renders the live task table. It is a consumer of the
// scheduler's read surface, not part of the core.
package tui

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"golang.org/x/term"

	"taskpool/internal/scheduler"
	"taskpool/internal/task"
)

var spinnerFrames = []string{"|", "/", "-", "\\"}

// Options control the live table.
type Options struct {
	RefreshMS       int
	ExitWhenIdle    bool
	IncludeProgress bool
	Pool            string
	Out             io.Writer
}

// Show redraws the task table every refresh interval until ctx is done (or,
// with ExitWhenIdle, until no task is active). Non-terminal tasks get a
// spinner cell so a stalled screen is distinguishable from a stalled task.
func Show(ctx context.Context, s *scheduler.Scheduler, opt Options) error {
	if opt.Out == nil {
		opt.Out = os.Stdout
	}
	refresh := time.Duration(opt.RefreshMS) * time.Millisecond
	if refresh <= 0 {
		refresh = 500 * time.Millisecond
	}

	ticker := time.NewTicker(refresh)
	defer ticker.Stop()

	frame := 0
	for {
		tasks, err := s.GetTasks(opt.Pool, nil)
		if err != nil {
			return err
		}
		draw(opt.Out, tasks, opt.IncludeProgress, frame)
		frame++

		if opt.ExitWhenIdle {
			idle := true
			for _, t := range tasks {
				if t.Active() {
					idle = false
					break
				}
			}
			if idle {
				return nil
			}
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

func draw(w io.Writer, tasks []*task.Task, includeProgress bool, frame int) {
	// Clear screen + home. Width bounds the length of each row.
	fmt.Fprint(w, "\x1b[2J\x1b[H")
	width := 120
	if f, ok := w.(*os.File); ok {
		if tw, _, err := term.GetSize(int(f.Fd())); err == nil && tw > 40 {
			width = tw
		}
	}

	tw := tabwriter.NewWriter(w, 2, 4, 2, ' ', 0)
	header := "  \tID\tNAME\tPOOL\tSTATUS\tDURATION"
	if includeProgress {
		header += "\tPROGRESS"
	}
	fmt.Fprintln(tw, header)

	spin := spinnerFrames[frame%len(spinnerFrames)]
	for _, t := range tasks {
		marker := " "
		if t.Active() {
			marker = spin
		}
		dur := "-"
		if st := t.StartedAt(); !st.IsZero() {
			if done := t.CompletedAt(); !done.IsZero() {
				dur = done.Sub(st).Round(time.Millisecond).String()
			} else {
				dur = time.Since(st).Round(time.Millisecond).String()
			}
		}
		row := fmt.Sprintf("%s\t%s\t%s\t%s\t%s\t%s",
			marker, shortID(t.ID), clip(t.Name, 20), t.PoolName, t.Status(), dur)
		if includeProgress {
			row += "\t" + progressCell(t)
		}
		fmt.Fprintln(tw, clip(row, width*2))
	}
	tw.Flush()
}

func progressCell(t *task.Task) string {
	lp := t.LastProgress()
	if lp == nil {
		return "-"
	}
	cell := fmt.Sprintf("%d%%", lp.PercentComplete)
	if lp.Activity != "" {
		cell += " " + clip(lp.Activity, 24)
	}
	return cell
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func clip(s string, n int) string {
	if n <= 3 || len(s) <= n {
		return s
	}
	return strings.TrimSpace(s[:n-3]) + "..."
}
