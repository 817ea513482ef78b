package cli

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"taskpool/internal/scheduler"
	"taskpool/internal/task"
)

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func fmtTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Format("15:04:05.000")
}

func fmtDuration(d time.Duration) string {
	if d <= 0 {
		return "-"
	}
	return d.Round(time.Millisecond).String()
}

func printTasks(w io.Writer, tasks []*task.Task) {
	tw := tabwriter.NewWriter(w, 2, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tPOOL\tSTATUS\tCREATED\tDURATION\tREASON")
	for _, t := range tasks {
		reason := t.FailureReason()
		if len(reason) > 48 {
			reason = reason[:45] + "..."
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			t.ID, t.Name, t.PoolName, t.Status(),
			fmtTime(t.CreatedAt), fmtDuration(t.Duration()), reason)
	}
	tw.Flush()
}

func printSettings(w io.Writer, poolName string, s scheduler.Settings) {
	fmt.Fprintf(w, "pool:      %s\n", poolName)
	fmt.Fprintf(w, "min:       %d\n", s.MinWorkers)
	fmt.Fprintf(w, "max:       %d\n", s.MaxWorkers)
	fmt.Fprintf(w, "retention: %s\n", s.Retention)
}

func printSessionState(w io.Writer, poolName string, s scheduler.SessionState) {
	fmt.Fprintf(w, "pool:    %s\n", poolName)
	fmt.Fprintf(w, "modules: %s\n", strings.Join(s.Modules, ", "))
	if len(s.Variables) > 0 {
		fmt.Fprintf(w, "variables:\n")
		for k, v := range s.Variables {
			fmt.Fprintf(w, "  %s = %v\n", k, v)
		}
	}
	if s.InitScript != "" {
		fmt.Fprintf(w, "init: %s\n", s.InitScript)
	}
}

func printPools(w io.Writer, infos []scheduler.PoolInfo) {
	tw := tabwriter.NewWriter(w, 2, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tMIN\tMAX\tRETENTION\tMODULES\tTASKS\tACTIVE")
	for _, pi := range infos {
		fmt.Fprintf(tw, "%s\t%d\t%d\t%s\t%s\t%d\t%d\n",
			pi.Name, pi.MinWorkers, pi.MaxWorkers, pi.Retention,
			strings.Join(pi.Modules, ","), pi.TaskCount, pi.ActiveCount)
	}
	tw.Flush()
}
