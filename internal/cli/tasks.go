package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"taskpool/internal/scheduler"
	"taskpool/internal/task"
)

func (a *App) resolveTask(id string) (*task.Task, error) {
	t := a.Scheduler().GetTask(id)
	if t == nil {
		return nil, fmt.Errorf("no task with id %q", id)
	}
	return t, nil
}

func newGetCmd(app *App) *cobra.Command {
	var poolName string

	cmd := &cobra.Command{
		Use:   "get [id...]",
		Short: "List tasks ordered by creation time",
		RunE: func(cmd *cobra.Command, ids []string) error {
			tasks, err := app.Scheduler().GetTasks(poolName, ids)
			if err != nil {
				return err
			}
			printTasks(cmd.OutOrStdout(), tasks)
			return nil
		},
	}
	cmd.Flags().StringVar(&poolName, "pool", "", "restrict to one pool")
	return cmd
}

func newStopCmd(app *App) *cobra.Command {
	var passthru bool

	cmd := &cobra.Command{
		Use:   "stop <id>",
		Short: "Fire a task's cancel signal (cooperative stop)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			t, err := app.resolveTask(args[0])
			if err != nil {
				return err
			}
			stopped := app.Scheduler().StopTask(t)
			if !stopped {
				fmt.Fprintf(cmd.OutOrStdout(), "task %s is already %s\n", shortID(t.ID), t.Status())
			}
			if passthru {
				printTasks(cmd.OutOrStdout(), []*task.Task{t})
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&passthru, "passthru", false, "print the task after stopping")
	return cmd
}

func newWaitCmd(app *App) *cobra.Command {
	var (
		timeoutSeconds int
		passthru       bool
	)

	cmd := &cobra.Command{
		Use:   "wait <id>",
		Short: "Block until a task completes",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			t, err := app.resolveTask(args[0])
			if err != nil {
				return err
			}
			done := app.Scheduler().WaitTask(cmd.Context(), t, time.Duration(timeoutSeconds)*time.Second)
			if !done {
				return fmt.Errorf("task %s after %ds: %w", shortID(t.ID), timeoutSeconds, scheduler.ErrWaitTimeout)
			}
			if passthru {
				printTasks(cmd.OutOrStdout(), []*task.Task{t})
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&timeoutSeconds, "timeout-seconds", 0, "give up after this many seconds (0 = wait forever)")
	cmd.Flags().BoolVar(&passthru, "passthru", false, "print the task after waiting")
	return cmd
}

func newRemoveCmd(app *App) *cobra.Command {
	var passthru bool

	cmd := &cobra.Command{
		Use:   "remove <id...>",
		Short: "Remove completed tasks from their pools",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			tasks := make([]*task.Task, 0, len(args))
			for _, id := range args {
				t, err := app.resolveTask(id)
				if err != nil {
					return err
				}
				tasks = append(tasks, t)
			}
			removed, err := app.Scheduler().RemoveTasks(tasks)
			if err != nil {
				return err
			}
			if passthru {
				printTasks(cmd.OutOrStdout(), removed)
			} else {
				fmt.Fprintf(cmd.OutOrStdout(), "removed %d tasks\n", len(removed))
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&passthru, "passthru", false, "print the removed tasks")
	return cmd
}
