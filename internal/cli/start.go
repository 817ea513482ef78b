package cli

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"taskpool/internal/scheduler"
	"taskpool/internal/task"
)

func newStartCmd(app *App) *cobra.Command {
	var (
		path            string
		args            []string
		name            string
		deadlineSeconds int
		poolName        string
		wait            bool
		receive         bool
	)

	cmd := &cobra.Command{
		Use:   "start [script]",
		Short: "Submit a script as a background task",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, posArgs []string) error {
			script := ""
			if len(posArgs) == 1 {
				script = posArgs[0]
			}
			if path != "" {
				if script != "" {
					return fmt.Errorf("pass either a script body or --path, not both")
				}
				b, err := os.ReadFile(path)
				if err != nil {
					return fmt.Errorf("reading script %s: %w", path, err)
				}
				script = string(b)
				if strings.TrimSpace(script) == "" {
					return fmt.Errorf("script file %s: %w", path, scheduler.ErrEmptyScript)
				}
			}

			taskArgs := make([]any, 0, len(args))
			for _, a := range args {
				taskArgs = append(taskArgs, a)
			}

			t, err := app.Scheduler().StartTask(scheduler.StartSpec{
				Script:   script,
				Args:     taskArgs,
				Deadline: time.Duration(deadlineSeconds) * time.Second,
				Name:     name,
				Pool:     poolName,
			})
			if err != nil {
				return err
			}

			if wait || receive {
				app.Scheduler().WaitTask(cmd.Context(), t, 0)
			}
			printTasks(cmd.OutOrStdout(), []*task.Task{t})
			if receive {
				return renderReceive(cmd.OutOrStdout(), t, true, false)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&path, "path", "", "read the script body from a file")
	cmd.Flags().StringArrayVar(&args, "arg", nil, "positional argument (repeatable)")
	cmd.Flags().StringVar(&name, "name", "", "optional task label")
	cmd.Flags().IntVar(&deadlineSeconds, "deadline-seconds", 0, "per-task deadline measured from run start (0 = none)")
	cmd.Flags().StringVar(&poolName, "pool", "", "target pool (default pool when empty)")
	cmd.Flags().BoolVar(&wait, "wait", false, "block until the task completes")
	cmd.Flags().BoolVar(&receive, "receive", false, "wait, then drain and print the output streams")
	return cmd
}
