package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"taskpool/internal/task"
)

func renderReceive(w io.Writer, t *task.Task, includeErrors, keep bool) error {
	for _, r := range t.ReceiveOutput(keep) {
		fmt.Fprintf(w, "%v\n", r.Value)
	}
	if includeErrors {
		for _, r := range t.ReceiveErrors(keep) {
			fmt.Fprintf(w, "error: %s\n", r.Message)
		}
	}
	return nil
}

func newReceiveCmd(app *App) *cobra.Command {
	var (
		includeErrors bool
		keep          bool
	)

	cmd := &cobra.Command{
		Use:   "receive <id>",
		Short: "Drain (or peek at) a task's captured output",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			t, err := app.resolveTask(args[0])
			if err != nil {
				return err
			}
			return renderReceive(cmd.OutOrStdout(), t, includeErrors, keep)
		},
	}
	cmd.Flags().BoolVar(&includeErrors, "errors", false, "include the error stream")
	cmd.Flags().BoolVar(&keep, "keep", false, "keep items buffered instead of draining")
	return cmd
}

func newReceiveProgressCmd(app *App) *cobra.Command {
	var keep bool

	cmd := &cobra.Command{
		Use:   "receive-progress <id>",
		Short: "Drain (or peek at) a task's progress records",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			t, err := app.resolveTask(args[0])
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			for _, p := range t.ReceiveProgress(keep) {
				fmt.Fprintf(w, "%3d%%  %s", p.PercentComplete, p.Activity)
				if p.Status != "" {
					fmt.Fprintf(w, " (%s)", p.Status)
				}
				fmt.Fprintln(w)
			}
			if lp := t.LastProgress(); lp != nil {
				fmt.Fprintf(w, "last: %d%%\n", lp.PercentComplete)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&keep, "keep", false, "keep records buffered instead of draining")
	return cmd
}
