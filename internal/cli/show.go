package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"taskpool/internal/tui"
)

func newShowCmd(app *App) *cobra.Command {
	var (
		refreshMS       int
		exitWhenIdle    bool
		includeProgress bool
		poolName        string
	)

	cmd := &cobra.Command{
		Use:   "show",
		Short: "Live refreshing table of tasks",
		RunE: func(cmd *cobra.Command, args []string) error {
			if refreshMS < 100 || refreshMS > 60000 {
				return fmt.Errorf("refresh-ms must be between 100 and 60000 (got %d)", refreshMS)
			}
			return tui.Show(cmd.Context(), app.Scheduler(), tui.Options{
				RefreshMS:       refreshMS,
				ExitWhenIdle:    exitWhenIdle,
				IncludeProgress: includeProgress,
				Pool:            poolName,
				Out:             cmd.OutOrStdout(),
			})
		},
	}

	cmd.Flags().IntVar(&refreshMS, "refresh-ms", 500, "refresh interval in milliseconds (100..60000)")
	cmd.Flags().BoolVar(&exitWhenIdle, "exit-when-idle", false, "return once no task is active")
	cmd.Flags().BoolVar(&includeProgress, "include-progress", false, "add a progress column")
	cmd.Flags().StringVar(&poolName, "pool", "", "restrict to one pool")
	return cmd
}
