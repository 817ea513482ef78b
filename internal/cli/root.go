package cli

import (
	"context"

	"github.com/spf13/cobra"
)

// NewRootCommand builds the full verb tree bound to app. The same tree is
// rebuilt per console line so flag state never leaks between invocations.
func NewRootCommand(ctx context.Context, app *App) *cobra.Command {
	root := &cobra.Command{
		Use:           "taskpool",
		Short:         "Multi-pool background task scheduler for embedded scripts",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetContext(ctx)
	if app.Out != nil {
		root.SetOut(app.Out)
	}

	root.AddCommand(
		newStartCmd(app),
		newGetCmd(app),
		newReceiveCmd(app),
		newReceiveProgressCmd(app),
		newStopCmd(app),
		newWaitCmd(app),
		newRemoveCmd(app),
		newSchedulerCmd(app),
		newSessionCmd(app),
		newTestModuleCmd(app),
		newPoolCmd(app),
		newShowCmd(app),
	)
	return root
}

// Execute is the process entry: parses global flags, bootstraps the app and
// runs one verb (or the console).
func Execute(ctx context.Context) error {
	app := NewApp()

	root := NewRootCommand(ctx, app)
	root.PersistentFlags().StringVar(&app.ConfigPath, "config", "", "path to config file (json or yaml)")
	root.PersistentFlags().StringVar(&app.LogLevel, "log-level", "", "log level (trace|debug|info|warn|error)")

	root.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		return app.Bootstrap()
	}
	root.PersistentPostRun = func(cmd *cobra.Command, args []string) {
		app.Shutdown(context.Background())
	}

	root.AddCommand(newConsoleCmd(app))
	return root.ExecuteContext(ctx)
}
