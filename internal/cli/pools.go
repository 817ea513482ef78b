package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"taskpool/internal/modprobe"
	"taskpool/internal/scheduler"
)

func newPoolCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pool",
		Short: "Create, inspect or remove execution pools",
	}

	var (
		min, max         int
		retentionMinutes int
		modules          []string
		vars             []string
		init             string
	)
	create := &cobra.Command{
		Use:   "new <name>",
		Short: "Create a pool (or apply overrides to an existing one)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			upd := scheduler.Update{}
			if cmd.Flags().Changed("min") {
				upd.Min = intPtr(min)
			}
			if cmd.Flags().Changed("max") {
				upd.Max = intPtr(max)
			}
			if cmd.Flags().Changed("retention-minutes") {
				if retentionMinutes < 1 {
					return fmt.Errorf("retention-minutes must be >= 1 (got %d)", retentionMinutes)
				}
				upd.Retention = durPtr(time.Duration(retentionMinutes) * time.Minute)
			}
			sess := scheduler.SessionUpdate{}
			if cmd.Flags().Changed("module") {
				mods := append([]string(nil), modules...)
				sess.Modules = &mods
			}
			if cmd.Flags().Changed("var") {
				parsed, err := parseVars(vars)
				if err != nil {
					return err
				}
				sess.Variables = &parsed
			}
			if cmd.Flags().Changed("init") {
				sess.InitScript = strPtr(init)
			}

			info, err := app.Scheduler().CreatePool(args[0], upd, sess)
			if err != nil {
				return err
			}
			printPools(cmd.OutOrStdout(), []scheduler.PoolInfo{info})
			return nil
		},
	}
	create.Flags().IntVar(&min, "min", 0, "minimum workers")
	create.Flags().IntVar(&max, "max", 0, "maximum workers (admission limit)")
	create.Flags().IntVar(&retentionMinutes, "retention-minutes", 0, "minutes completed tasks stay queryable")
	create.Flags().StringArrayVar(&modules, "module", nil, "module name (repeatable)")
	create.Flags().StringArrayVar(&vars, "var", nil, "name=value variable (repeatable)")
	create.Flags().StringVar(&init, "init", "", "one-shot per-worker init script")

	get := &cobra.Command{
		Use:   "get [name]",
		Short: "List pools",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := ""
			if len(args) == 1 {
				name = args[0]
			}
			infos, err := app.Scheduler().GetPools(name)
			if err != nil {
				return err
			}
			printPools(cmd.OutOrStdout(), infos)
			return nil
		},
	}

	var force bool
	remove := &cobra.Command{
		Use:   "remove <name>",
		Short: "Destroy a non-default pool",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return app.Scheduler().RemovePool(args[0], force)
		},
	}
	remove.Flags().BoolVar(&force, "force", false, "cancel active tasks instead of refusing")

	cmd.AddCommand(create, get, remove)
	return cmd
}

func newTestModuleCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "test-module <name...>",
		Short: "Probe module availability on the search path",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			w := cmd.OutOrStdout()
			for _, r := range modprobe.CheckAll(args) {
				if r.Available {
					fmt.Fprintf(w, "%s: available (%s)\n", r.Name, r.Location)
				} else {
					fmt.Fprintf(w, "%s: missing - %s\n", r.Name, r.Message)
				}
			}
			return nil
		},
	}
}
