package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"taskpool/internal/scheduler"
)

func newSchedulerCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "scheduler",
		Short: "Inspect or change a pool's scheduler settings",
	}

	var getPool string
	get := &cobra.Command{
		Use:   "get",
		Short: "Print min/max/retention of a pool",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := app.Scheduler().GetSettings(getPool)
			if err != nil {
				return err
			}
			printSettings(cmd.OutOrStdout(), poolOrDefault(getPool), s)
			return nil
		},
	}
	get.Flags().StringVar(&getPool, "pool", "", "pool name (default pool when empty)")

	var (
		setPool          string
		min, max         int
		retentionMinutes int
	)
	set := &cobra.Command{
		Use:   "set",
		Short: "Change min/max/retention of a pool",
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
			s, err := app.Scheduler().Configure(setPool, upd)
			if err != nil {
				return err
			}
			printSettings(cmd.OutOrStdout(), poolOrDefault(setPool), s)
			return nil
		},
	}
	set.Flags().StringVar(&setPool, "pool", "", "pool name (default pool when empty)")
	set.Flags().IntVar(&min, "min", 0, "minimum workers")
	set.Flags().IntVar(&max, "max", 0, "maximum workers (admission limit)")
	set.Flags().IntVar(&retentionMinutes, "retention-minutes", 0, "minutes completed tasks stay queryable")

	cmd.AddCommand(get, set)
	return cmd
}

func newSessionCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "session",
		Short: "Inspect or change a pool's session state",
	}

	var getPool string
	get := &cobra.Command{
		Use:   "get",
		Short: "Print modules/variables/init of a pool",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := app.Scheduler().GetSessionSettings(getPool)
			if err != nil {
				return err
			}
			printSessionState(cmd.OutOrStdout(), poolOrDefault(getPool), s)
			return nil
		},
	}
	get.Flags().StringVar(&getPool, "pool", "", "pool name (default pool when empty)")

	var (
		setPool string
		modules []string
		vars    []string
		init    string
	)
	set := &cobra.Command{
		Use:   "set",
		Short: "Replace session fields and rebuild the pool's workers",
		RunE: func(cmd *cobra.Command, args []string) error {
			upd := scheduler.SessionUpdate{}
			if cmd.Flags().Changed("module") {
				mods := append([]string(nil), modules...)
				upd.Modules = &mods
			}
			if cmd.Flags().Changed("var") {
				parsed, err := parseVars(vars)
				if err != nil {
					return err
				}
				upd.Variables = &parsed
			}
			if cmd.Flags().Changed("init") {
				upd.InitScript = strPtr(init)
			}
			s, err := app.Scheduler().ConfigureSession(setPool, upd)
			if err != nil {
				return err
			}
			printSessionState(cmd.OutOrStdout(), poolOrDefault(setPool), s)
			return nil
		},
	}
	set.Flags().StringVar(&setPool, "pool", "", "pool name (default pool when empty)")
	set.Flags().StringArrayVar(&modules, "module", nil, "module name (repeatable; replaces the list)")
	set.Flags().StringArrayVar(&vars, "var", nil, "name=value variable (repeatable; replaces the map)")
	set.Flags().StringVar(&init, "init", "", "one-shot per-worker init script")

	cmd.AddCommand(get, set)
	return cmd
}

func poolOrDefault(name string) string {
	if name == "" {
		return scheduler.DefaultPoolName
	}
	return name
}

func parseVars(pairs []string) (map[string]any, error) {
	out := make(map[string]any, len(pairs))
	for _, p := range pairs {
		k, v, ok := cutVar(p)
		if !ok {
			return nil, fmt.Errorf("variable %q: expected name=value", p)
		}
		out[k] = v
	}
	return out, nil
}

func cutVar(s string) (string, string, bool) {
	for i := 0; i < len(s); i++ {
		if s[i] == '=' {
			if i == 0 {
				return "", "", false
			}
			return s[:i], s[i+1:], true
		}
	}
	return "", "", false
}
