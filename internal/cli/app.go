// Package cli is the verb-style command surface over the scheduler: thin
// parsers that forward to scheduler operations and print the public DTO
// shapes. The console verb is the persistent-session mode; one-shot verbs
// build a scheduler for their own lifetime.
package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"taskpool/internal/config"
	"taskpool/internal/eventbus"
	"taskpool/internal/pool"
	"taskpool/internal/scheduler"
	logx "taskpool/pkg/logx"
)

// App carries the process-wide scheduler and logging service shared by every
// verb (spec note: an explicit object handed to command handlers, not a
// package global).
type App struct {
	ConfigPath string
	LogLevel   string

	Out io.Writer

	logSvc *logx.Service
	log    logx.Logger
	sched  *scheduler.Scheduler
	cfgMgr *config.Manager
}

func NewApp() *App {
	return &App{Out: os.Stdout}
}

func (a *App) Logger() logx.Logger { return a.log }

func (a *App) Scheduler() *scheduler.Scheduler { return a.sched }

// Bootstrap builds logging, the scheduler and (when a config file is given)
// applies the declared pools.
func (a *App) Bootstrap() error {
	logCfg := logx.Config{Level: a.LogLevel, Console: true}

	var cfg *config.Config
	if a.ConfigPath != "" {
		a.cfgMgr = config.NewManager(a.ConfigPath)
		c, err := a.cfgMgr.Load()
		if err != nil {
			return fmt.Errorf("loading config %s: %w", a.ConfigPath, err)
		}
		cfg = c
		logCfg = mergeLogging(logCfg, c.Logging, a.LogLevel)
	}

	a.logSvc, a.log = logx.New(logCfg)
	if a.cfgMgr != nil {
		a.cfgMgr.SetLogger(a.log)
		a.cfgMgr.SetValidator(func(_ context.Context, c *config.Config) error {
			return validateConfig(c)
		})
	}

	s, err := scheduler.New(a.log, eventbus.New())
	if err != nil {
		return err
	}
	a.sched = s

	if cfg != nil {
		if err := a.applyPools(cfg); err != nil {
			return err
		}
	}
	return nil
}

// Shutdown disposes the scheduler and flushes logging.
func (a *App) Shutdown(ctx context.Context) {
	if a.sched != nil {
		_ = a.sched.Close(ctx)
	}
	if a.logSvc != nil {
		_ = a.logSvc.Close()
	}
}

func mergeLogging(base logx.Config, lc config.LoggingConfig, levelFlag string) logx.Config {
	if lc.Level != "" && levelFlag == "" {
		base.Level = lc.Level
	}
	if lc.Console != nil {
		base.Console = *lc.Console
	}
	if lc.File != "" {
		base.File = logx.FileConfig{Enabled: true, Path: lc.File}
	}
	return base
}

func validateConfig(c *config.Config) error {
	for _, pc := range c.Pools {
		if pc.Name == "" {
			return fmt.Errorf("pools: name is required")
		}
		min := pc.Min
		if min == 0 {
			min = pool.DefaultMin
		}
		max := pc.Max
		if max == 0 {
			max = pool.DefaultMax()
		}
		if err := pool.ValidateBounds(min, max); err != nil {
			return fmt.Errorf("pool %q: %w", pc.Name, err)
		}
		if _, err := config.ParseDurationField("pools."+pc.Name+".retention", pc.Retention); err != nil {
			return err
		}
	}
	return nil
}

// applyPools creates (or reconfigures) every declared pool.
func (a *App) applyPools(c *config.Config) error {
	for _, pc := range c.Pools {
		retention, err := config.ParseDurationOrDefault("pools."+pc.Name+".retention", pc.Retention, pool.DefaultRetention)
		if err != nil {
			return err
		}

		upd := scheduler.Update{Retention: &retention}
		if pc.Min != 0 {
			upd.Min = intPtr(pc.Min)
		}
		if pc.Max != 0 {
			upd.Max = intPtr(pc.Max)
		}
		sess := scheduler.SessionUpdate{}
		if len(pc.Modules) > 0 {
			mods := append([]string(nil), pc.Modules...)
			sess.Modules = &mods
		}
		if len(pc.Variables) > 0 {
			vars := pc.Variables
			sess.Variables = &vars
		}
		if pc.Init != "" {
			init := pc.Init
			sess.InitScript = &init
		}

		if _, err := a.sched.CreatePool(pc.Name, upd, sess); err != nil {
			return fmt.Errorf("pool %q: %w", pc.Name, err)
		}
	}
	return nil
}

// watchConfig applies hot-reloaded configs until ctx is done (console mode).
// Session changes of an active pool fail fast inside the scheduler; that is
// logged. That pool's min/max/retention changes stay applied, but pools
// declared after the failing one are not applied by that reload.
func (a *App) watchConfig(ctx context.Context) {
	if a.cfgMgr == nil {
		return
	}
	updates := a.cfgMgr.Subscribe(1)
	defer a.cfgMgr.Unsubscribe(updates)

	go func() { _ = a.cfgMgr.Watch(ctx) }()

	for {
		select {
		case <-ctx.Done():
			return
		case c, ok := <-updates:
			if !ok {
				return
			}
			if a.logSvc != nil {
				a.logSvc.Apply(mergeLogging(logx.Config{Level: a.LogLevel, Console: true}, c.Logging, a.LogLevel))
			}
			if err := a.applyPools(c); err != nil {
				a.log.Warn("config reload partially applied", logx.Err(err))
			} else {
				a.log.Info("config reload applied", logx.Int("pools", len(c.Pools)))
			}
		}
	}
}

func intPtr(v int) *int { return &v }

func durPtr(v time.Duration) *time.Duration { return &v }

func strPtr(v string) *string { return &v }
