package scheduler

import (
	"time"

	"taskpool/internal/modprobe"
	"taskpool/internal/pool"
)

// Settings is the immutable scheduler-level view of one pool.
type Settings struct {
	MinWorkers int
	MaxWorkers int
	Retention  time.Duration
}

// SessionState is the immutable session-settings view of one pool.
type SessionState struct {
	Modules    []string
	Variables  map[string]any
	InitScript string
}

// PoolInfo is the combined external view of one pool.
type PoolInfo struct {
	Name       string
	MinWorkers int
	MaxWorkers int
	Retention  time.Duration
	Modules    []string
	InitScript string

	TaskCount   int
	ActiveCount int
}

// ModuleCheckResult re-exports the probe result shape for external consumers.
type ModuleCheckResult = modprobe.Result

func settingsOf(p *pool.Pool) Settings {
	return Settings{MinWorkers: p.Min(), MaxWorkers: p.Max(), Retention: p.Retention()}
}

func sessionStateOf(p *pool.Pool) SessionState {
	s := p.Settings()
	return SessionState{Modules: s.Modules, Variables: s.Variables, InitScript: s.InitScript}
}

func infoOf(p *pool.Pool) PoolInfo {
	s := p.Settings()
	return PoolInfo{
		Name:        p.Name(),
		MinWorkers:  p.Min(),
		MaxWorkers:  p.Max(),
		Retention:   p.Retention(),
		Modules:     s.Modules,
		InitScript:  s.InitScript,
		TaskCount:   p.TaskCount(),
		ActiveCount: p.ActiveCount(),
	}
}
