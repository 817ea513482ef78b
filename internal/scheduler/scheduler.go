// Package scheduler is the façade over pools, tasks and events: submission,
// lookup, waiting, configuration, retention sweeps and lifecycle fan-out.
package scheduler

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"golang.org/x/time/rate"

	"taskpool/internal/eventbus"
	"taskpool/internal/pool"
	"taskpool/internal/task"
	logx "taskpool/pkg/logx"
)

// DefaultPoolName is the pool every submission lands in when no pool is
// named. It always exists and cannot be removed.
const DefaultPoolName = "default"

// shrinkWait bounds how long Configure blocks while absorbing permits from
// running tasks. Past it the call fails and settings stay unchanged.
const shrinkWait = 30 * time.Second

// Scheduler owns the pool registry and drives task execution.
//
// Configuration mutations serialize through the scheduler lock; per-task hot
// paths (streams, status, waiting) never take it.
type Scheduler struct {
	log logx.Logger
	bus eventbus.Bus

	mu     sync.Mutex
	pools  map[string]*pool.Pool
	closed bool

	sweeper *cron.Cron
	wg      sync.WaitGroup

	// progressLog throttles progress debug lines; capture and event
	// publication stay 1:1 regardless.
	progressLog *rate.Limiter
}

// New constructs the scheduler with its irremovable default pool and starts
// the once-a-minute retention sweep.
func New(log logx.Logger, bus eventbus.Bus) (*Scheduler, error) {
	if bus == nil {
		bus = eventbus.New()
	}
	s := &Scheduler{
		log:         log.With(logx.String("comp", "scheduler")),
		bus:         bus,
		pools:       make(map[string]*pool.Pool),
		progressLog: rate.NewLimiter(rate.Limit(5), 10),
	}

	def, err := pool.New(DefaultPoolName, pool.Options{}, pool.SessionSettings{}, log)
	if err != nil {
		return nil, fmt.Errorf("creating default pool: %w", err)
	}
	s.pools[DefaultPoolName] = def

	s.sweeper = cron.New()
	if _, err := s.sweeper.AddFunc("@every 1m", func() { s.sweepOnce(time.Now()) }); err != nil {
		return nil, fmt.Errorf("registering retention sweep: %w", err)
	}
	s.sweeper.Start()

	s.log.Debug("scheduler started", logx.Int("default_max", def.Max()))
	return s, nil
}

// Events exposes the process-wide lifecycle bus.
func (s *Scheduler) Events() eventbus.Bus { return s.bus }

func normalizeName(name string) string {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		name = DefaultPoolName
	}
	return name
}

func (s *Scheduler) checkOpenLocked() error {
	if s.closed {
		return ErrDisposed
	}
	return nil
}

func (s *Scheduler) lookup(name string) (*pool.Pool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkOpenLocked(); err != nil {
		return nil, err
	}
	p := s.pools[normalizeName(name)]
	if p == nil {
		return nil, fmt.Errorf("pool %q: %w", normalizeName(name), ErrPoolNotFound)
	}
	return p, nil
}

func (s *Scheduler) allPools() ([]*pool.Pool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkOpenLocked(); err != nil {
		return nil, err
	}
	out := make([]*pool.Pool, 0, len(s.pools))
	for _, p := range s.pools {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name() < out[j].Name() })
	return out, nil
}

// StartSpec describes one submission.
type StartSpec struct {
	Script   string
	Args     []any
	Deadline time.Duration
	Name     string
	Pool     string
}

// StartTask admits a task into its pool and begins executing it on a
// background goroutine. The returned handle can be polled, awaited, drained,
// cancelled or removed.
func (s *Scheduler) StartTask(spec StartSpec) (*task.Task, error) {
	if strings.TrimSpace(spec.Script) == "" {
		return nil, ErrEmptyScript
	}
	p, err := s.lookup(spec.Pool)
	if err != nil {
		return nil, err
	}

	t := task.New(p.Name(), spec.Name, spec.Script, spec.Args, spec.Deadline)
	p.AddTask(t)
	s.publish(eventbus.KindCreated, t, nil)

	s.wg.Add(1)
	go s.run(p, t)
	return t, nil
}

// GetTasks lists tasks ordered by CreatedAt. poolName filters to one pool
// (error when missing); ids, when non-empty, filter further.
func (s *Scheduler) GetTasks(poolName string, ids []string) ([]*task.Task, error) {
	var pools []*pool.Pool
	if strings.TrimSpace(poolName) != "" {
		p, err := s.lookup(poolName)
		if err != nil {
			return nil, err
		}
		pools = []*pool.Pool{p}
	} else {
		var err error
		pools, err = s.allPools()
		if err != nil {
			return nil, err
		}
	}

	var out []*task.Task
	for _, p := range pools {
		out = append(out, p.Tasks()...)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})

	if len(ids) == 0 {
		return out, nil
	}
	want := make(map[string]bool, len(ids))
	for _, id := range ids {
		want[id] = true
	}
	filtered := out[:0]
	for _, t := range out {
		if want[t.ID] {
			filtered = append(filtered, t)
		}
	}
	return filtered, nil
}

// GetTask looks a task up by id across every pool; nil when unknown or
// already evicted by retention.
func (s *Scheduler) GetTask(id string) *task.Task {
	pools, err := s.allPools()
	if err != nil {
		return nil
	}
	for _, p := range pools {
		if t := p.Task(id); t != nil {
			return t
		}
	}
	return nil
}

// StopTask fires the task's cancel signal. Returns true when the task was
// still stoppable; terminal tasks are a no-op returning false.
func (s *Scheduler) StopTask(t *task.Task) bool {
	if t == nil {
		return false
	}
	return t.Cancel()
}

// WaitTask blocks until the task completes, timeout elapses (0 = unbounded)
// or ctx fires. True means the task reached a terminal state.
func (s *Scheduler) WaitTask(ctx context.Context, t *task.Task, timeout time.Duration) bool {
	if t == nil {
		return false
	}
	return t.Wait(ctx, timeout)
}

// RemoveTasks drops tasks from their pools' indexes. Any active task fails
// the whole call and nothing is removed; stop and wait first.
func (s *Scheduler) RemoveTasks(tasks []*task.Task) ([]*task.Task, error) {
	for _, t := range tasks {
		if t == nil {
			continue
		}
		if t.Active() {
			return nil, fmt.Errorf("task %s is %s; stop it and wait for completion before removing: %w",
				t.ID, t.Status(), ErrTaskActive)
		}
	}

	removed := make([]*task.Task, 0, len(tasks))
	for _, t := range tasks {
		if t == nil {
			continue
		}
		p, err := s.lookup(t.PoolName)
		if err != nil {
			continue
		}
		if p.Task(t.ID) == nil {
			continue
		}
		p.RemoveTask(t.ID)
		removed = append(removed, t)
	}
	return removed, nil
}

// Update carries optional scheduler-setting overrides; nil means "keep".
type Update struct {
	Min       *int
	Max       *int
	Retention *time.Duration
}

// Configure applies min/max/retention changes to a pool. Growing the
// admission gate releases permits immediately; shrinking blocks (bounded)
// until running tasks drain the delta. Min/max propagate to the worker bank
// before the recorded values change.
func (s *Scheduler) Configure(poolName string, upd Update) (Settings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkOpenLocked(); err != nil {
		return Settings{}, err
	}
	p := s.pools[normalizeName(poolName)]
	if p == nil {
		return Settings{}, fmt.Errorf("pool %q: %w", normalizeName(poolName), ErrPoolNotFound)
	}

	min, max := p.Min(), p.Max()
	if upd.Min != nil {
		min = *upd.Min
	}
	if upd.Max != nil {
		max = *upd.Max
	}
	if err := pool.ValidateBounds(min, max); err != nil {
		return Settings{}, err
	}

	if min != p.Min() || max != p.Max() {
		ctx, cancel := context.WithTimeout(context.Background(), shrinkWait)
		err := p.Resize(ctx, min, max)
		cancel()
		if err != nil {
			return Settings{}, err
		}
	}
	if upd.Retention != nil {
		if *upd.Retention <= 0 {
			return Settings{}, fmt.Errorf("retention must be > 0 (got %s)", *upd.Retention)
		}
		p.SetRetention(*upd.Retention)
	}

	return settingsOf(p), nil
}

// GetSettings returns the pool's scheduler settings.
func (s *Scheduler) GetSettings(poolName string) (Settings, error) {
	p, err := s.lookup(poolName)
	if err != nil {
		return Settings{}, err
	}
	return settingsOf(p), nil
}

// SessionUpdate carries optional session-setting overrides; nil means "keep".
type SessionUpdate struct {
	Modules    *[]string
	Variables  *map[string]any
	InitScript *string
}

func (u SessionUpdate) empty() bool {
	return u.Modules == nil && u.Variables == nil && u.InitScript == nil
}

// ConfigureSession merges the update into the pool's session settings and
// rebuilds its worker bank. Fails fast, with no visible change, when any
// module is unavailable or the pool has active tasks.
func (s *Scheduler) ConfigureSession(poolName string, upd SessionUpdate) (SessionState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkOpenLocked(); err != nil {
		return SessionState{}, err
	}
	p := s.pools[normalizeName(poolName)]
	if p == nil {
		return SessionState{}, fmt.Errorf("pool %q: %w", normalizeName(poolName), ErrPoolNotFound)
	}

	next := p.Settings()
	if upd.Modules != nil {
		next.Modules = append([]string(nil), (*upd.Modules)...)
	}
	if upd.Variables != nil {
		next.Variables = make(map[string]any, len(*upd.Variables))
		for k, v := range *upd.Variables {
			next.Variables[k] = v
		}
	}
	if upd.InitScript != nil {
		next.InitScript = *upd.InitScript
	}

	if err := p.Rebuild(next); err != nil {
		return SessionState{}, err
	}
	return sessionStateOf(p), nil
}

// GetSessionSettings returns the pool's session settings.
func (s *Scheduler) GetSessionSettings(poolName string) (SessionState, error) {
	p, err := s.lookup(poolName)
	if err != nil {
		return SessionState{}, err
	}
	return sessionStateOf(p), nil
}

// CreatePool creates a pool. When the name already exists it applies the
// given overrides to the existing pool through the regular update paths.
func (s *Scheduler) CreatePool(name string, upd Update, sess SessionUpdate) (PoolInfo, error) {
	key := normalizeName(name)

	s.mu.Lock()
	if err := s.checkOpenLocked(); err != nil {
		s.mu.Unlock()
		return PoolInfo{}, err
	}
	existing := s.pools[key]
	s.mu.Unlock()

	if existing != nil {
		if _, err := s.Configure(key, upd); err != nil {
			return PoolInfo{}, err
		}
		if !sess.empty() {
			if _, err := s.ConfigureSession(key, sess); err != nil {
				return PoolInfo{}, err
			}
		}
		return infoOf(existing), nil
	}

	opt := pool.Options{}
	if upd.Min != nil {
		opt.Min = *upd.Min
	}
	if upd.Max != nil {
		opt.Max = *upd.Max
	}
	if upd.Retention != nil {
		opt.Retention = *upd.Retention
	}
	settings := pool.SessionSettings{}
	if sess.Modules != nil {
		settings.Modules = append([]string(nil), (*sess.Modules)...)
	}
	if sess.Variables != nil {
		settings.Variables = *sess.Variables
	}
	if sess.InitScript != nil {
		settings.InitScript = *sess.InitScript
	}

	p, err := pool.New(key, opt, settings, s.log)
	if err != nil {
		return PoolInfo{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkOpenLocked(); err != nil {
		return PoolInfo{}, err
	}
	// Lost a race to another creator: keep the first, discard ours.
	if first := s.pools[key]; first != nil {
		return infoOf(first), nil
	}
	s.pools[key] = p
	s.log.Info("pool created", logx.String("pool", key), logx.Int("max", p.Max()))
	return infoOf(p), nil
}

// RemovePool destroys a non-default pool. With active tasks the call fails
// unless force is set, in which case every active task's cancel signal fires
// and the pool is dropped without waiting.
func (s *Scheduler) RemovePool(name string, force bool) error {
	key := normalizeName(name)
	if key == DefaultPoolName {
		return ErrDefaultPool
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkOpenLocked(); err != nil {
		return err
	}
	p := s.pools[key]
	if p == nil {
		return fmt.Errorf("pool %q: %w", key, ErrPoolNotFound)
	}
	if n := p.ActiveCount(); n > 0 && !force {
		return fmt.Errorf("pool %q has %d active tasks; stop them or pass force: %w", key, n, pool.ErrActiveTasks)
	}
	p.CancelActive()
	delete(s.pools, key)
	s.log.Info("pool removed", logx.String("pool", key), logx.Bool("force", force))
	return nil
}

// GetPools lists pool infos; a non-empty name filters to that pool (error
// when missing).
func (s *Scheduler) GetPools(name string) ([]PoolInfo, error) {
	if strings.TrimSpace(name) != "" {
		p, err := s.lookup(name)
		if err != nil {
			return nil, err
		}
		return []PoolInfo{infoOf(p)}, nil
	}
	pools, err := s.allPools()
	if err != nil {
		return nil, err
	}
	out := make([]PoolInfo, 0, len(pools))
	for _, p := range pools {
		out = append(out, infoOf(p))
	}
	return out, nil
}

// sweepOnce evicts every pool's expired terminal tasks. Driven by the cron
// tick; exposed for tests.
func (s *Scheduler) sweepOnce(now time.Time) {
	pools, err := s.allPools()
	if err != nil {
		return
	}
	for _, p := range pools {
		evicted := p.Sweep(now)
		if len(evicted) > 0 {
			s.log.Debug("retention sweep evicted tasks",
				logx.String("pool", p.Name()),
				logx.Int("evicted", len(evicted)),
			)
		}
	}
}

// Close disposes the scheduler: the sweeper stops, every active task's
// cancel signal fires, and executors are awaited (bounded by ctx). All
// subsequent operations fail with ErrDisposed.
func (s *Scheduler) Close(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	pools := make([]*pool.Pool, 0, len(s.pools))
	for _, p := range s.pools {
		pools = append(pools, p)
	}
	sweeper := s.sweeper
	s.mu.Unlock()

	if sweeper != nil {
		sweeper.Stop()
	}
	for _, p := range pools {
		p.CancelActive()
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		s.log.Debug("scheduler stopped")
		return nil
	case <-ctx.Done():
		s.log.Warn("scheduler stop timed out", logx.Err(ctx.Err()))
		return ctx.Err()
	}
}

func (s *Scheduler) publish(k eventbus.Kind, t *task.Task, pr *task.ProgressRecord) {
	s.bus.Publish(eventbus.Event{Kind: k, Task: t, Progress: pr})
}
