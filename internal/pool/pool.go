// Package pool owns a bounded bank of reusable worker contexts plus the
// per-pool task index, admission gate and session settings.
package pool

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sort"
	"sync"
	"time"

	"taskpool/internal/engine"
	"taskpool/internal/task"
	logx "taskpool/pkg/logx"
)

const (
	DefaultMin       = 1
	DefaultRetention = 30 * time.Minute
)

// DefaultMax is max(2, logical CPUs).
func DefaultMax() int {
	n := runtime.NumCPU()
	if n < 2 {
		return 2
	}
	return n
}

var (
	// ErrActiveTasks rejects operations that need an idle pool.
	ErrActiveTasks = errors.New("tasks are active")
)

// Options are the pool's scheduler-level knobs.
type Options struct {
	Min       int
	Max       int
	Retention time.Duration
}

func (o Options) withDefaults() Options {
	if o.Min <= 0 {
		o.Min = DefaultMin
	}
	if o.Max <= 0 {
		o.Max = DefaultMax()
	}
	if o.Retention <= 0 {
		o.Retention = DefaultRetention
	}
	return o
}

// ValidateBounds rejects min/max combinations the gate cannot represent.
func ValidateBounds(min, max int) error {
	if min < 1 {
		return fmt.Errorf("min workers must be >= 1 (got %d)", min)
	}
	if max < min {
		return fmt.Errorf("max workers must be >= min workers (got min=%d max=%d)", min, max)
	}
	if max > MaxWorkersCap {
		return fmt.Errorf("max workers must be <= %d (got %d)", MaxWorkersCap, max)
	}
	return nil
}

// Pool is one named execution pool.
type Pool struct {
	name string
	log  logx.Logger

	mu        sync.Mutex
	min, max  int
	retention time.Duration
	settings  SessionSettings
	tmpl      *engine.Template
	bank      chan *engine.Worker
	created   int
	nextID    int
	tasks     map[string]*task.Task

	gate *gate
}

// New builds the pool: session settings are validated (every module probed)
// and Min workers are materialized eagerly so first submissions don't pay
// seeding latency.
func New(name string, opt Options, settings SessionSettings, log logx.Logger) (*Pool, error) {
	opt = opt.withDefaults()
	if err := ValidateBounds(opt.Min, opt.Max); err != nil {
		return nil, err
	}

	settings = settings.normalized()
	tmpl, err := buildTemplate(settings)
	if err != nil {
		return nil, err
	}

	p := &Pool{
		name:      name,
		log:       log.With(logx.String("pool", name)),
		min:       opt.Min,
		max:       opt.Max,
		retention: opt.Retention,
		settings:  settings,
		tmpl:      tmpl,
		bank:      make(chan *engine.Worker, opt.Max),
		tasks:     make(map[string]*task.Task),
		gate:      newGate(opt.Max),
	}

	if err := p.fillBankLocked(opt.Min); err != nil {
		return nil, err
	}

	p.log.Debug("pool created",
		logx.Int("min", opt.Min),
		logx.Int("max", opt.Max),
		logx.Duration("retention", opt.Retention),
		logx.Int("modules", len(settings.Modules)),
	)
	return p, nil
}

// fillBankLocked materializes workers up to n. Callers must either hold mu or
// have exclusive access (construction).
func (p *Pool) fillBankLocked(n int) error {
	for p.created < n {
		w, err := p.tmpl.NewWorker(p.nextID)
		if err != nil {
			return err
		}
		p.nextID++
		p.created++
		p.bank <- w
	}
	return nil
}

func (p *Pool) Name() string { return p.name }

func (p *Pool) Min() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.min
}

func (p *Pool) Max() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.max
}

func (p *Pool) Retention() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.retention
}

func (p *Pool) SetRetention(d time.Duration) {
	p.mu.Lock()
	p.retention = d
	p.mu.Unlock()
}

// Settings returns a copy of the pool's session settings.
func (p *Pool) Settings() SessionSettings {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.settings.Clone()
}

// Acquire takes one admission permit; at most Max tasks of this pool run at
// once. ctx is typically the task's cancel context so a pre-start Stop
// unblocks the wait.
func (p *Pool) Acquire(ctx context.Context) error {
	return p.gate.Acquire(ctx)
}

// Release returns one admission permit.
func (p *Pool) Release() {
	p.gate.Release()
}

// Checkout lends a worker to the caller. With an admission permit held this
// returns promptly: either a banked worker, a freshly materialized one (bank
// under Max), or the next one checked back in.
func (p *Pool) Checkout(ctx context.Context) (*engine.Worker, error) {
	p.mu.Lock()
	select {
	case w := <-p.bank:
		p.mu.Unlock()
		return w, nil
	default:
	}
	if p.created < p.max {
		p.created++
		id := p.nextID
		p.nextID++
		tmpl := p.tmpl
		p.mu.Unlock()

		w, err := tmpl.NewWorker(id)
		if err != nil {
			p.mu.Lock()
			p.created--
			p.mu.Unlock()
			return nil, err
		}
		return w, nil
	}
	bank := p.bank
	p.mu.Unlock()

	if ctx == nil {
		ctx = context.Background()
	}
	select {
	case w := <-bank:
		return w, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Checkin returns a worker to the bank. A worker that does not fit (the bank
// shrank below the number of outstanding workers) is discarded; the worker's
// template generation is not checked.
func (p *Pool) Checkin(w *engine.Worker) {
	if w == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	select {
	case p.bank <- w:
	default:
		// Bank shrank below the number of outstanding workers; drop.
		if p.created > 0 {
			p.created--
		}
	}
}

// AddTask indexes a submitted task.
func (p *Pool) AddTask(t *task.Task) {
	p.mu.Lock()
	p.tasks[t.ID] = t
	p.mu.Unlock()
}

// Task looks a task up by id; nil when unknown or evicted.
func (p *Pool) Task(id string) *task.Task {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.tasks[id]
}

// Tasks returns every indexed task ordered by CreatedAt.
func (p *Pool) Tasks() []*task.Task {
	p.mu.Lock()
	out := make([]*task.Task, 0, len(p.tasks))
	for _, t := range p.tasks {
		out = append(out, t)
	}
	p.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

// RemoveTask drops a task from the index. It does not stop anything.
func (p *Pool) RemoveTask(id string) {
	p.mu.Lock()
	delete(p.tasks, id)
	p.mu.Unlock()
}

// TaskCount reports the index size.
func (p *Pool) TaskCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.tasks)
}

// ActiveCount reports tasks in Created/Scheduled/Running.
func (p *Pool) ActiveCount() int {
	p.mu.Lock()
	ts := make([]*task.Task, 0, len(p.tasks))
	for _, t := range p.tasks {
		ts = append(ts, t)
	}
	p.mu.Unlock()

	n := 0
	for _, t := range ts {
		if t.Active() {
			n++
		}
	}
	return n
}

// CancelActive fires the cancel signal of every active task (forced removal).
func (p *Pool) CancelActive() {
	for _, t := range p.Tasks() {
		if t.Active() {
			t.Cancel()
		}
	}
}

// Sweep evicts tasks whose terminal age reached the pool's retention.
// Active tasks are never evicted. Returns the evicted tasks.
func (p *Pool) Sweep(now time.Time) []*task.Task {
	p.mu.Lock()
	retention := p.retention
	ts := make([]*task.Task, 0, len(p.tasks))
	for _, t := range p.tasks {
		ts = append(ts, t)
	}
	p.mu.Unlock()

	var evicted []*task.Task
	for _, t := range ts {
		done := t.CompletedAt()
		if done.IsZero() {
			continue
		}
		if now.Sub(done) >= retention {
			evicted = append(evicted, t)
		}
	}

	if len(evicted) > 0 {
		p.mu.Lock()
		for _, t := range evicted {
			delete(p.tasks, t.ID)
		}
		p.mu.Unlock()
	}
	return evicted
}

// Rebuild atomically replaces the session settings, the template and the
// worker bank. Rejected while any task is active: workers keep engine state,
// so a partial rebuild would leak old session state into new tasks.
func (p *Pool) Rebuild(settings SessionSettings) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if n := p.activeCountLocked(); n > 0 {
		return fmt.Errorf("cannot change session state of pool %q while %d tasks are active; wait or stop them first: %w",
			p.name, n, ErrActiveTasks)
	}

	settings = settings.normalized()
	tmpl, err := buildTemplate(settings)
	if err != nil {
		// No state mutated: old template and workers stay in force.
		return err
	}

	p.settings = settings
	p.tmpl = tmpl
	p.drainBankLocked()
	if err := p.fillBankLocked(p.min); err != nil {
		return err
	}

	p.log.Info("session state rebuilt",
		logx.Int("modules", len(settings.Modules)),
		logx.Int("variables", len(settings.Variables)),
		logx.Bool("init", settings.InitScript != ""),
	)
	return nil
}

func (p *Pool) activeCountLocked() int {
	n := 0
	for _, t := range p.tasks {
		if t.Active() {
			n++
		}
	}
	return n
}

func (p *Pool) drainBankLocked() {
	for {
		select {
		case <-p.bank:
			p.created--
		default:
			p.created = 0
			return
		}
	}
}

// Resize propagates new min/max to the gate and the worker bank before
// recording them. Shrinking blocks (bounded by ctx) until running tasks
// release enough permits; on failure nothing changes.
func (p *Pool) Resize(ctx context.Context, min, max int) error {
	if err := ValidateBounds(min, max); err != nil {
		return err
	}

	if err := p.gate.Resize(ctx, max); err != nil {
		return fmt.Errorf("shrinking pool %q from %d to %d workers: waited for running tasks without success: %w",
			p.name, p.Max(), max, err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if cap(p.bank) != max {
		old := p.bank
		p.bank = make(chan *engine.Worker, max)
	drain:
		for {
			select {
			case w := <-old:
				select {
				case p.bank <- w:
				default:
					p.created--
				}
			default:
				break drain
			}
		}
	}

	p.min = min
	p.max = max
	return p.fillBankLocked(min)
}
