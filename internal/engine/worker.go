package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/dop251/goja"

	"taskpool/internal/task"
)

// Handlers receive stream items while a script runs. Any handler may be nil.
type Handlers struct {
	Output   func(v any)
	Error    func(msg string)
	Progress func(p task.ProgressRecord)
}

type runState struct {
	ctx context.Context
	h   Handlers
}

// Worker is one reusable script-engine context.
//
// Global state set by modules, variables, the init script or previous tasks
// persists for the lifetime of the worker. Exactly one task may use a worker
// at a time; the owning pool enforces that via check-out.
type Worker struct {
	id   int
	vm   *goja.Runtime
	tmpl *Template

	// initDone is the per-worker "already-ran" guard for the one-shot init
	// script. It survives across tasks dispatched to this worker.
	initDone bool

	// cur is only touched by the single goroutine running the worker.
	cur *runState
}

func (w *Worker) ID() int { return w.id }

// Run compiles and executes script with the given positional arguments.
//
// The script sees the arguments as the global `args` array. ctx is the
// composed cancellation (user cancel + deadline): when it fires, the runtime
// is interrupted and blocking builtins unwind, so Run returns only after the
// engine has actually stopped.
//
// The return value is the script's completion value (nil for undefined/null).
func (w *Worker) Run(ctx context.Context, script string, args []any, h Handlers) (any, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	prg, err := goja.Compile("task", script, false)
	if err != nil {
		return nil, fmt.Errorf("compile: %w", err)
	}

	if err := w.ensureInit(ctx, h); err != nil {
		return nil, err
	}

	if err := w.vm.Set("args", append([]any(nil), args...)); err != nil {
		return nil, fmt.Errorf("bind args: %w", err)
	}

	w.cur = &runState{ctx: ctx, h: h}
	defer func() { w.cur = nil }()

	v, err := w.runProgram(ctx, prg)
	if err != nil {
		return nil, err
	}
	if v == nil || goja.IsUndefined(v) || goja.IsNull(v) {
		return nil, nil
	}
	return v.Export(), nil
}

// ensureInit runs the template's init script on the worker's first use.
// The guard flips only on success, so a failed init is retried by the next
// task instead of being silently skipped forever.
func (w *Worker) ensureInit(ctx context.Context, h Handlers) error {
	if w.initDone || w.tmpl == nil || w.tmpl.init == nil {
		return nil
	}
	w.cur = &runState{ctx: ctx, h: h}
	defer func() { w.cur = nil }()
	if _, err := w.runProgram(ctx, w.tmpl.init); err != nil {
		return fmt.Errorf("init script: %w", err)
	}
	w.initDone = true
	return nil
}

// runProgram executes prg with an interrupt watcher: the moment ctx fires the
// runtime is interrupted, which unwinds JS execution cooperatively.
func (w *Worker) runProgram(ctx context.Context, prg *goja.Program) (goja.Value, error) {
	watchDone := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			w.vm.Interrupt(ctx.Err())
		case <-watchDone:
		}
	}()

	v, err := w.vm.RunProgram(prg)
	close(watchDone)
	w.vm.ClearInterrupt()

	if err != nil {
		return nil, normalizeRunError(ctx, err)
	}
	return v, nil
}

// normalizeRunError folds goja's error types into something the executor can
// classify: interrupts surface the context error, thrown JS values surface
// their message.
func normalizeRunError(ctx context.Context, err error) error {
	var intr *goja.InterruptedError
	if errors.As(err, &intr) {
		if cerr := ctx.Err(); cerr != nil {
			return cerr
		}
		return err
	}
	var exc *goja.Exception
	if errors.As(err, &exc) {
		// A builtin that unwound due to cancellation throws a GoError wrapping
		// the context error; keep that identity visible.
		if cerr := ctx.Err(); cerr != nil {
			return cerr
		}
		return fmt.Errorf("script error: %s", exc.Error())
	}
	return err
}
