package engine

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/dop251/goja"
	"github.com/google/uuid"

	"taskpool/internal/task"
)

// installBuiltins wires the host functions and the two base libraries
// ("path", "util") into a fresh runtime. Stream builtins route through the
// worker's current run state, so handlers rebind per task without touching
// the VM.
func (w *Worker) installBuiltins() error {
	rt := w.vm

	if err := rt.Set("print", func(call goja.FunctionCall) goja.Value {
		if st := w.cur; st != nil && st.h.Output != nil {
			for _, a := range call.Arguments {
				st.h.Output(a.Export())
			}
		}
		return goja.Undefined()
	}); err != nil {
		return err
	}

	if err := rt.Set("writeError", func(call goja.FunctionCall) goja.Value {
		if st := w.cur; st != nil && st.h.Error != nil {
			st.h.Error(call.Argument(0).String())
		}
		return goja.Undefined()
	}); err != nil {
		return err
	}

	if err := rt.Set("progress", func(call goja.FunctionCall) goja.Value {
		st := w.cur
		if st == nil || st.h.Progress == nil {
			return goja.Undefined()
		}
		pct := int(call.Argument(0).ToInteger())
		if pct < 0 {
			pct = 0
		}
		if pct > 100 {
			pct = 100
		}
		rec := task.ProgressRecord{
			PercentComplete: pct,
			Time:            time.Now().UTC(),
		}
		if a := call.Argument(1); !goja.IsUndefined(a) && !goja.IsNull(a) {
			rec.Activity = a.String()
		}
		if s := call.Argument(2); !goja.IsUndefined(s) && !goja.IsNull(s) {
			rec.Status = s.String()
		}
		st.h.Progress(rec)
		return goja.Undefined()
	}); err != nil {
		return err
	}

	// sleep(ms) watches the composed cancellation so a blocked script still
	// stops cooperatively; the interrupt alone can't unwind a parked builtin.
	if err := rt.Set("sleep", func(call goja.FunctionCall) goja.Value {
		ms := call.Argument(0).ToInteger()
		if ms < 0 {
			ms = 0
		}
		ctx := context.Background()
		if st := w.cur; st != nil && st.ctx != nil {
			ctx = st.ctx
		}
		tmr := time.NewTimer(time.Duration(ms) * time.Millisecond)
		defer tmr.Stop()
		select {
		case <-tmr.C:
		case <-ctx.Done():
			panic(rt.NewGoError(ctx.Err()))
		}
		return goja.Undefined()
	}); err != nil {
		return err
	}

	// Base library: path verbs.
	p := rt.NewObject()
	if err := p.Set("join", func(parts ...string) string { return filepath.Join(parts...) }); err != nil {
		return err
	}
	if err := p.Set("base", filepath.Base); err != nil {
		return err
	}
	if err := p.Set("dir", filepath.Dir); err != nil {
		return err
	}
	if err := p.Set("ext", filepath.Ext); err != nil {
		return err
	}
	if err := p.Set("abs", func(s string) string {
		a, err := filepath.Abs(s)
		if err != nil {
			return s
		}
		return a
	}); err != nil {
		return err
	}
	if err := rt.Set("path", p); err != nil {
		return err
	}

	// Base library: util verbs.
	u := rt.NewObject()
	if err := u.Set("env", os.Getenv); err != nil {
		return err
	}
	if err := u.Set("hostname", func() string {
		h, _ := os.Hostname()
		return h
	}); err != nil {
		return err
	}
	if err := u.Set("now", func() string { return time.Now().UTC().Format(time.RFC3339Nano) }); err != nil {
		return err
	}
	if err := u.Set("uuid", uuid.NewString); err != nil {
		return err
	}
	return rt.Set("util", u)
}
