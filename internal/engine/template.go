// Package engine hosts the reusable script-engine worker contexts.
//
// A worker wraps one goja runtime seeded from a pool template: the base
// builtins, the configured modules (in declaration order), the preset
// variables, and an optional one-shot init script that runs on the worker's
// first use and never again. Runtimes are not thread-safe; the pool's
// check-out protocol guarantees one task per worker at a time.
package engine

import (
	"fmt"
	"os"

	"github.com/dop251/goja"

	"taskpool/internal/modprobe"
)

// ModuleSource is a resolved module: a probe result that came back available.
type ModuleSource struct {
	Name     string
	Location string
}

// Variable is one preset global installed into every worker.
type Variable struct {
	Name  string
	Value any
}

type compiledModule struct {
	name string
	prg  *goja.Program
}

// Template is the canonical seeded initial state workers are materialized
// from. It is immutable once built; rebuilding a pool swaps the whole
// template and the worker bank with it.
type Template struct {
	modules []compiledModule
	vars    []Variable
	init    *goja.Program
}

// NewTemplate compiles module files and the init script into a template.
// Builtin module names are skipped here; every worker carries them anyway.
func NewTemplate(mods []ModuleSource, vars []Variable, initScript string) (*Template, error) {
	t := &Template{vars: append([]Variable(nil), vars...)}

	for _, m := range mods {
		if m.Location == modprobe.BuiltinLocation {
			continue
		}
		src, err := os.ReadFile(m.Location)
		if err != nil {
			return nil, fmt.Errorf("module %q: read %s: %w", m.Name, m.Location, err)
		}
		prg, err := goja.Compile(m.Location, string(src), false)
		if err != nil {
			return nil, fmt.Errorf("module %q: compile: %w", m.Name, err)
		}
		t.modules = append(t.modules, compiledModule{name: m.Name, prg: prg})
	}

	if initScript != "" {
		prg, err := goja.Compile("init", initScript, false)
		if err != nil {
			return nil, fmt.Errorf("init script: compile: %w", err)
		}
		t.init = prg
	}

	return t, nil
}

// NewWorker materializes one worker from the template: fresh runtime,
// builtins installed, module programs run in declaration order, variables
// set. The init script is NOT run here; it runs lazily on first use.
func (t *Template) NewWorker(id int) (*Worker, error) {
	w := &Worker{id: id, vm: goja.New(), tmpl: t}
	if err := w.installBuiltins(); err != nil {
		return nil, fmt.Errorf("worker %d: builtins: %w", id, err)
	}
	for _, m := range t.modules {
		if _, err := w.vm.RunProgram(m.prg); err != nil {
			return nil, fmt.Errorf("worker %d: module %q: %w", id, m.name, err)
		}
	}
	for _, v := range t.vars {
		if err := w.vm.Set(v.Name, v.Value); err != nil {
			return nil, fmt.Errorf("worker %d: variable %q: %w", id, v.Name, err)
		}
	}
	return w, nil
}
