// Package modprobe answers "is library X available to workers?".
//
// Modules are JavaScript files resolved by name on the directory list in the
// TASKPOOL_MODULE_PATH environment variable (OS path-list separated), either
// as <dir>/<name>.js or <dir>/<name>/index.js. The two base libraries every
// worker carries ("path" and "util") always probe as available.
//
// Check is a pure function: no side effects, no shared state.
package modprobe

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// EnvSearchPath is the environment variable holding the module search path.
const EnvSearchPath = "TASKPOOL_MODULE_PATH"

// BuiltinLocation marks modules compiled into the engine itself.
const BuiltinLocation = "(builtin)"

// Builtins are the base libraries present in every worker regardless of
// session settings.
var Builtins = []string{"path", "util"}

// Result is the outcome of probing one module name.
type Result struct {
	Name      string
	Available bool
	Location  string
	Message   string
}

// SearchPath returns the verbatim value of the search-path variable. It is
// surfaced unmodified in missing-module diagnostics.
func SearchPath() string { return os.Getenv(EnvSearchPath) }

// SearchDirs splits the search path into directories, dropping empty entries.
func SearchDirs() []string {
	raw := SearchPath()
	if raw == "" {
		return nil
	}
	parts := filepath.SplitList(raw)
	dirs := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			dirs = append(dirs, p)
		}
	}
	return dirs
}

// IsBuiltin reports whether name is one of the always-present base libraries.
func IsBuiltin(name string) bool {
	for _, b := range Builtins {
		if strings.EqualFold(name, b) {
			return true
		}
	}
	return false
}

// Check probes a single module name and returns the first match on the
// search path. On a miss, Message carries a diagnostic including the
// verbatim search path.
func Check(name string) Result {
	name = strings.TrimSpace(name)
	if name == "" {
		return Result{Name: name, Message: "module name is empty"}
	}
	if IsBuiltin(name) {
		return Result{Name: name, Available: true, Location: BuiltinLocation}
	}

	for _, dir := range SearchDirs() {
		for _, cand := range []string{
			filepath.Join(dir, name+".js"),
			filepath.Join(dir, name, "index.js"),
		} {
			fi, err := os.Stat(cand)
			if err == nil && !fi.IsDir() {
				return Result{Name: name, Available: true, Location: cand}
			}
		}
	}

	return Result{
		Name:    name,
		Message: fmt.Sprintf("module %q not found on %s=%q", name, EnvSearchPath, SearchPath()),
	}
}

// CheckAll probes each name in order.
func CheckAll(names []string) []Result {
	out := make([]Result, 0, len(names))
	for _, n := range names {
		out = append(out, Check(n))
	}
	return out
}
