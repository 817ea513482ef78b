package pool

import (
	"fmt"
	"sort"
	"strings"

	"taskpool/internal/engine"
	"taskpool/internal/modprobe"
)

// SessionSettings describe the state every worker of a pool is seeded with.
type SessionSettings struct {
	// Modules are library names resolved on the module search path,
	// imported in declaration order. Names dedup case-insensitively,
	// first spelling wins.
	Modules []string

	// Variables become globals in every worker. Names are treated
	// case-insensitively: spellings that collide after folding collapse to
	// one entry (the lexicographically last spelling wins, deterministically).
	Variables map[string]any

	// InitScript runs once per worker, on its first use.
	InitScript string
}

// Clone returns a deep-enough copy (values are shared, containers are not).
func (s SessionSettings) Clone() SessionSettings {
	cp := SessionSettings{
		Modules:    append([]string(nil), s.Modules...),
		InitScript: s.InitScript,
	}
	if s.Variables != nil {
		cp.Variables = make(map[string]any, len(s.Variables))
		for k, v := range s.Variables {
			cp.Variables[k] = v
		}
	}
	return cp
}

func (s SessionSettings) normalized() SessionSettings {
	out := SessionSettings{InitScript: s.InitScript}

	seen := map[string]bool{}
	for _, m := range s.Modules {
		m = strings.TrimSpace(m)
		if m == "" {
			continue
		}
		key := strings.ToLower(m)
		if seen[key] {
			continue
		}
		seen[key] = true
		out.Modules = append(out.Modules, m)
	}

	if len(s.Variables) > 0 {
		keys := make([]string, 0, len(s.Variables))
		for k := range s.Variables {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		out.Variables = make(map[string]any, len(keys))
		spelling := map[string]string{}
		for _, k := range keys {
			folded := strings.ToLower(k)
			if prev, ok := spelling[folded]; ok {
				delete(out.Variables, prev)
			}
			spelling[folded] = k
			out.Variables[k] = s.Variables[k]
		}
	}

	return out
}

// MissingModulesError reports every unavailable module of a session change,
// each with its probe message, plus the search path consulted.
type MissingModulesError struct {
	Missing    []modprobe.Result
	SearchPath string
}

func (e *MissingModulesError) Error() string {
	names := make([]string, 0, len(e.Missing))
	for _, r := range e.Missing {
		names = append(names, fmt.Sprintf("%s (%s)", r.Name, r.Message))
	}
	return fmt.Sprintf("modules unavailable: %s; %s=%q",
		strings.Join(names, "; "), modprobe.EnvSearchPath, e.SearchPath)
}

// buildTemplate probes every module first and builds nothing when any are
// missing, so a failed session change leaves no state behind.
func buildTemplate(s SessionSettings) (*engine.Template, error) {
	var (
		sources []engine.ModuleSource
		missing []modprobe.Result
	)
	for _, r := range modprobe.CheckAll(s.Modules) {
		if !r.Available {
			missing = append(missing, r)
			continue
		}
		sources = append(sources, engine.ModuleSource{Name: r.Name, Location: r.Location})
	}
	if len(missing) > 0 {
		return nil, &MissingModulesError{Missing: missing, SearchPath: modprobe.SearchPath()}
	}

	vars := make([]engine.Variable, 0, len(s.Variables))
	keys := make([]string, 0, len(s.Variables))
	for k := range s.Variables {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		vars = append(vars, engine.Variable{Name: k, Value: s.Variables[k]})
	}

	return engine.NewTemplate(sources, vars, s.InitScript)
}
