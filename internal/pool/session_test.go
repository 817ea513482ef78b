package pool

import (
	"errors"
	"strings"
	"testing"

	"taskpool/internal/modprobe"
)

func TestNormalizeModulesDedup(t *testing.T) {
	t.Parallel()
	s := SessionSettings{Modules: []string{"Path", "util", "path", "  ", "Util"}}
	got := s.normalized()
	if len(got.Modules) != 2 || got.Modules[0] != "Path" || got.Modules[1] != "util" {
		t.Fatalf("modules = %v, want [Path util]", got.Modules)
	}
}

func TestNormalizeVariablesFold(t *testing.T) {
	t.Parallel()
	s := SessionSettings{Variables: map[string]any{
		"Marker": "upper",
		"marker": "lower",
		"Other":  1,
	}}
	got := s.normalized()
	if len(got.Variables) != 2 {
		t.Fatalf("variables = %v, want 2 entries", got.Variables)
	}
	// Deterministic collapse: the lexicographically last spelling survives.
	if v, ok := got.Variables["marker"]; !ok || v != "lower" {
		t.Fatalf("folded variable = %v (present=%v), want lower", v, ok)
	}
	if _, ok := got.Variables["Marker"]; ok {
		t.Fatal("both spellings survived case folding")
	}
}

func TestBuildTemplateMissingModules(t *testing.T) {
	t.Setenv(modprobe.EnvSearchPath, "/nope")

	_, err := buildTemplate(SessionSettings{Modules: []string{"path", "ghost", "phantom"}})
	if err == nil {
		t.Fatal("expected missing-modules error")
	}

	var missing *MissingModulesError
	if !errors.As(err, &missing) {
		t.Fatalf("error type = %T", err)
	}
	if len(missing.Missing) != 2 {
		t.Fatalf("missing = %+v, want ghost and phantom", missing.Missing)
	}
	msg := err.Error()
	for _, want := range []string{"ghost", "phantom", "/nope", modprobe.EnvSearchPath} {
		if !strings.Contains(msg, want) {
			t.Fatalf("error %q misses %q", msg, want)
		}
	}
}

func TestCloneIsIndependent(t *testing.T) {
	t.Parallel()
	s := SessionSettings{
		Modules:   []string{"path"},
		Variables: map[string]any{"a": 1},
	}
	cp := s.Clone()
	cp.Modules[0] = "changed"
	cp.Variables["a"] = 2
	if s.Modules[0] != "path" || s.Variables["a"] != 1 {
		t.Fatalf("clone shares containers: %+v", s)
	}
}
