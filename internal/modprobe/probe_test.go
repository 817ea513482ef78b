package modprobe

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestCheckBuiltins(t *testing.T) {
	for _, name := range []string{"path", "util", "PATH"} {
		r := Check(name)
		if !r.Available {
			t.Fatalf("builtin %q not available: %+v", name, r)
		}
		if r.Location != BuiltinLocation {
			t.Fatalf("builtin %q location = %q", name, r.Location)
		}
	}
}

func TestCheckFileModule(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "tools.js")
	if err := os.WriteFile(file, []byte("function noop() {}"), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv(EnvSearchPath, dir)

	r := Check("tools")
	if !r.Available {
		t.Fatalf("tools not found: %+v", r)
	}
	if r.Location != file {
		t.Fatalf("location = %q, want %q", r.Location, file)
	}
}

func TestCheckDirectoryForm(t *testing.T) {
	dir := t.TempDir()
	modDir := filepath.Join(dir, "helpers")
	if err := os.MkdirAll(modDir, 0o755); err != nil {
		t.Fatal(err)
	}
	file := filepath.Join(modDir, "index.js")
	if err := os.WriteFile(file, []byte("var helpers = 1"), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv(EnvSearchPath, dir)

	r := Check("helpers")
	if !r.Available || r.Location != file {
		t.Fatalf("helpers = %+v, want index.js under %s", r, modDir)
	}
}

func TestCheckFirstMatchWins(t *testing.T) {
	dir1 := t.TempDir()
	dir2 := t.TempDir()
	first := filepath.Join(dir1, "dup.js")
	second := filepath.Join(dir2, "dup.js")
	for _, f := range []string{first, second} {
		if err := os.WriteFile(f, []byte("var dup = 1"), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	t.Setenv(EnvSearchPath, dir1+string(os.PathListSeparator)+dir2)

	if r := Check("dup"); r.Location != first {
		t.Fatalf("location = %q, want first match %q", r.Location, first)
	}
}

func TestCheckMissingCarriesSearchPath(t *testing.T) {
	t.Setenv(EnvSearchPath, "/definitely/not/here")

	r := Check("nonexistent")
	if r.Available {
		t.Fatal("nonexistent module reported available")
	}
	if !strings.Contains(r.Message, "nonexistent") {
		t.Fatalf("message misses module name: %q", r.Message)
	}
	if !strings.Contains(r.Message, "/definitely/not/here") {
		t.Fatalf("message misses search path: %q", r.Message)
	}
	if !strings.Contains(r.Message, EnvSearchPath) {
		t.Fatalf("message misses env var name: %q", r.Message)
	}
}

func TestCheckAllOrder(t *testing.T) {
	t.Setenv(EnvSearchPath, "")
	rs := CheckAll([]string{"path", "missing-one"})
	if len(rs) != 2 || rs[0].Name != "path" || rs[1].Name != "missing-one" {
		t.Fatalf("CheckAll order broken: %+v", rs)
	}
	if !rs[0].Available || rs[1].Available {
		t.Fatalf("availability wrong: %+v", rs)
	}
}
