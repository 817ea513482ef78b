package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadYAML(t *testing.T) {
	t.Parallel()
	path := writeConfig(t, "config.yaml", `
logging:
  level: debug
pools:
  - name: etl
    min: 2
    max: 4
    retention: 15m
    modules: [transform]
    variables:
      Region: eu-west-1
    init: "prepared = true"
`)

	m := NewManager(path)
	cfg, err := m.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Logging.Level != "debug" {
		t.Fatalf("logging level = %q", cfg.Logging.Level)
	}
	if len(cfg.Pools) != 1 {
		t.Fatalf("pools = %d", len(cfg.Pools))
	}
	p := cfg.Pools[0]
	if p.Name != "etl" || p.Min != 2 || p.Max != 4 {
		t.Fatalf("pool = %+v", p)
	}
	if len(p.Modules) != 1 || p.Modules[0] != "transform" {
		t.Fatalf("modules = %v", p.Modules)
	}
	if p.Variables["Region"] != "eu-west-1" {
		t.Fatalf("variables = %v", p.Variables)
	}
	if p.Init != "prepared = true" {
		t.Fatalf("init = %q", p.Init)
	}

	d, err := ParseDurationField("pools.etl.retention", p.Retention)
	if err != nil || d != 15*time.Minute {
		t.Fatalf("retention = %v (%v)", d, err)
	}

	if m.Get() != cfg {
		t.Fatal("Load did not commit the config")
	}
}

func TestLoadJSON(t *testing.T) {
	t.Parallel()
	path := writeConfig(t, "config.json", `{"logging": {"level": "warn"}, "pools": [{"name": "a"}]}`)
	cfg, err := NewManager(path).Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Logging.Level != "warn" || len(cfg.Pools) != 1 {
		t.Fatalf("cfg = %+v", cfg)
	}
}

func TestUnknownFieldRejected(t *testing.T) {
	t.Parallel()
	path := writeConfig(t, "config.json", `{"loging": {}}`)
	if _, err := NewManager(path).Load(); err == nil {
		t.Fatal("typo'd field accepted")
	}
}

func TestTrailingDataRejected(t *testing.T) {
	t.Parallel()
	path := writeConfig(t, "config.json", `{"pools": []}{"pools": []}`)
	if _, err := NewManager(path).Load(); err == nil {
		t.Fatal("concatenated JSON accepted")
	}
}

func TestParseDurationField(t *testing.T) {
	t.Parallel()
	tests := []struct {
		raw  string
		want time.Duration
		ok   bool
	}{
		{"", 0, true},
		{"30s", 30 * time.Second, true},
		{"2h30m", 2*time.Hour + 30*time.Minute, true},
		{"nope", 0, false},
		{"-5s", 0, false},
	}
	for _, tt := range tests {
		d, err := ParseDurationField("x", tt.raw)
		if (err == nil) != tt.ok || d != tt.want {
			t.Fatalf("ParseDurationField(%q) = %v, %v", tt.raw, d, err)
		}
	}

	if d, err := ParseDurationOrDefault("x", "", time.Minute); err != nil || d != time.Minute {
		t.Fatalf("ParseDurationOrDefault empty = %v, %v", d, err)
	}
}
