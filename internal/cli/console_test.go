package cli

import (
	"reflect"
	"testing"
)

func TestSplitLine(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		line string
		want []string
		err  bool
	}{
		{name: "plain", line: "get --pool etl", want: []string{"get", "--pool", "etl"}},
		{name: "collapsed spaces", line: "  stop   abc  ", want: []string{"stop", "abc"}},
		{name: "double quotes", line: `start "sleep(100); 'ok'" --name demo`, want: []string{"start", "sleep(100); 'ok'", "--name", "demo"}},
		{name: "single quotes", line: `session set --var 'Greeting=hello world'`, want: []string{"session", "set", "--var", "Greeting=hello world"}},
		{name: "empty quoted arg", line: `start "" --wait`, want: []string{"start", "", "--wait"}},
		{name: "unterminated", line: `start "oops`, err: true},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := splitLine(tt.line)
			if tt.err {
				if err == nil {
					t.Fatalf("splitLine(%q) expected error, got %v", tt.line, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("splitLine(%q): %v", tt.line, err)
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Fatalf("splitLine(%q) = %#v, want %#v", tt.line, got, tt.want)
			}
		})
	}
}

func TestCutVar(t *testing.T) {
	t.Parallel()
	if k, v, ok := cutVar("Marker=A"); !ok || k != "Marker" || v != "A" {
		t.Fatalf("cutVar = %q %q %v", k, v, ok)
	}
	if k, v, ok := cutVar("json={\"a\":1}"); !ok || k != "json" || v != `{"a":1}` {
		t.Fatalf("cutVar = %q %q %v", k, v, ok)
	}
	if _, _, ok := cutVar("novalue"); ok {
		t.Fatal("cutVar accepted a pair without '='")
	}
	if _, _, ok := cutVar("=x"); ok {
		t.Fatal("cutVar accepted an empty name")
	}
}
