package engine

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"taskpool/internal/task"
)

func newWorker(t *testing.T, tmpl *Template) *Worker {
	t.Helper()
	if tmpl == nil {
		var err error
		tmpl, err = NewTemplate(nil, nil, "")
		if err != nil {
			t.Fatalf("NewTemplate: %v", err)
		}
	}
	w, err := tmpl.NewWorker(0)
	if err != nil {
		t.Fatalf("NewWorker: %v", err)
	}
	return w
}

func TestRunCompletionValue(t *testing.T) {
	t.Parallel()
	w := newWorker(t, nil)

	got, err := w.Run(context.Background(), `'done-' + args[0]`, []any{int64(50)}, Handlers{})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if got != "done-50" {
		t.Fatalf("result = %v, want done-50", got)
	}
}

func TestRunUndefinedResultIsNil(t *testing.T) {
	t.Parallel()
	w := newWorker(t, nil)
	got, err := w.Run(context.Background(), `var x = 1;`, nil, Handlers{})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if got != nil {
		t.Fatalf("result = %v, want nil", got)
	}
}

func TestRunStreams(t *testing.T) {
	t.Parallel()
	w := newWorker(t, nil)

	var outs []any
	var errs []string
	var progress []task.ProgressRecord

	_, err := w.Run(context.Background(),
		`print('one', 'two'); writeError('oops'); progress(150, 'copy', 'busy');`,
		nil,
		Handlers{
			Output:   func(v any) { outs = append(outs, v) },
			Error:    func(m string) { errs = append(errs, m) },
			Progress: func(p task.ProgressRecord) { progress = append(progress, p) },
		})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if len(outs) != 2 || outs[0] != "one" || outs[1] != "two" {
		t.Fatalf("outputs = %v", outs)
	}
	if len(errs) != 1 || errs[0] != "oops" {
		t.Fatalf("errors = %v", errs)
	}
	if len(progress) != 1 {
		t.Fatalf("progress = %v", progress)
	}
	if p := progress[0]; p.PercentComplete != 100 || p.Activity != "copy" || p.Status != "busy" {
		t.Fatalf("progress clamped/record wrong: %+v", p)
	}
}

func TestRunScriptError(t *testing.T) {
	t.Parallel()
	w := newWorker(t, nil)
	_, err := w.Run(context.Background(), `throw new Error('broken')`, nil, Handlers{})
	if err == nil {
		t.Fatal("expected error from throwing script")
	}
	if !strings.Contains(err.Error(), "broken") {
		t.Fatalf("error %q misses thrown message", err)
	}
}

func TestRunCompileError(t *testing.T) {
	t.Parallel()
	w := newWorker(t, nil)
	_, err := w.Run(context.Background(), `function (`, nil, Handlers{})
	if err == nil || !strings.Contains(err.Error(), "compile") {
		t.Fatalf("expected compile error, got %v", err)
	}
}

func TestRunCancelUnblocksSleep(t *testing.T) {
	t.Parallel()
	w := newWorker(t, nil)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	_, err := w.Run(ctx, `sleep(10000); 'ignored'`, nil, Handlers{})
	if err == nil {
		t.Fatal("expected error after cancellation")
	}
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("error = %v, want context.Canceled", err)
	}
	if elapsed := time.Since(start); elapsed > 3*time.Second {
		t.Fatalf("cancellation took %v; sleep did not unwind cooperatively", elapsed)
	}
}

func TestRunDeadlineUnblocksSleep(t *testing.T) {
	t.Parallel()
	w := newWorker(t, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := w.Run(ctx, `sleep(10000)`, nil, Handlers{})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("error = %v, want context.DeadlineExceeded", err)
	}
}

func TestVariablesVisible(t *testing.T) {
	t.Parallel()
	tmpl, err := NewTemplate(nil, []Variable{{Name: "Marker", Value: "A"}}, "")
	if err != nil {
		t.Fatalf("NewTemplate: %v", err)
	}
	w := newWorker(t, tmpl)

	got, err := w.Run(context.Background(), `Marker`, nil, Handlers{})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if got != "A" {
		t.Fatalf("Marker = %v, want A", got)
	}
}

func TestInitRunsOncePerWorker(t *testing.T) {
	t.Parallel()
	tmpl, err := NewTemplate(nil, nil, `globalCounter = (typeof globalCounter === 'undefined' ? 0 : globalCounter) + 1`)
	if err != nil {
		t.Fatalf("NewTemplate: %v", err)
	}
	w := newWorker(t, tmpl)

	for i := 0; i < 2; i++ {
		got, err := w.Run(context.Background(), `globalCounter`, nil, Handlers{})
		if err != nil {
			t.Fatalf("run %d: %v", i, err)
		}
		if got != int64(1) {
			t.Fatalf("run %d: globalCounter = %v, want 1", i, got)
		}
	}
}

func TestWorkerStatePersistsAcrossRuns(t *testing.T) {
	t.Parallel()
	w := newWorker(t, nil)

	if _, err := w.Run(context.Background(), `var tally = 41`, nil, Handlers{}); err != nil {
		t.Fatalf("first run: %v", err)
	}
	got, err := w.Run(context.Background(), `tally + 1`, nil, Handlers{})
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if got != int64(42) {
		t.Fatalf("tally+1 = %v, want 42", got)
	}
}

func TestModuleLoaded(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "greet.js")
	if err := os.WriteFile(file, []byte(`function greet(n) { return 'hi ' + n }`), 0o644); err != nil {
		t.Fatal(err)
	}

	tmpl, err := NewTemplate([]ModuleSource{{Name: "greet", Location: file}}, nil, "")
	if err != nil {
		t.Fatalf("NewTemplate: %v", err)
	}
	w := newWorker(t, tmpl)

	got, err := w.Run(context.Background(), `greet('bob')`, nil, Handlers{})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if got != "hi bob" {
		t.Fatalf("greet = %v", got)
	}
}

func TestBaseLibraries(t *testing.T) {
	t.Parallel()
	w := newWorker(t, nil)

	got, err := w.Run(context.Background(), `path.base(path.join('a', 'b', 'c.txt'))`, nil, Handlers{})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if got != "c.txt" {
		t.Fatalf("path verbs = %v, want c.txt", got)
	}

	got, err = w.Run(context.Background(), `util.uuid().length`, nil, Handlers{})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if got != int64(36) {
		t.Fatalf("util.uuid() length = %v, want 36", got)
	}
}
