package task

import "testing"

func TestStreamOrderAndDrain(t *testing.T) {
	t.Parallel()
	tk := New("default", "", "1", nil, 0)

	tk.AppendOutput("a")
	tk.AppendOutput("b")
	tk.AppendOutput("c")

	got := tk.ReceiveOutput(true)
	if len(got) != 3 || got[0].Value != "a" || got[2].Value != "c" {
		t.Fatalf("keep snapshot = %v", got)
	}
	// keep=true must not consume.
	if n := tk.OutputLen(); n != 3 {
		t.Fatalf("OutputLen after keep = %d", n)
	}

	drained := tk.ReceiveOutput(false)
	if len(drained) != 3 {
		t.Fatalf("drain returned %d items", len(drained))
	}
	// Drained items are never re-delivered.
	if again := tk.ReceiveOutput(false); len(again) != 0 {
		t.Fatalf("second drain returned %d items", len(again))
	}
}

func TestErrorStreamIndependent(t *testing.T) {
	t.Parallel()
	tk := New("default", "", "1", nil, 0)
	tk.AppendOutput("out")
	tk.AppendError("bad")

	if got := tk.ReceiveErrors(false); len(got) != 1 || got[0].Message != "bad" {
		t.Fatalf("errors = %v", got)
	}
	if got := tk.ReceiveOutput(false); len(got) != 1 {
		t.Fatalf("draining errors touched output: %v", got)
	}
}

func TestLastProgressOverwrite(t *testing.T) {
	t.Parallel()
	tk := New("default", "", "1", nil, 0)

	if tk.LastProgress() != nil {
		t.Fatal("LastProgress non-nil before any report")
	}
	tk.AppendProgress(ProgressRecord{PercentComplete: 10, Activity: "copy"})
	tk.AppendProgress(ProgressRecord{PercentComplete: 80, Activity: "copy"})

	lp := tk.LastProgress()
	if lp == nil || lp.PercentComplete != 80 {
		t.Fatalf("LastProgress = %+v, want 80%%", lp)
	}

	// Draining the progress stream keeps the snapshot.
	if got := tk.ReceiveProgress(false); len(got) != 2 {
		t.Fatalf("progress drain = %d items", len(got))
	}
	if lp := tk.LastProgress(); lp == nil || lp.PercentComplete != 80 {
		t.Fatalf("LastProgress lost after drain: %+v", lp)
	}
}
