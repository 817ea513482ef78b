package eventbus

import (
	"sync/atomic"
	"testing"
	"time"

	"taskpool/internal/task"
)

func TestPublishSubscribe(t *testing.T) {
	t.Parallel()
	b := New()
	ch, unsub := b.Subscribe(8)
	defer unsub()

	tk := task.New("default", "", "1", nil, 0)
	b.Publish(Event{Kind: KindCreated, Task: tk})

	select {
	case e := <-ch:
		if e.Kind != KindCreated || e.Task != tk {
			t.Fatalf("event = %+v", e)
		}
		if e.Time.IsZero() {
			t.Fatal("publish did not stamp the event time")
		}
	case <-time.After(time.Second):
		t.Fatal("event not delivered")
	}
}

func TestSlowSubscriberDrops(t *testing.T) {
	t.Parallel()
	b := New()
	ch, unsub := b.Subscribe(1)
	defer unsub()

	for i := 0; i < 5; i++ {
		b.Publish(Event{Kind: KindProgress})
	}
	// Buffer of one: exactly one event retained, publish never blocked.
	if n := len(ch); n != 1 {
		t.Fatalf("buffered events = %d, want 1", n)
	}
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	t.Parallel()
	b := New()
	ch, unsub := b.Subscribe(4)
	unsub()
	// Publishing after unsubscribe must not panic even though ch is closed.
	b.Publish(Event{Kind: KindCreated})
	if _, ok := <-ch; ok {
		t.Fatal("closed subscription still delivered an event")
	}
}

func TestNotifyHandler(t *testing.T) {
	t.Parallel()
	b := New()

	var calls atomic.Int32
	unsub := b.Notify(func(e Event) { calls.Add(1) })
	defer unsub()

	b.Publish(Event{Kind: KindStarted})

	deadline := time.Now().Add(time.Second)
	for calls.Load() == 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if calls.Load() != 1 {
		t.Fatalf("handler calls = %d, want 1", calls.Load())
	}
}

func TestNotifyPanicSwallowed(t *testing.T) {
	t.Parallel()
	b := New()

	var after atomic.Int32
	unsubPanic := b.Notify(func(Event) { panic("listener bug") })
	defer unsubPanic()
	unsub := b.Notify(func(Event) { after.Add(1) })
	defer unsub()

	b.Publish(Event{Kind: KindFailed})

	deadline := time.Now().Add(time.Second)
	for after.Load() == 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if after.Load() != 1 {
		t.Fatal("panicking handler prevented other deliveries")
	}
}

func TestTerminalKind(t *testing.T) {
	t.Parallel()
	tests := []struct {
		status task.Status
		want   Kind
	}{
		{task.StatusCompleted, KindCompleted},
		{task.StatusFailed, KindFailed},
		{task.StatusCancelled, KindCancelled},
		{task.StatusTimedOut, KindTimedOut},
		{task.StatusRunning, Kind("")},
	}
	for _, tt := range tests {
		if got := TerminalKind(tt.status); got != tt.want {
			t.Fatalf("TerminalKind(%s) = %q, want %q", tt.status, got, tt.want)
		}
	}
}
