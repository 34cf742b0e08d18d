package eventbus

import (
	"fmt"
	"sync"
	"testing"
	"time"

	logx "promocast/pkg/logx"
)

func step(platform, id string) Step {
	return Step{Platform: platform, Method: "api", StepID: id, RunID: "run-1"}
}

func recv(t *testing.T, ch <-chan StepEvent) StepEvent {
	t.Helper()
	select {
	case e, ok := <-ch:
		if !ok {
			t.Fatal("events channel closed early")
		}
		return e
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
	}
	return StepEvent{}
}

func TestLateSubscriberReplaysHistoryFirst(t *testing.T) {
	t.Parallel()
	b := NewBus("run-1")
	e1 := Started(step("reddit", "s1"), "")
	e2 := Completed(step("reddit", "s1"), "ok", time.Millisecond)
	b.Emit(e1)
	b.Emit(e2)

	sub := b.Subscribe()
	defer sub.Unsubscribe()

	e3 := Started(step("email", "s2"), "")
	b.Emit(e3)

	want := []StepEvent{e1, e2, e3}
	for i, w := range want {
		got := recv(t, sub.Events())
		if got.Type != w.Type || got.StepID != w.StepID || got.Platform != w.Platform {
			t.Fatalf("event %d = %s/%s/%s, want %s/%s/%s", i, got.Type, got.Platform, got.StepID, w.Type, w.Platform, w.StepID)
		}
	}
}

func TestEmitDoesNotDropForSlowSubscriber(t *testing.T) {
	t.Parallel()
	b := NewBus("run-slow")
	sub := b.Subscribe()
	defer sub.Unsubscribe()

	const n = 500
	var wg sync.WaitGroup
	for w := 0; w < 5; w++ {
		w := w
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < n/5; i++ {
				b.Emit(Started(step(fmt.Sprintf("p%d", w), fmt.Sprintf("%d", i)), ""))
			}
		}()
	}
	wg.Wait()

	// Per-emitter order must survive fan-out.
	last := map[string]int{}
	for i := 0; i < n; i++ {
		e := recv(t, sub.Events())
		var idx int
		fmt.Sscanf(e.StepID, "%d", &idx)
		if prev, ok := last[e.Platform]; ok && idx <= prev {
			t.Fatalf("platform %s out of order: %d after %d", e.Platform, idx, prev)
		}
		last[e.Platform] = idx
	}
	if got := len(b.History()); got != n {
		t.Fatalf("history len = %d, want %d", got, n)
	}
}

func TestUnsubscribeIdempotentAndClosesEvents(t *testing.T) {
	t.Parallel()
	b := NewBus("run-2")
	sub := b.Subscribe()
	if b.Subscribers() != 1 {
		t.Fatalf("subscribers = %d, want 1", b.Subscribers())
	}
	sub.Unsubscribe()
	sub.Unsubscribe()
	if b.Subscribers() != 0 {
		t.Fatalf("subscribers = %d, want 0", b.Subscribers())
	}
	select {
	case _, ok := <-sub.Events():
		if ok {
			t.Fatal("expected closed channel")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("events channel not closed")
	}
	// Emitting after unsubscribe must not panic.
	b.Emit(Started(step("x", "1"), ""))
}

func TestHeartbeatIndependentOfEvents(t *testing.T) {
	t.Parallel()
	b := NewBus("run-3")
	sub := b.Subscribe()
	defer sub.Unsubscribe()

	now := time.Now()
	b.Beat(now)
	b.Beat(now.Add(time.Second)) // dropped: one already pending

	select {
	case got := <-sub.Heartbeats():
		if !got.Equal(now) {
			t.Fatalf("heartbeat = %v, want %v", got, now)
		}
	case <-time.After(time.Second):
		t.Fatal("no heartbeat")
	}

	b.Emit(Started(step("reddit", "s1"), ""))
	if e := recv(t, sub.Events()); e.Type != StepStarted {
		t.Fatalf("type = %s, want %s", e.Type, StepStarted)
	}
}

func TestFailedEventCarriesClassification(t *testing.T) {
	t.Parallel()
	e := Failed(step("email", "s9"), "status 500", "HTTP_500", true, 1500*time.Millisecond)
	if e.Type != StepFailed || !e.Type.Terminal() {
		t.Fatalf("type = %s, want terminal failed", e.Type)
	}
	if e.Retryable == nil || !*e.Retryable {
		t.Fatal("expected retryable=true")
	}
	if e.DurationMs == nil || *e.DurationMs != 1500 {
		t.Fatalf("durationMs = %v, want 1500", e.DurationMs)
	}
	if e.Timestamp == 0 {
		t.Fatal("timestamp not set")
	}
}

func TestRegistrySessionLazyAndSweep(t *testing.T) {
	t.Parallel()
	r := NewRegistry(Config{SessionTTL: time.Minute}, logx.Nop())
	if _, ok := r.Lookup("a"); ok {
		t.Fatal("session should not exist yet")
	}
	a := r.Session("a")
	if a2 := r.Session("a"); a2 != a {
		t.Fatal("Session must return the same bus for the same id")
	}
	held := r.Session("b")
	sub := held.Subscribe()
	defer sub.Unsubscribe()

	dropped := r.Sweep(time.Now().Add(2 * time.Minute))
	if dropped != 1 {
		t.Fatalf("dropped = %d, want 1", dropped)
	}
	if _, ok := r.Lookup("a"); ok {
		t.Fatal("idle session a should be swept")
	}
	if _, ok := r.Lookup("b"); !ok {
		t.Fatal("session b has a subscriber and must be kept")
	}
}

func TestRegistryWithoutTTLKeepsSessions(t *testing.T) {
	t.Parallel()
	r := NewRegistry(Config{}, logx.Nop())
	r.Session("keep")
	if n := r.Sweep(time.Now().Add(24 * time.Hour)); n != 0 {
		t.Fatalf("dropped = %d, want 0", n)
	}
	if got := r.Sessions(); len(got) != 1 || got[0] != "keep" {
		t.Fatalf("sessions = %v, want [keep]", got)
	}
}
