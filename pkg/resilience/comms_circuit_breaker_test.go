package resilience

import (
	"errors"
	"testing"
	"time"

	"comms_server/pkg/apperr"
)

var errBackend = errors.New("backend down")

func failN(b *Breaker, n int) {
	for i := 0; i < n; i++ {
		_ = b.Execute(func() error { return errBackend })
	}
}

func TestOpensAfterThreshold(t *testing.T) {
	b := NewBreaker("test", Config{FailureThreshold: 3, Window: time.Minute, Cooldown: time.Minute})

	failN(b, 2)
	if got := b.State(); got != "closed" {
		t.Fatalf("State after 2 failures = %q, want closed", got)
	}

	failN(b, 1)
	if got := b.State(); got != "open" {
		t.Fatalf("State after 3 failures = %q, want open", got)
	}
}

func TestRejectsWhileOpen(t *testing.T) {
	b := NewBreaker("llm-backend", Config{FailureThreshold: 1, Window: time.Minute, Cooldown: time.Minute})
	failN(b, 1)

	called := false
	err := b.Execute(func() error {
		called = true
		return nil
	})

	if called {
		t.Error("open breaker must not generate backend traffic")
	}
	if !apperr.IsCode(err, apperr.CodeServiceUnavailable) {
		t.Errorf("error = %v, want SERVICE_UNAVAILABLE", err)
	}
}

func TestHalfOpenRecovery(t *testing.T) {
	b := NewBreaker("test", Config{FailureThreshold: 1, Window: time.Minute, Cooldown: 30 * time.Millisecond, HalfOpenTrials: 1})
	failN(b, 1)

	time.Sleep(50 * time.Millisecond)

	// Single successful trial closes the circuit.
	if err := b.Execute(func() error { return nil }); err != nil {
		t.Fatalf("half-open trial rejected: %v", err)
	}
	if got := b.State(); got != "closed" {
		t.Errorf("State after successful trial = %q, want closed", got)
	}
}

func TestHalfOpenFailureReopens(t *testing.T) {
	b := NewBreaker("test", Config{FailureThreshold: 1, Window: time.Minute, Cooldown: 30 * time.Millisecond, HalfOpenTrials: 1})
	failN(b, 1)

	time.Sleep(50 * time.Millisecond)

	if err := b.Execute(func() error { return errBackend }); !errors.Is(err, errBackend) {
		t.Fatalf("half-open trial error = %v, want backend error", err)
	}
	if got := b.State(); got != "open" {
		t.Errorf("State after failed trial = %q, want open", got)
	}
}

func TestPublishesEvents(t *testing.T) {
	b := NewBreaker("test", Config{FailureThreshold: 1, Window: time.Minute, Cooldown: time.Minute})

	var events []Event
	b.Subscribe(ObserverFunc(func(e Event) { events = append(events, e) }))

	failN(b, 1)                              // call_failure + state_change
	_ = b.Execute(func() error { return nil }) // call_rejected

	var kinds []EventKind
	for _, e := range events {
		kinds = append(kinds, e.Kind)
	}

	want := map[EventKind]bool{EventCallFailure: false, EventStateChange: false, EventCallRejected: false}
	for _, k := range kinds {
		want[k] = true
	}
	for k, seen := range want {
		if !seen {
			t.Errorf("event %q not published (got %v)", k, kinds)
		}
	}
}

func TestRegistrySharesBreakers(t *testing.T) {
	r := NewRegistry(DefaultConfig())
	if r.Get("openai") != r.Get("openai") {
		t.Error("Get must return the same breaker for the same name")
	}
	if r.Get("openai") == r.Get("redis") {
		t.Error("distinct names must get distinct breakers")
	}
}
