package llm

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"comms_server/core/port/out"
	"comms_server/pkg/apperr"
	"comms_server/pkg/ratelimit"
	"comms_server/pkg/resilience"
)

// stubBackend scripts backend behavior per call.
type stubBackend struct {
	calls   atomic.Int64
	results []func() (*out.LLMResult, error)
}

func (s *stubBackend) Invoke(ctx context.Context, req *out.LLMRequest) (*out.LLMResult, error) {
	n := int(s.calls.Add(1)) - 1
	if n < len(s.results) {
		return s.results[n]()
	}
	// Default: succeed.
	return &out.LLMResult{Text: "ok", Usage: out.TokenUsage{Input: 10, Output: 5}}, nil
}

func succeed(text string) func() (*out.LLMResult, error) {
	return func() (*out.LLMResult, error) {
		return &out.LLMResult{Text: text}, nil
	}
}

func failTransient() func() (*out.LLMResult, error) {
	return func() (*out.LLMResult, error) {
		return nil, apperr.RetryableBackend("openai", nil)
	}
}

func newTestGateway(t *testing.T, backend out.LLMBackend, cfg GatewayConfig) *Gateway {
	t.Helper()
	if cfg.Name == "" {
		cfg.Name = "test-backend"
	}
	if cfg.RateLimit.Limit == 0 {
		cfg.RateLimit = ratelimit.Config{Limit: 1000, Window: time.Minute}
	}
	if cfg.RetryBaseDelay == 0 {
		cfg.RetryBaseDelay = time.Millisecond
	}
	breaker := resilience.NewBreaker(cfg.Name, resilience.Config{
		FailureThreshold: 100,
		Window:           time.Minute,
		Cooldown:         time.Minute,
	})
	g := NewGateway(backend, breaker, nil, cfg, zerolog.Nop())
	t.Cleanup(g.Close)
	return g
}

func testRequest() *out.LLMRequest {
	return &out.LLMRequest{
		System:   "You are a classifier.",
		Messages: ChatUser("My faucet is dripping."),
		Params:   out.ModelParams{Model: DefaultModel, MaxTokens: 64, Temperature: 0.1},
	}
}

func TestValidationFailsFast(t *testing.T) {
	backend := &stubBackend{}
	g := newTestGateway(t, backend, GatewayConfig{})

	tests := []struct {
		name string
		req  *out.LLMRequest
	}{
		{"nil request", nil},
		{"no messages", &out.LLMRequest{}},
		{"blank content", &out.LLMRequest{Messages: ChatUser("   ")}},
		{"temperature out of range", &out.LLMRequest{
			Messages: ChatUser("hi"),
			Params:   out.ModelParams{Temperature: 3.0},
		}},
		{"negative max tokens", &out.LLMRequest{
			Messages: ChatUser("hi"),
			Params:   out.ModelParams{MaxTokens: -1},
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := g.Send(context.Background(), tt.req, nil); err == nil {
				t.Error("expected validation error")
			}
		})
	}

	if got := backend.calls.Load(); got != 0 {
		t.Errorf("backend calls = %d, want 0 (validation must not consume budget)", got)
	}
}

func TestContextBudgetRejected(t *testing.T) {
	backend := &stubBackend{}
	g := newTestGateway(t, backend, GatewayConfig{ContextLimit: 10})

	req := testRequest() // well over 10 tokens with MaxTokens=64
	if _, err := g.Send(context.Background(), req, nil); err == nil {
		t.Error("expected context-limit rejection")
	}
	if got := backend.calls.Load(); got != 0 {
		t.Errorf("backend calls = %d, want 0", got)
	}
}

func TestCacheIdempotence(t *testing.T) {
	backend := &stubBackend{results: []func() (*out.LLMResult, error){succeed("answer")}}
	g := newTestGateway(t, backend, GatewayConfig{})
	ctx := context.Background()

	first, err := g.Send(ctx, testRequest(), nil)
	if err != nil {
		t.Fatalf("first Send: %v", err)
	}
	if first.Cached {
		t.Error("first response must not be marked cached")
	}

	second, err := g.Send(ctx, testRequest(), nil)
	if err != nil {
		t.Fatalf("second Send: %v", err)
	}
	if !second.Cached {
		t.Error("identical request within TTL must be served from cache")
	}
	if second.Text != first.Text {
		t.Errorf("cached Text = %q, want %q", second.Text, first.Text)
	}
	if got := backend.calls.Load(); got != 1 {
		t.Errorf("backend calls = %d, want 1", got)
	}
}

func TestCacheBypass(t *testing.T) {
	backend := &stubBackend{}
	g := newTestGateway(t, backend, GatewayConfig{})
	ctx := context.Background()
	opts := &out.SendOptions{Priority: out.PriorityNormal, Cacheable: false}

	for i := 0; i < 2; i++ {
		if _, err := g.Send(ctx, testRequest(), opts); err != nil {
			t.Fatalf("Send #%d: %v", i+1, err)
		}
	}
	if got := backend.calls.Load(); got != 2 {
		t.Errorf("backend calls = %d, want 2 (cache bypassed)", got)
	}
}

func TestRetriesTransientFailures(t *testing.T) {
	backend := &stubBackend{results: []func() (*out.LLMResult, error){
		failTransient(),
		failTransient(),
		succeed("third time lucky"),
	}}
	g := newTestGateway(t, backend, GatewayConfig{MaxRetries: 3})

	resp, err := g.Send(context.Background(), testRequest(), nil)
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if resp.Attempts != 3 {
		t.Errorf("Attempts = %d, want 3", resp.Attempts)
	}
	if got := g.ErrorCount(); got != 2 {
		t.Errorf("ErrorCount = %d, want 2", got)
	}
}

func TestExhaustsRetries(t *testing.T) {
	backend := &stubBackend{results: []func() (*out.LLMResult, error){
		failTransient(), failTransient(), failTransient(),
	}}
	g := newTestGateway(t, backend, GatewayConfig{MaxRetries: 3})

	if _, err := g.Send(context.Background(), testRequest(), nil); !apperr.IsCode(err, apperr.CodeRetryableBackend) {
		t.Errorf("error = %v, want RETRYABLE_BACKEND after exhausted retries", err)
	}
	if got := backend.calls.Load(); got != 3 {
		t.Errorf("backend calls = %d, want 3", got)
	}
}

func TestNonRetryableFailsImmediately(t *testing.T) {
	backend := &stubBackend{results: []func() (*out.LLMResult, error){
		func() (*out.LLMResult, error) { return nil, apperr.AuthFailed("openai", nil) },
	}}
	g := newTestGateway(t, backend, GatewayConfig{MaxRetries: 3})

	if _, err := g.Send(context.Background(), testRequest(), nil); !apperr.IsCode(err, apperr.CodeAuthFailed) {
		t.Errorf("error = %v, want AUTH_FAILED", err)
	}
	if got := backend.calls.Load(); got != 1 {
		t.Errorf("backend calls = %d, want 1 (no retry on auth failure)", got)
	}
}

func TestOpenCircuitShortCircuits(t *testing.T) {
	backend := &stubBackend{results: []func() (*out.LLMResult, error){failTransient()}}
	breaker := resilience.NewBreaker("test-backend", resilience.Config{
		FailureThreshold: 1,
		Window:           time.Minute,
		Cooldown:         time.Minute,
	})
	g := NewGateway(backend, breaker, nil, GatewayConfig{
		Name:           "test-backend",
		RateLimit:      ratelimit.Config{Limit: 1000, Window: time.Minute},
		MaxRetries:     3,
		RetryBaseDelay: time.Millisecond,
	}, zerolog.Nop())
	t.Cleanup(g.Close)
	ctx := context.Background()

	// First call trips the breaker, then is rejected without further traffic.
	_, err := g.Send(ctx, testRequest(), &out.SendOptions{Cacheable: false})
	if !apperr.IsCode(err, apperr.CodeServiceUnavailable) {
		t.Fatalf("error = %v, want SERVICE_UNAVAILABLE once circuit opens", err)
	}

	calls := backend.calls.Load()
	if _, err := g.Send(ctx, testRequest(), &out.SendOptions{Cacheable: false}); !apperr.IsCode(err, apperr.CodeServiceUnavailable) {
		t.Fatalf("error = %v, want SERVICE_UNAVAILABLE while open", err)
	}
	if backend.calls.Load() != calls {
		t.Error("open circuit must not generate backend traffic")
	}
}

func TestEmitsEvents(t *testing.T) {
	backend := &stubBackend{}
	g := newTestGateway(t, backend, GatewayConfig{})
	ctx := context.Background()

	var kinds []EventKind
	g.OnEvent(func(e Event) { kinds = append(kinds, e.Kind) })

	if _, err := g.Send(ctx, testRequest(), nil); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if _, err := g.Send(ctx, testRequest(), nil); err != nil {
		t.Fatalf("Send: %v", err)
	}

	if len(kinds) != 2 || kinds[0] != EventSuccess || kinds[1] != EventCacheHit {
		t.Errorf("events = %v, want [success cache_hit]", kinds)
	}
}
