package llm

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math/rand"
	"strings"
	"sync/atomic"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"comms_server/core/port/out"
	"comms_server/pkg/apperr"
	"comms_server/pkg/cache"
	"comms_server/pkg/metrics"
	"comms_server/pkg/ratelimit"
	"comms_server/pkg/resilience"
)

// =============================================================================
// Request Gateway
// Order: Validate -> Cache -> Rate Limiter -> Circuit Breaker -> Retry -> Backend
// =============================================================================

const maxRetryDelay = 30 * time.Second

// GatewayConfig holds gateway tuning.
type GatewayConfig struct {
	Name           string // logical dependency name (breaker/limiter key)
	RateLimit      ratelimit.Config
	Cache          cache.Config
	MaxRetries     int           // attempts per call (default: 3)
	RetryBaseDelay time.Duration // backoff base (default: 1s)
	ContextLimit   int           // backend context window, tokens (default: 128000)
}

// DefaultGatewayConfig returns sensible defaults.
func DefaultGatewayConfig() GatewayConfig {
	return GatewayConfig{
		Name:           "llm-backend",
		RateLimit:      ratelimit.DefaultConfig(),
		Cache:          cache.DefaultConfig(),
		MaxRetries:     3,
		RetryBaseDelay: time.Second,
		ContextLimit:   128000,
	}
}

// EventKind identifies a gateway observability event.
type EventKind string

const (
	EventSuccess  EventKind = "success"
	EventFailure  EventKind = "failure"
	EventCacheHit EventKind = "cache_hit"
)

// CallRecord is the ephemeral per-call state snapshot attached to events.
// It lives only for the duration of one orchestration call graph.
type CallRecord struct {
	CorrelationID string
	CacheKey      string
	Attempt       int
	Limiter       ratelimit.Snapshot
	BreakerState  string
}

// Event is a structured gateway event for observability consumers.
type Event struct {
	Kind     EventKind
	Record   CallRecord
	Err      error
	Duration time.Duration
	At       time.Time
}

// Gateway is the single choke point for all outbound LLM calls. It owns the
// rate-limiter window and the response cache exclusively.
type Gateway struct {
	cfg     GatewayConfig
	backend out.LLMBackend
	breaker *resilience.Breaker
	limiter *ratelimit.FixedWindowLimiter
	cache   *cache.TTLCache
	group   singleflight.Group
	latency *metrics.LatencyTracker
	log     zerolog.Logger

	errorCount atomic.Int64
	onEvent    atomic.Pointer[func(Event)]
}

// NewGateway wires a gateway around the backend and the shared breaker for
// the named dependency.
func NewGateway(backend out.LLMBackend, breaker *resilience.Breaker, redisCache *cache.TTLCache, cfg GatewayConfig, log zerolog.Logger) *Gateway {
	if cfg.Name == "" {
		cfg.Name = "llm-backend"
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.RetryBaseDelay <= 0 {
		cfg.RetryBaseDelay = time.Second
	}
	if cfg.ContextLimit <= 0 {
		cfg.ContextLimit = 128000
	}

	respCache := redisCache
	if respCache == nil {
		respCache = cache.New(nil, cfg.Cache)
	}

	g := &Gateway{
		cfg:     cfg,
		backend: backend,
		breaker: breaker,
		limiter: ratelimit.NewFixedWindowLimiter(cfg.Name, cfg.RateLimit),
		cache:   respCache,
		latency: metrics.NewLatencyTracker(1000),
		log:     log,
	}

	g.limiter.OnOverage(func(name string, count, limit int) {
		g.log.Warn().Str("dependency", name).Int("count", count).Int("limit", limit).
			Msg("high-priority call admitted beyond rate limit")
	})

	return g
}

// OnEvent sets a hook receiving gateway events (success, failure, cache_hit).
func (g *Gateway) OnEvent(fn func(Event)) {
	g.onEvent.Store(&fn)
}

// ErrorCount returns the in-process failure counter. This is an independent
// failure signal alongside the circuit breaker's own window.
func (g *Gateway) ErrorCount() int64 {
	return g.errorCount.Load()
}

// Latency returns gateway call latency statistics.
func (g *Gateway) Latency() metrics.LatencyStats {
	return g.latency.Stats()
}

// Close stops the owned cache sweeper.
func (g *Gateway) Close() {
	g.cache.Close()
}

// Send validates, rate-limits, memoizes, and retries one LLM call.
func (g *Gateway) Send(ctx context.Context, req *out.LLMRequest, opts *out.SendOptions) (*out.LLMResponse, error) {
	if opts == nil {
		opts = &out.SendOptions{Priority: out.PriorityNormal, Cacheable: true}
	}
	if opts.CorrelationID == "" {
		opts.CorrelationID = uuid.NewString()
	}

	// Fail fast before consuming rate-limit budget.
	if err := g.validate(req); err != nil {
		return nil, err
	}

	if !opts.Cacheable {
		return g.sendUncached(ctx, req, opts, "")
	}

	key := g.cacheKey(req)

	if data, ok := g.cache.Get(ctx, key); ok {
		resp, err := decodeCached(data, opts.CorrelationID)
		if err == nil {
			g.emit(Event{
				Kind:   EventCacheHit,
				Record: g.record(opts.CorrelationID, key, 0),
				At:     time.Now(),
			})
			return resp, nil
		}
		g.cache.Delete(ctx, key)
	}

	// Concurrent identical requests share one backend call.
	v, err, shared := g.group.Do(key, func() (any, error) {
		return g.sendUncached(ctx, req, opts, key)
	})
	if err != nil {
		return nil, err
	}

	resp := v.(*out.LLMResponse)
	if shared {
		dup := *resp
		dup.Cached = true
		dup.CorrelationID = opts.CorrelationID
		return &dup, nil
	}
	return resp, nil
}

func (g *Gateway) sendUncached(ctx context.Context, req *out.LLMRequest, opts *out.SendOptions, key string) (*out.LLMResponse, error) {
	if err := g.limiter.Acquire(ctx, opts.Priority == out.PriorityHigh); err != nil {
		return nil, err
	}

	start := time.Now()
	var result *out.LLMResult
	var lastErr error

	for attempt := 1; attempt <= g.cfg.MaxRetries; attempt++ {
		callErr := g.breaker.Execute(func() error {
			var invokeErr error
			result, invokeErr = g.backend.Invoke(ctx, req)
			return invokeErr
		})

		if callErr == nil {
			resp := &out.LLMResponse{
				Text:          result.Text,
				Usage:         result.Usage,
				CorrelationID: opts.CorrelationID,
				Attempts:      attempt,
				Duration:      time.Since(start),
			}
			g.latency.Record(resp.Duration)
			g.emit(Event{
				Kind:     EventSuccess,
				Record:   g.record(opts.CorrelationID, key, attempt),
				Duration: resp.Duration,
				At:       time.Now(),
			})
			if key != "" {
				if data, err := encodeCached(resp); err == nil {
					g.cache.Set(ctx, key, data)
				}
			}
			return resp, nil
		}

		lastErr = callErr
		g.errorCount.Add(1)
		g.emit(Event{
			Kind:   EventFailure,
			Record: g.record(opts.CorrelationID, key, attempt),
			Err:    callErr,
			At:     time.Now(),
		})

		// Circuit open: surface immediately, no backend traffic is generated.
		if apperr.IsCode(callErr, apperr.CodeServiceUnavailable) {
			return nil, callErr
		}
		if !apperr.IsRetryable(callErr) {
			return nil, callErr
		}
		if attempt == g.cfg.MaxRetries {
			break
		}

		select {
		case <-ctx.Done():
			return nil, apperr.Timeout("llm call").WithError(ctx.Err())
		case <-time.After(backoffDelay(g.cfg.RetryBaseDelay, attempt)):
		}
	}

	return nil, lastErr
}

// validate rejects malformed requests before they consume budget.
func (g *Gateway) validate(req *out.LLMRequest) error {
	if req == nil || len(req.Messages) == 0 {
		return apperr.ValidationFailed("request must contain at least one message")
	}
	for i, m := range req.Messages {
		if strings.TrimSpace(m.Content) == "" {
			return apperr.InvalidInput(fmt.Sprintf("messages[%d]", i), "empty content")
		}
	}
	if req.Params.Temperature < 0 || req.Params.Temperature > 2 {
		return apperr.InvalidInput("temperature", "must be in [0, 2]")
	}
	if req.Params.MaxTokens < 0 {
		return apperr.InvalidInput("max_tokens", "must be non-negative")
	}
	if estimateTokens(req) > g.cfg.ContextLimit {
		return apperr.ValidationFailed("request exceeds backend context limit")
	}
	return nil
}

// estimateTokens approximates the token count at ~4 chars per token.
func estimateTokens(req *out.LLMRequest) int {
	chars := len(req.System)
	for _, m := range req.Messages {
		chars += len(m.Content)
	}
	return chars/4 + req.Params.MaxTokens
}

// cacheKey builds a canonical hash over (model params, message list, temperature).
func (g *Gateway) cacheKey(req *out.LLMRequest) string {
	h := sha256.New()
	fmt.Fprintf(h, "%s|%d|%.4f|%s\n", req.Params.Model, req.Params.MaxTokens, req.Params.Temperature, req.System)
	for _, m := range req.Messages {
		fmt.Fprintf(h, "%s:%s\n", m.Role, m.Content)
	}
	return "llm:resp:" + hex.EncodeToString(h.Sum(nil))
}

func (g *Gateway) record(correlationID, key string, attempt int) CallRecord {
	return CallRecord{
		CorrelationID: correlationID,
		CacheKey:      key,
		Attempt:       attempt,
		Limiter:       g.limiter.Stats(),
		BreakerState:  g.breaker.State(),
	}
}

func (g *Gateway) emit(e Event) {
	if fn := g.onEvent.Load(); fn != nil {
		(*fn)(e)
	}
}

// backoffDelay computes min(base * 2^(attempt-1) + jitter, 30s),
// jitter uniform in [0, 1s).
func backoffDelay(base time.Duration, attempt int) time.Duration {
	delay := base << (attempt - 1)
	delay += time.Duration(rand.Int63n(int64(time.Second)))
	if delay > maxRetryDelay {
		delay = maxRetryDelay
	}
	return delay
}

type cachedPayload struct {
	Text  string         `json:"text"`
	Usage out.TokenUsage `json:"usage"`
}

func encodeCached(resp *out.LLMResponse) ([]byte, error) {
	return json.Marshal(cachedPayload{Text: resp.Text, Usage: resp.Usage})
}

func decodeCached(data []byte, correlationID string) (*out.LLMResponse, error) {
	var p cachedPayload
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, err
	}
	return &out.LLMResponse{
		Text:          p.Text,
		Usage:         p.Usage,
		Cached:        true,
		CorrelationID: correlationID,
	}, nil
}
