// Package resilience provides fault tolerance patterns for external service calls.
package resilience

import (
	"errors"
	"sync"
	"time"

	"github.com/sony/gobreaker"

	"comms_server/pkg/apperr"
)

// =============================================================================
// Named Circuit Breakers (per logical external dependency)
// =============================================================================

// EventKind identifies a breaker event published to observers.
type EventKind string

const (
	EventStateChange  EventKind = "state_change"
	EventCallRejected EventKind = "call_rejected"
	EventCallFailure  EventKind = "call_failure"
)

// Event is published on breaker activity so consumers (logging, alerting)
// can subscribe without the breaker depending on them.
type Event struct {
	Breaker string
	Kind    EventKind
	From    string
	To      string
	Err     error
	At      time.Time
}

// Observer receives breaker events. Implementations must be fast; events
// are published synchronously on the calling goroutine.
type Observer interface {
	OnBreakerEvent(Event)
}

// ObserverFunc adapts a function to the Observer interface.
type ObserverFunc func(Event)

func (f ObserverFunc) OnBreakerEvent(e Event) { f(e) }

// Config holds circuit breaker tuning for one dependency.
type Config struct {
	FailureThreshold int           // failures within Window before opening (default: 10)
	Window           time.Duration // rolling failure-count window in closed state (default: 60s)
	Cooldown         time.Duration // open duration before half-open (default: 30s)
	HalfOpenTrials   int           // trial calls allowed in half-open (default: 1)
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		FailureThreshold: 10,
		Window:           60 * time.Second,
		Cooldown:         30 * time.Second,
		HalfOpenTrials:   1,
	}
}

// Breaker wraps a gobreaker state machine with event publication.
// One instance is shared by all callers targeting the same dependency name.
type Breaker struct {
	name string
	cb   *gobreaker.CircuitBreaker

	mu        sync.RWMutex
	observers []Observer
}

// NewBreaker creates a breaker for the named dependency.
func NewBreaker(name string, cfg Config) *Breaker {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = 10
	}
	if cfg.Window <= 0 {
		cfg.Window = 60 * time.Second
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = 30 * time.Second
	}
	if cfg.HalfOpenTrials <= 0 {
		cfg.HalfOpenTrials = 1
	}

	b := &Breaker{name: name}

	settings := gobreaker.Settings{
		Name:        name,
		MaxRequests: uint32(cfg.HalfOpenTrials),
		Interval:    cfg.Window,
		Timeout:     cfg.Cooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.TotalFailures >= uint32(cfg.FailureThreshold)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			b.publish(Event{
				Breaker: name,
				Kind:    EventStateChange,
				From:    from.String(),
				To:      to.String(),
				At:      time.Now(),
			})
		},
	}
	b.cb = gobreaker.NewCircuitBreaker(settings)
	return b
}

// Name returns the dependency name the breaker guards.
func (b *Breaker) Name() string {
	return b.name
}

// Subscribe registers an observer for breaker events.
func (b *Breaker) Subscribe(o Observer) {
	b.mu.Lock()
	b.observers = append(b.observers, o)
	b.mu.Unlock()
}

// State returns the current state name (closed, open, half-open).
func (b *Breaker) State() string {
	return b.cb.State().String()
}

// Counts returns a snapshot of the rolling window counters.
func (b *Breaker) Counts() gobreaker.Counts {
	return b.cb.Counts()
}

// Execute runs fn under breaker protection. When the circuit is open (or the
// half-open trial budget is exhausted) it fails immediately with
// SERVICE_UNAVAILABLE and no backend traffic is generated.
func (b *Breaker) Execute(fn func() error) error {
	_, err := b.cb.Execute(func() (any, error) {
		return nil, fn()
	})
	if err == nil {
		return nil
	}

	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		b.publish(Event{Breaker: b.name, Kind: EventCallRejected, Err: err, At: time.Now()})
		return apperr.ServiceUnavailable(b.name).WithError(err)
	}

	b.publish(Event{Breaker: b.name, Kind: EventCallFailure, Err: err, At: time.Now()})
	return err
}

func (b *Breaker) publish(e Event) {
	b.mu.RLock()
	observers := b.observers
	b.mu.RUnlock()

	for _, o := range observers {
		o.OnBreakerEvent(e)
	}
}

// =============================================================================
// Registry
// =============================================================================

// Registry holds one breaker per dependency name for the process lifetime.
type Registry struct {
	mu       sync.Mutex
	breakers map[string]*Breaker
	cfg      Config
}

// NewRegistry creates a registry applying cfg to each new breaker.
func NewRegistry(cfg Config) *Registry {
	return &Registry{
		breakers: make(map[string]*Breaker),
		cfg:      cfg,
	}
}

// Get returns the breaker for the named dependency, creating it on first use.
func (r *Registry) Get(name string) *Breaker {
	r.mu.Lock()
	defer r.mu.Unlock()

	if b, ok := r.breakers[name]; ok {
		return b
	}
	b := NewBreaker(name, r.cfg)
	r.breakers[name] = b
	return b
}

// Reset discards all breakers; used only on explicit configuration reload.
func (r *Registry) Reset(cfg Config) {
	r.mu.Lock()
	r.cfg = cfg
	r.breakers = make(map[string]*Breaker)
	r.mu.Unlock()
}
