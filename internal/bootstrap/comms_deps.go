// Package bootstrap assembles the process dependency graph.
package bootstrap

import (
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"comms_server/adapter/in/worker"
	"comms_server/config"
	"comms_server/core/agent/llm"
	"comms_server/core/service/classification"
	"comms_server/core/service/conversation"
	"comms_server/core/service/engine"
	"comms_server/core/service/response"
	"comms_server/pkg/cache"
	"comms_server/pkg/logger"
	"comms_server/pkg/ratelimit"
	"comms_server/pkg/resilience"
)

// Dependencies holds the wired process components.
type Dependencies struct {
	Config *config.Config
	Redis  *redis.Client

	// Resilience
	Breakers *resilience.Registry

	// Caches
	ResponseCache *cache.TTLCache
	JudgmentCache *cache.TTLCache

	// Agent
	LLMClient *llm.Client
	Gateway   *llm.Gateway

	// Services
	Pipeline  *classification.Pipeline
	Analyzer  *conversation.Analyzer
	Generator *response.Generator
	Engine    *engine.Engine

	// Inbound
	WorkerPool *worker.Pool
}

// NewDependencies wires the full graph. The returned cleanup releases every
// resource in reverse dependency order.
func NewDependencies(cfg *config.Config) (*Dependencies, func(), error) {
	log := logger.Default()

	// Redis is optional: without it both caches run L1-only.
	var redisClient *redis.Client
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return nil, nil, err
		}
		redisClient = redis.NewClient(opts)
		log.Info().Str("addr", opts.Addr).Msg("redis L2 cache enabled")
	}

	breakers := resilience.NewRegistry(resilience.Config{
		FailureThreshold: cfg.CircuitBreakerFailureThreshold,
		Window:           time.Duration(cfg.CircuitBreakerWindowSec) * time.Second,
		Cooldown:         time.Duration(cfg.CircuitBreakerCooldownMs) * time.Millisecond,
		HalfOpenTrials:   cfg.CircuitBreakerHalfOpenTrials,
	})

	llmClient := llm.NewClient(llm.ClientConfig{
		APIKey:  cfg.OpenAIAPIKey,
		Timeout: time.Duration(cfg.LLMTimeoutSec) * time.Second,
	})

	responseCache := cache.New(redisClient, cache.Config{
		MaxEntries:    cfg.CacheMaxEntries,
		TTL:           time.Duration(cfg.CacheTTLMin) * time.Minute,
		SweepInterval: time.Duration(cfg.CacheSweepIntervalMin) * time.Minute,
	})
	judgmentCache := cache.New(redisClient, cache.Config{
		MaxEntries:    cfg.CacheMaxEntries,
		TTL:           time.Duration(cfg.JudgmentCacheTTLMin) * time.Minute,
		SweepInterval: time.Duration(cfg.CacheSweepIntervalMin) * time.Minute,
	})

	breaker := breakers.Get("llm-backend")
	subscribeBreakerLogging(breaker, logger.With("circuit_breaker"))

	gateway := llm.NewGateway(llmClient, breaker, responseCache, llm.GatewayConfig{
		Name: "llm-backend",
		RateLimit: ratelimit.Config{
			Limit:              cfg.RateLimitRPM,
			Window:             time.Minute,
			HighPriorityFactor: cfg.RateLimitHighPriorityFactor,
		},
		MaxRetries:     cfg.MaxRetries,
		RetryBaseDelay: time.Duration(cfg.RetryBaseDelayMs) * time.Millisecond,
		ContextLimit:   cfg.LLMContextLimit,
	}, logger.With("llm_gateway"))
	subscribeGatewayLogging(gateway, logger.With("llm_gateway"))

	pipeline := classification.NewPipeline(gateway, classification.PipelineConfig{
		HeuristicConfidenceThreshold: cfg.HeuristicConfidenceThreshold,
		UseHeuristicPrefilter:        true,
		Model:                        cfg.LLMModel,
		Temperature:                  float32(0.1),
	}, logger.With("classification"))

	analyzer := conversation.NewAnalyzer(gateway, judgmentCache, conversation.AnalyzerConfig{
		MessageWindow:            cfg.ConversationWindow,
		EmergencyConfidenceFloor: cfg.EmergencyConfidenceFloor,
		Model:                    cfg.LLMModel,
	}, logger.With("conversation"))

	generator := response.NewGenerator(gateway, response.GeneratorConfig{
		BusinessName:               cfg.BusinessName,
		BusinessPhone:              cfg.BusinessPhone,
		BusinessHours:              cfg.BusinessHours,
		TemplatesEnabled:           cfg.TemplatesEnabled,
		Model:                      cfg.LLMModel,
		MaxTokens:                  cfg.LLMMaxTokens,
		Temperature:                float32(cfg.LLMTemperature),
		ConfidenceThreshold:        cfg.ConfidenceThreshold,
		QualityThresholds:          cfg.QualityThresholds,
		RequireReviewEmergency:     cfg.RequireReviewEmergency,
		RequireReviewComplaint:     cfg.RequireReviewComplaint,
		RequireReviewLowConfidence: cfg.RequireReviewLowConfidence,
	}, logger.With("response"))

	eng := engine.NewEngine(pipeline, analyzer, generator, logger.With("engine"))

	workerPool := worker.NewPool(eng, worker.PoolConfig{
		Workers:    cfg.WorkerCount,
		QueueSize:  cfg.WorkerQueueSize,
		JobTimeout: time.Duration(cfg.JobTimeoutSec) * time.Second,
	}, nil, log)

	deps := &Dependencies{
		Config:        cfg,
		Redis:         redisClient,
		Breakers:      breakers,
		ResponseCache: responseCache,
		JudgmentCache: judgmentCache,
		LLMClient:     llmClient,
		Gateway:       gateway,
		Pipeline:      pipeline,
		Analyzer:      analyzer,
		Generator:     generator,
		Engine:        eng,
		WorkerPool:    workerPool,
	}

	cleanup := func() {
		workerPool.Stop()
		gateway.Close()
		judgmentCache.Close()
		if redisClient != nil {
			if err := redisClient.Close(); err != nil {
				log.Warn().Err(err).Msg("error closing redis client")
			}
		}
	}

	return deps, cleanup, nil
}

// subscribeBreakerLogging forwards breaker events to the log.
func subscribeBreakerLogging(b *resilience.Breaker, log zerolog.Logger) {
	b.Subscribe(resilience.ObserverFunc(func(e resilience.Event) {
		switch e.Kind {
		case resilience.EventStateChange:
			log.Warn().
				Str("breaker", e.Breaker).
				Str("from", e.From).
				Str("to", e.To).
				Msg("circuit breaker state change")
		case resilience.EventCallRejected:
			log.Warn().
				Str("breaker", e.Breaker).
				Msg("call rejected by open circuit")
		case resilience.EventCallFailure:
			log.Debug().
				Str("breaker", e.Breaker).
				Err(e.Err).
				Msg("call failure counted")
		}
	}))
}

// subscribeGatewayLogging forwards gateway events to the log.
func subscribeGatewayLogging(g *llm.Gateway, log zerolog.Logger) {
	g.OnEvent(func(e llm.Event) {
		switch e.Kind {
		case llm.EventSuccess:
			log.Debug().
				Str("correlation_id", e.Record.CorrelationID).
				Int("attempt", e.Record.Attempt).
				Dur("duration", e.Duration).
				Msg("llm call succeeded")
		case llm.EventFailure:
			log.Warn().
				Str("correlation_id", e.Record.CorrelationID).
				Int("attempt", e.Record.Attempt).
				Str("breaker_state", e.Record.BreakerState).
				Err(e.Err).
				Msg("llm call failed")
		case llm.EventCacheHit:
			log.Debug().
				Str("correlation_id", e.Record.CorrelationID).
				Str("cache_key", e.Record.CacheKey).
				Msg("llm response served from cache")
		}
	})
}
