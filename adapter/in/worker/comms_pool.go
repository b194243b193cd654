// Package worker feeds inbound conversations through the processing engine
// on a bounded pool.
package worker

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-pkgz/pool"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"comms_server/core/domain"
	"comms_server/core/service/engine"
)

// Job is one inbound conversation awaiting processing.
type Job struct {
	ID           string
	Conversation *domain.Conversation
	EnqueuedAt   time.Time
}

// ResultHandler receives the outcome of each processed job. err is non-nil
// only for invalid input; pipeline degradation surfaces inside the result.
type ResultHandler func(job *Job, result *engine.Result, err error)

// PoolConfig holds worker pool configuration.
type PoolConfig struct {
	Workers    int
	QueueSize  int
	JobTimeout time.Duration
}

// DefaultPoolConfig returns default pool configuration.
func DefaultPoolConfig() PoolConfig {
	return PoolConfig{
		Workers:    8,
		QueueSize:  1000,
		JobTimeout: 90 * time.Second,
	}
}

// PoolMetrics holds cumulative pool counters.
type PoolMetrics struct {
	JobsProcessed int64
	JobsFailed    int64
	JobsDropped   int64
	QueueDepth    int32
}

// Pool runs the message engine across a fixed set of workers.
type Pool struct {
	engine  *engine.Engine
	onDone  ResultHandler
	cfg     PoolConfig
	log     zerolog.Logger
	workers *pool.WorkerGroup[*Job]

	ctx    context.Context
	cancel context.CancelFunc

	processed atomic.Int64
	failed    atomic.Int64
	dropped   atomic.Int64
	depth     atomic.Int32

	started bool
	mu      sync.Mutex
}

// conversationWorker implements pool.Worker for Job processing.
type conversationWorker struct {
	pool *Pool
}

func (w *conversationWorker) Do(ctx context.Context, job *Job) error {
	return w.pool.processJob(ctx, job)
}

// NewPool creates a worker pool. onDone may be nil when callers only care
// about side effects (logs, metrics).
func NewPool(eng *engine.Engine, cfg PoolConfig, onDone ResultHandler, log zerolog.Logger) *Pool {
	if cfg.Workers <= 0 {
		cfg.Workers = DefaultPoolConfig().Workers
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = DefaultPoolConfig().QueueSize
	}
	if cfg.JobTimeout <= 0 {
		cfg.JobTimeout = DefaultPoolConfig().JobTimeout
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Pool{
		engine: eng,
		onDone: onDone,
		cfg:    cfg,
		log:    log.With().Str("component", "worker_pool").Logger(),
		ctx:    ctx,
		cancel: cancel,
	}
}

// Start spins up the workers.
func (p *Pool) Start() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started {
		return nil
	}

	worker := &conversationWorker{pool: p}
	p.workers = pool.New[*Job](p.cfg.Workers, worker).
		WithWorkerChanSize(p.cfg.QueueSize).
		WithContinueOnError()

	if err := p.workers.Go(p.ctx); err != nil {
		return err
	}
	p.started = true

	p.log.Info().
		Int("workers", p.cfg.Workers).
		Int("queue_size", p.cfg.QueueSize).
		Dur("job_timeout", p.cfg.JobTimeout).
		Msg("worker pool started")
	return nil
}

// Stop drains in-flight jobs and shuts the pool down.
func (p *Pool) Stop() {
	p.mu.Lock()
	if !p.started {
		p.mu.Unlock()
		return
	}
	p.started = false
	workers := p.workers
	p.mu.Unlock()

	closeCtx, closeCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer closeCancel()

	if workers != nil {
		if err := workers.Close(closeCtx); err != nil {
			p.log.Warn().Err(err).Msg("error closing worker pool")
		}
	}
	p.cancel()

	p.log.Info().
		Int64("processed", p.processed.Load()).
		Int64("failed", p.failed.Load()).
		Int64("dropped", p.dropped.Load()).
		Msg("worker pool stopped")
}

// Submit enqueues a conversation for processing. Returns the job ID, or
// false when the pool is not running.
func (p *Pool) Submit(conv *domain.Conversation) (string, bool) {
	p.mu.Lock()
	started := p.started
	workers := p.workers
	p.mu.Unlock()

	if !started || workers == nil {
		p.dropped.Add(1)
		return "", false
	}

	job := &Job{
		ID:           uuid.New().String(),
		Conversation: conv,
		EnqueuedAt:   time.Now(),
	}
	workers.Submit(job)
	p.depth.Add(1)
	return job.ID, true
}

// processJob runs one job under the configured timeout.
func (p *Pool) processJob(ctx context.Context, job *Job) error {
	defer p.depth.Add(-1)

	jobCtx, cancel := context.WithTimeout(ctx, p.cfg.JobTimeout)
	defer cancel()

	result, err := p.engine.ProcessMessage(jobCtx, job.Conversation)
	if err != nil {
		p.failed.Add(1)
		p.log.Error().Err(err).
			Str("job_id", job.ID).
			Dur("queued", time.Since(job.EnqueuedAt)).
			Msg("job processing failed")
	} else {
		p.processed.Add(1)
	}

	if p.onDone != nil {
		p.onDone(job, result, err)
	}
	return err
}

// Metrics returns a snapshot of the pool counters.
func (p *Pool) Metrics() PoolMetrics {
	return PoolMetrics{
		JobsProcessed: p.processed.Load(),
		JobsFailed:    p.failed.Load(),
		JobsDropped:   p.dropped.Load(),
		QueueDepth:    p.depth.Load(),
	}
}

// Wait blocks until all submitted jobs have completed.
func (p *Pool) Wait() error {
	p.mu.Lock()
	workers := p.workers
	p.mu.Unlock()
	if workers != nil {
		return workers.Wait(p.ctx)
	}
	return nil
}
