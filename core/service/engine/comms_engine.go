// Package engine chains the three processing stages for one inbound
// customer message: classify, judge, reply.
package engine

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"comms_server/core/domain"
	"comms_server/core/service/classification"
	"comms_server/core/service/conversation"
	"comms_server/core/service/response"
	"comms_server/pkg/apperr"
	"comms_server/pkg/metrics"
)

// Result bundles the artifacts of one processed message.
type Result struct {
	Classification *domain.ClassificationResult
	Judgment       *domain.ConversationJudgment
	Response       *domain.GeneratedResponse
}

// Engine runs the full message pipeline. Each stage degrades rather than
// fails, so ProcessMessage errors only on invalid input.
type Engine struct {
	pipeline  *classification.Pipeline
	analyzer  *conversation.Analyzer
	generator *response.Generator
	latency   *metrics.LatencyTracker
	log       zerolog.Logger
}

// NewEngine wires the three stages together.
func NewEngine(pipeline *classification.Pipeline, analyzer *conversation.Analyzer, generator *response.Generator, log zerolog.Logger) *Engine {
	return &Engine{
		pipeline:  pipeline,
		analyzer:  analyzer,
		generator: generator,
		latency:   metrics.NewLatencyTracker(1024),
		log:       log,
	}
}

// ProcessMessage classifies the latest customer message, folds it into a
// conversation judgment, and drafts a reply.
func (e *Engine) ProcessMessage(ctx context.Context, conv *domain.Conversation) (*Result, error) {
	start := time.Now()

	if conv == nil {
		return nil, apperr.MissingField("conversation")
	}
	latest := conv.LatestCustomerMessage()
	if latest == "" {
		return nil, apperr.InvalidInput("conversation", "no customer message to process")
	}

	cls := e.pipeline.Classify(ctx, latest)
	judgment := e.analyzer.Analyze(ctx, conv, cls)
	reply := e.generator.Generate(ctx, conv, judgment)

	elapsed := time.Since(start)
	e.latency.Record(elapsed)

	e.log.Info().
		Str("conversation_id", conv.ID).
		Str("intent", string(judgment.Intent)).
		Float64("confidence", judgment.Confidence).
		Bool("emergency", judgment.IsEmergency).
		Str("urgency", string(judgment.UrgencyLevel)).
		Str("method", string(cls.Method)).
		Bool("needs_review", reply.NeedsReview).
		Dur("elapsed", elapsed).
		Msg("message processed")

	return &Result{
		Classification: cls,
		Judgment:       judgment,
		Response:       reply,
	}, nil
}

// Latency exposes the end-to-end latency distribution.
func (e *Engine) Latency() metrics.LatencyStats {
	return e.latency.Stats()
}
