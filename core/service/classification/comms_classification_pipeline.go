package classification

import (
	"context"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"comms_server/core/agent/llm"
	"comms_server/core/domain"
	"comms_server/core/port/out"
)

// =============================================================================
// Classification Pipeline (heuristic shortcut + LLM hybrid path)
// =============================================================================

// PipelineConfig holds classification pipeline tuning.
type PipelineConfig struct {
	// HeuristicConfidenceThreshold gates the shortcut: a non-emergency
	// heuristic result above this confidence skips the model call entirely.
	HeuristicConfidenceThreshold float64

	// UseHeuristicPrefilter embeds the keyword suggestion as a prompt hint
	// (method becomes hybrid). When off, the model is called cold (method llm).
	UseHeuristicPrefilter bool

	Model       string
	MaxTokens   int
	Temperature float32
}

// DefaultPipelineConfig returns sensible defaults.
func DefaultPipelineConfig() PipelineConfig {
	return PipelineConfig{
		HeuristicConfidenceThreshold: 0.8,
		UseHeuristicPrefilter:        true,
		Model:                        llm.DefaultModel,
		MaxTokens:                    512,
		Temperature:                  0.1,
	}
}

// Pipeline decides, per message, whether the keyword pass is trustworthy
// enough to use alone or whether to spend a model call. Emergencies and
// low-confidence cases always take the expensive path.
type Pipeline struct {
	keyword *KeywordClassifier
	gateway out.LLMGateway
	cfg     PipelineConfig
	log     zerolog.Logger
}

// NewPipeline creates a classification pipeline.
func NewPipeline(gateway out.LLMGateway, cfg PipelineConfig, log zerolog.Logger) *Pipeline {
	if cfg.HeuristicConfidenceThreshold <= 0 {
		cfg.HeuristicConfidenceThreshold = 0.8
	}
	if cfg.Model == "" {
		cfg.Model = llm.DefaultModel
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 512
	}
	return &Pipeline{
		keyword: NewKeywordClassifier(),
		gateway: gateway,
		cfg:     cfg,
		log:     log,
	}
}

// Keyword exposes the heuristic pass for callers needing the raw signal.
func (p *Pipeline) Keyword() *KeywordClassifier {
	return p.keyword
}

// llmClassification mirrors the JSON shape the classification prompt requests.
type llmClassification struct {
	Intent              string  `json:"intent"`
	Confidence          float64 `json:"confidence"`
	IsEmergency         bool    `json:"is_emergency"`
	EmergencyConfidence float64 `json:"emergency_confidence"`
	Reasoning           string  `json:"reasoning"`
	Alternatives        []struct {
		Intent     string  `json:"intent"`
		Confidence float64 `json:"confidence"`
		Reasoning  string  `json:"reasoning"`
	} `json:"alternatives"`
}

// Classify never fails: every failure mode degrades to a usable result,
// flagged via the Degraded fields rather than surfaced as an error.
func (p *Pipeline) Classify(ctx context.Context, text string) *domain.ClassificationResult {
	start := time.Now()
	heuristic := p.keyword.Classify(text)

	// Unambiguous routine messages skip the external call entirely.
	if p.cfg.UseHeuristicPrefilter &&
		heuristic.Confidence > p.cfg.HeuristicConfidenceThreshold &&
		!heuristic.IsEmergency {
		return heuristic
	}

	method := domain.MethodLLM
	pc := llm.ClassificationPromptContext{Message: text}
	if p.cfg.UseHeuristicPrefilter {
		method = domain.MethodHybrid
		pc.Hint = &llm.HeuristicHint{
			Intent:      heuristic.Intent,
			Confidence:  heuristic.Confidence,
			IsEmergency: heuristic.IsEmergency,
		}
	}

	system, user := llm.BuildClassificationPrompt(pc)
	priority := out.PriorityNormal
	if heuristic.IsEmergency {
		priority = out.PriorityHigh
	}

	resp, err := p.gateway.Send(ctx, &out.LLMRequest{
		System:   system,
		Messages: llm.ChatUser(user),
		Params: out.ModelParams{
			Model:       p.cfg.Model,
			MaxTokens:   p.cfg.MaxTokens,
			Temperature: p.cfg.Temperature,
		},
	}, &out.SendOptions{Priority: priority, Cacheable: true})
	if err != nil {
		return p.fallback(heuristic, err, start)
	}

	var parsed llmClassification
	if jsonErr := json.Unmarshal([]byte(llm.CleanJSONResponse(resp.Text)), &parsed); jsonErr != nil {
		// A malformed model reply must never crash the pipeline.
		p.log.Warn().Err(jsonErr).Str("correlation_id", resp.CorrelationID).
			Msg("classification parse failure, degrading")
		return &domain.ClassificationResult{
			Intent:           domain.IntentGeneralQuestion,
			Confidence:       0.1,
			Reasoning:        "parse failure",
			Method:           method,
			Factors:          heuristic.Factors,
			ClassifiedAt:     start,
			ProcessingTimeMs: time.Since(start).Milliseconds(),
			Degraded:         true,
			DegradedReason:   "model returned non-conforming output",
		}
	}

	result := &domain.ClassificationResult{
		Intent:              domain.Intent(parsed.Intent),
		Confidence:          clamp01(parsed.Confidence),
		IsEmergency:         parsed.IsEmergency,
		EmergencyConfidence: clamp01(parsed.EmergencyConfidence),
		Reasoning:           parsed.Reasoning,
		Method:              method,
		Factors:             heuristic.Factors,
		ClassifiedAt:        start,
		ProcessingTimeMs:    time.Since(start).Milliseconds(),
	}
	for _, alt := range parsed.Alternatives {
		if domain.Intent(alt.Intent).IsValid() {
			result.Alternatives = append(result.Alternatives, domain.AlternativeIntent{
				Intent:     domain.Intent(alt.Intent),
				Confidence: clamp01(alt.Confidence),
				Reasoning:  alt.Reasoning,
			})
		}
	}

	// Post-hoc guard against model drift: out-of-enum intents are corrected,
	// not propagated.
	if !result.Intent.IsValid() {
		p.log.Warn().Str("intent", parsed.Intent).Str("correlation_id", resp.CorrelationID).
			Msg("model returned out-of-enum intent, correcting to general_question")
		result.Intent = domain.IntentGeneralQuestion
		result.Confidence = 0.1
		result.Degraded = true
		result.DegradedReason = "model returned out-of-enum intent"
	}

	return result
}

// fallback returns the pre-computed heuristic result with confidence
// discounted by 20% when the model path is entirely unavailable.
func (p *Pipeline) fallback(heuristic *domain.ClassificationResult, cause error, start time.Time) *domain.ClassificationResult {
	p.log.Warn().Err(cause).Msg("model classification unavailable, falling back to keyword result")

	fb := *heuristic
	fb.Confidence = heuristic.Confidence * 0.8
	fb.Method = domain.MethodKeywordMatching
	fb.ClassifiedAt = start
	fb.ProcessingTimeMs = time.Since(start).Milliseconds()
	fb.Degraded = true
	fb.DegradedReason = "AI classification unavailable"
	return &fb
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
