// Package conversation folds per-message classifications into
// conversation-level judgments and enforces cross-field consistency.
package conversation

import (
	"context"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"comms_server/core/agent/llm"
	"comms_server/core/domain"
	"comms_server/core/port/out"
	"comms_server/core/service/classification"
	"comms_server/pkg/cache"
)

// AnalyzerConfig holds analyzer tuning.
type AnalyzerConfig struct {
	// MessageWindow bounds how many trailing messages feed the judgment
	// prompt (default: 10).
	MessageWindow int

	// EmergencyConfidenceFloor is the minimum emergency confidence applied
	// when an independent keyword re-check corroborates the model's
	// emergency flag (default: 0.8).
	EmergencyConfidenceFloor float64

	Model       string
	MaxTokens   int
	Temperature float32
}

// DefaultAnalyzerConfig returns sensible defaults.
func DefaultAnalyzerConfig() AnalyzerConfig {
	return AnalyzerConfig{
		MessageWindow:            10,
		EmergencyConfidenceFloor: 0.8,
		Model:                    llm.DefaultModel,
		MaxTokens:                512,
		Temperature:              0.2,
	}
}

// Analyzer produces conversation-level judgments. Judgments for quiet
// conversations are reused from cache within the TTL; first-contact and
// emergency-flagged messages always get a fresh pass.
type Analyzer struct {
	gateway out.LLMGateway
	keyword *classification.KeywordClassifier
	cache   *cache.TTLCache
	cfg     AnalyzerConfig
	log     zerolog.Logger
}

// NewAnalyzer creates a conversation analyzer. judgmentCache may be nil to
// disable reuse entirely.
func NewAnalyzer(gateway out.LLMGateway, judgmentCache *cache.TTLCache, cfg AnalyzerConfig, log zerolog.Logger) *Analyzer {
	if cfg.MessageWindow <= 0 {
		cfg.MessageWindow = 10
	}
	if cfg.EmergencyConfidenceFloor <= 0 {
		cfg.EmergencyConfidenceFloor = 0.8
	}
	if cfg.Model == "" {
		cfg.Model = llm.DefaultModel
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 512
	}
	return &Analyzer{
		gateway: gateway,
		keyword: classification.NewKeywordClassifier(),
		cache:   judgmentCache,
		cfg:     cfg,
		log:     log,
	}
}

// llmJudgment mirrors the JSON shape the judgment prompt requests.
type llmJudgment struct {
	UrgencyLevel        string  `json:"urgency_level"`
	Sentiment           string  `json:"sentiment"`
	SentimentScore      float64 `json:"sentiment_score"`
	Stage               string  `json:"stage"`
	IsEmergency         bool    `json:"is_emergency"`
	EmergencyConfidence float64 `json:"emergency_confidence"`
	RecommendedAction   string  `json:"recommended_action"`
	Summary             string  `json:"summary"`
}

// Analyze folds the latest classification into a conversation judgment.
// Like the pipeline, it never fails: model failures degrade to a heuristic
// judgment derived from the classification itself.
func (a *Analyzer) Analyze(ctx context.Context, conv *domain.Conversation, cls *domain.ClassificationResult) *domain.ConversationJudgment {
	start := time.Now()
	latest := conv.LatestCustomerMessage()
	mustRefresh := conv.IsFirstContact() || cls.IsEmergency

	if !mustRefresh {
		if cached := a.cachedJudgment(ctx, conv.ID); cached != nil {
			return cached
		}
	}

	judgment := a.judge(ctx, conv, cls, start)
	a.enhance(judgment, latest)
	judgment.Validate()

	a.storeJudgment(ctx, judgment)
	return judgment
}

// judge obtains the raw judgment, from the model when possible, otherwise
// from the quick heuristic path.
func (a *Analyzer) judge(ctx context.Context, conv *domain.Conversation, cls *domain.ClassificationResult, start time.Time) *domain.ConversationJudgment {
	window := conv.Messages
	if len(window) > a.cfg.MessageWindow {
		window = window[len(window)-a.cfg.MessageWindow:]
	}

	system, user := llm.BuildJudgmentPrompt(llm.JudgmentPromptContext{
		CustomerName:   conv.CustomerName,
		Messages:       window,
		Classification: cls,
		FirstContact:   conv.IsFirstContact(),
	})

	priority := out.PriorityNormal
	if cls.IsEmergency {
		priority = out.PriorityHigh
	}

	resp, err := a.gateway.Send(ctx, &out.LLMRequest{
		System:   system,
		Messages: llm.ChatUser(user),
		Params: out.ModelParams{
			Model:       a.cfg.Model,
			MaxTokens:   a.cfg.MaxTokens,
			Temperature: a.cfg.Temperature,
		},
	}, &out.SendOptions{Priority: priority, Cacheable: true})
	if err != nil {
		a.log.Warn().Err(err).Str("conversation_id", conv.ID).
			Msg("judgment call failed, using heuristic judgment")
		return a.heuristicJudgment(conv, cls, start)
	}

	var parsed llmJudgment
	if jsonErr := json.Unmarshal([]byte(llm.CleanJSONResponse(resp.Text)), &parsed); jsonErr != nil {
		a.log.Warn().Err(jsonErr).Str("conversation_id", conv.ID).
			Msg("judgment parse failure, using heuristic judgment")
		return a.heuristicJudgment(conv, cls, start)
	}

	j := &domain.ConversationJudgment{
		ClassificationResult: *cls,
		ConversationID:       conv.ID,
		UrgencyLevel:         domain.UrgencyLevel(parsed.UrgencyLevel),
		Sentiment:            domain.Sentiment(parsed.Sentiment),
		SentimentScore:       parsed.SentimentScore,
		Stage:                domain.ConversationStage(parsed.Stage),
		RecommendedAction:    parsed.RecommendedAction,
		Summary:              parsed.Summary,
		JudgedAt:             start,
		Cost: domain.CostInfo{
			InputTokens:      resp.Usage.Input,
			OutputTokens:     resp.Usage.Output,
			ProcessingTimeMs: time.Since(start).Milliseconds(),
		},
	}

	// The model may escalate the emergency judgment beyond the per-message
	// classification; a weaker model answer never clears an existing flag.
	if parsed.IsEmergency {
		j.IsEmergency = true
		if parsed.EmergencyConfidence > j.EmergencyConfidence {
			j.EmergencyConfidence = parsed.EmergencyConfidence
		}
	}

	return j
}

// heuristicJudgment derives a judgment without any model call.
func (a *Analyzer) heuristicJudgment(conv *domain.Conversation, cls *domain.ClassificationResult, start time.Time) *domain.ConversationJudgment {
	urgency := domain.UrgencyFlexible
	switch {
	case cls.IsEmergency:
		urgency = domain.UrgencyImmediate
	case len(cls.Factors.UrgencyIndicators) > 0:
		urgency = domain.UrgencySameDay
	case cls.Intent == domain.IntentScheduling || cls.Intent == domain.IntentQuoteRequest:
		urgency = domain.UrgencyWithinWeek
	}

	sentiment := domain.SentimentNeutral
	score := 0.5
	if n := len(cls.Factors.EmotionalIndicators); n > 0 {
		sentiment = domain.SentimentFrustrated
		score = 0.6 + 0.1*float64(n)
		if score > 0.9 {
			score = 0.9
		}
	}

	stage := domain.StageGatheringInfo
	if conv.IsFirstContact() {
		stage = domain.StageInitialContact
	}

	return &domain.ConversationJudgment{
		ClassificationResult: *cls,
		ConversationID:       conv.ID,
		UrgencyLevel:         urgency,
		Sentiment:            sentiment,
		SentimentScore:       score,
		Stage:                stage,
		Summary:              "heuristic judgment (model unavailable)",
		EnhancementNotes:     []string{"model judgment unavailable"},
		JudgedAt:             start,
		Cost: domain.CostInfo{
			ProcessingTimeMs: time.Since(start).Milliseconds(),
		},
	}
}

// enhance applies the consistency repairs that guard against internally
// inconsistent model output. Corroboration raises confidence; it is never
// lowered by a single weak source.
func (a *Analyzer) enhance(j *domain.ConversationJudgment, latestMessage string) {
	if j.IsEmergency && j.EmergencyConfidence < a.cfg.EmergencyConfidenceFloor {
		if a.keyword.HasEmergencySignal(latestMessage) {
			j.EmergencyConfidence = a.cfg.EmergencyConfidenceFloor
			j.EnhancementNotes = append(j.EnhancementNotes,
				"emergency confidence raised: keyword re-check corroborates")
		}
	}

	if a.keyword.FrustrationCount(latestMessage) > 2 && j.Sentiment == domain.SentimentNeutral {
		j.Sentiment = domain.SentimentFrustrated
		if j.SentimentScore < 0.7 {
			j.SentimentScore = 0.7
		}
		j.EnhancementNotes = append(j.EnhancementNotes,
			"sentiment overridden to frustrated: heuristic evidence outweighs neutral default")
	}
}

func (a *Analyzer) cachedJudgment(ctx context.Context, conversationID string) *domain.ConversationJudgment {
	if a.cache == nil {
		return nil
	}
	data, ok := a.cache.Get(ctx, judgmentKey(conversationID))
	if !ok {
		return nil
	}
	var j domain.ConversationJudgment
	if err := json.Unmarshal(data, &j); err != nil {
		return nil
	}
	return &j
}

func (a *Analyzer) storeJudgment(ctx context.Context, j *domain.ConversationJudgment) {
	if a.cache == nil {
		return
	}
	if data, err := json.Marshal(j); err == nil {
		a.cache.Set(ctx, judgmentKey(j.ConversationID), data)
	}
}

func judgmentKey(conversationID string) string {
	return "judgment:" + conversationID
}
