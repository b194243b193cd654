package response

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"comms_server/config"
	"comms_server/core/agent/llm"
	"comms_server/core/domain"
	"comms_server/core/port/out"
)

// GeneratorConfig holds response-generation tuning.
type GeneratorConfig struct {
	BusinessName  string
	BusinessPhone string
	BusinessHours config.BusinessHours

	TemplatesEnabled bool

	Model       string
	MaxTokens   int
	Temperature float32

	// Review gate
	ConfidenceThreshold        float64
	QualityThresholds          config.QualityThresholds
	RequireReviewEmergency     bool
	RequireReviewComplaint     bool
	RequireReviewLowConfidence bool
}

// Generator drafts outbound replies and decides whether a human must see
// them before they go out.
type Generator struct {
	gateway out.LLMGateway
	cfg     GeneratorConfig
	log     zerolog.Logger
	now     func() time.Time
}

// NewGenerator creates a response generator.
func NewGenerator(gateway out.LLMGateway, cfg GeneratorConfig, log zerolog.Logger) *Generator {
	if cfg.Model == "" {
		cfg.Model = llm.DefaultModel
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 512
	}
	return &Generator{
		gateway: gateway,
		cfg:     cfg,
		log:     log,
		now:     time.Now,
	}
}

// WithClock overrides the generator's clock. Test hook for the
// after-hours rule.
func (g *Generator) WithClock(now func() time.Time) *Generator {
	g.now = now
	return g
}

// Generate drafts a reply for the judged conversation. It never returns an
// error: when both the template path and the model path are unavailable it
// returns the safe fallback reply, flagged for review.
func (g *Generator) Generate(ctx context.Context, conv *domain.Conversation, j *domain.ConversationJudgment) *domain.GeneratedResponse {
	start := g.now()

	resp, ok := g.fromTemplate(conv, j, start)
	if !ok {
		resp, ok = g.fromModel(ctx, conv, j, start)
	}
	if !ok {
		return g.safeFallback(j, start)
	}

	rc := ruleContext{
		Judgment: j,
		Hours:    g.cfg.BusinessHours,
		Phone:    g.cfg.BusinessPhone,
		Now:      start,
	}
	resp.Text, resp.RulesApplied = applyBusinessRules(resp.Text, rc)
	resp.Quality = scoreQuality(resp.Text, j, g.cfg.BusinessPhone)
	resp.NeedsReview, resp.ReviewReasons = g.reviewGate(j, resp.Quality)

	if resp.NeedsReview {
		resp.State = domain.StatePendingReview
	} else {
		resp.State = domain.StateAutoApproved
	}
	resp.Cost.ProcessingTimeMs = time.Since(start).Milliseconds()
	return resp
}

// fromTemplate fills a canned reply when one exists for the judged intent.
func (g *Generator) fromTemplate(conv *domain.Conversation, j *domain.ConversationJudgment, start time.Time) (*domain.GeneratedResponse, bool) {
	if !g.cfg.TemplatesEnabled {
		return nil, false
	}
	t, ok := lookupTemplate(j)
	if !ok {
		return nil, false
	}
	vars := TemplateVars{
		"business_name":       g.cfg.BusinessName,
		"business_phone":      g.cfg.BusinessPhone,
		"business_hours":      g.hoursString(),
		"customer_first_name": firstName(conv.CustomerName),
	}
	return &domain.GeneratedResponse{
		Text:        renderTemplate(t.Text, vars),
		Type:        t.Type,
		Tone:        t.Tone,
		TemplateID:  t.ID,
		State:       domain.StateDraft,
		GeneratedAt: start,
	}, true
}

// fromModel drafts a bespoke reply through the gateway.
func (g *Generator) fromModel(ctx context.Context, conv *domain.Conversation, j *domain.ConversationJudgment, start time.Time) (*domain.GeneratedResponse, bool) {
	tone := toneFor(j)
	system, user := llm.BuildResponsePrompt(llm.ResponsePromptContext{
		BusinessName:  g.cfg.BusinessName,
		BusinessPhone: g.cfg.BusinessPhone,
		CustomerName:  conv.CustomerName,
		Message:       conv.LatestCustomerMessage(),
		Intent:        j.Intent,
		Sentiment:     j.Sentiment,
		IsEmergency:   j.IsEmergency,
		Tone:          tone,
	})

	priority := out.PriorityNormal
	if j.IsEmergency {
		priority = out.PriorityHigh
	}

	resp, err := g.gateway.Send(ctx, &out.LLMRequest{
		System:   system,
		Messages: llm.ChatUser(user),
		Params: out.ModelParams{
			Model:       g.cfg.Model,
			MaxTokens:   g.cfg.MaxTokens,
			Temperature: g.cfg.Temperature,
		},
	}, &out.SendOptions{Priority: priority, Cacheable: false})
	if err != nil {
		g.log.Warn().Err(err).Str("conversation_id", j.ConversationID).
			Msg("model draft failed")
		return nil, false
	}

	text := strings.TrimSpace(resp.Text)
	if text == "" {
		return nil, false
	}

	return &domain.GeneratedResponse{
		Text:        text,
		Type:        typeFor(j),
		Tone:        tone,
		State:       domain.StateDraft,
		GeneratedAt: start,
		Cost: domain.CostInfo{
			InputTokens:  resp.Usage.Input,
			OutputTokens: resp.Usage.Output,
		},
	}, true
}

// safeFallback is the reply of last resort: generic, harmless, and always
// routed through a human.
func (g *Generator) safeFallback(j *domain.ConversationJudgment, start time.Time) *domain.GeneratedResponse {
	text := fmt.Sprintf("Thank you for contacting %s. We've received your message and a member of our team will get back to you shortly. If this is urgent, please call us at %s.",
		g.cfg.BusinessName, g.cfg.BusinessPhone)
	return &domain.GeneratedResponse{
		Text:          text,
		Type:          domain.ResponseFollowUp,
		Tone:          domain.ToneProfessional,
		Quality:       scoreQuality(text, j, g.cfg.BusinessPhone),
		NeedsReview:   true,
		ReviewReasons: []string{"generation system failure"},
		State:         domain.StatePendingReview,
		GeneratedAt:   start,
		Cost:          domain.CostInfo{ProcessingTimeMs: time.Since(start).Milliseconds()},
	}
}

// reviewGate decides whether a draft may auto-send. Reasons are verbatim so
// reviewers see exactly which condition tripped.
func (g *Generator) reviewGate(j *domain.ConversationJudgment, q domain.QualityScores) (bool, []string) {
	var reasons []string
	if g.cfg.RequireReviewEmergency && j.IsEmergency {
		reasons = append(reasons, "emergency situation")
	}
	if g.cfg.RequireReviewComplaint && j.Intent == domain.IntentComplaint {
		reasons = append(reasons, "customer complaint")
	}
	if g.cfg.RequireReviewLowConfidence && j.Confidence < g.cfg.ConfidenceThreshold {
		reasons = append(reasons, fmt.Sprintf("classification confidence %.2f below threshold %.2f",
			j.Confidence, g.cfg.ConfidenceThreshold))
	}
	if q.Overall < g.cfg.ConfidenceThreshold {
		reasons = append(reasons, fmt.Sprintf("overall quality %.2f below threshold %.2f",
			q.Overall, g.cfg.ConfidenceThreshold))
	}
	min := g.cfg.QualityThresholds
	for _, dim := range []struct {
		name      string
		value     float64
		threshold float64
	}{
		{"appropriateness", q.Appropriateness, min.Appropriateness},
		{"professionalism", q.Professionalism, min.Professionalism},
		{"helpfulness", q.Helpfulness, min.Helpfulness},
		{"clarity", q.Clarity, min.Clarity},
	} {
		if dim.value < dim.threshold {
			reasons = append(reasons, fmt.Sprintf("%s score %.2f below minimum %.2f",
				dim.name, dim.value, dim.threshold))
		}
	}
	return len(reasons) > 0, reasons
}

func (g *Generator) hoursString() string {
	return fmt.Sprintf("%d:00-%d:00", g.cfg.BusinessHours.OpenHour, g.cfg.BusinessHours.CloseHour)
}

func toneFor(j *domain.ConversationJudgment) domain.ResponseTone {
	switch {
	case j.IsEmergency:
		return domain.ToneUrgent
	case j.Sentiment == domain.SentimentAngry,
		j.Sentiment == domain.SentimentFrustrated,
		j.Sentiment == domain.SentimentWorried,
		j.Intent == domain.IntentComplaint:
		return domain.ToneEmpathetic
	default:
		return domain.ToneProfessional
	}
}

func typeFor(j *domain.ConversationJudgment) domain.ResponseType {
	switch j.Intent {
	case domain.IntentEmergencyService:
		return domain.ResponseEmergency
	case domain.IntentQuoteRequest:
		return domain.ResponseQuote
	case domain.IntentScheduling:
		return domain.ResponseScheduling
	case domain.IntentComplaint:
		return domain.ResponseImmediate
	default:
		return domain.ResponseInformational
	}
}
