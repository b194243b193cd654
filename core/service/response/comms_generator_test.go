package response

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"comms_server/config"
	"comms_server/core/domain"
	"comms_server/core/port/out"
	"comms_server/pkg/apperr"
)

type stubGateway struct {
	calls int
	reply string
	err   error
}

func (s *stubGateway) Send(ctx context.Context, req *out.LLMRequest, opts *out.SendOptions) (*out.LLMResponse, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return &out.LLMResponse{Text: s.reply, Usage: out.TokenUsage{Input: 80, Output: 60}}, nil
}

func weekdayHours() config.BusinessHours {
	return config.BusinessHours{
		OpenHour:  8,
		CloseHour: 18,
		Days: map[time.Weekday]bool{
			time.Monday: true, time.Tuesday: true, time.Wednesday: true,
			time.Thursday: true, time.Friday: true,
		},
	}
}

func testGeneratorConfig() GeneratorConfig {
	return GeneratorConfig{
		BusinessName:               "Marfinetz Plumbing",
		BusinessPhone:              "(814) 555-0123",
		BusinessHours:              weekdayHours(),
		TemplatesEnabled:           true,
		ConfidenceThreshold:        0.7,
		QualityThresholds:          config.QualityThresholds{Appropriateness: 0.5, Professionalism: 0.5, Helpfulness: 0.5, Clarity: 0.5},
		RequireReviewEmergency:     true,
		RequireReviewComplaint:     true,
		RequireReviewLowConfidence: true,
	}
}

// duringBusinessHours is a Tuesday at 10:00.
var duringBusinessHours = time.Date(2026, time.March, 3, 10, 0, 0, 0, time.UTC)

// afterBusinessHours is a Tuesday at 21:00.
var afterBusinessHours = time.Date(2026, time.March, 3, 21, 0, 0, 0, time.UTC)

func newTestGenerator(gw out.LLMGateway, cfg GeneratorConfig, at time.Time) *Generator {
	return NewGenerator(gw, cfg, zerolog.Nop()).WithClock(func() time.Time { return at })
}

func judgment(intent domain.Intent, confidence float64, emergency bool) *domain.ConversationJudgment {
	j := &domain.ConversationJudgment{
		ClassificationResult: domain.ClassificationResult{
			Intent:      intent,
			Confidence:  confidence,
			IsEmergency: emergency,
		},
		ConversationID: "c1",
		UrgencyLevel:   domain.UrgencyFlexible,
		Sentiment:      domain.SentimentNeutral,
		Stage:          domain.StageInitialContact,
	}
	if emergency {
		j.UrgencyLevel = domain.UrgencyImmediate
	}
	return j
}

func testConv(body string) *domain.Conversation {
	return &domain.Conversation{
		ID:           "c1",
		CustomerName: "Pat Doyle",
		Messages:     []domain.Message{{Role: domain.RoleCustomer, Body: body, ReceivedAt: time.Now()}},
	}
}

func TestTemplateRendering(t *testing.T) {
	gw := &stubGateway{}
	g := newTestGenerator(gw, testGeneratorConfig(), duringBusinessHours)

	resp := g.Generate(context.Background(), testConv("How much for a new water line?"),
		judgment(domain.IntentQuoteRequest, 0.9, false))

	if gw.calls != 0 {
		t.Errorf("gateway calls = %d, want 0 (template path)", gw.calls)
	}
	if resp.TemplateID != "quote_routine" {
		t.Errorf("TemplateID = %q, want quote_routine", resp.TemplateID)
	}
	if !strings.Contains(resp.Text, "Marfinetz Plumbing") {
		t.Errorf("Text missing business name: %q", resp.Text)
	}
	if !strings.Contains(resp.Text, "(814) 555-0123") {
		t.Errorf("Text missing business phone: %q", resp.Text)
	}
	if strings.Contains(resp.Text, "{{") {
		t.Errorf("Text has unrendered placeholders: %q", resp.Text)
	}
	if resp.NeedsReview {
		t.Errorf("NeedsReview = true for a confident routine quote, reasons: %v", resp.ReviewReasons)
	}
	if resp.State != domain.StateAutoApproved {
		t.Errorf("State = %q, want auto_approved", resp.State)
	}
}

func TestEmergencyResponse(t *testing.T) {
	gw := &stubGateway{}
	g := newTestGenerator(gw, testGeneratorConfig(), duringBusinessHours)

	resp := g.Generate(context.Background(), testConv("My basement is flooding, please help!"),
		judgment(domain.IntentEmergencyService, 0.95, true))

	if resp.Type != domain.ResponseEmergency {
		t.Errorf("Type = %q, want emergency", resp.Type)
	}
	if resp.Tone != domain.ToneUrgent {
		t.Errorf("Tone = %q, want urgent", resp.Tone)
	}
	if !resp.NeedsReview {
		t.Error("emergency responses must require review")
	}
	if resp.State != domain.StatePendingReview {
		t.Errorf("State = %q, want pending_review", resp.State)
	}
	hasReason := false
	for _, r := range resp.ReviewReasons {
		if r == "emergency situation" {
			hasReason = true
		}
	}
	if !hasReason {
		t.Errorf("ReviewReasons = %v, want emergency reason", resp.ReviewReasons)
	}
}

func TestEmergencyPrefixRule(t *testing.T) {
	// Model draft with no mention of "emergency": the rule prepends it.
	gw := &stubGateway{reply: "We're sending a technician to your home right away. Call us at (814) 555-0123 if it worsens."}
	cfg := testGeneratorConfig()
	cfg.TemplatesEnabled = false
	g := newTestGenerator(gw, cfg, duringBusinessHours)

	resp := g.Generate(context.Background(), testConv("Water heater burst!"),
		judgment(domain.IntentEmergencyService, 0.95, true))

	if !strings.HasPrefix(resp.Text, "EMERGENCY SERVICE: ") {
		t.Errorf("Text = %q, want EMERGENCY SERVICE prefix", resp.Text)
	}
	hasRule := false
	for _, id := range resp.RulesApplied {
		if id == "emergency_prefix" {
			hasRule = true
		}
	}
	if !hasRule {
		t.Errorf("RulesApplied = %v, want emergency_prefix", resp.RulesApplied)
	}
}

func TestEmergencyPrefixNotDuplicated(t *testing.T) {
	gw := &stubGateway{}
	g := newTestGenerator(gw, testGeneratorConfig(), duringBusinessHours)

	// The emergency template already says "emergency".
	resp := g.Generate(context.Background(), testConv("Flooding!"),
		judgment(domain.IntentEmergencyService, 0.95, true))

	if strings.Count(strings.ToLower(resp.Text), "emergency") > 0 &&
		strings.HasPrefix(resp.Text, "EMERGENCY SERVICE: EMERGENCY") {
		t.Errorf("prefix duplicated: %q", resp.Text)
	}
}

func TestAfterHoursNotice(t *testing.T) {
	gw := &stubGateway{}
	g := newTestGenerator(gw, testGeneratorConfig(), afterBusinessHours)

	resp := g.Generate(context.Background(), testConv("How much for a sump pump install?"),
		judgment(domain.IntentQuoteRequest, 0.9, false))

	if !strings.Contains(resp.Text, "outside normal business hours") {
		t.Errorf("Text missing after-hours notice: %q", resp.Text)
	}

	// Emergencies skip the notice: dispatch happens regardless of the clock.
	emResp := g.Generate(context.Background(), testConv("Flooding!"),
		judgment(domain.IntentEmergencyService, 0.95, true))
	if strings.Contains(emResp.Text, "outside normal business hours") {
		t.Errorf("emergency reply carries after-hours notice: %q", emResp.Text)
	}
}

func TestComplaintRequiresReview(t *testing.T) {
	gw := &stubGateway{reply: "We're very sorry to hear about your experience and we understand your frustration. Please call us at (814) 555-0123 so we can make this right."}
	g := newTestGenerator(gw, testGeneratorConfig(), duringBusinessHours)

	// No complaint template: goes through the model.
	resp := g.Generate(context.Background(), testConv("Terrible service, I want a refund"),
		judgment(domain.IntentComplaint, 0.85, false))

	if gw.calls != 1 {
		t.Errorf("gateway calls = %d, want 1", gw.calls)
	}
	if !resp.NeedsReview {
		t.Error("complaint responses must require review")
	}
	if resp.Tone != domain.ToneEmpathetic {
		t.Errorf("Tone = %q, want empathetic", resp.Tone)
	}
}

func TestLowConfidenceRequiresReview(t *testing.T) {
	gw := &stubGateway{reply: "Thanks for reaching out! Could you tell us a bit more about the issue? You can also call us at (814) 555-0123."}
	cfg := testGeneratorConfig()
	cfg.TemplatesEnabled = false
	g := newTestGenerator(gw, cfg, duringBusinessHours)

	resp := g.Generate(context.Background(), testConv("hmm not sure"),
		judgment(domain.IntentGeneralQuestion, 0.3, false))

	if !resp.NeedsReview {
		t.Error("low-confidence responses must require review")
	}
	found := false
	for _, r := range resp.ReviewReasons {
		if strings.Contains(r, "confidence") && strings.Contains(r, "0.30") {
			found = true
		}
	}
	if !found {
		t.Errorf("ReviewReasons = %v, want verbatim confidence reason", resp.ReviewReasons)
	}
}

func TestSafeFallback(t *testing.T) {
	gw := &stubGateway{err: apperr.ServiceUnavailable("openai")}
	cfg := testGeneratorConfig()
	cfg.TemplatesEnabled = false
	g := newTestGenerator(gw, cfg, duringBusinessHours)

	resp := g.Generate(context.Background(), testConv("Anyone there?"),
		judgment(domain.IntentGeneralQuestion, 0.5, false))

	if resp == nil {
		t.Fatal("Generate must not return nil")
	}
	if !resp.NeedsReview {
		t.Error("fallback must require review")
	}
	if !strings.Contains(resp.Text, "(814) 555-0123") {
		t.Errorf("fallback missing callback number: %q", resp.Text)
	}
	found := false
	for _, r := range resp.ReviewReasons {
		if r == "generation system failure" {
			found = true
		}
	}
	if !found {
		t.Errorf("ReviewReasons = %v, want generation system failure", resp.ReviewReasons)
	}
}

func TestQualityEmpathySignal(t *testing.T) {
	j := judgment(domain.IntentComplaint, 0.85, false)
	j.Sentiment = domain.SentimentFrustrated

	with := scoreQuality("We're so sorry about this and we understand the frustration. Call us at (814) 555-0123.", j, "(814) 555-0123")
	without := scoreQuality("Your ticket has been logged. Call us at (814) 555-0123.", j, "(814) 555-0123")

	if with.Appropriateness <= without.Appropriateness {
		t.Errorf("empathy language should raise appropriateness: %v <= %v",
			with.Appropriateness, without.Appropriateness)
	}
}

func TestApplyFeedbackReturnsAmendedCopy(t *testing.T) {
	original := domain.GeneratedResponse{
		Text:  "draft text",
		State: domain.StatePendingReview,
	}

	edited := original.ApplyFeedback(domain.ResponseFeedback{
		Approved:      true,
		Edited:        true,
		FinalResponse: "edited text",
		ReviewedAt:    time.Now(),
	})

	if edited.State != domain.StateEditedThenSent {
		t.Errorf("State = %q, want edited_then_sent", edited.State)
	}
	if edited.Text != "edited text" {
		t.Errorf("Text = %q, want edited text", edited.Text)
	}
	if original.Text != "draft text" || original.State != domain.StatePendingReview {
		t.Error("original must be untouched")
	}

	sent := original.ApplyFeedback(domain.ResponseFeedback{Approved: true, ReviewedAt: time.Now()})
	if sent.State != domain.StateSent {
		t.Errorf("State = %q, want sent", sent.State)
	}
}
