package domain

import "time"

// ResponseType categorizes an outbound reply
type ResponseType string

const (
	ResponseEmergency     ResponseType = "emergency"
	ResponseQuote         ResponseType = "quote"
	ResponseScheduling    ResponseType = "scheduling"
	ResponseInformational ResponseType = "informational"
	ResponseImmediate     ResponseType = "immediate"
	ResponseFollowUp      ResponseType = "follow_up"
)

// ResponseTone describes the register of the generated text
type ResponseTone string

const (
	ToneProfessional ResponseTone = "professional"
	ToneEmpathetic   ResponseTone = "empathetic"
	ToneUrgent       ResponseTone = "urgent"
)

// ResponseState is the delivery lifecycle of a generated reply
type ResponseState string

const (
	StateDraft          ResponseState = "draft"
	StateAutoApproved   ResponseState = "auto_approved"
	StatePendingReview  ResponseState = "pending_review"
	StateSent           ResponseState = "sent"
	StateEditedThenSent ResponseState = "edited_then_sent"
)

// QualityScores is the heuristic quality vector, each dimension 0.0-1.0.
type QualityScores struct {
	Appropriateness float64 `json:"appropriateness"`
	Professionalism float64 `json:"professionalism"`
	Helpfulness     float64 `json:"helpfulness"`
	Clarity         float64 `json:"clarity"`
	Overall         float64 `json:"overall"`
}

// ResponseFeedback records the human reviewer's decision.
type ResponseFeedback struct {
	Approved      bool      `json:"approved"`
	Edited        bool      `json:"edited"`
	FinalResponse string    `json:"final_response,omitempty"`
	Rating        int       `json:"rating,omitempty"` // 1-5
	ReviewedAt    time.Time `json:"reviewed_at"`
	ReviewedBy    string    `json:"reviewed_by,omitempty"`
}

// GeneratedResponse is the outbound-reply value object.
// Mutations happen only through ApplyFeedback, which returns an amended copy.
type GeneratedResponse struct {
	Text          string            `json:"text"`
	Type          ResponseType      `json:"type"`
	Tone          ResponseTone      `json:"tone"`
	Alternatives  []string          `json:"alternatives,omitempty"`
	TemplateID    string            `json:"template_id,omitempty"`
	RulesApplied  []string          `json:"rules_applied,omitempty"`
	Quality       QualityScores     `json:"quality"`
	NeedsReview   bool              `json:"needs_review"`
	ReviewReasons []string          `json:"review_reasons,omitempty"`
	State         ResponseState     `json:"state"`
	Feedback      *ResponseFeedback `json:"feedback,omitempty"`
	Cost          CostInfo          `json:"cost"`
	GeneratedAt   time.Time         `json:"generated_at"`
}

// ApplyFeedback returns an amended copy with feedback populated and the
// lifecycle advanced to a terminal state. The original is left untouched.
func (r GeneratedResponse) ApplyFeedback(fb ResponseFeedback) GeneratedResponse {
	amended := r
	amended.Feedback = &fb

	if fb.Edited {
		amended.State = StateEditedThenSent
		if fb.FinalResponse != "" {
			amended.Text = fb.FinalResponse
		}
	} else {
		amended.State = StateSent
	}

	// Copy slices so the amended object shares no mutable state.
	amended.Alternatives = append([]string(nil), r.Alternatives...)
	amended.RulesApplied = append([]string(nil), r.RulesApplied...)
	amended.ReviewReasons = append([]string(nil), r.ReviewReasons...)

	return amended
}
