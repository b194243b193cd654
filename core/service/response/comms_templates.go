// Package response turns a conversation judgment into an outbound customer
// reply: template or model draft, then business rules, quality scoring, and
// the human-review gate.
package response

import (
	"strings"

	"comms_server/core/domain"
)

// TemplateVars feeds {{variable}} substitution. Keys: business_name,
// business_phone, business_hours, customer_first_name.
type TemplateVars map[string]string

// template is a canned reply for a well-understood intent. Severity splits
// intents whose wording depends on urgency (emergency vs same-day, etc.).
type template struct {
	ID   string
	Text string
	Type domain.ResponseType
	Tone domain.ResponseTone
}

// severityTier buckets a judgment into a template variant.
type severityTier string

const (
	tierCritical severityTier = "critical"
	tierElevated severityTier = "elevated"
	tierRoutine  severityTier = "routine"
)

type templateKey struct {
	Intent domain.Intent
	Tier   severityTier
}

var responseTemplates = map[templateKey]template{
	{domain.IntentEmergencyService, tierCritical}: {
		ID:   "emergency_critical",
		Text: "We understand this is an emergency and we're treating it as our top priority. A technician from {{business_name}} is being dispatched to you now. If the situation worsens, call us immediately at {{business_phone}}.",
		Type: domain.ResponseEmergency,
		Tone: domain.ToneUrgent,
	},
	{domain.IntentEmergencyService, tierElevated}: {
		ID:   "emergency_elevated",
		Text: "Thanks for letting us know — this sounds urgent and we're on it. {{business_name}} will have a technician out to you today. Call {{business_phone}} if anything changes before we arrive.",
		Type: domain.ResponseEmergency,
		Tone: domain.ToneUrgent,
	},
	{domain.IntentQuoteRequest, tierRoutine}: {
		ID:   "quote_routine",
		Text: "Thanks for reaching out to {{business_name}}! We'd be happy to put together an estimate for you. Could you share a few details about the job, or give us a call at {{business_phone}} and we'll walk through it together?",
		Type: domain.ResponseQuote,
		Tone: domain.ToneProfessional,
	},
	{domain.IntentScheduling, tierRoutine}: {
		ID:   "scheduling_routine",
		Text: "Thanks for contacting {{business_name}}. We'd be glad to get you on the schedule — our hours are {{business_hours}}. Let us know a couple of times that work for you, or call {{business_phone}} to book directly.",
		Type: domain.ResponseScheduling,
		Tone: domain.ToneProfessional,
	},
	{domain.IntentPaymentInquiry, tierRoutine}: {
		ID:   "payment_routine",
		Text: "Thanks for your message. For billing and payment questions the fastest path is a quick call to our office at {{business_phone}} — we'll pull up your account and sort it out together.",
		Type: domain.ResponseInformational,
		Tone: domain.ToneProfessional,
	},
	{domain.IntentServiceQuestion, tierRoutine}: {
		ID:   "service_question_routine",
		Text: "Thanks for reaching out to {{business_name}}! Yes, that's the kind of work we handle. Call us at {{business_phone}} or reply here and we can go over the details.",
		Type: domain.ResponseInformational,
		Tone: domain.ToneProfessional,
	},
}

// lookupTemplate returns the canned reply for a judgment, if one exists.
// Complaints and low-signal general questions intentionally have no
// template: they always go through the model for a bespoke reply.
func lookupTemplate(j *domain.ConversationJudgment) (template, bool) {
	tier := tierRoutine
	if j.Intent == domain.IntentEmergencyService {
		tier = tierElevated
		if j.UrgencyLevel == domain.UrgencyImmediate {
			tier = tierCritical
		}
	}
	t, ok := responseTemplates[templateKey{Intent: j.Intent, Tier: tier}]
	return t, ok
}

// renderTemplate substitutes {{variable}} placeholders. Unknown placeholders
// are left intact so they surface in review rather than vanishing silently.
func renderTemplate(text string, vars TemplateVars) string {
	for name, value := range vars {
		text = strings.ReplaceAll(text, "{{"+name+"}}", value)
	}
	return text
}

// firstName extracts the leading name token for template greetings.
func firstName(full string) string {
	full = strings.TrimSpace(full)
	if i := strings.IndexByte(full, ' '); i > 0 {
		return full[:i]
	}
	return full
}
