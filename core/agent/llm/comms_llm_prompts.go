package llm

import (
	"fmt"
	"strings"

	"comms_server/core/domain"
	"comms_server/core/port/out"
)

// =============================================================================
// Prompt Builders
// =============================================================================
// Prompts are assembled from typed contexts; optional sections are nullable
// fields, so the wire format stays stable and testable independent of the
// actual model call.

// HeuristicHint is the optional keyword-pass suggestion embedded in the
// classification prompt.
type HeuristicHint struct {
	Intent      domain.Intent
	Confidence  float64
	IsEmergency bool
}

// ClassificationPromptContext drives BuildClassificationPrompt.
type ClassificationPromptContext struct {
	Message string
	Hint    *HeuristicHint
}

// BuildClassificationPrompt builds the intent-classification request body.
func BuildClassificationPrompt(pc ClassificationPromptContext) (system, user string) {
	var b strings.Builder
	b.WriteString(`You are a message classification AI for a plumbing service business. Analyze the customer message and respond with JSON only.

Intents (pick ONE):
`)
	for _, intent := range domain.AllIntents {
		b.WriteString("- ")
		b.WriteString(string(intent))
		b.WriteString("\n")
	}
	b.WriteString(`
Respond with this exact JSON format:
{
  "intent": "intent_name",
  "confidence": 0.0-1.0,
  "is_emergency": true|false,
  "emergency_confidence": 0.0-1.0,
  "reasoning": "brief reasoning",
  "alternatives": [{"intent": "intent_name", "confidence": 0.0-1.0, "reasoning": "brief"}]
}`)

	if pc.Hint != nil {
		b.WriteString(fmt.Sprintf(`

A keyword pre-filter suggested intent %q at confidence %.2f (emergency: %v). Treat it as a hint, not ground truth.`,
			pc.Hint.Intent, pc.Hint.Confidence, pc.Hint.IsEmergency))
	}

	return b.String(), "Customer message:\n" + pc.Message
}

// JudgmentPromptContext drives BuildJudgmentPrompt.
type JudgmentPromptContext struct {
	CustomerName   string
	Messages       []domain.Message // bounded window, newest last
	Classification *domain.ClassificationResult
	FirstContact   bool
}

// BuildJudgmentPrompt builds the conversation-level judgment request body.
func BuildJudgmentPrompt(pc JudgmentPromptContext) (system, user string) {
	system = `You are a conversation analyst for a plumbing service business. Judge the whole conversation and respond with JSON only.

Respond with this exact JSON format:
{
  "urgency_level": "immediate|same_day|within_week|flexible",
  "sentiment": "angry|frustrated|worried|neutral|positive",
  "sentiment_score": 0.0-1.0,
  "stage": "initial_contact|gathering_info|quoting|scheduling|in_service|wrap_up",
  "is_emergency": true|false,
  "emergency_confidence": 0.0-1.0,
  "recommended_action": "one short sentence",
  "summary": "1-2 sentence summary"
}`

	var b strings.Builder
	if pc.CustomerName != "" {
		fmt.Fprintf(&b, "Customer: %s\n", pc.CustomerName)
	}
	if pc.FirstContact {
		b.WriteString("This is the customer's first contact.\n")
	}
	if pc.Classification != nil {
		fmt.Fprintf(&b, "Latest message was classified as %s (confidence %.2f, emergency %v).\n",
			pc.Classification.Intent, pc.Classification.Confidence, pc.Classification.IsEmergency)
	}
	b.WriteString("\nConversation:\n")
	for _, m := range pc.Messages {
		fmt.Fprintf(&b, "[%s] %s\n", m.Role, m.Body)
	}

	return system, b.String()
}

// ResponsePromptContext drives BuildResponsePrompt.
type ResponsePromptContext struct {
	BusinessName  string
	BusinessPhone string
	CustomerName  string
	Message       string
	Intent        domain.Intent
	Sentiment     domain.Sentiment
	IsEmergency   bool
	Tone          domain.ResponseTone
}

// BuildResponsePrompt builds the outbound-reply generation request body.
func BuildResponsePrompt(pc ResponsePromptContext) (system, user string) {
	var b strings.Builder
	fmt.Fprintf(&b, `You are a customer communication assistant for %s, a plumbing service business. Write a reply to the customer message.

Tone: %s
Callback number: %s
Keep the reply to 2-4 sentences. Only output the reply text, no greetings metadata or signature blocks.`,
		pc.BusinessName, pc.Tone, pc.BusinessPhone)

	if pc.IsEmergency {
		b.WriteString("\nThis is an EMERGENCY. Acknowledge the urgency and state that a technician is being dispatched.")
	}
	if pc.Sentiment == domain.SentimentAngry || pc.Sentiment == domain.SentimentFrustrated {
		b.WriteString("\nThe customer is upset. Open with a sincere acknowledgement of their frustration.")
	}

	var u strings.Builder
	if pc.CustomerName != "" {
		fmt.Fprintf(&u, "Customer name: %s\n", pc.CustomerName)
	}
	fmt.Fprintf(&u, "Intent: %s\n\nCustomer message:\n%s", pc.Intent, pc.Message)

	return b.String(), u.String()
}

// CleanJSONResponse strips markdown code fences the model sometimes wraps
// JSON output in.
func CleanJSONResponse(resp string) string {
	resp = strings.TrimSpace(resp)
	resp = strings.TrimPrefix(resp, "```json")
	resp = strings.TrimPrefix(resp, "```")
	resp = strings.TrimSuffix(resp, "```")
	return strings.TrimSpace(resp)
}

// ChatUser wraps a single user message for gateway requests.
func ChatUser(content string) []out.ChatMessage {
	return []out.ChatMessage{{Role: out.RoleUser, Content: content}}
}
