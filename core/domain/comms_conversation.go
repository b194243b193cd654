package domain

import "time"

// UrgencyLevel is the ordered urgency scale: immediate > same_day > within_week > flexible
type UrgencyLevel string

const (
	UrgencyImmediate  UrgencyLevel = "immediate"
	UrgencySameDay    UrgencyLevel = "same_day"
	UrgencyWithinWeek UrgencyLevel = "within_week"
	UrgencyFlexible   UrgencyLevel = "flexible"
)

// Rank returns the urgency as an ordinal (higher = more urgent).
func (u UrgencyLevel) Rank() int {
	switch u {
	case UrgencyImmediate:
		return 3
	case UrgencySameDay:
		return 2
	case UrgencyWithinWeek:
		return 1
	default:
		return 0
	}
}

// IsValid reports whether the urgency level is a member of the fixed enum.
func (u UrgencyLevel) IsValid() bool {
	switch u {
	case UrgencyImmediate, UrgencySameDay, UrgencyWithinWeek, UrgencyFlexible:
		return true
	}
	return false
}

// Sentiment is the customer's emotional state across the conversation
type Sentiment string

const (
	SentimentAngry      Sentiment = "angry"
	SentimentFrustrated Sentiment = "frustrated"
	SentimentWorried    Sentiment = "worried"
	SentimentNeutral    Sentiment = "neutral"
	SentimentPositive   Sentiment = "positive"
)

// IsValid reports whether the sentiment is a member of the fixed enum.
func (s Sentiment) IsValid() bool {
	switch s {
	case SentimentAngry, SentimentFrustrated, SentimentWorried, SentimentNeutral, SentimentPositive:
		return true
	}
	return false
}

// ConversationStage tracks where the conversation sits in the service funnel
type ConversationStage string

const (
	StageInitialContact ConversationStage = "initial_contact"
	StageGatheringInfo  ConversationStage = "gathering_info"
	StageQuoting        ConversationStage = "quoting"
	StageScheduling     ConversationStage = "scheduling"
	StageInService      ConversationStage = "in_service"
	StageWrapUp         ConversationStage = "wrap_up"
)

// MessageRole identifies the author of a conversation message
type MessageRole string

const (
	RoleCustomer MessageRole = "customer"
	RoleBusiness MessageRole = "business"
)

// Message is a single turn in a customer conversation.
type Message struct {
	Role       MessageRole `json:"role"`
	Body       string      `json:"body"`
	ReceivedAt time.Time   `json:"received_at"`
}

// Conversation is the bounded context the analyzer works over.
// The caller owns ordering and persistence of messages.
type Conversation struct {
	ID           string    `json:"id"`
	CustomerName string    `json:"customer_name,omitempty"`
	Messages     []Message `json:"messages"`
}

// LatestCustomerMessage returns the most recent customer turn, or empty string.
func (c *Conversation) LatestCustomerMessage() string {
	for i := len(c.Messages) - 1; i >= 0; i-- {
		if c.Messages[i].Role == RoleCustomer {
			return c.Messages[i].Body
		}
	}
	return ""
}

// IsFirstContact reports whether the conversation has a single customer turn
// and no business replies yet.
func (c *Conversation) IsFirstContact() bool {
	customer, business := 0, 0
	for _, m := range c.Messages {
		switch m.Role {
		case RoleCustomer:
			customer++
		case RoleBusiness:
			business++
		}
	}
	return business == 0 && customer <= 1
}

// CostInfo tracks token/time spend attributable to one produced object.
type CostInfo struct {
	InputTokens      int   `json:"input_tokens"`
	OutputTokens     int   `json:"output_tokens"`
	ProcessingTimeMs int64 `json:"processing_time_ms"`
}

// ConversationJudgment extends a per-message classification to conversation scope.
// Invariant: IsEmergency == true implies UrgencyLevel == immediate; Validate enforces it.
type ConversationJudgment struct {
	ClassificationResult

	ConversationID    string            `json:"conversation_id"`
	UrgencyLevel      UrgencyLevel      `json:"urgency_level"`
	Sentiment         Sentiment         `json:"sentiment"`
	SentimentScore    float64           `json:"sentiment_score"`
	Stage             ConversationStage `json:"stage"`
	RecommendedAction string            `json:"recommended_action,omitempty"`
	Summary           string            `json:"summary,omitempty"`
	EnhancementNotes  []string          `json:"enhancement_notes,omitempty"`
	Cost              CostInfo          `json:"cost"`
	JudgedAt          time.Time         `json:"judged_at"`
}

// Validate repairs cross-field inconsistencies in place and returns the list
// of repairs applied. An emergency judgment always carries immediate urgency.
func (j *ConversationJudgment) Validate() []string {
	var repairs []string

	if !j.UrgencyLevel.IsValid() {
		j.UrgencyLevel = UrgencyFlexible
		repairs = append(repairs, "urgency level out of enum, reset to flexible")
	}
	if !j.Sentiment.IsValid() {
		j.Sentiment = SentimentNeutral
		repairs = append(repairs, "sentiment out of enum, reset to neutral")
	}
	if j.IsEmergency && j.UrgencyLevel != UrgencyImmediate {
		j.UrgencyLevel = UrgencyImmediate
		repairs = append(repairs, "emergency situation detected")
	}

	j.EnhancementNotes = append(j.EnhancementNotes, repairs...)
	return repairs
}
