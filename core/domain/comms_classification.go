package domain

import "time"

// ProcessingMethod tags which path produced a classification
type ProcessingMethod string

const (
	MethodHeuristic       ProcessingMethod = "heuristic"        // keyword pass alone was trusted
	MethodLLM             ProcessingMethod = "llm"              // model call without heuristic hint
	MethodHybrid          ProcessingMethod = "hybrid"           // model call seeded with heuristic hint
	MethodKeywordMatching ProcessingMethod = "keyword_matching" // degraded fallback after model failure
)

// AlternativeIntent is a lower-ranked candidate from classification.
type AlternativeIntent struct {
	Intent     Intent  `json:"intent"`
	Confidence float64 `json:"confidence"`
	Reasoning  string  `json:"reasoning,omitempty"`
}

// ContextualFactors holds signals matched while classifying a message.
type ContextualFactors struct {
	UrgencyIndicators   []string `json:"urgency_indicators,omitempty"`
	EmotionalIndicators []string `json:"emotional_indicators,omitempty"`
	KeyPhrases          []string `json:"key_phrases,omitempty"`
}

// ClassificationResult is the per-message classification value object.
// Immutable once produced; the caller owns persistence.
type ClassificationResult struct {
	Intent              Intent              `json:"intent"`
	Confidence          float64             `json:"confidence"`
	Alternatives        []AlternativeIntent `json:"alternatives,omitempty"`
	IsEmergency         bool                `json:"is_emergency"`
	EmergencyConfidence float64             `json:"emergency_confidence"`
	Factors             ContextualFactors   `json:"factors"`
	Method              ProcessingMethod    `json:"method"`
	Reasoning           string              `json:"reasoning,omitempty"`
	ClassifiedAt        time.Time           `json:"classified_at"`
	ProcessingTimeMs    int64               `json:"processing_time_ms"`

	// Degraded is set when the result was produced by a fallback path
	// (model parse failure or backend unavailable). Callers must not
	// treat a degraded result as a hard error, nor the reverse.
	Degraded       bool   `json:"degraded,omitempty"`
	DegradedReason string `json:"degraded_reason,omitempty"`
}
