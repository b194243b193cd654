// Package classification implements the hybrid message classification pipeline.
package classification

import (
	"math"
	"sort"
	"strings"
	"time"

	"comms_server/core/domain"
)

// =============================================================================
// Keyword Classifier (fast heuristic pass)
// =============================================================================

// intentKeywords drives the per-intent substring matching. Matching is
// case-insensitive; multi-word phrases match as a whole.
var intentKeywords = map[domain.Intent][]string{
	domain.IntentEmergencyService: {
		"flooding", "flood", "burst pipe", "pipe burst", "gas leak", "no water",
		"emergency", "urgent", "sewage backup", "water everywhere", "overflowing",
		"no heat", "no hot water",
	},
	domain.IntentQuoteRequest: {
		"quote", "estimate", "how much", "price", "pricing", "cost", "ballpark",
	},
	domain.IntentScheduling: {
		"schedule", "appointment", "book", "reschedule", "availability",
		"when can you", "come out", "what time",
	},
	domain.IntentComplaint: {
		"complaint", "unhappy", "disappointed", "terrible", "refund",
		"poor service", "never again", "unacceptable", "still broken",
	},
	domain.IntentPaymentInquiry: {
		"invoice", "bill", "payment", "charge", "charged", "receipt", "balance",
	},
	domain.IntentServiceQuestion: {
		"do you service", "do you install", "do you repair", "do you offer",
		"do you", "service", "heater", "water heater", "warranty",
		"drain cleaning", "sump pump",
	},
}

// emergencyKeywords flags an active emergency regardless of the top intent.
var emergencyKeywords = []string{
	"flooding", "flood", "burst pipe", "pipe burst", "gas leak", "no water",
	"emergency", "urgent", "sewage backup", "water everywhere",
}

var urgencyIndicators = []string{
	"asap", "right now", "immediately", "today", "urgent", "emergency",
	"can't wait", "as soon as possible",
}

var frustrationIndicators = []string{
	"frustrated", "angry", "unacceptable", "ridiculous", "upset", "terrible",
	"worst", "fed up", "sick of", "third time", "again and again", "still waiting",
}

const (
	defaultConfidence = 0.3
	maxConfidence     = 0.9
)

// KeywordClassifier is the zero-latency, zero-cost first classification pass.
// Classify is a pure function of its input: deterministic, no external calls.
// It is also the fallback path whenever the model path fails or is skipped,
// so it draws intents from the same fixed enum.
type KeywordClassifier struct{}

// NewKeywordClassifier creates a keyword classifier.
func NewKeywordClassifier() *KeywordClassifier {
	return &KeywordClassifier{}
}

// Classify scores each intent by keyword matches. Confidence for the top
// intent is min(0.9, 0.5 + 0.1 * matchCount); with no matches at all the
// result is general_question at 0.3.
func (c *KeywordClassifier) Classify(text string) *domain.ClassificationResult {
	start := time.Now()
	lower := strings.ToLower(text)

	type scored struct {
		intent  domain.Intent
		matches []string
	}

	var candidates []scored
	for _, intent := range domain.AllIntents {
		var matched []string
		for _, kw := range intentKeywords[intent] {
			if strings.Contains(lower, kw) {
				matched = append(matched, kw)
			}
		}
		if len(matched) > 0 {
			candidates = append(candidates, scored{intent: intent, matches: matched})
		}
	}

	// Stable ranking: more matches first, then enum order (AllIntents is
	// iterated in order above, and sort.SliceStable preserves it on ties).
	sort.SliceStable(candidates, func(i, j int) bool {
		return len(candidates[i].matches) > len(candidates[j].matches)
	})

	result := &domain.ClassificationResult{
		Intent:       domain.IntentGeneralQuestion,
		Confidence:   defaultConfidence,
		Method:       domain.MethodHeuristic,
		ClassifiedAt: start,
	}

	if len(candidates) > 0 {
		top := candidates[0]
		result.Intent = top.intent
		result.Confidence = math.Min(maxConfidence, 0.5+0.1*float64(len(top.matches)))
		result.Factors.KeyPhrases = top.matches
		result.Reasoning = "matched keywords: " + strings.Join(top.matches, ", ")

		for _, alt := range candidates[1:] {
			result.Alternatives = append(result.Alternatives, domain.AlternativeIntent{
				Intent:     alt.intent,
				Confidence: math.Min(maxConfidence, 0.5+0.1*float64(len(alt.matches))),
				Reasoning:  "matched keywords: " + strings.Join(alt.matches, ", "),
			})
		}
	}

	if em := matchAll(lower, emergencyKeywords); len(em) > 0 {
		result.IsEmergency = true
		result.EmergencyConfidence = math.Min(maxConfidence, 0.5+0.15*float64(len(em)))
	}

	result.Factors.UrgencyIndicators = matchAll(lower, urgencyIndicators)
	result.Factors.EmotionalIndicators = matchAll(lower, frustrationIndicators)
	result.ProcessingTimeMs = time.Since(start).Milliseconds()

	return result
}

// HasEmergencySignal is the independent emergency re-check used by the
// conversation analyzer for corroboration.
func (c *KeywordClassifier) HasEmergencySignal(text string) bool {
	return len(matchAll(strings.ToLower(text), emergencyKeywords)) > 0
}

// FrustrationCount counts frustration indicators in text.
func (c *KeywordClassifier) FrustrationCount(text string) int {
	return len(matchAll(strings.ToLower(text), frustrationIndicators))
}

func matchAll(lower string, keywords []string) []string {
	var matched []string
	for _, kw := range keywords {
		if strings.Contains(lower, kw) {
			matched = append(matched, kw)
		}
	}
	return matched
}
