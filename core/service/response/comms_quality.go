package response

import (
	"strings"

	"comms_server/core/domain"
)

var empathyPhrases = []string{
	"sorry", "apologize", "understand", "frustrat", "we hear you",
	"thank you for your patience", "appreciate",
}

// scoreQuality computes the heuristic quality vector for a drafted reply.
// Deterministic, no model call. Each dimension starts from a base and earns
// increments for observable signals, capped at 1.0; Overall is the mean of
// the four dimensions.
func scoreQuality(text string, j *domain.ConversationJudgment, phone string) domain.QualityScores {
	lower := strings.ToLower(text)
	words := len(strings.Fields(text))
	sentences := countSentences(text)

	// Appropriateness: tone matches what the judgment demands.
	appropriateness := 0.6
	upset := j.Sentiment == domain.SentimentAngry || j.Sentiment == domain.SentimentFrustrated
	if upset {
		if containsAny(lower, empathyPhrases) {
			appropriateness += 0.3
		} else {
			appropriateness -= 0.2
		}
	} else {
		appropriateness += 0.2
	}
	if j.IsEmergency && strings.Contains(lower, "emergency") {
		appropriateness += 0.1
	}

	// Professionalism: no shouting, closes with actionable contact info.
	professionalism := 0.7
	if text != strings.ToUpper(text) {
		professionalism += 0.1
	}
	if strings.Contains(text, phone) {
		professionalism += 0.2
	}

	// Helpfulness: substance plus a concrete next step.
	helpfulness := 0.5
	if words >= 20 {
		helpfulness += 0.2
	}
	if strings.Contains(text, phone) || strings.Contains(lower, "call") || strings.Contains(lower, "reply") {
		helpfulness += 0.2
	}
	if j.IsEmergency && strings.Contains(lower, "dispatch") {
		helpfulness += 0.1
	}

	// Clarity: within the 2-4 sentence band, not a wall of text.
	clarity := 0.5
	if sentences >= 2 && sentences <= 5 {
		clarity += 0.3
	}
	if words <= 120 {
		clarity += 0.2
	}

	scores := domain.QualityScores{
		Appropriateness: clampScore(appropriateness),
		Professionalism: clampScore(professionalism),
		Helpfulness:     clampScore(helpfulness),
		Clarity:         clampScore(clarity),
	}
	scores.Overall = (scores.Appropriateness + scores.Professionalism +
		scores.Helpfulness + scores.Clarity) / 4
	return scores
}

func countSentences(text string) int {
	n := 0
	for _, r := range text {
		switch r {
		case '.', '!', '?':
			n++
		}
	}
	if n == 0 && strings.TrimSpace(text) != "" {
		n = 1
	}
	return n
}

func containsAny(haystack string, needles []string) bool {
	for _, n := range needles {
		if strings.Contains(haystack, n) {
			return true
		}
	}
	return false
}

func clampScore(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
