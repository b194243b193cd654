package response

import (
	"strings"
	"time"

	"comms_server/config"
	"comms_server/core/domain"
)

// ruleContext carries everything a business rule may inspect.
type ruleContext struct {
	Judgment *domain.ConversationJudgment
	Hours    config.BusinessHours
	Phone    string
	Now      time.Time
}

// businessRule post-processes a drafted reply. Apply returns the (possibly
// amended) text and whether the rule fired; fired rule IDs are recorded on
// the response for review audit.
type businessRule struct {
	ID    string
	Apply func(text string, rc ruleContext) (string, bool)
}

// businessRules run in order; later rules see earlier rules' edits.
var businessRules = []businessRule{
	{
		ID: "emergency_prefix",
		Apply: func(text string, rc ruleContext) (string, bool) {
			if !rc.Judgment.IsEmergency {
				return text, false
			}
			if strings.Contains(strings.ToLower(text), "emergency") {
				return text, false
			}
			return "EMERGENCY SERVICE: " + text, true
		},
	},
	{
		ID: "after_hours_notice",
		Apply: func(text string, rc ruleContext) (string, bool) {
			if rc.Hours.IsOpen(rc.Now) {
				return text, false
			}
			// Emergencies get dispatched regardless of the clock.
			if rc.Judgment.IsEmergency {
				return text, false
			}
			return text + " Please note we're currently outside normal business hours; we'll follow up first thing when we reopen, or you can reach our after-hours line at " + rc.Phone + ".", true
		},
	},
	{
		ID: "pricing_disclaimer",
		Apply: func(text string, rc ruleContext) (string, bool) {
			if rc.Judgment.Intent != domain.IntentQuoteRequest {
				return text, false
			}
			// Metadata-only: flags the reply for quote handling without
			// editing the text.
			return text, true
		},
	},
	{
		ID: "scheduling_followup",
		Apply: func(text string, rc ruleContext) (string, bool) {
			if rc.Judgment.Intent != domain.IntentScheduling {
				return text, false
			}
			return text, true
		},
	},
}

// applyBusinessRules runs every rule and returns the final text plus the IDs
// of the rules that fired.
func applyBusinessRules(text string, rc ruleContext) (string, []string) {
	var applied []string
	for _, rule := range businessRules {
		amended, fired := rule.Apply(text, rc)
		if fired {
			applied = append(applied, rule.ID)
		}
		text = amended
	}
	return text, applied
}
