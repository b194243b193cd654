package domain

// Intent represents the AI-assigned category of a customer message
type Intent string

const (
	// === Urgent ===
	IntentEmergencyService Intent = "emergency_service" // Active emergency (flooding, gas leak, burst pipe)

	// === Revenue ===
	IntentQuoteRequest Intent = "quote_request" // Pricing/estimate requests
	IntentScheduling   Intent = "scheduling"    // Appointment booking, rescheduling, availability

	// === Support ===
	IntentComplaint       Intent = "complaint"       // Dissatisfaction with service or staff
	IntentPaymentInquiry  Intent = "payment_inquiry" // Invoices, billing, payment methods
	IntentServiceQuestion Intent = "service_question" // Questions about offered services

	// === Default ===
	IntentGeneralQuestion Intent = "general_question" // Anything that fits nowhere else
)

// AllIntents is the closed set of intents both classification paths draw from.
var AllIntents = []Intent{
	IntentEmergencyService,
	IntentQuoteRequest,
	IntentScheduling,
	IntentComplaint,
	IntentPaymentInquiry,
	IntentServiceQuestion,
	IntentGeneralQuestion,
}

// IsValid reports whether the intent is a member of the fixed enum.
func (i Intent) IsValid() bool {
	for _, v := range AllIntents {
		if i == v {
			return true
		}
	}
	return false
}

func (i Intent) String() string {
	return string(i)
}
