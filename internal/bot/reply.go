package bot

import "time"

// Reply intents.
const (
	IntentGreeting      = "greeting"
	IntentVerify        = "verify"
	IntentRateLimited   = "rate_limited"
	IntentLogout        = "logout"
	IntentTooLong       = "too_long"
	IntentFAQ           = "faq"
	IntentClarification = "clarification"
	IntentDefault       = "default"
	IntentError         = "error"
)

// Reply copy.
const (
	GreetingText = "Hello! I'm your virtual assistant for the German Foreign Office. I can help you check your visa application status, understand document requirements, and answer questions about processing times. How may I assist you today?"

	TooLongText     = "Your message is too long. Please keep it under %d characters."
	RateLimitedText = "You're sending messages too quickly. Please wait a moment and try again."
	ErrorText       = "Sorry, something went wrong while answering. Please try again."

	DefaultTextFormat = "I understand you're asking about \"%s\". For your %s application, I can help you with:\n\n" +
		"• Application status updates\n" +
		"• Document requirements\n" +
		"• Processing timelines\n" +
		"• Appointment scheduling\n" +
		"• Emergency processing requests\n\n" +
		"Could you please be more specific about what you'd like to know?"
)

// Quick action labels.
const (
	QuickStatus    = "Check my application status"
	QuickDocuments = "What documents do I need?"
	QuickTimeline  = "How long will processing take?"
	QuickUrgent    = "I need urgent processing"
)

// QuickActions are offered with every reply to a verified applicant.
var QuickActions = []string{QuickStatus, QuickDocuments, QuickTimeline, QuickUrgent}

// Reply is the answer to one chat message.
type Reply struct {
	Text          string        `json:"text"`
	QuickReplies  []string      `json:"quick_replies,omitempty"`
	Intent        string        `json:"intent"`
	ApplicationID string        `json:"application_id,omitempty"`
	Verified      bool          `json:"verified"`
	RetryAfter    time.Duration `json:"-"`
}

// NewReply returns a reply with text attributed to intent.
func NewReply(intent, text string) *Reply {
	return &Reply{Text: text, Intent: intent}
}
