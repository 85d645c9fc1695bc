package genai

import "google.golang.org/genai"

// ModuleDirectReply is the pseudo-module for clarification replies.
const ModuleDirectReply = "direct_reply"

// BuildIntentFunctions returns the function declarations offered to the
// model. Descriptions say WHAT a function does; the system prompt says WHEN.
//
// Types use the genai.Type* constants ("STRING"). The OpenAI tool builder
// lowercases them for JSON Schema.
func BuildIntentFunctions() []*genai.FunctionDeclaration {
	noParams := func() *genai.Schema {
		return &genai.Schema{Type: genai.TypeObject, Properties: map[string]*genai.Schema{}}
	}

	return []*genai.FunctionDeclaration{
		{
			Name:        "status_query",
			Description: "Report the current status of the applicant's visa application and its expected completion.",
			Parameters:  noParams(),
		},
		{
			Name:        "documents_query",
			Description: "List the documents still missing and already received for the application, with deadlines.",
			Parameters:  noParams(),
		},
		{
			Name:        "timeline_query",
			Description: "Show processing milestones: submission, initial review and expected decision dates.",
			Parameters:  noParams(),
		},
		{
			Name:        "urgency_request",
			Description: "Explain how to request emergency or expedited processing.",
			Parameters:  noParams(),
		},
		{
			Name:        "appointment_info",
			Description: "Explain how to book, change or attend an appointment at the visa office.",
			Parameters:  noParams(),
		},
		{
			Name:        "direct_reply",
			Description: "Reply directly when the message is small talk, unclear, or outside the visa desk's scope.",
			Parameters: &genai.Schema{
				Type: genai.TypeObject,
				Properties: map[string]*genai.Schema{
					"message": {
						Type:        genai.TypeString,
						Description: "Short English reply. Ask a clarifying question when the request is ambiguous.",
					},
				},
				Required: []string{"message"},
			},
		},
	}
}

// IntentModuleMap maps function names to [module, intent].
var IntentModuleMap = map[string][2]string{
	"status_query":     {"status", "query"},
	"documents_query":  {"documents", "query"},
	"timeline_query":   {"timeline", "query"},
	"urgency_request":  {"urgency", "request"},
	"appointment_info": {"appointment", "info"},
	"direct_reply":     {ModuleDirectReply, ""},
}

// ParamKeysMap lists the parameters extracted from each function call.
// Functions without parameters are absent.
var ParamKeysMap = map[string][]string{
	"direct_reply": {"message"},
}
