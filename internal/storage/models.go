package storage

import (
	"slices"
	"time"
)

// Application statuses.
const (
	StatusDocumentsRequired = "documents_required"
	StatusUnderReview       = "under_review"
	StatusApproved          = "approved"
	StatusRejected          = "rejected"
)

// Visa types.
const (
	VisaWorkPermit          = "work_permit"
	VisaStudent             = "student_visa"
	VisaTourist             = "tourist_visa"
	VisaFamilyReunification = "family_reunification"
)

// Document statuses.
const (
	DocumentMissing  = "missing"
	DocumentReceived = "received"
)

// Timeline steps.
const (
	StepSubmitted           = "submitted"
	StepInitialReview       = "initialReview"
	StepDocumentsRequested  = "documentsRequested"
	StepUnderExtendedReview = "underExtendedReview"
	StepApproved            = "approved"
	StepRejected            = "rejected"
	StepExpectedDecision    = "expectedDecision"
)

// DateLayout is the storage format of calendar dates.
const DateLayout = "2006-01-02"

// Statuses lists every valid application status.
var Statuses = []string{StatusDocumentsRequired, StatusUnderReview, StatusApproved, StatusRejected}

// ValidStatus reports whether s is a known application status.
func ValidStatus(s string) bool { return slices.Contains(Statuses, s) }

// stepForStatus is the timeline step recorded when an application moves
// into a status.
var stepForStatus = map[string]string{
	StatusDocumentsRequired: StepDocumentsRequested,
	StatusUnderReview:       StepUnderExtendedReview,
	StatusApproved:          StepApproved,
	StatusRejected:          StepRejected,
}

// Application is a visa application with its documents and timeline.
type Application struct {
	ID                 string          `json:"id"`
	Name               string          `json:"applicant_name"`
	DateOfBirth        string          `json:"date_of_birth"`
	Email              string          `json:"email"`
	VisaType           string          `json:"visa_type"`
	Status             string          `json:"status"`
	SubmittedDate      string          `json:"submission_date"`
	ExpectedCompletion string          `json:"expected_completion"`
	ApprovalDate       string          `json:"approval_date,omitempty"`
	Documents          []Document      `json:"required_documents"`
	Timeline           []TimelineEvent `json:"timeline"`
	UpdatedAt          time.Time       `json:"updated_at"`
}

// MissingDocuments returns documents not yet received, in order.
func (a *Application) MissingDocuments() []Document {
	var out []Document
	for _, d := range a.Documents {
		if d.Status == DocumentMissing {
			out = append(out, d)
		}
	}
	return out
}

// ReceivedDocuments returns received documents, in order.
func (a *Application) ReceivedDocuments() []Document {
	var out []Document
	for _, d := range a.Documents {
		if d.Status == DocumentReceived {
			out = append(out, d)
		}
	}
	return out
}

// TimelineDate returns the date of the last event with the given step.
func (a *Application) TimelineDate(step string) (string, bool) {
	for _, ev := range slices.Backward(a.Timeline) {
		if ev.Step == step {
			return ev.Date, true
		}
	}
	return "", false
}

// Document is a required document.
type Document struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Status   string `json:"status"`
	Deadline string `json:"deadline,omitempty"`
	Template string `json:"template,omitempty"`
}

// TimelineEvent is one dated step in an application's history.
type TimelineEvent struct {
	Step string `json:"step"`
	Date string `json:"date"`
}

// StatusChange describes a committed status transition.
type StatusChange struct {
	Application *Application
	From        string
	To          string
}

// Session is the dialogue state of one chat conversation.
// An empty ApplicationID means the session is not verified.
type Session struct {
	Key           string    `json:"key"`
	ApplicationID string    `json:"application_id,omitempty"`
	VerifiedAt    time.Time `json:"verified_at,omitzero"`
	LastSeenAt    time.Time `json:"last_seen_at"`
}

// Verified reports whether the session is bound to an application.
func (s *Session) Verified() bool { return s != nil && s.ApplicationID != "" }

// Verification methods and outcomes.
const (
	MethodApplicationID = "application_id"
	MethodNameDOB       = "name_dob"
	MethodNone          = "none"

	OutcomeVerified    = "verified"
	OutcomeNotFound    = "not_found"
	OutcomeRateLimited = "rate_limited"
)

// VerificationAttempt is an audit row for one identity check.
// InputDigest is the SHA-256 of the normalized input; raw input is not kept.
type VerificationAttempt struct {
	ID            string    `json:"id"`
	SessionKey    string    `json:"session_key"`
	Channel       string    `json:"channel"`
	Method        string    `json:"method"`
	Outcome       string    `json:"outcome"`
	ApplicationID string    `json:"application_id,omitempty"`
	InputDigest   string    `json:"input_digest"`
	CreatedAt     time.Time `json:"created_at"`
}

// Notification statuses.
const (
	NotificationPending = "pending"
	NotificationSent    = "sent"
	NotificationFailed  = "failed"
)

// Notification is an outbox row.
type Notification struct {
	ID            string    `json:"id"`
	ApplicationID string    `json:"application_id"`
	LetterType    string    `json:"letter_type"`
	Recipient     string    `json:"recipient"`
	Subject       string    `json:"subject"`
	Body          string    `json:"body"`
	HTML          string    `json:"-"`
	DedupeKey     string    `json:"dedupe_key"`
	Status        string    `json:"status"`
	Attempts      int       `json:"attempts"`
	LastError     string    `json:"last_error,omitempty"`
	NextAttemptAt time.Time `json:"next_attempt_at"`
	ArchiveKey    string    `json:"archive_key,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	SentAt        time.Time `json:"sent_at,omitzero"`
}

// DueDocument is a missing document with a deadline, joined with its
// application for reminders.
type DueDocument struct {
	ApplicationID string
	Document      Document
}
