// Package seed provides the mock applications loaded on startup.
// The records are maintained by hand and match the desk's demo data set.
package seed

import (
	"context"
	"fmt"

	"github.com/garyellow/visadesk/internal/storage"
)

// Loader is the storage surface needed to seed.
type Loader interface {
	SeedApplications(ctx context.Context, apps []storage.Application) (int, error)
}

// Load inserts the mock applications that are not yet stored and returns
// how many were added.
func Load(ctx context.Context, db Loader) (int, error) {
	n, err := db.SeedApplications(ctx, Applications())
	if err != nil {
		return 0, fmt.Errorf("seed applications: %w", err)
	}
	return n, nil
}

// Applications returns a fresh copy of the mock data set.
func Applications() []storage.Application {
	return []storage.Application{
		{
			ID:                 "WP-2024-1234",
			Name:               "Hans Mueller",
			DateOfBirth:        "1985-03-15",
			Email:              "hans.mueller@email.de",
			VisaType:           storage.VisaWorkPermit,
			Status:             storage.StatusDocumentsRequired,
			SubmittedDate:      "2024-03-01",
			ExpectedCompletion: "2024-04-20",
			Documents: []storage.Document{
				{
					ID:       "employment-contract",
					Name:     "Employment Contract with Salary Details",
					Status:   storage.DocumentMissing,
					Deadline: "2024-04-15",
					Template: "employment_contract_template.pdf",
				},
				{
					ID:       "language-certificate",
					Name:     "German Language Proficiency Certificate (B1)",
					Status:   storage.DocumentMissing,
					Deadline: "2024-04-15",
					Template: "language_cert_requirements.pdf",
				},
				{ID: "passport-copy", Name: "Passport Copy", Status: storage.DocumentReceived},
			},
			Timeline: []storage.TimelineEvent{
				{Step: storage.StepSubmitted, Date: "2024-03-01"},
				{Step: storage.StepInitialReview, Date: "2024-03-05"},
				{Step: storage.StepDocumentsRequested, Date: "2024-03-10"},
				{Step: storage.StepExpectedDecision, Date: "2024-04-20"},
			},
		},
		{
			ID:                 "SV-2024-7891",
			Name:               "Maria Santos",
			DateOfBirth:        "1992-08-22",
			Email:              "maria.santos@email.com",
			VisaType:           storage.VisaStudent,
			Status:             storage.StatusUnderReview,
			SubmittedDate:      "2024-02-10",
			ExpectedCompletion: "2024-04-25",
			Documents: []storage.Document{
				{ID: "acceptance-letter", Name: "University Acceptance Letter", Status: storage.DocumentReceived},
				{ID: "financial-proof", Name: "Financial Proof (€10,332 for one year)", Status: storage.DocumentReceived},
				{ID: "health-insurance", Name: "Health Insurance Confirmation", Status: storage.DocumentReceived},
			},
			Timeline: []storage.TimelineEvent{
				{Step: storage.StepSubmitted, Date: "2024-02-10"},
				{Step: storage.StepInitialReview, Date: "2024-02-15"},
				{Step: storage.StepUnderExtendedReview, Date: "2024-03-01"},
				{Step: storage.StepExpectedDecision, Date: "2024-04-25"},
			},
		},
		{
			ID:                 "TV-2024-3456",
			Name:               "Ahmed Hassan",
			DateOfBirth:        "1978-12-03",
			Email:              "ahmed.hassan@email.com",
			VisaType:           storage.VisaTourist,
			Status:             storage.StatusApproved,
			SubmittedDate:      "2024-03-20",
			ExpectedCompletion: "2024-03-27",
			ApprovalDate:       "2024-03-25",
			Documents:          []storage.Document{},
			Timeline: []storage.TimelineEvent{
				{Step: storage.StepSubmitted, Date: "2024-03-20"},
				{Step: storage.StepInitialReview, Date: "2024-03-22"},
				{Step: storage.StepApproved, Date: "2024-03-25"},
				{Step: storage.StepExpectedDecision, Date: "2024-03-25"},
			},
		},
		{
			ID:                 "FR-2024-5678",
			Name:               "Elena Rossi",
			DateOfBirth:        "1990-07-12",
			Email:              "elena.rossi@email.it",
			VisaType:           storage.VisaFamilyReunification,
			Status:             storage.StatusUnderReview,
			SubmittedDate:      "2024-01-15",
			ExpectedCompletion: "2024-05-01",
			Documents: []storage.Document{
				{ID: "marriage-certificate", Name: "Marriage Certificate (Certified Translation)", Status: storage.DocumentReceived},
				{ID: "spouse-residence-permit", Name: "Spouse's German Residence Permit", Status: storage.DocumentReceived},
				{ID: "housing-proof", Name: "Proof of Adequate Housing", Status: storage.DocumentReceived},
			},
			Timeline: []storage.TimelineEvent{
				{Step: storage.StepSubmitted, Date: "2024-01-15"},
				{Step: storage.StepInitialReview, Date: "2024-01-20"},
				{Step: storage.StepUnderExtendedReview, Date: "2024-02-15"},
				{Step: storage.StepExpectedDecision, Date: "2024-05-01"},
			},
		},
	}
}
