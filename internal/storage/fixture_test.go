package storage

import "testing"

func fixtureApplications() []Application {
	return []Application{
		{
			ID:                 "WP-2024-1234",
			Name:               "Hans Mueller",
			DateOfBirth:        "1985-03-15",
			Email:              "hans.mueller@email.de",
			VisaType:           VisaWorkPermit,
			Status:             StatusDocumentsRequired,
			SubmittedDate:      "2024-03-01",
			ExpectedCompletion: "2024-04-20",
			Documents: []Document{
				{ID: "employment-contract", Name: "Employment Contract with Salary Details", Status: DocumentMissing, Deadline: "2024-04-15", Template: "employment_contract_template.pdf"},
				{ID: "language-certificate", Name: "German Language Proficiency Certificate (B1)", Status: DocumentMissing, Deadline: "2024-04-15", Template: "language_cert_requirements.pdf"},
				{ID: "passport-copy", Name: "Passport Copy", Status: DocumentReceived},
			},
			Timeline: []TimelineEvent{
				{Step: StepSubmitted, Date: "2024-03-01"},
				{Step: StepInitialReview, Date: "2024-03-05"},
				{Step: StepDocumentsRequested, Date: "2024-03-10"},
				{Step: StepExpectedDecision, Date: "2024-04-20"},
			},
		},
		{
			ID:                 "FR-2024-5678",
			Name:               "Élena Rossi",
			DateOfBirth:        "1990-07-12",
			Email:              "elena.rossi@email.it",
			VisaType:           VisaFamilyReunification,
			Status:             StatusUnderReview,
			SubmittedDate:      "2024-01-15",
			ExpectedCompletion: "2024-05-01",
			Documents: []Document{
				{ID: "marriage-certificate", Name: "Marriage Certificate (Certified Translation)", Status: DocumentReceived},
			},
			Timeline: []TimelineEvent{
				{Step: StepSubmitted, Date: "2024-01-15"},
				{Step: StepInitialReview, Date: "2024-01-22"},
			},
		},
	}
}

func seedFixture(t *testing.T, db *DB) {
	t.Helper()
	if _, err := db.SeedApplications(t.Context(), fixtureApplications()); err != nil {
		t.Fatalf("SeedApplications() error = %v", err)
	}
}
