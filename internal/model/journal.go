package model

// JournalEntry is one review-log entry covering a date range.
type JournalEntry struct {
	ID             string    `json:"id"`
	PeriodStart    Date      `json:"period_start"`
	PeriodEnd      Date      `json:"period_end"`
	ObservationsMD string    `json:"observations_md"`
	DecisionsMD    string    `json:"decisions_md"`
	CreatedAt      Timestamp `json:"created_at"`
	UpdatedAt      Timestamp `json:"updated_at"`
}

// JournalCreate is the body of POST /api/journal.
type JournalCreate struct {
	PeriodStart    Date   `json:"period_start"`
	PeriodEnd      Date   `json:"period_end"`
	ObservationsMD string `json:"observations_md"`
	DecisionsMD    string `json:"decisions_md"`
}

// JournalUpdate is the body of PATCH /api/journal/{id}. Nil fields are
// left unchanged.
type JournalUpdate struct {
	ObservationsMD *string `json:"observations_md,omitempty"`
	DecisionsMD    *string `json:"decisions_md,omitempty"`
}
