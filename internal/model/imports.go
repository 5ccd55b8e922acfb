package model

import "github.com/personal-pl/plctl/internal/period"

// ImportBatch is the result of one statement upload.
type ImportBatch struct {
	ID                string        `json:"import_batch_id"`
	Bank              Bank          `json:"bank"`
	Period            period.Period `json:"period_month"`
	DuplicateDetected bool          `json:"duplicate_detected"`
	FileSHA256        string        `json:"file_sha256"`
	RawRowsImported   int           `json:"raw_rows_imported"`
	SourceFile        string        `json:"source_file"`
}

// CommitRequest asks the backend to derive transactions for a period.
type CommitRequest struct {
	Period   period.Period `json:"period_month"`
	Accounts []string      `json:"accounts,omitempty"`
}

// CommitResult is the backend's report for one commit.
type CommitResult struct {
	Period              period.Period `json:"period_month"`
	AccountsProcessed   []string      `json:"accounts_processed"`
	TransactionsDerived int           `json:"transactions_derived"`
	RulesApplied        int           `json:"rules_applied"`
	RollupUpdated       bool          `json:"rollup_updated"`
	UncategorizedCount  int           `json:"uncategorized_count"`
}
