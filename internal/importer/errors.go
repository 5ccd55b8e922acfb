package importer

import (
	"errors"
	"fmt"

	"github.com/personal-pl/plctl/internal/model"
	"github.com/personal-pl/plctl/internal/period"
)

var (
	// ErrNothingToCommit is returned when no bank has an accepted upload
	// for the selected period.
	ErrNothingToCommit = errors.New("no uploaded statements to commit")
	// ErrBusy is returned when the same upload or a commit is already in
	// flight.
	ErrBusy = errors.New("operation already in progress")
)

// Error codes used by preflight checks and understood from the server.
const (
	CodeMissingColumns  = "missing_columns"
	CodeInvalidFormat   = "invalid_format"
	CodeDuplicateImport = "duplicate_import"
	CodeValidation      = "validation_error"
	CodeFileTooLarge    = "file_too_large"
	CodeEmptyFile       = "empty_file"
)

// ValidationFailure is an upload rejected for its content, locally or by
// the server. Hint is the text shown to the user.
type ValidationFailure struct {
	Bank    model.Bank
	File    string
	Code    string
	Message string
	Hint    string
	Local   bool // found before anything was sent
	Err     error
}

func (e *ValidationFailure) Error() string {
	return fmt.Sprintf("%s upload %s: %s", e.Bank, e.File, e.Message)
}

func (e *ValidationFailure) Unwrap() error { return e.Err }

// CommitFailure is a commit the server refused or could not complete.
type CommitFailure struct {
	Period  period.Period
	Message string
	Err     error
}

func (e *CommitFailure) Error() string {
	return fmt.Sprintf("commit %s: %s", e.Period, e.Message)
}

func (e *CommitFailure) Unwrap() error { return e.Err }
