package importer

import (
	"fmt"
	"strings"

	"github.com/personal-pl/plctl/internal/model"
)

// Hint turns an upload failure into guidance for the user. The structured
// code wins; messages without one are matched by substring.
func Hint(bank model.Bank, code, message string) string {
	switch code {
	case CodeMissingColumns:
		return fmt.Sprintf("CSV file is missing required columns for %s.", bank.DisplayName())
	case CodeInvalidFormat:
		return invalidFormatHint(bank)
	case CodeDuplicateImport:
		return duplicateHint
	case CodeValidation:
		return validationHint
	case CodeFileTooLarge:
		return "File is too large. Export a single month and try again."
	case CodeEmptyFile:
		return "File is empty."
	}

	switch {
	case strings.Contains(message, "Validation error"):
		return validationHint
	case strings.Contains(message, "duplicate"), strings.Contains(message, "already been imported"):
		return duplicateHint
	case strings.Contains(message, "No columns to parse"):
		return invalidFormatHint(bank)
	case strings.Contains(message, "Missing required columns"):
		return "CSV file is missing required columns for this bank."
	}
	if message == "" {
		return "Upload failed"
	}
	return message
}

const (
	validationHint = "Invalid file format or missing required fields"
	duplicateHint  = "This file has already been uploaded. To re-upload, you need to clear existing data."
)

func invalidFormatHint(bank model.Bank) string {
	return fmt.Sprintf("Invalid %s CSV format. Please ensure the file is exported from %s.", bank, bank.DisplayName())
}
