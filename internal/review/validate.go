package review

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/personal-pl/plctl/internal/model"
)

const (
	// MaxMarkdownBytes caps each markdown field of an entry.
	MaxMarkdownBytes = 64 << 10
	// MaxSpanDays is the longest period a single entry may cover.
	MaxSpanDays = 366
)

// ValidationError describes one rejected field of a create or update request.
type ValidationError struct {
	Field       string
	Description string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Description)
}

// Invalid is returned by Service when local validation fails. Nothing is
// sent to the server in that case.
type Invalid []ValidationError

func (v Invalid) Error() string {
	msgs := make([]string, len(v))
	for i, e := range v {
		msgs[i] = e.Error()
	}
	return "invalid review entry: " + strings.Join(msgs, "; ")
}

// ValidateCreate checks period bounds and markdown sizes.
func ValidateCreate(in model.JournalCreate) []ValidationError {
	var errs []ValidationError

	switch {
	case in.PeriodStart.IsZero():
		errs = append(errs, ValidationError{Field: "period_start", Description: "is required"})
	case in.PeriodEnd.IsZero():
		errs = append(errs, ValidationError{Field: "period_end", Description: "is required"})
	case in.PeriodEnd.Before(in.PeriodStart.Time):
		errs = append(errs, ValidationError{
			Field:       "period_end",
			Description: fmt.Sprintf("%s is before period_start %s", in.PeriodEnd, in.PeriodStart),
		})
	default:
		days := int(in.PeriodEnd.Sub(in.PeriodStart.Time).Hours()/24) + 1
		if days > MaxSpanDays {
			errs = append(errs, ValidationError{
				Field:       "period_end",
				Description: fmt.Sprintf("period covers %d days, limit is %d", days, MaxSpanDays),
			})
		}
	}

	errs = append(errs, checkMarkdown("observations_md", in.ObservationsMD)...)
	errs = append(errs, checkMarkdown("decisions_md", in.DecisionsMD)...)
	return errs
}

// ValidateUpdate checks that an update changes something and that the new
// markdown fits.
func ValidateUpdate(in model.JournalUpdate) []ValidationError {
	if in.ObservationsMD == nil && in.DecisionsMD == nil {
		return []ValidationError{{Field: "update", Description: "nothing to change"}}
	}
	var errs []ValidationError
	if in.ObservationsMD != nil {
		errs = append(errs, checkMarkdown("observations_md", *in.ObservationsMD)...)
	}
	if in.DecisionsMD != nil {
		errs = append(errs, checkMarkdown("decisions_md", *in.DecisionsMD)...)
	}
	return errs
}

func checkMarkdown(field, md string) []ValidationError {
	var errs []ValidationError
	if len(md) > MaxMarkdownBytes {
		errs = append(errs, ValidationError{
			Field:       field,
			Description: fmt.Sprintf("is %d bytes, limit is %d", len(md), MaxMarkdownBytes),
		})
	}
	if !utf8.ValidString(md) {
		errs = append(errs, ValidationError{Field: field, Description: "is not valid UTF-8"})
	}
	return errs
}
