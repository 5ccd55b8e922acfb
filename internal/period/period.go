package period

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Period is a calendar month, the unit of uploads, commits and summaries.
type Period struct {
	Year  int
	Month time.Month
}

// Format returns a period string like "2025-07".
func Format(year int, month time.Month) string {
	return fmt.Sprintf("%04d-%02d", year, int(month))
}

// Parse accepts "2025-07", "2025/07" or "2025-07-01" (day ignored).
func Parse(s string) (Period, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Period{}, fmt.Errorf("empty period")
	}

	sep := "-"
	if strings.Contains(s, "/") {
		sep = "/"
	}
	parts := strings.Split(s, sep)
	if len(parts) < 2 || len(parts) > 3 {
		return Period{}, fmt.Errorf("invalid period format: %q", s)
	}
	if len(parts) == 3 && sep == "/" {
		return Period{}, fmt.Errorf("invalid period format: %q", s)
	}

	if len(parts[0]) != 4 {
		return Period{}, fmt.Errorf("invalid year in period %q", s)
	}
	year, err := strconv.Atoi(parts[0])
	if err != nil {
		return Period{}, fmt.Errorf("invalid year in period %q: %w", s, err)
	}

	month, err := strconv.Atoi(parts[1])
	if err != nil {
		return Period{}, fmt.Errorf("invalid month in period %q: %w", s, err)
	}
	if month < 1 || month > 12 {
		return Period{}, fmt.Errorf("month out of range in period %q", s)
	}

	if len(parts) == 3 {
		if _, err := time.Parse("2006-01-02", s); err != nil {
			return Period{}, fmt.Errorf("invalid date in period %q: %w", s, err)
		}
	}

	return Period{Year: year, Month: time.Month(month)}, nil
}

// MustParse is Parse for literals; it panics on error.
func MustParse(s string) Period {
	p, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return p
}

// Of returns the period containing t.
func Of(t time.Time) Period {
	return Period{Year: t.Year(), Month: t.Month()}
}

// String returns "YYYY-MM"; the zero Period formats as "".
func (p Period) String() string {
	if p.IsZero() {
		return ""
	}
	return Format(p.Year, p.Month)
}

// IsZero reports whether p is unset.
func (p Period) IsZero() bool {
	return p.Year == 0 && p.Month == 0
}

// Start returns the first day of the month in UTC.
func (p Period) Start() time.Time {
	return time.Date(p.Year, p.Month, 1, 0, 0, 0, 0, time.UTC)
}

// End returns the last day of the month in UTC.
func (p Period) End() time.Time {
	return p.Start().AddDate(0, 1, -1)
}

// Prev returns the month before p.
func (p Period) Prev() Period {
	return Of(p.Start().AddDate(0, -1, 0))
}

// Next returns the month after p.
func (p Period) Next() Period {
	return Of(p.Start().AddDate(0, 1, 0))
}

// Contains reports whether t falls in p.
func (p Period) Contains(t time.Time) bool {
	return t.Year() == p.Year && t.Month() == p.Month
}

// Label returns a human label like "July 2025".
func (p Period) Label() string {
	return p.Start().Format("January 2006")
}

// MarshalJSON encodes as "YYYY-MM".
func (p Period) MarshalJSON() ([]byte, error) {
	return json.Marshal(p.String())
}

// UnmarshalJSON accepts any form Parse accepts; the backend echoes dates
// as "YYYY-MM-01".
func (p *Period) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("period must be a string: %w", err)
	}
	if s == "" {
		*p = Period{}
		return nil
	}
	parsed, err := Parse(s)
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}

// Set implements pflag.Value so periods can be command flags.
func (p *Period) Set(s string) error {
	parsed, err := Parse(s)
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}

// Type implements pflag.Value.
func (p *Period) Type() string { return "period" }
