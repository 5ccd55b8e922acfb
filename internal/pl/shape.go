package pl

import (
	"github.com/shopspring/decimal"

	"github.com/personal-pl/plctl/internal/model"
	"github.com/personal-pl/plctl/internal/period"
)

var (
	hundred = decimal.NewFromInt(100)
	// reconcileTolerance is how far the server's net may drift from
	// income - |expense| before the report is flagged.
	reconcileTolerance = decimal.RequireFromString("0.01")
)

// Direction compares a value with the previous month.
type Direction string

const (
	DirUp   Direction = "up"
	DirDown Direction = "down"
	DirFlat Direction = "flat"
	DirNew  Direction = "new" // no value last month
)

// Options control presentation.
type Options struct {
	// RateIsRatio means the server sends savings_rate as a fraction
	// (0.9613) rather than a percentage (96.13).
	RateIsRatio bool
	Currency    string
	Expanded    map[string]bool
}

// Report is a summary response prepared for display. Nothing in it is sent
// back to the server.
type Report struct {
	Month              period.Period
	Accounts           []string
	Currency           string
	Income             decimal.Decimal
	Expenses           decimal.Decimal // magnitude
	Net                decimal.Decimal
	NetDerived         bool // server omitted net
	SavingsRate        *decimal.Decimal
	SavingsRateDerived bool
	DeltaMoM           decimal.Decimal
	Reconciled         bool // server net agrees with income - expenses
	Categories         []CategoryLine
}

// CategoryLine is one category with its share and month-over-month move.
type CategoryLine struct {
	Category  string
	Net       decimal.Decimal
	Income    bool            // net is positive
	Share     decimal.Decimal // percent of income or of expenses
	Previous  *decimal.Decimal
	Direction Direction
	Expanded  bool
	Subs      []SubLine
}

// SubLine is one subcategory; Share is relative to its parent.
type SubLine struct {
	Name  string
	Net   decimal.Decimal
	Share decimal.Decimal
}

// HasSubs reports whether the category can be expanded.
func (c CategoryLine) HasSubs() bool { return len(c.Subs) > 0 }

// Shape derives display values from a summary response. prev, if non-nil,
// is the previous month's response and feeds the per-category direction.
func Shape(resp model.PLSummaryResponse, prev *model.PLSummaryResponse, opts Options) Report {
	s := resp.Summary
	expenses := s.Expense.Abs()
	computed := s.Income.Sub(expenses)

	rep := Report{
		Month:      resp.Filters.Month,
		Accounts:   resp.Filters.Accounts,
		Currency:   opts.Currency,
		Income:     s.Income,
		Expenses:   expenses,
		DeltaMoM:   s.DeltaMoM,
		Reconciled: true,
	}
	if rep.Month.IsZero() {
		rep.Month = s.Month
	}

	if s.Net != nil {
		rep.Net = *s.Net
		rep.Reconciled = rep.Net.Sub(computed).Abs().LessThanOrEqual(reconcileTolerance)
	} else {
		rep.Net = computed
		rep.NetDerived = true
	}

	switch {
	case s.SavingsRate != nil:
		rate := *s.SavingsRate
		if opts.RateIsRatio {
			rate = rate.Mul(hundred)
		}
		rep.SavingsRate = &rate
	case s.Income.IsPositive():
		rate := rep.Net.Div(s.Income).Mul(hundred).Round(2)
		rep.SavingsRate = &rate
		rep.SavingsRateDerived = true
	}

	prevNet := map[string]decimal.Decimal{}
	if prev != nil {
		for _, row := range prev.Rows {
			prevNet[row.Category] = row.Net
		}
	}

	for _, row := range resp.Rows {
		line := CategoryLine{
			Category: row.Category,
			Net:      row.Net,
			Income:   row.Net.IsPositive(),
			Expanded: opts.Expanded[row.Category] && len(row.Subs) > 0,
		}
		base := expenses
		if line.Income {
			base = s.Income
		}
		line.Share = percent(row.Net.Abs(), base)

		if p, ok := prevNet[row.Category]; ok {
			line.Previous = &p
			line.Direction = direction(row.Net, p)
		} else if prev != nil {
			line.Direction = DirNew
		}

		for _, sub := range row.Subs {
			line.Subs = append(line.Subs, SubLine{
				Name:  sub.Name,
				Net:   sub.Net,
				Share: percent(sub.Net.Abs(), row.Net.Abs()),
			})
		}
		rep.Categories = append(rep.Categories, line)
	}
	return rep
}

// percent returns part/whole*100 rounded to one place; zero when whole is.
func percent(part, whole decimal.Decimal) decimal.Decimal {
	if whole.IsZero() {
		return decimal.Zero
	}
	return part.Div(whole).Mul(hundred).Round(1)
}

func direction(cur, prev decimal.Decimal) Direction {
	switch cur.Cmp(prev) {
	case 1:
		return DirUp
	case -1:
		return DirDown
	default:
		return DirFlat
	}
}

// Sign returns "+", "-" or "" for v.
func Sign(v decimal.Decimal) string {
	switch v.Sign() {
	case 1:
		return "+"
	case -1:
		return "-"
	default:
		return ""
	}
}
