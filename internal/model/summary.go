package model

import (
	"github.com/shopspring/decimal"

	"github.com/personal-pl/plctl/internal/period"
)

// CurrencyView selects native or EUR-converted amounts.
type CurrencyView string

const (
	CurrencyNative CurrencyView = "native"
	CurrencyEUR    CurrencyView = "eur"
)

// SummaryRequest is the body of POST /api/pl/summary.
type SummaryRequest struct {
	Month            period.Period `json:"month"`
	Accounts         []string      `json:"accounts"`
	ExcludeTransfers *bool         `json:"exclude_transfers,omitempty"`
	CurrencyView     CurrencyView  `json:"currency_view,omitempty"`
}

// PLSummary holds headline totals for a period. Net and SavingsRate are
// nil when the backend omits them.
type PLSummary struct {
	Month       period.Period    `json:"month"`
	Income      decimal.Decimal  `json:"income"`
	Expense     decimal.Decimal  `json:"expense"` // either sign convention
	Net         *decimal.Decimal `json:"net,omitempty"`
	DeltaMoM    decimal.Decimal  `json:"delta_mom"`
	SavingsRate *decimal.Decimal `json:"savings_rate,omitempty"`
}

// SubcategoryRow is one subcategory total. An empty Name means no
// subcategory within the parent.
type SubcategoryRow struct {
	Name string          `json:"name"`
	Net  decimal.Decimal `json:"net"`
}

// CategoryRow is one top-level category with its subcategories.
type CategoryRow struct {
	Category string           `json:"category"`
	Net      decimal.Decimal  `json:"net"`
	Subs     []SubcategoryRow `json:"subs"`
}

// Filters echoes the request that produced a summary.
type Filters struct {
	Month    period.Period `json:"month"`
	Accounts []string      `json:"accounts"`
}

// PLSummaryResponse is the full body of a summary response.
type PLSummaryResponse struct {
	Summary PLSummary     `json:"summary"`
	Rows    []CategoryRow `json:"rows"`
	Filters Filters       `json:"filters"`
}

// Row returns the category row by name.
func (r *PLSummaryResponse) Row(category string) (CategoryRow, bool) {
	for _, row := range r.Rows {
		if row.Category == category {
			return row, true
		}
	}
	return CategoryRow{}, false
}
