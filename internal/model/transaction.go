package model

import (
	"github.com/shopspring/decimal"

	"github.com/personal-pl/plctl/internal/period"
)

// Transaction is a derived, categorized transaction.
type Transaction struct {
	ID           string           `json:"id"`
	Timestamp    Timestamp        `json:"ts"`
	AccountID    string           `json:"account_id"`
	AccountLabel string           `json:"account_label,omitempty"`
	Description  string           `json:"description"`
	Merchant     string           `json:"merchant,omitempty"`
	Category     string           `json:"category,omitempty"`
	Subcategory  string           `json:"subcategory,omitempty"`
	Amount       decimal.Decimal  `json:"amount"` // negative = expense, positive = income
	AmountEUR    *decimal.Decimal `json:"amount_eur,omitempty"`
	Currency     string           `json:"currency"`
	IsTransfer   bool             `json:"is_transfer"`
}

// TransactionQuery is the body of POST /api/tx.
type TransactionQuery struct {
	Month             *period.Period `json:"month,omitempty"`
	Accounts          []string       `json:"accounts,omitempty"`
	Category          string         `json:"category,omitempty"`
	Subcategory       string         `json:"subcategory,omitempty"`
	Merchant          string         `json:"merchant,omitempty"`
	UncategorizedOnly bool           `json:"uncategorized_only,omitempty"`
	Limit             int            `json:"limit,omitempty"`
	Offset            int            `json:"offset,omitempty"`
}

// TransactionPage is one page of a transaction listing.
type TransactionPage struct {
	Transactions []Transaction `json:"transactions"`
	Total        int           `json:"total"`
	Page         int           `json:"page"`
	Limit        int           `json:"limit"`
}
